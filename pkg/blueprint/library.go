package blueprint

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LibraryConfig configures a directory-backed blueprint library.
type LibraryConfig struct {
	Dir                string
	StabilityThreshold time.Duration
	Logger             *zerolog.Logger
	// OnChange is called with the blueprint key after a watched file is reloaded or removed.
	OnChange func(key string)
}

// Library holds the blueprints found in a directory of YAML files. Other files
// in the directory serve as template sources.
type Library struct {
	dir       string
	stability time.Duration
	logger    zerolog.Logger
	onChange  func(key string)

	mu     sync.RWMutex
	byKey  map[string]Blueprint
	byPath map[string]Blueprint

	watcher  *fsnotify.Watcher
	timerMu  sync.Mutex
	timers   map[string]*time.Timer
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// OpenLibrary loads every *.yaml and *.yml blueprint in cfg.Dir.
func OpenLibrary(cfg LibraryConfig) (*Library, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("blueprint directory cannot be empty")
	}
	if cfg.StabilityThreshold == 0 {
		cfg.StabilityThreshold = 100 * time.Millisecond
	}
	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	l := &Library{
		dir:       cfg.Dir,
		stability: cfg.StabilityThreshold,
		logger:    logger.With().Str("component", "blueprint_library").Logger(),
		onChange:  cfg.OnChange,
		byKey:     make(map[string]Blueprint),
		byPath:    make(map[string]Blueprint),
		timers:    make(map[string]*time.Timer),
		done:      make(chan struct{}),
	}

	entries, err := os.ReadDir(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read blueprint directory: %w", err)
	}
	for _, entry := range entries {
		path := filepath.Join(cfg.Dir, entry.Name())
		if entry.IsDir() || !isBlueprintFile(path) {
			continue
		}
		if _, err := l.loadFile(path); err != nil {
			return nil, err
		}
	}

	l.logger.Debug().Int("blueprints", len(l.byKey)).Str("dir", cfg.Dir).Msg("Blueprint library loaded")
	return l, nil
}

// Get returns the blueprint with the given key.
func (l *Library) Get(key string) (Blueprint, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	bp, ok := l.byKey[key]
	return bp, ok
}

// Lookup returns the blueprints for keys in order, failing on the first unknown key.
func (l *Library) Lookup(keys ...string) ([]Blueprint, error) {
	out := make([]Blueprint, 0, len(keys))
	for _, key := range keys {
		bp, ok := l.Get(key)
		if !ok {
			return nil, fmt.Errorf("blueprint not found: %s", key)
		}
		out = append(out, bp)
	}
	return out, nil
}

// List returns all blueprints sorted by key.
func (l *Library) List() []Blueprint {
	l.mu.RLock()
	out := make([]Blueprint, 0, len(l.byKey))
	for _, bp := range l.byKey {
		out = append(out, bp)
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// LoadSource reads a template source file from the library directory.
func (l *Library) LoadSource(ctx context.Context, ref string) (string, error) {
	clean := filepath.Clean(ref)
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrSourceNotFound, ref)
	}
	data, err := os.ReadFile(filepath.Join(l.dir, clean))
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrSourceNotFound, ref)
		}
		return "", fmt.Errorf("failed to read template source: %w", err)
	}
	return string(data), nil
}

// Watch reloads blueprint files as they change until Close is called.
func (l *Library) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(l.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch blueprint directory: %w", err)
	}
	l.watcher = watcher

	l.wg.Add(1)
	go l.eventLoop()

	l.logger.Info().Str("dir", l.dir).Msg("Blueprint watcher started")
	return nil
}

// Close stops watching. It is safe to call without Watch.
func (l *Library) Close() error {
	l.stopOnce.Do(func() {
		close(l.done)
	})

	l.timerMu.Lock()
	for _, timer := range l.timers {
		if timer.Stop() {
			l.wg.Done()
		}
	}
	clear(l.timers)
	l.timerMu.Unlock()

	var err error
	if l.watcher != nil {
		err = l.watcher.Close()
	}
	l.wg.Wait()
	if err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

func (l *Library) eventLoop() {
	defer l.wg.Done()
	for {
		select {
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if isBlueprintFile(event.Name) {
				l.debounce(event)
			}
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.logger.Error().Err(err).Msg("Watcher error")
		case <-l.done:
			return
		}
	}
}

func (l *Library) debounce(event fsnotify.Event) {
	l.timerMu.Lock()
	defer l.timerMu.Unlock()

	select {
	case <-l.done:
		return
	default:
	}

	if pending, exists := l.timers[event.Name]; exists && pending.Stop() {
		l.wg.Done()
	}

	// Each scheduled callback holds a wg slot so Close waits for one in flight.
	l.wg.Add(1)
	var timer *time.Timer
	timer = time.AfterFunc(l.stability, func() {
		defer l.wg.Done()

		l.timerMu.Lock()
		if l.timers[event.Name] == timer {
			delete(l.timers, event.Name)
		}
		l.timerMu.Unlock()

		select {
		case <-l.done:
		default:
			l.apply(event)
		}
	})
	l.timers[event.Name] = timer
}

func (l *Library) apply(event fsnotify.Event) {
	var key string
	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		key = l.removeFile(event.Name)
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		var err error
		key, err = l.loadFile(event.Name)
		if err != nil {
			l.logger.Warn().Err(err).Str("path", event.Name).Msg("Ignoring invalid blueprint file")
			return
		}
	default:
		return
	}

	if key == "" {
		return
	}
	l.logger.Info().Str("key", key).Str("op", event.Op.String()).Msg("Blueprint reloaded")
	if l.onChange != nil {
		l.onChange(key)
	}
}

func (l *Library) loadFile(path string) (string, error) {
	bp, err := LoadFile(path)
	if err != nil {
		return "", err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	old, ok := l.byPath[path]
	l.byPath[path] = bp
	l.byKey[bp.Key] = bp
	if ok && old.Key != bp.Key {
		l.rebind(old.Key)
	}
	return bp.Key, nil
}

func (l *Library) removeFile(path string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	bp, ok := l.byPath[path]
	if !ok {
		return ""
	}
	delete(l.byPath, path)
	l.rebind(bp.Key)
	return bp.Key
}

// rebind points key at the last file, in path order, that still declares it,
// or drops the key when none does. Callers hold mu.
func (l *Library) rebind(key string) {
	var (
		found bool
		last  string
	)
	for path, bp := range l.byPath {
		if bp.Key == key && (!found || path > last) {
			found, last = true, path
		}
	}
	if !found {
		delete(l.byKey, key)
		return
	}
	l.byKey[key] = l.byPath[last]
}

func isBlueprintFile(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(base))
	return ext == ".yaml" || ext == ".yml"
}
