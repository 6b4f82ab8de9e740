package transcript

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/harun/colloquy/internal/observability"
	"github.com/harun/colloquy/internal/tracing"
	"github.com/harun/colloquy/pkg/message"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName = "colloquy.transcript"
	extension  = ".jsonl"

	// Lines holding large tool outputs can exceed bufio's default token size.
	maxLineBytes = 16 * 1024 * 1024
)

// Entry is one stored line.
type Entry struct {
	Key     string          `json:"key"`
	Message message.Message `json:"message"`
}

// Info describes a stored transcript.
type Info struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
	MessageCount int       `json:"messageCount"`
}

// Store keeps transcripts in a directory.
type Store struct {
	dir        string
	writeLocks map[string]*sync.Mutex
	locksMu    sync.Mutex
}

// New creates a Store rooted at dir, creating it when missing.
func New(dir string) (*Store, error) {
	observability.EnsureRegistered()

	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(homeDir, ".colloquy", "transcripts")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create transcripts directory: %w", err)
	}

	log.Debug().Str("dir", dir).Msg("Transcript store initialized")
	return &Store{dir: dir, writeLocks: make(map[string]*sync.Mutex)}, nil
}

func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("transcript key cannot be empty")
	}
	if strings.Contains(key, "..") {
		return fmt.Errorf("transcript key cannot contain '..'")
	}
	if strings.ContainsAny(key, "/\\") {
		return fmt.Errorf("transcript key cannot contain path separators")
	}
	if strings.Contains(key, "\x00") {
		return fmt.Errorf("transcript key cannot contain null bytes")
	}
	return nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key+extension)
}

func (s *Store) lock(key string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	if l, ok := s.writeLocks[key]; ok {
		return l
	}
	l := &sync.Mutex{}
	s.writeLocks[key] = l
	return l
}

func (s *Store) span(ctx context.Context, name, key string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = tracing.WithSessionID(ctx, key)
	return tracing.StartSpan(ctx, tracerName, name, append(attrs, attribute.String("transcript.key", key))...)
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// Append writes msgs to the end of the transcript.
func (s *Store) Append(ctx context.Context, key string, msgs ...message.Message) error {
	ctx, span := s.span(ctx, "transcript.append", key, attribute.Int("messages", len(msgs)))
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, log.Logger)
	start := time.Now()
	defer func() {
		observability.RecordTranscriptSave(time.Since(start))
	}()

	if err := validateKey(key); err != nil {
		return fail(span, err)
	}
	if len(msgs) == 0 {
		return nil
	}

	var buf []byte
	for _, msg := range msgs {
		if !msg.Role().Valid() {
			return fail(span, fmt.Errorf("message %s has invalid role %q", msg.ID, msg.Role()))
		}
		data, err := json.Marshal(Entry{Key: key, Message: msg})
		if err != nil {
			return fail(span, fmt.Errorf("failed to marshal message: %w", err))
		}
		buf = append(append(buf, data...), '\n')
	}

	l := s.lock(key)
	l.Lock()
	defer l.Unlock()

	file, err := os.OpenFile(s.path(key), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fail(span, fmt.Errorf("failed to open transcript file: %w", err))
	}
	defer file.Close()

	if _, err := file.Write(buf); err != nil {
		return fail(span, fmt.Errorf("failed to write messages: %w", err))
	}
	if err := file.Sync(); err != nil {
		return fail(span, fmt.Errorf("failed to sync file: %w", err))
	}

	logger.Debug().Int("messages", len(msgs)).Msg("Messages appended")
	return nil
}

// Load returns the messages of a transcript in stored order. A missing
// transcript is empty.
func (s *Store) Load(ctx context.Context, key string) ([]message.Message, error) {
	ctx, span := s.span(ctx, "transcript.load", key)
	defer span.End()
	start := time.Now()
	defer func() {
		observability.RecordTranscriptLoad(time.Since(start))
	}()

	if err := validateKey(key); err != nil {
		return nil, fail(span, err)
	}
	msgs, err := s.read(ctx, key)
	if err != nil {
		return nil, fail(span, err)
	}
	return msgs, nil
}

func (s *Store) read(ctx context.Context, key string) ([]message.Message, error) {
	logger := tracing.LoggerFromContext(ctx, log.Logger)

	file, err := os.Open(s.path(key))
	if os.IsNotExist(err) {
		return []message.Message{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open transcript file: %w", err)
	}
	defer file.Close()

	msgs := []message.Message{}
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			logger.Warn().Int("line", lineNum).Err(err).Msg("Failed to parse line, skipping")
			continue
		}
		if !entry.Message.Role().Valid() {
			logger.Warn().Int("line", lineNum).Msg("Invalid entry, skipping")
			continue
		}
		msgs = append(msgs, entry.Message)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read transcript file: %w", err)
	}

	logger.Debug().Int("messages", len(msgs)).Msg("Transcript loaded")
	return msgs, nil
}

// Delete removes a transcript. Deleting a missing transcript is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	ctx, span := s.span(ctx, "transcript.delete", key)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, log.Logger)

	if err := validateKey(key); err != nil {
		return fail(span, err)
	}

	l := s.lock(key)
	l.Lock()
	defer l.Unlock()

	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return fail(span, fmt.Errorf("failed to delete transcript file: %w", err))
	}

	logger.Info().Msg("Transcript deleted")
	return nil
}

// List returns the stored transcript keys, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read transcripts directory: %w", err)
	}

	keys := []string{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), extension) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(entry.Name(), extension))
	}
	sort.Strings(keys)
	return keys, nil
}

// Info returns metadata about a transcript.
func (s *Store) Info(ctx context.Context, key string) (Info, error) {
	if err := validateKey(key); err != nil {
		return Info{}, err
	}
	stat, err := os.Stat(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return Info{}, fmt.Errorf("transcript %q does not exist", key)
		}
		return Info{}, fmt.Errorf("failed to stat transcript file: %w", err)
	}
	msgs, err := s.Load(ctx, key)
	if err != nil {
		return Info{}, err
	}
	return Info{
		Key:          key,
		Size:         stat.Size(),
		LastModified: stat.ModTime(),
		MessageCount: len(msgs),
	}, nil
}

// Repair rewrites a transcript without its unreadable lines.
func (s *Store) Repair(ctx context.Context, key string) error {
	ctx, span := s.span(ctx, "transcript.repair", key)
	defer span.End()

	if err := validateKey(key); err != nil {
		return fail(span, err)
	}

	l := s.lock(key)
	l.Lock()
	defer l.Unlock()

	msgs, err := s.read(ctx, key)
	if err != nil {
		return fail(span, err)
	}

	target := s.path(key)
	tmp := target + ".tmp"
	file, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fail(span, fmt.Errorf("failed to create temp file: %w", err))
	}
	enc := json.NewEncoder(file)
	for _, msg := range msgs {
		if err := enc.Encode(Entry{Key: key, Message: msg}); err != nil {
			file.Close()
			os.Remove(tmp)
			return fail(span, fmt.Errorf("failed to write entry: %w", err))
		}
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmp)
		return fail(span, fmt.Errorf("failed to sync file: %w", err))
	}
	file.Close()

	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return fail(span, fmt.Errorf("failed to replace transcript file: %w", err))
	}

	log.Info().Str("key", key).Int("messages", len(msgs)).Msg("Transcript repaired")
	return nil
}

// Prune deletes transcripts not modified within maxAge and returns their keys.
func (s *Store) Prune(ctx context.Context, maxAge time.Duration) ([]string, error) {
	keys, err := s.List()
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(-maxAge)
	var pruned []string
	for _, key := range keys {
		stat, err := os.Stat(s.path(key))
		if err != nil || !stat.ModTime().Before(cutoff) {
			continue
		}
		if err := s.Delete(ctx, key); err != nil {
			return pruned, err
		}
		pruned = append(pruned, key)
	}

	if len(pruned) > 0 {
		log.Info().Int("count", len(pruned)).Dur("max_age", maxAge).Msg("Old transcripts pruned")
	}
	return pruned, nil
}
