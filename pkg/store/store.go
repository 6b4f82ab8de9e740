package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/harun/colloquy/internal/tracing"
	"github.com/harun/colloquy/pkg/artifact"
	"github.com/harun/colloquy/pkg/blueprint"
	"github.com/harun/colloquy/pkg/message"
	gonanoid "github.com/matoous/go-nanoid/v2"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const tracerName = "colloquy.store"

// ErrArtifactNotFound is returned when no artifact has the requested id.
var ErrArtifactNotFound = errors.New("artifact not found")

const schema = `
CREATE TABLE IF NOT EXISTS artifacts (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	version INTEGER NOT NULL,
	content TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS artifact_revisions (
	artifact_id TEXT NOT NULL,
	version INTEGER NOT NULL,
	content TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (artifact_id, version),
	FOREIGN KEY (artifact_id) REFERENCES artifacts(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS blueprint_sources (
	ref TEXT PRIMARY KEY,
	text TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
`

// Artifact is the current state of a stored artifact.
type Artifact struct {
	ID        string                `json:"id"`
	Kind      string                `json:"kind"`
	Version   message.ObjectVersion `json:"version"`
	Content   string                `json:"content"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// Config holds store configuration.
type Config struct {
	Path   string
	Logger *zerolog.Logger
}

// Store is a SQLite artifact and blueprint source store.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

var (
	_ artifact.Resolver  = (*Store)(nil)
	_ blueprint.Database = (*Store)(nil)
)

// Open opens (or creates) the database at cfg.Path.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("database path is required")
	}

	db, err := sql.Open("sqlite3", cfg.Path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	return &Store{db: db, logger: logger.With().Str("component", "store").Logger()}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// PutArtifact creates or updates an artifact. An empty id allocates a new
// one. Writing identical content leaves the version unchanged.
func (s *Store) PutArtifact(ctx context.Context, id, kind, content string) (*Artifact, error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "store.put_artifact")
	defer span.End()

	if id == "" {
		generated, err := gonanoid.New()
		if err != nil {
			return nil, fmt.Errorf("generate artifact id: %w", err)
		}
		id = generated
	}
	span.SetAttributes(attribute.String("artifact.id", id))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	defer tx.Rollback()

	now := time.Now()
	var (
		version  int64
		current  string
		existing string
	)
	err = tx.QueryRowContext(ctx,
		"SELECT version, content, kind FROM artifacts WHERE id = ?", id,
	).Scan(&version, &current, &existing)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		version = 1
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO artifacts (id, kind, version, content, updated_at) VALUES (?, ?, ?, ?, ?)",
			id, kind, version, content, now.Unix(),
		); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "insert failed")
			return nil, fmt.Errorf("insert artifact %s: %w", id, err)
		}
	case err != nil:
		span.RecordError(err)
		return nil, fmt.Errorf("read artifact %s: %w", id, err)
	case current == content:
		if kind == "" {
			kind = existing
		}
		return &Artifact{ID: id, Kind: kind, Version: versionOf(version), Content: content, UpdatedAt: now}, nil
	default:
		if kind == "" {
			kind = existing
		}
		version++
		if _, err := tx.ExecContext(ctx,
			"UPDATE artifacts SET kind = ?, version = ?, content = ?, updated_at = ? WHERE id = ?",
			kind, version, content, now.Unix(), id,
		); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "update failed")
			return nil, fmt.Errorf("update artifact %s: %w", id, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO artifact_revisions (artifact_id, version, content, created_at) VALUES (?, ?, ?, ?)",
		id, version, content, now.Unix(),
	); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("record revision %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.logger.Debug().Str("artifact_id", id).Int64("version", version).Msg("Artifact stored")
	return &Artifact{ID: id, Kind: kind, Version: versionOf(version), Content: content, UpdatedAt: now}, nil
}

// GetArtifact returns the current state of an artifact.
func (s *Store) GetArtifact(ctx context.Context, id string) (*Artifact, error) {
	var (
		a       Artifact
		version int64
		updated int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, kind, version, content, updated_at FROM artifacts WHERE id = ?", id,
	).Scan(&a.ID, &a.Kind, &version, &a.Content, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	a.Version = versionOf(version)
	a.UpdatedAt = time.Unix(updated, 0)
	return &a, nil
}

// Revision returns the content of an artifact at a specific version.
func (s *Store) Revision(ctx context.Context, id string, version message.ObjectVersion) (string, error) {
	n, err := parseVersion(version)
	if err != nil {
		return "", err
	}
	var content string
	err = s.db.QueryRowContext(ctx,
		"SELECT content FROM artifact_revisions WHERE artifact_id = ? AND version = ?", id, n,
	).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s@%s", ErrArtifactNotFound, id, version)
	}
	return content, err
}

// ListArtifacts returns every artifact ordered by id.
func (s *Store) ListArtifacts(ctx context.Context) ([]Artifact, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, kind, version, content, updated_at FROM artifacts ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Artifact
	for rows.Next() {
		var (
			a       Artifact
			version int64
			updated int64
		)
		if err := rows.Scan(&a.ID, &a.Kind, &version, &a.Content, &updated); err != nil {
			return nil, err
		}
		a.Version = versionOf(version)
		a.UpdatedAt = time.Unix(updated, 0)
		out = append(out, a)
	}
	return out, rows.Err()
}

// Resolve implements artifact.Resolver. The diff runs from the revision the
// ref last saw to the current content; an unknown last version diffs from
// empty content.
func (s *Store) Resolve(ctx context.Context, refs []artifact.Ref) (map[string]artifact.Entry, error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "store.resolve",
		attribute.Int("refs", len(refs)),
	)
	defer span.End()

	out := make(map[string]artifact.Entry, len(refs))
	for _, ref := range refs {
		current, err := s.GetArtifact(ctx, ref.ID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "artifact lookup failed")
			return nil, err
		}
		if current.Version.Equal(ref.LastVersion) {
			out[ref.ID] = artifact.Entry{Version: current.Version}
			continue
		}

		previous, err := s.Revision(ctx, ref.ID, ref.LastVersion)
		if err != nil && !errors.Is(err, ErrArtifactNotFound) && !errors.Is(err, errBadVersion) {
			span.RecordError(err)
			return nil, err
		}
		diff, err := artifact.UnifiedDiff(ref.ID, ref.LastVersion, previous, current.Version, current.Content)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		out[ref.ID] = artifact.Entry{Version: current.Version, Diff: diff}
	}
	return out, nil
}

// PutSource stores the text of a blueprint source.
func (s *Store) PutSource(ctx context.Context, ref, text string) error {
	if ref == "" {
		return errors.New("source ref is required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO blueprint_sources (ref, text, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(ref) DO UPDATE SET text = excluded.text, updated_at = excluded.updated_at`,
		ref, text, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("store source %s: %w", ref, err)
	}
	return nil
}

// LoadSource implements blueprint.Database.
func (s *Store) LoadSource(ctx context.Context, ref string) (string, error) {
	var text string
	err := s.db.QueryRowContext(ctx, "SELECT text FROM blueprint_sources WHERE ref = ?", ref).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", blueprint.ErrSourceNotFound, ref)
	}
	return text, err
}

var errBadVersion = errors.New("malformed artifact version")

func versionOf(n int64) message.ObjectVersion {
	return message.ObjectVersion("v" + strconv.FormatInt(n, 10))
}

func parseVersion(v message.ObjectVersion) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimPrefix(string(v), "v"), 10, 64)
	if err != nil || !strings.HasPrefix(string(v), "v") {
		return 0, fmt.Errorf("%w: %q", errBadVersion, v)
	}
	return n, nil
}
