// Package store persists capture artifacts (recordings, screenshots,
// exported markups) under a library directory and indexes them in SQLite for
// fast recent-first listing.
package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the latest schema version. Bump when adding
// migrations.
const CurrentSchemaVersion = 1

// Kind classifies an artifact for gallery filtering.
const (
	KindRecording  = "recording"
	KindScreenshot = "screenshot"
	KindMarkup     = "markup"
)

// Artifact is one indexed file in the library.
type Artifact struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Name      string    `json:"name"`
	Kind      string    `json:"kind"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// Store owns the library directory and its SQLite index.
type Store struct {
	db      *sql.DB
	baseDir string
	now     func() time.Time
}

// Open initializes the library at baseDir (created if missing) and opens the
// index database. The baseDir parameter lets tests use t.TempDir().
func Open(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create library directory: %w", err)
	}

	dbPath := filepath.Join(baseDir, "gallery.db")
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open gallery index: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, baseDir: baseDir, now: time.Now}, nil
}

// Close closes the index database.
func (s *Store) Close() error {
	return s.db.Close()
}

// BaseDir returns the library root.
func (s *Store) BaseDir() string { return s.baseDir }

// WriteArtifact writes data to subfolder/suggestedName under the library and
// indexes it. Name collisions get a numeric suffix rather than overwriting.
func (s *Store) WriteArtifact(ctx context.Context, data []byte, suggestedName, subfolder, kind string) (*Artifact, error) {
	dir := s.baseDir
	if subfolder != "" {
		dir = filepath.Join(s.baseDir, subfolder)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create subfolder: %w", err)
		}
	}

	path, name, err := uniquePath(dir, suggestedName)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write artifact: %w", err)
	}

	now := s.now().UTC()
	art := &Artifact{
		ID:        ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		Path:      path,
		Name:      name,
		Kind:      kind,
		SizeBytes: int64(len(data)),
		CreatedAt: now,
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO artifacts (id, path, name, kind, size_bytes, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		art.ID, art.Path, art.Name, art.Kind, art.SizeBytes, art.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		// Index failure should not strand the file on disk unindexed and
		// unreported.
		_ = os.Remove(path)
		return nil, fmt.Errorf("failed to index artifact: %w", err)
	}
	return art, nil
}

// ListRecent returns up to limit artifacts, newest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]Artifact, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, path, name, kind, size_bytes, created_at
		FROM artifacts
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	defer rows.Close()

	var out []Artifact
	for rows.Next() {
		var a Artifact
		var created string
		if err := rows.Scan(&a.ID, &a.Path, &a.Name, &a.Kind, &a.SizeBytes, &created); err != nil {
			return nil, fmt.Errorf("failed to scan artifact row: %w", err)
		}
		a.CreatedAt, err = time.Parse(time.RFC3339Nano, created)
		if err != nil {
			return nil, fmt.Errorf("failed to parse artifact timestamp: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Delete removes an artifact from the index and best-effort deletes its file.
func (s *Store) Delete(ctx context.Context, id string) error {
	var path string
	err := s.db.QueryRowContext(ctx, `SELECT path FROM artifacts WHERE id = ?`, id).Scan(&path)
	if err == sql.ErrNoRows {
		return fmt.Errorf("artifact %s not found", id)
	}
	if err != nil {
		return fmt.Errorf("failed to look up artifact: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM artifacts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete artifact: %w", err)
	}
	_ = os.Remove(path)
	return nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL);
		CREATE TABLE IF NOT EXISTS artifacts (
			id         TEXT PRIMARY KEY,
			path       TEXT NOT NULL,
			name       TEXT NOT NULL,
			kind       TEXT NOT NULL,
			size_bytes INTEGER NOT NULL,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_artifacts_created ON artifacts(created_at DESC);
	`)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM schema_version`).Scan(&count); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if count == 0 {
		if _, err := db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, CurrentSchemaVersion); err != nil {
			return fmt.Errorf("failed to record schema version: %w", err)
		}
	}
	return nil
}

// uniquePath returns dir/name, appending -2, -3, ... before the extension
// until the path does not exist.
func uniquePath(dir, name string) (string, string, error) {
	ext := filepath.Ext(name)
	stem := name[:len(name)-len(ext)]
	candidate := name
	for i := 2; ; i++ {
		path := filepath.Join(dir, candidate)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path, candidate, nil
		}
		if i > 10_000 {
			return "", "", fmt.Errorf("could not find a free filename for %s", name)
		}
		candidate = fmt.Sprintf("%s-%d%s", stem, i, ext)
	}
}
