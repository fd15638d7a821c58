// Package storage provides the SQLite implementation of the Store interface.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kasane/internal/models"
)

const (
	prefKeyWatermark   = "scan_watermark"
	prefKeyLastStackID = "last_stack_id"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	// The busy timeout lets concurrent writers (stack rebuilds, scans)
	// queue on the write lock instead of failing with SQLITE_BUSY.
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS embeddings (
		photo_id TEXT PRIMARY KEY,
		vector BLOB NOT NULL,
		content_hash TEXT NOT NULL,
		computed_at TIMESTAMP NOT NULL,
		source_modified_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS prefs (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS stacks (
		photo_id TEXT PRIMARY KEY,
		stack_id INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_stacks_stack_id ON stacks(stack_id);
	`
	_, err := db.Exec(schema)
	return err
}

// Get returns the embedding for photoID, or (nil, nil) if none is stored.
func (s *SQLiteStore) Get(ctx context.Context, photoID string) (*models.Embedding, error) {
	var emb models.Embedding
	var blob []byte

	err := s.db.QueryRowContext(ctx,
		`SELECT photo_id, vector, content_hash, computed_at, source_modified_at
		 FROM embeddings WHERE photo_id = ?`, photoID,
	).Scan(&emb.PhotoID, &blob, &emb.ContentHash, &emb.ComputedAt, &emb.SourceModifiedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	emb.Vector = DecodeVector(blob)
	return &emb, nil
}

// Put inserts or overwrites the embedding for its photo id.
func (s *SQLiteStore) Put(ctx context.Context, emb *models.Embedding) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO embeddings (photo_id, vector, content_hash, computed_at, source_modified_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(photo_id) DO UPDATE SET
			vector = excluded.vector,
			content_hash = excluded.content_hash,
			computed_at = excluded.computed_at,
			source_modified_at = excluded.source_modified_at`,
		emb.PhotoID, EncodeVector(emb.Vector), emb.ContentHash, emb.ComputedAt, emb.SourceModifiedAt,
	)
	return err
}

// Delete removes the embedding for photoID. Deleting a missing id is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, photoID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM embeddings WHERE photo_id = ?`, photoID)
	return err
}

// List returns all stored embeddings ordered by photo id.
func (s *SQLiteStore) List(ctx context.Context) ([]*models.Embedding, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT photo_id, vector, content_hash, computed_at, source_modified_at
		 FROM embeddings ORDER BY photo_id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var embs []*models.Embedding
	for rows.Next() {
		var emb models.Embedding
		var blob []byte
		if err := rows.Scan(&emb.PhotoID, &blob, &emb.ContentHash, &emb.ComputedAt, &emb.SourceModifiedAt); err != nil {
			return nil, err
		}
		emb.Vector = DecodeVector(blob)
		embs = append(embs, &emb)
	}
	return embs, rows.Err()
}

// IDs returns all photo ids with a stored embedding, ordered by id.
func (s *SQLiteStore) IDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT photo_id FROM embeddings ORDER BY photo_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Count returns the total number of stored embeddings.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings`).Scan(&count)
	return count, err
}

// Watermark returns the persisted scan watermark; ok is false when unset.
func (s *SQLiteStore) Watermark(ctx context.Context) (time.Time, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM prefs WHERE key = ?`, prefKeyWatermark,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	wm, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("corrupt watermark value %q: %w", value, err)
	}
	return wm, true, nil
}

// SetWatermark persists the scan watermark.
func (s *SQLiteStore) SetWatermark(ctx context.Context, wm time.Time) error {
	return s.setPref(ctx, prefKeyWatermark, wm.Format(time.RFC3339Nano))
}

func (s *SQLiteStore) setPref(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO prefs (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

// StackID returns the stack assignment for photoID, 0 when unassigned.
func (s *SQLiteStore) StackID(ctx context.Context, photoID string) (int64, error) {
	var stackID int64
	err := s.db.QueryRowContext(ctx,
		`SELECT stack_id FROM stacks WHERE photo_id = ?`, photoID,
	).Scan(&stackID)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return stackID, nil
}

// SetStackID records the stack assignment for photoID. A stackID of 0 means
// singleton and removes any persisted assignment.
func (s *SQLiteStore) SetStackID(ctx context.Context, photoID string, stackID int64) error {
	if stackID == 0 {
		_, err := s.db.ExecContext(ctx, `DELETE FROM stacks WHERE photo_id = ?`, photoID)
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stacks (photo_id, stack_id) VALUES (?, ?)
		 ON CONFLICT(photo_id) DO UPDATE SET stack_id = excluded.stack_id`,
		photoID, stackID,
	)
	return err
}

// ClearStackIDs removes all stack assignments. The allocation counter in
// prefs is left untouched so future ids remain strictly increasing.
func (s *SQLiteStore) ClearStackIDs(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM stacks`)
	return err
}

// NextStackID allocates the next stack id and advances the persisted
// counter in a single statement, so concurrent allocations never hand out
// the same id and ids are never reused across restarts.
func (s *SQLiteStore) NextStackID(ctx context.Context) (int64, error) {
	var next int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO prefs (key, value) VALUES (?, '1')
		 ON CONFLICT(key) DO UPDATE SET value = CAST(CAST(value AS INTEGER) + 1 AS TEXT)
		 RETURNING CAST(value AS INTEGER)`,
		prefKeyLastStackID,
	).Scan(&next)
	if err != nil {
		return 0, err
	}
	return next, nil
}

// StackAssignments returns every photo id -> stack id assignment.
func (s *SQLiteStore) StackAssignments(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT photo_id, stack_id FROM stacks ORDER BY stack_id, photo_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	assignments := make(map[string]int64)
	for rows.Next() {
		var id string
		var stackID int64
		if err := rows.Scan(&id, &stackID); err != nil {
			return nil, err
		}
		assignments[id] = stackID
	}
	return assignments, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
