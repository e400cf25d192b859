package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/awayuki/lumiline/internal/config"
	"github.com/awayuki/lumiline/internal/ops"
)

// ErrNotFound reports a key with no stored value
var ErrNotFound = errors.New("storage: key not found")

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
`

// Store is a small sqlite-backed key-value store for state that must
// survive restarts: the polling watermark, reaction drafts, and user
// settings. Timeline events themselves are never persisted; relays are
// the source of truth and the view is rebuilt on startup.
type Store struct {
	db  *sqlx.DB
	log *ops.Logger
}

// Open opens (and if needed creates) the store at the configured path
func Open(cfg *config.Storage, log *ops.Logger) (*Store, error) {
	if cfg.SQLitePath == "" {
		return nil, fmt.Errorf("storage: sqlite path not configured")
	}

	if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
	}

	db, err := sqlx.Connect("sqlite3", cfg.SQLitePath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// sqlite handles one writer at a time
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db, log: log.WithComponent("storage")}, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the value for a key, or ErrNotFound
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	start := time.Now()

	var value string
	err := s.db.GetContext(ctx, &value, `SELECT value FROM kv WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		s.log.LogStorageOperation("get", time.Since(start), err)
		return "", fmt.Errorf("failed to read key %s: %w", key, err)
	}

	s.log.LogStorageOperation("get", time.Since(start), nil)
	return value, nil
}

// Set stores a value under a key, replacing any previous value
func (s *Store) Set(ctx context.Context, key, value string) error {
	start := time.Now()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().Unix())
	s.log.LogStorageOperation("set", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}
	return nil
}

// Delete removes a key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	start := time.Now()

	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	s.log.LogStorageOperation("delete", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// Keys returns all stored keys with the given prefix
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := s.db.SelectContext(ctx, &keys,
		`SELECT key FROM kv WHERE key LIKE ? || '%' ORDER BY key`, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	return keys, nil
}

const watermarkKey = "timeline.watermark"

// Watermark returns the persisted polling watermark, or zero when none
// was ever stored
func (s *Store) Watermark(ctx context.Context) (int64, error) {
	value, err := s.Get(ctx, watermarkKey)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	watermark, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt watermark %q: %w", value, err)
	}
	return watermark, nil
}

// SetWatermark persists the polling watermark
func (s *Store) SetWatermark(ctx context.Context, watermark int64) error {
	return s.Set(ctx, watermarkKey, strconv.FormatInt(watermark, 10))
}

const draftPrefix = "draft."

// Draft returns a saved note draft, or ErrNotFound
func (s *Store) Draft(ctx context.Context, id string) (string, error) {
	return s.Get(ctx, draftPrefix+id)
}

// SetDraft saves a note draft
func (s *Store) SetDraft(ctx context.Context, id, content string) error {
	return s.Set(ctx, draftPrefix+id, content)
}

// DeleteDraft removes a saved draft
func (s *Store) DeleteDraft(ctx context.Context, id string) error {
	return s.Delete(ctx, draftPrefix+id)
}

const settingPrefix = "setting."

// Setting returns a persisted user setting, or the given default
func (s *Store) Setting(ctx context.Context, name, fallback string) (string, error) {
	value, err := s.Get(ctx, settingPrefix+name)
	if errors.Is(err, ErrNotFound) {
		return fallback, nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// SetSetting persists a user setting
func (s *Store) SetSetting(ctx context.Context, name, value string) error {
	return s.Set(ctx, settingPrefix+name, value)
}
