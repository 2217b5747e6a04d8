package cache

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS extraction_cache (
	key        TEXT PRIMARY KEY,
	payload    TEXT NOT NULL,
	created_at INTEGER NOT NULL
)`

// SQLiteStore persists entries across runs in a single SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if needed) the cache database at path.
// ":memory:" gives a private, non-persistent database.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("cache: mkdir: %w", err)
		}
	}

	q := url.Values{}
	q.Add("_pragma", "busy_timeout(10000)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	dsn := "file:" + path + "?" + q.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("cache: open: %w", err)
	}
	// One connection: SQLite has a single writer anyway, and ":memory:" is per-connection.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("cache: schema: %w", err)
	}

	logger.Info("cache.open", "backend", "sqlite", "path", path)
	return &SQLiteStore{db: db, path: path, logger: logger}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key Key) (Entry, bool, error) {
	var (
		payload   string
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, created_at FROM extraction_cache WHERE key = ?`, string(key),
	).Scan(&payload, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("cache: get %s: %w", key.Short(), err)
	}
	return Entry{
		Key:       key,
		Payload:   []byte(payload),
		CreatedAt: time.UnixMilli(createdAt).UTC(),
	}, true, nil
}

func (s *SQLiteStore) Put(ctx context.Context, key Key, payload []byte) error {
	b, err := compact(payload)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO extraction_cache (key, payload, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO NOTHING`,
		string(key), string(b), time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("cache: put %s: %w", key.Short(), err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 1 {
		s.logger.Debug("cache.put", "key", key.Short(), "bytes", len(b))
		return nil
	}

	existing, ok, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if ok && !bytes.Equal(existing.Payload, b) {
		warnConflict(s.logger, key, existing.Payload, b)
	}
	return nil
}

// Len counts stored entries.
func (s *SQLiteStore) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM extraction_cache`).Scan(&n); err != nil {
		return 0, fmt.Errorf("cache: count: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Close() error {
	s.logger.Info("cache.close", "backend", "sqlite", "path", s.path)
	return s.db.Close()
}
