package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// SQLite is the default local Backend: a single-file key-value table that
// survives process restarts without any external service.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) the key-value database at path.
func NewSQLite(path string, log zerolog.Logger) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Single writer; the engine serializes access anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS kv (
		key        TEXT PRIMARY KEY,
		value      BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create kv table: %w", err)
	}

	log.Info().Str("path", path).Msg("SQLite session store opened")

	return &SQLite{db: db}, nil
}

func (s *SQLite) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE key = ?`, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", key, err)
	}
	return value, nil
}

func (s *SQLite) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (key) DO UPDATE
		 SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

func (s *SQLite) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}

	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM kv WHERE key IN (%s)`, placeholders), args...,
	)
	if err != nil {
		return fmt.Errorf("del: %w", err)
	}
	return nil
}

func (s *SQLite) Close() error { return s.db.Close() }
