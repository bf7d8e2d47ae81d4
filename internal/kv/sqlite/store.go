package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/julianstephens/dosekeep/internal/kv"
	"github.com/julianstephens/dosekeep/internal/logger"
	"github.com/julianstephens/dosekeep/internal/migration"
	"github.com/julianstephens/dosekeep/migrations"
)

// HistoryLimit is how many replaced values are kept per key.
const HistoryLimit = 20

var (
	_ kv.Backend    = (*Store)(nil)
	_ kv.Pinger     = (*Store)(nil)
	_ kv.FileBacked = (*Store)(nil)
)

// Store is a kv.Backend on a local SQLite database.
type Store struct {
	path string

	mu sync.Mutex
	db *sql.DB
}

func NewStore(path string) *Store {
	return &Store{
		path: path,
	}
}

func (s *Store) Init(ctx context.Context) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	db, err := s.open()
	if err != nil {
		return err
	}

	subFS, err := fs.Sub(migrations.FS, "sqlite")
	if err != nil {
		return fmt.Errorf("failed to access sqlite migrations: %w", err)
	}
	runner := migration.NewRunner(db, subFS, migration.DialectSQLite)
	if _, err := runner.ApplyMigrations(func(msg string) {
		logger.Info(msg)
	}); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// open returns the shared connection, opening it on first use.
func (s *Store) open() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return s.db, nil
	}
	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY
	// between the background writer and foreground reads.
	db.SetMaxOpenConns(1)
	s.db = db
	return db, nil
}

// Load opens an already-initialized database and checks its schema version.
func (s *Store) Load(ctx context.Context) error {
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return fmt.Errorf("storage not initialized, run 'dosekeep init' first")
	}
	db, err := s.open()
	if err != nil {
		return err
	}

	subFS, err := fs.Sub(migrations.FS, "sqlite")
	if err != nil {
		return fmt.Errorf("failed to access sqlite migrations: %w", err)
	}
	return migration.NewRunner(db, subFS, migration.DialectSQLite).ValidateVersion()
}

func (s *Store) conn() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, kv.ErrClosed
	}
	return s.db, nil
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	db, err := s.conn()
	if err != nil {
		return "", err
	}

	var value string
	err = db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", kv.ErrNotFound
		}
		return "", fmt.Errorf("failed to read key %s: %w", key, err)
	}
	return value, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	db, err := s.conn()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339Nano)

	var previous string
	err = tx.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&previous)
	switch {
	case err == nil:
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO kv_history (key, value, replaced_at) VALUES (?, ?, ?)",
			key, previous, now); err != nil {
			return fmt.Errorf("failed to record history for %s: %w", key, err)
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM kv_history WHERE key = ? AND id NOT IN (
				SELECT id FROM kv_history WHERE key = ? ORDER BY id DESC LIMIT ?
			)`, key, key, HistoryLimit); err != nil {
			return fmt.Errorf("failed to trim history for %s: %w", key, err)
		}
	case errors.Is(err, sql.ErrNoRows):
	default:
		return fmt.Errorf("failed to read key %s: %w", key, err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT OR REPLACE INTO kv (key, value, updated_at) VALUES (?, ?, ?)",
		key, value, now); err != nil {
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}

	return tx.Commit()
}

func (s *Store) Delete(ctx context.Context, key string) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// History returns up to limit previous values of key, newest first.
func (s *Store) History(ctx context.Context, key string, limit int) ([]string, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx,
		"SELECT value FROM kv_history WHERE key = ? ORDER BY id DESC LIMIT ?", key, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read history for %s: %w", key, err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

func (s *Store) Ping(ctx context.Context) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) Location() string {
	return s.path
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}
