package kv

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS kv (
	column TEXT NOT NULL,
	key    TEXT NOT NULL,
	value  BLOB NOT NULL,
	PRIMARY KEY (column, key)
);
`

// SQLiteStore is a durable, single-file Store backed by
// modernc.org/sqlite, matching the teacher's db.Open/openDB pattern:
// WAL mode, directory bootstrap, and corrupt-database recovery.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens or creates a SQLite-backed store at path. If the existing
// database has an incompatible schema, it is deleted and recreated.
func Open(path string) (*SQLiteStore, error) {
	store, err := openSQLite(path)
	if err != nil {
		if strings.Contains(err.Error(), "no such column") ||
			strings.Contains(err.Error(), "no such table") ||
			strings.Contains(err.Error(), "SQL logic error") {
			if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
				return nil, fmt.Errorf("kv: remove incompatible database: %w", removeErr)
			}
			os.Remove(path + "-wal")
			os.Remove(path + "-shm")
			return openSQLite(path)
		}
		return nil, err
	}
	return store, nil
}

func openSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("kv: create database directory: %w", err)
		}
	}

	escapedPath := strings.ReplaceAll(path, " ", "%20")
	db, err := sql.Open("sqlite", "file:"+escapedPath)
	if err != nil {
		return nil, fmt.Errorf("kv: open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("kv: enable WAL mode: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("kv: initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

var _ Store = (*SQLiteStore)(nil)

func (s *SQLiteStore) Get(ctx context.Context, column Column, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE column = ? AND key = ?`, string(column), key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("kv: get %s/%s: %w", column, key, err)
	}
	return value, true, nil
}

func (s *SQLiteStore) Put(ctx context.Context, column Column, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (column, key, value) VALUES (?, ?, ?)
		 ON CONFLICT(column, key) DO UPDATE SET value = excluded.value`,
		string(column), key, value)
	if err != nil {
		return fmt.Errorf("kv: put %s/%s: %w", column, key, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, column Column, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE column = ? AND key = ?`, string(column), key); err != nil {
		return fmt.Errorf("kv: delete %s/%s: %w", column, key, err)
	}
	return nil
}

func (s *SQLiteStore) WriteBatch(ctx context.Context, ops []Op) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("kv: begin batch: %w", err)
	}
	defer tx.Rollback()

	for _, op := range ops {
		switch op.Kind {
		case OpPut:
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO kv (column, key, value) VALUES (?, ?, ?)
				 ON CONFLICT(column, key) DO UPDATE SET value = excluded.value`,
				string(op.Column), op.Key, op.Value); err != nil {
				return fmt.Errorf("kv: batch put %s/%s: %w", op.Column, op.Key, err)
			}
		case OpDelete:
			if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE column = ? AND key = ?`, string(op.Column), op.Key); err != nil {
				return fmt.Errorf("kv: batch delete %s/%s: %w", op.Column, op.Key, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("kv: commit batch: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Iterate(ctx context.Context, column Column, fn func(key string, value []byte) error) error {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM kv WHERE column = ? ORDER BY key`, string(column))
	if err != nil {
		return fmt.Errorf("kv: iterate %s: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return fmt.Errorf("kv: scan %s: %w", column, err)
		}
		if err := fn(key, value); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
