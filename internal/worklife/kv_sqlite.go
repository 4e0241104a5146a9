package worklife

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const (
	sqliteKVTableName       = "worklife_kv"
	sqliteOperationTimeout  = 5 * time.Second
	sqliteConnectionTimeout = 5 * time.Second
)

// SQLiteKV is a single-file SQL backend, useful where a Postgres instance is
// overkill but the file-per-key layout is too loose.
type SQLiteKV struct {
	path      string
	tableName string
	openDB    sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

func NewSQLiteKV(path string) (*SQLiteKV, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, ErrInvalidInput
	}
	return &SQLiteKV{
		path:      path,
		tableName: sqliteKVTableName,
		openDB:    sql.Open,
	}, nil
}

func (b *SQLiteKV) Get(ctx context.Context, key string) (string, bool, error) {
	if err := b.ensureReady(); err != nil {
		return "", false, err
	}
	ctx, cancel := withDefaultTimeout(ctx, sqliteOperationTimeout)
	defer cancel()

	query := fmt.Sprintf("SELECT v FROM %s WHERE k = ?", b.tableName)
	var value string
	err := b.db.QueryRowContext(ctx, query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (b *SQLiteKV) Set(ctx context.Context, key, value string) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidInput
	}
	if err := b.ensureReady(); err != nil {
		return err
	}
	ctx, cancel := withDefaultTimeout(ctx, sqliteOperationTimeout)
	defer cancel()

	query := fmt.Sprintf(`
		INSERT INTO %s (k, v, updated_at)
		VALUES (?, ?, strftime('%%Y-%%m-%%dT%%H:%%M:%%fZ', 'now'))
		ON CONFLICT (k)
		DO UPDATE SET v = excluded.v, updated_at = excluded.updated_at`, b.tableName)
	_, err := b.db.ExecContext(ctx, query, key, value)
	return err
}

func (b *SQLiteKV) Remove(ctx context.Context, key string) error {
	if err := b.ensureReady(); err != nil {
		return err
	}
	ctx, cancel := withDefaultTimeout(ctx, sqliteOperationTimeout)
	defer cancel()

	query := fmt.Sprintf("DELETE FROM %s WHERE k = ?", b.tableName)
	_, err := b.db.ExecContext(ctx, query, key)
	return err
}

func (b *SQLiteKV) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

func (b *SQLiteKV) ensureReady() error {
	if b == nil {
		return ErrInvalidInput
	}
	b.initOnce.Do(func() {
		if dir := filepath.Dir(b.path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				b.initErr = err
				return
			}
		}
		db, err := b.openDB("sqlite", b.path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
		if err != nil {
			b.initErr = err
			return
		}
		// modernc sqlite is not safe for concurrent writers on one conn pool
		// beyond what the busy timeout covers.
		db.SetMaxOpenConns(1)

		ctx, cancel := context.WithTimeout(context.Background(), sqliteConnectionTimeout)
		defer cancel()
		schema := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				k TEXT PRIMARY KEY,
				v TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`, b.tableName)
		if _, err := db.ExecContext(ctx, schema); err != nil {
			b.initErr = err
			_ = db.Close()
			return
		}
		b.db = db
	})
	return b.initErr
}
