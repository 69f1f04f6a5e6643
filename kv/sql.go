package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// database/sql drivers: pure-Go SQLite (CGO-free) and pgx for PostgreSQL.
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// dialect captures the few statements that differ between drivers.
type dialect struct {
	name   string
	get    string
	upsert string
	remove string
	keys   string
	ddl    string
}

var sqliteDialect = dialect{
	name:   "sqlite",
	get:    `SELECT value FROM mosaic_records WHERE storage_key = ?`,
	upsert: `INSERT INTO mosaic_records (storage_key, value, updated_at) VALUES (?, ?, ?) ON CONFLICT(storage_key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
	remove: `DELETE FROM mosaic_records WHERE storage_key = ?`,
	keys:   `SELECT storage_key FROM mosaic_records ORDER BY storage_key`,
	ddl: `CREATE TABLE IF NOT EXISTS mosaic_records (
		storage_key TEXT PRIMARY KEY,
		value       TEXT NOT NULL,
		updated_at  TEXT NOT NULL
	)`,
}

var postgresDialect = dialect{
	name:   "pgx",
	get:    `SELECT value FROM mosaic_records WHERE storage_key = $1`,
	upsert: `INSERT INTO mosaic_records (storage_key, value, updated_at) VALUES ($1, $2, $3) ON CONFLICT (storage_key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
	remove: `DELETE FROM mosaic_records WHERE storage_key = $1`,
	keys:   `SELECT storage_key FROM mosaic_records ORDER BY storage_key`,
	ddl: `CREATE TABLE IF NOT EXISTS mosaic_records (
		storage_key TEXT PRIMARY KEY,
		value       TEXT NOT NULL,
		updated_at  TEXT NOT NULL
	)`,
}

// SQL stores records in a single table through database/sql. Values are kept
// as TEXT on both drivers: JSONB would reorder object keys and lose the
// preset order.
type SQL struct {
	db  *sql.DB
	d   dialect
	now func() time.Time
}

// OpenSQLite opens the embedded database at path, enables WAL and ensures the
// table exists.
func OpenSQLite(ctx context.Context, path string) (*SQL, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", filepath.ToSlash(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	return newSQL(ctx, db, sqliteDialect)
}

// OpenPostgres connects with the pgx driver and ensures the table exists.
func OpenPostgres(ctx context.Context, dsn string) (*SQL, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return newSQL(ctx, db, postgresDialect)
}

func newSQL(ctx context.Context, db *sql.DB, d dialect) (*SQL, error) {
	if _, err := db.ExecContext(ctx, d.ddl); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}
	return &SQL{db: db, d: d, now: time.Now}, nil
}

func (s *SQL) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, s.d.get, key).Scan(&value)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("%s get: %w", s.d.name, err)
	}
	return []byte(value), true, nil
}

func (s *SQL) Set(ctx context.Context, key string, value []byte) error {
	ts := s.now().UTC().Format(time.RFC3339Nano)
	if _, err := s.db.ExecContext(ctx, s.d.upsert, key, string(value), ts); err != nil {
		return fmt.Errorf("%s set: %w", s.d.name, err)
	}
	return nil
}

func (s *SQL) Remove(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, s.d.remove, key); err != nil {
		return fmt.Errorf("%s remove: %w", s.d.name, err)
	}
	return nil
}

func (s *SQL) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.d.keys)
	if err != nil {
		return nil, fmt.Errorf("%s keys: %w", s.d.name, err)
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *SQL) Close() error { return s.db.Close() }
