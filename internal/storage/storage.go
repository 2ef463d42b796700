package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"schedbot/pkg/logx"
)

// Config configures the sqlite store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// Buckets are logical namespaces inside the single kv table. They mirror the
// two persisted layouts the engine needs (pending wizard sessions and
// schedule records) plus group credentials for the payment path.
const (
	BucketSessions    = "wizard_sessions"
	BucketSchedules   = "schedules"
	BucketCredentials = "group_credentials"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// DB is a durable key/value store with bucket-scoped scans.
// Values are opaque blobs; callers own the encoding.
type DB struct {
	db  *sql.DB
	log logx.Logger
}

func Open(cfg Config, log logx.Logger) (*DB, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("storage path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	s := &DB{db: db, log: log}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (d *DB) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = d.db.ExecContext(ctx, string(b))
	return err
}

func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

// Put upserts a value.
func (d *DB) Put(ctx context.Context, bucket, key string, data []byte) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO kv(bucket, key, data, updated_at) VALUES(?,?,?,?)
		 ON CONFLICT(bucket, key) DO UPDATE SET data=excluded.data, updated_at=excluded.updated_at`,
		bucket, key, data, time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

// Get returns (nil, false, nil) when the key is absent.
func (d *DB) Get(ctx context.Context, bucket, key string) ([]byte, bool, error) {
	var data []byte
	err := d.db.QueryRowContext(ctx,
		`SELECT data FROM kv WHERE bucket = ? AND key = ?`, bucket, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (d *DB) Delete(ctx context.Context, bucket, key string) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM kv WHERE bucket = ? AND key = ?`, bucket, key)
	return err
}

// Scan visits every key in a bucket in key order. The callback's error stops
// the scan and is returned.
func (d *DB) Scan(ctx context.Context, bucket string, fn func(key string, data []byte) error) error {
	rows, err := d.db.QueryContext(ctx,
		`SELECT key, data FROM kv WHERE bucket = ? ORDER BY key`, bucket)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var data []byte
		if err := rows.Scan(&key, &data); err != nil {
			return err
		}
		if err := fn(key, data); err != nil {
			return err
		}
	}
	return rows.Err()
}
