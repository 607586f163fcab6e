/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dialogical/internal/comptime"
	applog "dialogical/internal/log"
	"dialogical/internal/version"

	// Pure-Go SQLite driver (CGO-free)
	_ "modernc.org/sqlite"
)

const (
	CacheDirName  = "dialogical"
	CacheFileName = "comptime.sqlite"

	// schemaVersion tracks the cache schema. Bump it together with a new
	// step in runMigrations.
	schemaVersion = 1
)

// DefaultCacheDir returns <user cache dir>/dialogical.
func DefaultCacheDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("user cache dir: %w", err)
	}
	return filepath.Join(base, CacheDirName), nil
}

// CachePath returns the database file inside dir.
func CachePath(dir string) string {
	return filepath.Join(dir, CacheFileName)
}

// Cache is a comptime.Cache backed by SQLite. It is safe for concurrent use.
type Cache struct {
	db *sql.DB
}

var _ comptime.Cache = (*Cache)(nil)

// Stats summarizes cache contents.
type Stats struct {
	Entries int
	Hits    int64
}

// OpenCache ensures the database in dir exists, enables WAL and brings the
// schema up to date.
func OpenCache(dir string) (*Cache, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "cache_open").With(
		slog.String("dir", dir),
	)
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("cache dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		l.Error("create cache dir failed", slog.Any("err", err))
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	path := CachePath(dir)
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=busy_timeout(5000)", filepath.ToSlash(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		l.Error("sqlite open failed", slog.Any("err", err))
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		l.Error("enable WAL failed", slog.Any("err", err))
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if err := ensureMetaAndVersion(ctx, db); err != nil {
		_ = db.Close()
		l.Error("ensure meta/version failed", slog.Any("err", err))
		return nil, err
	}
	if err := ensureCacheSchema(ctx, db); err != nil {
		_ = db.Close()
		l.Error("ensure cache schema failed", slog.Any("err", err))
		return nil, err
	}
	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		l.Error("run migrations failed", slog.Any("err", err))
		return nil, err
	}
	if err := ensureIndexes(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	l.Debug("cache ready", slog.String("path", path))
	return &Cache{db: db}, nil
}

// Close releases the database.
func (c *Cache) Close() error { return c.db.Close() }

// Get returns the entry stored under key and records the hit.
func (c *Cache) Get(ctx context.Context, key string) (comptime.Entry, bool, error) {
	var e comptime.Entry
	var output string
	err := c.db.QueryRowContext(ctx,
		`SELECT lang, source, output FROM comptime_cache WHERE key=?`, key).
		Scan(&e.Lang, &e.Source, &output)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return comptime.Entry{}, false, nil
	case err != nil:
		return comptime.Entry{}, false, fmt.Errorf("read cache entry: %w", err)
	}
	if err := json.Unmarshal([]byte(output), &e.Lines); err != nil {
		return comptime.Entry{}, false, fmt.Errorf("decode cache entry: %w", err)
	}
	if _, err := c.db.ExecContext(ctx,
		`UPDATE comptime_cache SET hits = hits + 1, last_used_at = ? WHERE key = ?`, now(), key); err != nil {
		return comptime.Entry{}, false, fmt.Errorf("touch cache entry: %w", err)
	}
	return e, true, nil
}

// Put stores e under key, replacing any previous entry.
func (c *Cache) Put(ctx context.Context, key string, e comptime.Entry) error {
	lines := e.Lines
	if lines == nil {
		lines = []string{}
	}
	b, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	ts := now()
	_, err = c.db.ExecContext(ctx, `INSERT INTO comptime_cache (key, lang, source, output, hits, created_at, last_used_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT(key) DO UPDATE SET lang=excluded.lang, source=excluded.source, output=excluded.output,
			created_at=excluded.created_at, last_used_at=excluded.last_used_at`,
		key, e.Lang, e.Source, string(b), ts, ts)
	if err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return nil
}

// Prune deletes entries not used since before and returns how many were removed.
func (c *Cache) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM comptime_cache WHERE last_used_at < ?`, before.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("prune cache: %w", err)
	}
	return res.RowsAffected()
}

// Stats reports entry and hit counts.
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(hits), 0) FROM comptime_cache`).Scan(&s.Entries, &s.Hits)
	if err != nil {
		return Stats{}, fmt.Errorf("cache stats: %w", err)
	}
	return s, nil
}

// timeLayout is fixed width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func now() string { return time.Now().UTC().Format(timeLayout) }

func ensureMetaAndVersion(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS version (
			id          INTEGER PRIMARY KEY CHECK(id=1),
			schema      INTEGER NOT NULL,
			app         TEXT,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	ts := time.Now().UTC().Format(time.RFC3339)
	appv := version.String()
	var curSchema int
	err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&curSchema)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := db.ExecContext(ctx, `INSERT INTO version (id, schema, app, created_at, updated_at) VALUES(1, ?, ?, ?, ?)`, schemaVersion, appv, ts, ts); err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read version: %w", err)
	default:
		// keep the stored schema; runMigrations moves it forward
		if _, err := db.ExecContext(ctx, `UPDATE version SET app=?, updated_at=? WHERE id=1`, appv, ts); err != nil {
			return fmt.Errorf("update version: %w", err)
		}
	}
	return nil
}

// ensureCacheSchema creates the current schema on a fresh database. Existing
// tables are left alone; older layouts are upgraded by runMigrations.
func ensureCacheSchema(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS comptime_cache (
			key          TEXT PRIMARY KEY,
			lang         TEXT NOT NULL,
			source       TEXT NOT NULL,
			output       TEXT NOT NULL,
			hits         INTEGER NOT NULL DEFAULT 0,
			created_at   TEXT NOT NULL,
			last_used_at TEXT NOT NULL
		);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create cache schema: %w", err)
		}
	}
	return nil
}

// ensureIndexes runs after migrations so every referenced column exists.
func ensureIndexes(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_comptime_cache_last_used ON comptime_cache(last_used_at);`); err != nil {
		return fmt.Errorf("create cache index: %w", err)
	}
	return nil
}

// migrations holds the statements that move the schema to each version
// above 1.
var migrations = map[int][]string{}

// runMigrations applies incremental schema migrations up to schemaVersion.
func runMigrations(ctx context.Context, db *sql.DB) error {
	var cur int
	if err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if cur > schemaVersion {
		return fmt.Errorf("cache schema %d is newer than supported schema %d", cur, schemaVersion)
	}
	for cur < schemaVersion {
		next := cur + 1
		stmts, ok := migrations[next]
		if !ok {
			return fmt.Errorf("no migration to schema %d", next)
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", next, err)
		}
		for _, q := range stmts {
			if _, err := tx.ExecContext(ctx, q); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d stmt failed: %w", next, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `UPDATE version SET schema=?, updated_at=? WHERE id=1`, next, time.Now().UTC().Format(time.RFC3339)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d update version: %w", next, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d commit: %w", next, err)
		}
		cur = next
	}
	return nil
}
