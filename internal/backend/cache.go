/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package backend

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"dialogical/internal/comptime"
)

// Cache is a comptime.Cache stored in Postgres.
type Cache struct {
	db *sql.DB
}

var _ comptime.Cache = (*Cache)(nil)

// OpenCache connects to Postgres and returns a ready cache.
func OpenCache(ctx context.Context, dsn, password string) (*Cache, error) {
	db, err := Open(ctx, dsn, password)
	if err != nil {
		return nil, err
	}
	return &Cache{db: db}, nil
}

// NewCache wraps an already migrated database.
func NewCache(db *sql.DB) *Cache { return &Cache{db: db} }

func (c *Cache) Close() error { return c.db.Close() }

func (c *Cache) Get(ctx context.Context, key string) (comptime.Entry, bool, error) {
	var e comptime.Entry
	var output []byte
	err := c.db.QueryRowContext(ctx,
		`UPDATE comptime_cache SET hits = hits + 1, last_used_at = now()
		 WHERE key = $1 RETURNING lang, source, output`, key).
		Scan(&e.Lang, &e.Source, &output)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return comptime.Entry{}, false, nil
	case err != nil:
		return comptime.Entry{}, false, fmt.Errorf("read cache entry: %w", err)
	}
	if err := json.Unmarshal(output, &e.Lines); err != nil {
		return comptime.Entry{}, false, fmt.Errorf("decode cache entry: %w", err)
	}
	return e, true, nil
}

func (c *Cache) Put(ctx context.Context, key string, e comptime.Entry) error {
	lines := e.Lines
	if lines == nil {
		lines = []string{}
	}
	b, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	_, err = c.db.ExecContext(ctx, `INSERT INTO comptime_cache (key, lang, source, output)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO UPDATE SET lang = EXCLUDED.lang, source = EXCLUDED.source,
			output = EXCLUDED.output, last_used_at = now()`,
		key, e.Lang, e.Source, string(b))
	if err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return nil
}

// Prune deletes entries not used since before.
func (c *Cache) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM comptime_cache WHERE last_used_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("prune cache: %w", err)
	}
	return res.RowsAffected()
}
