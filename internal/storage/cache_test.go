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
	"testing"
	"time"

	"dialogical/internal/comptime"

	"github.com/google/go-cmp/cmp"
	_ "modernc.org/sqlite"
)

func TestCachePutGet(t *testing.T) {
	c, err := OpenCache(t.TempDir())
	if err != nil {
		t.Fatalf("OpenCache: %v", err)
	}
	defer c.Close()
	ctx := context.Background()

	key := comptime.Key("dg", "Echo hi\n")
	if _, ok, err := c.Get(ctx, key); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	want := comptime.Entry{Lang: "dg", Source: "Echo hi\n", Lines: []string{"hi\n"}}
	if err := c.Put(ctx, key, want); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("entry mismatch (-want +got):\n%s", diff)
	}

	// Overwrite keeps a single row.
	want.Lines = []string{"hello\n"}
	if err := c.Put(ctx, key, want); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}
	if _, _, err := c.Get(ctx, key); err != nil {
		t.Fatalf("Get: %v", err)
	}
	st, err := c.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Entries != 1 || st.Hits != 2 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestCacheEmptyOutput(t *testing.T) {
	c, err := OpenCache(t.TempDir())
	if err != nil {
		t.Fatalf("OpenCache: %v", err)
	}
	defer c.Close()
	ctx := context.Background()
	if err := c.Put(ctx, "k", comptime.Entry{Lang: "dg", Source: "// nothing\n"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok, err := c.Get(ctx, "k")
	if err != nil || !ok || len(got.Lines) != 0 {
		t.Fatalf("unexpected entry %+v ok=%v err=%v", got, ok, err)
	}
}

func TestCachePersistsAndPrunes(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	c, err := OpenCache(dir)
	if err != nil {
		t.Fatalf("OpenCache: %v", err)
	}
	if err := c.Put(ctx, "k", comptime.Entry{Lang: "lua", Source: "emit('x')", Lines: []string{"x\n"}}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	c.Close()

	c, err = OpenCache(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer c.Close()
	if _, ok, _ := c.Get(ctx, "k"); !ok {
		t.Fatalf("entry lost across reopen")
	}
	n, err := c.Prune(ctx, time.Now().Add(-time.Hour))
	if err != nil || n != 0 {
		t.Fatalf("recent entries must survive prune: n=%d err=%v", n, err)
	}
	n, err = c.Prune(ctx, time.Now().Add(time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("expected one pruned entry: n=%d err=%v", n, err)
	}
}

func TestCacheWithResolver(t *testing.T) {
	c, err := OpenCache(t.TempDir())
	if err != nil {
		t.Fatalf("OpenCache: %v", err)
	}
	defer c.Close()
	src := "###\nEcho cached line\n###\n"
	for i := 0; i < 2; i++ {
		res, err := comptime.Resolve(context.Background(), "", src, comptime.Options{Cache: c})
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if diff := cmp.Diff([]string{"cached line\n"}, res.Lines); diff != "" {
			t.Fatalf("run %d mismatch:\n%s", i, diff)
		}
	}
	st, _ := c.Stats(context.Background())
	if st.Entries != 1 || st.Hits != 1 {
		t.Fatalf("expected one entry with one hit, got %+v", st)
	}
}

func TestOpenCacheRequiresDir(t *testing.T) {
	if _, err := OpenCache("  "); err == nil {
		t.Fatalf("expected error for empty dir")
	}
}

func TestOpenCacheRecordsSchema(t *testing.T) {
	dir := t.TempDir()
	c, err := OpenCache(dir)
	if err != nil {
		t.Fatalf("OpenCache: %v", err)
	}
	var schema int
	if err := c.db.QueryRowContext(context.Background(), `SELECT schema FROM version WHERE id=1`).Scan(&schema); err != nil {
		t.Fatalf("read schema: %v", err)
	}
	c.Close()
	if schema != 1 || schemaVersion != 1 {
		t.Fatalf("expected schema 1, got %d (schemaVersion %d)", schema, schemaVersion)
	}
	if len(migrations) != 0 {
		t.Fatalf("a version 1 schema needs no migrations, got %d", len(migrations))
	}

	// Reopening an up-to-date cache is a no-op.
	c, err = OpenCache(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	c.Close()
}

func TestOpenCacheRejectsNewerSchema(t *testing.T) {
	dir := t.TempDir()
	c, err := OpenCache(dir)
	if err != nil {
		t.Fatalf("OpenCache: %v", err)
	}
	if _, err := c.db.ExecContext(context.Background(), `UPDATE version SET schema=? WHERE id=1`, schemaVersion+1); err != nil {
		t.Fatalf("bump schema: %v", err)
	}
	c.Close()

	if c, err := OpenCache(dir); err == nil {
		c.Close()
		t.Fatalf("expected an error for a cache written by a newer schema")
	}
}
