/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"dialogical/internal/compiler"
	"dialogical/internal/config"
	"dialogical/internal/storage"
)

// pruner is implemented by the persistent caches.
type pruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

func newCacheCmd(f *rootFlags, stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and prune the comptime result cache",
	}

	openPersistent := func(cmd *cobra.Command) (*app, error) {
		a, err := newApp(f.configPath, f.silent, stderr)
		if err != nil {
			return nil, err
		}
		switch a.cfg.Cache.Backend {
		case config.CacheSQLite, config.CachePostgres:
		default:
			return nil, usageError("cache.backend %q has no persistent store", a.cfg.Cache.Backend)
		}
		a.openCache(cmd.Context())
		if a.cache == nil {
			a.Close()
			return nil, &compiler.Error{Kind: compiler.KindIO, Err: fmt.Errorf("open %s cache failed", a.cfg.Cache.Backend)}
		}
		return a, nil
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Print entry and hit counts of the SQLite cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openPersistent(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			sc, ok := a.cache.(*storage.Cache)
			if !ok {
				return usageError("stats are only kept by the sqlite cache")
			}
			st, err := sc.Stats(cmd.Context())
			if err != nil {
				return &compiler.Error{Kind: compiler.KindIO, Err: err}
			}
			fmt.Fprintf(stdout, "entries: %d\nhits: %d\n", st.Entries, st.Hits)
			return nil
		},
	}

	var olderThan time.Duration
	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove entries not used within --older-than",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openPersistent(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			p, ok := a.cache.(pruner)
			if !ok {
				return usageError("cache backend %q cannot be pruned", a.cfg.Cache.Backend)
			}
			n, err := p.Prune(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return &compiler.Error{Kind: compiler.KindIO, Err: err}
			}
			fmt.Fprintf(stdout, "pruned %d entries\n", n)
			return nil
		},
	}
	pruneCmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "age of the last use")

	cmd.AddCommand(statsCmd, pruneCmd)
	return cmd
}
