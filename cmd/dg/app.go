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
	"io"
	"log/slog"
	"os"

	"dialogical/internal/backend"
	"dialogical/internal/compiler"
	"dialogical/internal/comptime"
	"dialogical/internal/config"
	applog "dialogical/internal/log"
	"dialogical/internal/storage"
)

// app holds what every subcommand needs once flags are parsed.
type app struct {
	cfg     config.AppConfig
	log     *slog.Logger
	cache   comptime.Cache
	closers []io.Closer
}

// newApp loads configuration and initializes logging. silent raises the log
// level to errors only.
func newApp(configPath string, silent bool, stderr io.Writer) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, usageError("config: %w", err)
	}
	lo := cfg.LogOptions()
	lo.Writer = stderr
	if silent {
		lo.Level = "error"
	}
	applog.Init(lo)
	return &app{cfg: cfg, log: applog.WithComponent("cli")}, nil
}

// openCache connects the configured comptime cache. The cache only saves
// work, so a backend that cannot be opened is logged and skipped.
func (a *app) openCache(ctx context.Context) {
	c := a.cfg.Cache
	l := a.log.With(slog.String("backend", c.Backend))
	switch c.Backend {
	case config.CacheMemory:
		a.cache = comptime.NewMemoryCache()
	case config.CacheSQLite:
		dir := c.Dir
		if dir == "" {
			d, err := storage.DefaultCacheDir()
			if err != nil {
				l.Warn("cache disabled", slog.Any("err", err))
				return
			}
			dir = d
		}
		sc, err := storage.OpenCache(dir)
		if err != nil {
			l.Warn("cache disabled", slog.Any("err", err))
			return
		}
		a.cache = sc
		a.closers = append(a.closers, sc)
	case config.CachePostgres:
		pw, err := a.cfg.CachePassword()
		if err != nil {
			l.Warn("cache password unavailable", slog.Any("err", err))
		}
		pc, err := backend.OpenCache(ctx, c.PostgresDSN, pw)
		if err != nil {
			l.Warn("cache disabled", slog.Any("err", err))
			return
		}
		a.cache = pc
		a.closers = append(a.closers, pc)
	default:
		return
	}
	l.Debug("cache enabled")
}

func (a *app) compilerOptions() compiler.Options {
	cc := a.cfg.Comptime
	return compiler.Options{
		Comptime: comptime.Options{
			Limits:        a.cfg.Limits(),
			RequireOutput: cc.RequireOutput,
			Cache:         a.cache,
			Logger:        applog.WithComponent("comptime"),
		},
		AllowFiles:  cc.AllowFiles,
		Normalize:   cc.Normalize,
		FileTimeout: cc.FileTimeout,
		Jobs:        cc.Jobs,
		Logger:      applog.WithComponent("compiler"),
	}
}

func (a *app) Close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.log.Warn("close failed", slog.Any("err", err))
		}
	}
	a.closers = nil
}

func readAll(r io.Reader) (string, error) {
	if r == nil {
		r = os.Stdin
	}
	b, err := io.ReadAll(r)
	return string(b), err
}
