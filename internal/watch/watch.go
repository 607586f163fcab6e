/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package watch re-runs a build whenever a source file changes on disk.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	applog "dialogical/internal/log"
)

// DefaultDebounce is the quiet period after the last write before a rebuild.
const DefaultDebounce = 200 * time.Millisecond

// Options configures a watch loop.
type Options struct {
	Debounce time.Duration
	Logger   *slog.Logger
}

// Run watches the directory containing path and calls rebuild once per burst
// of changes to path. Editors that save by rename are handled by watching the
// directory instead of the file. Run blocks until ctx is canceled and returns
// nil in that case.
func Run(ctx context.Context, path string, opts Options, rebuild func(context.Context)) error {
	if rebuild == nil {
		return errors.New("watch: rebuild callback is nil")
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	l := opts.Logger
	if l == nil {
		l = applog.WithComponent("watch")
	}

	target, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("watch: resolve %s: %w", path, err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer func() {
		if cerr := w.Close(); cerr != nil {
			l.Warn("close watcher failed", slog.Any("err", cerr))
		}
	}()
	if err := w.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch: add %s: %w", filepath.Dir(target), err)
	}
	l.Info("watching", slog.String("path", target), slog.Duration("debounce", debounce))

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			l.Debug("watch stopped")
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !relevant(ev, target) {
				continue
			}
			l.Debug("change", slog.String("op", ev.Op.String()))
			timer.Reset(debounce)
		case werr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			l.Warn("watcher error", slog.Any("err", werr))
		case <-timer.C:
			rebuild(ctx)
		}
	}
}

func relevant(ev fsnotify.Event, target string) bool {
	name, err := filepath.Abs(ev.Name)
	if err != nil || name != target {
		return false
	}
	return ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0
}
