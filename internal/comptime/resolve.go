/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package comptime

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"dialogical/internal/domain"
	"dialogical/internal/script"
)

// Fence opens and closes a script block. The opening fence may carry a
// language tag ("### lua").
const Fence = "###"

// Script is one captured block.
type Script struct {
	Source   string
	Lang     string
	Location Location
}

// Options configure resolution. The zero value runs with DefaultLimits, no
// filesystem capability and no cache.
type Options struct {
	Limits        Limits
	FS            fs.FS
	RequireOutput bool
	Cache         Cache
	Logger        *slog.Logger
	// Engines replaces the built-in engine table when set.
	Engines map[string]Engine
}

// Resolved is source text with every block replaced by its output.
// Origin[i] is the 1-based source line Lines[i] came from; lines emitted by a
// script map to the block's opening fence. Links holds the metadata
// associations scripts declared, with After counted in resolved lines.
type Resolved struct {
	Lines  []string
	Origin []int
	Links  []domain.Link
}

type block struct {
	Script
	engine      Engine
	open, close int // indexes of the fence lines
}

// Resolve runs every block of text and splices its output in place.
// Structural problems (unterminated block, unknown language) are returned as
// *script.Error; execution failures as *Error.
func Resolve(ctx context.Context, path, text string, opts Options) (Resolved, error) {
	lines := script.SplitLines(text)
	blocks, err := scan(path, lines, opts.Engines)
	if err != nil {
		return Resolved{}, err
	}

	var res Resolved
	next := 0
	for _, b := range blocks {
		res.add(lines[next:b.open], next+1)
		out, links, err := opts.run(ctx, b)
		if err != nil {
			return Resolved{}, err
		}
		for _, l := range links {
			l.After = len(res.Lines)
			res.Links = append(res.Links, l)
		}
		for _, l := range out {
			res.Lines = append(res.Lines, l)
			res.Origin = append(res.Origin, b.Location.Line)
		}
		next = b.close + 1
	}
	res.add(lines[next:], next+1)
	return res, nil
}

// Scripts returns the blocks of text without running them.
func Scripts(path, text string) ([]Script, error) {
	blocks, err := scan(path, script.SplitLines(text), nil)
	if err != nil {
		return nil, err
	}
	out := make([]Script, len(blocks))
	for i, b := range blocks {
		out[i] = b.Script
	}
	return out, nil
}

func (r *Resolved) add(lines []string, first int) {
	for i, l := range lines {
		r.Lines = append(r.Lines, l)
		r.Origin = append(r.Origin, first+i)
	}
}

// openFence reports whether line opens a block and returns its language tag.
func openFence(line string) (string, bool) {
	s := strings.TrimRight(line, "\r\n")
	if s == Fence {
		return "", true
	}
	rest, ok := strings.CutPrefix(s, Fence)
	if !ok || rest == "" || (rest[0] != ' ' && rest[0] != '\t') {
		return "", false
	}
	return strings.TrimSpace(rest), true
}

func closeFence(line string) bool {
	return strings.TrimRight(line, "\r\n") == Fence
}

func scan(path string, lines []string, engines map[string]Engine) ([]block, error) {
	var blocks []block
	for i := 0; i < len(lines); i++ {
		lang, ok := openFence(lines[i])
		if !ok {
			continue
		}
		lang = normalizeLang(lang)
		eng, found := lookupIn(engines, lang)
		if !found {
			return nil, script.Errorf(i+1, "unknown comptime language %q", lang)
		}
		end := -1
		for j := i + 1; j < len(lines); j++ {
			if closeFence(lines[j]) {
				end = j
				break
			}
		}
		if end < 0 {
			return nil, script.Errorf(i+1, "unterminated comptime block")
		}
		blocks = append(blocks, block{
			Script: Script{
				Source:   strings.Join(lines[i+1:end], ""),
				Lang:     lang,
				Location: Location{Path: path, Line: i + 1},
			},
			engine: eng,
			open:   i,
			close:  end,
		})
		i = end
	}
	return blocks, nil
}

func lookupIn(engines map[string]Engine, lang string) (Engine, bool) {
	if engines == nil {
		return Lookup(lang)
	}
	e, ok := engines[lang]
	return e, ok
}

func (o Options) limits() Limits {
	if o.Limits == (Limits{}) {
		return DefaultLimits()
	}
	return o.Limits
}

func (o Options) run(ctx context.Context, b block) ([]string, []domain.Link, error) {
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("script", b.Location.String()), slog.String("lang", b.Lang))
	limits := o.limits()

	key := Key(b.Lang, b.Source)
	if o.Cache != nil {
		e, ok, err := o.Cache.Get(ctx, key)
		switch {
		case err != nil:
			logger.Warn("comptime cache read failed", slog.Any("err", err))
		case ok && e.Lang == b.Lang && e.Source == b.Source:
			logger.Debug("comptime cache hit")
			out, err := o.checkOutput(b, limits, e.Lines)
			return out, nil, err
		}
	}

	runCtx := ctx
	if limits.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, limits.Timeout)
		defer cancel()
	}

	env := NewEnv(runCtx, limits, o.FS, logger)
	err := b.engine.Run(b.Source, env)
	if err == nil {
		err = expired(ctx, runCtx)
	}
	if err != nil {
		return nil, nil, &Error{Location: b.Location, Err: err}
	}
	out, err := o.checkOutput(b, limits, env.Output())
	if err != nil {
		return nil, nil, err
	}
	links := env.Links()
	logger.Debug("comptime block done", slog.Int("steps", env.Steps()), slog.Int("lines", len(out)), slog.Int("links", len(links)))

	if o.Cache != nil && !env.Tainted() && len(links) == 0 {
		if err := o.Cache.Put(ctx, key, Entry{Lang: b.Lang, Source: b.Source, Lines: out}); err != nil {
			logger.Warn("comptime cache write failed", slog.Any("err", err))
		}
	}
	return out, links, nil
}

// expired reports a run that outlived its deadline without the engine
// noticing, e.g. inside a single long builtin call.
func expired(parent, run context.Context) error {
	err := run.Err()
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil:
		return ErrTimeout
	}
	return err
}

func (o Options) checkOutput(b block, limits Limits, out []string) ([]string, error) {
	if limits.MaxOutputLines > 0 && len(out) > limits.MaxOutputLines {
		return nil, &Error{Location: b.Location, Err: fmt.Errorf("%w: more than %d output lines", ErrBudget, limits.MaxOutputLines)}
	}
	if len(out) == 0 && o.RequireOutput {
		return nil, &Error{Location: b.Location, Err: ErrNoOutput}
	}
	return out, nil
}
