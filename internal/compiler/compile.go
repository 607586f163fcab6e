/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package compiler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dialogical/internal/assemble"
	"dialogical/internal/comptime"
	"dialogical/internal/domain"
	"dialogical/internal/grammar"
	applog "dialogical/internal/log"
	"dialogical/internal/script"

	"golang.org/x/text/unicode/norm"
)

// Options configure a compilation.
type Options struct {
	// Path labels errors and the Document; CompileFile sets it.
	Path     string
	Comptime comptime.Options
	// AllowFiles grants comptime scripts read access to the source file's
	// directory when Comptime.FS is not set.
	AllowFiles bool
	// Normalize converts input to Unicode NFC before anything else.
	Normalize bool
	// FileTimeout bounds a whole file; zero means no bound beyond ctx.
	FileTimeout time.Duration
	// Jobs limits CompileBatch parallelism; zero uses the CPU count.
	Jobs   int
	Logger *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return applog.WithComponent("compiler")
}

// Compile runs the whole pipeline over source.
func Compile(ctx context.Context, source string, opts Options) (*domain.Document, error) {
	l := applog.WithOperation(opts.logger(), "compile").With(slog.String("path", opts.Path))
	start := time.Now()

	if opts.FileTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.FileTimeout)
		defer cancel()
	}
	if opts.Normalize {
		source = norm.NFC.String(source)
	}

	cto := opts.Comptime
	if cto.Logger == nil {
		cto.Logger = l
	}
	resolved, err := comptime.Resolve(ctx, opts.Path, source, cto)
	if err != nil {
		return nil, classify(opts.Path, err, nil)
	}

	pages := script.Paginate(resolved.Lines)
	segments, err := assemble.Assemble(pages)
	if err == nil {
		err = grammar.Annotate(segments, resolved.Links)
	}
	if err != nil {
		return nil, classify(opts.Path, err, resolved.Origin)
	}
	remap(segments, resolved.Origin)

	doc := Build(opts.Path, segments)
	l.Debug("compiled",
		slog.Int("segments", len(doc.Segments)),
		slog.Int("pages", doc.PageCount()),
		slog.Duration("took", time.Since(start)))
	return doc, nil
}

// CompileFile reads path and compiles it.
func CompileFile(ctx context.Context, path string, opts Options) (*domain.Document, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Kind: KindIO, Path: path, Err: fmt.Errorf("read source: %w", err)}
	}
	opts.Path = path
	if opts.AllowFiles && opts.Comptime.FS == nil {
		opts.Comptime.FS = os.DirFS(filepath.Dir(path))
	}
	return Compile(ctx, string(b), opts)
}

// CompileString compiles in-memory source (stdin, HTTP bodies) under name.
func CompileString(ctx context.Context, name, source string, opts Options) (*domain.Document, error) {
	opts.Path = name
	return Compile(ctx, source, opts)
}

// remap rewrites resolved line numbers to original source lines.
func remap(segments []domain.Segment, origin []int) {
	for i := range segments {
		s := &segments[i]
		s.Line = mapLine(origin, s.Line)
		for j := range s.Pages {
			s.Pages[j].Line = mapLine(origin, s.Pages[j].Line)
		}
	}
}

// Summary renders a one-line description of a compiled document.
func Summary(doc *domain.Document) string {
	ids := make([]string, 0, len(doc.Segments))
	for _, s := range doc.Segments {
		if s.ID == "" {
			ids = append(ids, "(implicit)")
			continue
		}
		ids = append(ids, s.ID)
	}
	return fmt.Sprintf("%d segments, %d pages [%s]", len(doc.Segments), doc.PageCount(), strings.Join(ids, ", "))
}
