/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"dialogical/internal/compiler"
	"dialogical/internal/crash"
	"dialogical/internal/domain"
	"dialogical/internal/export"
	"dialogical/internal/server"
	"dialogical/internal/version"
	"dialogical/internal/watch"
)

// rootFlags are the flags of the compile command.
type rootFlags struct {
	stdin      bool
	version    bool
	output     string
	format     string
	proof      string
	watch      bool
	silent     bool
	configPath string
	remote     string
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	f := &rootFlags{}
	root := &cobra.Command{
		Use:   "dg [file]",
		Short: "Compile dialogue scripts into structured documents",
		Long: `dg compiles a dialogue script into pages and segments.

Pages are separated by a line containing only ---. Blocks fenced by ###
lines run at build time and their output replaces the block. A page whose
first line starts with % opens a new segment; lines starting with "> ",
"@ " or "$ " close a segment with choices or an exit.

Exit codes: 0 ok, 1 usage, 2 I/O, 3 parse, 4 comptime, 70 crash.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(cmd, f, args, stdin, stdout, stderr)
		},
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	fl := root.Flags()
	fl.BoolVarP(&f.stdin, "stdin", "s", false, "read the script from standard input")
	fl.BoolVarP(&f.version, "version", "v", false, "print the version and exit")
	fl.StringVarP(&f.output, "output", "o", "", "write the document to this file instead of stdout")
	fl.StringVar(&f.format, "format", "", "output format: json or yaml (default from config or -o extension)")
	fl.StringVar(&f.proof, "proof", "", "also write a review proof (.pdf or .html)")
	fl.BoolVar(&f.watch, "watch", false, "recompile whenever the file changes")
	fl.StringVar(&f.remote, "remote", "", "compile on a dg serve instance at this URL")
	pf := root.PersistentFlags()
	pf.BoolVar(&f.silent, "silent", false, "only log errors")
	pf.StringVar(&f.configPath, "config", "", "config file (default per-user config dir)")

	root.AddCommand(
		newCheckCmd(f, stdout, stderr),
		newServeCmd(f, stderr),
		newConfigCmd(f, stdin, stdout, stderr),
		newCacheCmd(f, stdout, stderr),
	)
	return root
}

func runCompile(cmd *cobra.Command, f *rootFlags, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	modes := 0
	for _, on := range []bool{f.version, f.stdin, len(args) > 0} {
		if on {
			modes++
		}
	}
	if modes != 1 || len(args) > 1 {
		_ = cmd.Help()
		return usageError("exactly one of --version, --stdin or a file is required")
	}
	if f.version {
		fmt.Fprintln(stdout, "dialogical", version.String())
		return nil
	}
	if f.watch && f.stdin {
		return usageError("--watch needs a file")
	}

	a, err := newApp(f.configPath, f.silent, stderr)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmd.Context()
	a.openCache(ctx)

	format := export.Format("")
	if f.format != "" {
		if format, err = export.ParseFormat(f.format); err != nil {
			return usageError("%w", err)
		}
	}

	b := &build{app: a, flags: f, format: format, stdin: stdin, stdout: stdout}
	if len(args) == 1 {
		b.path = args[0]
	}
	if !f.watch {
		return b.run(ctx)
	}

	if err := b.run(ctx); err != nil {
		a.log.Error("build failed", slog.Any("err", err))
	}
	return watch.Run(ctx, b.path, watch.Options{Logger: a.log}, func(ctx context.Context) {
		if err := b.run(ctx); err != nil {
			a.log.Error("build failed", slog.Any("err", err))
		}
	})
}

// build is one compile-and-write pass of the root command.
type build struct {
	app    *app
	flags  *rootFlags
	format export.Format
	path   string // empty for stdin
	stdin  io.Reader
	stdout io.Writer
}

func (b *build) run(ctx context.Context) error {
	name := b.path
	if name == "" {
		name = "<stdin>"
	}
	defer crash.Recover(name)
	l := b.app.log
	start := time.Now()

	l.Info("reading", slog.String("source", name))
	var source string
	if b.path == "" {
		s, err := readAll(b.stdin)
		if err != nil {
			return &compiler.Error{Kind: compiler.KindIO, Path: name, Err: fmt.Errorf("read stdin: %w", err)}
		}
		source = s
	}

	l.Info("compiling", slog.String("source", name))
	doc, err := b.compile(ctx, name, source)
	if err != nil {
		return err
	}

	l.Info("writing", slog.String("summary", compiler.Summary(doc)))
	if err := b.write(doc); err != nil {
		return err
	}
	l.Info("done", slog.Duration("took", time.Since(start)))
	return nil
}

func (b *build) compile(ctx context.Context, name, source string) (*domain.Document, error) {
	if b.flags.remote != "" {
		if b.path != "" {
			raw, err := os.ReadFile(b.path)
			if err != nil {
				return nil, &compiler.Error{Kind: compiler.KindIO, Path: b.path, Err: fmt.Errorf("read source: %w", err)}
			}
			source = string(raw)
		}
		return server.NewClient(b.flags.remote).Compile(ctx, name, source)
	}
	opts := b.app.compilerOptions()
	if b.path == "" {
		return compiler.CompileString(ctx, name, source, opts)
	}
	return compiler.CompileFile(ctx, b.path, opts)
}

func (b *build) write(doc *domain.Document) error {
	cfg := b.app.cfg
	format := b.format
	if format == "" {
		def, err := export.ParseFormat(cfg.Output.Format)
		if err != nil {
			return usageError("%w", err)
		}
		format = export.FormatForPath(b.flags.output, def)
	}

	var buf bytes.Buffer
	if err := export.Encode(&buf, doc, format); err != nil {
		return &compiler.Error{Kind: compiler.KindIO, Path: b.flags.output, Err: err}
	}
	if cfg.Output.Validate && format == export.FormatJSON {
		if err := export.ValidateJSON(buf.Bytes()); err != nil {
			return &compiler.Error{Kind: compiler.KindIO, Path: doc.Source, Err: err}
		}
	}

	if out := b.flags.output; out != "" {
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			return &compiler.Error{Kind: compiler.KindIO, Path: out, Err: fmt.Errorf("ensure out dir: %w", err)}
		}
		if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
			return &compiler.Error{Kind: compiler.KindIO, Path: out, Err: fmt.Errorf("write output: %w", err)}
		}
	} else if _, err := b.stdout.Write(buf.Bytes()); err != nil {
		return &compiler.Error{Kind: compiler.KindIO, Path: "<stdout>", Err: err}
	}

	if p := b.flags.proof; p != "" {
		opt := export.PDFOptions{PageSize: cfg.Output.PageSize}
		if err := export.WriteProofFile(p, doc, opt); err != nil {
			return &compiler.Error{Kind: compiler.KindIO, Path: p, Err: err}
		}
	}
	return nil
}
