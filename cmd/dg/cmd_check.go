/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"dialogical/internal/compiler"
)

func newCheckCmd(f *rootFlags, stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "check <file>...",
		Short: "Compile files in parallel and report one line per file",
		Long: `Compile every file without writing output. Files compile in parallel
and a failure in one never stops the others. The exit status is that of
the most severe failure.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(f.configPath, f.silent, stderr)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()
			a.openCache(ctx)

			results := compiler.CompileBatch(ctx, args, a.compilerOptions())
			failed := 0
			for _, r := range results {
				if r.Err != nil {
					failed++
					fmt.Fprintf(stdout, "FAIL %v\n", r.Err)
					continue
				}
				fmt.Fprintf(stdout, "ok   %s: %s\n", r.Path, compiler.Summary(r.Doc))
			}
			a.log.Info("check finished", slog.Int("files", len(results)), slog.Int("failed", failed))
			if worst := compiler.WorstKind(results); worst != 0 {
				return &exitError{code: worst.ExitCode()}
			}
			return nil
		},
	}
}
