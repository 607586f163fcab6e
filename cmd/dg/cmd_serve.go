/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"io"

	"github.com/spf13/cobra"

	"dialogical/internal/compiler"
	applog "dialogical/internal/log"
	"dialogical/internal/server"
)

func newServeCmd(f *rootFlags, stderr io.Writer) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP compile service",
		Long: `Serve POST /compile, GET /healthz and GET /version.

The request body of /compile is the script source. Add ?format=yaml for a
YAML response and ?path=name to label errors.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(f.configPath, f.silent, stderr)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()
			a.openCache(ctx)

			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			l := applog.WithComponent("server")
			srv := server.New(server.Options{
				Compile:      a.compilerOptions(),
				MaxBodyBytes: a.cfg.Server.MaxBodyBytes,
				Validate:     a.cfg.Output.Validate,
				Logger:       l,
			})
			if err := server.ListenAndServe(ctx, addr, srv, l); err != nil {
				return &compiler.Error{Kind: compiler.KindIO, Path: addr, Err: err}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, :8420)")
	return cmd
}
