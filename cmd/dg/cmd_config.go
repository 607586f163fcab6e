/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"dialogical/internal/compiler"
	"dialogical/internal/config"
)

func newConfigCmd(f *rootFlags, stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and manage configuration",
		Long: `Inspect and manage configuration.

Available subcommands:
  path               - Print the config file location
  show               - Print the effective configuration as YAML
  init               - Write the defaults to the config file
  set-cache-password - Store the Postgres cache password in the OS keyring`,
	}

	resolvePath := func() (string, error) {
		if f.configPath != "" {
			return f.configPath, nil
		}
		return config.ConfigPath()
	}

	pathCmd := &cobra.Command{
		Use:   "path",
		Short: "Print the config file location",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			p, err := resolvePath()
			if err != nil {
				return &compiler.Error{Kind: compiler.KindIO, Err: err}
			}
			fmt.Fprintln(stdout, p)
			return nil
		},
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			a, err := newApp(f.configPath, f.silent, stderr)
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(a.cfg)
			if err != nil {
				return err
			}
			_, err = stdout.Write(out)
			return err
		},
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the defaults to the config file",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			p, err := resolvePath()
			if err != nil {
				return &compiler.Error{Kind: compiler.KindIO, Err: err}
			}
			if err := config.Save(p, config.Defaults()); err != nil {
				return &compiler.Error{Kind: compiler.KindIO, Path: p, Err: err}
			}
			fmt.Fprintln(stdout, "wrote", p)
			return nil
		},
	}

	setPwCmd := &cobra.Command{
		Use:   "set-cache-password",
		Short: "Store the Postgres cache password in the OS keyring",
		Long: `Read the password from the first line of standard input and store it in
the OS keyring. An empty line removes the stored password.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			line, err := bufio.NewReader(stdin).ReadString('\n')
			if err != nil && err != io.EOF {
				return &compiler.Error{Kind: compiler.KindIO, Path: "<stdin>", Err: err}
			}
			pw := strings.TrimRight(line, "\r\n")
			if err := config.SetCachePassword(pw); err != nil {
				return &compiler.Error{Kind: compiler.KindIO, Err: fmt.Errorf("keyring: %w", err)}
			}
			if pw == "" {
				fmt.Fprintln(stdout, "cache password removed")
			} else {
				fmt.Fprintln(stdout, "cache password stored")
			}
			return nil
		},
	}

	cmd.AddCommand(pathCmd, showCmd, initCmd, setPwCmd)
	return cmd
}
