/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package comptime

import (
	"sort"
	"strings"

	"dialogical/internal/domain"
)

// Engine executes script source against an Env. Implementations must not keep
// state between calls.
type Engine interface {
	Run(source string, env *Env) error
}

// Language tags understood by the fence parser. An untagged block uses LangCommand.
const (
	LangCommand = "dg"
	LangLua     = "lua"
)

var builtinEngines = map[string]Engine{
	LangCommand: CommandEngine{},
	LangLua:     LuaEngine{},
}

// Lookup returns the built-in engine for lang.
func Lookup(lang string) (Engine, bool) {
	e, ok := builtinEngines[normalizeLang(lang)]
	return e, ok
}

// Languages lists the built-in language tags.
func Languages() []string {
	out := make([]string, 0, len(builtinEngines))
	for k := range builtinEngines {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func normalizeLang(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang == "" {
		return LangCommand
	}
	return lang
}

const (
	commentPrefix   = "//"
	maxExecuteDepth = 8
)

// CommandEngine runs the line-oriented command language:
//
//	Echo <text>        emit text as a dialogue line
//	Log <text>         write to the build log
//	Quit               stop the script
//	Execute <path>     run another command file in the same Env
//	Import <path>      run another command file, keeping its links but not its output
//	Link <KEY> <value> associate the metadata lines that follow, up to a blank
//	                   line, with the pair KEY value
//	Unlink <KEY> <value>
//	                   remove the listed associations, or all of them
//	// comment
type CommandEngine struct{}

func (c CommandEngine) Run(source string, env *Env) error {
	lines := strings.Split(source, "\n")
	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" || strings.HasPrefix(line, commentPrefix) {
			continue
		}
		if err := env.Step(); err != nil {
			return err
		}
		fields := strings.Fields(line)
		arg := strings.Join(fields[1:], " ")
		switch fields[0] {
		case "Echo":
			if err := env.Emit(arg); err != nil {
				return err
			}
		case "Log":
			env.Log(arg)
		case "Quit":
			return nil
		case "Execute", "Import":
			if err := c.include(fields[0], arg, env); err != nil {
				return err
			}
		case "Link", "Unlink":
			link, n, err := parseLink(fields, lines[i+1:], env)
			if err != nil {
				return err
			}
			env.Link(link)
			i += n
		default:
			return faultf("no such command %q", fields[0])
		}
	}
	return nil
}

func (c CommandEngine) include(cmd, name string, env *Env) error {
	if name == "" {
		return faultf("%s needs a path", cmd)
	}
	if env.depth >= maxExecuteDepth {
		return faultf("%s nested deeper than %d", cmd, maxExecuteDepth)
	}
	b, err := env.ReadFile(name)
	if err != nil {
		return err
	}
	mark := len(env.out)
	env.depth++
	err = c.Run(string(b), env)
	env.depth--
	if cmd == "Import" {
		env.out = env.out[:mark]
	}
	return err
}

// parseLink reads a Link or Unlink command and its body. It returns the link
// and the number of body lines consumed.
func parseLink(fields, rest []string, env *Env) (domain.Link, int, error) {
	if len(fields) < 2 {
		return domain.Link{}, 0, faultf("%s needs a key", fields[0])
	}
	link := domain.Link{
		Trigger: domain.MetaPair{Key: fields[1], Value: strings.Join(fields[2:], " ")},
		Unlink:  fields[0] == "Unlink",
	}
	n := 0
	for ; n < len(rest); n++ {
		body := strings.TrimSpace(rest[n])
		if body == "" {
			break
		}
		if strings.HasPrefix(body, commentPrefix) {
			continue
		}
		if err := env.Step(); err != nil {
			return domain.Link{}, 0, err
		}
		f := strings.Fields(body)
		if f[0] == "Link" || f[0] == "Unlink" {
			return domain.Link{}, 0, faultf("%s inside the body of %s %s", f[0], fields[0], fields[1])
		}
		link.Pairs = append(link.Pairs, domain.MetaPair{Key: f[0], Value: strings.Join(f[1:], " ")})
	}
	return link, n, nil
}
