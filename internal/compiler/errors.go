/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package compiler drives the pipeline from dialogue source text to a Document:
// comptime resolution, pagination, segment assembly and document building.
package compiler

import (
	"errors"
	"fmt"

	"dialogical/internal/comptime"
	"dialogical/internal/script"
)

// Kind classifies a failed compilation.
type Kind int

const (
	KindUsage Kind = iota + 1
	KindIO
	KindParse
	KindComptime
)

func (k Kind) String() string {
	switch k {
	case KindUsage:
		return "usage"
	case KindIO:
		return "io"
	case KindParse:
		return "parse"
	case KindComptime:
		return "comptime"
	}
	return "unknown"
}

// ParseKind is the inverse of Kind.String; unknown names yield 0.
func ParseKind(s string) Kind {
	for k := KindUsage; k <= KindComptime; k++ {
		if k.String() == s {
			return k
		}
	}
	return 0
}

// ExitCode is the process exit status the CLI uses for this kind.
func (k Kind) ExitCode() int {
	switch k {
	case KindUsage:
		return 1
	case KindIO:
		return 2
	case KindParse:
		return 3
	case KindComptime:
		return 4
	}
	return 1
}

// Error is the single structured error reported for a failed file.
type Error struct {
	Kind Kind
	Path string
	Line int
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Path != "" && e.Line > 0:
		return fmt.Sprintf("%s:%d: %s error: %v", e.Path, e.Line, e.Kind, e.Message())
	case e.Path != "":
		return fmt.Sprintf("%s: %s error: %v", e.Path, e.Kind, e.Message())
	case e.Line > 0:
		return fmt.Sprintf("line %d: %s error: %v", e.Line, e.Kind, e.Message())
	}
	return fmt.Sprintf("%s error: %v", e.Kind, e.Message())
}

func (e *Error) Unwrap() error { return e.Err }

// Message is the underlying error text without the position Error prints.
func (e *Error) Message() string {
	var perr *script.Error
	if errors.As(e.Err, &perr) {
		return perr.Message
	}
	var cerr *comptime.Error
	if errors.As(e.Err, &cerr) {
		return cerr.Err.Error()
	}
	return e.Err.Error()
}

// KindOf returns the kind of err, or 0 when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// classify wraps a pipeline error. origin maps resolved lines to source lines
// and may be nil.
func classify(path string, err error, origin []int) error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return err
	}
	var perr *script.Error
	if errors.As(err, &perr) {
		return &Error{Kind: KindParse, Path: path, Line: mapLine(origin, perr.Line), Err: err}
	}
	var cerr *comptime.Error
	if errors.As(err, &cerr) {
		return &Error{Kind: KindComptime, Path: path, Line: cerr.Location.Line, Err: err}
	}
	return &Error{Kind: KindIO, Path: path, Err: err}
}

func mapLine(origin []int, line int) int {
	if origin == nil || line < 1 {
		return line
	}
	if line > len(origin) {
		if len(origin) == 0 {
			return line
		}
		return origin[len(origin)-1] + line - len(origin)
	}
	return origin[line-1]
}
