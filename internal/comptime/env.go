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
	"path"
	"strings"
	"time"

	"dialogical/internal/domain"
)

// Limits bounds a single script execution. Zero values disable a limit.
type Limits struct {
	MaxSteps       int
	Timeout        time.Duration
	MaxOutputLines int
	// MaxStringBytes caps the size of any single string a script builds.
	MaxStringBytes int
}

// DefaultLimits are used when the caller does not configure any.
func DefaultLimits() Limits {
	return Limits{
		MaxSteps:       1_000_000,
		Timeout:        2 * time.Second,
		MaxOutputLines: 10_000,
		MaxStringBytes: 16 << 20,
	}
}

// Env is the execution context of one script. A fresh Env is created for every
// block; nothing in it survives the block.
type Env struct {
	ctx    context.Context
	limits Limits
	fsys   fs.FS
	logger *slog.Logger

	out     []string
	links   []domain.Link
	steps   int
	depth   int
	tainted bool
	halt    error
}

// NewEnv returns an Env. fsys may be nil, in which case file access fails with
// ErrCapability.
func NewEnv(ctx context.Context, limits Limits, fsys fs.FS, logger *slog.Logger) *Env {
	if logger == nil {
		logger = slog.Default()
	}
	return &Env{ctx: ctx, limits: limits, fsys: fsys, logger: logger}
}

// Context returns the context the script runs under.
func (e *Env) Context() context.Context { return e.ctx }

// Emit appends text to the output. Embedded newlines split it into several
// lines; every stored line is "\n"-terminated.
func (e *Env) Emit(text string) error {
	parts := strings.Split(strings.TrimSuffix(text, "\n"), "\n")
	for _, p := range parts {
		if e.limits.MaxOutputLines > 0 && len(e.out) >= e.limits.MaxOutputLines {
			return e.stop(fmt.Errorf("%w: more than %d output lines", ErrBudget, e.limits.MaxOutputLines))
		}
		e.out = append(e.out, strings.TrimSuffix(p, "\r")+"\n")
	}
	return nil
}

// Log writes msg to the build log.
func (e *Env) Log(msg string) {
	e.logger.Info("comptime log", slog.String("msg", msg))
}

// Step charges one unit of work.
func (e *Env) Step() error { return e.Charge(1) }

// Charge charges n units of work and checks for cancellation.
func (e *Env) Charge(n int) error {
	if e.halt != nil {
		return e.halt
	}
	e.steps += n
	if e.limits.MaxSteps > 0 && e.steps > e.limits.MaxSteps {
		return e.stop(fmt.Errorf("%w: more than %d steps", ErrBudget, e.limits.MaxSteps))
	}
	if err := e.ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return e.stop(ErrTimeout)
		}
		return e.stop(err)
	}
	return nil
}

// ReadFile reads name from the granted filesystem. Using it marks the script
// as dependent on external state.
func (e *Env) ReadFile(name string) ([]byte, error) {
	if e.fsys == nil {
		return nil, e.stop(fmt.Errorf("%w: filesystem access to %q", ErrCapability, name))
	}
	name = path.Clean(strings.TrimPrefix(name, "./"))
	if !fs.ValidPath(name) {
		return nil, faultf("invalid path %q", name)
	}
	e.tainted = true
	b, err := fs.ReadFile(e.fsys, name)
	if err != nil {
		return nil, faultf("could not open file at path %s: %v", name, err)
	}
	return b, nil
}

// Link records a metadata association or its removal. Links take effect
// for metadata lines that follow the block.
func (e *Env) Link(l domain.Link) {
	e.links = append(e.links, l)
}

// Links returns the associations recorded so far, in order.
func (e *Env) Links() []domain.Link { return e.links }

// CheckString fails with ErrBudget when a string of n bytes would exceed
// MaxStringBytes.
func (e *Env) CheckString(n int) error {
	if e.limits.MaxStringBytes > 0 && n > e.limits.MaxStringBytes {
		return e.stop(fmt.Errorf("%w: string of %d bytes exceeds %d", ErrBudget, n, e.limits.MaxStringBytes))
	}
	return nil
}

// Output returns the lines emitted so far.
func (e *Env) Output() []string { return e.out }

// Steps returns the work charged so far.
func (e *Env) Steps() int { return e.steps }

// Tainted reports whether the script touched the filesystem.
func (e *Env) Tainted() bool { return e.tainted }

// Halted returns the error that stopped the script, if any.
func (e *Env) Halted() error { return e.halt }

func (e *Env) stop(err error) error {
	if e.halt == nil {
		e.halt = err
	}
	return e.halt
}
