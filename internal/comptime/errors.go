/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package comptime finds build-time script blocks in dialogue source, runs each
// one in an isolated environment and splices the emitted lines back in place.
package comptime

import (
	"errors"
	"fmt"
)

// Failure classes. An *Error always wraps exactly one of these.
var (
	ErrFault      = errors.New("script fault")
	ErrBudget     = errors.New("resource budget exceeded")
	ErrTimeout    = errors.New("script timed out")
	ErrNoOutput   = errors.New("script produced no output")
	ErrCapability = errors.New("capability not granted")
)

// Location identifies a script by source path and the line of its opening fence.
type Location struct {
	Path string
	Line int
}

func (l Location) String() string {
	if l.Path == "" {
		return fmt.Sprintf("line %d", l.Line)
	}
	return fmt.Sprintf("%s:%d", l.Path, l.Line)
}

// Error reports a failed script execution.
type Error struct {
	Location Location
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: comptime: %v", e.Location, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func faultf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrFault, fmt.Sprintf(format, args...))
}
