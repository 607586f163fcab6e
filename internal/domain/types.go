/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany..
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

import "strings"

// This file defines the data model produced by the dialogue compiler.
// A Document is built once per source file and handed to an output writer whole;
// nothing outside the pipeline keeps references into it.

// Document is the ordered sequence of segments compiled from one source file.
type Document struct {
	Source   string    `json:"source,omitempty" yaml:"source,omitempty"`
	Segments []Segment `json:"segments" yaml:"segments"`
}

// Segment is a directive-bounded group of pages, optionally terminated by
// choices or by a single exit target. It always holds at least one page.
type Segment struct {
	ID      string   `json:"id" yaml:"id"`
	Line    int      `json:"line" yaml:"line"` // 1-based source line of the directive (or first page)
	Pages   []Page   `json:"pages" yaml:"pages"`
	Choices []Choice `json:"choices,omitempty" yaml:"choices,omitempty"`
	Exit    *Target  `json:"exit,omitempty" yaml:"exit,omitempty"`
}

// Page is one atomic unit of dialogue display: the raw source lines between two
// delimiters, terminators included. A page always has at least one non-blank line.
type Page struct {
	Lines []string  `json:"lines" yaml:"lines"`
	Line  int       `json:"line" yaml:"line"` // 1-based source line of Lines[0]
	Meta  *PageMeta `json:"meta,omitempty" yaml:"meta,omitempty"`
}

// Choice is one entry of a segment's trailing choice block.
type Choice struct {
	Label  string  `json:"label" yaml:"label"`
	Target *Target `json:"target,omitempty" yaml:"target,omitempty"`
}

// TargetKind tells the runtime how to interpret a Target name.
type TargetKind string

const (
	// TargetGoto names another segment to continue with.
	TargetGoto TargetKind = "goto"
	// TargetCall names a runtime function; what it does is up to the game.
	TargetCall TargetKind = "call"
)

// Target is where dialogue continues after a choice or at the end of a segment.
type Target struct {
	Kind TargetKind `json:"kind" yaml:"kind"`
	Name string     `json:"name" yaml:"name"`
}

// Text returns the page content as a single string.
func (p Page) Text() string { return strings.Join(p.Lines, "") }

// Ended reports whether the segment carries an ending (choices or exit).
func (s Segment) Ended() bool { return len(s.Choices) > 0 || s.Exit != nil }

// IsBlank reports whether a raw line is empty or whitespace-only.
func IsBlank(line string) bool { return strings.TrimSpace(line) == "" }

// AllBlank reports whether every line is blank (true for an empty slice).
func AllBlank(lines []string) bool {
	for _, l := range lines {
		if !IsBlank(l) {
			return false
		}
	}
	return true
}

// Segment looks up a segment by ID.
func (d *Document) Segment(id string) (Segment, bool) {
	for _, s := range d.Segments {
		if s.ID == id {
			return s, true
		}
	}
	return Segment{}, false
}

// PageCount returns the number of pages across all segments.
func (d *Document) PageCount() int {
	n := 0
	for _, s := range d.Segments {
		n += len(s.Pages)
	}
	return n
}
