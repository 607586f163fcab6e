/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package grammar defines the page-level authoring grammar that sits above
// pagination: segment directives and the trailing ending block.
//
// Supported syntax:
//   - Directive: the first non-blank line of a page starts with "%"; the rest
//     of the line, trimmed, is the segment ID ("%Interaction", "% Intro").
//   - Choice:  "> label"   adds a choice.
//   - Goto:    "@ target"  continues with another segment.
//   - Call:    "$ name"    hands control to a runtime function.
//
// Goto/Call lines directly after a choice set that choice's target; without a
// preceding choice they set the segment exit. The first ending line of a page
// opens the ending block and only ending lines (or blank lines) may follow it.
package grammar

import (
	"strings"

	"dialogical/internal/domain"
	"dialogical/internal/script"
)

const (
	DirectivePrefix = "%"
	ChoicePrefix    = "> "
	GotoPrefix      = "@ "
	CallPrefix      = "$ "
)

// LineKind classifies a page line for the ending grammar.
type LineKind int

const (
	LineText LineKind = iota
	LineChoice
	LineGoto
	LineCall
)

// Ending is the parsed trailing block of a page.
type Ending struct {
	Choices []domain.Choice
	Exit    *domain.Target
}

// Empty reports whether no ending was declared.
func (e Ending) Empty() bool { return len(e.Choices) == 0 && e.Exit == nil }

// ParseDirective reports whether line is a segment directive and returns its ID.
// The ID may be empty; callers decide whether that is an error.
func ParseDirective(line string) (string, bool) {
	if !strings.HasPrefix(line, DirectivePrefix) {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(line, DirectivePrefix)), true
}

// FirstContentLine returns the index of the first non-blank line, or -1.
func FirstContentLine(lines []string) int {
	for i, l := range lines {
		if !domain.IsBlank(l) {
			return i
		}
	}
	return -1
}

// Classify returns the kind of line and its trimmed argument.
// Leading indentation is ignored; the terminator is stripped.
func Classify(line string) (LineKind, string) {
	s := strings.TrimLeft(strings.TrimRight(line, "\r\n"), " \t")
	switch {
	case strings.HasPrefix(s, ChoicePrefix):
		return LineChoice, strings.TrimSpace(s[len(ChoicePrefix):])
	case strings.HasPrefix(s, GotoPrefix):
		return LineGoto, strings.TrimSpace(s[len(GotoPrefix):])
	case strings.HasPrefix(s, CallPrefix):
		return LineCall, strings.TrimSpace(s[len(CallPrefix):])
	}
	return LineText, s
}

// ParseEnding splits a page's lines into dialogue body and ending block.
// firstLine is the 1-based source line of lines[0]; errors point at the
// offending line.
func ParseEnding(lines []string, firstLine int) ([]string, Ending, error) {
	start := -1
	for i, l := range lines {
		if k, _ := Classify(l); k != LineText {
			start = i
			break
		}
	}
	if start < 0 {
		return lines, Ending{}, nil
	}

	var end Ending
	for i := start; i < len(lines); i++ {
		l := lines[i]
		if domain.IsBlank(l) {
			continue
		}
		ln := firstLine + i
		kind, val := Classify(l)
		switch kind {
		case LineText:
			return nil, Ending{}, script.Errorf(ln, "dialogue text %q after ending block", val)
		case LineChoice:
			if end.Exit != nil {
				return nil, Ending{}, script.Errorf(ln, "choice %q after exit %s %q", val, end.Exit.Kind, end.Exit.Name)
			}
			if val == "" {
				return nil, Ending{}, script.Errorf(ln, "empty choice label")
			}
			end.Choices = append(end.Choices, domain.Choice{Label: val})
		case LineGoto, LineCall:
			if val == "" {
				return nil, Ending{}, script.Errorf(ln, "empty target")
			}
			t := &domain.Target{Kind: domain.TargetGoto, Name: val}
			if kind == LineCall {
				t.Kind = domain.TargetCall
			}
			if n := len(end.Choices); n > 0 {
				last := &end.Choices[n-1]
				if last.Target != nil {
					return nil, Ending{}, script.Errorf(ln, "choice %q already has a target", last.Label)
				}
				last.Target = t
				continue
			}
			if end.Exit != nil {
				return nil, Ending{}, script.Errorf(ln, "segment already exits via %s %q", end.Exit.Kind, end.Exit.Name)
			}
			end.Exit = t
		}
	}
	return lines[:start], end, nil
}
