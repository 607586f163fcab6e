/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package assemble groups paginated pages into segments.
package assemble

import (
	"dialogical/internal/domain"
	"dialogical/internal/grammar"
	"dialogical/internal/script"
)

// Assemble groups pages into segments in source order.
//   - A directive page opens a new segment; the lines after the directive line,
//     if any are non-blank, become the segment's first page.
//   - Pages before the first directive go to an implicit segment with an empty ID.
//   - A trailing ending block on a page becomes the segment's choices or exit;
//     no further page may follow it in the same segment.
//
// Errors are *script.Error values positioned at the offending line.
func Assemble(pages []domain.Page) ([]domain.Segment, error) {
	var segs []domain.Segment
	var cur *domain.Segment
	seen := make(map[string]int)

	closeCurrent := func() error {
		if cur == nil {
			return nil
		}
		if len(cur.Pages) == 0 {
			return script.Errorf(cur.Line, "segment %q has no pages", cur.ID)
		}
		segs = append(segs, *cur)
		cur = nil
		return nil
	}

	for _, p := range pages {
		first := grammar.FirstContentLine(p.Lines)
		if first < 0 {
			continue
		}
		lines := p.Lines
		start := p.Line

		if id, ok := grammar.ParseDirective(p.Lines[first]); ok {
			ln := p.Line + first
			if id == "" {
				return nil, script.Errorf(ln, "segment directive without an ID")
			}
			if prev, dup := seen[id]; dup {
				return nil, script.Errorf(ln, "duplicate segment %q (first declared on line %d)", id, prev)
			}
			if err := closeCurrent(); err != nil {
				return nil, err
			}
			seen[id] = ln
			cur = &domain.Segment{ID: id, Line: ln}
			lines = p.Lines[first+1:]
			start = ln + 1
			if domain.AllBlank(lines) {
				continue
			}
		}

		if cur == nil {
			cur = &domain.Segment{Line: p.Line}
		}
		if cur.Ended() {
			return nil, script.Errorf(start, "page after the ending of segment %q", cur.ID)
		}

		body, end, err := grammar.ParseEnding(lines, start)
		if err != nil {
			return nil, err
		}
		if !domain.AllBlank(body) {
			cur.Pages = append(cur.Pages, domain.Page{
				Lines: append([]string(nil), body...),
				Line:  start,
			})
		}
		cur.Choices = end.Choices
		cur.Exit = end.Exit
	}
	if err := closeCurrent(); err != nil {
		return nil, err
	}
	return segs, nil
}
