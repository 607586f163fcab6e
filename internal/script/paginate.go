/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import (
	"strings"

	"dialogical/internal/domain"
)

// SplitLines splits text into lines, keeping every line's terminator.
// The last line has no terminator when text does not end in "\n".
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.SplitAfter(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// Paginate splits lines into pages at every line that is exactly Delimiter.
// Syntax:
//   - A delimiter closes the current buffer; the buffer becomes a Page only if
//     it holds at least one non-blank line, otherwise it is dropped.
//   - End of input closes the last buffer the same way.
//
// Lines are never trimmed or rewritten; each Page records the 1-based index of
// its first line within lines.
func Paginate(lines []string) []domain.Page {
	var pages []domain.Page
	buf := make([]string, 0, 16)
	start := 0

	flush := func(next int) {
		if !domain.AllBlank(buf) {
			pages = append(pages, domain.Page{
				Lines: append([]string(nil), buf...),
				Line:  start + 1,
			})
		}
		buf = buf[:0]
		start = next
	}

	for i, line := range lines {
		if line == Delimiter {
			flush(i + 1)
			continue
		}
		buf = append(buf, line)
	}
	flush(len(lines))
	return pages
}

// Join serializes pages back to source text, writing Delimiter between pages.
// Pages other than the last are expected to end in a terminated line.
func Join(pages []domain.Page) string {
	var b strings.Builder
	for i, p := range pages {
		if i > 0 {
			b.WriteString(Delimiter)
		}
		for _, l := range p.Lines {
			b.WriteString(l)
		}
	}
	return b.String()
}
