/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package grammar

import (
	"fmt"
	"slices"
	"strings"

	"dialogical/internal/domain"
	"dialogical/internal/script"
)

// Metadata keys. A page whose first non-blank line starts with one of them
// opens with a metadata header that runs until the next blank line:
//
//	NAME <speaker>   named speaker
//	NARRATOR         the narrator speaks
//	SOMEONE          an unknown speaker
//	VOX <voice>      voice for the page
//
// Prefixing a line with "PageOnly" limits the change to that page.
const (
	KeyName     = "NAME"
	KeyVox      = "VOX"
	KeyNarrator = "NARRATOR"
	KeySomeone  = "SOMEONE"
	KeyPageOnly = "PageOnly"
)

// IsMetaLine reports whether line starts with a metadata key.
func IsMetaLine(line string) bool {
	key, _ := splitKey(line)
	switch key {
	case KeyName, KeyVox, KeyNarrator, KeySomeone, KeyPageOnly:
		return true
	}
	return false
}

// ParseMetaPair splits a metadata line into its pair and PageOnly flag.
func ParseMetaPair(line string) (domain.MetaPair, bool, error) {
	key, val := splitKey(line)
	pageOnly := false
	if key == KeyPageOnly {
		pageOnly = true
		key, val = splitKey(val)
	}
	p := domain.MetaPair{Key: key, Value: val}
	switch key {
	case KeyName, KeyVox:
		if val == "" {
			return p, pageOnly, fmt.Errorf("%s needs a value", key)
		}
	case KeyNarrator, KeySomeone:
		if val != "" {
			return p, pageOnly, fmt.Errorf("%s takes no value", key)
		}
	case "":
		return p, pageOnly, fmt.Errorf("missing key")
	default:
		return p, pageOnly, fmt.Errorf("unknown key %q", key)
	}
	return p, pageOnly, nil
}

// ApplyMeta records pair on m.
func ApplyMeta(m *domain.PageMeta, p domain.MetaPair, pageOnly bool) error {
	switch p.Key {
	case KeyName:
		m.Speaker = &domain.Speaker{Kind: domain.SpeakerNamed, Name: p.Value, PageOnly: pageOnly}
	case KeyNarrator:
		m.Speaker = &domain.Speaker{Kind: domain.SpeakerNarrator, PageOnly: pageOnly}
	case KeySomeone:
		m.Speaker = &domain.Speaker{Kind: domain.SpeakerUnknown, PageOnly: pageOnly}
	case KeyVox:
		m.Vox = &domain.Vox{Name: p.Value, PageOnly: pageOnly}
	default:
		return fmt.Errorf("unknown key %q", p.Key)
	}
	return nil
}

func splitKey(line string) (string, string) {
	s := strings.TrimSpace(line)
	key, rest, _ := strings.Cut(s, " ")
	if i := strings.IndexByte(key, '\t'); i >= 0 {
		key, rest = s[:i], s[i+1:]
	}
	return key, strings.TrimSpace(rest)
}

// Links tracks the metadata associations in effect.
type Links map[domain.MetaPair][]domain.MetaPair

// Apply adds or removes the associations of l.
func (s Links) Apply(l domain.Link) {
	if l.Unlink {
		if len(l.Pairs) == 0 {
			delete(s, l.Trigger)
			return
		}
		kept := slices.DeleteFunc(s[l.Trigger], func(p domain.MetaPair) bool {
			return slices.Contains(l.Pairs, p)
		})
		if len(kept) == 0 {
			delete(s, l.Trigger)
			return
		}
		s[l.Trigger] = kept
		return
	}
	for _, p := range l.Pairs {
		if !slices.Contains(s[l.Trigger], p) {
			s[l.Trigger] = append(s[l.Trigger], p)
		}
	}
}

// Annotate parses the metadata header of every page, in reading order, into
// Page.Meta. Page lines are expected to carry resolved line numbers; links
// take effect for header lines after their After position. Pairs linked to a
// header line are applied right after it, with its PageOnly flag.
func Annotate(segments []domain.Segment, links []domain.Link) error {
	active := Links{}
	next := 0
	for si := range segments {
		pages := segments[si].Pages
		for pi := range pages {
			p := &pages[pi]
			first := FirstContentLine(p.Lines)
			if first < 0 || !IsMetaLine(p.Lines[first]) {
				continue
			}
			meta := &domain.PageMeta{}
			for i := first; i < len(p.Lines) && !domain.IsBlank(p.Lines[i]); i++ {
				ln := p.Line + i
				for ; next < len(links) && links[next].After < ln; next++ {
					active.Apply(links[next])
				}
				pair, pageOnly, err := ParseMetaPair(p.Lines[i])
				if err == nil {
					err = ApplyMeta(meta, pair, pageOnly)
				}
				for _, extra := range active[pair] {
					if err != nil {
						break
					}
					err = ApplyMeta(meta, extra, pageOnly)
				}
				if err != nil {
					return script.Errorf(ln, "invalid metadata line %q: %v", strings.TrimSpace(p.Lines[i]), err)
				}
			}
			p.Meta = meta
		}
	}
	return nil
}
