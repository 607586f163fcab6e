/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany..
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

// SpeakerKind classifies who speaks a page.
type SpeakerKind string

const (
	SpeakerNamed    SpeakerKind = "named"
	SpeakerNarrator SpeakerKind = "narrator"
	SpeakerUnknown  SpeakerKind = "unknown"
)

// PageMeta is the metadata header of a page. A nil field means the page does
// not change that value.
type PageMeta struct {
	Speaker *Speaker `json:"speaker,omitempty" yaml:"speaker,omitempty"`
	Vox     *Vox     `json:"vox,omitempty" yaml:"vox,omitempty"`
}

// Speaker is a speaker change. A PageOnly change applies to its own page and
// leaves the speaker of later pages alone.
type Speaker struct {
	Kind     SpeakerKind `json:"kind" yaml:"kind"`
	Name     string      `json:"name,omitempty" yaml:"name,omitempty"`
	PageOnly bool        `json:"page_only,omitempty" yaml:"page_only,omitempty"`
}

// Vox is a voice change, with the same PageOnly rule as Speaker.
type Vox struct {
	Name     string `json:"name" yaml:"name"`
	PageOnly bool   `json:"page_only,omitempty" yaml:"page_only,omitempty"`
}

// MetaPair is one "KEY value" metadata line.
type MetaPair struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

// Link associates extra metadata with a trigger pair: wherever the trigger
// appears as a metadata line, Pairs are applied as well. An Unlink link removes
// the listed associations, or all of them when Pairs is empty.
// After is the number of resolved lines that precede the link's block.
type Link struct {
	After   int        `json:"after" yaml:"after"`
	Trigger MetaPair   `json:"trigger" yaml:"trigger"`
	Pairs   []MetaPair `json:"pairs,omitempty" yaml:"pairs,omitempty"`
	Unlink  bool       `json:"unlink,omitempty" yaml:"unlink,omitempty"`
}

// Voice is the speaker and vox in effect for one page.
type Voice struct {
	Speaker Speaker
	Vox     string
}

// Label renders the voice for proofs, e.g. "Mira (vox calm)".
func (v Voice) Label() string {
	var s string
	switch v.Speaker.Kind {
	case SpeakerNamed:
		s = v.Speaker.Name
	case SpeakerUnknown:
		s = "???"
	default:
		s = "Narrator"
	}
	if v.Vox != "" {
		s += " (vox " + v.Vox + ")"
	}
	return s
}

// VoiceTracker follows page metadata in reading order. Permanent changes
// persist to later pages; page-only changes do not.
type VoiceTracker struct {
	speaker Speaker
	vox     string
}

// NewVoiceTracker starts with the narrator speaking and no vox.
func NewVoiceTracker() *VoiceTracker {
	return &VoiceTracker{speaker: Speaker{Kind: SpeakerNarrator}}
}

// Next returns the voice of a page carrying m and advances the tracker.
func (t *VoiceTracker) Next(m *PageMeta) Voice {
	v := Voice{Speaker: t.speaker, Vox: t.vox}
	if m == nil {
		return v
	}
	if sp := m.Speaker; sp != nil {
		v.Speaker = Speaker{Kind: sp.Kind, Name: sp.Name}
		if !sp.PageOnly {
			t.speaker = v.Speaker
		}
	}
	if vx := m.Vox; vx != nil {
		v.Vox = vx.Name
		if !vx.PageOnly {
			t.vox = vx.Name
		}
	}
	return v
}
