/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package assemble

import (
	"errors"
	"strings"
	"testing"

	"dialogical/internal/domain"
	"dialogical/internal/script"

	"github.com/google/go-cmp/cmp"
)

const rodrick = `%RodrickSign
---
NAME Rodrick Sign Co.
VOX Default

So... you're reading a sign, eh?
---
Are you smart?

> Nope
@ RodrickSign_Nope
> Definitely not
@ RodrickSign_DefNot
---
%RodrickSign_Nope
---
Yeah, I didn't think so.

@ RodrickSign_Exit
---
%RodrickSign_Exit
---
Come back when you're smart.

$ Exit
`

func assemble(t *testing.T, src string) ([]domain.Segment, error) {
	t.Helper()
	return Assemble(script.Paginate(script.SplitLines(src)))
}

func TestAssembleRodrickSign(t *testing.T) {
	segs, err := assemble(t, rodrick)
	if err != nil {
		t.Fatalf("Assemble error: %v", err)
	}
	if len(segs) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(segs))
	}
	first := segs[0]
	if first.ID != "RodrickSign" || first.Line != 1 || len(first.Pages) != 2 {
		t.Fatalf("unexpected first segment: %+v", first)
	}
	if diff := cmp.Diff([]string{"Are you smart?\n", "\n"}, first.Pages[1].Lines); diff != "" {
		t.Fatalf("choice lines must be stripped from the page:\n%s", diff)
	}
	wantChoices := []domain.Choice{
		{Label: "Nope", Target: &domain.Target{Kind: domain.TargetGoto, Name: "RodrickSign_Nope"}},
		{Label: "Definitely not", Target: &domain.Target{Kind: domain.TargetGoto, Name: "RodrickSign_DefNot"}},
	}
	if diff := cmp.Diff(wantChoices, first.Choices); diff != "" {
		t.Fatalf("choices mismatch:\n%s", diff)
	}
	if segs[1].Exit == nil || segs[1].Exit.Name != "RodrickSign_Exit" {
		t.Fatalf("expected goto exit on second segment, got %+v", segs[1].Exit)
	}
	if ex := segs[2].Exit; ex == nil || ex.Kind != domain.TargetCall || ex.Name != "Exit" {
		t.Fatalf("expected call exit on last segment, got %+v", ex)
	}
}

func TestAssembleDirectivePageWithInlineContent(t *testing.T) {
	segs, err := assemble(t, "%Intro\nNAME Siva\n\nHello\n---\nBye\n")
	if err != nil {
		t.Fatalf("Assemble error: %v", err)
	}
	if len(segs) != 1 || len(segs[0].Pages) != 2 {
		t.Fatalf("unexpected segments: %+v", segs)
	}
	p := segs[0].Pages[0]
	if p.Line != 2 || p.Lines[0] != "NAME Siva\n" {
		t.Fatalf("inline page should start after the directive line: %+v", p)
	}
}

func TestAssembleImplicitSegment(t *testing.T) {
	segs, err := assemble(t, "Hi there\n---\nStill here\n---\n%Named\n---\nNamed page\n")
	if err != nil {
		t.Fatalf("Assemble error: %v", err)
	}
	if len(segs) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segs))
	}
	if segs[0].ID != "" || len(segs[0].Pages) != 2 {
		t.Fatalf("unexpected implicit segment: %+v", segs[0])
	}
	if segs[1].ID != "Named" || len(segs[1].Pages) != 1 {
		t.Fatalf("unexpected named segment: %+v", segs[1])
	}
}

func TestAssembleInteraction(t *testing.T) {
	src := "---\n%Interaction\n\n---\nNAME Deez\nVOX Deez\n\nWhen the words are sus\n"
	segs, err := assemble(t, src)
	if err != nil {
		t.Fatalf("Assemble error: %v", err)
	}
	if len(segs) != 1 || segs[0].ID != "Interaction" || len(segs[0].Pages) != 1 {
		t.Fatalf("unexpected segments: %+v", segs)
	}
}

func TestAssembleDirectiveAfterLeadingBlankLines(t *testing.T) {
	segs, err := assemble(t, "---\n\n  \n%Interaction\nHello\n---\nBye\n")
	if err != nil {
		t.Fatalf("Assemble error: %v", err)
	}
	if len(segs) != 1 || segs[0].ID != "Interaction" || segs[0].Line != 4 {
		t.Fatalf("unexpected segments: %+v", segs)
	}
	want := []domain.Page{
		{Lines: []string{"Hello\n"}, Line: 5},
		{Lines: []string{"Bye\n"}, Line: 7},
	}
	if diff := cmp.Diff(want, segs[0].Pages); diff != "" {
		t.Fatalf("pages mismatch (-want +got):\n%s", diff)
	}

	// Anything but blank lines before the directive makes it dialogue text.
	segs, err = assemble(t, "Hi\n%Interaction\n")
	if err != nil {
		t.Fatalf("Assemble error: %v", err)
	}
	if len(segs) != 1 || segs[0].ID != "" {
		t.Fatalf("directive after text must not open a segment: %+v", segs)
	}
}

func TestAssembleErrors(t *testing.T) {
	cases := []struct {
		name string
		src  string
		line int
		msg  string
	}{
		{"page after ending", "%A\n---\nhi\n> go\n---\nmore\n", 6, "page after the ending"},
		{"duplicate id", "%A\n---\nx\n---\n%A\n---\ny\n", 5, "duplicate segment"},
		{"empty segment", "%A\n---\n%B\n---\nx\n", 1, "has no pages"},
		{"empty segment at end", "%A\n---\nx\n---\n%B\n", 5, "has no pages"},
		{"missing id", "%   \n---\nx\n", 1, "without an ID"},
		{"choices only", "%A\n---\n> a\n", 1, "has no pages"},
	}
	for _, c := range cases {
		_, err := assemble(t, c.src)
		var perr *script.Error
		if !errors.As(err, &perr) {
			t.Fatalf("%s: expected *script.Error, got %v", c.name, err)
		}
		if perr.Line != c.line || !strings.Contains(perr.Message, c.msg) {
			t.Fatalf("%s: got line %d %q, want line %d containing %q", c.name, perr.Line, perr.Message, c.line, c.msg)
		}
	}
}

func TestAssembleEmpty(t *testing.T) {
	segs, err := Assemble(nil)
	if err != nil || len(segs) != 0 {
		t.Fatalf("expected no segments, got %v %v", segs, err)
	}
}
