package grammar

import (
	"errors"
	"testing"

	"dialogical/internal/domain"
	"dialogical/internal/script"

	"github.com/google/go-cmp/cmp"
)

func TestParseDirective(t *testing.T) {
	cases := []struct {
		in    string
		id    string
		isDir bool
	}{
		{"%Interaction\n", "Interaction", true},
		{"% Rodrick Sign #1\n", "Rodrick Sign #1", true},
		{"%\n", "", true},
		{" %Indented\n", "", false},
		{"NAME Deez\n", "", false},
	}
	for _, c := range cases {
		id, ok := ParseDirective(c.in)
		if ok != c.isDir || id != c.id {
			t.Fatalf("ParseDirective(%q) = %q,%v want %q,%v", c.in, id, ok, c.id, c.isDir)
		}
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		in   string
		kind LineKind
		val  string
	}{
		{"> Nope\n", LineChoice, "Nope"},
		{"  @ RodrickSign_Exit\r\n", LineGoto, "RodrickSign_Exit"},
		{"$ Exit\n", LineCall, "Exit"},
		{">no space\n", LineText, ">no space"},
		{"Words go brrr\n", LineText, "Words go brrr"},
	}
	for _, c := range cases {
		k, v := Classify(c.in)
		if k != c.kind || v != c.val {
			t.Fatalf("Classify(%q) = %v,%q want %v,%q", c.in, k, v, c.kind, c.val)
		}
	}
}

func TestParseEndingChoicesWithTargets(t *testing.T) {
	lines := []string{
		"NAME Rodrick\n",
		"\n",
		"Are you smart?\n",
		"\n",
		"> Nope\n",
		"@ RodrickSign_Nope\n",
		"> Definitely not\n",
		"$ shrug\n",
		"> Maybe\n",
	}
	body, end, err := ParseEnding(lines, 10)
	if err != nil {
		t.Fatalf("ParseEnding error: %v", err)
	}
	if diff := cmp.Diff(lines[:4], body); diff != "" {
		t.Fatalf("body mismatch:\n%s", diff)
	}
	want := []domain.Choice{
		{Label: "Nope", Target: &domain.Target{Kind: domain.TargetGoto, Name: "RodrickSign_Nope"}},
		{Label: "Definitely not", Target: &domain.Target{Kind: domain.TargetCall, Name: "shrug"}},
		{Label: "Maybe"},
	}
	if diff := cmp.Diff(want, end.Choices); diff != "" {
		t.Fatalf("choices mismatch:\n%s", diff)
	}
	if end.Exit != nil {
		t.Fatalf("unexpected exit %+v", end.Exit)
	}
}

func TestParseEndingExit(t *testing.T) {
	body, end, err := ParseEnding([]string{"Come back when you're smart.\n", "$ Exit\n", "\n"}, 1)
	if err != nil {
		t.Fatalf("ParseEnding error: %v", err)
	}
	if len(body) != 1 || end.Exit == nil || end.Exit.Kind != domain.TargetCall || end.Exit.Name != "Exit" {
		t.Fatalf("unexpected result body=%q end=%+v", body, end)
	}
	if end.Empty() {
		t.Fatalf("ending should not be empty")
	}
}

func TestParseEndingNoBlock(t *testing.T) {
	lines := []string{"just talk\n"}
	body, end, err := ParseEnding(lines, 1)
	if err != nil || !end.Empty() || len(body) != 1 {
		t.Fatalf("unexpected: body=%q end=%+v err=%v", body, end, err)
	}
}

func TestParseEndingErrors(t *testing.T) {
	cases := []struct {
		name  string
		lines []string
		line  int
	}{
		{"text after block", []string{"> a\n", "oops\n"}, 6},
		{"double target", []string{"> a\n", "@ x\n", "@ y\n"}, 7},
		{"double exit", []string{"@ x\n", "$ y\n"}, 6},
		{"choice after exit", []string{"@ x\n", "> a\n"}, 6},
		{"empty label", []string{">   \n"}, 5},
		{"empty target", []string{"> a\n", "@  \n"}, 6},
	}
	for _, c := range cases {
		_, _, err := ParseEnding(c.lines, 5)
		var perr *script.Error
		if !errors.As(err, &perr) {
			t.Fatalf("%s: expected *script.Error, got %v", c.name, err)
		}
		if perr.Line != c.line {
			t.Fatalf("%s: error line = %d, want %d (%v)", c.name, perr.Line, c.line, err)
		}
	}
}

func TestFirstContentLine(t *testing.T) {
	if got := FirstContentLine([]string{"\n", " \n", "x\n"}); got != 2 {
		t.Fatalf("FirstContentLine = %d, want 2", got)
	}
	if got := FirstContentLine([]string{"\n"}); got != -1 {
		t.Fatalf("FirstContentLine = %d, want -1", got)
	}
}
