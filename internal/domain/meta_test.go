package domain

import "testing"

func TestVoiceTrackerPageOnly(t *testing.T) {
	tr := NewVoiceTracker()
	pages := []*PageMeta{
		{Speaker: &Speaker{Kind: SpeakerNamed, Name: "Mira"}, Vox: &Vox{Name: "calm"}},
		{Vox: &Vox{Name: "Ethan", PageOnly: true}},
		nil,
		{Speaker: &Speaker{Kind: SpeakerNarrator, PageOnly: true}},
		{},
	}
	want := []string{
		"Mira (vox calm)",
		"Mira (vox Ethan)",
		"Mira (vox calm)",
		"Narrator (vox calm)",
		"Mira (vox calm)",
	}
	for i, m := range pages {
		if got := tr.Next(m).Label(); got != want[i] {
			t.Fatalf("page %d voice = %q, want %q", i+1, got, want[i])
		}
	}
}

func TestVoiceDefaults(t *testing.T) {
	if got := NewVoiceTracker().Next(nil).Label(); got != "Narrator" {
		t.Fatalf("default voice = %q", got)
	}
	if got := (Voice{Speaker: Speaker{Kind: SpeakerUnknown}}).Label(); got != "???" {
		t.Fatalf("unknown voice = %q", got)
	}
}
