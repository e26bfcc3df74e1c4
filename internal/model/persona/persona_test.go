package persona

import (
	"testing"
)

func turn(by Speaker, text string) Turn {
	return Turn{By: by, Text: text}
}

func TestThreadShape(t *testing.T) {
	cases := []struct {
		name    string
		thread  Thread
		valid   bool
		pending bool
		rounds  int
	}{
		{name: "empty", thread: Thread{}, valid: true},
		{name: "open question", thread: Thread{turn(ByInterviewer, "q")}, valid: true, pending: true},
		{name: "one round", thread: Thread{turn(ByInterviewer, "q"), turn(ByPersona, "a")}, valid: true, rounds: 1},
		{
			name: "follow-up pending",
			thread: Thread{
				turn(ByInterviewer, "q"), turn(ByPersona, "a"),
				turn(ByInterviewer, "why?"),
			},
			valid: true, pending: true, rounds: 1,
		},
		{name: "starts with persona", thread: Thread{turn(ByPersona, "a"), turn(ByInterviewer, "q")}, pending: true, rounds: 1},
		{name: "repeated speaker", thread: Thread{turn(ByInterviewer, "q"), turn(ByInterviewer, "q2")}, pending: true, rounds: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.thread.Valid(); got != tc.valid {
				t.Fatalf("Valid() = %v, want %v", got, tc.valid)
			}
			if got := tc.thread.Pending(); got != tc.pending {
				t.Fatalf("Pending() = %v, want %v", got, tc.pending)
			}
			if got := tc.thread.Rounds(); got != tc.rounds {
				t.Fatalf("Rounds() = %d, want %d", got, tc.rounds)
			}
		})
	}
}

func TestParseDescription(t *testing.T) {
	cases := []struct {
		line  string
		name  string
		about string
		ok    bool
	}{
		{line: "Talkative Tom: loves demos", name: "Talkative Tom", about: " loves demos", ok: true},
		{line: "1. Early Eddie: tries everything", name: "Early Eddie", about: " tries everything", ok: true},
		{line: "2) Budget Betty: signs off", name: "Budget Betty", about: " signs off", ok: true},
		{line: "* Quiet Quinn: skeptical", name: "Quiet Quinn", about: " skeptical", ok: true},
		{line: "- Careful Carla - reads the fine print", name: "Careful Carla", about: " reads the fine print", ok: true},
		{line: "Ops Olga: on-call - always", name: "Ops Olga", about: " on-call - always", ok: true},
		{line: "  Spacey Sam :  padded  ", name: "Spacey Sam", about: "  padded", ok: true},
		{line: "noseparator", name: "noseparator"},
		{line: "---", name: "---"},
		{line: ": nameless", name: ": nameless"},
		{line: "", name: ""},
	}
	for _, tc := range cases {
		name, about, ok := ParseDescription(tc.line)
		if name != tc.name || about != tc.about || ok != tc.ok {
			t.Fatalf("ParseDescription(%q) = %q, %q, %v; want %q, %q, %v",
				tc.line, name, about, ok, tc.name, tc.about, tc.ok)
		}
	}
}

func TestDecodeNormalizesLegacyDocument(t *testing.T) {
	legacy := []byte(`{"_id":"p1","description":"Talkative Tom: loves demos","didInterview":false}`)
	p, err := Decode(legacy)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if p.Type != DocType {
		t.Fatalf("expected type %q, got %q", DocType, p.Type)
	}
	if p.Conversations == nil || len(p.Conversations) != 0 {
		t.Fatalf("expected empty conversations, got %#v", p.Conversations)
	}
	if p.Name != "Talkative Tom" || p.About != " loves demos" {
		t.Fatalf("name/about not derived: %q / %q", p.Name, p.About)
	}
}

func TestNormalizeKeepsStoredNameAndAbout(t *testing.T) {
	p := Persona{Description: "Old Name: old about", Name: "New Name", About: "new about"}
	p.Normalize()
	if p.Name != "New Name" || p.About != "new about" {
		t.Fatalf("stored fields overwritten: %q / %q", p.Name, p.About)
	}
}

func TestCloneDoesNotShareThreads(t *testing.T) {
	p := New("Tom: demos", "DemoHub", "designers", "")
	p.Conversations = []Thread{{turn(ByInterviewer, "q"), turn(ByPersona, "a")}}

	c := p.Clone()
	c.Conversations[0][1].Text = "changed"
	c.Conversations = append(c.Conversations, Thread{})

	if p.Conversations[0][1].Text != "a" || len(p.Conversations) != 1 {
		t.Fatalf("clone shares memory with original: %+v", p.Conversations)
	}
}

func TestDecodeCardDerivesName(t *testing.T) {
	c, err := DecodeCard([]byte(`{"_id":"p1","description":"Quiet Quinn: skeptical engineer"}`))
	if err != nil {
		t.Fatalf("DecodeCard: %v", err)
	}
	if c.Name != "Quiet Quinn" || c.About != " skeptical engineer" {
		t.Fatalf("card name/about not derived: %q / %q", c.Name, c.About)
	}
}
