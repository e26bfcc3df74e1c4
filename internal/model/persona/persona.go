package persona

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DocType is the secondary index key every persona document is stored under.
const DocType = "persona"

// Speaker identifies who produced a turn in a conversation thread.
type Speaker string

const (
	ByInterviewer Speaker = "interviewer"
	ByPersona     Speaker = "persona"
)

// Turn is one utterance inside a thread.
type Turn struct {
	By   Speaker `json:"by"`
	Text string  `json:"text"`
}

// Thread is one top-level question plus its chain of follow-ups, stored as
// alternating interviewer/persona turns.
type Thread []Turn

// Valid reports whether the thread is empty or starts with the interviewer and
// strictly alternates afterwards.
func (t Thread) Valid() bool {
	for i, turn := range t {
		want := ByInterviewer
		if i%2 == 1 {
			want = ByPersona
		}
		if turn.By != want {
			return false
		}
	}
	return true
}

// Pending reports whether the last turn is a question still awaiting its answer.
func (t Thread) Pending() bool {
	return len(t) > 0 && t[len(t)-1].By == ByInterviewer
}

// Rounds counts completed question/answer pairs.
func (t Thread) Rounds() int {
	return len(t) / 2
}

// Persona is the persisted shape of one simulated customer.
type Persona struct {
	ID               string    `json:"_id,omitempty"`
	Type             string    `json:"type"`
	OpenAIKey        string    `json:"openAIKey"`
	Description      string    `json:"description"`
	Name             string    `json:"name"`
	About            string    `json:"about"`
	Product          string    `json:"product"`
	Customer         string    `json:"customer"`
	Conversations    []Thread  `json:"conversations"`
	Perspective      string    `json:"perspective"`
	FollowUpsAnswer  string    `json:"followUpsAnswer"`
	InterviewSummary string    `json:"interviewSummary"`
	DidInterview     bool      `json:"didInterview"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// New builds an unsaved persona from a roster line and the session brief.
func New(description, product, customer, apiKey string) Persona {
	name, about, _ := ParseDescription(description)
	return Persona{
		Type:          DocType,
		OpenAIKey:     apiKey,
		Description:   description,
		Name:          name,
		About:         about,
		Product:       product,
		Customer:      customer,
		Conversations: []Thread{},
		CreatedAt:     time.Now().UTC(),
	}
}

// HasInterviewed reports whether any interview turns exist or were recorded.
func (p Persona) HasInterviewed() bool {
	return p.DidInterview || len(p.Conversations) > 0
}

// Clone returns a deep copy that shares no slices with p.
func (p Persona) Clone() Persona {
	out := p
	if p.Conversations != nil {
		out.Conversations = make([]Thread, len(p.Conversations))
		for i, thread := range p.Conversations {
			out.Conversations[i] = append(Thread{}, thread...)
		}
	}
	return out
}

// Normalize fills defaults for fields missing from older documents.
func (p *Persona) Normalize() {
	if p.Type == "" {
		p.Type = DocType
	}
	if p.Conversations == nil {
		p.Conversations = []Thread{}
	}
	if p.Name == "" && p.About == "" && p.Description != "" {
		p.Name, p.About, _ = ParseDescription(p.Description)
	}
}

// Decode parses a stored persona document.
func Decode(body []byte) (Persona, error) {
	var p Persona
	if err := json.Unmarshal(body, &p); err != nil {
		return Persona{}, fmt.Errorf("decode persona: %w", err)
	}
	p.Normalize()
	return p, nil
}

// Encode serializes the persona for the document store.
func Encode(p Persona) ([]byte, error) {
	p.Normalize()
	return json.Marshal(p)
}

// ParseDescription splits a "Name: about" roster line. The first ':' wins;
// lines without one fall back to the first '-'. ok is false when neither
// separator is present or the name before it is empty, in which case name is
// the whole line and about is empty.
func ParseDescription(description string) (name, about string, ok bool) {
	line := trimListMarker(strings.TrimSpace(description))
	idx := strings.Index(line, ":")
	if idx < 0 {
		idx = strings.Index(line, "-")
	}
	if idx < 0 {
		return line, "", false
	}
	name = strings.TrimSpace(line[:idx])
	if name == "" {
		return line, "", false
	}
	return name, line[idx+1:], true
}

// trimListMarker drops "1. ", "2) ", "- " and "* " prefixes that models like to
// put in front of roster lines.
func trimListMarker(line string) string {
	if rest, found := strings.CutPrefix(line, "- "); found {
		return strings.TrimSpace(rest)
	}
	if rest, found := strings.CutPrefix(line, "* "); found {
		return strings.TrimSpace(rest)
	}
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i > 0 && i+1 < len(line) && (line[i] == '.' || line[i] == ')') && line[i+1] == ' ' {
		return strings.TrimSpace(line[i+2:])
	}
	return line
}
