package persona

import (
	"encoding/json"
	"fmt"
)

// Card is the lightweight projection stored in the persona index. List views
// read it instead of the full document so transcripts never leave the store.
type Card struct {
	ID               string `json:"_id"`
	Description      string `json:"description"`
	Name             string `json:"name"`
	About            string `json:"about"`
	InterviewSummary string `json:"interviewSummary"`
	FollowUpsAnswer  string `json:"followUpsAnswer"`
	DidInterview     bool   `json:"didInterview"`
}

// Card projects the persona onto its index row.
func (p Persona) Card() Card {
	return Card{
		ID:               p.ID,
		Description:      p.Description,
		Name:             p.Name,
		About:            p.About,
		InterviewSummary: p.InterviewSummary,
		FollowUpsAnswer:  p.FollowUpsAnswer,
		DidInterview:     p.HasInterviewed(),
	}
}

// Project is the index projector registered with the document store.
func Project(body json.RawMessage) (json.RawMessage, error) {
	p, err := Decode(body)
	if err != nil {
		return nil, err
	}
	out, err := json.Marshal(p.Card())
	if err != nil {
		return nil, fmt.Errorf("encode persona card: %w", err)
	}
	return out, nil
}

// DecodeCard parses an index row value.
func DecodeCard(value []byte) (Card, error) {
	var c Card
	if err := json.Unmarshal(value, &c); err != nil {
		return Card{}, fmt.Errorf("decode persona card: %w", err)
	}
	if c.Name == "" && c.About == "" && c.Description != "" {
		c.Name, c.About, _ = ParseDescription(c.Description)
	}
	return c, nil
}

// FromCard builds a partially loaded persona carrying only the projected fields.
func FromCard(c Card) Persona {
	return Persona{
		ID:               c.ID,
		Type:             DocType,
		Description:      c.Description,
		Name:             c.Name,
		About:            c.About,
		InterviewSummary: c.InterviewSummary,
		FollowUpsAnswer:  c.FollowUpsAnswer,
		DidInterview:     c.DidInterview,
	}
}
