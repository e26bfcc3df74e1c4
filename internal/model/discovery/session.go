package discovery

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	// SessionID is the fixed id of the singleton session document.
	SessionID = "discovery"
	// DocType is the index key of the session document.
	DocType = "discovery"
)

// Session holds the discovery brief and the cross-persona rollup.
type Session struct {
	ID               string    `json:"_id"`
	Type             string    `json:"type"`
	Product          string    `json:"product"`
	Customer         string    `json:"customer"`
	OpenAIKey        string    `json:"openAIKey"`
	InterviewSummary string    `json:"interviewSummary,omitempty"`
	FollowUps        string    `json:"followUps,omitempty"`
	SummaryNotes     string    `json:"summaryNotes,omitempty"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Default returns the document used when none has been stored yet.
func Default() Session {
	return Session{ID: SessionID, Type: DocType}
}

// Decode parses the stored session document, filling defaults.
func Decode(body []byte) (Session, error) {
	s := Default()
	if err := json.Unmarshal(body, &s); err != nil {
		return Session{}, fmt.Errorf("decode session: %w", err)
	}
	s.ID = SessionID
	if s.Type == "" {
		s.Type = DocType
	}
	return s, nil
}

// Encode serializes the session document.
func Encode(s Session) ([]byte, error) {
	s.ID = SessionID
	s.Type = DocType
	return json.Marshal(s)
}

// Redacted hides the credential for API responses.
func (s Session) Redacted() Session {
	if s.OpenAIKey != "" {
		s.OpenAIKey = "********"
	}
	return s
}
