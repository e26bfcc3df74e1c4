package discovery

import (
	"context"
	"fmt"

	model "github.com/zhouzirui/epiphany/backend/internal/model/persona"
	"github.com/zhouzirui/epiphany/backend/internal/service/interview"
)

// HydrateMode selects how much of each persona Rehydrate reads.
type HydrateMode int

const (
	// HydrateHome reads only the index projections.
	HydrateHome HydrateMode = iota
	// HydrateFull reads complete persona documents.
	HydrateFull
)

// Rehydrate reloads the session and the roster from the store. Personas
// already in memory are refreshed in place; deleted ones are dropped.
func (s *Service) Rehydrate(ctx context.Context, mode HydrateMode) error {
	sess, err := s.loadSession(ctx)
	if err != nil {
		return err
	}
	rows, err := s.store.Query(ctx, model.DocType)
	if err != nil {
		return fmt.Errorf("list personas: %w", err)
	}

	s.mu.Lock()
	if s.apiKey == "" && sess.OpenAIKey != "" {
		s.apiKey = sess.OpenAIKey
	}
	sess.OpenAIKey = s.apiKey
	s.session = sess
	key := s.apiKey
	existing := make(map[string]*interview.Persona, len(s.personas))
	for _, p := range s.personas {
		existing[p.ID()] = p
	}
	s.mu.Unlock()

	roster := make([]*interview.Persona, 0, len(rows))
	for _, row := range rows {
		p, err := s.hydrateRow(ctx, mode, row.ID, row.Value, existing[row.ID])
		if err != nil {
			return err
		}
		if key != "" {
			p.SetAPIKey(key)
		}
		roster = append(roster, p)
	}

	s.mu.Lock()
	s.personas = roster
	s.mu.Unlock()
	s.updateRosterGauge()
	return nil
}

func (s *Service) hydrateRow(ctx context.Context, mode HydrateMode, id string, value []byte, current *interview.Persona) (*interview.Persona, error) {
	if mode == HydrateFull {
		doc, err := s.store.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load persona %s: %w", id, err)
		}
		full, err := model.Decode(doc.Body)
		if err != nil {
			return nil, err
		}
		full.ID = doc.ID
		if current != nil {
			current.Refresh(full, true)
			return current, nil
		}
		return interview.New(full, s.store, s.factory, s.opts.Interview), nil
	}

	card, err := model.DecodeCard(value)
	if err != nil {
		return nil, err
	}
	card.ID = id
	if current != nil {
		current.Refresh(model.FromCard(card), false)
		return current, nil
	}
	return interview.FromCard(card, s.store, s.factory, s.opts.Interview), nil
}
