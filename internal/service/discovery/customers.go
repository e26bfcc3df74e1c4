package discovery

import (
	"context"
	"fmt"
	"strings"

	model "github.com/zhouzirui/epiphany/backend/internal/model/persona"
	"github.com/zhouzirui/epiphany/backend/internal/service/ai"
	"github.com/zhouzirui/epiphany/backend/internal/service/interview"
)

// GenerateCustomers records the brief, asks for a roster of five people and
// adds one persona per accepted line. The roster is additive across calls.
func (s *Service) GenerateCustomers(ctx context.Context, product, customer, apiKey string) ([]*interview.Persona, error) {
	product = strings.TrimSpace(product)
	customer = strings.TrimSpace(customer)
	if product == "" && customer == "" {
		return nil, ErrMissingBrief
	}
	if strings.TrimSpace(apiKey) != "" {
		s.setAPIKey(apiKey)
	}
	key := s.currentKey()

	s.mu.RLock()
	sess := s.session
	s.mu.RUnlock()
	sess.Product = product
	sess.Customer = customer
	if err := s.saveSession(ctx, sess); err != nil {
		return nil, err
	}

	roster, err := s.factory(ctx, key, "roster")
	if err != nil {
		return nil, fmt.Errorf("build roster completer: %w", err)
	}
	text, err := roster.Complete(ctx, ai.RosterPrompt(product, customer))
	if err != nil {
		return nil, fmt.Errorf("generate roster: %w", err)
	}

	created := make([]*interview.Persona, 0, 5)
	for _, line := range ParseRoster(text) {
		p := interview.New(model.New(line, product, customer, key), s.store, s.factory, s.opts.Interview)
		p.SetAPIKey(key)
		if err := p.Persist(ctx); err != nil {
			return created, err
		}
		s.mu.Lock()
		s.personas = append(s.personas, p)
		s.mu.Unlock()
		created = append(created, p)
		logf("added persona %s (%s)", p.ID(), p.DisplayName())
	}
	s.updateRosterGauge()
	return created, nil
}

// ParseRoster splits a roster completion into persona descriptions, dropping
// blank lines and lines without a name separator.
func ParseRoster(text string) []string {
	var out []string
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if _, _, ok := model.ParseDescription(line); !ok {
			logf("skipping roster line without separator: %q", line)
			continue
		}
		out = append(out, line)
	}
	return out
}

// ResetPersonas deletes every stored persona and clears the roster. Running
// interviews are canceled and awaited first so none can write after the deletes.
func (s *Service) ResetPersonas(ctx context.Context) error {
	if err := s.stopAll(ctx); err != nil {
		return fmt.Errorf("stop interviews: %w", err)
	}

	rows, err := s.store.Query(ctx, model.DocType)
	if err != nil {
		return fmt.Errorf("list personas: %w", err)
	}
	for _, row := range rows {
		if err := s.store.Delete(ctx, row.ID); err != nil {
			return fmt.Errorf("delete persona %s: %w", row.ID, err)
		}
	}

	s.mu.Lock()
	s.personas = nil
	s.mu.Unlock()
	s.updateRosterGauge()
	logf("reset %d personas", len(rows))
	return nil
}
