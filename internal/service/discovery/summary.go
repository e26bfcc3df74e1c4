package discovery

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	sessionmodel "github.com/zhouzirui/epiphany/backend/internal/model/discovery"
	"github.com/zhouzirui/epiphany/backend/internal/service/ai"
)

// GenerateInterviewSummary rolls every persona summary up into the session
// summary, then derives the top follow-up questions from it. Both results are
// persisted as soon as they arrive.
func (s *Service) GenerateInterviewSummary(ctx context.Context, notes string) (sessionmodel.Session, error) {
	if err := s.Rehydrate(ctx, HydrateHome); err != nil {
		return sessionmodel.Session{}, err
	}

	personas := s.Personas()
	summaries := make([]string, 0, len(personas))
	for _, p := range personas {
		summaries = append(summaries, p.Card().InterviewSummary)
	}

	c, err := s.factory(ctx, s.currentKey(), "rollup")
	if err != nil {
		return sessionmodel.Session{}, fmt.Errorf("build rollup completer: %w", err)
	}

	rollup, err := c.Complete(ctx, ai.RollupPrompt(summaries, notes))
	if err != nil {
		return sessionmodel.Session{}, fmt.Errorf("summarize interviews: %w", err)
	}
	s.mu.RLock()
	sess := s.session
	s.mu.RUnlock()
	sess.InterviewSummary = rollup
	sess.SummaryNotes = notes
	if err := s.saveSession(ctx, sess); err != nil {
		return sessionmodel.Session{}, err
	}

	followUps, err := c.Complete(ctx, ai.FollowUpsPrompt(rollup, sess.Product, sess.Customer))
	if err != nil {
		return sessionmodel.Session{}, fmt.Errorf("generate follow-ups: %w", err)
	}
	sess.FollowUps = followUps
	if err := s.saveSession(ctx, sess); err != nil {
		return sessionmodel.Session{}, err
	}
	logf("session summary updated from %d personas", len(personas))
	return s.Session(), nil
}

// AskFollowUps puts the session follow-up questions to every persona
// concurrently and waits for all of them.
func (s *Service) AskFollowUps(ctx context.Context) error {
	if err := s.Rehydrate(ctx, HydrateHome); err != nil {
		return err
	}
	s.mu.RLock()
	followUps := s.session.FollowUps
	s.mu.RUnlock()
	if followUps == "" {
		return ErrNoFollowUps
	}

	var g errgroup.Group
	for _, p := range s.Personas() {
		g.Go(func() error {
			if err := p.AskFollowUps(ctx, followUps); err != nil {
				return fmt.Errorf("persona %s: %w", p.ID(), err)
			}
			return nil
		})
	}
	return g.Wait()
}
