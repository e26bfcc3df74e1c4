package discovery

import (
	"context"
	"errors"
	"fmt"
)

// StartInterview runs the scripted interview and the persona summary in the
// background. A non-nil perspective is stored first.
func (s *Service) StartInterview(ctx context.Context, id string, perspective *string) error {
	p, err := s.PersonaByID(ctx, id)
	if err != nil {
		return err
	}
	// fail fast on a missing credential instead of inside the goroutine
	if _, err := s.factory(ctx, s.currentKey(), "persona"); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(s.baseCtx)
	r, err := s.begin(id, cancel)
	if err != nil {
		cancel()
		return err
	}

	if perspective != nil {
		if err := p.SetPerspective(ctx, *perspective); err != nil {
			s.finish(id, r)
			cancel()
			return err
		}
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		defer s.finish(id, r)

		if err := p.DoInterview(runCtx); err != nil {
			logf("interview %s stopped: %v", id, err)
			return
		}
		if err := p.SummarizeInterview(runCtx); err != nil {
			logf("summary %s failed: %v", id, err)
		}
	}()
	return nil
}

// RunInterview runs the interview and summary for id in the caller's goroutine.
func (s *Service) RunInterview(ctx context.Context, id string) error {
	p, err := s.PersonaByID(ctx, id)
	if err != nil {
		return err
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	r, err := s.begin(id, cancel)
	if err != nil {
		return err
	}
	defer s.finish(id, r)

	if err := p.DoInterview(runCtx); err != nil {
		return err
	}
	return p.SummarizeInterview(runCtx)
}

// CancelInterview stops a running interview. It reports whether one was running.
func (s *Service) CancelInterview(id string) bool {
	s.mu.Lock()
	r, ok := s.running[id]
	s.mu.Unlock()
	if ok {
		r.cancel()
	}
	return ok
}

// Busy reports whether an interview is running for id.
func (s *Service) Busy(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.running[id]
	return ok
}

// Wait blocks until every background interview has returned.
func (s *Service) Wait() {
	s.wg.Wait()
}

// SummarizePersona regenerates one persona's interview summary.
func (s *Service) SummarizePersona(ctx context.Context, id string) error {
	if s.Busy(id) {
		return fmt.Errorf("%w: %s", ErrInterviewInProgress, id)
	}
	p, err := s.PersonaByID(ctx, id)
	if err != nil {
		return err
	}
	return p.SummarizeInterview(ctx)
}

// SetPerspective stores the operator note used when priming the persona.
func (s *Service) SetPerspective(ctx context.Context, id, text string) error {
	if s.Busy(id) {
		return fmt.Errorf("%w: %s", ErrInterviewInProgress, id)
	}
	p, err := s.PersonaByID(ctx, id)
	if err != nil {
		return err
	}
	return p.SetPerspective(ctx, text)
}

func (s *Service) begin(id string, cancel context.CancelFunc) (*run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.running[id]; busy {
		return nil, fmt.Errorf("%w: %s", ErrInterviewInProgress, id)
	}
	r := &run{cancel: cancel, done: make(chan struct{})}
	s.running[id] = r
	return r, nil
}

func (s *Service) finish(id string, r *run) {
	s.mu.Lock()
	if s.running[id] == r {
		delete(s.running, id)
	}
	s.mu.Unlock()
	close(r.done)
}

// stopAll cancels every running interview and waits for each to return.
func (s *Service) stopAll(ctx context.Context) error {
	s.mu.Lock()
	runs := make([]*run, 0, len(s.running))
	for _, r := range s.running {
		r.cancel()
		runs = append(runs, r)
	}
	s.mu.Unlock()

	for _, r := range runs {
		select {
		case <-r.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// IsNotFound reports whether err is a missing-persona error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPersonaNotFound)
}
