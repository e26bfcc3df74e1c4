// Package discovery orchestrates a customer-discovery session: the brief,
// the persona roster, the cross-persona rollup and follow-up fan-out.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/zhouzirui/epiphany/backend/internal/metrics"
	sessionmodel "github.com/zhouzirui/epiphany/backend/internal/model/discovery"
	"github.com/zhouzirui/epiphany/backend/internal/service/ai"
	"github.com/zhouzirui/epiphany/backend/internal/service/interview"
	"github.com/zhouzirui/epiphany/backend/internal/store"
)

var (
	ErrPersonaNotFound     = errors.New("persona not found")
	ErrInterviewInProgress = errors.New("interview already in progress")
	ErrNoFollowUps         = errors.New("no follow-up questions generated yet")
	ErrMissingBrief        = errors.New("product or customer description is required")
)

// Options configures the orchestrator.
type Options struct {
	Interview interview.Options
}

// Service owns the session document and the in-memory persona roster.
type Service struct {
	store   store.Store
	factory ai.Factory
	opts    Options

	mu       sync.RWMutex
	session  sessionmodel.Session
	apiKey   string
	personas []*interview.Persona
	running  map[string]*run

	baseCtx     context.Context
	cancelAll   context.CancelFunc
	unsubscribe func()
	wg          sync.WaitGroup
}

// run tracks one in-flight interview. done closes once it has stopped
// touching the store.
type run struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a Service. Call Init before use and Close on shutdown.
func New(st store.Store, factory ai.Factory, opts Options) *Service {
	baseCtx, cancel := context.WithCancel(context.Background())
	return &Service{
		store:     st,
		factory:   factory,
		opts:      opts,
		session:   sessionmodel.Default(),
		running:   make(map[string]*run),
		baseCtx:   baseCtx,
		cancelAll: cancel,
	}
}

// Init loads the full session state and starts observing the store.
func (s *Service) Init(ctx context.Context) error {
	if err := s.Rehydrate(ctx, HydrateFull); err != nil {
		return err
	}
	s.unsubscribe = s.store.Subscribe(func(change store.Change) {
		op := "put"
		if change.Deleted {
			op = "delete"
		}
		metrics.StoreChanges.WithLabelValues(change.Type, op).Inc()
	})
	return nil
}

// Close cancels running interviews and waits for them to stop.
func (s *Service) Close() error {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.cancelAll()
	s.wg.Wait()
	return nil
}

// OnChange registers fn for every committed store mutation.
func (s *Service) OnChange(fn func(store.Change)) func() {
	return s.store.Subscribe(fn)
}

// Session returns the session document with the credential masked.
func (s *Service) Session() sessionmodel.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.Redacted()
}

// HasAPIKey reports whether a session credential is held in memory.
func (s *Service) HasAPIKey() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.apiKey != ""
}

// Personas returns the current roster in creation order.
func (s *Service) Personas() []*interview.Persona {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*interview.Persona(nil), s.personas...)
}

// PersonaByID returns the roster entry for id, falling back to the store for
// personas created elsewhere.
func (s *Service) PersonaByID(ctx context.Context, id string) (*interview.Persona, error) {
	s.mu.RLock()
	for _, p := range s.personas {
		if p.ID() == id {
			s.mu.RUnlock()
			return p, nil
		}
	}
	key := s.apiKey
	s.mu.RUnlock()

	p, err := interview.Load(ctx, s.store, id, s.factory, s.opts.Interview)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrPersonaNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if key != "" {
		p.SetAPIKey(key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.personas {
		if existing.ID() == id {
			return existing, nil
		}
	}
	s.personas = append(s.personas, p)
	return p, nil
}

// LoadPersona returns the persona with its full transcript loaded.
func (s *Service) LoadPersona(ctx context.Context, id string) (*interview.Persona, error) {
	p, err := s.PersonaByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := p.EnsureLoaded(ctx); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrPersonaNotFound, id)
		}
		return nil, err
	}
	return p, nil
}

func (s *Service) loadSession(ctx context.Context) (sessionmodel.Session, error) {
	doc, err := s.store.Get(ctx, sessionmodel.SessionID)
	if errors.Is(err, store.ErrNotFound) {
		return sessionmodel.Default(), nil
	}
	if err != nil {
		return sessionmodel.Session{}, fmt.Errorf("load session: %w", err)
	}
	return sessionmodel.Decode(doc.Body)
}

// saveSession writes sess, replacing the credential unless it is meant to be stored.
func (s *Service) saveSession(ctx context.Context, sess sessionmodel.Session) error {
	if s.opts.Interview.PersistAPIKey {
		s.mu.RLock()
		sess.OpenAIKey = s.apiKey
		s.mu.RUnlock()
	} else {
		sess.OpenAIKey = ""
	}
	sess.UpdatedAt = time.Now().UTC()
	body, err := sessionmodel.Encode(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if _, err := s.store.Put(ctx, store.Document{ID: sessionmodel.SessionID, Type: sessionmodel.DocType, Body: body}); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}

	s.mu.Lock()
	sess.OpenAIKey = s.apiKey
	s.session = sess
	s.mu.Unlock()
	return nil
}

func (s *Service) currentKey() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.apiKey
}

func (s *Service) setAPIKey(key string) {
	key = strings.TrimSpace(key)
	s.mu.Lock()
	s.apiKey = key
	s.session.OpenAIKey = key
	personas := append([]*interview.Persona(nil), s.personas...)
	s.mu.Unlock()

	for _, p := range personas {
		p.SetAPIKey(key)
	}
}

func (s *Service) updateRosterGauge() {
	s.mu.RLock()
	n := len(s.personas)
	s.mu.RUnlock()
	metrics.Personas.Set(float64(n))
}

func logf(format string, args ...any) {
	log.Printf("[discovery] "+format, args...)
}
