// Package interview drives a single simulated customer through the scripted
// interview, summary and follow-up exchanges, checkpointing every turn to the
// document store.
package interview

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	model "github.com/zhouzirui/epiphany/backend/internal/model/persona"
	"github.com/zhouzirui/epiphany/backend/internal/service/ai"
	"github.com/zhouzirui/epiphany/backend/internal/store"
)

const (
	// NewThread asks PursueQuestions to open a new thread.
	NewThread = -1
	// DefaultRounds is the follow-up budget per top-level question.
	DefaultRounds = 3
	// MaxRounds caps the rounds of any single thread.
	MaxRounds = 3
	// DefaultSummaryTranscriptLimit bounds the transcript sent for summarization.
	DefaultSummaryTranscriptLimit = 2000
)

var (
	ErrUnknownThread = errors.New("unknown conversation thread")
	ErrNotPersisted  = errors.New("persona has not been persisted")
)

// State is the conceptual interview state of a persona.
type State string

const (
	StateFresh        State = "fresh"
	StateInterviewing State = "interviewing"
	StateInterviewed  State = "interviewed"
	StateSummarized   State = "summarized"
)

// Options tune a persona's interview behaviour.
type Options struct {
	Rounds                 int
	SummaryTranscriptLimit int
	// PersistAPIKey writes the credential into the persona document.
	PersistAPIKey bool
}

// DefaultOptions returns the stock interview settings.
func DefaultOptions() Options {
	return Options{Rounds: DefaultRounds, SummaryTranscriptLimit: DefaultSummaryTranscriptLimit}
}

// normalized fills unset rounds with DefaultRounds and caps them at MaxRounds.
func (o Options) normalized() Options {
	if o.Rounds < 1 {
		o.Rounds = DefaultRounds
	}
	if o.Rounds > MaxRounds {
		o.Rounds = MaxRounds
	}
	return o
}

// Persona wraps a persona document with its interview state machine.
// Operations on one persona run one at a time.
type Persona struct {
	store   store.Store
	factory ai.Factory
	opts    Options

	// opMu serializes interview, summary and follow-up operations.
	opMu sync.Mutex
	// persistMu orders snapshots with their writes.
	persistMu sync.Mutex

	mu           sync.Mutex
	doc          model.Persona
	loaded       bool
	apiKey       string
	didAsk       bool
	interviewing bool
	chat         ai.Completer
	interviewer  ai.Completer
}

// New wraps a fully loaded (or not yet persisted) persona document.
func New(doc model.Persona, st store.Store, factory ai.Factory, opts Options) *Persona {
	doc.Normalize()
	return &Persona{
		store:   st,
		factory: factory,
		opts:    opts.normalized(),
		doc:     doc.Clone(),
		loaded:  true,
		apiKey:  doc.OpenAIKey,
	}
}

// FromCard wraps a partially loaded persona built from its index projection.
// The full document is fetched before the first mutation.
func FromCard(card model.Card, st store.Store, factory ai.Factory, opts Options) *Persona {
	doc := model.FromCard(card)
	doc.Normalize()
	return &Persona{
		store:   st,
		factory: factory,
		opts:    opts.normalized(),
		doc:     doc,
	}
}

// Load fetches a persona document by id.
func Load(ctx context.Context, st store.Store, id string, factory ai.Factory, opts Options) (*Persona, error) {
	doc, err := fetch(ctx, st, id)
	if err != nil {
		return nil, err
	}
	return New(doc, st, factory, opts), nil
}

func fetch(ctx context.Context, st store.Store, id string) (model.Persona, error) {
	raw, err := st.Get(ctx, id)
	if err != nil {
		return model.Persona{}, fmt.Errorf("load persona %s: %w", id, err)
	}
	doc, err := model.Decode(raw.Body)
	if err != nil {
		return model.Persona{}, err
	}
	doc.ID = raw.ID
	return doc, nil
}

func (p *Persona) ID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc.ID
}

// DisplayName returns the name parsed from the description.
func (p *Persona) DisplayName() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc.Name
}

// DisplayAbout returns the blurb parsed from the description.
func (p *Persona) DisplayAbout() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc.About
}

// HasInterviewed reports conversations when fully loaded, else the stored flag.
func (p *Persona) HasInterviewed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc.HasInterviewed()
}

// Loaded reports whether the full document (with transcripts) is in memory.
func (p *Persona) Loaded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loaded
}

// Interviewing reports whether DoInterview is running.
func (p *Persona) Interviewing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interviewing
}

// State reports the conceptual state of the persona.
func (p *Persona) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.interviewing:
		return StateInterviewing
	case p.doc.InterviewSummary != "":
		return StateSummarized
	case p.doc.HasInterviewed():
		return StateInterviewed
	default:
		return StateFresh
	}
}

// Snapshot returns a deep copy of the document without the credential.
func (p *Persona) Snapshot() model.Persona {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.doc.Clone()
	out.OpenAIKey = ""
	return out
}

// Card returns the index projection of the current document.
func (p *Persona) Card() model.Card {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc.Card()
}

// SetAPIKey replaces the in-memory credential and drops cached completers.
func (p *Persona) SetAPIKey(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if key == p.apiKey {
		return
	}
	p.apiKey = key
	p.chat = nil
	p.interviewer = nil
}

// Refresh replaces the in-memory document with one read from the store. A
// partial document never replaces a fully loaded one, and a running
// operation keeps its own state.
func (p *Persona) Refresh(doc model.Persona, full bool) {
	if !p.opMu.TryLock() {
		return
	}
	defer p.opMu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	if !full {
		if p.loaded {
			return
		}
	}
	doc.Normalize()
	if doc.OpenAIKey == "" {
		doc.OpenAIKey = p.doc.OpenAIKey
	}
	p.doc = doc.Clone()
	p.loaded = p.loaded || full
}

// EnsureLoaded fetches the full document when only the projection is held.
func (p *Persona) EnsureLoaded(ctx context.Context) error {
	p.mu.Lock()
	if p.loaded {
		p.mu.Unlock()
		return nil
	}
	id := p.doc.ID
	p.mu.Unlock()

	if id == "" {
		return ErrNotPersisted
	}
	doc, err := fetch(ctx, p.store, id)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.loaded {
		p.doc = doc
		p.loaded = true
		if p.apiKey == "" {
			p.apiKey = doc.OpenAIKey
		}
	}
	return nil
}

// Persist upserts the full document. The first call adopts the store id.
func (p *Persona) Persist(ctx context.Context) error {
	p.persistMu.Lock()
	defer p.persistMu.Unlock()

	p.mu.Lock()
	if !p.loaded {
		id := p.doc.ID
		p.mu.Unlock()
		return fmt.Errorf("refusing to persist partial persona %s", id)
	}
	now := time.Now().UTC()
	if p.doc.CreatedAt.IsZero() {
		p.doc.CreatedAt = now
	}
	p.doc.UpdatedAt = now
	doc := p.doc.Clone()
	if p.opts.PersistAPIKey {
		doc.OpenAIKey = p.apiKey
	} else {
		doc.OpenAIKey = ""
	}
	p.mu.Unlock()

	body, err := model.Encode(doc)
	if err != nil {
		return fmt.Errorf("encode persona: %w", err)
	}
	id, err := p.store.Put(ctx, store.Document{ID: doc.ID, Type: model.DocType, Body: body})
	if err != nil {
		return fmt.Errorf("persist persona: %w", err)
	}

	p.mu.Lock()
	if p.doc.ID == "" {
		p.doc.ID = id
	}
	p.mu.Unlock()
	return nil
}

// SetPerspective stores the operator's perspective note.
func (p *Persona) SetPerspective(ctx context.Context, perspective string) error {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	if err := p.EnsureLoaded(ctx); err != nil {
		return err
	}
	p.mu.Lock()
	p.doc.Perspective = perspective
	p.mu.Unlock()
	return p.Persist(ctx)
}

// completers returns the persona-voice and interviewer handles, building
// them on first use.
func (p *Persona) completers(ctx context.Context) (ai.Completer, ai.Completer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := p.apiKey
	if p.chat == nil {
		c, err := p.factory(ctx, key, "persona")
		if err != nil {
			return nil, nil, fmt.Errorf("build persona completer: %w", err)
		}
		p.chat = c
	}
	if p.interviewer == nil {
		c, err := p.factory(ctx, key, "interviewer")
		if err != nil {
			return nil, nil, fmt.Errorf("build interviewer completer: %w", err)
		}
		p.interviewer = c
	}
	return p.chat, p.interviewer, nil
}

func (p *Persona) brief() ai.PersonaBrief {
	return ai.PersonaBrief{
		Description: p.doc.Description,
		Name:        p.doc.Name,
		Product:     p.doc.Product,
		Customer:    p.doc.Customer,
		Perspective: p.doc.Perspective,
	}
}

func (p *Persona) logf(format string, args ...any) {
	log.Printf("[interview] persona=%s "+format, append([]any{p.ID()}, args...)...)
}
