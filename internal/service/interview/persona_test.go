package interview

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	model "github.com/zhouzirui/epiphany/backend/internal/model/persona"
	"github.com/zhouzirui/epiphany/backend/internal/service/ai"
	"github.com/zhouzirui/epiphany/backend/internal/store"
)

func newStore() *store.MemoryStore {
	return store.NewMemory(store.WithProjection(model.DocType, model.Project))
}

func newPersona(t *testing.T, st store.Store, factory ai.Factory, opts Options) *Persona {
	t.Helper()
	doc := model.New("Talkative Tom: loves demos", "DemoHub", "frontend designers", "sk-test")
	p := New(doc, st, factory, opts)
	if err := p.Persist(context.Background()); err != nil {
		t.Fatalf("persist: %v", err)
	}
	if p.ID() == "" {
		t.Fatal("expected store-assigned id after first persist")
	}
	return p
}

func countChanges(st store.Store) (*int32, func()) {
	var n int32
	cancel := st.Subscribe(func(store.Change) { atomic.AddInt32(&n, 1) })
	return &n, cancel
}

func TestDoInterviewThreadShape(t *testing.T) {
	st := newStore()
	fake := ai.NewFake()
	p := newPersona(t, st, ai.FakeFactory(fake), DefaultOptions())

	if err := p.DoInterview(context.Background()); err != nil {
		t.Fatalf("DoInterview: %v", err)
	}

	snap := p.Snapshot()
	if len(snap.Conversations) != len(ai.InterviewScript) {
		t.Fatalf("expected %d threads, got %d", len(ai.InterviewScript), len(snap.Conversations))
	}
	for i, thread := range snap.Conversations {
		if !thread.Valid() {
			t.Fatalf("thread %d does not alternate: %+v", i, thread)
		}
		if len(thread) != 2*DefaultRounds {
			t.Fatalf("thread %d has %d turns, want %d", i, len(thread), 2*DefaultRounds)
		}
		if thread[0].Text != ai.InterviewScript[i] {
			t.Fatalf("thread %d starts with %q", i, thread[0].Text)
		}
	}
	if !snap.DidInterview || p.State() != StateInterviewed {
		t.Fatalf("expected interviewed state, got %s", p.State())
	}

	// persona answer + next question per round
	if got, want := fake.CallCount(), len(ai.InterviewScript)*DefaultRounds*2; got != want {
		t.Fatalf("expected %d completion calls, got %d", want, got)
	}
}

func TestPrimingOnlyOnFirstExchange(t *testing.T) {
	st := newStore()
	fake := ai.NewFake()
	p := newPersona(t, st, ai.FakeFactory(fake), Options{Rounds: 2})

	if err := p.DoInterview(context.Background()); err != nil {
		t.Fatalf("DoInterview: %v", err)
	}

	primed := 0
	for _, call := range fake.Calls() {
		for _, m := range call {
			if m.Role == ai.RoleSystem && strings.HasPrefix(m.Text, "You will act in a dialog as") {
				primed++
			}
		}
	}
	if primed != 1 {
		t.Fatalf("expected priming exactly once, got %d", primed)
	}

	first := fake.Calls()[0]
	if len(first) != 3 || first[2].Role != ai.RoleHuman || first[2].Text != ai.InterviewScript[0] {
		t.Fatalf("unexpected first persona request: %+v", first)
	}
	if !strings.Contains(first[0].Text, "Talkative Tom") {
		t.Fatalf("priming should name the persona: %s", first[0].Text)
	}

	interviewerCall := fake.Calls()[1]
	if !strings.Contains(interviewerCall[0].Text, "What should we ask them next?") {
		t.Fatalf("second call should derive the next question: %+v", interviewerCall)
	}
}

func TestPursueQuestionsZeroRoundsIsNoop(t *testing.T) {
	st := newStore()
	fake := ai.NewFake()
	var built int32
	factory := func(ctx context.Context, key, purpose string) (ai.Completer, error) {
		atomic.AddInt32(&built, 1)
		return fake, nil
	}
	p := newPersona(t, st, factory, DefaultOptions())
	changes, cancel := countChanges(st)
	defer cancel()

	if err := p.PursueQuestions(context.Background(), "anything?", NewThread, 0); err != nil {
		t.Fatalf("PursueQuestions: %v", err)
	}
	if fake.CallCount() != 0 || atomic.LoadInt32(changes) != 0 || built != 0 {
		t.Fatalf("expected no calls and no persists, got calls=%d persists=%d built=%d", fake.CallCount(), *changes, built)
	}
	if len(p.Snapshot().Conversations) != 0 {
		t.Fatal("zero rounds must not open a thread")
	}
}

func TestPursueQuestionsPersistsEveryTurn(t *testing.T) {
	st := newStore()
	p := newPersona(t, st, ai.FakeFactory(ai.NewFake()), DefaultOptions())
	changes, cancel := countChanges(st)
	defer cancel()

	if err := p.PursueQuestions(context.Background(), "Why?", NewThread, 2); err != nil {
		t.Fatalf("PursueQuestions: %v", err)
	}
	if got := atomic.LoadInt32(changes); got != 4 {
		t.Fatalf("expected 4 checkpoints for 2 rounds, got %d", got)
	}

	// continue the same thread
	if err := p.PursueQuestions(context.Background(), "And then?", 0, 1); err != nil {
		t.Fatalf("continue thread: %v", err)
	}
	snap := p.Snapshot()
	if len(snap.Conversations) != 1 || len(snap.Conversations[0]) != 6 {
		t.Fatalf("unexpected conversations %+v", snap.Conversations)
	}

	if err := p.PursueQuestions(context.Background(), "?", 7, 1); !errors.Is(err, ErrUnknownThread) {
		t.Fatalf("expected ErrUnknownThread, got %v", err)
	}
}

func TestCanceledInterviewLeavesPendingTurn(t *testing.T) {
	st := newStore()
	blocking := ai.CompleterFunc(func(ctx context.Context, _ []ai.Message) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	factory := func(context.Context, string, string) (ai.Completer, error) { return blocking, nil }
	p := newPersona(t, st, factory, DefaultOptions())

	ctx, cancel := context.WithCancel(context.Background())
	unsubscribe := st.Subscribe(func(store.Change) { cancel() })
	defer unsubscribe()

	err := p.DoInterview(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if p.Interviewing() {
		t.Fatal("interviewing flag must be cleared")
	}

	doc, err := st.Get(context.Background(), p.ID())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	stored, err := model.Decode(doc.Body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(stored.Conversations) != 1 || !stored.Conversations[0].Pending() || !stored.Conversations[0].Valid() {
		t.Fatalf("expected one pending thread, got %+v", stored.Conversations)
	}
}

func TestSummarizeInterviewIsIdempotentOverwrite(t *testing.T) {
	st := newStore()
	fake := ai.NewFake()
	p := newPersona(t, st, ai.FakeFactory(fake), Options{Rounds: 1, SummaryTranscriptLimit: 50})
	if err := p.DoInterview(context.Background()); err != nil {
		t.Fatalf("DoInterview: %v", err)
	}

	fake.Enqueue("first summary", "second summary")
	for i := 0; i < 2; i++ {
		if err := p.SummarizeInterview(context.Background()); err != nil {
			t.Fatalf("summarize %d: %v", i, err)
		}
	}

	if got := p.Snapshot().InterviewSummary; got != "second summary" {
		t.Fatalf("expected overwrite, got %q", got)
	}
	if p.State() != StateSummarized {
		t.Fatalf("expected summarized state, got %s", p.State())
	}

	calls := fake.Calls()
	last := calls[len(calls)-1]
	if len(last) != 1 || last[0].Role != ai.RoleSystem {
		t.Fatalf("summary request should be a single system message: %+v", last)
	}
	prefix := ai.SummaryPrompt("")[0].Text
	if n := len([]rune(strings.TrimPrefix(last[0].Text, prefix))); n != 50 {
		t.Fatalf("transcript should be cut to 50 runes, got %d", n)
	}

	doc, _ := st.Get(context.Background(), p.ID())
	stored, _ := model.Decode(doc.Body)
	if stored.InterviewSummary != "second summary" {
		t.Fatalf("stored summary %q", stored.InterviewSummary)
	}
}

func TestAskFollowUpsLoadsPartialPersonaFirst(t *testing.T) {
	ctx := context.Background()
	st := newStore()
	fake := ai.NewFake()
	full := newPersona(t, st, ai.FakeFactory(fake), Options{Rounds: 1})
	if err := full.DoInterview(ctx); err != nil {
		t.Fatalf("DoInterview: %v", err)
	}

	rows, err := st.Query(ctx, model.DocType)
	if err != nil || len(rows) != 1 {
		t.Fatalf("query: %v rows=%d", err, len(rows))
	}
	card, err := model.DecodeCard(rows[0].Value)
	if err != nil {
		t.Fatalf("decode card: %v", err)
	}
	if !card.DidInterview {
		t.Fatal("projection should derive didInterview")
	}

	partial := FromCard(card, st, ai.FakeFactory(fake), Options{Rounds: 1})
	if partial.Loaded() || len(partial.Snapshot().Conversations) != 0 {
		t.Fatal("card persona must not carry transcripts")
	}
	if !partial.HasInterviewed() {
		t.Fatal("card persona should report the stored flag")
	}

	fake.Enqueue("my answers")
	if err := partial.AskFollowUps(ctx, "What would you pay?"); err != nil {
		t.Fatalf("AskFollowUps: %v", err)
	}

	doc, _ := st.Get(ctx, full.ID())
	stored, _ := model.Decode(doc.Body)
	if stored.FollowUpsAnswer != "my answers" {
		t.Fatalf("unexpected follow-ups answer %q", stored.FollowUpsAnswer)
	}
	if len(stored.Conversations) != len(ai.InterviewScript) {
		t.Fatalf("transcript lost after partial update: %d threads", len(stored.Conversations))
	}
}

func TestPersistRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := newStore()
	p := newPersona(t, st, ai.FakeFactory(ai.NewFake()), Options{Rounds: 1, PersistAPIKey: true})
	if err := p.SetPerspective(ctx, "budget holder"); err != nil {
		t.Fatalf("SetPerspective: %v", err)
	}

	reloaded, err := Load(ctx, st, p.ID(), ai.FakeFactory(ai.NewFake()), DefaultOptions())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	got := reloaded.Snapshot()
	want := p.Snapshot()
	if got.ID != want.ID || got.Description != want.Description || got.Name != want.Name ||
		got.About != want.About || got.Product != want.Product || got.Customer != want.Customer ||
		got.Perspective != "budget holder" || got.Type != model.DocType {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, want)
	}

	doc, _ := st.Get(ctx, p.ID())
	if !strings.Contains(string(doc.Body), `"openAIKey":"sk-test"`) {
		t.Fatalf("credential should be persisted when enabled: %s", doc.Body)
	}
}

func TestCredentialNotPersistedByDefault(t *testing.T) {
	st := newStore()
	p := newPersona(t, st, ai.FakeFactory(ai.NewFake()), DefaultOptions())
	doc, _ := st.Get(context.Background(), p.ID())
	if !strings.Contains(string(doc.Body), `"openAIKey":""`) {
		t.Fatalf("credential leaked into document: %s", doc.Body)
	}
}

func TestMissingKeySurfacesBeforeAnyTurn(t *testing.T) {
	st := newStore()
	factory := func(context.Context, string, string) (ai.Completer, error) { return nil, ai.ErrMissingAPIKey }
	p := newPersona(t, st, factory, DefaultOptions())

	err := p.PursueQuestions(context.Background(), "Why?", NewThread, 1)
	if !errors.Is(err, ai.ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
	if len(p.Snapshot().Conversations) != 0 {
		t.Fatal("no thread should be opened without a completer")
	}
}

func TestTranscriptRuneSafe(t *testing.T) {
	threads := []model.Thread{{{By: model.ByInterviewer, Text: "日本語のテキスト"}}}
	full, err := Transcript(threads, 0)
	if err != nil {
		t.Fatalf("Transcript: %v", err)
	}
	cut, _ := Transcript(threads, 33)
	if len([]rune(cut)) != 33 || !strings.HasPrefix(full, cut) {
		t.Fatalf("unexpected cut %q of %q", cut, full)
	}
	if empty, _ := Transcript(nil, 10); empty != "[]" {
		t.Fatalf("nil conversations should encode as [], got %q", empty)
	}
}

func TestRoundsDefaultAndCap(t *testing.T) {
	cases := map[string]Options{
		"zero options":  {},
		"negative":      {Rounds: -4},
		"above the cap": {Rounds: 7},
	}
	for name, opts := range cases {
		t.Run(name, func(t *testing.T) {
			p := newPersona(t, newStore(), ai.FakeFactory(ai.NewFake()), opts)
			if err := p.DoInterview(context.Background()); err != nil {
				t.Fatalf("DoInterview: %v", err)
			}
			snap := p.Snapshot()
			if !snap.DidInterview {
				t.Fatal("interview not marked complete")
			}
			if len(snap.Conversations) != len(ai.InterviewScript) {
				t.Fatalf("expected %d threads, got %d", len(ai.InterviewScript), len(snap.Conversations))
			}
			for i, thread := range snap.Conversations {
				if len(thread) != 2*MaxRounds {
					t.Fatalf("thread %d has %d turns, want %d", i, len(thread), 2*MaxRounds)
				}
			}
		})
	}
}

func TestPursueQuestionsCapsRounds(t *testing.T) {
	p := newPersona(t, newStore(), ai.FakeFactory(ai.NewFake()), Options{Rounds: 1})
	if err := p.PursueQuestions(context.Background(), "Why?", NewThread, 9); err != nil {
		t.Fatalf("PursueQuestions: %v", err)
	}
	snap := p.Snapshot()
	if len(snap.Conversations) != 1 || snap.Conversations[0].Rounds() != MaxRounds {
		t.Fatalf("expected one thread of %d rounds, got %+v", MaxRounds, snap.Conversations)
	}
}
