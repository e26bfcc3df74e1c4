package interview

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/zhouzirui/epiphany/backend/internal/metrics"
	model "github.com/zhouzirui/epiphany/backend/internal/model/persona"
	"github.com/zhouzirui/epiphany/backend/internal/observability"
	"github.com/zhouzirui/epiphany/backend/internal/service/ai"
)

// DoInterview clears the transcript and runs every scripted question in
// order, then marks the persona as interviewed.
func (p *Persona) DoInterview(ctx context.Context) (err error) {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	ctx, span := observability.Tracer().Start(ctx, "interview.do")
	defer span.End()

	if err := p.EnsureLoaded(ctx); err != nil {
		return err
	}

	p.mu.Lock()
	p.interviewing = true
	p.doc.Conversations = []model.Thread{}
	p.doc.DidInterview = false
	span.SetAttributes(attribute.String("persona.id", p.doc.ID))
	p.mu.Unlock()

	metrics.InterviewsRunning.Inc()
	defer func() {
		metrics.InterviewsRunning.Dec()
		p.mu.Lock()
		p.interviewing = false
		p.mu.Unlock()

		outcome := "completed"
		switch {
		case err != nil && ctx.Err() != nil:
			outcome = "canceled"
		case err != nil:
			outcome = "failed"
		}
		metrics.Interviews.WithLabelValues(outcome).Inc()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			p.logf("interview %s: %v", outcome, err)
		}
	}()

	p.logf("interview started")
	for i, question := range ai.InterviewScript {
		if err := p.pursue(ctx, question, NewThread, p.opts.Rounds); err != nil {
			return fmt.Errorf("question %d: %w", i+1, err)
		}
	}

	p.mu.Lock()
	p.doc.DidInterview = true
	p.mu.Unlock()
	if err := p.Persist(ctx); err != nil {
		return err
	}
	p.logf("interview completed")
	return nil
}

// PursueQuestions asks question and up to rounds-1 derived follow-ups,
// appending to the thread at index thread (or a new one for NewThread).
// rounds < 1 is a no-op and rounds above MaxRounds are capped.
func (p *Persona) PursueQuestions(ctx context.Context, question string, thread, rounds int) error {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	if rounds < 1 {
		return nil
	}
	if err := p.EnsureLoaded(ctx); err != nil {
		return err
	}
	return p.pursue(ctx, question, thread, rounds)
}

func (p *Persona) pursue(ctx context.Context, question string, thread, rounds int) error {
	if rounds < 1 {
		return nil
	}
	if rounds > MaxRounds {
		rounds = MaxRounds
	}
	chat, interviewer, err := p.completers(ctx)
	if err != nil {
		return err
	}

	p.mu.Lock()
	if thread == NewThread {
		p.doc.Conversations = append(p.doc.Conversations, model.Thread{})
		thread = len(p.doc.Conversations) - 1
	} else if thread < 0 || thread >= len(p.doc.Conversations) {
		p.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownThread, thread)
	}
	p.mu.Unlock()

	for ; rounds > 0; rounds-- {
		if err := ctx.Err(); err != nil {
			return err
		}

		p.mu.Lock()
		brief := p.brief()
		messages := make([]ai.Message, 0, 3)
		if !p.didAsk {
			messages = append(messages, ai.PrimingPrompt(brief))
			p.didAsk = true
		}
		messages = append(messages, ai.ReminderPrompt(brief), ai.Human(question))
		p.doc.Conversations[thread] = append(p.doc.Conversations[thread], model.Turn{By: model.ByInterviewer, Text: question})
		p.mu.Unlock()

		if err := p.Persist(ctx); err != nil {
			return err
		}

		answer, err := chat.Complete(ctx, messages)
		if err != nil {
			return fmt.Errorf("persona answer: %w", err)
		}

		p.mu.Lock()
		p.doc.Conversations[thread] = append(p.doc.Conversations[thread], model.Turn{By: model.ByPersona, Text: answer})
		p.mu.Unlock()

		if err := p.Persist(ctx); err != nil {
			return err
		}

		next, err := interviewer.Complete(ctx, ai.NextQuestionPrompt(brief.Description, question, answer))
		if err != nil {
			return fmt.Errorf("next question: %w", err)
		}
		question = next
	}
	return nil
}

// SummarizeInterview overwrites interviewSummary with a fresh summary of the
// (truncated) transcript.
func (p *Persona) SummarizeInterview(ctx context.Context) error {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	ctx, span := observability.Tracer().Start(ctx, "interview.summarize")
	defer span.End()

	if err := p.EnsureLoaded(ctx); err != nil {
		return err
	}
	chat, _, err := p.completers(ctx)
	if err != nil {
		return err
	}

	p.mu.Lock()
	text, err := Transcript(p.doc.Conversations, p.opts.SummaryTranscriptLimit)
	p.mu.Unlock()
	if err != nil {
		return err
	}

	summary, err := chat.Complete(ctx, ai.SummaryPrompt(text))
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("summarize interview: %w", err)
	}

	p.mu.Lock()
	p.doc.InterviewSummary = summary
	p.mu.Unlock()
	return p.Persist(ctx)
}

// AskFollowUps puts the session follow-up questions to the persona.
func (p *Persona) AskFollowUps(ctx context.Context, followUps string) error {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	if err := p.EnsureLoaded(ctx); err != nil {
		return err
	}
	chat, _, err := p.completers(ctx)
	if err != nil {
		return err
	}

	answer, err := chat.Complete(ctx, []ai.Message{ai.Human(followUps)})
	if err != nil {
		return fmt.Errorf("ask follow-ups: %w", err)
	}

	p.mu.Lock()
	p.doc.FollowUpsAnswer = answer
	p.mu.Unlock()
	return p.Persist(ctx)
}

// Transcript serializes conversations as JSON, cut to at most limit runes.
// A non-positive limit disables the cut.
func Transcript(conversations []model.Thread, limit int) (string, error) {
	if conversations == nil {
		conversations = []model.Thread{}
	}
	raw, err := json.Marshal(conversations)
	if err != nil {
		return "", fmt.Errorf("encode transcript: %w", err)
	}
	text := string(raw)
	if limit <= 0 {
		return text, nil
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text, nil
	}
	return string(runes[:limit]), nil
}
