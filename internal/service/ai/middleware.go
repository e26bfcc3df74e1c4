package ai

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"github.com/zhouzirui/epiphany/backend/internal/metrics"
	"github.com/zhouzirui/epiphany/backend/internal/observability"
)

// Middleware decorates a Completer.
type Middleware func(next Completer) Completer

// Wrap applies middlewares so the first one listed is the outermost.
func Wrap(c Completer, mws ...Middleware) Completer {
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			c = mws[i](c)
		}
	}
	return c
}

const maxBackoff = 20 * time.Second

// Retry retries failed calls up to maxAttempts with exponential backoff and
// jitter starting at baseDelay. Permanent errors and context cancellation
// stop it immediately.
func Retry(maxAttempts int, baseDelay time.Duration) Middleware {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 300 * time.Millisecond
	}
	return func(next Completer) Completer {
		return CompleterFunc(func(ctx context.Context, messages []Message) (string, error) {
			var last error
			for attempt := 0; attempt < maxAttempts; attempt++ {
				out, err := next.Complete(ctx, messages)
				if err == nil {
					return out, nil
				}
				var pErr *PermanentError
				if errors.As(err, &pErr) || errors.Is(err, ErrMissingAPIKey) {
					return "", err
				}
				if ctx.Err() != nil {
					return "", ctx.Err()
				}
				last = err
				if attempt == maxAttempts-1 {
					break
				}
				log.Printf("[ai] attempt %d/%d failed: %v", attempt+1, maxAttempts, err)
				if !sleepWithContext(ctx, withJitter(expBackoff(attempt, baseDelay, maxBackoff))) {
					return "", ctx.Err()
				}
			}
			return "", last
		})
	}
}

// RateLimit waits on a shared limiter before each call. A nil limiter is a no-op.
func RateLimit(limiter *rate.Limiter) Middleware {
	return func(next Completer) Completer {
		if limiter == nil {
			return next
		}
		return CompleterFunc(func(ctx context.Context, messages []Message) (string, error) {
			if err := limiter.Wait(ctx); err != nil {
				return "", err
			}
			return next.Complete(ctx, messages)
		})
	}
}

// NewLimiter returns nil when rps is not positive.
func NewLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// Timeout bounds every call.
func Timeout(d time.Duration) Middleware {
	return func(next Completer) Completer {
		if d <= 0 {
			return next
		}
		return CompleterFunc(func(ctx context.Context, messages []Message) (string, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next.Complete(ctx, messages)
		})
	}
}

// Instrument records metrics, a span and a log line per call.
func Instrument(provider, purpose string) Middleware {
	return func(next Completer) Completer {
		return CompleterFunc(func(ctx context.Context, messages []Message) (string, error) {
			ctx, span := observability.Tracer().Start(ctx, "ai.complete")
			span.SetAttributes(
				attribute.String("ai.provider", provider),
				attribute.String("ai.purpose", purpose),
				attribute.Int("ai.messages", len(messages)),
			)
			defer span.End()

			start := time.Now()
			out, err := next.Complete(ctx, messages)
			elapsed := time.Since(start)

			metrics.CompletionRequests.WithLabelValues(provider, purpose, metrics.Outcome(err)).Inc()
			metrics.CompletionDuration.WithLabelValues(provider, purpose).Observe(elapsed.Seconds())
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				log.Printf("[ai] %s/%s failed after %s: %v", provider, purpose, elapsed.Round(time.Millisecond), err)
				return "", err
			}
			span.SetAttributes(attribute.Int("ai.response_length", len(out)))
			log.Printf("[ai] %s/%s completed in %s, length=%d", provider, purpose, elapsed.Round(time.Millisecond), len(out))
			return out, nil
		})
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func expBackoff(attempt int, initial, max time.Duration) time.Duration {
	if attempt <= 0 {
		return initial
	}
	d := initial << attempt
	if d <= 0 || (max > 0 && d > max) {
		return max
	}
	return d
}

// withJitter spreads d by +/-20%.
func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	j := 0.8 + rand.Float64()*0.4
	return time.Duration(float64(d) * j)
}
