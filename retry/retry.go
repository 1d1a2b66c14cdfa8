// Package retry runs fallible units of work with bounded attempts and backoff.
//
// Operations handed to the executor must be safe to repeat: reads, or writes
// that are naturally idempotent such as an upsert keyed by id. Each attempt is
// a fresh, complete execution and nothing is carried between attempts.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"net"
	"time"

	apperrors "github.com/jrsteele09/go-backoffice/internal/errors"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Backoff returns the delay to wait after the given failed attempt (1-based).
type Backoff func(attempt int) time.Duration

// Classifier reports whether an error is worth another attempt.
type Classifier func(err error) bool

// Policy configures a single Do/Run invocation.
type Policy struct {
	Name        string // Operation name used in logs and the exhaustion message
	MaxAttempts int
	Backoff     Backoff
	IsRetryable Classifier
}

// DefaultPolicy is 3 attempts, exponential backoff from 100ms capped at 2s,
// retrying transient store failures only.
func DefaultPolicy(name string) Policy {
	return Policy{
		Name:        name,
		MaxAttempts: 3,
		Backoff:     Exponential(100*time.Millisecond, 2*time.Second),
		IsRetryable: IsTransient,
	}
}

// Named returns a copy of p with the operation name replaced.
func (p Policy) Named(name string) Policy {
	p.Name = name
	return p
}

// ExhaustedError is returned when every attempt failed with a retryable error.
type ExhaustedError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return errors.Wrapf(e.Err, "failed %d attempt(s) to %s", e.Attempts, e.Op).Error()
}

func (e *ExhaustedError) Unwrap() []error {
	return []error{apperrors.ErrExhaustedRetry, e.Err}
}

// Do invokes op until it succeeds, fails with a non-retryable error or
// p.MaxAttempts is reached. Attempts are strictly sequential. The wait between
// attempts is abandoned when ctx is done.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	isRetryable := p.IsRetryable
	if isRetryable == nil {
		isRetryable = IsTransient
	}
	name := p.Name
	if name == "" {
		name = "run operation"
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			if attempt > 1 {
				log.Debug().Str("op", name).Int("attempt", attempt).Msg("operation succeeded after retry")
			}
			return result, nil
		}
		lastErr = err

		if !isRetryable(err) {
			return zero, err
		}
		if attempt == maxAttempts {
			break
		}

		var delay time.Duration
		if p.Backoff != nil {
			delay = p.Backoff(attempt)
		}
		log.Warn().Err(err).
			Str("op", name).
			Int("attempt", attempt).
			Int("max_attempts", maxAttempts).
			Dur("delay", delay).
			Msg("operation failed, will retry")

		if err := wait(ctx, delay); err != nil {
			return zero, fmt.Errorf("[retry] %s cancelled after %d attempt(s): %w", name, attempt, err)
		}
	}

	return zero, &ExhaustedError{Op: name, Attempts: maxAttempts, Err: lastErr}
}

// Run is Do for operations without a result.
func Run(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	_, err := Do(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

func wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Fixed waits the same delay after every failure.
func Fixed(delay time.Duration) Backoff {
	return func(int) time.Duration {
		return delay
	}
}

// Exponential doubles the delay after every failure starting at initial and
// capping at max. The result is jittered into [d/2, d).
func Exponential(initial, max time.Duration) Backoff {
	return func(attempt int) time.Duration {
		base := float64(initial) * math.Pow(2, float64(attempt-1))
		capped := math.Min(base, float64(max))
		jittered := (1 + rand.Float64()) * (capped / 2)
		return time.Duration(jittered)
	}
}

// IsTransient is the default classifier: store hiccups, attempt timeouts and
// network timeouts are retried, everything else is terminal.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if apperrors.Is(err, apperrors.ErrValidation) ||
		apperrors.Is(err, apperrors.ErrNotFound) ||
		apperrors.Is(err, context.Canceled) {
		return false
	}
	if apperrors.Is(err, apperrors.ErrTransientStore) ||
		apperrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if apperrors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}
