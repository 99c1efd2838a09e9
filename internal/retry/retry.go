// Package retry runs data-access operations with bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/savannah-faces/data-service/internal/config"
)

// Policy controls how a failing operation is retried.
//
// The pause after failed attempt n is Multiplier * 2^(n-1), clamped to
// [MinWait, MaxWait]. At most MaxAttempts attempts are made; when they are
// used up the last error is returned unchanged.
type Policy struct {
	MaxAttempts int
	Multiplier  time.Duration
	MinWait     time.Duration
	MaxWait     time.Duration

	// Retryable reports whether an error is worth another attempt.
	// Nil retries every error except context cancellation.
	Retryable func(error) bool

	// OnRetry runs before each pause. attempt is the attempt that just failed.
	OnRetry func(attempt int, err error, wait time.Duration)
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		Multiplier:  time.Second,
		MinWait:     2 * time.Second,
		MaxWait:     30 * time.Second,
	}
}

func FromConfig(cfg config.RetryConfig) Policy {
	return Policy{
		MaxAttempts: cfg.MaxAttempts,
		Multiplier:  cfg.Multiplier,
		MinWait:     cfg.MinWait,
		MaxWait:     cfg.MaxWait,
	}
}

// Wait returns the pause that follows failed attempt n (1-based).
func (p Policy) Wait(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	wait := p.MaxWait
	factor := math.Pow(2, float64(attempt-1))
	if scaled := float64(p.Multiplier) * factor; scaled < float64(math.MaxInt64) {
		wait = time.Duration(scaled)
	}

	if wait > p.MaxWait {
		wait = p.MaxWait
	}
	if wait < p.MinWait {
		wait = p.MinWait
	}
	if wait < 0 {
		wait = 0
	}
	return wait
}

// Do calls op until it succeeds, fails with a non-retryable error, the
// attempts run out or ctx is done.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var b backoff.BackOff = &exponential{policy: p}
	b = backoff.WithMaxRetries(b, uint64(attempts-1))
	b = backoff.WithContext(b, ctx)

	attempt := 0
	operation := func() error {
		attempt++
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !p.retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, wait)
		}
	}

	return backoff.RetryNotify(operation, b, notify)
}

func (p Policy) retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if p.Retryable == nil {
		return true
	}
	return p.Retryable(err)
}

// exponential adapts Policy.Wait to backoff.BackOff.
type exponential struct {
	policy  Policy
	attempt int
}

func (e *exponential) NextBackOff() time.Duration {
	e.attempt++
	return e.policy.Wait(e.attempt)
}

func (e *exponential) Reset() {
	e.attempt = 0
}
