package httpx

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Classifier decides whether an error observed by Retry should be retried.
// This replaces the source's decorator-based retry (spec §9): callers pass
// the policy and the classification function explicitly instead of
// annotating methods.
type Classifier func(err error) bool

// Policy parameterizes Retry. MaxAttempts counts the initial attempt, so
// MaxAttempts=3 performs at most 2 retries, matching §4.1 ("Maximum 3
// attempts; backoff 2^n seconds capped at 10s").
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy implements §4.1's CatalogClient retry contract.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    10 * time.Second,
	}
}

// Retry runs op, retrying on errors accepted by classify using exponential
// backoff with jitter, capped at policy.MaxDelay. It stops retrying as soon
// as ctx is done or the attempt budget is exhausted, returning the last
// error observed.
func Retry(ctx context.Context, policy Policy, classify Classifier, op func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !classify(lastErr) {
			return lastErr
		}
		if attempt == policy.MaxAttempts-1 {
			break
		}

		delay := backoffDelay(policy, attempt)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}

// backoffDelay computes 2^attempt seconds capped at policy.MaxDelay, plus
// up to 20% jitter, using backoff/v4's ExponentialBackOff as the underlying
// policy implementation (§11 domain stack).
func backoffDelay(policy Policy, attempt int) time.Duration {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = policy.BaseDelay
	eb.Multiplier = 2
	eb.MaxInterval = policy.MaxDelay
	eb.RandomizationFactor = 0.2

	eb.Reset()
	var d time.Duration
	for i := 0; i <= attempt; i++ {
		d = eb.NextBackOff()
		if d == backoff.Stop {
			d = policy.MaxDelay
			break
		}
	}
	if d > policy.MaxDelay {
		d = policy.MaxDelay
	}
	return d
}

// jitter returns a duration in [d*(1-frac), d*(1+frac)], without the full
// backoff curve. Nothing in the module calls it at present.
func jitter(d time.Duration, frac float64) time.Duration {
	if frac <= 0 {
		return d
	}
	delta := float64(d) * frac
	offset := (rand.Float64()*2 - 1) * delta
	return d + time.Duration(offset)
}

// ErrNonRetryable marks an error as never retryable by a Classifier that
// otherwise matches broadly (e.g. "retry all transport errors except these").
var ErrNonRetryable = errors.New("non-retryable error")
