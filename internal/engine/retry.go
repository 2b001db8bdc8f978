package engine

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// RetryPolicy is exponential backoff starting at BaseDelay and doubling on
// each retry, for at most MaxRetries retries after the first attempt.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// MaxAttempts is the total number of calls the policy allows.
func (p RetryPolicy) MaxAttempts() int {
	return p.MaxRetries + 1
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	base := p.BaseDelay
	if base <= 0 {
		base = time.Millisecond
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = 24 * time.Hour
	b.MaxElapsedTime = 0
	retries := p.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

// RetryObserver is told about every scheduled retry.
type RetryObserver func(kind string, attempt int, delay time.Duration, err error)

// retry runs op under policy p. Only Retryable errors are retried; anything
// else is returned after the first attempt.
func (e *Engine) retry(ctx context.Context, kind string, p RetryPolicy, op func() error) error {
	attempt := 0
	wrapped := func() error {
		attempt++
		start := time.Now()
		err := op()
		observeRequest(kind, start, err)
		if err != nil && !Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, delay time.Duration) {
		e.logger.Warn("Generation rate limited, retrying",
			zap.String("kind", kind),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if e.retryObserver != nil {
			e.retryObserver(kind, attempt, delay, err)
		}
	}
	return backoff.RetryNotify(wrapped, p.backOff(ctx), notify)
}
