package services

import (
	"context"
	"errors"
	"time"
)

// RetryPolicy bounds the transparent retries of lost compare-and-set races.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Backoff: 50 * time.Millisecond}
}

// Do runs op until it succeeds, fails with an error other than
// ErrConcurrentModification, or the attempts are used up. Backoff doubles per attempt.
func (p RetryPolicy) Do(ctx context.Context, op func(attempt int) error) error {
	attempts := max(p.Attempts, 1)
	backoff := p.Backoff

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = op(attempt)
		if !errors.Is(err, ErrConcurrentModification) || attempt == attempts {
			return err
		}

		if backoff > 0 {
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			backoff *= 2
		}
	}
	return err
}
