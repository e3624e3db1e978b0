// Package backoff provides retry utilities with fixed delay schedules.
package backoff

import (
	"context"
	"fmt"
	"time"
)

type Strategy struct {
	Delays []time.Duration
}

var (
	// Search allows a single quick retry, used for in-turn catalogue calls
	// that must stay inside the turn deadline.
	Search = Strategy{
		Delays: []time.Duration{200 * time.Millisecond},
	}

	Standard = Strategy{
		Delays: []time.Duration{
			500 * time.Millisecond,
			1 * time.Second,
			2 * time.Second,
			4 * time.Second,
		},
	}
)

type RetryFunc func(ctx context.Context, attempt int) error

// Retry runs fn once plus one extra attempt per configured delay.
func Retry(ctx context.Context, strategy Strategy, fn RetryFunc) error {
	var lastErr error
	attempts := len(strategy.Delays) + 1

	for i := 0; i < attempts; i++ {
		if err := fn(ctx, i+1); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if i == len(strategy.Delays) {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(strategy.Delays[i]):
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}
