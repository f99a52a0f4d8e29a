// Package retry provides bounded retries with a delay schedule for
// transient failures such as SQLite lock contention.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Config holds retry configuration.
type Config struct {
	MaxAttempts int
	Delays      []time.Duration
}

// Do executes fn up to MaxAttempts times. Between attempts it waits
// according to the delay schedule, reusing the last delay when the
// schedule runs out. An error the classifier rejects is returned
// immediately; only retryable errors consume further attempts.
func Do(ctx context.Context, cfg Config, isRetryable func(error) bool, fn func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			delayIndex := attempt - 1
			if delayIndex >= len(cfg.Delays) {
				delayIndex = len(cfg.Delays) - 1
			}
			var delay time.Duration
			if delayIndex >= 0 && len(cfg.Delays) > 0 {
				delay = cfg.Delays[delayIndex]
			}

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return fmt.Errorf("retry cancelled: %w", ctx.Err())
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		if isRetryable != nil && !isRetryable(err) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
}
