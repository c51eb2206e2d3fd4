// Package retry provides bounded exponential backoff for transient failures.
package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// Config controls the backoff loop.
type Config struct {
	// MaxRetries is the number of attempts after the first failure.
	MaxRetries int

	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the delay between retries.
	MaxBackoff time.Duration

	// JitterFraction randomizes each delay by up to this fraction.
	JitterFraction float64
}

// DefaultConfig returns conservative defaults for background writes.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		JitterFraction: 0.2,
	}
}

// Do runs op, retrying with exponential backoff on error until it succeeds,
// attempts are exhausted, or ctx is done. The last error is returned.
func Do(ctx context.Context, cfg Config, op func(ctx context.Context) error) error {
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}

	var lastErr error
	backoff := cfg.InitialBackoff

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := backoff
			if cfg.JitterFraction > 0 {
				jitter := time.Duration(float64(delay) * cfg.JitterFraction * rand.Float64())
				delay += jitter
			}

			select {
			case <-ctx.Done():
				return fmt.Errorf("retry aborted: %w", ctx.Err())
			case <-time.After(delay):
			}

			backoff *= 2
			if backoff > cfg.MaxBackoff {
				backoff = cfg.MaxBackoff
			}
		}

		if lastErr = op(ctx); lastErr == nil {
			return nil
		}
	}

	return fmt.Errorf("all %d attempts failed: %w", cfg.MaxRetries+1, lastErr)
}
