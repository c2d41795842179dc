// Package retry runs an operation again when it fails with a retryable error,
// backing off exponentially between attempts.
package retry

import (
	"context"
	"math/rand"
	"time"
)

// Config holds configuration for retry behavior.
type Config struct {
	// MaxRetries is the number of additional attempts after the first one.
	MaxRetries int

	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// Jitter adds up to one extra backoff of randomness to each wait.
	Jitter bool
}

func DefaultConfig() Config {
	return Config{
		MaxRetries:     5,
		InitialBackoff: 5 * time.Millisecond,
		MaxBackoff:     200 * time.Millisecond,
		Jitter:         true,
	}
}

// IsRetryableFunc determines if an error should trigger a retry.
type IsRetryableFunc func(error) bool

// OnRetryFunc is called before each retry; attempt is 1-indexed.
type OnRetryFunc func(attempt int, err error, backoff time.Duration)

// Do calls fn at least once and retries while isRetryable(err) holds, up to cfg.MaxRetries times.
func Do(ctx context.Context, cfg Config, isRetryable IsRetryableFunc, onRetry OnRetryFunc, fn func() error) error {
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 5 * time.Millisecond
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}

	backoff := cfg.InitialBackoff
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || attempt >= cfg.MaxRetries || isRetryable == nil || !isRetryable(err) {
			return err
		}

		wait := backoff
		if cfg.Jitter {
			wait += time.Duration(rand.Int63n(int64(backoff) + 1))
		}
		if onRetry != nil {
			onRetry(attempt+1, err, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		backoff *= 2
		if backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}
}
