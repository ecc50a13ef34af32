package agent

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"grimm.is/portguard/internal/config"
)

// RetryConfig configures retry behavior.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	Jitter        bool

	// RetryableErrors restricts retries to matching errors; empty retries everything.
	RetryableErrors []error
	// PermanentErrors are never retried, even if RetryableErrors is empty.
	PermanentErrors []error

	// OnRetry is called before each wait with the attempt that just failed (1-based).
	OnRetry func(attempt int, err error)
}

// DefaultRetryConfig returns the defaults used when the config has no retry block.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   config.DefaultMaxAttempts,
		InitialDelay:  500 * time.Millisecond,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        true,
	}
}

// RetryFromConfig builds a RetryConfig from the retry block. A nil block gives the defaults.
func RetryFromConfig(rc *config.RetryConfig) (RetryConfig, error) {
	cfg := DefaultRetryConfig()
	if rc == nil {
		return cfg, nil
	}
	initial, maximum, err := rc.Delays()
	if err != nil {
		return cfg, err
	}
	if rc.MaxAttempts > 0 {
		cfg.MaxAttempts = rc.MaxAttempts
	}
	cfg.InitialDelay = initial
	cfg.MaxDelay = maximum
	return cfg, nil
}

// Retry executes a function with exponential backoff retry.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err, cfg) {
			return err
		}

		// Don't sleep after the last attempt
		if attempt == cfg.MaxAttempts-1 {
			break
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(calculateDelay(attempt, cfg)):
		}
	}

	return lastErr
}

func calculateDelay(attempt int, cfg RetryConfig) time.Duration {
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.BackoffFactor, float64(attempt))

	if cfg.Jitter {
		// Add up to 25% jitter
		delay += delay * 0.25 * rand.Float64()
	}

	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}

	return time.Duration(delay)
}

func isRetryable(err error, cfg RetryConfig) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	for _, permanent := range cfg.PermanentErrors {
		if errors.Is(err, permanent) {
			return false
		}
	}

	if len(cfg.RetryableErrors) == 0 {
		return true
	}
	for _, retryable := range cfg.RetryableErrors {
		if errors.Is(err, retryable) {
			return true
		}
	}
	return false
}
