package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"grimm.is/portguard/internal/config"
)

func fastRetry() RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.InitialDelay = time.Millisecond
	cfg.MaxDelay = 5 * time.Millisecond
	return cfg
}

func TestRetry_Success(t *testing.T) {
	count := 0
	err := Retry(context.Background(), fastRetry(), func() error {
		count++
		return nil
	})

	if err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 attempt, got %d", count)
	}
}

func TestRetry_FailThenSuccess(t *testing.T) {
	cfg := fastRetry()
	cfg.MaxAttempts = 3

	var retried []int
	cfg.OnRetry = func(attempt int, err error) { retried = append(retried, attempt) }

	count := 0
	err := Retry(context.Background(), cfg, func() error {
		count++
		if count < 2 {
			return errors.New("temporary error")
		}
		return nil
	})

	if err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 attempts, got %d", count)
	}
	if len(retried) != 1 || retried[0] != 1 {
		t.Errorf("expected OnRetry for attempt 1 only, got %v", retried)
	}
}

func TestRetry_FailMaxAttempts(t *testing.T) {
	cfg := fastRetry()
	cfg.MaxAttempts = 3

	expectedErr := errors.New("permanent error")
	count := 0

	err := Retry(context.Background(), cfg, func() error {
		count++
		return expectedErr
	})

	if !errors.Is(err, expectedErr) {
		t.Errorf("expected error %v, got %v", expectedErr, err)
	}
	if count != 3 {
		t.Errorf("expected 3 attempts, got %d", count)
	}
}

func TestRetry_NonRetryable(t *testing.T) {
	errTemporary := errors.New("temporary")
	cfg := fastRetry()
	cfg.RetryableErrors = []error{errTemporary}

	count := 0
	err := Retry(context.Background(), cfg, func() error {
		count++
		return errors.New("fatal problem")
	})

	if err == nil {
		t.Error("expected error")
	}
	if count != 1 {
		t.Errorf("expected 1 attempt, got %d", count)
	}
}

func TestRetry_PermanentError(t *testing.T) {
	errBad := errors.New("bad rule")
	cfg := fastRetry()
	cfg.PermanentErrors = []error{errBad}

	count := 0
	err := Retry(context.Background(), cfg, func() error {
		count++
		return errors.Join(errors.New("create failed"), errBad)
	})

	if !errors.Is(err, errBad) {
		t.Errorf("expected wrapped errBad, got %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 attempt, got %d", count)
	}
}

func TestRetry_ContextCancel(t *testing.T) {
	cfg := DefaultRetryConfig()
	cfg.InitialDelay = 100 * time.Millisecond // Long enough to cancel

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := Retry(ctx, cfg, func() error {
		return errors.New("fail")
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context canceled, got %v", err)
	}
}

func TestCalculateDelay_Capped(t *testing.T) {
	cfg := RetryConfig{InitialDelay: time.Second, MaxDelay: 3 * time.Second, BackoffFactor: 2}

	want := []time.Duration{time.Second, 2 * time.Second, 3 * time.Second, 3 * time.Second}
	for attempt, w := range want {
		if got := calculateDelay(attempt, cfg); got != w {
			t.Errorf("attempt %d: expected %v, got %v", attempt, w, got)
		}
	}
}

func TestRetryFromConfig(t *testing.T) {
	cfg, err := RetryFromConfig(nil)
	if err != nil {
		t.Fatalf("nil block: %v", err)
	}
	if cfg.MaxAttempts != config.DefaultMaxAttempts {
		t.Errorf("expected default attempts, got %d", cfg.MaxAttempts)
	}

	cfg, err = RetryFromConfig(&config.RetryConfig{MaxAttempts: 5, InitialDelay: "1s", MaxDelay: "1m"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MaxAttempts != 5 || cfg.InitialDelay != time.Second || cfg.MaxDelay != time.Minute {
		t.Errorf("unexpected config: %+v", cfg)
	}

	if _, err := RetryFromConfig(&config.RetryConfig{InitialDelay: "soon", MaxDelay: "1m"}); err == nil {
		t.Error("expected error for bad delay")
	}
}
