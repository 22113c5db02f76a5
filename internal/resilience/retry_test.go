package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 1 * time.Millisecond,
		MaxBackoff:     10 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func TestDoVal_SuccessOnFirstAttempt(t *testing.T) {
	val, attempts, err := DoVal(context.Background(), fastConfig(), func(_ context.Context) (string, error) {
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "ok" {
		t.Errorf("expected ok, got %q", val)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

func TestDoVal_TwoRateLimitsThenSuccess(t *testing.T) {
	var calls int
	val, attempts, err := DoVal(context.Background(), fastConfig(), func(_ context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", NewTransientError(errors.New("rate limited"), 429)
		}
		return "answer", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "answer" {
		t.Errorf("expected answer, got %q", val)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestDoVal_ExhaustsRetries(t *testing.T) {
	_, attempts, err := DoVal(context.Background(), fastConfig(), func(_ context.Context) (string, error) {
		return "", NewTransientError(errors.New("always 503"), 503)
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestDoVal_PermanentError_NoRetry(t *testing.T) {
	_, attempts, err := DoVal(context.Background(), fastConfig(), func(_ context.Context) (string, error) {
		return "", NewPermanentError(errors.New("invalid api key"), 401)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
	if !IsPermanent(err) {
		t.Error("expected permanent error classification to survive")
	}
}

func TestDoVal_ContextCancelledStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	_, _, err := DoVal(ctx, fastConfig(), func(_ context.Context) (string, error) {
		calls++
		cancel()
		return "", NewTransientError(errors.New("temporary"), 500)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_WrapsDoVal(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastConfig(), func(_ context.Context) error {
		calls++
		if calls < 2 {
			return NewTransientError(errors.New("blip"), 502)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestComputeBackoff_CapAndGrowth(t *testing.T) {
	cfg := applyDefaults(RetryConfig{
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     4 * time.Second,
		Multiplier:     2.0,
		JitterFraction: -1, // normalized to 0
	})
	if got := computeBackoff(0, cfg); got != 1*time.Second {
		t.Errorf("attempt 0: expected 1s, got %v", got)
	}
	if got := computeBackoff(1, cfg); got != 2*time.Second {
		t.Errorf("attempt 1: expected 2s, got %v", got)
	}
	if got := computeBackoff(5, cfg); got != 4*time.Second {
		t.Errorf("attempt 5: expected cap 4s, got %v", got)
	}
}
