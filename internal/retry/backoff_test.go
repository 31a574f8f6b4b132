package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig() Config {
	return Config{
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		MaxDelay:   4 * time.Millisecond,
		Multiplier: 2.0,
	}
}

func TestDoSucceedsFirstTry(t *testing.T) {
	calls := 0
	result := Do(context.Background(), fastConfig(), func() error {
		calls++
		return nil
	})
	if !result.Success || result.Attempts != 1 || calls != 1 {
		t.Fatalf("result = %+v, calls = %d", result, calls)
	}
}

func TestDoRetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	result := Do(context.Background(), fastConfig(), func() error {
		calls++
		if calls < 3 {
			return errors.New("connection reset by peer")
		}
		return nil
	})
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", result.Attempts)
	}
	if len(result.RetryReasons) != 2 {
		t.Errorf("retry reasons = %v, want 2 entries", result.RetryReasons)
	}
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	calls := 0
	permanent := errors.New("invalid request payload")
	result := Do(context.Background(), fastConfig(), func() error {
		calls++
		return permanent
	})
	if result.Success || calls != 1 {
		t.Fatalf("non-retryable error should stop immediately: %+v, calls = %d", result, calls)
	}
	if !errors.Is(result.LastError, permanent) {
		t.Errorf("LastError = %v", result.LastError)
	}
}

func TestDoExhaustsRetries(t *testing.T) {
	calls := 0
	result := Do(context.Background(), fastConfig(), func() error {
		calls++
		return errors.New("503 service unavailable")
	})
	if result.Success {
		t.Fatal("expected failure")
	}
	if calls != 4 {
		t.Errorf("calls = %d, want MaxRetries+1 = 4", calls)
	}
}

func TestDoHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	result := Do(ctx, fastConfig(), func() error {
		calls++
		cancel()
		return errors.New("timeout talking to upstream")
	})
	if result.Success {
		t.Fatal("expected failure")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 after cancellation", calls)
	}
	if !errors.Is(result.LastError, context.Canceled) {
		t.Errorf("LastError = %v, want context.Canceled", result.LastError)
	}
}

func TestBackoffDelayGrowthAndCap(t *testing.T) {
	cfg := Config{BaseDelay: time.Second, MaxDelay: 5 * time.Second, Multiplier: 2.0}

	if got := backoffDelay(cfg, 0); got != time.Second {
		t.Errorf("attempt 0 delay = %v, want 1s", got)
	}
	if got := backoffDelay(cfg, 1); got != 2*time.Second {
		t.Errorf("attempt 1 delay = %v, want 2s", got)
	}
	if got := backoffDelay(cfg, 10); got != 5*time.Second {
		t.Errorf("attempt 10 delay = %v, want the 5s cap", got)
	}
}

func TestBackoffDelayJitterBounds(t *testing.T) {
	cfg := Config{BaseDelay: time.Second, MaxDelay: 30 * time.Second, Multiplier: 2.0, Jitter: true}
	for i := 0; i < 100; i++ {
		d := backoffDelay(cfg, 2)
		if d < 3600*time.Millisecond || d > 4400*time.Millisecond {
			t.Fatalf("jittered delay %v outside the 10%% band around 4s", d)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("connection refused"), true},
		{errors.New("HTTP 429 Too Many Requests"), true},
		{errors.New("context deadline exceeded"), true},
		{errors.New("no such host"), true},
		{errors.New("invalid api key"), false},
		{errors.New("response parse failed after repair"), false},
	}
	for _, tt := range tests {
		if got := IsRetryable(tt.err); got != tt.want {
			t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
