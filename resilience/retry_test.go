package resilience

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

func fastPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		BaseDelay:         time.Millisecond,
		MaxDelay:          5 * time.Millisecond,
		BackoffMultiplier: 2,
		Jitter:            0,
	}
}

func TestRetrySucceedsOnFirstAttempt(t *testing.T) {
	calls := 0
	result, err := Retry(context.Background(), fastPolicy(), ClassifyNetworkError, nil, func(ctx context.Context) (int, error) {
		calls++
		return 42, nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if result != 42 || calls != 1 {
		t.Fatalf("expected single successful call, got result=%d calls=%d", result, calls)
	}
}

func TestRetryRetriesRetryableErrors(t *testing.T) {
	calls := 0
	transient := &net.OpError{Op: "dial", Err: errors.New("connection refused")}
	_, err := Retry(context.Background(), fastPolicy(), ClassifyNetworkError, nil, func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, transient
		}
		return 7, nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestRetryStopsOnNonRetryableError(t *testing.T) {
	calls := 0
	permanent := errors.New("validation failed")
	_, err := Retry(context.Background(), fastPolicy(), ClassifyNetworkError, nil, func(ctx context.Context) (int, error) {
		calls++
		return 0, permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("expected permanent error surfaced, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected exactly 1 attempt for a non-retryable error, got %d", calls)
	}
}

func TestRetryExhaustsMaxAttempts(t *testing.T) {
	calls := 0
	transient := errors.New("connection reset")
	_, err := Retry(context.Background(), fastPolicy(), ClassifyNetworkError, nil, func(ctx context.Context) (int, error) {
		calls++
		return 0, transient
	})
	if err == nil {
		t.Fatal("expected an error after exhausting attempts")
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts (MaxAttempts), got %d", calls)
	}
}

func TestRetryInvokesAttemptCounter(t *testing.T) {
	var attempts []int
	transient := errors.New("timeout")
	_, _ = Retry(context.Background(), fastPolicy(), ClassifyNetworkError, func(attempt int, err error) {
		attempts = append(attempts, attempt)
	}, func(ctx context.Context) (int, error) {
		return 0, transient
	})
	if len(attempts) != 3 {
		t.Fatalf("expected 3 recorded attempts, got %v", attempts)
	}
}

func TestClassifyNetworkError(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("connection refused"), true},
		{errors.New("connection reset by peer"), true},
		{errors.New("i/o timeout"), true},
		{errors.New("no such host"), true},
		{errors.New("invalid signature"), false},
		{errors.New("validation failed"), false},
		{context.DeadlineExceeded, true},
	}
	for _, c := range cases {
		if got := ClassifyNetworkError(c.err); got != c.want {
			t.Errorf("ClassifyNetworkError(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}
