package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cfg := BreakerConfig{FailureThreshold: 2, ResetTimeout: 50 * time.Millisecond, HalfOpenMaxCalls: 1}
	cb := NewCircuitBreaker[int]("test", cfg, nil)

	failing := func(ctx context.Context) (int, error) { return 0, errors.New("boom") }

	for i := 0; i < 2; i++ {
		if _, err := cb.Execute(context.Background(), failing); err == nil {
			t.Fatal("expected failing op to return an error")
		}
	}

	if cb.State() != "open" {
		t.Fatalf("expected breaker open after threshold failures, got %q", cb.State())
	}

	_, err := cb.Execute(context.Background(), func(ctx context.Context) (int, error) {
		t.Fatal("op must not be invoked while breaker is open")
		return 0, nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestCircuitBreakerRecoversAfterResetTimeout(t *testing.T) {
	cfg := BreakerConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Millisecond, HalfOpenMaxCalls: 1}
	cb := NewCircuitBreaker[int]("test", cfg, nil)

	cb.Execute(context.Background(), func(ctx context.Context) (int, error) {
		return 0, errors.New("boom")
	})
	if cb.State() != "open" {
		t.Fatalf("expected open, got %q", cb.State())
	}

	time.Sleep(20 * time.Millisecond)

	result, err := cb.Execute(context.Background(), func(ctx context.Context) (int, error) {
		return 99, nil
	})
	if err != nil {
		t.Fatalf("expected half-open probe to succeed, got %v", err)
	}
	if result != 99 {
		t.Fatalf("expected result 99, got %d", result)
	}
	if cb.State() != "closed" {
		t.Fatalf("expected breaker closed after successful probe, got %q", cb.State())
	}
}

func TestCircuitBreakerStateChangeCallback(t *testing.T) {
	var transitions []string
	cfg := BreakerConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Millisecond, HalfOpenMaxCalls: 1}
	cb := NewCircuitBreaker[int]("test", cfg, func(from, to string) {
		transitions = append(transitions, from+"->"+to)
	})

	cb.Execute(context.Background(), func(ctx context.Context) (int, error) {
		return 0, errors.New("boom")
	})

	if len(transitions) == 0 {
		t.Fatal("expected at least one recorded state transition")
	}
}

func TestResilientCallComposesRetryAndBreaker(t *testing.T) {
	cfg := BreakerConfig{FailureThreshold: 10, ResetTimeout: 10 * time.Millisecond, HalfOpenMaxCalls: 1}
	breaker := NewCircuitBreaker[int]("test", cfg, nil)
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, BackoffMultiplier: 2}

	r := NewResilient[int](breaker, policy, ClassifyNetworkError, nil)

	calls := 0
	result, err := r.Call(context.Background(), func(ctx context.Context) (int, error) {
		calls++
		if calls < 2 {
			return 0, errors.New("connection refused")
		}
		return 5, nil
	})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if result != 5 {
		t.Fatalf("expected result 5, got %d", result)
	}
	// The whole retried call is a single breaker outcome: two failed
	// attempts plus one success within Call should not trip a
	// FailureThreshold of 10.
	if breaker.State() != "closed" {
		t.Fatalf("expected breaker to remain closed, got %q", breaker.State())
	}
}
