package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
)

// BreakerConfig configures the per-endpoint circuit breaker of spec §4.6.
type BreakerConfig struct {
	FailureThreshold  uint32
	ResetTimeout      time.Duration
	HalfOpenMaxCalls  uint32
}

// DefaultBreakerConfig: 5 consecutive failures opens the breaker, 30s
// cooldown, a single half-open probe at a time.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
		HalfOpenMaxCalls: 1,
	}
}

// ErrCircuitOpen is returned (wrapped) when the breaker fast-fails a call.
var ErrCircuitOpen = errors.New("circuit breaker open")

// CircuitBreaker wraps sony/gobreaker/v2's CircuitBreaker[T], mapping spec
// §4.6's Closed/Open/HalfOpen state machine directly onto gobreaker's
// Settings: ReadyToTrip counts consecutive failures against
// FailureThreshold, Timeout is the Open->HalfOpen cooldown, MaxRequests
// caps the HalfOpen probes. A single breaker instance is meant to
// front one remote endpoint.
type CircuitBreaker[T any] struct {
	inner         *gobreaker.CircuitBreaker[T]
	onStateChange func(from, to string)
}

// NewCircuitBreaker builds a breaker for one remote endpoint identified by
// name (used in gobreaker's OnStateChange callback and logs).
func NewCircuitBreaker[T any](name string, cfg BreakerConfig, onStateChange func(from, to string)) *CircuitBreaker[T] {
	cb := &CircuitBreaker[T]{onStateChange: onStateChange}
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.HalfOpenMaxCalls,
		Timeout:     cfg.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(_ string, from gobreaker.State, to gobreaker.State) {
			if cb.onStateChange != nil {
				cb.onStateChange(from.String(), to.String())
			}
		},
	}
	cb.inner = gobreaker.NewCircuitBreaker[T](settings)
	return cb
}

// Execute runs op through the breaker. In Open state it fails fast with
// ErrCircuitOpen without invoking op. In HalfOpen, at most
// cfg.HalfOpenMaxCalls probe calls are admitted per half-open period
// (further calls get ErrCircuitOpen); any failure reopens the breaker,
// and it closes only once cfg.HalfOpenMaxCalls consecutive probes have
// succeeded (gobreaker's MaxRequests semantics). With the default of 1,
// the first successful probe closes it.
func (cb *CircuitBreaker[T]) Execute(ctx context.Context, op func(ctx context.Context) (T, error)) (T, error) {
	result, err := cb.inner.Execute(func() (T, error) {
		return op(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		var zero T
		return zero, ErrCircuitOpen
	}
	return result, err
}

// State reports the breaker's current state name: "closed", "half-open",
// or "open".
func (cb *CircuitBreaker[T]) State() string {
	return cb.inner.State().String()
}
