package resilience

import "context"

// Resilient composes a CircuitBreaker and a RetryPolicy the way spec §4.6
// orders them: "The breaker wraps the retry wrapper" — so a whole burst of
// retries for one logical call counts as a single breaker outcome, and a
// breaker that's already open skips the retry loop entirely instead of
// retrying into a wall.
type Resilient[T any] struct {
	breaker  *CircuitBreaker[T]
	policy   RetryPolicy
	classify func(error) bool
	onAttempt AttemptCounter
}

// NewResilient builds a Resilient wrapper. breaker may be nil to disable
// circuit-breaking (retry only); classify defaults to ClassifyNetworkError
// when nil.
func NewResilient[T any](breaker *CircuitBreaker[T], policy RetryPolicy, classify func(error) bool, onAttempt AttemptCounter) *Resilient[T] {
	if classify == nil {
		classify = ClassifyNetworkError
	}
	return &Resilient[T]{breaker: breaker, policy: policy, classify: classify, onAttempt: onAttempt}
}

// Call runs op under retry, with the whole retried call as a single unit
// of work observed by the breaker. If the breaker is already open, op is
// never invoked and ErrCircuitOpen is returned immediately.
func (r *Resilient[T]) Call(ctx context.Context, op func(ctx context.Context) (T, error)) (T, error) {
	retrying := func(ctx context.Context) (T, error) {
		return Retry(ctx, r.policy, r.classify, r.onAttempt, op)
	}
	if r.breaker == nil {
		return retrying(ctx)
	}
	return r.breaker.Execute(ctx, retrying)
}

// State reports the underlying breaker's state, or "closed" when breaking
// is disabled.
func (r *Resilient[T]) State() string {
	if r.breaker == nil {
		return "closed"
	}
	return r.breaker.State()
}
