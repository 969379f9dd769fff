// Package resilience implements the bounded-retry and circuit-breaker
// primitives spec.md §4.6 interposes on all remote I/O.
package resilience

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy configures the retry delay sequence of spec §4.6: delay for
// attempt n (1-indexed) is min(MaxDelay, BaseDelay*Multiplier^(n-1)) times
// 1±uniform(0,Jitter).
//
// cenkalti/backoff/v5's ExponentialBackOff maps onto this field-for-field
// (InitialInterval/MaxInterval/Multiplier/RandomizationFactor), which is
// why it was picked for this layer: the spec's own config table was
// evidently shaped by a library exactly like this one.
type RetryPolicy struct {
	MaxAttempts       int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	Jitter            float64 // 0..1, e.g. 0.1 for ±10%
}

// DefaultRetryPolicy matches a conservative production default: 3
// attempts, 100ms base, 5s cap, doubling, ±10% jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		BaseDelay:         100 * time.Millisecond,
		MaxDelay:          5 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
	}
}

func (p RetryPolicy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.MaxInterval = p.MaxDelay
	b.Multiplier = p.BackoffMultiplier
	b.RandomizationFactor = p.Jitter
	return b
}

// permanentError marks an error as non-retryable; it is handed to
// backoff.Retry wrapped in backoff.Permanent so the loop stops immediately
// instead of exhausting MaxAttempts.
type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// AttemptCounter is an optional hook the caller can supply to observe each
// retry attempt (used to drive the session.retry.attempt metric in §6).
type AttemptCounter func(attempt int, err error)

// Retry runs op under the policy, retrying only errors Classify reports as
// retryable. It returns the first success, or the last error once
// MaxAttempts is exhausted or a non-retryable error occurs.
func Retry[T any](ctx context.Context, policy RetryPolicy, classify func(error) bool, onAttempt AttemptCounter, op func(ctx context.Context) (T, error)) (T, error) {
	attempt := 0
	wrapped := func() (T, error) {
		attempt++
		v, err := op(ctx)
		if err != nil {
			if onAttempt != nil {
				onAttempt(attempt, err)
			}
			if classify != nil && !classify(err) {
				return v, backoff.Permanent(&permanentError{err: err})
			}
			return v, err
		}
		return v, nil
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(policy.backOff()),
	}
	if policy.MaxAttempts > 0 {
		opts = append(opts, backoff.WithMaxTries(uint(policy.MaxAttempts)))
	}

	result, err := backoff.Retry(ctx, wrapped, opts...)
	var perm *permanentError
	if errors.As(err, &perm) {
		return result, perm.err
	}
	return result, err
}

// ClassifyNetworkError implements spec §4.6's retry classification:
// connection refused, timeout, transient DNS, and connection reset are
// retryable; everything else (auth, serialization, validation,
// corruption) is not.
func ClassifyNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTimeout || dnsErr.IsTemporary
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "i/o timeout"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "eof"):
		return true
	}
	return false
}
