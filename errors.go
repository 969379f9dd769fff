package sessionguard

import (
	"errors"
	"fmt"
)

// Kind is the fixed, caller-facing error taxonomy of §7. It is never a
// language exception type — every store operation returns one of these
// via StoreError so the result is a tagged variant, not control flow by
// exception.
type Kind string

const (
	// KindNotFound: no record exists for the given id.
	KindNotFound Kind = "not_found"
	// KindExpired: a record exists but now >= expires_at.
	KindExpired Kind = "expired"
	// KindValidation: input violates id or payload constraints.
	KindValidation Kind = "validation"
	// KindCorruption: envelope MAC/decrypt/JSON-parse failure. Mutually
	// exclusive with KindNotFound.
	KindCorruption Kind = "corruption"
	// KindBinding: client fingerprint mismatch on load.
	KindBinding Kind = "binding"
	// KindStorage: transient remote failure; retryable.
	KindStorage Kind = "storage"
	// KindEncryption: irrecoverable crypto failure (e.g. missing key).
	KindEncryption Kind = "encryption"
	// KindCircuitOpen: fast-failure from the circuit breaker.
	KindCircuitOpen Kind = "circuit_open"
)

// StoreError is the concrete error type every store operation returns.
// Callers should branch on Kind, not on the formatted message.
type StoreError struct {
	Kind     Kind
	SessionID string
	Op       string
	Err      error
}

func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sessionguard: %s %s: %s: %v", e.Op, e.SessionID, e.Kind, e.Err)
	}
	return fmt.Sprintf("sessionguard: %s %s: %s", e.Op, e.SessionID, e.Kind)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrNotFound) etc. work against a StoreError by
// comparing Kind, independent of op/session-id/wrapped-cause.
func (e *StoreError) Is(target error) bool {
	var k *kindSentinel
	if errors.As(target, &k) {
		return e.Kind == k.kind
	}
	return false
}

// kindSentinel lets each Kind act as an errors.Is target without pulling
// every caller through StoreError's full field set.
type kindSentinel struct{ kind Kind }

func (s *kindSentinel) Error() string  { return string(s.kind) }
func (s *kindSentinel) Is(target error) bool {
	var se *StoreError
	if errors.As(target, &se) {
		return se.Kind == s.kind
	}
	var other *kindSentinel
	if errors.As(target, &other) {
		return s.kind == other.kind
	}
	return false
}

// Sentinels for errors.Is comparisons, e.g. errors.Is(err, ErrNotFound).
var (
	ErrNotFound    = &kindSentinel{KindNotFound}
	ErrExpired     = &kindSentinel{KindExpired}
	ErrValidation  = &kindSentinel{KindValidation}
	ErrCorruption  = &kindSentinel{KindCorruption}
	ErrBinding     = &kindSentinel{KindBinding}
	ErrStorage     = &kindSentinel{KindStorage}
	ErrEncryption  = &kindSentinel{KindEncryption}
	ErrCircuitOpen = &kindSentinel{KindCircuitOpen}
)

// newErr builds a StoreError, the one place operations construct errors so
// Kind tagging stays consistent.
func newErr(op, sessionID string, kind Kind, cause error) *StoreError {
	return &StoreError{Kind: kind, SessionID: sessionID, Op: op, Err: cause}
}

// Retryable reports whether err's kind is the kind of failure the
// resilience layer should retry (§7 propagation policy: Storage and
// CircuitOpen degrade gracefully / retry; Validation and Encryption
// surface to the caller immediately).
func Retryable(err error) bool {
	var se *StoreError
	if !errors.As(err, &se) {
		return false
	}
	switch se.Kind {
	case KindStorage:
		return true
	case KindCircuitOpen:
		return false // the breaker itself governs when retry is allowed
	default:
		return false
	}
}
