package sessionguard

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MemoryStore is the in-memory Store[T]/QueryableStore[T] of §4.1.1: a
// map guarded by a single mutex, no LRU, no compression, no encryption —
// unlike LocalCache it is the authoritative copy, not a non-authoritative
// read cache, so it never evicts a live record for capacity; only
// CreateForOwner's per-owner limit removes a live record early. Intended for tests
// and single-process deployments.
type MemoryStore[T any] struct {
	mu      sync.Mutex
	records map[string]Record[T]
	owners  map[string][]string // owner key -> session ids, oldest first
	codec   Codec[T]
	cfg     *Config
	events  *EventBus
}

// NewMemoryStore builds a MemoryStore for payload type T. cfg must not be
// nil; use NewConfig to build one. cfg is frozen (deep-copied) at
// construction per §5's immutability guarantee — later mutation of the
// Config the caller passed in has no effect on the store.
func NewMemoryStore[T any](codec Codec[T], cfg *Config) *MemoryStore[T] {
	cfg = cfg.clone()
	return &MemoryStore[T]{
		records: make(map[string]Record[T]),
		owners:  make(map[string][]string),
		codec:   codec,
		cfg:     cfg,
		events:  NewEventBus(cfg.Logger),
	}
}

// Events returns the store's event bus for On* registration.
func (s *MemoryStore[T]) Events() *EventBus { return s.events }

// Create writes a fresh record with a new id and expiry.
func (s *MemoryStore[T]) Create(ctx context.Context) (Record[T], error) {
	header, err := NewHeader(s.cfg.Timeout)
	if err != nil {
		return Record[T]{}, newErr("create", "", KindStorage, err)
	}
	var zero T
	rec := Record[T]{Header: header, Value: zero}

	s.mu.Lock()
	s.records[header.SessionID] = rec
	s.mu.Unlock()

	s.events.fireCreated(header.SessionID)
	return rec, nil
}

// CreateWithFingerprint is Create plus binding: fingerprint (built via
// ComputeFingerprint) is stamped onto the new record's Header so a later
// GetWithFingerprint can detect a client swap.
func (s *MemoryStore[T]) CreateWithFingerprint(ctx context.Context, fingerprint string) (Record[T], error) {
	rec, err := s.Create(ctx)
	if err != nil {
		return Record[T]{}, err
	}
	rec.ClientFingerprint = fingerprint
	if err := s.Put(ctx, rec.SessionID, rec); err != nil {
		return Record[T]{}, err
	}
	return rec, nil
}

// CreateForOwner is Create plus the session-limiting supplement: when
// Config.MaxSessionsPerUser is set, owner's session count is tracked and
// the oldest session for that owner is evicted once the limit is
// exceeded (mirrors the source stack's enforceSessionLimits).
func (s *MemoryStore[T]) CreateForOwner(ctx context.Context, owner string) (Record[T], error) {
	rec, err := s.Create(ctx)
	if err != nil {
		return Record[T]{}, err
	}
	if s.cfg.MaxSessionsPerUser <= 0 || owner == "" {
		return rec, nil
	}

	s.mu.Lock()
	ids := append(s.owners[owner], rec.SessionID)
	var evicted string
	if len(ids) > s.cfg.MaxSessionsPerUser {
		evicted = ids[0]
		ids = ids[1:]
		delete(s.records, evicted)
	}
	s.owners[owner] = ids
	s.mu.Unlock()

	if evicted != "" {
		s.events.fireDeleted(evicted)
	}
	return rec, nil
}

// Get loads the record for id, failing Expired if its lifetime has
// passed regardless of whether it is still physically present.
func (s *MemoryStore[T]) Get(ctx context.Context, id string) (Record[T], error) {
	s.mu.Lock()
	rec, found := s.records[id]
	s.mu.Unlock()

	if !found {
		return Record[T]{}, newErr("get", id, KindNotFound, nil)
	}
	if rec.Expired(time.Now()) {
		return Record[T]{}, newErr("get", id, KindExpired, nil)
	}
	s.events.fireLoaded(id)
	return rec, nil
}

// GetOptional loads the record for id, returning ok=false instead of
// KindNotFound/KindExpired.
func (s *MemoryStore[T]) GetOptional(ctx context.Context, id string) (Record[T], bool, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		if isKind(err, KindNotFound) || isKind(err, KindExpired) {
			return Record[T]{}, false, nil
		}
		return Record[T]{}, false, err
	}
	return rec, true, nil
}

// Put persists rec under id, overwriting any existing record.
func (s *MemoryStore[T]) Put(ctx context.Context, id string, rec Record[T]) error {
	if rec.SessionID != id {
		return newErr("put", id, KindValidation, nil)
	}
	s.mu.Lock()
	s.records[id] = rec
	s.mu.Unlock()
	return nil
}

// Delete removes the record for id.
func (s *MemoryStore[T]) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	_, existed := s.records[id]
	delete(s.records, id)
	s.mu.Unlock()

	if existed {
		s.events.fireDeleted(id)
	}
	return existed, nil
}

// Exists reports whether a live record is stored for id.
func (s *MemoryStore[T]) Exists(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	rec, found := s.records[id]
	s.mu.Unlock()
	if !found {
		return false, nil
	}
	return !rec.Expired(time.Now()), nil
}

// Regenerate replaces id's record with one under a new id (same payload,
// fresh header), deleting the old id.
func (s *MemoryStore[T]) Regenerate(ctx context.Context, id string) (string, error) {
	s.mu.Lock()
	rec, found := s.records[id]
	if !found {
		s.mu.Unlock()
		return "", newErr("regenerate", id, KindNotFound, nil)
	}
	header, err := NewHeader(s.cfg.Timeout)
	if err != nil {
		s.mu.Unlock()
		return "", newErr("regenerate", id, KindStorage, err)
	}
	delete(s.records, id)
	newRec := Record[T]{Header: header, Value: rec.Value}
	s.records[header.SessionID] = newRec
	s.mu.Unlock()

	return header.SessionID, nil
}

// Touch resets the record's expiry to now+timeout, or, if IdleTimeout is
// configured, to now+IdleTimeout capped at CreatedAt+Timeout.
func (s *MemoryStore[T]) Touch(ctx context.Context, id string) error {
	timeout := s.cfg.Timeout
	if s.cfg.IdleTimeout > 0 {
		timeout = s.cfg.IdleTimeout
	}
	s.mu.Lock()
	rec, found := s.records[id]
	if !found {
		s.mu.Unlock()
		return newErr("touch", id, KindNotFound, nil)
	}
	rec.ExpiresAt = time.Now().Add(timeout)
	if hard := rec.CreatedAt.Add(s.cfg.Timeout); s.cfg.IdleTimeout > 0 && hard.Before(rec.ExpiresAt) {
		rec.ExpiresAt = hard
	}
	s.records[id] = rec
	s.mu.Unlock()
	return nil
}

// Healthy always reports true: an in-memory map has no external
// dependency to probe.
func (s *MemoryStore[T]) Healthy(ctx context.Context) bool { return true }

// EachSession snapshots keys under the lock and yields values outside
// it, per §4.1.1, skipping expired records. f's error stops iteration
// and is returned to the caller.
func (s *MemoryStore[T]) EachSession(ctx context.Context, f func(Record[T]) error) error {
	s.mu.Lock()
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	now := time.Now()
	for _, id := range ids {
		s.mu.Lock()
		rec, found := s.records[id]
		s.mu.Unlock()
		if !found || rec.Expired(now) {
			continue
		}
		if err := f(rec); err != nil {
			return err
		}
	}
	return nil
}

// FindBy returns every live record matching pred.
func (s *MemoryStore[T]) FindBy(ctx context.Context, pred func(Record[T]) bool) ([]Record[T], error) {
	var out []Record[T]
	err := s.EachSession(ctx, func(r Record[T]) error {
		if pred(r) {
			out = append(out, r)
		}
		return nil
	})
	return out, err
}

// errStopIteration is a private sentinel EachSession callbacks return to
// stop iteration early without that counting as a real failure.
var errStopIteration = errors.New("sessionguard: stop iteration")

// FindFirst returns the first live record matching pred.
func (s *MemoryStore[T]) FindFirst(ctx context.Context, pred func(Record[T]) bool) (Record[T], bool, error) {
	var found Record[T]
	var ok bool
	err := s.EachSession(ctx, func(r Record[T]) error {
		if pred(r) {
			found, ok = r, true
			return errStopIteration
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStopIteration) {
		return Record[T]{}, false, err
	}
	return found, ok, nil
}

// CountBy counts live records matching pred.
func (s *MemoryStore[T]) CountBy(ctx context.Context, pred func(Record[T]) bool) (int, error) {
	count := 0
	err := s.EachSession(ctx, func(r Record[T]) error {
		if pred(r) {
			count++
		}
		return nil
	})
	return count, err
}

// BulkDelete deletes every live record matching pred and returns the
// count removed.
func (s *MemoryStore[T]) BulkDelete(ctx context.Context, pred func(Record[T]) bool) (int, error) {
	matches, err := s.FindBy(ctx, pred)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	for _, rec := range matches {
		delete(s.records, rec.SessionID)
	}
	s.mu.Unlock()
	for _, rec := range matches {
		s.events.fireDeleted(rec.SessionID)
	}
	return len(matches), nil
}

// AllSessionIDs returns every live session id.
func (s *MemoryStore[T]) AllSessionIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.EachSession(ctx, func(r Record[T]) error {
		ids = append(ids, r.SessionID)
		return nil
	})
	return ids, err
}

// CleanupExpired removes every expired record and returns the count
// removed (§4.1.1's cleanup_expired).
func (s *MemoryStore[T]) CleanupExpired() int {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, rec := range s.records {
		if rec.Expired(now) {
			delete(s.records, id)
			removed++
		}
	}
	return removed
}

func isKind(err error, kind Kind) bool {
	se, ok := err.(*StoreError)
	return ok && se.Kind == kind
}
