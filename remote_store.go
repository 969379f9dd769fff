package sessionguard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sgcrypto "github.com/tempusguard/sessionguard/crypto"
	"github.com/tempusguard/sessionguard/resilience"
)

const remoteKeyPrefix = "sess:"
const scanPageSize = 100

func remoteKey(id string) string { return remoteKeyPrefix + id }

// RemoteStore is the key-value + pub/sub backed Store[T] of §4.1.2. Keys
// are prefixed sess:<id> and written with TTL equal to the record's
// remaining lifetime, the same fullKey/Ex() pattern valkey_session.go
// uses, so the backing store prunes expired records on its own. Every
// session-record client call (get, set, del, scan) is routed through a
// single resilience.Resilient[any] — one breaker per remote endpoint,
// shared across every operation shape via the `any` return type rather
// than one breaker per method. Healthy and CreateForOwner's owner-index
// bookkeeping call the client directly.
type RemoteStore[T any] struct {
	kv        KVClient
	codec     Codec[T]
	cfg       *Config
	envelope  *sgcrypto.Envelope // never nil; every encode/decode goes through it
	resilient *resilience.Resilient[any]
	events    *EventBus
}

// NewRemoteStore builds a RemoteStore. envelope must not be nil: every
// record is sealed and opened through it. BuildEnvelope (see config.go)
// always returns one, since the digest is mandatory even with encryption
// off.
func NewRemoteStore[T any](kv KVClient, codec Codec[T], envelope *sgcrypto.Envelope, cfg *Config) *RemoteStore[T] {
	cfg = cfg.clone()
	events := NewEventBus(cfg.Logger)

	var breaker *resilience.CircuitBreaker[any]
	if cfg.CircuitBreakerOn {
		breaker = resilience.NewCircuitBreaker[any]("remote-store", cfg.CircuitBreakerConfig, func(_, to string) {
			events.fireCircuitStateChange(to)
		})
	}
	policy := cfg.RetryConfig
	if !cfg.EnableRetry {
		policy = resilience.RetryPolicy{MaxAttempts: 1}
	}
	return &RemoteStore[T]{
		kv:        kv,
		codec:     codec,
		cfg:       cfg,
		envelope:  envelope,
		resilient: resilience.NewResilient[any](breaker, policy, resilience.ClassifyNetworkError, nil),
		events:    events,
	}
}

func (s *RemoteStore[T]) Events() *EventBus { return s.events }

func (s *RemoteStore[T]) encode(rec Record[T]) ([]byte, error) {
	payload, err := s.codec.EncodePayload(rec.Value)
	if err != nil {
		return nil, err
	}
	wire := struct {
		Header
		Payload []byte `json:"payload"`
	}{Header: rec.Header, Payload: payload}
	return s.envelope.Encode(rec.SessionID, wire)
}

func (s *RemoteStore[T]) decode(id string, data []byte) (Record[T], error) {
	var wire struct {
		Header
		Payload []byte `json:"payload"`
	}
	if err := s.envelope.Decode(id, data, &wire); err != nil {
		return Record[T]{}, err
	}
	value, err := s.codec.DecodePayload(wire.Payload)
	if err != nil {
		return Record[T]{}, err
	}
	return Record[T]{Header: wire.Header, Value: value}, nil
}

// Create writes a fresh record.
func (s *RemoteStore[T]) Create(ctx context.Context) (Record[T], error) {
	header, err := NewHeader(s.cfg.Timeout)
	if err != nil {
		return Record[T]{}, newErr("create", "", KindStorage, err)
	}
	var zero T
	rec := Record[T]{Header: header, Value: zero}
	if err := s.Put(ctx, header.SessionID, rec); err != nil {
		return Record[T]{}, err
	}
	s.events.fireCreated(header.SessionID)
	return rec, nil
}

// CreateWithFingerprint is Create plus binding: fingerprint (built via
// ComputeFingerprint) is stamped onto the new record's Header so a later
// GetWithFingerprint can detect a client swap.
func (s *RemoteStore[T]) CreateWithFingerprint(ctx context.Context, fingerprint string) (Record[T], error) {
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

func ownerIndexKey(owner string) string { return "owner:" + owner }

// loadOwnerIndex reads the ordered (oldest-first) session id list tracked
// for owner. A missing key means no sessions tracked yet, not an error.
func (s *RemoteStore[T]) loadOwnerIndex(ctx context.Context, owner string) ([]string, error) {
	raw, err := s.kv.Get(ctx, ownerIndexKey(owner))
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *RemoteStore[T]) saveOwnerIndex(ctx context.Context, owner string, ids []string) error {
	raw, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return s.kv.SetWithTTL(ctx, ownerIndexKey(owner), raw, s.cfg.Timeout)
}

// CreateForOwner is Create plus the session-limiting supplement: when
// Config.MaxSessionsPerUser is set, owner's session id list is tracked in
// the backing store and the oldest session for that owner is deleted
// once the limit is exceeded. Index bookkeeping is best-effort: a failure
// reading or writing the index never fails session creation itself.
func (s *RemoteStore[T]) CreateForOwner(ctx context.Context, owner string) (Record[T], error) {
	rec, err := s.Create(ctx)
	if err != nil {
		return Record[T]{}, err
	}
	if s.cfg.MaxSessionsPerUser <= 0 || owner == "" {
		return rec, nil
	}

	ids, err := s.loadOwnerIndex(ctx, owner)
	if err != nil {
		return rec, nil
	}
	ids = append(ids, rec.SessionID)
	var evicted string
	if len(ids) > s.cfg.MaxSessionsPerUser {
		evicted = ids[0]
		ids = ids[1:]
	}
	if err := s.saveOwnerIndex(ctx, owner, ids); err != nil {
		return rec, nil
	}
	if evicted != "" {
		s.Delete(ctx, evicted)
	}
	return rec, nil
}

// Get loads and decrypts the record for id.
func (s *RemoteStore[T]) Get(ctx context.Context, id string) (Record[T], error) {
	raw, err := s.resilient.Call(ctx, func(ctx context.Context) (any, error) {
		return s.kv.Get(ctx, remoteKey(id))
	})
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return Record[T]{}, newErr("get", id, KindNotFound, nil)
		}
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return Record[T]{}, newErr("get", id, KindCircuitOpen, err)
		}
		return Record[T]{}, newErr("get", id, KindStorage, err)
	}

	rec, err := s.decode(id, raw.([]byte))
	if err != nil {
		return Record[T]{}, newErr("get", id, KindCorruption, err)
	}
	if rec.Expired(time.Now()) {
		return Record[T]{}, newErr("get", id, KindExpired, nil)
	}
	s.events.fireLoaded(id)
	return rec, nil
}

// GetOptional loads the record for id, or reports ok=false instead of
// KindNotFound/KindExpired.
func (s *RemoteStore[T]) GetOptional(ctx context.Context, id string) (Record[T], bool, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		if isKind(err, KindNotFound) || isKind(err, KindExpired) {
			return Record[T]{}, false, nil
		}
		return Record[T]{}, false, err
	}
	return rec, true, nil
}

// Put encrypts and persists rec under id with TTL equal to its
// remaining lifetime.
func (s *RemoteStore[T]) Put(ctx context.Context, id string, rec Record[T]) error {
	if rec.SessionID != id {
		return newErr("put", id, KindValidation, nil)
	}
	ttl := time.Until(rec.ExpiresAt)
	if ttl <= 0 {
		return newErr("put", id, KindValidation, fmt.Errorf("record already expired"))
	}
	envelope, err := s.encode(rec)
	if err != nil {
		return newErr("put", id, KindEncryption, err)
	}

	_, err = s.resilient.Call(ctx, func(ctx context.Context) (any, error) {
		return nil, s.kv.SetWithTTL(ctx, remoteKey(id), envelope, ttl)
	})
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return newErr("put", id, KindCircuitOpen, err)
		}
		return newErr("put", id, KindStorage, err)
	}
	return nil
}

// Delete removes the record for id.
func (s *RemoteStore[T]) Delete(ctx context.Context, id string) (bool, error) {
	existed, err := s.Exists(ctx, id)
	if err != nil {
		return false, err
	}
	_, err = s.resilient.Call(ctx, func(ctx context.Context) (any, error) {
		return nil, s.kv.Del(ctx, remoteKey(id))
	})
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return false, newErr("delete", id, KindCircuitOpen, err)
		}
		return false, newErr("delete", id, KindStorage, err)
	}
	if existed {
		s.events.fireDeleted(id)
	}
	return existed, nil
}

// Exists reports whether a live record is stored for id.
func (s *RemoteStore[T]) Exists(ctx context.Context, id string) (bool, error) {
	_, ok, err := s.GetOptional(ctx, id)
	return ok, err
}

// Regenerate writes rec's payload under a new id and deletes the old.
func (s *RemoteStore[T]) Regenerate(ctx context.Context, id string) (string, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	header, err := NewHeader(s.cfg.Timeout)
	if err != nil {
		return "", newErr("regenerate", id, KindStorage, err)
	}
	newRec := Record[T]{Header: header, Value: rec.Value}
	if err := s.Put(ctx, header.SessionID, newRec); err != nil {
		return "", err
	}
	if _, err := s.Delete(ctx, id); err != nil {
		return "", err
	}
	return header.SessionID, nil
}

// Touch resets the record's expiry and rewrites it with the new TTL.
func (s *RemoteStore[T]) Touch(ctx context.Context, id string) error {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	timeout := s.cfg.Timeout
	if s.cfg.IdleTimeout > 0 {
		timeout = s.cfg.IdleTimeout
	}
	rec.ExpiresAt = time.Now().Add(timeout)
	if hard := rec.CreatedAt.Add(s.cfg.Timeout); s.cfg.IdleTimeout > 0 && hard.Before(rec.ExpiresAt) {
		rec.ExpiresAt = hard
	}
	return s.Put(ctx, id, rec)
}

// Healthy probes the backing key-value client directly, bypassing the
// breaker so a health check can observe recovery even while open.
func (s *RemoteStore[T]) Healthy(ctx context.Context) bool {
	return s.kv.Healthy(ctx)
}

// EachSession pages through sess:* keys in batches of scanPageSize,
// decoding and yielding each live record. Uses the kv client's cursor
// Scan, never a blocking full-keyspace enumeration (§4.1.2).
func (s *RemoteStore[T]) EachSession(ctx context.Context, f func(Record[T]) error) error {
	var cursor uint64
	now := time.Now()
	for {
		var next uint64
		page, err := s.resilient.Call(ctx, func(ctx context.Context) (any, error) {
			keys, n, err := s.kv.Scan(ctx, remoteKeyPrefix, cursor, scanPageSize)
			next = n
			return keys, err
		})
		if err != nil {
			return newErr("each_session", "", KindStorage, err)
		}
		keys := page.([]string)
		for _, key := range keys {
			id := key[len(remoteKeyPrefix):]
			rec, err := s.Get(ctx, id)
			if err != nil {
				continue // not found/expired/corrupt between scan and get: skip
			}
			if rec.Expired(now) {
				continue
			}
			if err := f(rec); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// FindBy returns every live record matching pred.
func (s *RemoteStore[T]) FindBy(ctx context.Context, pred func(Record[T]) bool) ([]Record[T], error) {
	var out []Record[T]
	err := s.EachSession(ctx, func(r Record[T]) error {
		if pred(r) {
			out = append(out, r)
		}
		return nil
	})
	return out, err
}

// FindFirst returns the first live record matching pred.
func (s *RemoteStore[T]) FindFirst(ctx context.Context, pred func(Record[T]) bool) (Record[T], bool, error) {
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
func (s *RemoteStore[T]) CountBy(ctx context.Context, pred func(Record[T]) bool) (int, error) {
	count := 0
	err := s.EachSession(ctx, func(r Record[T]) error {
		if pred(r) {
			count++
		}
		return nil
	})
	return count, err
}

// BulkDelete deletes every live record matching pred. Matches are found
// via a paged scan (batches of scanPageSize, see EachSession) but deleted
// one id at a time through the normal resilience-wrapped Delete path,
// same as MemoryStore's BulkDelete.
func (s *RemoteStore[T]) BulkDelete(ctx context.Context, pred func(Record[T]) bool) (int, error) {
	matches, err := s.FindBy(ctx, pred)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, rec := range matches {
		if ok, err := s.Delete(ctx, rec.SessionID); err == nil && ok {
			removed++
		}
	}
	return removed, nil
}

// AllSessionIDs returns every live session id.
func (s *RemoteStore[T]) AllSessionIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.EachSession(ctx, func(r Record[T]) error {
		ids = append(ids, r.SessionID)
		return nil
	})
	return ids, err
}
