package sessionguard

import "context"

// Store is the uniform contract every backing implementation (in-memory,
// remote, clustered) satisfies for a session payload type T. See spec §4.1.
type Store[T any] interface {
	// Create writes a fresh record (new id, new expiry) and returns it.
	Create(ctx context.Context) (Record[T], error)

	// Get loads the record for id. Returns KindNotFound if absent,
	// KindExpired if now >= expires_at regardless of what storage
	// returned, KindCorruption on envelope failure, KindStorage on
	// transient backing failure.
	Get(ctx context.Context, id string) (Record[T], error)

	// GetOptional loads the record for id, or the zero Record and false
	// if it does not exist or has expired. Never returns KindNotFound or
	// KindExpired; other error kinds still propagate.
	GetOptional(ctx context.Context, id string) (Record[T], bool, error)

	// Put persists rec under id, overwriting any existing record. Returns
	// KindValidation if rec.SessionID != id.
	Put(ctx context.Context, id string, rec Record[T]) error

	// Delete removes the record for id and reports whether it existed.
	Delete(ctx context.Context, id string) (bool, error)

	// Exists reports whether a live record is stored for id.
	Exists(ctx context.Context, id string) (bool, error)

	// Regenerate replaces id's record with a new id (same payload, reset
	// header), deletes the old id, and returns the new id.
	Regenerate(ctx context.Context, id string) (string, error)

	// Touch resets the record's expiry to now+timeout (or slides per
	// Config.IdleTimeout if configured).
	Touch(ctx context.Context, id string) error

	// Healthy probes the backing dependency; never returns an error.
	Healthy(ctx context.Context) bool
}

// QueryableStore is implemented by stores that own a searchable
// collection (in-memory, remote). See spec §4.5. A ClusteredStore
// delegates to the underlying remote store's QueryableStore and bypasses
// the local cache.
type QueryableStore[T any] interface {
	// EachSession streams every live record to f; it must never block the
	// backing store for longer than a single page/snapshot.
	EachSession(ctx context.Context, f func(Record[T]) error) error

	// FindBy returns every live record matching pred.
	FindBy(ctx context.Context, pred func(Record[T]) bool) ([]Record[T], error)

	// FindFirst returns the first live record matching pred, or false.
	FindFirst(ctx context.Context, pred func(Record[T]) bool) (Record[T], bool, error)

	// CountBy counts live records matching pred.
	CountBy(ctx context.Context, pred func(Record[T]) bool) (int, error)

	// BulkDelete deletes every live record matching pred and returns the
	// count removed. Clustered stores also publish an invalidation per id.
	BulkDelete(ctx context.Context, pred func(Record[T]) bool) (int, error)

	// AllSessionIDs returns every live session id.
	AllSessionIDs(ctx context.Context) ([]string, error)
}

// GetWithFingerprint loads id via store.Get and, when the stored record
// carries a ClientFingerprint, enforces it against the caller-supplied
// fingerprint (built with ComputeFingerprint from the current request's
// attributes). A mismatch fires events.OnBindingFailure and returns
// KindBinding, treated like corruption for safety per §7. A record with
// no ClientFingerprint, or a caller that passes "" (binding disabled),
// skips the check entirely.
func GetWithFingerprint[T any](ctx context.Context, store Store[T], events *EventBus, id, fingerprint string) (Record[T], error) {
	rec, err := store.Get(ctx, id)
	if err != nil {
		return Record[T]{}, err
	}
	if rec.ClientFingerprint == "" || fingerprint == "" {
		return rec, nil
	}
	if rec.ClientFingerprint != fingerprint {
		if events != nil {
			events.fireBindingFailure(id, "fingerprint mismatch")
		}
		return Record[T]{}, newErr("get", id, KindBinding, nil)
	}
	return rec, nil
}
