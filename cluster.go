package sessionguard

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// remoteStore is the subset of Store[T]+QueryableStore[T] a
// ClusteredStore wraps. RemoteStore[T] satisfies it; MemoryStore[T] can
// too, for testing clustering without a real backend.
type remoteStore[T any] interface {
	Store[T]
	QueryableStore[T]
	CreateForOwner(ctx context.Context, owner string) (Record[T], error)
	CreateWithFingerprint(ctx context.Context, fingerprint string) (Record[T], error)
}

// ClusteredStore wraps a remote store with a per-node LocalCache and a
// coordinator that keeps that cache coherent across nodes via pub/sub
// invalidation (§4.3). Reads prefer the local cache; writes persist to
// the remote store first, then update the local cache, then publish an
// invalidation so peers evict their own stale copy.
type ClusteredStore[T any] struct {
	remote      remoteStore[T]
	cache       *LocalCache[T]
	coordinator *coordinator
	nodeID      string
	cacheTTL    time.Duration
	metrics     Metrics
	logger      zerolog.Logger
	events      *EventBus
}

// NewClusteredStore builds the decorator. nodeID defaults to a fresh
// uuid.New() (google/uuid, the same id-generation library
// paulround2tele-studio's broader stack and dcache's own satori/go.uuid
// analog both reach for) if cluster.NodeID is empty. cfg is frozen
// (deep-copied) at construction per §5's immutability guarantee.
func NewClusteredStore[T any](remote remoteStore[T], pubsub PubSubClient, cfg *Config) *ClusteredStore[T] {
	cfg = cfg.clone()
	nodeID := cfg.Cluster.NodeID
	if nodeID == "" {
		nodeID = uuid.New().String()
	}

	cs := &ClusteredStore[T]{
		remote:   remote,
		nodeID:   nodeID,
		cacheTTL: cfg.Cluster.LocalCacheTTL,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		events:   NewEventBus(cfg.Logger),
	}
	cs.cache = NewLocalCache[T](WithCacheMaxEntries[T](cfg.Cluster.LocalCacheMaxSize))
	cs.coordinator = newCoordinator(pubsub, cfg.Cluster.Channel, nodeID, cfg.Logger, cfg.Metrics, cs.onInvalidate, cs.events.fireStarted)
	return cs
}

// Events returns the store's event bus for On* registration.
func (cs *ClusteredStore[T]) Events() *EventBus { return cs.events }

// Start begins the coordinator's subscriber task. See coordinator.Start.
func (cs *ClusteredStore[T]) Start(ctx context.Context) error {
	return cs.coordinator.Start(ctx)
}

// Shutdown stops the subscriber task and clears the local cache (§4.3's
// shutdown transition: the coordinator leaves Running before the cache
// it fed is torn down).
func (cs *ClusteredStore[T]) Shutdown() {
	cs.coordinator.Shutdown()
	cs.cache.Stop()
	cs.cache.Clear()
}

func (cs *ClusteredStore[T]) onInvalidate(msg channelMessage) {
	switch msg.Event {
	case eventDeleted, eventUpdated:
		cs.cache.Delete(msg.SessionID)
	case eventRegenerated:
		cs.cache.Delete(msg.OldID)
		cs.cache.Delete(msg.SessionID)
	default:
		cs.metrics.Counter("session.cluster.invalidate.unknown_event", nil)
		cs.logger.Warn().Str("event", string(msg.Event)).Msg("sessionguard: unknown invalidation event, skipping")
	}
}

func (cs *ClusteredStore[T]) publish(ctx context.Context, event invalidateEvent, id, oldID string) {
	msg := newChannelMessage(event, id, oldID, cs.nodeID)
	if err := cs.coordinator.Publish(ctx, msg); err != nil {
		cs.metrics.Counter("session.cluster.invalidate.publish_error", nil)
	}
}

// Create writes through to the remote store, then seeds the local cache.
func (cs *ClusteredStore[T]) Create(ctx context.Context) (Record[T], error) {
	rec, err := cs.remote.Create(ctx)
	if err != nil {
		return Record[T]{}, err
	}
	cs.cache.Set(rec.SessionID, rec, cs.cacheTTL)
	return rec, nil
}

// CreateWithFingerprint writes through to the remote store with binding,
// then seeds the local cache.
func (cs *ClusteredStore[T]) CreateWithFingerprint(ctx context.Context, fingerprint string) (Record[T], error) {
	rec, err := cs.remote.CreateWithFingerprint(ctx, fingerprint)
	if err != nil {
		return Record[T]{}, err
	}
	cs.cache.Set(rec.SessionID, rec, cs.cacheTTL)
	return rec, nil
}

// CreateForOwner writes through to the remote store's owner-limited
// create, then seeds the local cache.
func (cs *ClusteredStore[T]) CreateForOwner(ctx context.Context, owner string) (Record[T], error) {
	rec, err := cs.remote.CreateForOwner(ctx, owner)
	if err != nil {
		return Record[T]{}, err
	}
	cs.cache.Set(rec.SessionID, rec, cs.cacheTTL)
	return rec, nil
}

// Get checks the local cache first (§4.3 read path); on miss it falls
// through to the remote store and populates the cache on success. Reads
// never publish.
func (cs *ClusteredStore[T]) Get(ctx context.Context, id string) (Record[T], error) {
	if rec, ok := cs.cache.Get(id); ok {
		cs.metrics.Counter("session.cache.hit", nil)
		return rec, nil
	}
	cs.metrics.Counter("session.cache.miss", nil)

	rec, err := cs.remote.Get(ctx, id)
	if err != nil {
		return Record[T]{}, err
	}
	cs.cache.Set(id, rec, cs.cacheTTL)
	return rec, nil
}

// GetOptional mirrors Get without surfacing NotFound/Expired as errors.
func (cs *ClusteredStore[T]) GetOptional(ctx context.Context, id string) (Record[T], bool, error) {
	rec, err := cs.Get(ctx, id)
	if err != nil {
		if isKind(err, KindNotFound) || isKind(err, KindExpired) {
			return Record[T]{}, false, nil
		}
		return Record[T]{}, false, err
	}
	return rec, true, nil
}

// Put writes through, updates the local cache, then publishes an
// invalidation to peers (§4.3 write path).
func (cs *ClusteredStore[T]) Put(ctx context.Context, id string, rec Record[T]) error {
	if err := cs.remote.Put(ctx, id, rec); err != nil {
		return err
	}
	cs.cache.Set(id, rec, cs.cacheTTL)
	cs.publish(ctx, eventUpdated, id, "")
	return nil
}

// Delete removes from the remote store, evicts locally, then publishes
// a deleted invalidation (§4.3 delete path).
func (cs *ClusteredStore[T]) Delete(ctx context.Context, id string) (bool, error) {
	existed, err := cs.remote.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	cs.cache.Delete(id)
	cs.publish(ctx, eventDeleted, id, "")
	return existed, nil
}

// Exists consults the remote store directly; the local cache's absence
// of an entry doesn't mean the record doesn't exist elsewhere.
func (cs *ClusteredStore[T]) Exists(ctx context.Context, id string) (bool, error) {
	return cs.remote.Exists(ctx, id)
}

// Regenerate writes through, evicts the old id locally, seeds the new
// one, and publishes a regenerated invalidation naming both ids.
func (cs *ClusteredStore[T]) Regenerate(ctx context.Context, id string) (string, error) {
	newID, err := cs.remote.Regenerate(ctx, id)
	if err != nil {
		return "", err
	}
	cs.cache.Delete(id)
	if rec, err := cs.remote.Get(ctx, newID); err == nil {
		cs.cache.Set(newID, rec, cs.cacheTTL)
	}
	cs.publish(ctx, eventRegenerated, newID, id)
	return newID, nil
}

// Touch writes through and republishes an updated invalidation.
func (cs *ClusteredStore[T]) Touch(ctx context.Context, id string) error {
	if err := cs.remote.Touch(ctx, id); err != nil {
		return err
	}
	if rec, err := cs.remote.Get(ctx, id); err == nil {
		cs.cache.Set(id, rec, cs.cacheTTL)
	}
	cs.publish(ctx, eventUpdated, id, "")
	return nil
}

// Healthy is true iff the backing store is healthy AND the coordinator
// is Running (§4.3).
func (cs *ClusteredStore[T]) Healthy(ctx context.Context) bool {
	return cs.remote.Healthy(ctx) && cs.coordinator.State() == stateRunning
}

// EachSession, FindBy, FindFirst, CountBy, BulkDelete, and AllSessionIDs
// delegate to the underlying remote store's QueryableStore and bypass
// the local cache, per spec's note that clustered query operations read
// authoritative state directly.

func (cs *ClusteredStore[T]) EachSession(ctx context.Context, f func(Record[T]) error) error {
	return cs.remote.EachSession(ctx, f)
}

func (cs *ClusteredStore[T]) FindBy(ctx context.Context, pred func(Record[T]) bool) ([]Record[T], error) {
	return cs.remote.FindBy(ctx, pred)
}

func (cs *ClusteredStore[T]) FindFirst(ctx context.Context, pred func(Record[T]) bool) (Record[T], bool, error) {
	return cs.remote.FindFirst(ctx, pred)
}

func (cs *ClusteredStore[T]) CountBy(ctx context.Context, pred func(Record[T]) bool) (int, error) {
	return cs.remote.CountBy(ctx, pred)
}

func (cs *ClusteredStore[T]) BulkDelete(ctx context.Context, pred func(Record[T]) bool) (int, error) {
	// Resolve the matching ids before deleting so each one can be
	// individually evicted and its own "deleted" invalidation published
	// to peers (§4.5: bulk_delete also publishes invalidations).
	matches, err := cs.remote.FindBy(ctx, pred)
	if err != nil {
		return 0, err
	}

	n, err := cs.remote.BulkDelete(ctx, pred)
	if err != nil {
		return n, err
	}

	for _, rec := range matches {
		cs.cache.Delete(rec.SessionID)
		cs.publish(ctx, eventDeleted, rec.SessionID, "")
	}
	return n, nil
}

func (cs *ClusteredStore[T]) AllSessionIDs(ctx context.Context) ([]string, error) {
	return cs.remote.AllSessionIDs(ctx)
}
