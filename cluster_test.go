package sessionguard

import (
	"context"
	"sync"
	"testing"
	"time"
)

// fakeBroker is an in-process stand-in for a pub/sub backend, used so
// cluster tests can exercise multi-node invalidation without a real
// Redis instance.
type fakeBroker struct {
	mu   sync.Mutex
	subs map[string][]chan []byte
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{subs: make(map[string][]chan []byte)}
}

func (b *fakeBroker) client() *fakePubSub {
	return &fakePubSub{broker: b}
}

type fakePubSub struct {
	broker *fakeBroker
}

func (p *fakePubSub) Publish(ctx context.Context, channel string, payload []byte) error {
	p.broker.mu.Lock()
	defer p.broker.mu.Unlock()
	for _, ch := range p.broker.subs[channel] {
		select {
		case ch <- payload:
		default:
		}
	}
	return nil
}

func (p *fakePubSub) Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error) {
	ch := make(chan []byte, 16)
	p.broker.mu.Lock()
	p.broker.subs[channel] = append(p.broker.subs[channel], ch)
	p.broker.mu.Unlock()

	closeFn := func() {
		p.broker.mu.Lock()
		defer p.broker.mu.Unlock()
		subs := p.broker.subs[channel]
		for i, c := range subs {
			if c == ch {
				p.broker.subs[channel] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		close(ch)
	}
	return ch, closeFn, nil
}

func newTestClusteredStore(t *testing.T, remote remoteStore[string], broker *fakeBroker, nodeID string) *ClusteredStore[string] {
	t.Helper()
	cfg := NewConfig("clustered", WithCluster(ClusterConfig{
		NodeID:            nodeID,
		Channel:           "test-channel",
		LocalCacheTTL:     time.Minute,
		LocalCacheMaxSize: 100,
	}))
	cs := NewClusteredStore[string](remote, broker.client(), cfg)
	if err := cs.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return cs
}

func TestClusteredStoreWritePopulatesLocalCache(t *testing.T) {
	ctx := context.Background()
	remote := newTestMemoryStore(t, time.Minute)
	broker := newFakeBroker()
	cs := newTestClusteredStore(t, remote, broker, "node-a")
	defer cs.Shutdown()

	rec, err := cs.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, ok := cs.cache.Get(rec.SessionID); !ok {
		t.Fatal("expected Create to populate the local cache")
	}
}

func TestClusteredStoreInvalidatesPeerOnWrite(t *testing.T) {
	ctx := context.Background()
	remote := newTestMemoryStore(t, time.Minute)
	broker := newFakeBroker()

	nodeA := newTestClusteredStore(t, remote, broker, "node-a")
	defer nodeA.Shutdown()
	nodeB := newTestClusteredStore(t, remote, broker, "node-b")
	defer nodeB.Shutdown()

	rec, err := nodeA.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Node B reads through once, populating its own local cache with the
	// original value.
	if _, err := nodeB.Get(ctx, rec.SessionID); err != nil {
		t.Fatalf("node B initial Get: %v", err)
	}
	if _, ok := nodeB.cache.Get(rec.SessionID); !ok {
		t.Fatal("expected node B to have cached the record")
	}

	rec.Value = "updated-by-a"
	if err := nodeA.Put(ctx, rec.SessionID, rec); err != nil {
		t.Fatalf("node A Put: %v", err)
	}

	// Give the fake broker's goroutine-delivered invalidation a moment to
	// land on node B's subscriber.
	deadline := time.After(time.Second)
	for {
		if _, ok := nodeB.cache.Get(rec.SessionID); !ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("expected node B's local cache entry to be invalidated")
		case <-time.After(5 * time.Millisecond):
		}
	}

	got, err := nodeB.Get(ctx, rec.SessionID)
	if err != nil {
		t.Fatalf("node B Get after invalidation: %v", err)
	}
	if got.Value != "updated-by-a" {
		t.Fatalf("expected node B to observe node A's write, got %q", got.Value)
	}
}

func TestClusteredStoreDeletePropagates(t *testing.T) {
	ctx := context.Background()
	remote := newTestMemoryStore(t, time.Minute)
	broker := newFakeBroker()

	nodeA := newTestClusteredStore(t, remote, broker, "node-a")
	defer nodeA.Shutdown()
	nodeB := newTestClusteredStore(t, remote, broker, "node-b")
	defer nodeB.Shutdown()

	rec, _ := nodeA.Create(ctx)
	nodeB.Get(ctx, rec.SessionID)

	if _, err := nodeA.Delete(ctx, rec.SessionID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	deadline := time.After(time.Second)
	for {
		if _, ok := nodeB.cache.Get(rec.SessionID); !ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("expected delete invalidation to evict node B's cache entry")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestClusteredStoreFiresStartedOnFirstSubscribe(t *testing.T) {
	ctx := context.Background()
	remote := newTestMemoryStore(t, time.Minute)
	broker := newFakeBroker()

	cfg := NewConfig("clustered", WithCluster(ClusterConfig{
		NodeID:            "node-a",
		Channel:           "test-channel",
		LocalCacheTTL:     time.Minute,
		LocalCacheMaxSize: 100,
	}))
	cs := NewClusteredStore[string](remote, broker.client(), cfg)
	defer cs.Shutdown()

	started := make(chan struct{}, 1)
	cs.Events().OnStarted(func() {
		select {
		case started <- struct{}{}:
		default:
		}
	})

	if err := cs.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("expected OnStarted to fire once the coordinator reaches Running")
	}
}

func TestClusteredStoreBulkDeletePublishesInvalidations(t *testing.T) {
	ctx := context.Background()
	remote := newTestMemoryStore(t, time.Minute)
	broker := newFakeBroker()

	nodeA := newTestClusteredStore(t, remote, broker, "node-a")
	defer nodeA.Shutdown()
	nodeB := newTestClusteredStore(t, remote, broker, "node-b")
	defer nodeB.Shutdown()

	ids := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		rec, err := nodeA.Create(ctx)
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		rec.Value = "tagged"
		if err := nodeA.Put(ctx, rec.SessionID, rec); err != nil {
			t.Fatalf("Put: %v", err)
		}
		if _, err := nodeB.Get(ctx, rec.SessionID); err != nil {
			t.Fatalf("node B Get: %v", err)
		}
		ids = append(ids, rec.SessionID)
	}

	pred := func(r Record[string]) bool { return r.Value == "tagged" }
	removed, err := nodeA.BulkDelete(ctx, pred)
	if err != nil {
		t.Fatalf("BulkDelete: %v", err)
	}
	if removed != 3 {
		t.Fatalf("expected 3 removed, got %d", removed)
	}

	deadline := time.After(time.Second)
	for _, id := range ids {
		for {
			if _, ok := nodeB.cache.Get(id); !ok {
				break
			}
			select {
			case <-deadline:
				t.Fatalf("expected BulkDelete invalidation to evict node B's cache entry for %s", id)
			case <-time.After(5 * time.Millisecond):
			}
		}
	}
}

func TestNewClusteredStoreFreezesConfig(t *testing.T) {
	ctx := context.Background()
	remote := newTestMemoryStore(t, time.Minute)
	broker := newFakeBroker()

	cfg := NewConfig("clustered", WithCluster(ClusterConfig{
		NodeID:            "node-a",
		Channel:           "test-channel",
		LocalCacheTTL:     time.Minute,
		LocalCacheMaxSize: 100,
	}))
	cs := NewClusteredStore[string](remote, broker.client(), cfg)
	if err := cs.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer cs.Shutdown()

	cfg.Cluster.LocalCacheTTL = time.Nanosecond // mutate the caller's Config after construction

	rec, err := cs.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	if _, ok := cs.cache.Get(rec.SessionID); !ok {
		t.Fatal("expected store to keep using its frozen 1-minute cache TTL, unaffected by the caller's later mutation")
	}
}

func TestClusteredStoreHealthy(t *testing.T) {
	ctx := context.Background()
	remote := newTestMemoryStore(t, time.Minute)
	broker := newFakeBroker()
	cs := newTestClusteredStore(t, remote, broker, "node-a")
	defer cs.Shutdown()

	if !cs.Healthy(ctx) {
		t.Fatal("expected healthy store once coordinator is running")
	}
}
