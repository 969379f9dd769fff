package sessionguard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// KVClient is the abstract key-value dependency RemoteStore is built
// against (§4.1.2), mirroring redis_cache.go's RedisClient
// interface-abstraction style so a caller can substitute a mock or a
// different backend without RemoteStore knowing the difference.
type KVClient interface {
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Del(ctx context.Context, key string) error
	// Scan lists keys under prefix, returning the matched keys for this
	// page and an opaque cursor to resume from (0 cursor means done).
	Scan(ctx context.Context, prefix string, cursor uint64, pageSize int64) (keys []string, nextCursor uint64, err error)
	Healthy(ctx context.Context) bool
}

// PubSubClient is the abstract messaging dependency ClusteredStore's
// coordinator is built against, grounded on dcache's
// Publish/pubsub.Channel() usage.
type PubSubClient interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe returns a channel of raw message payloads and a function
	// to close the subscription. The returned channel is closed when the
	// subscription ends (connection loss, Close called, or ctx done).
	Subscribe(ctx context.Context, channel string) (messages <-chan []byte, closeFn func(), err error)
}

// ErrKeyNotFound is returned by KVClient.Get when key does not exist.
var ErrKeyNotFound = errors.New("sessionguard: key not found")

// RedisKV adapts redis.UniversalClient (the same interface
// other_examples' dcache and valkey_session.go build on) to KVClient.
type RedisKV struct {
	client redis.UniversalClient
}

// NewRedisKV wraps an already-configured redis.UniversalClient.
func NewRedisKV(client redis.UniversalClient) *RedisKV {
	return &RedisKV{client: client}
}

func (r *RedisKV) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sessionguard: redis get %s: %w", key, err)
	}
	return data, nil
}

func (r *RedisKV) Del(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// Scan uses SCAN (never KEYS) per §4.1.2's "KEYS-style blocking
// enumeration is forbidden", the same cursor-based pattern
// valkey_session.go's List and dcache's key listing use.
func (r *RedisKV) Scan(ctx context.Context, prefix string, cursor uint64, pageSize int64) ([]string, uint64, error) {
	keys, next, err := r.client.Scan(ctx, cursor, prefix+"*", pageSize).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("sessionguard: redis scan %s: %w", prefix, err)
	}
	return keys, next, nil
}

func (r *RedisKV) Healthy(ctx context.Context) bool {
	return r.client.Ping(ctx).Err() == nil
}

// RedisPubSub adapts redis.UniversalClient's pub/sub to PubSubClient.
type RedisPubSub struct {
	client redis.UniversalClient
}

// NewRedisPubSub wraps an already-configured redis.UniversalClient.
func NewRedisPubSub(client redis.UniversalClient) *RedisPubSub {
	return &RedisPubSub{client: client}
}

func (r *RedisPubSub) Publish(ctx context.Context, channel string, payload []byte) error {
	return r.client.Publish(ctx, channel, payload).Err()
}

func (r *RedisPubSub) Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error) {
	sub := r.client.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("sessionguard: subscribe %s: %w", channel, err)
	}

	out := make(chan []byte)
	done := make(chan struct{})
	go func() {
		defer close(out)
		ch := sub.Channel()
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-done:
					return
				}
			case <-done:
				return
			}
		}
	}()

	closeFn := func() {
		close(done)
		_ = sub.Close()
	}
	return out, closeFn, nil
}
