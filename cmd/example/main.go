// Command example wires up an in-memory session store and its local
// cache the way a single-process deployment would, demonstrating
// create/put/get/expire/cleanup without any external dependency.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sessionguard "github.com/tempusguard/sessionguard"
)

// UserSession is an example payload type satisfying sessionguard.Codec.
type UserSession struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

type userSessionCodec struct{}

func (userSessionCodec) EncodePayload(v UserSession) ([]byte, error) { return json.Marshal(v) }
func (userSessionCodec) DecodePayload(data []byte) (UserSession, error) {
	var v UserSession
	err := json.Unmarshal(data, &v)
	return v, err
}
func (userSessionCodec) Authenticated(v UserSession) bool { return v.UserID != "" }

func main() {
	cfg := sessionguard.NewConfig("testing",
		sessionguard.WithTimeout(2*time.Second),
	)
	store := sessionguard.NewMemoryStore[UserSession](userSessionCodec{}, cfg)
	cache := sessionguard.NewLocalCache[UserSession](
		sessionguard.WithCacheCleanupInterval[UserSession](500 * time.Millisecond),
		sessionguard.WithCacheMaxEntries[UserSession](1000),
	)
	defer cache.Stop()

	ctx := context.Background()

	rec, err := store.Create(ctx)
	if err != nil {
		panic(err)
	}
	rec.Value = UserSession{UserID: "u-42", Role: "admin"}
	if err := store.Put(ctx, rec.SessionID, rec); err != nil {
		panic(err)
	}
	cache.Set(rec.SessionID, rec, time.Second)

	if cached, ok := cache.Get(rec.SessionID); ok {
		fmt.Printf("cache hit: user=%s role=%s\n", cached.Value.UserID, cached.Value.Role)
	}

	time.Sleep(3 * time.Second)

	if _, err := store.Get(ctx, rec.SessionID); err != nil {
		fmt.Printf("session expired as expected: %v\n", err)
	}
	if _, ok := cache.Get(rec.SessionID); !ok {
		fmt.Println("local cache entry expired too")
	}

	removed := store.CleanupExpired()
	fmt.Printf("cleanup removed %d expired record(s)\n", removed)
	fmt.Printf("cache stats: %+v\n", cache.Stats())
}
