package sessionguard

import "time"

// cacheItem is a single entry in a LocalCache's LRU list. expiration is
// stored as UnixNano rather than time.Time for cheap numeric comparison
// on every Get, the same trick the teacher cache uses.
type cacheItem[T any] struct {
	key        string
	value      Record[T]
	expiration int64
}

// expired reports whether the entry is no longer live: either the
// local-cache TTL has passed, or the wrapped record's own ExpiresAt has
// (a node's clock can hold a stale-but-not-yet-TTL'd copy of a record
// whose underlying session already expired). expiration == 0 means
// "no local TTL": LocalCache.Set stores 0 when called with ttl <= 0, and
// such an entry only leaves through LRU eviction, Delete, Clear, or its
// record's own expiry.
func (it *cacheItem[T]) expired() bool {
	now := time.Now()
	if it.expiration != 0 && now.UnixNano() > it.expiration {
		return true
	}
	return it.value.Expired(now)
}
