package sessionguard

import "container/list"

// evictOldest drops the back of the LRU list when maxEntries is reached.
// Caller must hold c.mu.
func (c *LocalCache[T]) evictOldest() {
	elem := c.lru.Back()
	if elem != nil {
		c.removeElement(elem)
		c.stats.Evictions++
	}
}

// removeElement unlinks e from both the LRU list and the lookup map.
// Caller must hold c.mu.
func (c *LocalCache[T]) removeElement(e *list.Element) {
	c.lru.Remove(e)
	item := e.Value.(*cacheItem[T])
	delete(c.data, item.key)
}
