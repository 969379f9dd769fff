package sessionguard

// CacheStats is a point-in-time snapshot of a LocalCache's counters.
// hit_ratio = Hits / (Hits + Misses) is the usual derived metric; the
// package does not compute or export it itself.
type CacheStats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Size      int
}
