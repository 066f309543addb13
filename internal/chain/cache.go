package chain

import "github.com/ethereum/go-ethereum/common"

// TimestampCache is a bounded block-hash → timestamp cache used to avoid
// re-fetching the same header repeatedly within an ingestion batch.
// Eviction is oldest-insertion-first. It is written only from the single
// ingestion loop and is not safe for concurrent use.
type TimestampCache struct {
	capacity int
	entries  map[common.Hash]uint64
	order    []common.Hash
}

// NewTimestampCache creates a cache holding at most capacity headers.
func NewTimestampCache(capacity int) *TimestampCache {
	if capacity <= 0 {
		capacity = 256
	}
	return &TimestampCache{
		capacity: capacity,
		entries:  make(map[common.Hash]uint64, capacity),
	}
}

// Get returns the cached timestamp for hash, if present.
func (c *TimestampCache) Get(hash common.Hash) (uint64, bool) {
	ts, ok := c.entries[hash]
	return ts, ok
}

// Put stores a timestamp, evicting the oldest entry at capacity.
func (c *TimestampCache) Put(hash common.Hash, timestamp uint64) {
	if _, ok := c.entries[hash]; ok {
		c.entries[hash] = timestamp
		return
	}
	if len(c.order) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[hash] = timestamp
	c.order = append(c.order, hash)
}

// Len returns the number of cached entries.
func (c *TimestampCache) Len() int {
	return len(c.entries)
}
