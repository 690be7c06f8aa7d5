package blockstore

import (
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// WorkerCache is an Adaptive Replacement Cache built from the four LRU
// lists ARC tracks (spec.md §4.2, "second-level per-worker cache"): recent
// (T1), frequent (T2), and their ghost histories (B1, B2). hashicorp/golang-lru/v2 ships a fixed-size LRU
// but not ARC directly, so ARC is assembled here out of its simplelru
// building block the way the library's own (non-generic) lru/arc.go
// historically did, generalized to the [uint64][]byte block cache case.
type WorkerCache struct {
	mu sync.Mutex

	p int // target size of T1

	t1 simplelru.LRUCache[uint64, []byte]
	t2 simplelru.LRUCache[uint64, []byte]
	b1 simplelru.LRUCache[uint64, struct{}]
	b2 simplelru.LRUCache[uint64, struct{}]

	size int
}

// NewWorkerCache creates a per-worker Adaptive Replacement Cache able to
// hold up to size resident blocks, sized for one query-engine worker
// goroutine (spec.md §5, "per-shard worker").
func NewWorkerCache(size int) *WorkerCache {
	if size < 1 {
		size = 1
	}
	t1, _ := simplelru.NewLRU[uint64, []byte](size, nil)
	t2, _ := simplelru.NewLRU[uint64, []byte](size, nil)
	b1, _ := simplelru.NewLRU[uint64, struct{}](size, nil)
	b2, _ := simplelru.NewLRU[uint64, struct{}](size, nil)
	return &WorkerCache{t1: t1, t2: t2, b1: b1, b2: b2, size: size}
}

// Get returns the cached block for key, promoting it into the frequent
// list on hit.
func (c *WorkerCache) Get(key uint64) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.t1.Peek(key); ok {
		c.t1.Remove(key)
		c.t2.Add(key, v)
		return v, true
	}
	if v, ok := c.t2.Get(key); ok {
		return v, true
	}
	return nil, false
}

// Put inserts block under key, running the ARC adaptation rule on ghost
// hits.
func (c *WorkerCache) Put(key uint64, block []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.t1.Contains(key) {
		c.t1.Add(key, block)
		return
	}
	if c.t2.Contains(key) {
		c.t2.Add(key, block)
		return
	}

	if c.b1.Contains(key) {
		delta := 1
		if c.b1.Len() > 0 && c.b2.Len() > c.b1.Len() {
			delta = c.b2.Len() / c.b1.Len()
		}
		c.p = min(c.p+delta, c.size)
		c.replace(key)
		c.b1.Remove(key)
		c.t2.Add(key, block)
		return
	}
	if c.b2.Contains(key) {
		delta := 1
		if c.b2.Len() > 0 && c.b1.Len() > c.b2.Len() {
			delta = c.b1.Len() / c.b2.Len()
		}
		c.p = max(c.p-delta, 0)
		c.replace(key)
		c.b2.Remove(key)
		c.t2.Add(key, block)
		return
	}

	total := c.t1.Len() + c.b1.Len()
	if total == c.size {
		if c.t1.Len() < c.size {
			c.b1.RemoveOldest()
			c.replace(key)
		} else {
			c.t1.RemoveOldest()
		}
	} else if total < c.size && c.t1.Len()+c.t2.Len()+c.b1.Len()+c.b2.Len() >= c.size {
		if c.t1.Len()+c.t2.Len()+c.b1.Len()+c.b2.Len() == 2*c.size {
			c.b2.RemoveOldest()
		}
		c.replace(key)
	}
	c.t1.Add(key, block)
}

// replace evicts one entry from T1 or T2 into its ghost list, per the
// standard ARC replace() procedure.
func (c *WorkerCache) replace(key uint64) {
	if c.t1.Len() > 0 && ((c.t1.Len() > c.p) || (c.b2.Contains(key) && c.t1.Len() == c.p)) {
		k, _, ok := c.t1.GetOldest()
		if ok {
			c.t1.Remove(k)
			c.b1.Add(k, struct{}{})
		}
		return
	}
	if c.t2.Len() > 0 {
		k, _, ok := c.t2.GetOldest()
		if ok {
			c.t2.Remove(k)
			c.b2.Add(k, struct{}{})
		}
	}
}
