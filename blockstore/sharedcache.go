package blockstore

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/allegro/bigcache/v3"
)

// directMapCache is the subset of DirectCache's API Store depends on,
// letting Store plug in a different shared-cache backend without
// changing its read path.
type directMapCache interface {
	Get(key uint64) ([]byte, bool)
	Put(key uint64, block []byte)
}

var _ directMapCache = (*DirectCache)(nil)
var _ directMapCache = (*SharedCache)(nil)

// SharedCache is a bigcache-backed alternative to DirectCache: one
// in-process cache per Store with its own eviction policy and expiry, useful when
// many query workers should share one cache budget rather than each
// querying a small direct-mapped table sized for one goroutine's working
// set (spec.md §4.2 "Caches", large shared deployments).
type SharedCache struct {
	c *bigcache.BigCache
}

// NewSharedCache creates an in-process block cache sized to hold
// roughly capacityBlocks 8 KiB blocks, evicting entries once ttl has
// passed since they were last Put (a Get does not extend their life).
func NewSharedCache(capacityBlocks int, ttl time.Duration) (*SharedCache, error) {
	cfg := bigcache.DefaultConfig(ttl)
	cfg.HardMaxCacheSize = (capacityBlocks * 8192) / (1024 * 1024)
	if cfg.HardMaxCacheSize == 0 {
		cfg.HardMaxCacheSize = 1
	}
	c, err := bigcache.New(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	return &SharedCache{c: c}, nil
}

func sharedCacheKey(key uint64) string {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], key)
	return string(b[:])
}

// Get returns the cached block for key, if present and not yet expired.
func (s *SharedCache) Get(key uint64) ([]byte, bool) {
	block, err := s.c.Get(sharedCacheKey(key))
	if err != nil {
		return nil, false
	}
	return block, true
}

// Put publishes block under key.
func (s *SharedCache) Put(key uint64, block []byte) {
	_ = s.c.Set(sharedCacheKey(key), block)
}
