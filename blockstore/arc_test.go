package blockstore_test

import (
	"testing"

	"github.com/ngram-lm/expgram/blockstore"
	"github.com/stretchr/testify/require"
)

func TestWorkerCacheBasic(t *testing.T) {
	c := blockstore.NewWorkerCache(2)

	c.Put(1, []byte("one"))
	c.Put(2, []byte("two"))

	v, ok := c.Get(1)
	require.True(t, ok)
	require.Equal(t, []byte("one"), v)

	v, ok = c.Get(2)
	require.True(t, ok)
	require.Equal(t, []byte("two"), v)

	_, ok = c.Get(99)
	require.False(t, ok)
}

func TestWorkerCacheEviction(t *testing.T) {
	c := blockstore.NewWorkerCache(2)
	c.Put(1, []byte("one"))
	c.Put(2, []byte("two"))
	c.Put(3, []byte("three"))

	hits := 0
	for _, k := range []uint64{1, 2, 3} {
		if _, ok := c.Get(k); ok {
			hits++
		}
	}
	require.GreaterOrEqual(t, hits, 1)
}

func TestDirectCachePowerOfTwo(t *testing.T) {
	c := blockstore.NewDirectCache(10)
	c.Put(5, []byte("x"))
	v, ok := c.Get(5)
	require.True(t, ok)
	require.Equal(t, []byte("x"), v)

	_, ok = c.Get(6)
	require.False(t, ok)

	// 10 slots round up to 16: key 5+8 lands in its own slot, while key
	// 5+16 maps onto key 5's slot and evicts it.
	c.Put(5+8, []byte("y"))
	v, ok = c.Get(5)
	require.True(t, ok)
	require.Equal(t, []byte("x"), v)
	c.Put(5+16, []byte("z"))
	_, ok = c.Get(5)
	require.False(t, ok)
}
