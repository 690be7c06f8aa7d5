package trie

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/ngram-lm/expgram/vocab"
)

// Index is the sharded reverse trie for one order-N model: a thin router
// over a fixed set of Shards plus the shared Vocab, transcribing
// NGramIndex.hpp's outer class (as opposed to its nested Shard, which
// package trie's Shard type implements).
type Index struct {
	Shards []*Shard
	Vocab  *vocab.Vocab
	Order  int
	// Backward marks an index whose contexts are stored right-to-left
	// (package backward's reorganised serving format, spec.md §4.12).
	// Intermediate ARPA-ingested/forward-built indices leave this false.
	Backward bool
}

// ShardIndex returns which shard owns the n-gram ids[first:last], routed
// on the hash of its two context tokens (ids[0], ids[1]) — the first two
// tokens of the suffix being queried, per NGramIndex.hpp's
// __shard_index_dispatch. Unigram and empty queries always route to shard
// 0, matching the C++ early return for `last - first <= 1`.
func (idx *Index) ShardIndex(ids []vocab.ID) int {
	n := len(idx.Shards)
	if n <= 1 || len(ids) < 2 {
		return 0
	}
	h := combineHash(ids[0], ids[1])
	return int(h % uint64(n))
}

// ShardIndexBackoff returns the shard that owns the (order-1)-gram reached
// by dropping the oldest context token from a query currently being served
// by shardIndex at the given order. When order == 2, dropping the context
// token leaves a unigram, which — per NGramIndex.hpp's shard-0 rule for
// last-first <= 1 — always lives in shard 0 regardless of which shard
// served the bigram. For order > 2, the suffix's two nearest context
// tokens are unchanged by dropping the oldest one, so the same shard still
// owns it. This resolves spec.md's open question on shard_index_backoff
// using the original's exact formula:
//
//	shard_index_backoff = size_type((order == 2) - 1) & shard_index
//
// which evaluates to 0 when order == 2, and shard_index unchanged
// otherwise.
func ShardIndexBackoff(order int, shardIndex int) int {
	if order == 2 {
		return 0
	}
	return shardIndex
}

// combineHash mixes two word ids into one shard-routing hash, the Go
// rendering of hashmurmur's seeded chaining: hash(a, hash(b, 0)).
func combineHash(a, b vocab.ID) uint64 {
	var buf [12]byte
	binary.LittleEndian.PutUint32(buf[0:4], uint32(b))
	binary.LittleEndian.PutUint64(buf[4:12], 0)
	h := xxhash.Sum64(buf[:])

	binary.LittleEndian.PutUint32(buf[0:4], uint32(a))
	binary.LittleEndian.PutUint64(buf[4:12], h)
	return xxhash.Sum64(buf[:])
}

// Traverse walks ids through the shard that owns the full n-gram.
func (idx *Index) Traverse(ids []vocab.ID) (shard int, consumed int, pos uint64) {
	shard = idx.ShardIndex(ids)
	consumed, pos = idx.Shards[shard].Traverse(ids)
	return shard, consumed, pos
}
