package trie_test

import (
	"testing"

	"github.com/ngram-lm/expgram/trie"
	"github.com/ngram-lm/expgram/vocab"
	"github.com/stretchr/testify/require"
)

// buildSmallShard constructs a 3-order shard (unigram, bigram, trigram)
// over a 4-word vocabulary:
//
//	0 -> {1, 2}          (order-2 children of word 0)
//	1 -> {0}             (order-2 children of word 1)
//	order-2 node "0->1" (pos 4) -> {3}   (order-3 child)
func buildSmallShard(t *testing.T) *trie.Shard {
	t.Helper()
	b := trie.NewShardBuilder(4)
	b.AddOrder([]struct {
		Parent uint64
		Child  vocab.ID
	}{
		{Parent: 0, Child: 1},
		{Parent: 0, Child: 2},
		{Parent: 1, Child: 0},
	})
	// order-2 nodes are at positions [4,5,6) = (0->1)=4, (0->2)=5, (1->0)=6
	b.AddOrder([]struct {
		Parent uint64
		Child  vocab.ID
	}{
		{Parent: 4, Child: 3},
	})
	return b.Finish()
}

func TestShardIndexIdentityForUnigram(t *testing.T) {
	s := buildSmallShard(t)
	for id := vocab.ID(0); id < 4; id++ {
		require.Equal(t, id, s.Index(uint64(id)))
	}
}

func TestShardFindAndParent(t *testing.T) {
	s := buildSmallShard(t)

	// find(root, 0) should reach unigram node 0.
	n0 := s.Find(trie.NotFound, 0)
	require.Equal(t, uint64(0), n0)

	// find(0, 1) should reach the order-2 node "0->1".
	n01 := s.Find(n0, 1)
	require.NotEqual(t, trie.NotFound, n01)
	require.Equal(t, vocab.ID(1), s.Index(n01))
	require.Equal(t, n0, s.Parent(n01))

	// find(0, 2) should reach the order-2 node "0->2".
	n02 := s.Find(n0, 2)
	require.NotEqual(t, trie.NotFound, n02)
	require.Equal(t, vocab.ID(2), s.Index(n02))
	require.Equal(t, n0, s.Parent(n02))

	// find(1, 0) should reach the order-2 node "1->0".
	n1 := s.Find(trie.NotFound, 1)
	n10 := s.Find(n1, 0)
	require.NotEqual(t, trie.NotFound, n10)
	require.Equal(t, n1, s.Parent(n10))

	// order-3 node "0->1->3" extends n01.
	n013 := s.Find(n01, 3)
	require.NotEqual(t, trie.NotFound, n013)
	require.Equal(t, n01, s.Parent(n013))

	// a nonexistent child must not be found.
	require.Equal(t, trie.NotFound, s.Find(n01, 9))
}

func TestShardTraverse(t *testing.T) {
	s := buildSmallShard(t)

	consumed, pos := s.Traverse([]vocab.ID{0, 1, 3})
	require.Equal(t, 3, consumed)
	require.Equal(t, vocab.ID(3), s.Index(pos))

	// a path that runs out partway through must report how far it got.
	consumed, pos = s.Traverse([]vocab.ID{0, 2, 9})
	require.Equal(t, 2, consumed)
	require.Equal(t, vocab.ID(2), s.Index(pos))
}

func TestShardValidate(t *testing.T) {
	s := buildSmallShard(t)
	require.NoError(t, s.Validate())
}
