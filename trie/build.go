package trie

import (
	"sort"

	"github.com/ngram-lm/expgram/bitvector"
	"github.com/ngram-lm/expgram/packedvec"
	"github.com/ngram-lm/expgram/vocab"
)

// ShardBuilder assembles a Shard breadth-first, one order at a time, from
// sorted (parent position, child id) edges. It is the in-memory
// counterpart to package build's on-disk map-reduce pipeline (spec.md
// §4.8): callers append each order's nodes in parent-sorted order, then
// call Finish once all orders are appended.
type ShardBuilder struct {
	vocabSize int
	orders    [][]edge // orders[0] is order-2 (first non-unigram level)
}

type edge struct {
	parent uint64
	child  vocab.ID
}

// NewShardBuilder creates a builder for a shard whose order-1 (unigram)
// level has vocabSize entries — every shard carries the full vocabulary at
// order 1, per NGramIndex.hpp's `index(pos)` identity mapping below
// offsets[1].
func NewShardBuilder(vocabSize int) *ShardBuilder {
	return &ShardBuilder{vocabSize: vocabSize}
}

// AddOrder appends one order's worth of (parent, child) edges. parent is
// the position of the node one order shorter that this node extends;
// orders must be added from order 2 upward, and within an order edges must
// be sorted by (parent, child).
func (b *ShardBuilder) AddOrder(edges []struct {
	Parent uint64
	Child  vocab.ID
}) {
	es := make([]edge, len(edges))
	for i, e := range edges {
		es[i] = edge{parent: e.Parent, child: e.Child}
	}
	sort.SliceStable(es, func(i, j int) bool {
		if es[i].parent != es[j].parent {
			return es[i].parent < es[j].parent
		}
		return es[i].child < es[j].child
	})
	b.orders = append(b.orders, es)
}

// Finish produces the immutable Shard, computing Offsets, the packed IDs
// vector, and the succinct Positions bit vector that encodes parent
// pointers implicitly.
//
// Positions is a LOUDS-style unary encoding: for every "potential parent"
// node q (every node at order 1 through maxOrder-1, i.e. every position in
// [0, PositionSize())), the stream holds numChildren(q) one-bits followed
// by a single terminating zero-bit, with nodes visited in position order.
// This is the bit layout NGramIndex.hpp's select(k, true)/select(k, false)
// calls assume: the k-th one-bit is the k-th non-unigram node in flat
// array order, and the (q+1)-th zero-bit is node q's own terminator.
func (b *ShardBuilder) Finish() *Shard {
	offsets := make([]uint64, len(b.orders)+2)
	offsets[1] = uint64(b.vocabSize)
	for i, es := range b.orders {
		offsets[i+2] = offsets[i+1] + uint64(len(es))
	}
	total := offsets[len(offsets)-1]
	positionSize := offsets[len(offsets)-2]

	var maxID uint64
	for _, es := range b.orders {
		for _, e := range es {
			if uint64(e.child) > maxID {
				maxID = uint64(e.child)
			}
		}
	}
	numNonUnigram := int(total - offsets[1])

	width := packedvec.WidthFor(maxID)
	ids := packedvec.New(numNonUnigram, width)

	idx := 0
	for _, es := range b.orders {
		for _, e := range es {
			ids.Set(idx, uint64(e.child))
			idx++
		}
	}

	bitLen := numNonUnigram + int(positionSize)
	positions := bitvector.New(bitLen)

	bit := 0
	// orders[i] holds the children of potential-parents in position range
	// [offsets[i], offsets[i+1]).
	for i, childEdges := range b.orders {
		parentStart := offsets[i]
		parentEnd := offsets[i+1]
		j := 0
		for q := parentStart; q < parentEnd; q++ {
			for j < len(childEdges) && childEdges[j].parent == q {
				positions.Set(bit, true)
				bit++
				j++
			}
			positions.Set(bit, false)
			bit++
		}
	}
	positions.Build()

	return &Shard{
		IDs:       ids,
		Positions: positions,
		Offsets:   offsets,
	}
}
