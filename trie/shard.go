// Package trie implements the sharded reverse-suffix trie that is the
// spine of the whole storage engine (spec.md §4.5, §4.6, §9 "Trie layout").
// Nodes are laid out breadth-first, grouped by n-gram order; within one
// shard a node's id is implicit in its storage position, its first token
// is recovered from a packed id array, and its parent is recovered with
// one bitvector select (O(log n), not constant-time) from a succinct bit
// vector rather than stored explicitly.
//
// Transcribed from original_source/expgram/NGramIndex.hpp's Shard struct:
// index/parent/children_first/children_last/find/lower_bound/traverse are
// direct translations of that header's member functions (the C++ branchless
// bit-trick formulas are expanded here into ordinary Go conditionals, which
// is how the teacher's Go code expresses the same kind of edge-case
// dispatch — see compactindexsized/query.go's straightforward if/else
// bucket search for comparison).
package trie

import (
	"fmt"

	"github.com/ngram-lm/expgram/bitvector"
	"github.com/ngram-lm/expgram/errs"
	"github.com/ngram-lm/expgram/packedvec"
	"github.com/ngram-lm/expgram/vocab"
)

// NotFound is the sentinel position returned when a trie lookup fails, the
// Go rendering of the C++ code's size_type(-1).
const NotFound = ^uint64(0)

// Shard is one hash-routed partition of the reverse trie. Offsets[k] is the
// number of nodes with order <= k, so Offsets[0] == 0 and Offsets[1] is the
// unigram (order-1) node count — also the vocabulary size, since every
// shard carries a full copy of the order-1 level.
type Shard struct {
	IDs       *packedvec.Vector // first-token id of every node at order >= 2
	Positions *bitvector.Vector // one 1-bit per node at order >= 2, one 0-bit per node below the top order
	Offsets   []uint64
}

// Index returns the first-token id of the node at pos. Order-1 nodes are
// their own id (the unigram level is stored implicitly as the identity
// mapping, per NGramIndex.hpp's `index(pos)`).
func (s *Shard) Index(pos uint64) vocab.ID {
	if pos < s.Offsets[1] {
		return vocab.ID(pos)
	}
	return vocab.ID(s.IDs.Get(int(pos - s.Offsets[1])))
}

// PositionSize returns the number of potential parents: every node except
// those at the deepest order, each of which owns one terminating 0-bit in
// Positions (Positions itself also holds one 1-bit per node at order >= 2).
func (s *Shard) PositionSize() uint64 {
	return s.Offsets[len(s.Offsets)-2]
}

// Size returns the total number of nodes across all orders in this shard.
func (s *Shard) Size() uint64 {
	return s.Offsets[len(s.Offsets)-1]
}

// Parent returns the position of pos's parent node (the node one order
// shorter sharing its suffix), or NotFound if pos is a root-level
// (order-1) node.
func (s *Shard) Parent(pos uint64) uint64 {
	if pos < s.Offsets[1] {
		return NotFound
	}
	sel := s.Positions.Select(int(pos+1-s.Offsets[1]), true)
	if sel == bitvector.NotFound {
		return NotFound
	}
	return sel + (s.Offsets[1] + 1) - pos - 1
}

// ChildrenFirst returns the position of the first child of pos. pos ==
// NotFound addresses the virtual root.
func (s *Shard) ChildrenFirst(pos uint64) uint64 {
	if pos == NotFound {
		return 0
	}
	if pos == 0 {
		return s.Offsets[1]
	}
	return s.ChildrenLast(pos - 1)
}

// ChildrenLast returns one past the position of the last child of pos.
func (s *Shard) ChildrenLast(pos uint64) uint64 {
	if pos == NotFound {
		return s.Offsets[1]
	}
	if pos >= s.PositionSize() {
		return s.Size()
	}
	last := s.Positions.Select(int(pos+1), false)
	if last == bitvector.NotFound {
		return s.Size()
	}
	return (last + 1 + s.Offsets[1] + 1) - (pos + 2)
}

// lowerBound finds the first position in [first, last) whose Index is >=
// id, using the same order-1 fast path and linear/binary split at 128
// elements as NGramIndex.hpp's lower_bound.
func (s *Shard) lowerBound(first, last uint64, id vocab.ID) uint64 {
	if last <= s.Offsets[1] {
		if uint64(id) < last {
			return uint64(id)
		}
		return last
	}

	offset := s.Offsets[1]
	length := last - first
	if length <= 128 {
		for first != last && s.IDs.Get(int(first-offset)) < uint64(id) {
			first++
		}
		return first
	}
	for length > 0 {
		half := length >> 1
		middle := first + half
		if s.IDs.Get(int(middle-offset)) < uint64(id) {
			first = middle + 1
			length = length - half - 1
		} else {
			length = half
		}
	}
	return first
}

// Find returns the child of pos carrying id, or NotFound if no such child
// exists.
func (s *Shard) Find(pos uint64, id vocab.ID) uint64 {
	first := s.ChildrenFirst(pos)
	last := s.ChildrenLast(pos)
	child := s.lowerBound(first, last, id)
	if child != last && s.Index(child) == id {
		return child
	}
	return NotFound
}

// Traverse walks ids from the trie root, returning how many were consumed
// and the position reached. It stops short of len(ids) as soon as a token
// has no matching child, mirroring NGramIndex.hpp's traverse.
func (s *Shard) Traverse(ids []vocab.ID) (consumed int, pos uint64) {
	pos = NotFound
	for i, id := range ids {
		node := s.Find(pos, id)
		if node == NotFound {
			return i, pos
		}
		pos = node
	}
	return len(ids), pos
}

// Validate checks the Shard's internal invariants: Offsets must be
// non-decreasing and IDs, when present, must hold one entry per node above
// order 1. The size of Positions is not checked.
func (s *Shard) Validate() error {
	for i := 1; i < len(s.Offsets); i++ {
		if s.Offsets[i] < s.Offsets[i-1] {
			return errs.New(errs.CorruptIndex, "Shard.Validate", fmt.Errorf("offsets not monotonic at %d", i))
		}
	}
	if len(s.Offsets) < 2 {
		return errs.New(errs.CorruptIndex, "Shard.Validate", fmt.Errorf("offsets must have at least 2 entries"))
	}
	wantIDs := int(s.Size() - s.Offsets[1])
	if s.IDs != nil && s.IDs.Len() != wantIDs {
		return errs.New(errs.CorruptIndex, "Shard.Validate", fmt.Errorf("ids length %d != expected %d", s.IDs.Len(), wantIDs))
	}
	return nil
}
