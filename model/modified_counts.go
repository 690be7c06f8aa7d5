package model

// ModifiedCounts computes the "types" count for every node in a shard: for
// an order >= 2 n-gram w_1...w_k, the number of distinct tokens w_0 that
// precede it somewhere in the corpus (spec.md §4.9, "modified counts"). For
// an order-1 word, the modified count is its own raw count if it is BOS,
// otherwise the number of distinct bigrams (w_0, word) observed — i.e. the
// number of children the word has at order 2 across every parent that
// leads to it, counted once per distinct left-extension.
//
// The shard-local trie already groups each node's children by the node
// itself (the parent), which is the right-extension direction; counting
// distinct *left* extensions instead requires a second pass keyed by
// (child token, suffix) rather than (parent, child token). ModifiedCounts
// takes that pass's result as precomputed leftExtensions, built by the
// caller while walking the corpus or counts file (package build's reducer
// has the context available; this function only folds the results into
// one per-node count array aligned to shard node positions).
type ModifiedCounts struct {
	// Values holds one entry per node position in the shard (order 1
	// through the shard's max order), the "types" count for that node.
	Values []uint64
}

// LeftExtensionCounter accumulates, for each node position, the distinct
// set of left-extension tokens observed so far. It is driven by package
// build's reducer: for every n-gram `w_0 w_1...w_k` counted in the corpus,
// call Observe(nodePositionOf(w_1...w_k), w_0).
type LeftExtensionCounter struct {
	seen     map[uint64]map[uint32]struct{}
	override map[uint64]uint64
}

// NewLeftExtensionCounter allocates an empty counter. Unlike a shard's
// final node count, the number of distinct positions observed isn't known
// upfront during a build pass, so positions are tracked in a map rather
// than a preallocated slice; Finish takes the final size once it is known.
func NewLeftExtensionCounter() *LeftExtensionCounter {
	return &LeftExtensionCounter{seen: make(map[uint64]map[uint32]struct{})}
}

// Observe records that leftToken precedes the n-gram stored at pos.
func (c *LeftExtensionCounter) Observe(pos uint64, leftToken uint32) {
	m := c.seen[pos]
	if m == nil {
		m = make(map[uint32]struct{})
		c.seen[pos] = m
	}
	m[leftToken] = struct{}{}
}

// SetBOSCount overrides BOS's modified count with its raw corpus count
// directly, per spec.md §4.9: "For unigrams, the BOS count is its own raw
// count" rather than a distinct-left-extension tally.
func (c *LeftExtensionCounter) SetBOSCount(bosPos uint64, rawBOSCount uint64) {
	if c.override == nil {
		c.override = make(map[uint64]uint64, 1)
	}
	c.override[bosPos] = rawBOSCount
}

// Finish produces the ModifiedCounts array sized to n node positions;
// positions never observed have a zero modified count.
func (c *LeftExtensionCounter) Finish(n int) ModifiedCounts {
	values := make([]uint64, n)
	for pos, m := range c.seen {
		if int(pos) < n {
			values[pos] = uint64(len(m))
		}
	}
	for pos, v := range c.override {
		if int(pos) < n {
			values[pos] = v
		}
	}
	return ModifiedCounts{Values: values}
}
