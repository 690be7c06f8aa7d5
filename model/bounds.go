package model

// Bound tracks the running maximum log-probability seen for a given
// shorter n-gram during logbound estimation (spec.md §4.11).
type Bound struct {
	value float64
	set   bool
}

// NewBound returns an empty bound, below any real log-probability.
func NewBound() Bound { return Bound{value: MinLogProb} }

// Offer folds logprob into the bound if it is larger than what is
// currently held.
func (b *Bound) Offer(logprob float64) {
	if logprob == MinLogProb {
		return
	}
	if !b.set || logprob > b.value {
		b.value = logprob
		b.set = true
	}
}

// Value returns the accumulated bound, or MinLogProb if nothing was ever
// offered.
func (b Bound) Value() float64 {
	if !b.set {
		return MinLogProb
	}
	return b.value
}

// Suffixes returns every proper, non-empty suffix of ids, shortest first,
// excluding ids itself. This is the map-phase fan-out described in
// spec.md §4.11: "for every proper suffix of every n-gram... push
// (suffix_ids, logprob) to the shard that owns that suffix."
func Suffixes(ids []uint32) [][]uint32 {
	if len(ids) <= 1 {
		return nil
	}
	out := make([][]uint32, 0, len(ids)-1)
	for start := 1; start < len(ids); start++ {
		suffix := make([]uint32, len(ids)-start)
		copy(suffix, ids[start:])
		out = append(out, suffix)
	}
	return out
}

// StartsWithBOS reports whether ids begins with the sentence-boundary
// token, the precondition spec.md §4.11 imposes on which unigram contexts
// participate in bound estimation ("we estimate bounds only under
// BOS-prefixed contexts in forward mode, BOS-suffixed in backward").
func StartsWithBOS(ids []uint32, bosID uint32, backward bool) bool {
	if len(ids) == 0 {
		return false
	}
	if backward {
		return ids[len(ids)-1] == bosID
	}
	return ids[0] == bosID
}
