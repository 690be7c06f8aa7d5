package model

import "math"

// MinLogProb marks an n-gram that has not been assigned a probability,
// the sentinel the query engine and the bounds estimator treat as "no
// value here yet" (spec.md §4.11: "for every n-gram whose logprob != MIN").
const MinLogProb = -99 * math.Ln10

// Child describes one child of a context node during probability
// estimation: its modified (type) count, used for the interpolated
// estimate, and its raw count, used when computing logbounds (spec.md
// §4.10: "raw discounts at order k are used for logbounds; type discounts
// for logprobs").
type Child struct {
	Word       uint32
	TypeCount  uint64
	RawCount   uint64
	IsUnk      bool
	SuffixProb float64 // exp(logprob_of(suffix(context, w))), the lower-order back-off estimate
}

// Estimate is the result of scoring one context node's children: a
// log-probability per child (in the same order as the input slice) and
// the context's own back-off weight.
type Estimate struct {
	LogProb []float64
	Backoff float64
}

// EstimateProbabilities computes Chen-Goodman interpolated log-probabilities
// for every child of a context node, plus the node's back-off weight,
// following spec.md §4.10's normalise-then-backoff procedure.
//
// discounts must be the type-count discounts for the child order (order =
// len(context)+1); removeUnk excludes any child with IsUnk from the
// `total` denominator per spec.md's remove_unk flag.
func EstimateProbabilities(children []Child, discounts Discounts, removeUnk bool) Estimate {
	est := Estimate{LogProb: make([]float64, len(children))}
	if len(children) == 0 {
		return est
	}

	var total float64
	var n1, n2, n3plus float64
	for _, c := range children {
		if removeUnk && c.IsUnk {
			continue
		}
		total += float64(c.TypeCount)
		switch {
		case c.TypeCount == 1:
			n1++
		case c.TypeCount == 2:
			n2++
		case c.TypeCount >= 3:
			n3plus++
		}
	}
	if total <= 0 {
		return est
	}

	// Grow total until the naive per-child sum falls below 1 (spec.md
	// §4.10: "normalise until Σ exp(logprob[c]) < 1"), recomputing every
	// child's prob and the shared interp_weight at each candidate total —
	// both shrink as total grows, so the sum is monotonically decreasing
	// and the loop terminates. Matches original_source/expgram/
	// NGramCounts.cpp's `for (/**/; logsum >= 0.0; ++total)` loop: n1/n2/
	// n3plus (the count-of-count buckets) are fixed from the first pass;
	// only the normalising total itself grows.
	var sum float64
	for {
		interpWeight := (discounts.D1*n1 + discounts.D2*n2 + discounts.D3Plus*n3plus) / total
		sum = 0
		for i, c := range children {
			if removeUnk && c.IsUnk {
				est.LogProb[i] = MinLogProb
				continue
			}
			discount := discounts.ForCount(c.TypeCount)
			prob := discount * float64(c.TypeCount) / total
			p := prob + interpWeight*c.SuffixProb
			if p <= 0 {
				est.LogProb[i] = MinLogProb
				continue
			}
			lp := math.Log(p)
			est.LogProb[i] = lp
			sum += p
		}
		if sum < 1 {
			break
		}
		total++
	}

	numerator := 1 - sum
	var suffixSum float64
	for _, c := range children {
		if removeUnk && c.IsUnk {
			continue
		}
		suffixSum += c.SuffixProb
	}
	denominator := 1 - suffixSum

	switch {
	case numerator > 0 && denominator > 0:
		est.Backoff = math.Log(numerator) - math.Log(denominator)
	case numerator > 0:
		// denominator <= 0: renormalise children to sum to 1, leave
		// backoff at zero (spec.md §4.10).
		logSum := math.Log(sum)
		for i := range est.LogProb {
			if est.LogProb[i] != MinLogProb {
				est.LogProb[i] -= logSum
			}
		}
		est.Backoff = 0
	default:
		est.Backoff = 0
	}
	return est
}

// EstimateUnigrams computes the order-1 distribution: a uniform prior over
// observed words (BOS excluded, UNK excluded when removeUnk), interpolated
// with the order-1 discounts, with any left-over probability mass either
// redistributed to zero-count words or renormalised across observed words.
//
// This resolves spec.md's open question on the <unk>/remove_unk
// interaction using original_source/expgram/NGram.hpp's exact branch
// order: zero-event redistribution takes precedence over the renormalise
// branch whenever zero-count words are present, regardless of whether
// <unk> itself had a nonzero raw count.
func EstimateUnigrams(counts []uint64, bosID, unkID uint32, removeUnk bool, discounts Discounts) []float64 {
	n := len(counts)
	logp := make([]float64, n)

	var observed int
	var zeroCount int
	for i, c := range counts {
		if uint32(i) == bosID {
			continue
		}
		if removeUnk && uint32(i) == unkID {
			continue
		}
		if c > 0 {
			observed++
		} else {
			zeroCount++
		}
	}
	if observed == 0 {
		for i := range logp {
			logp[i] = MinLogProb
		}
		return logp
	}
	uniform := 1.0 / float64(observed)
	discount := discounts.D1

	var sum float64
	for i, c := range counts {
		if uint32(i) == bosID {
			logp[i] = MinLogProb
			continue
		}
		if removeUnk && uint32(i) == unkID {
			logp[i] = MinLogProb
			continue
		}
		if c == 0 {
			logp[i] = MinLogProb
			continue
		}
		p := discount * uniform
		if p <= 0 {
			logp[i] = MinLogProb
			continue
		}
		logp[i] = math.Log(p)
		sum += p
	}

	switch {
	case zeroCount > 0 && sum < 1:
		leftover := (1 - sum) / float64(zeroCount)
		if leftover > 0 {
			logLeftover := math.Log(leftover)
			for i, c := range counts {
				if uint32(i) == bosID {
					continue
				}
				if removeUnk && uint32(i) == unkID {
					continue
				}
				if c == 0 {
					logp[i] = logLeftover
				}
			}
		}
	case sum > 0:
		logSum := math.Log(sum)
		for i := range logp {
			if logp[i] != MinLogProb {
				logp[i] -= logSum
			}
		}
	}

	if int(bosID) < n {
		logp[bosID] = MinLogProb
	}
	return logp
}
