package build

import (
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/ngram-lm/expgram/model"
	"github.com/ngram-lm/expgram/query"
	"github.com/ngram-lm/expgram/trie"
	"github.com/ngram-lm/expgram/vocab"
)

// EstimateModel computes logprob/backoff/logbound arrays for every shard
// in results and assembles a query.Engine over them, implementing spec.md
// §4.10 (interpolated probability estimation) and §4.11 (logbound
// estimation) on top of the trie Pipeline.Finish already built.
//
// removeUnk mirrors the remove_unk flag threaded through
// model.EstimateProbabilities/EstimateUnigrams (spec.md §4.9's <unk>
// redistribution open question, resolved in DESIGN.md).
func EstimateModel(v *vocab.Vocab, results []Result, maxOrder int, removeUnk bool) *query.Engine {
	shards := make([]*trie.Shard, len(results))
	for i, r := range results {
		shards[i] = r.Shard
	}
	idx := &trie.Index{Shards: shards, Vocab: v, Order: maxOrder}

	logprob := make([][]float32, len(results))
	backoff := make([][]float32, len(results))
	logbound := make([][]float32, len(results))
	rawEstimate := make([][]float64, len(results))
	for s, r := range results {
		n := int(r.Shard.Size())
		logprob[s] = fillFloat32(n, float32(model.MinLogProb))
		backoff[s] = fillFloat32(n, float32(model.MinLogProb))
		logbound[s] = fillFloat32(n, float32(model.MinLogProb))
		rawEstimate[s] = fillFloat64(n, model.MinLogProb)
	}

	engine := &query.Engine{
		Index:    idx,
		MaxOrder: maxOrder,
		BOSID:    vocab.BOS,
	}
	engine.LogProbArrays = wrapArrays(logprob)
	engine.BackoffArrays = wrapArrays(backoff)
	engine.LogBoundArrays = wrapArrays(logbound)

	vocabSize := v.Len()

	// Order 1: a single global estimate replicated across every shard's
	// identical unigram level.
	rawUnigram := results[0].RawCounts[:vocabSize]
	d1 := model.EstimateDiscounts(countsOfCountsFrom(rawUnigram, uint32(vocab.BOS)))
	unigramLogProb := model.EstimateUnigrams(rawUnigram, uint32(vocab.BOS), uint32(vocab.UNK), removeUnk, d1)
	for s := range results {
		for i := 0; i < vocabSize; i++ {
			logprob[s][i] = float32(unigramLogProb[i])
			rawEstimate[s][i] = unigramLogProb[i]
		}
	}
	// The root fallback for an unknown, non-BOS word (spec.md §4.13 step
	// c) floors to the model's own estimated unigram mass for <unk>,
	// mirroring arpa.Import's use of the <unk> unigram line as "smooth".
	engine.Smooth = unigramLogProb[vocab.UNK]

	// Orders 2..maxOrder, bottom-up: each order's children are normalised
	// against their context, with the lower orders already filled so
	// SuffixProb lookups walk the real back-off chain.
	for order := 2; order <= maxOrder; order++ {
		modCounts := collectModifiedCounts(results, order)
		rawCounts := collectRawCounts(results, order)
		interpDiscounts := model.EstimateDiscounts(countsOfCountsFromU64(modCounts))
		rawDiscounts := model.EstimateDiscounts(countsOfCountsFromU64(rawCounts))

		// Shards write only to their own slice of logprob/backoff/
		// rawEstimate and read only the lower orders already filled in
		// (plus other shards' already-filled arrays via engine.Suffix),
		// so estimating them concurrently is safe: one goroutine per
		// shard, per spec.md §5's per-shard worker fan-out.
		var g errgroup.Group
		for s, r := range results {
			s, r := s, r
			g.Go(func() error {
				shard := r.Shard
				if order > len(shard.Offsets)-1 {
					return nil // this shard never reached this order
				}
				ctxStart, ctxEnd := shard.Offsets[order-2], shard.Offsets[order-1]
				for ctx := ctxStart; ctx < ctxEnd; ctx++ {
					first, last := shard.ChildrenFirst(ctx), shard.ChildrenLast(ctx)
					if first >= last {
						continue
					}
					ctxState := query.NewState(s, ctx)
					suffixState := engine.Suffix(ctxState)

					children := make([]model.Child, 0, last-first)
					rawChildren := make([]model.Child, 0, last-first)
					for pos := first; pos < last; pos++ {
						word := shard.Index(pos)
						suffixLP := engine.LogProb(suffixState, word).LogProb
						suffixProb := 0.0
						if suffixLP != model.MinLogProb {
							suffixProb = math.Exp(suffixLP)
						}
						isUnk := word == vocab.UNK
						children = append(children, model.Child{
							Word: uint32(word), TypeCount: r.ModifiedCounts[pos], RawCount: r.RawCounts[pos],
							IsUnk: isUnk, SuffixProb: suffixProb,
						})
						rawChildren = append(rawChildren, model.Child{
							Word: uint32(word), TypeCount: r.RawCounts[pos], RawCount: r.RawCounts[pos],
							IsUnk: isUnk, SuffixProb: suffixProb,
						})
					}

					est := model.EstimateProbabilities(children, interpDiscounts, removeUnk)
					rawEst := model.EstimateProbabilities(rawChildren, rawDiscounts, removeUnk)

					backoff[s][ctx] = float32(est.Backoff)
					for i, pos := range childPositions(first, last) {
						logprob[s][pos] = float32(est.LogProb[i])
						rawEstimate[s][pos] = rawEst.LogProb[i]
					}
				}
				return nil
			})
		}
		_ = g.Wait()
	}

	estimateLogBounds(engine, idx, results, rawEstimate, logbound)

	return engine
}

func childPositions(first, last uint64) []uint64 {
	out := make([]uint64, 0, last-first)
	for p := first; p < last; p++ {
		out = append(out, p)
	}
	return out
}

// estimateLogBounds implements spec.md §4.11: for every BOS-prefixed
// n-gram (forward mode), push its raw-discount estimate to the node
// addressed by every proper suffix of its token sequence (plus its own
// exact node), keeping the running max per target node.
func estimateLogBounds(engine *query.Engine, idx *trie.Index, results []Result, rawEstimate [][]float64, logbound [][]float32) {
	bounds := make([][]model.Bound, len(results))
	for s, r := range results {
		bounds[s] = make([]model.Bound, r.Shard.Size())
		for i := range bounds[s] {
			bounds[s][i] = model.NewBound()
		}
	}

	for s, r := range results {
		shard := r.Shard
		n := len(shard.Offsets) - 1
		for order := 2; order <= n; order++ {
			start, end := shard.Offsets[order-1], shard.Offsets[order]
			for pos := start; pos < end; pos++ {
				ids := tokenSequence(shard, pos)
				if !model.StartsWithBOS(idsToU32(ids), uint32(vocab.BOS), false) {
					continue
				}
				value := rawEstimate[s][pos]
				bounds[s][pos].Offer(value)

				for _, suffix := range model.Suffixes(idsToU32(ids)) {
					suffixIDs := u32ToIDs(suffix)
					targetShard, consumed, targetPos := idx.Traverse(suffixIDs)
					if consumed != len(suffixIDs) || targetPos == trie.NotFound {
						continue
					}
					bounds[targetShard][targetPos].Offer(value)
				}
			}
		}
	}

	for s := range results {
		for pos := range bounds[s] {
			if v := bounds[s][pos].Value(); v != model.MinLogProb {
				logbound[s][pos] = float32(v)
			}
		}
	}
}

// tokenSequence reconstructs a node's full token sequence by walking its
// parent chain (only the trie structure, not the probability arrays, so
// it works regardless of estimation order).
func tokenSequence(shard *trie.Shard, pos uint64) []vocab.ID {
	var rev []vocab.ID
	for pos != trie.NotFound {
		rev = append(rev, shard.Index(pos))
		pos = shard.Parent(pos)
	}
	ids := make([]vocab.ID, len(rev))
	for i, id := range rev {
		ids[len(rev)-1-i] = id
	}
	return ids
}

func idsToU32(ids []vocab.ID) []uint32 {
	out := make([]uint32, len(ids))
	for i, id := range ids {
		out[i] = uint32(id)
	}
	return out
}

func u32ToIDs(ids []uint32) []vocab.ID {
	out := make([]vocab.ID, len(ids))
	for i, id := range ids {
		out[i] = vocab.ID(id)
	}
	return out
}

func collectModifiedCounts(results []Result, order int) []uint64 {
	var out []uint64
	for _, r := range results {
		if order > len(r.Shard.Offsets)-1 {
			continue
		}
		start, end := r.Shard.Offsets[order-1], r.Shard.Offsets[order]
		out = append(out, r.ModifiedCounts[start:end]...)
	}
	return out
}

func collectRawCounts(results []Result, order int) []uint64 {
	var out []uint64
	for _, r := range results {
		if order > len(r.Shard.Offsets)-1 {
			continue
		}
		start, end := r.Shard.Offsets[order-1], r.Shard.Offsets[order]
		out = append(out, r.RawCounts[start:end]...)
	}
	return out
}

func countsOfCountsFrom(counts []uint64, excludeID uint32) model.CountsOfCounts {
	var c model.CountsOfCounts
	for i, n := range counts {
		if uint32(i) == excludeID {
			continue
		}
		tallyCountOfCount(&c, n)
	}
	return c
}

func countsOfCountsFromU64(counts []uint64) model.CountsOfCounts {
	var c model.CountsOfCounts
	for _, n := range counts {
		tallyCountOfCount(&c, n)
	}
	return c
}

func tallyCountOfCount(c *model.CountsOfCounts, n uint64) {
	switch n {
	case 1:
		c.C1++
	case 2:
		c.C2++
	case 3:
		c.C3++
	default:
		if n >= 4 {
			c.C4++
		}
	}
}

func fillFloat32(n int, v float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func fillFloat64(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func wrapArrays(arrays [][]float32) []*query.ModelArray {
	out := make([]*query.ModelArray, len(arrays))
	for i, a := range arrays {
		out[i] = query.NewModelArray(a)
	}
	return out
}
