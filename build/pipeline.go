// Package build implements the two-stage map-reduce that turns sorted
// per-order n-gram counts into a sharded trie.Index plus its aligned raw
// and modified count arrays (spec.md §4.8, §4.9). Pipeline is a
// sequential reducer: cmd/expgram's build subcommand calls AddOrder on a
// single goroutine, one order at a time. Each order's node positions are a
// pure function of that order's sorted (parent, child) pairs.
package build

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ngram-lm/expgram/errs"
	"github.com/ngram-lm/expgram/model"
	"github.com/ngram-lm/expgram/trie"
	"github.com/ngram-lm/expgram/vocab"
)

// Ngram is one decoded n-gram record: the full token sequence (context
// tokens followed by the extending word) and its observed count, as
// produced by count.MergeSorted/google.Ingestor once tokens are resolved
// to vocabulary ids.
type Ngram struct {
	IDs   []vocab.ID
	Count uint64
}

type edgeRec struct {
	parent uint64
	child  vocab.ID
	count  uint64
}

type shardState struct {
	builder *trie.ShardBuilder
	// contextPos maps a node's own token sequence to its assigned flat
	// position, seeded with the order-1 identity mapping at construction.
	contextPos map[string]uint64
	// tokens is the reverse of contextPos: a node's assigned position back
	// to its full token sequence, needed to reconstruct a child node's
	// token sequence from its parent's position alone.
	tokens    map[uint64][]vocab.ID
	rawCounts []uint64
	leftExt   *model.LeftExtensionCounter
}

// Pipeline assembles one multi-order build across shardCount shards for a
// vocabulary of vocabSize words.
type Pipeline struct {
	vocabSize  int
	shardCount int
	maxOrder   int
	v          *vocab.Vocab

	shards []*shardState

	uniLeftExt *model.LeftExtensionCounter // order-1 modified counts, shard-independent
	bosRawUni  uint64
}

// NewPipeline creates a build over shardCount shards for a maxOrder model
// of v's vocabulary.
func NewPipeline(v *vocab.Vocab, shardCount, maxOrder int) *Pipeline {
	p := &Pipeline{
		vocabSize:  v.Len(),
		shardCount: shardCount,
		maxOrder:   maxOrder,
		v:          v,
		uniLeftExt: model.NewLeftExtensionCounter(),
	}
	p.shards = make([]*shardState, shardCount)
	for s := range p.shards {
		p.shards[s] = &shardState{
			builder:    trie.NewShardBuilder(p.vocabSize),
			contextPos: make(map[string]uint64),
			tokens:     make(map[uint64][]vocab.ID),
		}
	}
	return p
}

func contextKey(ids []vocab.ID) string {
	var b strings.Builder
	for i, id := range ids {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatUint(uint64(id), 10))
	}
	return b.String()
}

// routeShard computes spec.md §4.8's shard routing: the hash of the full
// n-gram's two oldest tokens, which for an order-2 record is exactly the
// bigram itself. Reuses trie.Index.ShardIndex so the routing formula has
// exactly one implementation in the module.
func (p *Pipeline) routeShard(ids []vocab.ID) int {
	idx := &trie.Index{Shards: make([]*trie.Shard, p.shardCount)}
	return idx.ShardIndex(ids)
}

// AddUnigrams registers order-1 raw counts, replicated across every shard
// since every shard carries the full vocabulary at order 1 (NGramIndex.hpp's
// identity mapping below offsets[1]).
func (p *Pipeline) AddUnigrams(counts []uint64) {
	for s := range p.shards {
		ss := p.shards[s]
		ss.rawCounts = append([]uint64(nil), counts...)
		for id := 0; id < p.vocabSize; id++ {
			ids := []vocab.ID{vocab.ID(id)}
			ss.contextPos[contextKey(ids)] = uint64(id)
			ss.tokens[uint64(id)] = ids
		}
	}
	if int(vocab.BOS) < len(counts) {
		p.bosRawUni = counts[vocab.BOS]
	}
}

// AddOrder registers one order's (>= 2) records, which need not arrive
// pre-sorted. Orders must be added strictly ascending starting at 2, and
// AddUnigrams must have been called first.
func (p *Pipeline) AddOrder(order int, records []Ngram) error {
	byShard := make([][]edgeRec, p.shardCount)

	for _, rec := range records {
		full := rec.IDs
		if len(full) != order {
			return errs.New(errs.CorruptIndex, "Pipeline.AddOrder", fmt.Errorf("record length %d != order %d", len(full), order))
		}
		context := full[:len(full)-1]
		word := full[len(full)-1]

		shard := p.routeShard(full)
		parentPos, ok := p.shards[shard].contextPos[contextKey(context)]
		if !ok {
			return errs.New(errs.CorruptIndex, "Pipeline.AddOrder", fmt.Errorf("context %v not yet indexed (orders must be added ascending)", context))
		}
		byShard[shard] = append(byShard[shard], edgeRec{parent: parentPos, child: word, count: rec.Count})

		p.observeLeftExtension(context, word)
	}

	for s, edges := range byShard {
		ss := p.shards[s]
		sort.Slice(edges, func(i, j int) bool {
			if edges[i].parent != edges[j].parent {
				return edges[i].parent < edges[j].parent
			}
			return edges[i].child < edges[j].child
		})

		base := uint64(len(ss.rawCounts))
		for i, e := range edges {
			pos := base + uint64(i)
			ss.rawCounts = append(ss.rawCounts, e.count)

			full := make([]vocab.ID, 0, order)
			full = append(full, ss.tokens[e.parent]...)
			full = append(full, e.child)
			ss.contextPos[contextKey(full)] = pos
			ss.tokens[pos] = full
		}
		ss.builder.AddOrder(toBuilderEdges(edges))
	}
	return nil
}

// observeLeftExtension folds one order-`len(context)+1` record into the
// modified-count tally of the n-gram one shorter that it extends
// (context[1:]+word), per spec.md §4.9.
func (p *Pipeline) observeLeftExtension(context []vocab.ID, word vocab.ID) {
	if len(context) == 0 {
		return
	}
	leftToken := context[0]
	suffix := append(append([]vocab.ID{}, context[1:]...), word)

	if len(suffix) == 1 {
		p.uniLeftExt.Observe(uint64(suffix[0]), uint32(leftToken))
		return
	}
	suffixShard := p.routeShard(suffix)
	pos, ok := p.shards[suffixShard].contextPos[contextKey(suffix)]
	if !ok {
		// The suffix's own order hasn't been registered yet; this only
		// happens when orders are added out of the required ascending
		// sequence, which AddOrder already rejects for the direct parent
		// lookup above, so silently skipping here is unreachable in
		// practice but kept non-fatal since modified counts are best-effort
		// bookkeeping, not structural.
		return
	}
	p.shards[suffixShard].leftExtOrNew().Observe(pos, uint32(leftToken))
}

func (ss *shardState) leftExtOrNew() *model.LeftExtensionCounter {
	if ss.leftExt == nil {
		ss.leftExt = model.NewLeftExtensionCounter()
	}
	return ss.leftExt
}

// Result is one shard's finished build artifacts: the succinct trie plus
// its raw and modified (type) count arrays, aligned to the shard's flat
// node positions, ready for repo.SaveShard/repo.SaveFloatArray.
type Result struct {
	Shard          *trie.Shard
	RawCounts      []uint64
	ModifiedCounts []uint64
}

// Finish assembles every shard's trie.Shard and count arrays. The
// top-order nodes have no "distinct left extension" count of their own
// (there is no order above them to extend), so per spec.md §4.9 their
// modified count is defined to equal their raw count.
func (p *Pipeline) Finish() []Result {
	results := make([]Result, p.shardCount)
	for s, ss := range p.shards {
		shard := ss.builder.Finish()
		n := len(shard.Offsets) - 1
		total := shard.Offsets[n]

		var mc model.ModifiedCounts
		if ss.leftExt != nil {
			mc = ss.leftExt.Finish(int(total))
		} else {
			mc = model.ModifiedCounts{Values: make([]uint64, total)}
		}

		uni := p.uniLeftExt.Finish(p.vocabSize)
		copy(mc.Values[:p.vocabSize], uni.Values)
		if p.bosRawUni > 0 {
			mc.Values[vocab.BOS] = p.bosRawUni
		}

		topStart := shard.Offsets[n-1]
		for pos := topStart; pos < total; pos++ {
			mc.Values[pos] = ss.rawCounts[pos]
		}

		results[s] = Result{
			Shard:          shard,
			RawCounts:      ss.rawCounts,
			ModifiedCounts: mc.Values,
		}
	}
	return results
}

func toBuilderEdges(edges []edgeRec) []struct {
	Parent uint64
	Child  vocab.ID
} {
	out := make([]struct {
		Parent uint64
		Child  vocab.ID
	}, len(edges))
	for i, e := range edges {
		out[i] = struct {
			Parent uint64
			Child  vocab.ID
		}{Parent: e.parent, Child: e.child}
	}
	return out
}
