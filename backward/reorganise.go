// Package backward implements the forward->backward trie reorganisation
// (spec.md §4.12): the final serving format stores a context right-to-left
// so that incremental scoring appends a new word at the "left" of the
// current state. Reorganise walks a forward-built query.Engine, reverses
// every n-gram's token sequence, and re-applies the same map-reduce shape
// package build uses for counts — here the payload is a (logprob, backoff,
// logbound) score triple rather than a count.
package backward

import (
	"container/heap"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/ngram-lm/expgram/errs"
	"github.com/ngram-lm/expgram/query"
	"github.com/ngram-lm/expgram/trie"
	"github.com/ngram-lm/expgram/vocab"
)

// sortThreshold mirrors spec.md §4.12's "in-memory below a size threshold,
// external merge above it", scaled to the same order of magnitude as
// count.Postprocess's per-shard record counts (§4.7).
const sortThreshold = 1 << 16

// Record is one reversed n-gram: IDs is the full new (backward) token
// sequence — context first, extending word last, identically to
// build.Ngram — paired with the forward engine's three scores for that
// node.
type Record struct {
	IDs      []vocab.ID
	LogProb  float64
	Backoff  float64
	LogBound float64
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

type edgeRec struct {
	parent                     uint64
	child                      vocab.ID
	logprob, backoff, logbound float64
}

type shardState struct {
	builder    *trie.ShardBuilder
	contextPos map[string]uint64
	tokens     map[uint64][]vocab.ID
	logprob    []float64
	backoff    []float64
	logbound   []float64
}

// Builder assembles a backward-ordered trie.Index the same way
// build.Pipeline assembles a forward one, carrying score triples instead
// of raw/modified counts.
type Builder struct {
	vocabSize  int
	shardCount int
	shards     []*shardState
}

// NewBuilder creates a reorganisation builder over shardCount shards for a
// vocabSize-word vocabulary.
func NewBuilder(shardCount, vocabSize int) *Builder {
	b := &Builder{vocabSize: vocabSize, shardCount: shardCount}
	b.shards = make([]*shardState, shardCount)
	for s := range b.shards {
		b.shards[s] = &shardState{
			builder:    trie.NewShardBuilder(vocabSize),
			contextPos: make(map[string]uint64),
			tokens:     make(map[uint64][]vocab.ID),
		}
	}
	return b
}

func (b *Builder) routeShard(ids []vocab.ID) int {
	idx := &trie.Index{Shards: make([]*trie.Shard, b.shardCount)}
	return idx.ShardIndex(ids)
}

// AddUnigrams seeds every shard's order-1 identity mapping with the
// per-word unigram scores, unchanged by reversal (a single-token sequence
// reverses to itself).
func (b *Builder) AddUnigrams(logprob, backoff, logbound []float64) {
	for s := range b.shards {
		ss := b.shards[s]
		ss.logprob = append([]float64(nil), logprob...)
		ss.backoff = append([]float64(nil), backoff...)
		ss.logbound = append([]float64(nil), logbound...)
		for id := 0; id < b.vocabSize; id++ {
			ids := []vocab.ID{vocab.ID(id)}
			ss.contextPos[contextKey(ids)] = uint64(id)
			ss.tokens[uint64(id)] = ids
		}
	}
}

// AddOrder registers one order's (>= 2) reversed records. Records need not
// arrive pre-sorted; orders must be added strictly ascending from 2, and
// AddUnigrams must have been called first.
func (b *Builder) AddOrder(order int, records []Record) error {
	byShard := make([][]edgeRec, b.shardCount)

	for _, rec := range records {
		if len(rec.IDs) != order {
			return errs.New(errs.CorruptIndex, "Builder.AddOrder", fmt.Errorf("record length %d != order %d", len(rec.IDs), order))
		}
		context := rec.IDs[:len(rec.IDs)-1]
		word := rec.IDs[len(rec.IDs)-1]

		shard := b.routeShard(rec.IDs)
		parentPos, ok := b.shards[shard].contextPos[contextKey(context)]
		if !ok {
			return errs.New(errs.CorruptIndex, "Builder.AddOrder", fmt.Errorf("context %v not yet indexed (orders must be added ascending)", context))
		}
		byShard[shard] = append(byShard[shard], edgeRec{
			parent: parentPos, child: word,
			logprob: rec.LogProb, backoff: rec.Backoff, logbound: rec.LogBound,
		})
	}

	for s, edges := range byShard {
		ss := b.shards[s]
		sort.Slice(edges, func(i, j int) bool {
			if edges[i].parent != edges[j].parent {
				return edges[i].parent < edges[j].parent
			}
			return edges[i].child < edges[j].child
		})

		base := uint64(len(ss.logprob))
		for i, e := range edges {
			pos := base + uint64(i)
			ss.logprob = append(ss.logprob, e.logprob)
			ss.backoff = append(ss.backoff, e.backoff)
			ss.logbound = append(ss.logbound, e.logbound)

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

// Result is one shard's finished backward trie plus its score arrays,
// aligned to the shard's flat node positions.
type Result struct {
	Shard    *trie.Shard
	LogProb  []float64
	Backoff  []float64
	LogBound []float64
}

// Finish assembles every shard's backward trie.Shard and score arrays.
func (b *Builder) Finish() []Result {
	results := make([]Result, b.shardCount)
	for s, ss := range b.shards {
		results[s] = Result{
			Shard:    ss.builder.Finish(),
			LogProb:  ss.logprob,
			Backoff:  ss.backoff,
			LogBound: ss.logbound,
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

// Reorganise rebuilds engine's trie with every n-gram's token sequence
// reversed, carrying the forward logprob/backoff/logbound arrays across to
// the new node positions, per spec.md §4.12. The returned engine's
// Index.Backward is true.
func Reorganise(engine *query.Engine) (*query.Engine, error) {
	v := engine.Index.Vocab
	vocabSize := v.Len()
	shardCount := len(engine.Index.Shards)

	b := NewBuilder(shardCount, vocabSize)

	logprob := make([]float64, vocabSize)
	backoff := make([]float64, vocabSize)
	logbound := make([]float64, vocabSize)
	for id := 0; id < vocabSize; id++ {
		logprob[id] = engine.LogProbArrays[0].Get(uint64(id))
		backoff[id] = engine.BackoffArrays[0].Get(uint64(id))
		logbound[id] = engine.LogBoundArrays[0].Get(uint64(id))
	}
	b.AddUnigrams(logprob, backoff, logbound)

	for order := 2; order <= engine.MaxOrder; order++ {
		var records []Record
		for s, shard := range engine.Index.Shards {
			if order > len(shard.Offsets)-1 {
				continue
			}
			start, end := shard.Offsets[order-1], shard.Offsets[order]
			for pos := start; pos < end; pos++ {
				ids := tokenSequence(shard, pos)
				records = append(records, Record{
					IDs:      reverseIDs(ids),
					LogProb:  engine.LogProbArrays[s].Get(pos),
					Backoff:  engine.BackoffArrays[s].Get(pos),
					LogBound: engine.LogBoundArrays[s].Get(pos),
				})
			}
		}

		sorted, err := sortRecords(records)
		if err != nil {
			return nil, err
		}
		if err := b.AddOrder(order, sorted); err != nil {
			return nil, err
		}
	}

	results := b.Finish()
	shards := make([]*trie.Shard, len(results))
	logprobArrays := make([]*query.ModelArray, len(results))
	backoffArrays := make([]*query.ModelArray, len(results))
	logboundArrays := make([]*query.ModelArray, len(results))
	for i, r := range results {
		shards[i] = r.Shard
		logprobArrays[i] = query.NewModelArray(toFloat32(r.LogProb))
		backoffArrays[i] = query.NewModelArray(toFloat32(r.Backoff))
		logboundArrays[i] = query.NewModelArray(toFloat32(r.LogBound))
	}

	idx := &trie.Index{Shards: shards, Vocab: v, Order: engine.MaxOrder, Backward: true}
	return &query.Engine{
		Index:          idx,
		LogProbArrays:  logprobArrays,
		BackoffArrays:  backoffArrays,
		LogBoundArrays: logboundArrays,
		MaxOrder:       engine.MaxOrder,
		BOSID:          engine.BOSID,
		// Smooth carries across unchanged: reorganisation transports the
		// forward engine's scores (including its root-fallback floor), it
		// doesn't re-derive them.
		Smooth: engine.Smooth,
	}, nil
}

// tokenSequence reconstructs a forward node's full token sequence by
// walking its parent chain, identically to package build's own helper of
// the same name (kept separate since the two packages intentionally don't
// import one another's internals).
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

func reverseIDs(ids []vocab.ID) []vocab.ID {
	out := make([]vocab.ID, len(ids))
	for i, id := range ids {
		out[len(ids)-1-i] = id
	}
	return out
}

func toFloat32(values []float64) []float32 {
	out := make([]float32, len(values))
	for i, v := range values {
		out[i] = float32(v)
	}
	return out
}

// sortRecords orders records by their reversed-id sequence, the
// lexicographic key §4.12 requires before indexing. Below sortThreshold
// this happens in memory (sort.Slice); above it, records spill to sorted
// temp-file runs and are k-way merged back, the same streaming shape
// count.MergeSorted uses for count files (spec.md §4.7), since a single
// order's record set can exceed comfortable memory for a large corpus.
func sortRecords(records []Record) ([]Record, error) {
	if len(records) <= sortThreshold {
		sort.Slice(records, func(i, j int) bool {
			return contextKey(records[i].IDs) < contextKey(records[j].IDs)
		})
		return records, nil
	}
	return externalSort(records)
}

func externalSort(records []Record) ([]Record, error) {
	var paths []string
	defer func() {
		for _, p := range paths {
			os.Remove(p)
		}
	}()

	for start := 0; start < len(records); start += sortThreshold {
		end := start + sortThreshold
		if end > len(records) {
			end = len(records)
		}
		chunk := append([]Record(nil), records[start:end]...)
		sort.Slice(chunk, func(i, j int) bool {
			return contextKey(chunk[i].IDs) < contextKey(chunk[j].IDs)
		})
		path, err := writeRunFile(chunk)
		if err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}

	return mergeRunFiles(paths)
}

func writeRunFile(records []Record) (string, error) {
	f, err := os.CreateTemp("", "expgram-backward-run-*")
	if err != nil {
		return "", errs.New(errs.IOError, "writeRunFile", err)
	}
	defer f.Close()

	for _, r := range records {
		if err := encodeRecord(f, r); err != nil {
			return "", err
		}
	}
	return f.Name(), nil
}

// encodeRecord writes one record as: uint32 id count, that many uint32
// ids, then three float64 scores, little-endian throughout — the same
// fixed-width framing package repo uses for its on-disk arrays.
func encodeRecord(f *os.File, r Record) error {
	var head [4]byte
	binary.LittleEndian.PutUint32(head[:], uint32(len(r.IDs)))
	if _, err := f.Write(head[:]); err != nil {
		return errs.New(errs.IOError, "encodeRecord", err)
	}
	buf := make([]byte, 4*len(r.IDs))
	for i, id := range r.IDs {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(id))
	}
	if _, err := f.Write(buf); err != nil {
		return errs.New(errs.IOError, "encodeRecord", err)
	}
	var scores [24]byte
	binary.LittleEndian.PutUint64(scores[0:8], float64Bits(r.LogProb))
	binary.LittleEndian.PutUint64(scores[8:16], float64Bits(r.Backoff))
	binary.LittleEndian.PutUint64(scores[16:24], float64Bits(r.LogBound))
	if _, err := f.Write(scores[:]); err != nil {
		return errs.New(errs.IOError, "encodeRecord", err)
	}
	return nil
}

func mergeRunFiles(paths []string) ([]Record, error) {
	h := make(runHeap, 0, len(paths))
	for _, p := range paths {
		c, err := openRunCursor(p)
		if err != nil {
			return nil, err
		}
		if c.done {
			c.close()
			continue
		}
		h = append(h, c)
	}
	heap.Init(&h)
	defer func() {
		for _, c := range h {
			c.close()
		}
	}()

	var out []Record
	for h.Len() > 0 {
		top := h[0]
		out = append(out, top.current)
		top.advance()
		if top.done {
			heap.Pop(&h)
			top.close()
		} else {
			heap.Fix(&h, 0)
		}
	}
	return out, nil
}

type runCursor struct {
	f       *os.File
	current Record
	done    bool
}

func openRunCursor(path string) (*runCursor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.New(errs.IOError, "openRunCursor", err)
	}
	c := &runCursor{f: f}
	c.advance()
	return c, nil
}

func (c *runCursor) advance() {
	var head [4]byte
	if _, err := io.ReadFull(c.f, head[:]); err != nil {
		c.done = true
		return
	}
	n := binary.LittleEndian.Uint32(head[:])
	buf := make([]byte, 4*n)
	if _, err := io.ReadFull(c.f, buf); err != nil {
		c.done = true
		return
	}
	ids := make([]vocab.ID, n)
	for i := range ids {
		ids[i] = vocab.ID(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	var scores [24]byte
	if _, err := io.ReadFull(c.f, scores[:]); err != nil {
		c.done = true
		return
	}
	c.current = Record{
		IDs:      ids,
		LogProb:  float64FromBits(binary.LittleEndian.Uint64(scores[0:8])),
		Backoff:  float64FromBits(binary.LittleEndian.Uint64(scores[8:16])),
		LogBound: float64FromBits(binary.LittleEndian.Uint64(scores[16:24])),
	}
}

func (c *runCursor) close() { c.f.Close() }

type runHeap []*runCursor

func (h runHeap) Len() int      { return len(h) }
func (h runHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h runHeap) Less(i, j int) bool {
	return contextKey(h[i].current.IDs) < contextKey(h[j].current.IDs)
}
func (h *runHeap) Push(x interface{}) { *h = append(*h, x.(*runCursor)) }
func (h *runHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func float64Bits(v float64) uint64     { return math.Float64bits(v) }
func float64FromBits(b uint64) float64 { return math.Float64frombits(b) }
