// Package query implements the stateless n-gram scoring engine (spec.md
// §4.13, §6.4): given a persisted Model (trie + logprob/backoff/logbound
// arrays), it answers logprob/logbound/logprob-of-sequence queries by
// walking the trie with back-off, the way expgram's NGram::logprob and
// NGram::logbound dispatch over NGramIndex::Shard.
package query

import (
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/ngram-lm/expgram/model"
	"github.com/ngram-lm/expgram/trie"
	"github.com/ngram-lm/expgram/vocab"
)

// State is a persistent query cursor: which shard owns the current
// context node, and the node's position within it. Root() is the root
// context (empty history); the zero State is not the root, it addresses
// shard 0's position 0.
type State struct {
	shard int
	pos   uint64
}

// Root returns the empty-context state.
func Root() State {
	return State{shard: 0, pos: trie.NotFound}
}

// NewState addresses an arbitrary shard/position pair directly, for
// callers (package build's estimation driver) that already know a node's
// location from walking trie.Shard themselves rather than reaching it via
// Next.
func NewState(shard int, pos uint64) State {
	return State{shard: shard, pos: pos}
}

// Shard and Pos expose the state's coordinates for callers that need to
// index into per-shard bookkeeping (package build's logbound estimator).
func (s State) Shard() int  { return s.shard }
func (s State) Pos() uint64 { return s.pos }

// IsRoot reports whether s addresses the virtual root.
func (s State) IsRoot() bool {
	return s.pos == trie.NotFound
}

// Engine answers queries against a single order-N model: one Index per
// shard plus the log-probability, back-off, and logbound arrays aligned
// to each shard's node positions (spec.md §3, "Shard data").
// Engine's LogProbArrays/BackoffArrays/LogBoundArrays are named with the
// Arrays suffix (rather than LogProb/Backoff/LogBound) specifically to
// avoid colliding with the identically-named query methods below — Go
// does not allow a field and a method to share a selector on the same
// type.
type Engine struct {
	Index          *trie.Index
	LogProbArrays  []*ModelArray // per shard
	BackoffArrays  []*ModelArray
	LogBoundArrays []*ModelArray
	MaxOrder       int
	BOSID          vocab.ID

	// Smooth is the per-model fallback log-probability assigned at the
	// root for an unknown, non-BOS word (spec.md §4.13 step c: "acc +
	// (word == BOS ? logprob_bos : smooth)"). A repository persists this
	// in its header (repo.Header.Smooth); an ARPA import derives it from
	// the <unk> unigram, or synthesises log(1/U) when <unk> is absent
	// (package arpa's ensureUnknown).
	Smooth float64

	findCache *ttlcache.Cache[findKey, uint64]
}

// findKey addresses one Shard.Find lookup: a (shard, context position,
// next word) triple.
type findKey struct {
	shard int
	pos   uint64
	id    vocab.ID
}

// EnableFindCache turns on a bounded TTL cache in front of every Next
// lookup's Shard.Find call, for serving engines with a hot working set of
// repeated contexts (spec.md §4.5 "Caches"). Build-time engines (package
// build, package backward) leave this unset: a construction pass touches
// each node once, where a cache only adds overhead.
func (e *Engine) EnableFindCache(capacity uint64, ttl time.Duration) {
	e.findCache = ttlcache.New[findKey, uint64](
		ttlcache.WithCapacity[findKey, uint64](capacity),
		ttlcache.WithTTL[findKey, uint64](ttl),
	)
}

// ModelArray is a read-only float32 array aligned to one shard's node
// positions, as persisted by package repo.
type ModelArray struct {
	values []float32
}

// NewModelArray wraps an in-memory slice of per-node values.
func NewModelArray(values []float32) *ModelArray {
	return &ModelArray{values: values}
}

// Get returns the value at pos, or model.MinLogProb if pos is out of
// range (an unset trailing entry) or holds the float32-rounded floor.
func (m *ModelArray) Get(pos uint64) float64 {
	if m == nil || pos >= uint64(len(m.values)) {
		return model.MinLogProb
	}
	v := m.values[pos]
	if v == float32(model.MinLogProb) {
		return model.MinLogProb
	}
	return float64(v)
}

// Values exposes the backing slice for callers that persist it verbatim
// (package repo's SaveFloatArray). Callers must not mutate the result.
func (m *ModelArray) Values() []float32 {
	if m == nil {
		return nil
	}
	return m.values
}

// Order returns the depth of state: 0 for root, otherwise the number of
// tokens in its context.
func (e *Engine) Order(s State) int {
	if s.IsRoot() {
		return 0
	}
	shard := e.Index.Shards[s.shard]
	order := 1
	pos := s.pos
	for pos >= shard.Offsets[1] {
		pos = shard.Parent(pos)
		order++
	}
	return order
}

// Suffix returns the state reached by dropping the deepest (most recent)
// token from s's context. The target shard is resolved with
// trie.ShardIndexBackoff: shrinking a bigram context down to a unigram
// always lands in shard 0 (every shard replicates the unigram level);
// shrinking any longer context keeps the same shard, since the two
// context tokens used for routing are unaffected by dropping the oldest
// one (see SPEC_FULL.md §4.6's resolution of this open question).
func (e *Engine) Suffix(s State) State {
	if s.IsRoot() {
		return s
	}
	order := e.Order(s)
	shard := e.Index.Shards[s.shard]
	parent := shard.Parent(s.pos)
	if parent == trie.NotFound {
		return Root()
	}
	nextShard := trie.ShardIndexBackoff(order, s.shard)
	return State{shard: nextShard, pos: parent}
}

// Next follows the child edge for id from s, returning the reached state.
// If no such child exists, the returned state satisfies IsRoot (spec.md:
// "returns a sentinel state whose is_root_node() is true").
func (e *Engine) Next(s State, id vocab.ID) State {
	if e.findCache != nil {
		key := findKey{shard: s.shard, pos: s.pos, id: id}
		if item := e.findCache.Get(key); item != nil {
			return nodeToState(s.shard, item.Value())
		}
		node := e.Index.Shards[s.shard].Find(s.pos, id)
		e.findCache.Set(key, node, ttlcache.DefaultTTL)
		return nodeToState(s.shard, node)
	}
	return nodeToState(s.shard, e.Index.Shards[s.shard].Find(s.pos, id))
}

func nodeToState(shard int, node uint64) State {
	if node == trie.NotFound {
		return Root()
	}
	return State{shard: shard, pos: node}
}

// clipToMaxOrder repeatedly takes suffixes until state's order is at most
// MaxOrder-1, matching logprob's first step ("Clip state to at most N-1
// order").
func (e *Engine) clipToMaxOrder(s State) State {
	for e.Order(s) > e.MaxOrder-1 {
		s = e.Suffix(s)
	}
	return s
}
