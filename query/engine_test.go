package query_test

import (
	"math"
	"testing"

	"github.com/ngram-lm/expgram/model"
	"github.com/ngram-lm/expgram/query"
	"github.com/ngram-lm/expgram/trie"
	"github.com/ngram-lm/expgram/vocab"
	"github.com/stretchr/testify/require"
)

// buildEngine constructs a 2-order, single-shard model over a 3-word
// vocabulary (BOS=0, EOS=1, the=2), with one bigram "BOS the" scored and
// everything else left to back off to the root smoothing floor.
func buildEngine(t *testing.T) *query.Engine {
	t.Helper()

	b := trie.NewShardBuilder(3)
	b.AddOrder([]struct {
		Parent uint64
		Child  vocab.ID
	}{
		{Parent: uint64(vocab.BOS), Child: 2},
	})
	shard := b.Finish()

	idx := &trie.Index{Shards: []*trie.Shard{shard}, Order: 2}

	logprob := []float32{
		model.MinLogProb, model.MinLogProb, float32(math.Log(0.9)), // unigram slots: BOS, EOS, "the"
		float32(math.Log(0.5)), // bigram "BOS the"
	}
	backoff := []float32{0, 0, 0, 0}
	logbound := make([]float32, len(logprob))
	copy(logbound, logprob)

	return &query.Engine{
		Index:          idx,
		LogProbArrays:  []*query.ModelArray{query.NewModelArray(logprob)},
		BackoffArrays:  []*query.ModelArray{query.NewModelArray(backoff)},
		LogBoundArrays: []*query.ModelArray{query.NewModelArray(logbound)},
		MaxOrder:       2,
		BOSID:          vocab.BOS,
		// A distinct, non-MinLogProb value so tests can tell the root
		// smoothing floor apart from "no value here yet" (spec.md §4.13
		// scenario S2: an ARPA load's smooth is the loaded <unk> logprob,
		// not the MinLogProb sentinel).
		Smooth: -2.0 * math.Log(10),
	}
}

func TestLogProbHitsBigram(t *testing.T) {
	e := buildEngine(t)
	res := e.LogProb(query.Root(), vocab.BOS)
	require.Equal(t, 0.0, res.LogProb)

	next := e.Next(query.Root(), vocab.BOS)
	require.False(t, next.IsRoot())

	res2 := e.LogProb(next, 2)
	require.InDelta(t, math.Log(0.5), res2.LogProb, 1e-6)
}

func TestLogProbBacksOffToUnigram(t *testing.T) {
	e := buildEngine(t)
	// querying word 2 ("the") from a context that doesn't extend to it
	// (EOS) must back off down to the unigram logprob.
	res := e.LogProb(e.Next(query.Root(), vocab.EOS), 2)
	require.InDelta(t, math.Log(0.9), res.LogProb, 1e-6)
}

func TestLogProbUnknownWordFloors(t *testing.T) {
	e := buildEngine(t)
	res := e.LogProb(query.Root(), 99)
	require.Equal(t, e.Smooth, res.LogProb)
	require.NotEqual(t, model.MinLogProb, res.LogProb)
}

func TestLogProbSequenceEmpty(t *testing.T) {
	e := buildEngine(t)
	require.Equal(t, 0.0, e.LogProbSequence(nil))
}

func TestOrderAndSuffix(t *testing.T) {
	e := buildEngine(t)
	require.Equal(t, 0, e.Order(query.Root()))

	s := e.Next(query.Root(), vocab.BOS)
	require.Equal(t, 1, e.Order(s))

	s2 := e.Next(s, 2)
	require.Equal(t, 2, e.Order(s2))

	back := e.Suffix(s2)
	require.Equal(t, 1, e.Order(back))
}
