package build_test

import (
	"testing"

	"github.com/ngram-lm/expgram/build"
	"github.com/ngram-lm/expgram/model"
	"github.com/ngram-lm/expgram/query"
	"github.com/ngram-lm/expgram/vocab"
	"github.com/stretchr/testify/require"
)

func buildPipeline(t *testing.T) (*vocab.Vocab, []build.Result) {
	t.Helper()
	v := buildVocab(t)
	catID, satID := vocab.ID(3), vocab.ID(4)

	p := build.NewPipeline(v, 1, 3)
	unigramCounts := make([]uint64, v.Len())
	unigramCounts[vocab.BOS] = 2
	unigramCounts[vocab.EOS] = 2
	unigramCounts[catID] = 2
	unigramCounts[satID] = 2
	p.AddUnigrams(unigramCounts)

	require.NoError(t, p.AddOrder(2, []build.Ngram{
		{IDs: []vocab.ID{vocab.BOS, catID}, Count: 2},
		{IDs: []vocab.ID{catID, satID}, Count: 2},
		{IDs: []vocab.ID{satID, vocab.EOS}, Count: 2},
	}))
	require.NoError(t, p.AddOrder(3, []build.Ngram{
		{IDs: []vocab.ID{vocab.BOS, catID, satID}, Count: 2},
		{IDs: []vocab.ID{catID, satID, vocab.EOS}, Count: 2},
	}))

	return v, p.Finish()
}

func TestEstimateModelAssemblesQueryableEngine(t *testing.T) {
	v, results := buildPipeline(t)
	catID, satID := vocab.ID(3), vocab.ID(4)

	engine := build.EstimateModel(v, results, 3, false)
	require.Equal(t, 3, engine.MaxOrder)
	require.Equal(t, vocab.BOS, engine.BOSID)

	// The fully observed trigram "<s> cat sat" should score well above the
	// floor at every step: BOS -> cat -> sat.
	afterBOS := engine.Next(query.Root(), vocab.BOS)
	require.False(t, afterBOS.IsRoot())

	resCat := engine.LogProb(afterBOS, catID)
	require.NotEqual(t, model.MinLogProb, resCat.LogProb)
	require.False(t, resCat.State.IsRoot())

	resSat := engine.LogProb(resCat.State, satID)
	require.NotEqual(t, model.MinLogProb, resSat.LogProb)

	// An unseen word from the root context falls back to the model's
	// smoothing value (the <unk> unigram estimate) rather than erroring or
	// panicking.
	resUnseen := engine.LogProb(query.Root(), vocab.ID(999))
	require.Equal(t, engine.Smooth, resUnseen.LogProb)
}

func TestEstimateModelLogBoundIsAdmissible(t *testing.T) {
	v, results := buildPipeline(t)
	catID := vocab.ID(3)

	engine := build.EstimateModel(v, results, 3, false)

	afterBOS := engine.Next(query.Root(), vocab.BOS)
	logProb := engine.LogProb(afterBOS, catID)
	logBound := engine.LogBound(afterBOS, catID)

	// logbound is an admissible upper bound: it must never score a known
	// continuation lower than the interpolated estimate.
	require.GreaterOrEqual(t, logBound.LogProb, logProb.LogProb)
}
