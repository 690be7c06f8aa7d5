package backward_test

import (
	"testing"

	"github.com/ngram-lm/expgram/backward"
	"github.com/ngram-lm/expgram/build"
	"github.com/ngram-lm/expgram/query"
	"github.com/ngram-lm/expgram/vocab"
	"github.com/stretchr/testify/require"
)

// buildForwardEngine mirrors package build's "cat sat" trigram fixture:
// two sentences "<s> cat sat </s>", one shard, order 3.
func buildForwardEngine(t *testing.T) (*vocab.Vocab, *query.Engine) {
	t.Helper()
	v := vocab.New()
	catID := v.Insert("cat")
	satID := v.Insert("sat")

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

	results := p.Finish()
	return v, build.EstimateModel(v, results, 3, false)
}

func TestReorganiseProducesBackwardIndex(t *testing.T) {
	_, forward := buildForwardEngine(t)

	backwardEngine, err := backward.Reorganise(forward)
	require.NoError(t, err)

	require.True(t, backwardEngine.Index.Backward)
	require.Equal(t, forward.MaxOrder, backwardEngine.MaxOrder)
	require.Equal(t, forward.BOSID, backwardEngine.BOSID)
	require.Len(t, backwardEngine.Index.Shards, len(forward.Index.Shards))

	for s, shard := range backwardEngine.Index.Shards {
		require.Equal(t, forward.Index.Shards[s].Offsets, shard.Offsets)
	}
}

func TestReorganiseBackwardEquivalence(t *testing.T) {
	v, forward := buildForwardEngine(t)
	catID, satID := vocab.ID(3), vocab.ID(4)

	backwardEngine, err := backward.Reorganise(forward)
	require.NoError(t, err)

	sentence := []vocab.ID{vocab.BOS, catID, satID, vocab.EOS}
	_ = v

	want := forward.LogProbSequence(sentence)
	got := backwardEngine.LogProbSequenceBackward(sentence)
	require.InDelta(t, want, got, 1e-6)
}
