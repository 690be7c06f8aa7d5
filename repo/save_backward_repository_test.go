package repo_test

import (
	"testing"

	"github.com/ngram-lm/expgram/backward"
	"github.com/ngram-lm/expgram/repo"
	"github.com/ngram-lm/expgram/vocab"
	"github.com/stretchr/testify/require"
)

// TestSaveBackwardRepositoryRoundTrip builds a tiny backward.Builder result
// directly (bypassing Reorganise, whose own equivalence is covered by
// package backward's tests) and verifies SaveBackwardRepository/LoadEngine
// round-trip the scores and the Backward flag.
func TestSaveBackwardRepositoryRoundTrip(t *testing.T) {
	v := vocab.New()
	dogID := v.Insert("dog")

	b := backward.NewBuilder(1, v.Len())
	logprob := make([]float64, v.Len())
	backoff := make([]float64, v.Len())
	logbound := make([]float64, v.Len())
	logprob[dogID] = -1.5
	b.AddUnigrams(logprob, backoff, logbound)

	// Reversed bigram "dog <s>" (i.e. forward "<s> dog"), scoring dog given
	// BOS context under backward storage order.
	require.NoError(t, b.AddOrder(2, []backward.Record{
		{IDs: []vocab.ID{dogID, vocab.BOS}, LogProb: -0.5, Backoff: 0, LogBound: 0},
	}))

	results := b.Finish()

	dir := t.TempDir()
	require.NoError(t, repo.SaveBackwardRepository(dir, v, results, 0))

	loaded, err := repo.LoadEngine(dir)
	require.NoError(t, err)
	require.True(t, loaded.Index.Backward)

	got := loaded.LogProbBackward([]vocab.ID{vocab.BOS}, dogID)
	require.InDelta(t, -0.5, got.LogProb, 1e-6)
}
