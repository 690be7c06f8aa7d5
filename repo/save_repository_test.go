package repo_test

import (
	"testing"

	"github.com/ngram-lm/expgram/build"
	"github.com/ngram-lm/expgram/query"
	"github.com/ngram-lm/expgram/repo"
	"github.com/ngram-lm/expgram/vocab"
	"github.com/stretchr/testify/require"
)

// buildSmallModel mirrors package build's "cat sat" trigram fixture: two
// sentences "<s> cat sat </s>" repeated, one shard, order 3.
func buildSmallModel(t *testing.T) (*vocab.Vocab, []build.Result, *query.Engine) {
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
	engine := build.EstimateModel(v, results, 3, false)
	return v, results, engine
}

// TestSaveRepositoryRoundTrip verifies that a model built by package build
// can be persisted with SaveRepository and reloaded through LoadEngine/
// LoadCounts with matching trie structure, count arrays, and scores.
func TestSaveRepositoryRoundTrip(t *testing.T) {
	v, results, engine := buildSmallModel(t)
	catID, satID := vocab.ID(3), vocab.ID(4)

	dir := t.TempDir()
	require.NoError(t, repo.SaveRepository(dir, v, results, engine, engine.Smooth, false))

	loaded, err := repo.LoadEngine(dir)
	require.NoError(t, err)
	require.Equal(t, engine.MaxOrder, loaded.MaxOrder)
	require.Equal(t, engine.BOSID, loaded.BOSID)

	afterBOS := loaded.Next(query.Root(), vocab.BOS)
	require.False(t, afterBOS.IsRoot())
	want := engine.LogProb(engine.Next(query.Root(), vocab.BOS), catID)
	got := loaded.LogProb(afterBOS, catID)
	require.InDelta(t, want.LogProb, got.LogProb, 1e-6)

	afterSat := loaded.Next(afterBOS, satID)
	require.False(t, afterSat.IsRoot())

	raw, modified, err := repo.LoadCounts(dir, len(results))
	require.NoError(t, err)
	require.Equal(t, results[0].RawCounts, raw[0])
	require.Equal(t, results[0].ModifiedCounts, modified[0])

	unseen := loaded.LogProb(query.Root(), vocab.ID(999))
	require.Equal(t, engine.Smooth, unseen.LogProb)
}
