package build_test

import (
	"testing"

	"github.com/ngram-lm/expgram/build"
	"github.com/ngram-lm/expgram/vocab"
	"github.com/stretchr/testify/require"
)

// buildVocab creates BOS=0, EOS=1, UNK=2, cat=3, sat=4.
func buildVocab(t *testing.T) *vocab.Vocab {
	t.Helper()
	v := vocab.New()
	v.Insert("cat")
	v.Insert("sat")
	return v
}

// This mirrors a corpus containing the single sentence "cat sat" observed
// twice: bracketed as <s> cat sat </s>, giving bigrams (BOS,cat) x2,
// (cat,sat) x2, (sat,EOS) x2, and a trigram (BOS,cat,sat) x2,
// (cat,sat,EOS) x2, single shard so routing is trivial.
func TestPipelineSingleShardTrigram(t *testing.T) {
	v := buildVocab(t)
	catID, satID := vocab.ID(3), vocab.ID(4)

	p := build.NewPipeline(v, 1, 3)
	unigramCounts := make([]uint64, v.Len())
	unigramCounts[vocab.BOS] = 2
	unigramCounts[vocab.EOS] = 2
	unigramCounts[catID] = 2
	unigramCounts[satID] = 2
	p.AddUnigrams(unigramCounts)

	err := p.AddOrder(2, []build.Ngram{
		{IDs: []vocab.ID{vocab.BOS, catID}, Count: 2},
		{IDs: []vocab.ID{catID, satID}, Count: 2},
		{IDs: []vocab.ID{satID, vocab.EOS}, Count: 2},
	})
	require.NoError(t, err)

	err = p.AddOrder(3, []build.Ngram{
		{IDs: []vocab.ID{vocab.BOS, catID, satID}, Count: 2},
		{IDs: []vocab.ID{catID, satID, vocab.EOS}, Count: 2},
	})
	require.NoError(t, err)

	results := p.Finish()
	require.Len(t, results, 1)
	res := results[0]

	// Offsets: [0, 5) unigrams, [5, 8) bigrams, [8, 10) trigrams.
	require.Equal(t, []uint64{0, 5, 8, 10}, res.Shard.Offsets)

	// Raw counts: unigram slots copied verbatim, then bigram/trigram
	// counts in (parent, child)-sorted insertion order.
	require.Equal(t, uint64(2), res.RawCounts[vocab.BOS])
	require.Equal(t, uint64(2), res.RawCounts[catID])
	for _, pos := range []int{5, 6, 7, 8, 9} {
		require.Equal(t, uint64(2), res.RawCounts[pos])
	}

	// Modified counts: "cat" (order-1) is preceded only by BOS in this
	// corpus, so its distinct-left-extension count is 1, not its raw
	// count of 2. BOS keeps its raw unigram count per the spec override.
	require.Equal(t, uint64(2), res.ModifiedCounts[vocab.BOS])
	require.Equal(t, uint64(1), res.ModifiedCounts[catID])
	require.Equal(t, uint64(1), res.ModifiedCounts[satID])

	// Top order (trigrams) has no left-extension of its own: modified
	// count equals raw count for every trigram node.
	require.Equal(t, res.RawCounts[8], res.ModifiedCounts[8])
	require.Equal(t, res.RawCounts[9], res.ModifiedCounts[9])

	// Bigram "cat sat" is extended on the left only by BOS in this
	// corpus, so its modified count is 1.
	catSatPos := uint64(6) // second bigram inserted: (cat,sat) sorts after (BOS,cat)
	require.Equal(t, uint64(1), res.ModifiedCounts[catSatPos])
}

func TestPipelineRejectsOutOfOrderContext(t *testing.T) {
	v := buildVocab(t)
	p := build.NewPipeline(v, 1, 3)
	p.AddUnigrams(make([]uint64, v.Len()))

	// Order 3 record whose bigram context was never registered.
	err := p.AddOrder(3, []build.Ngram{
		{IDs: []vocab.ID{vocab.BOS, vocab.ID(3), vocab.ID(4)}, Count: 1},
	})
	require.Error(t, err)
}
