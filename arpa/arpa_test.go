package arpa_test

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/ngram-lm/expgram/arpa"
	"github.com/ngram-lm/expgram/build"
	"github.com/ngram-lm/expgram/query"
	"github.com/ngram-lm/expgram/vocab"
	"github.com/stretchr/testify/require"
)

// buildForwardEngine mirrors package build's "cat sat" trigram fixture: two
// sentences "<s> cat sat </s>", one shard, order 3.
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

func TestExportImportRoundTrip(t *testing.T) {
	_, forward := buildForwardEngine(t)
	catID, satID := vocab.ID(3), vocab.ID(4)

	var buf bytes.Buffer
	require.NoError(t, arpa.Export(&buf, forward))

	text := buf.String()
	require.True(t, strings.HasPrefix(text, "\\data\\\n"))
	require.Contains(t, text, "\\1-grams:\n")
	require.Contains(t, text, "\\2-grams:\n")
	require.Contains(t, text, "\\3-grams:\n")
	require.True(t, strings.HasSuffix(text, "\\end\\\n"))

	v2, reimported, err := arpa.Import(strings.NewReader(text), 1)
	require.NoError(t, err)
	require.Equal(t, forward.MaxOrder, reimported.MaxOrder)

	catID2, ok := v2.Lookup("cat")
	require.True(t, ok)
	satID2, ok := v2.Lookup("sat")
	require.True(t, ok)

	sentence := []vocab.ID{vocab.BOS, catID, satID, vocab.EOS}
	sentence2 := []vocab.ID{vocab.BOS, catID2, satID2, vocab.EOS}

	want := forward.LogProbSequence(sentence)
	got := reimported.LogProbSequence(sentence2)
	require.InDelta(t, want, got, 1e-4)
}

func TestImportParsesStandardFields(t *testing.T) {
	text := "" +
		"\\data\\\n" +
		"ngram 1=4\n" +
		"ngram 2=2\n" +
		"\n" +
		"\\1-grams:\n" +
		"-1.0\t<s>\t-0.5\n" +
		"-1.0\t</s>\n" +
		"-0.3\tdog\t-0.2\n" +
		"-2.0\t<unk>\n" +
		"\n" +
		"\\2-grams:\n" +
		"-0.1\t<s>\tdog\n" +
		"-0.2\tdog\t</s>\n" +
		"\n" +
		"\\end\\\n"

	v, engine, err := arpa.Import(strings.NewReader(text), 1)
	require.NoError(t, err)
	require.Equal(t, 2, engine.MaxOrder)

	dogID, ok := v.Lookup("dog")
	require.True(t, ok)

	s := engine.Next(query.Root(), vocab.BOS)
	r := engine.LogProb(s, dogID)
	require.InDelta(t, -0.1*math.Log(10), r.LogProb, 1e-9)

	// spec.md §4.13 scenario S2: an explicit "-2.0\t<unk>" unigram line
	// becomes both logprob[<unk>] and the engine's root fallback smooth.
	require.InDelta(t, -2.0*math.Log(10), engine.Smooth, 1e-9)
	unknown := engine.LogProb(query.Root(), vocab.ID(9999))
	require.InDelta(t, -2.0*math.Log(10), unknown.LogProb, 1e-9)
}

func TestImportSynthesisesUnknownSmooth(t *testing.T) {
	// No <unk> line at all: ensureUnknown synthesises smooth = log(1/U)
	// over the vocabulary size U (reserved BOS/EOS/UNK plus "dog": 4),
	// per spec.md §6.2.
	text := "" +
		"\\data\\\n" +
		"ngram 1=3\n" +
		"\n" +
		"\\1-grams:\n" +
		"-1.0\t<s>\n" +
		"-1.0\t</s>\n" +
		"-0.3\tdog\n" +
		"\n" +
		"\\end\\\n"

	_, engine, err := arpa.Import(strings.NewReader(text), 1)
	require.NoError(t, err)
	require.InDelta(t, math.Log(1.0/4.0), engine.Smooth, 1e-9)
}
