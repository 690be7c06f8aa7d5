package count_test

import (
	"path/filepath"
	"testing"

	"github.com/ngram-lm/expgram/count"
	"github.com/ngram-lm/expgram/tempreg"
	"github.com/ngram-lm/expgram/vocab"
	"github.com/stretchr/testify/require"
)

func TestAccumulatorFlushAndMerge(t *testing.T) {
	dir := t.TempDir()
	v := vocab.New()
	cat := v.Insert("cat")
	sat := v.Insert("sat")

	root := tempreg.New()
	acc := count.NewAccumulator(v, 2, count.DefaultMemoryWatermark, dir, root)

	require.NoError(t, acc.AddSentence([]vocab.ID{cat, sat}))
	require.NoError(t, acc.AddSentence([]vocab.ID{cat, sat}))
	require.NoError(t, acc.Flush())

	files := acc.FlushedFiles(1)
	require.Len(t, files, 1)

	var got []count.Record
	err := count.MergeSorted(files, func(r count.Record) error {
		got = append(got, r)
		return nil
	})
	require.NoError(t, err)
	require.NotEmpty(t, got)

	var catCount uint64
	for _, r := range got {
		if r.Tokens == "cat" {
			catCount = r.Count
		}
	}
	require.Equal(t, uint64(2), catCount)
}

func TestPostprocessOrder1(t *testing.T) {
	dir := t.TempDir()
	records := []count.Record{
		{Tokens: "<s>", Count: 10},
		{Tokens: "cat", Count: 3},
		{Tokens: "sat", Count: 1},
	}
	require.NoError(t, count.Postprocess(dir, 1, 2, records))

	totalPath := filepath.Join(dir, "total")
	require.FileExists(t, totalPath)
	require.FileExists(t, filepath.Join(dir, "1gms", "vocab.gz"))
	require.FileExists(t, filepath.Join(dir, "1gms", "vocab_cs.gz"))
	require.FileExists(t, filepath.Join(dir, "1gms", "1gm.idx"))
}
