package google_test

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/ngram-lm/expgram/count"
	"github.com/ngram-lm/expgram/google"
	"github.com/ngram-lm/expgram/vocab"
	"github.com/stretchr/testify/require"
)

func TestIngestorVocabAndMerge(t *testing.T) {
	dir := t.TempDir()
	v := vocab.New()
	v.Insert("cat")
	v.Insert("sat")
	vocabDir := filepath.Join(dir, "1gms")
	require.NoError(t, os.MkdirAll(vocabDir, 0o755))
	require.NoError(t, vocab.SaveGoogle(filepath.Join(vocabDir, "vocab.gz"), v, []uint64{0, 0, 0, 5, 2}))

	g := google.NewIngestor(dir)
	loaded, counts, err := g.Vocab()
	require.NoError(t, err)
	require.Equal(t, v.Len(), loaded.Len())
	require.Equal(t, []uint64{0, 0, 0, 5, 2}, counts)

	order2Dir := filepath.Join(dir, "2gms")
	require.NoError(t, os.MkdirAll(order2Dir, 0o755))
	shardPath := filepath.Join(order2Dir, "2gm-0000.gz")
	require.NoError(t, writeGz(shardPath, []count.Record{{Tokens: "<S> cat", Count: 1}}))
	idxPath := filepath.Join(order2Dir, "2gm.idx")
	require.NoError(t, os.WriteFile(idxPath, []byte("2gm-0000.gz\t<S> cat\n"), 0o644))

	var got []count.Record
	require.NoError(t, g.MergeOrder(2, func(r count.Record) error {
		got = append(got, r)
		return nil
	}))
	require.Len(t, got, 1)
	require.Equal(t, "<s> cat", got[0].Tokens)
}

func writeGz(path string, records []count.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	gz := gzip.NewWriter(f)
	w := bufio.NewWriter(gz)
	for _, r := range records {
		if _, err := fmt.Fprintf(w, "%s\t%d\n", r.Tokens, r.Count); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return gz.Close()
}
