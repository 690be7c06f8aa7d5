package vocab_test

import (
	"path/filepath"
	"testing"

	"github.com/ngram-lm/expgram/vocab"
	"github.com/stretchr/testify/require"
)

func TestReservedIDs(t *testing.T) {
	v := vocab.New()
	require.Equal(t, 3, v.Len())

	id, ok := v.Lookup("<s>")
	require.True(t, ok)
	require.Equal(t, vocab.BOS, id)

	id, ok = v.Lookup("</s>")
	require.True(t, ok)
	require.Equal(t, vocab.EOS, id)

	id, ok = v.Lookup("<unk>")
	require.True(t, ok)
	require.Equal(t, vocab.UNK, id)
}

func TestInsertAndLookup(t *testing.T) {
	v := vocab.New()
	id1 := v.Insert("the")
	id2 := v.Insert("dog")
	id1again := v.Insert("the")

	require.Equal(t, id1, id1again)
	require.NotEqual(t, id1, id2)
	require.Equal(t, "the", v.Word(id1))
	require.Equal(t, "dog", v.Word(id2))

	_, ok := v.Lookup("cat")
	require.False(t, ok)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	v := vocab.New()
	v.Insert("the")
	v.Insert("quick")
	v.Insert("fox")

	path := filepath.Join(t.TempDir(), "vocab.bin")
	require.NoError(t, v.Save(path))

	loaded, err := vocab.Load(path)
	require.NoError(t, err)
	require.Equal(t, v.Len(), loaded.Len())
	for id := vocab.ID(0); int(id) < v.Len(); id++ {
		require.Equal(t, v.Word(id), loaded.Word(id))
	}
}

func TestGoogleLayoutRoundTrip(t *testing.T) {
	v := vocab.New()
	v.Insert("the")
	v.Insert("fox")

	counts := []uint64{0, 0, 0, 100, 42}
	path := filepath.Join(t.TempDir(), "vocab.gz")
	require.NoError(t, vocab.SaveGoogle(path, v, counts))

	loaded, loadedCounts, err := vocab.LoadGoogle(path)
	require.NoError(t, err)

	theID, ok := loaded.Lookup("the")
	require.True(t, ok)
	require.EqualValues(t, 100, loadedCounts[theID])

	foxID, ok := loaded.Lookup("fox")
	require.True(t, ok)
	require.EqualValues(t, 42, loadedCounts[foxID])
}
