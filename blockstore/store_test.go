package blockstore_test

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/ngram-lm/expgram/blockstore"
	"github.com/ngram-lm/expgram/codec"
	"github.com/stretchr/testify/require"
)

func buildStore(t *testing.T, blocks [][]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "blocks.bin")
	w, err := blockstore.NewWriter(path, codec.NewZstd())
	require.NoError(t, err)
	for _, b := range blocks {
		_, err := w.Append(b)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return path
}

func TestWriteReadRoundTrip(t *testing.T) {
	blocks := [][]byte{
		bytes.Repeat([]byte("a"), 100),
		bytes.Repeat([]byte("bb"), 200),
		[]byte("short"),
	}
	path := buildStore(t, blocks)

	s, err := blockstore.Open(path, codec.NewZstd(), blockstore.OpenOptions{})
	require.NoError(t, err)
	defer s.Close()

	require.Equal(t, len(blocks), s.NumBlocks())
	for i, want := range blocks {
		got, err := s.Read(i, 0)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestReadOutOfRange(t *testing.T) {
	path := buildStore(t, [][]byte{[]byte("x")})
	s, err := blockstore.Open(path, codec.NewZstd(), blockstore.OpenOptions{})
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Read(5, 0)
	require.Error(t, err)
}

func TestDirectCacheHit(t *testing.T) {
	blocks := [][]byte{[]byte("cached-block")}
	path := buildStore(t, blocks)

	s, err := blockstore.Open(path, codec.NewZstd(), blockstore.OpenOptions{DirectCacheSlots: 16})
	require.NoError(t, err)
	defer s.Close()

	first, err := s.Read(0, 0)
	require.NoError(t, err)
	second, err := s.Read(0, 0)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestSharedCacheHit(t *testing.T) {
	blocks := [][]byte{[]byte("shared-cached-block")}
	path := buildStore(t, blocks)

	s, err := blockstore.Open(path, codec.NewZstd(), blockstore.OpenOptions{SharedCacheBlocks: 16})
	require.NoError(t, err)
	defer s.Close()

	first, err := s.Read(0, 0)
	require.NoError(t, err)
	second, err := s.Read(0, 0)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestWorkerCacheHit(t *testing.T) {
	blocks := [][]byte{[]byte("worker-cached-block")}
	path := buildStore(t, blocks)

	s, err := blockstore.Open(path, codec.NewZstd(), blockstore.OpenOptions{WorkerCacheBlocks: 4})
	require.NoError(t, err)
	defer s.Close()

	for i := 0; i < 3; i++ {
		got, err := s.Read(0, 42)
		require.NoError(t, err)
		require.Equal(t, blocks[0], got)
	}
}

func TestMmapOpen(t *testing.T) {
	blocks := [][]byte{bytes.Repeat([]byte("z"), 4096)}
	path := buildStore(t, blocks)

	s, err := blockstore.Open(path, codec.NewZstd(), blockstore.OpenOptions{Mmap: true})
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Read(0, 0)
	require.NoError(t, err)
	require.Equal(t, blocks[0], got)
}
