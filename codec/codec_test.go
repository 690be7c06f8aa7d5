package codec_test

import (
	"bytes"
	"testing"

	"github.com/ngram-lm/expgram/codec"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog. "), 200)

	for _, c := range []codec.Codec{codec.NewZstd(), codec.NewSnappy()} {
		t.Run(c.Name(), func(t *testing.T) {
			compressed, err := c.Compress(payload)
			require.NoError(t, err)
			require.NotEmpty(t, compressed)

			decompressed, err := c.Decompress(compressed, len(payload))
			require.NoError(t, err)
			require.Equal(t, payload, decompressed)
		})
	}
}

func TestByName(t *testing.T) {
	c, ok := codec.ByName("zstd-block")
	require.True(t, ok)
	require.Equal(t, "zstd-block", c.Name())

	_, ok = codec.ByName("unknown-block")
	require.False(t, ok)
}

func TestCorruptBlock(t *testing.T) {
	z := codec.NewZstd()
	_, err := z.Decompress([]byte("not a zstd frame"), 0)
	require.ErrorIs(t, err, codec.ErrCorruptBlock)

	s := codec.NewSnappy()
	_, err = s.Decompress([]byte{0xff, 0xff, 0xff}, 0)
	require.ErrorIs(t, err, codec.ErrCorruptBlock)
}
