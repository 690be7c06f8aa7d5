package packedvec_test

import (
	"math/rand"
	"testing"

	"github.com/ngram-lm/expgram/packedvec"
	"github.com/stretchr/testify/require"
)

func TestWidthFor(t *testing.T) {
	require.EqualValues(t, 1, packedvec.WidthFor(0))
	require.EqualValues(t, 1, packedvec.WidthFor(1))
	require.EqualValues(t, 2, packedvec.WidthFor(2))
	require.EqualValues(t, 8, packedvec.WidthFor(255))
	require.EqualValues(t, 9, packedvec.WidthFor(256))
	require.EqualValues(t, 40, packedvec.WidthFor(1<<40-1))
}

func TestSetGetRoundTrip(t *testing.T) {
	for _, width := range []uint{1, 3, 7, 17, 31, 40, 63, 64} {
		width := width
		t.Run("", func(t *testing.T) {
			const n = 500
			max := uint64(1)<<width - 1
			if width == 64 {
				max = ^uint64(0)
			}

			r := rand.New(rand.NewSource(int64(width)))
			want := make([]uint64, n)
			v := packedvec.New(n, width)
			for i := range want {
				val := uint64(r.Int63()) & max
				want[i] = val
				v.Set(i, val)
			}
			for i, val := range want {
				require.Equal(t, val, v.Get(i), "slot %d width %d", i, width)
			}
		})
	}
}

func TestFromBytesRoundTrip(t *testing.T) {
	v := packedvec.New(10, 17)
	for i := 0; i < 10; i++ {
		v.Set(i, uint64(i*12345)%(1<<17))
	}
	reconstructed := packedvec.FromBytes(v.Bytes(), v.Len(), v.Width())
	for i := 0; i < 10; i++ {
		require.Equal(t, v.Get(i), reconstructed.Get(i))
	}
}

func TestSetOutOfRangePanics(t *testing.T) {
	v := packedvec.New(4, 3)
	require.Panics(t, func() { v.Set(0, 8) })
	require.Panics(t, func() { v.Get(4) })
}
