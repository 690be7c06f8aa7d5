package bitvector_test

import (
	"math/rand"
	"testing"

	"github.com/ngram-lm/expgram/bitvector"
	"github.com/stretchr/testify/require"
)

func TestRankSelectRoundTrip(t *testing.T) {
	const n = 5000
	r := rand.New(rand.NewSource(42))

	bits := make([]bool, n)
	v := bitvector.New(n)
	for i := range bits {
		b := r.Intn(4) == 0
		bits[i] = b
		v.Set(i, b)
	}
	v.Build()

	// Rank1(i) must equal the number of set bits in bits[0:i].
	running := 0
	for i := 0; i <= n; i++ {
		require.Equal(t, running, v.Rank1(i), "rank mismatch at %d", i)
		if i < n && bits[i] {
			running++
		}
	}

	// Select(k, true) must land on the k-th set bit.
	k := 0
	for i, b := range bits {
		if b {
			k++
			require.Equal(t, uint64(i), v.Select(k, true))
		}
	}
	require.Equal(t, bitvector.NotFound, v.Select(k+1, true))
}

func TestSelectZero(t *testing.T) {
	v := bitvector.New(8)
	v.Set(1, true)
	v.Set(5, true)
	v.Build()

	require.Equal(t, uint64(0), v.Select(1, false))
	require.Equal(t, uint64(2), v.Select(2, false))
	require.Equal(t, uint64(1), v.Select(1, true))
	require.Equal(t, uint64(5), v.Select(2, true))
	require.Equal(t, bitvector.NotFound, v.Select(100, true))
}

func TestGetSet(t *testing.T) {
	v := bitvector.New(4)
	require.False(t, v.Get(0))
	v.Set(0, true)
	require.True(t, v.Get(0))
	v.Set(0, false)
	require.False(t, v.Get(0))
}
