package model_test

import (
	"math"
	"testing"

	"github.com/ngram-lm/expgram/model"
	"github.com/stretchr/testify/require"
)

func TestEstimateProbabilitiesSumsBelowOne(t *testing.T) {
	discounts := model.Discounts{D1: 0.5, D2: 1.0, D3Plus: 1.5}
	children := []Child3(t)
	est := model.EstimateProbabilities(children, discounts, false)

	var sum float64
	for _, lp := range est.LogProb {
		if lp != model.MinLogProb {
			sum += math.Exp(lp)
		}
	}
	require.Less(t, sum, 1.0+1e-9)
}

func Child3(t *testing.T) []model.Child {
	t.Helper()
	return []model.Child{
		{Word: 1, TypeCount: 5, RawCount: 10, SuffixProb: 0.1},
		{Word: 2, TypeCount: 2, RawCount: 3, SuffixProb: 0.05},
		{Word: 3, TypeCount: 1, RawCount: 1, SuffixProb: 0.02},
	}
}

func TestEstimateProbabilitiesRemoveUnk(t *testing.T) {
	discounts := model.Discounts{D1: 0.5, D2: 1.0, D3Plus: 1.5}
	children := []model.Child{
		{Word: 1, TypeCount: 5, RawCount: 10, SuffixProb: 0.1},
		{Word: 2, TypeCount: 9, RawCount: 9, IsUnk: true, SuffixProb: 0.9},
	}
	est := model.EstimateProbabilities(children, discounts, true)
	require.Equal(t, model.MinLogProb, est.LogProb[1])
	require.NotEqual(t, model.MinLogProb, est.LogProb[0])
}

func TestEstimateProbabilitiesEmpty(t *testing.T) {
	est := model.EstimateProbabilities(nil, model.Discounts{}, false)
	require.Empty(t, est.LogProb)
	require.Equal(t, 0.0, est.Backoff)
}

func TestEstimateUnigramsExcludesBOS(t *testing.T) {
	counts := []uint64{0, 100, 0, 50, 20}
	logp := model.EstimateUnigrams(counts, 1, 0, false, model.Discounts{D1: 0.5})
	require.Equal(t, model.MinLogProb, logp[1])

	var sum float64
	for i, lp := range logp {
		if i == 1 {
			continue
		}
		if lp != model.MinLogProb {
			sum += math.Exp(lp)
		}
	}
	require.InDelta(t, 1.0, sum, 1e-6)
}

func TestEstimateUnigramsAllZero(t *testing.T) {
	counts := []uint64{0, 0}
	logp := model.EstimateUnigrams(counts, 1, 0, false, model.Discounts{D1: 0.5})
	for _, lp := range logp {
		require.Equal(t, model.MinLogProb, lp)
	}
}
