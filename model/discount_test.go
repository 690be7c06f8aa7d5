package model_test

import (
	"testing"

	"github.com/ngram-lm/expgram/model"
	"github.com/stretchr/testify/require"
)

func TestEstimateDiscountsTypical(t *testing.T) {
	d := model.EstimateDiscounts(model.CountsOfCounts{C1: 100, C2: 50, C3: 20, C4: 10})
	require.Greater(t, d.Y, 0.0)
	require.Greater(t, d.D1, 0.0)
	require.Greater(t, d.D2, 0.0)
	require.Greater(t, d.D3Plus, 0.0)
}

func TestEstimateDiscountsFallback(t *testing.T) {
	// All-zero counts-of-counts must fall back to the documented defaults.
	d := model.EstimateDiscounts(model.CountsOfCounts{})
	require.Equal(t, 0.5, d.D1)
	require.Equal(t, 1.0, d.D2)
	require.Equal(t, 1.5, d.D3Plus)
}

func TestForCount(t *testing.T) {
	d := model.Discounts{D1: 0.1, D2: 0.2, D3Plus: 0.3}
	require.Equal(t, 0.0, d.ForCount(0))
	require.Equal(t, 0.1, d.ForCount(1))
	require.Equal(t, 0.2, d.ForCount(2))
	require.Equal(t, 0.3, d.ForCount(3))
	require.Equal(t, 0.3, d.ForCount(100))
}
