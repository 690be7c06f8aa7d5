package model_test

import (
	"testing"

	"github.com/ngram-lm/expgram/model"
	"github.com/stretchr/testify/require"
)

func TestLeftExtensionCounterDistinctTypes(t *testing.T) {
	c := model.NewLeftExtensionCounter()
	c.Observe(2, 10)
	c.Observe(2, 10) // duplicate left-extension must not be double-counted
	c.Observe(2, 11)
	c.Observe(1, 5)

	mc := c.Finish(3)
	require.Equal(t, uint64(2), mc.Values[2])
	require.Equal(t, uint64(1), mc.Values[1])
	require.Equal(t, uint64(0), mc.Values[0])
}

func TestLeftExtensionCounterBOSOverride(t *testing.T) {
	c := model.NewLeftExtensionCounter()
	c.Observe(0, 7) // would otherwise count as 1 distinct extension
	c.SetBOSCount(0, 42)

	mc := c.Finish(2)
	require.Equal(t, uint64(42), mc.Values[0])
}
