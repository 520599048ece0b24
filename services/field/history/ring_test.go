// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingBasics(t *testing.T) {
	r := NewRing[int](3)

	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 3, r.Cap())
	assert.Nil(t, r.Slice())

	_, ok := r.Newest()
	assert.False(t, ok)

	r.Push(1)
	r.Push(2)

	newest, ok := r.Newest()
	require.True(t, ok)
	assert.Equal(t, 2, newest)
	assert.Equal(t, []int{1, 2}, r.Slice())
	assert.False(t, r.IsFull())
}

func TestRingOverwritesOldest(t *testing.T) {
	r := NewRing[int](3)
	for i := 1; i <= 5; i++ {
		r.Push(i)
	}

	assert.True(t, r.IsFull())
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []int{3, 4, 5}, r.Slice())

	newest, ok := r.Newest()
	require.True(t, ok)
	assert.Equal(t, 5, newest)
}

func TestRingLast(t *testing.T) {
	r := NewRing[int](5)
	for i := 1; i <= 7; i++ {
		r.Push(i)
	}

	assert.Equal(t, []int{6, 7}, r.Last(2))
	assert.Equal(t, []int{3, 4, 5, 6, 7}, r.Last(10), "clamped to available")
	assert.Nil(t, r.Last(0))
}

func TestRingClear(t *testing.T) {
	r := NewRing[string](2)
	r.Push("a")
	r.Push("b")
	r.Clear()

	assert.Equal(t, 0, r.Len())
	assert.False(t, r.IsFull())
	assert.Nil(t, r.Slice())

	r.Push("c")
	assert.Equal(t, []string{"c"}, r.Slice())
}

func TestRingDefaultCapacity(t *testing.T) {
	r := NewRing[int](0)
	assert.Equal(t, 100, r.Cap())
}

func TestAnalyzeEntropy(t *testing.T) {
	mk := func(values ...float64) []Sample {
		out := make([]Sample, len(values))
		for i, v := range values {
			out[i] = Sample{Entropy: v}
		}
		return out
	}

	t.Run("too few samples is stable", func(t *testing.T) {
		trend := AnalyzeEntropy(mk(0.9))
		assert.Equal(t, TrendStable, trend.Direction)
		assert.Zero(t, trend.Delta)
		assert.Equal(t, 1, trend.DataPoints)
	})

	t.Run("rising", func(t *testing.T) {
		// Older half mean 0.2, newer half mean 0.65.
		trend := AnalyzeEntropy(mk(0.2, 0.5, 0.8))
		assert.Equal(t, TrendRising, trend.Direction)
		assert.InDelta(t, 0.45, trend.Delta, 1e-12)
	})

	t.Run("falling", func(t *testing.T) {
		trend := AnalyzeEntropy(mk(0.8, 0.4))
		assert.Equal(t, TrendFalling, trend.Direction)
	})

	t.Run("dead band is stable", func(t *testing.T) {
		trend := AnalyzeEntropy(mk(0.5, 0.505))
		assert.Equal(t, TrendStable, trend.Direction)
	})

	t.Run("window keeps the newest ten", func(t *testing.T) {
		// Older samples fall to 0.1 but the window starts at 0.9.
		values := []float64{0.1, 0.1, 0.9, 0.9, 0.9, 0.9, 0.9, 0.9, 0.9, 0.9, 0.9, 0.2}
		trend := AnalyzeEntropy(mk(values...))
		assert.Equal(t, TrendWindow, trend.DataPoints)
		assert.Equal(t, TrendFalling, trend.Direction)
	})
}

func TestAnalyzeDominant(t *testing.T) {
	mk := func(axes ...int) []Sample {
		out := make([]Sample, len(axes))
		for i, a := range axes {
			out[i] = Sample{DominantAxis: a}
		}
		return out
	}

	t.Run("too few samples is neutral", func(t *testing.T) {
		trend := AnalyzeDominant(mk(3, 3, 3, 3))
		assert.Equal(t, -1, trend.Axis)
		assert.Zero(t, trend.Stability)
		assert.Equal(t, 4, trend.DataPoints)
	})

	t.Run("modal axis wins", func(t *testing.T) {
		trend := AnalyzeDominant(mk(2, 2, 2, 7, 7))
		assert.Equal(t, 2, trend.Axis)
		assert.InDelta(t, 0.6, trend.Stability, 1e-12)
	})

	t.Run("fully stable", func(t *testing.T) {
		trend := AnalyzeDominant(mk(5, 5, 5, 5, 5, 5))
		assert.Equal(t, 5, trend.Axis)
		assert.InDelta(t, 1.0, trend.Stability, 1e-12)
	})

	t.Run("window keeps the newest ten", func(t *testing.T) {
		axes := []int{9, 9, 9, 9, 9, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1}
		trend := AnalyzeDominant(mk(axes...))
		assert.Equal(t, 1, trend.Axis)
		assert.InDelta(t, 1.0, trend.Stability, 1e-12)
	})
}
