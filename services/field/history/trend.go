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

import "time"

// TrendWindow is the number of most recent samples a trend considers.
const TrendWindow = 10

// Minimum sample counts below which a trend reports neutral.
const (
	minEntropySamples  = 2
	minDominantSamples = 5
)

// Sample is one observation of the field state.
type Sample struct {
	// Timestamp is when the sample was taken.
	Timestamp time.Time `json:"timestamp"`

	// Entropy is the normalized spectral entropy at sample time, in [0, 1].
	Entropy float64 `json:"entropy"`

	// DominantAxis is the index of the strongest component.
	DominantAxis int `json:"dominant_axis"`

	// Norm is the L2 norm at sample time.
	Norm float64 `json:"norm"`
}

// TrendDirection indicates the direction of a trend.
type TrendDirection string

const (
	TrendRising  TrendDirection = "RISING"
	TrendFalling TrendDirection = "FALLING"
	TrendStable  TrendDirection = "STABLE"
)

// EntropyTrend summarizes how entropy moved over the trend window.
type EntropyTrend struct {
	// Direction indicates trend direction. STABLE when too few samples.
	Direction TrendDirection `json:"direction"`

	// Delta is the mean entropy of the newer half of the window minus
	// the mean of the older half.
	Delta float64 `json:"delta"`

	// DataPoints is the number of samples analyzed.
	DataPoints int `json:"data_points"`
}

// DominantTrend summarizes axis dominance over the trend window.
type DominantTrend struct {
	// Axis is the modal dominant axis. -1 when too few samples.
	Axis int `json:"axis"`

	// Stability is the modal count divided by the window size, in [0, 1].
	// 0 when too few samples.
	Stability float64 `json:"stability"`

	// DataPoints is the number of samples analyzed.
	DataPoints int `json:"data_points"`
}

// entropyEpsilon is the dead band below which entropy movement counts
// as stable.
const entropyEpsilon = 0.01

// AnalyzeEntropy computes the entropy trend over the last TrendWindow
// samples.
//
// # Description
//
// Splits the window in half and compares the mean entropy of the newer
// half against the older half. Fewer than two samples yields a STABLE
// trend with zero delta.
//
// # Inputs
//
//   - samples: Chronologically ordered samples, oldest first.
//
// # Outputs
//
//   - EntropyTrend: The computed trend.
func AnalyzeEntropy(samples []Sample) EntropyTrend {
	if len(samples) > TrendWindow {
		samples = samples[len(samples)-TrendWindow:]
	}

	trend := EntropyTrend{Direction: TrendStable, DataPoints: len(samples)}
	if len(samples) < minEntropySamples {
		return trend
	}

	mean := func(part []Sample) float64 {
		var sum float64
		for _, s := range part {
			sum += s.Entropy
		}
		return sum / float64(len(part))
	}

	mid := len(samples) / 2
	trend.Delta = mean(samples[mid:]) - mean(samples[:mid])
	switch {
	case trend.Delta > entropyEpsilon:
		trend.Direction = TrendRising
	case trend.Delta < -entropyEpsilon:
		trend.Direction = TrendFalling
	}
	return trend
}

// AnalyzeDominant computes axis-dominance stability over the last
// TrendWindow samples.
//
// # Description
//
// The modal dominant axis wins; stability is its share of the window.
// Fewer than five samples yields a neutral result (axis -1, stability 0).
//
// # Inputs
//
//   - samples: Chronologically ordered samples, oldest first.
//
// # Outputs
//
//   - DominantTrend: The computed trend.
func AnalyzeDominant(samples []Sample) DominantTrend {
	if len(samples) > TrendWindow {
		samples = samples[len(samples)-TrendWindow:]
	}

	trend := DominantTrend{Axis: -1, DataPoints: len(samples)}
	if len(samples) < minDominantSamples {
		return trend
	}

	counts := make(map[int]int)
	for _, s := range samples {
		counts[s.DominantAxis]++
	}

	best, bestCount := -1, 0
	for axis, n := range counts {
		if n > bestCount || (n == bestCount && axis < best) {
			best = axis
			bestCount = n
		}
	}

	trend.Axis = best
	trend.Stability = float64(bestCount) / float64(len(samples))
	return trend
}
