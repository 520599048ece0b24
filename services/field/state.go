// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package field implements the Field State: a fixed-arity numeric vector
// with the domain operations the memory layer sequences (normalize, blend,
// compose, tunnel, activity-driven delta).
//
// The memory and snapshot layers never interpret these values; they only
// capture, restore, and order calls into this package. All operations here
// are pure value math with no I/O.
package field

import (
	"errors"
	"fmt"
	"math"
)

// Dimension is the fixed arity of every Field State vector.
const Dimension = 16

// Sentinel errors for field operations.
var (
	// ErrBadArity indicates a vector of the wrong length.
	ErrBadArity = errors.New("vector must have exactly 16 components")

	// ErrUnknownAttractor indicates the named attractor does not exist.
	ErrUnknownAttractor = errors.New("unknown attractor")

	// ErrBadMix indicates a blend/tunnel factor outside [0, 1].
	ErrBadMix = errors.New("mix factor must be in [0, 1]")

	// ErrAxisRange indicates an axis index outside [0, Dimension).
	ErrAxisRange = errors.New("axis index out of range")
)

// State is a normalized 16-component field vector.
//
// # Description
//
// The zero value is not usable; construct via NewState or FromVector.
// All mutating operations re-normalize, so a State always has unit L2
// norm unless every component is zero.
//
// # Thread Safety
//
// NOT safe for concurrent use; the owning Manager synchronizes access.
type State struct {
	vec [Dimension]float64
}

// NewState returns the default Field State: a uniform superposition with
// equal amplitude on every axis.
func NewState() *State {
	s := &State{}
	for i := range s.vec {
		s.vec[i] = 1.0
	}
	s.Normalize()
	return s
}

// FromVector constructs a State from raw components.
//
// # Inputs
//
//   - v: Exactly Dimension components. Copied, not retained.
//
// # Outputs
//
//   - *State: Normalized state.
//   - error: ErrBadArity if len(v) != Dimension.
func FromVector(v []float64) (*State, error) {
	if len(v) != Dimension {
		return nil, fmt.Errorf("%w: got %d", ErrBadArity, len(v))
	}
	s := &State{}
	copy(s.vec[:], v)
	s.Normalize()
	return s, nil
}

// Clone returns an independent deep copy.
func (s *State) Clone() *State {
	c := &State{}
	c.vec = s.vec
	return c
}

// Vector returns a copy of the components.
func (s *State) Vector() []float64 {
	out := make([]float64, Dimension)
	copy(out, s.vec[:])
	return out
}

// Axis returns the component at index i.
func (s *State) Axis(i int) (float64, error) {
	if i < 0 || i >= Dimension {
		return 0, fmt.Errorf("%w: %d", ErrAxisRange, i)
	}
	return s.vec[i], nil
}

// SetAxis sets one component and re-normalizes.
func (s *State) SetAxis(i int, value float64) error {
	if i < 0 || i >= Dimension {
		return fmt.Errorf("%w: %d", ErrAxisRange, i)
	}
	s.vec[i] = value
	s.Normalize()
	return nil
}

// Normalize scales the vector to unit L2 norm.
//
// A zero vector is left unchanged; every caller that could produce one
// (SetAxis to zero on an otherwise-zero state) tolerates it.
func (s *State) Normalize() {
	n := s.Norm()
	if n == 0 {
		return
	}
	for i := range s.vec {
		s.vec[i] /= n
	}
}

// Norm returns the L2 norm of the vector.
func (s *State) Norm() float64 {
	var sum float64
	for _, v := range s.vec {
		sum += v * v
	}
	return math.Sqrt(sum)
}

// Blend returns a new State interpolated between s and other.
//
// # Description
//
// Componentwise (1-weight)*s + weight*other, then normalized. Neither
// input is modified.
//
// # Inputs
//
//   - other: The state to blend toward. Must not be nil.
//   - weight: Mix factor in [0, 1]. 0 yields s, 1 yields other.
//
// # Outputs
//
//   - *State: The blended state.
//   - error: ErrBadMix if weight is outside [0, 1].
func (s *State) Blend(other *State, weight float64) (*State, error) {
	if weight < 0 || weight > 1 {
		return nil, fmt.Errorf("%w: %g", ErrBadMix, weight)
	}
	out := &State{}
	for i := range s.vec {
		out.vec[i] = (1-weight)*s.vec[i] + weight*other.vec[i]
	}
	out.Normalize()
	return out, nil
}

// ComposeWith returns the componentwise interference of two states.
//
// Components multiply where both fields agree in sign and magnitude,
// reinforcing shared structure; the result is re-normalized. A fully
// orthogonal pair composes to the zero vector, which is returned as-is.
func (s *State) ComposeWith(other *State) *State {
	out := &State{}
	for i := range s.vec {
		out.vec[i] = s.vec[i] * other.vec[i]
	}
	out.Normalize()
	return out
}

// TunnelToward pulls the state toward a named attractor in place.
//
// # Inputs
//
//   - attractor: Name of a registered attractor pattern.
//   - mix: How far to move, in [0, 1]. 1 lands exactly on the attractor.
//
// # Outputs
//
//   - error: ErrUnknownAttractor or ErrBadMix.
func (s *State) TunnelToward(attractor string, mix float64) error {
	if mix < 0 || mix > 1 {
		return fmt.Errorf("%w: %g", ErrBadMix, mix)
	}
	target, ok := attractors[attractor]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAttractor, attractor)
	}
	for i := range s.vec {
		s.vec[i] = (1-mix)*s.vec[i] + mix*target[i]
	}
	s.Normalize()
	return nil
}

// Activity describes external stimulus used to derive a state delta.
type Activity struct {
	// Intensity scales the whole delta. Typically [0, 1].
	Intensity float64 `json:"intensity"`

	// Valence shifts energy between the lower and upper half of the
	// spectrum: negative favors low axes, positive favors high axes.
	Valence float64 `json:"valence"`

	// Focus lists axes that receive an additional boost. Out-of-range
	// entries are ignored.
	Focus []int `json:"focus,omitempty"`
}

// DeltaFromActivity derives an additive delta vector from an activity
// sample. The receiver is not modified.
func (s *State) DeltaFromActivity(a Activity) []float64 {
	delta := make([]float64, Dimension)
	half := float64(Dimension) / 2
	for i := range delta {
		// Valence tilt: linear ramp from -1 (axis 0) to +1 (axis 15).
		tilt := (float64(i) - half + 0.5) / half
		delta[i] = a.Intensity * (1 + a.Valence*tilt) / Dimension
	}
	for _, i := range a.Focus {
		if i >= 0 && i < Dimension {
			delta[i] += a.Intensity / 4
		}
	}
	return delta
}

// ApplyDelta adds a delta vector in place and re-normalizes.
func (s *State) ApplyDelta(delta []float64) error {
	if len(delta) != Dimension {
		return fmt.Errorf("%w: got %d", ErrBadArity, len(delta))
	}
	for i := range s.vec {
		s.vec[i] += delta[i]
	}
	s.Normalize()
	return nil
}

// Entropy returns the normalized Shannon entropy of the squared
// component distribution, in [0, 1]. 1 means perfectly uniform energy,
// 0 means a single axis holds everything.
func (s *State) Entropy() float64 {
	var total float64
	for _, v := range s.vec {
		total += v * v
	}
	if total == 0 {
		return 0
	}
	var h float64
	for _, v := range s.vec {
		p := v * v / total
		if p > 0 {
			h -= p * math.Log(p)
		}
	}
	return h / math.Log(Dimension)
}

// DominantAxis returns the index of the component with the largest
// absolute amplitude.
func (s *State) DominantAxis() int {
	best := 0
	bestAbs := math.Abs(s.vec[0])
	for i, v := range s.vec {
		if a := math.Abs(v); a > bestAbs {
			best = i
			bestAbs = a
		}
	}
	return best
}

// NearestAttractor returns the registered attractor with the highest
// inner-product similarity to the current state, and that similarity.
func (s *State) NearestAttractor() (string, float64) {
	bestName := ""
	bestSim := math.Inf(-1)
	for name, target := range attractors {
		var dot float64
		for i := range s.vec {
			dot += s.vec[i] * target[i]
		}
		if dot > bestSim {
			bestSim = dot
			bestName = name
		}
	}
	return bestName, bestSim
}

// Attractors returns the names of all registered attractor patterns.
func Attractors() []string {
	names := make([]string, 0, len(attractors))
	for name := range attractors {
		names = append(names, name)
	}
	return names
}

// attractors holds the named unit-norm target patterns for tunneling.
// Built once at init; read-only afterwards.
var attractors = map[string][Dimension]float64{}

func init() {
	register := func(name string, gen func(i int) float64) {
		var v [Dimension]float64
		var norm float64
		for i := range v {
			v[i] = gen(i)
			norm += v[i] * v[i]
		}
		norm = math.Sqrt(norm)
		for i := range v {
			v[i] /= norm
		}
		attractors[name] = v
	}

	register("uniform", func(i int) float64 { return 1 })
	register("alternating", func(i int) float64 {
		if i%2 == 0 {
			return 1
		}
		return -1
	})
	register("low-band", func(i int) float64 {
		if i < Dimension/2 {
			return 1
		}
		return 0.1
	})
	register("high-band", func(i int) float64 {
		if i >= Dimension/2 {
			return 1
		}
		return 0.1
	})
	register("fundamental", func(i int) float64 {
		return math.Sin(math.Pi * float64(i+1) / float64(Dimension+1))
	})
}
