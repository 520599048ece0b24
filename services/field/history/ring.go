// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package history keeps a bounded record of field-state observations and
// derives short-window trends from them.
package history

// Ring is a fixed-size circular buffer.
//
// # Description
//
// Provides O(1) push and bounded memory usage. When full, the oldest item
// is overwritten.
//
// # Thread Safety
//
// NOT safe for concurrent use; caller must synchronize.
type Ring[T any] struct {
	data  []T
	head  int  // Next write position
	tail  int  // First element position
	count int  // Current number of elements
	cap   int  // Maximum capacity
	full  bool // Whether buffer has wrapped
}

// NewRing creates a ring buffer with the given capacity.
//
// # Inputs
//
//   - capacity: Maximum number of elements. Non-positive falls back to 100.
//
// # Outputs
//
//   - *Ring[T]: Ready-to-use buffer.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 100 // Default
	}
	return &Ring[T]{
		data: make([]T, capacity),
		cap:  capacity,
	}
}

// Push adds an item, overwriting the oldest when full.
func (r *Ring[T]) Push(item T) {
	r.data[r.head] = item
	r.head = (r.head + 1) % r.cap

	if r.full {
		r.tail = (r.tail + 1) % r.cap
	} else {
		r.count++
		if r.count == r.cap {
			r.full = true
		}
	}
}

// Newest returns the most recent item without removing it.
//
// # Outputs
//
//   - T: The newest item.
//   - bool: False if the buffer is empty.
func (r *Ring[T]) Newest() (T, bool) {
	var zero T
	if r.count == 0 {
		return zero, false
	}

	// head points to next write, so newest is at head-1
	idx := r.head - 1
	if idx < 0 {
		idx = r.cap - 1
	}
	return r.data[idx], true
}

// Slice returns all items from oldest to newest.
//
// # Description
//
// The returned slice is a copy; modifications don't affect the buffer.
//
// # Outputs
//
//   - []T: All items in chronological order, nil when empty.
func (r *Ring[T]) Slice() []T {
	if r.count == 0 {
		return nil
	}

	result := make([]T, r.count)

	if r.full {
		// Buffer has wrapped: tail to end, then start to head.
		n := copy(result, r.data[r.tail:])
		copy(result[n:], r.data[:r.head])
	} else {
		copy(result, r.data[r.tail:r.tail+r.count])
	}

	return result
}

// Last returns up to n items in chronological order, ending at the newest.
//
// # Inputs
//
//   - n: Number of items to return.
//
// # Outputs
//
//   - []T: Up to n items, oldest first.
func (r *Ring[T]) Last(n int) []T {
	if n <= 0 || r.count == 0 {
		return nil
	}

	if n > r.count {
		n = r.count
	}

	result := make([]T, n)
	for i := 0; i < n; i++ {
		idx := r.head - n + i
		if idx < 0 {
			idx += r.cap
		}
		result[i] = r.data[idx]
	}

	return result
}

// Len returns the current number of elements.
func (r *Ring[T]) Len() int {
	return r.count
}

// Cap returns the maximum capacity.
func (r *Ring[T]) Cap() int {
	return r.cap
}

// IsFull returns true if the buffer is at capacity.
func (r *Ring[T]) IsFull() bool {
	return r.full
}

// Clear removes all elements from the buffer.
func (r *Ring[T]) Clear() {
	var zero T
	for i := range r.data {
		r.data[i] = zero
	}
	r.head = 0
	r.tail = 0
	r.count = 0
	r.full = false
}
