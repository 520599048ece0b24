// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package memory

import (
	"fmt"
	"time"

	"github.com/AleutianAI/fieldvault/services/field"
	"github.com/AleutianAI/fieldvault/services/field/history"
)

// Export is the manager's process-level persistence record: the state,
// the recent history, and the metrics, as one JSON-serializable value.
// This is the boundary callers hand to the snapshot store; it is
// distinct from the store's own byte format.
type Export struct {
	// State is the field state components.
	State []float64 `json:"state"`

	// History is the recent observation history, oldest first.
	History []history.Sample `json:"history,omitempty"`

	// Metrics are the counters at export time.
	Metrics Metrics `json:"metrics"`

	// ExportedAt is the export time, Unix milliseconds.
	ExportedAt int64 `json:"exported_at"`
}

// Export captures the manager's full exportable state.
func (m *Manager) Export() *Export {
	m.mu.Lock()
	defer m.mu.Unlock()

	return &Export{
		State:      m.state.Vector(),
		History:    m.ring.Slice(),
		Metrics:    m.metrics.clone(),
		ExportedAt: time.Now().UnixMilli(),
	}
}

// Import restores a previously exported record.
//
// # Description
//
// The field state and history are replaced; metrics are merged
// additively (counts summed, peak maximized, mean re-weighted by total
// operations), so counters stay monotonic across process restarts.
// Fails while a transaction is open.
//
// # Inputs
//
//   - e: The record to restore. Required.
//
// # Outputs
//
//   - error: ErrTransactionActive, ErrBadSnapshot, or a nil record.
func (m *Manager) Import(e *Export) error {
	if e == nil {
		return fmt.Errorf("%w: nil export", ErrBadSnapshot)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.activeTx != nil {
		return ErrTransactionActive
	}

	state, err := field.FromVector(e.State)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSnapshot, err)
	}

	m.state = state
	m.ring.Clear()
	for _, sample := range e.History {
		m.ring.Push(sample)
	}
	m.metrics = mergeMetrics(m.metrics, e.Metrics)
	m.journalLocked("import", e.ExportedAt)
	return nil
}

// mergeMetrics combines two counter sets additively.
func mergeMetrics(a, b Metrics) Metrics {
	out := a.clone()
	out.TotalOperations += b.TotalOperations
	for k, v := range b.OperationsByType {
		out.OperationsByType[k] += v
	}
	out.TransactionCount += b.TransactionCount
	out.RollbackCount += b.RollbackCount

	if b.PeakDurationMs > out.PeakDurationMs {
		out.PeakDurationMs = b.PeakDurationMs
	}
	if out.TotalOperations > 0 {
		out.MeanDurationMs = (a.MeanDurationMs*float64(a.TotalOperations) +
			b.MeanDurationMs*float64(b.TotalOperations)) / float64(out.TotalOperations)
	}
	return out
}
