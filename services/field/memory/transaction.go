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
	"log/slog"
	"time"

	"github.com/AleutianAI/fieldvault/services/field"
)

// TxOptions configures one transaction.
type TxOptions struct {
	// Timeout overrides the manager's commit deadline. Zero keeps the
	// manager default.
	Timeout time.Duration
}

type txStatus int

const (
	txOpen txStatus = iota
	txCommitted
	txRolledBack
)

// Transaction buffers a sequence of mutations for all-or-nothing apply.
//
// # Description
//
// Operations queue without touching the field state. Commit applies
// them in queue order against the live manager; any failure restores
// the pre-image captured at begin and surfaces the original error.
// Atomicity comes from whole-state restore rather than per-operation
// undo, since several operation kinds are not cleanly invertible.
// Committed and rolled-back are terminal: the two flags are mutually
// exclusive and monotonic.
//
// # Thread Safety
//
// Safe for concurrent use; all methods synchronize on the owning
// manager's mutex.
type Transaction struct {
	id        string
	mgr       *Manager
	timeout   time.Duration
	createdAt time.Time

	ops      []operation
	preImage Snapshot
	begun    bool
	status   txStatus
}

// ID returns the transaction's unique identifier.
func (t *Transaction) ID() string {
	return t.id
}

// Begin captures the pre-image. Called automatically by
// Manager.BeginTransaction; calling it again fails.
func (t *Transaction) Begin() error {
	t.mgr.mu.Lock()
	defer t.mgr.mu.Unlock()
	return t.beginLocked()
}

func (t *Transaction) beginLocked() error {
	if t.begun {
		return ErrAlreadyStarted
	}
	t.preImage = t.mgr.snapshotLocked()
	t.begun = true
	return nil
}

// SetAxis queues a set-axis operation.
func (t *Transaction) SetAxis(axis int, value float64) error {
	return t.queue(setAxisOp{axis: axis, value: value})
}

// Blend queues a blend toward another state.
func (t *Transaction) Blend(other *field.State, weight float64) error {
	return t.queue(blendOp{other: other, weight: weight})
}

// ApplyActivity queues an activity-driven delta.
func (t *Transaction) ApplyActivity(activity field.Activity) error {
	return t.queue(activityOp{activity: activity})
}

// Compose queues a composition with another state.
func (t *Transaction) Compose(other *field.State) error {
	return t.queue(composeOp{other: other})
}

// Tunnel queues a pull toward a named attractor.
func (t *Transaction) Tunnel(attractor string, mix float64) error {
	return t.queue(tunnelOp{attractor: attractor, mix: mix})
}

// QueuedOps returns the number of buffered operations.
func (t *Transaction) QueuedOps() int {
	t.mgr.mu.Lock()
	defer t.mgr.mu.Unlock()
	return len(t.ops)
}

func (t *Transaction) queue(op operation) error {
	t.mgr.mu.Lock()
	defer t.mgr.mu.Unlock()
	if t.status != txOpen {
		return ErrTransactionClosed
	}
	t.ops = append(t.ops, op)
	return nil
}

// Commit applies every queued operation in order.
//
// # Description
//
// The commit deadline is checked once, here: if more than the
// configured timeout elapsed since the transaction was created, the
// transaction rolls back and ErrTransactionTimeout is returned. If any
// operation fails, the pre-image is restored and the original error
// surfaces wrapped. On success the transaction is terminal-committed,
// transaction statistics are recorded, and subscribers are notified
// once with an EventCommit.
//
// # Outputs
//
//   - error: ErrTransactionClosed, ErrTransactionTimeout, or the first
//     operation failure.
func (t *Transaction) Commit() error {
	m := t.mgr
	m.mu.Lock()

	if t.status != txOpen {
		m.mu.Unlock()
		return ErrTransactionClosed
	}

	if elapsed := time.Since(t.createdAt); elapsed > t.timeout {
		t.rollbackLocked()
		m.mu.Unlock()
		return fmt.Errorf("%w: %s elapsed, limit %s", ErrTransactionTimeout, elapsed.Round(time.Millisecond), t.timeout)
	}

	for i, op := range t.ops {
		if err := m.applyOpLocked(op); err != nil {
			t.rollbackLocked()
			m.mu.Unlock()
			return fmt.Errorf("operation %d (%s): %w", i, op.kind(), err)
		}
	}

	t.status = txCommitted
	m.activeTx = nil
	m.recordTransactionLocked("commit")
	m.journalLocked("tx:commit", t.id)
	event, callbacks := m.notificationsLocked(EventCommit, nil)
	m.logger.Debug("transaction committed",
		slog.String("tx_id", t.id),
		slog.Int("operations", len(t.ops)),
	)
	m.mu.Unlock()

	for _, fn := range callbacks {
		fn(event)
	}
	return nil
}

// Rollback restores the pre-image.
//
// # Description
//
// Idempotent: a second rollback is a no-op. Rolling back a committed
// transaction fails with ErrInvalidState.
func (t *Transaction) Rollback() error {
	t.mgr.mu.Lock()
	defer t.mgr.mu.Unlock()

	switch t.status {
	case txRolledBack:
		return nil
	case txCommitted:
		return fmt.Errorf("%w: transaction already committed", ErrInvalidState)
	}

	t.rollbackLocked()
	return nil
}

// rollbackLocked restores the pre-image state and terminates the
// transaction. Metrics and history are intentionally left alone; they
// are an audit trail of work performed, not part of the state.
func (t *Transaction) rollbackLocked() {
	m := t.mgr
	if err := m.restoreLocked(t.preImage); err != nil {
		// The pre-image came from a valid state; this path requires
		// memory corruption. Log and keep the current state.
		m.logger.Error("pre-image restore failed",
			slog.String("tx_id", t.id),
			slog.String("error", err.Error()),
		)
	}

	t.status = txRolledBack
	if m.activeTx == t {
		m.activeTx = nil
	}
	m.recordTransactionLocked("rollback")
	m.journalLocked("tx:rollback", t.id)
	m.logger.Debug("transaction rolled back", slog.String("tx_id", t.id))
}
