// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package memory implements the transactional field-state manager: it
// owns one live field.State, sequences direct and transactional
// mutations, tracks metrics and a bounded observation history, and
// provides the snapshot/restore primitives that back transaction
// atomicity.
package memory

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/fieldvault/services/field"
	"github.com/AleutianAI/fieldvault/services/field/history"
)

// Defaults.
const (
	DefaultMaxHistory         = 100
	DefaultTransactionTimeout = 5000 * time.Millisecond
)

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// Config configures a Manager.
type Config struct {
	// MaxHistory bounds the observation history ring. Default: 100.
	MaxHistory int

	// TransactionTimeout is the commit deadline measured from
	// transaction creation. Checked once, at commit. Default: 5000 ms.
	TransactionTimeout time.Duration

	// Journal, when non-nil, receives one entry per successful mutation
	// and per transaction outcome. Journal failures are logged, never
	// fatal.
	Journal *Journal

	// Logger for manager operations.
	Logger *slog.Logger
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MaxHistory:         DefaultMaxHistory,
		TransactionTimeout: DefaultTransactionTimeout,
		Logger:             slog.Default(),
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.MaxHistory < 1 {
		return fmt.Errorf("max_history must be positive, got %d", c.MaxHistory)
	}
	if c.TransactionTimeout <= 0 {
		return errors.New("transaction_timeout must be positive")
	}
	return nil
}

// -----------------------------------------------------------------------------
// Metrics and snapshots
// -----------------------------------------------------------------------------

// Metrics are the manager's monotonic counters.
//
// # Description
//
// Counters only ever increase; a transaction rollback restores the
// field state but leaves metrics and history reflecting the work
// actually performed (audit-trail semantics).
type Metrics struct {
	// TotalOperations counts every successfully applied mutation.
	TotalOperations int64 `json:"total_operations"`

	// OperationsByType breaks TotalOperations down per kind.
	OperationsByType map[OpKind]int64 `json:"operations_by_type"`

	// MeanDurationMs is the running mean mutation duration.
	MeanDurationMs float64 `json:"mean_duration_ms"`

	// PeakDurationMs is the slowest mutation observed.
	PeakDurationMs float64 `json:"peak_duration_ms"`

	// TransactionCount counts committed transactions.
	TransactionCount int64 `json:"transaction_count"`

	// RollbackCount counts rolled-back transactions.
	RollbackCount int64 `json:"rollback_count"`
}

func newMetrics() Metrics {
	return Metrics{OperationsByType: make(map[OpKind]int64)}
}

func (m Metrics) clone() Metrics {
	out := m
	out.OperationsByType = make(map[OpKind]int64, len(m.OperationsByType))
	for k, v := range m.OperationsByType {
		out.OperationsByType[k] = v
	}
	return out
}

// Snapshot is an independent copy of the manager's state at one point
// in time. It backs transaction rollback and process-level export.
type Snapshot struct {
	// Vector is a copy of the field state components.
	Vector []float64 `json:"vector"`

	// Metrics is a copy of the counters at capture time.
	Metrics Metrics `json:"metrics"`

	// CapturedAt is the capture time, Unix milliseconds.
	CapturedAt int64 `json:"captured_at"`
}

// -----------------------------------------------------------------------------
// Subscriptions
// -----------------------------------------------------------------------------

// EventCommit is the event kind delivered after a transaction commit.
const EventCommit OpKind = "commit"

// Event describes one completed mutation, delivered to subscribers.
type Event struct {
	// Kind is the mutation kind, or EventCommit for a whole transaction.
	Kind OpKind `json:"kind"`

	// Vector is the field state after the mutation.
	Vector []float64 `json:"vector"`

	// Timestamp is when the mutation completed, Unix milliseconds.
	Timestamp int64 `json:"timestamp"`
}

// Callback receives change events. Called synchronously after each
// direct mutation and after each commit; keep it fast and do not call
// back into the Manager from inside it.
type Callback func(Event)

type subscription struct {
	id   string
	axes map[int]struct{} // empty = all axes
	fn   Callback
}

// matches reports whether this subscription cares about an event
// produced by op.
func (s *subscription) matches(op operation) bool {
	if len(s.axes) == 0 {
		return true
	}
	// Only axis-scoped operations can be filtered; everything else
	// touches the whole vector.
	if sa, ok := op.(setAxisOp); ok {
		_, ok := s.axes[sa.axis]
		return ok
	}
	return true
}

// -----------------------------------------------------------------------------
// Manager
// -----------------------------------------------------------------------------

// Manager owns one live field state under transactional control.
//
// # Thread Safety
//
// Safe for concurrent use. One mutex covers the state, metrics,
// history, subscriptions, and the active transaction, so an open
// transaction excludes every direct mutation until it commits or
// rolls back.
type Manager struct {
	config Config
	logger *slog.Logger
	obs    *instruments

	mu       sync.Mutex
	state    *field.State
	metrics  Metrics
	ring     *history.Ring[history.Sample]
	subs     map[string]*subscription
	activeTx *Transaction
}

// NewManager creates a manager with the default field state.
//
// # Inputs
//
//   - config: Configuration. If nil, uses DefaultConfig().
//
// # Outputs
//
//   - *Manager: The ready manager.
//   - error: Non-nil if configuration is invalid.
func NewManager(config *Config) (*Manager, error) {
	if config == nil {
		cfg := DefaultConfig()
		config = &cfg
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	logger := config.Logger.With(slog.String("component", "memory_manager"))

	obs, err := newInstruments()
	if err != nil {
		logger.Warn("metric instruments unavailable", slog.String("error", err.Error()))
	}

	return &Manager{
		config:  *config,
		logger:  logger,
		obs:     obs,
		state:   field.NewState(),
		metrics: newMetrics(),
		ring:    history.NewRing[history.Sample](config.MaxHistory),
		subs:    make(map[string]*subscription),
	}, nil
}

// State returns an independent copy of the current field state.
func (m *Manager) State() *field.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone()
}

// Snapshot captures a deep copy of the field state and metrics.
// Cheap, synchronous, no I/O.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() Snapshot {
	return Snapshot{
		Vector:     m.state.Vector(),
		Metrics:    m.metrics.clone(),
		CapturedAt: time.Now().UnixMilli(),
	}
}

// Restore replaces the live field state from a snapshot.
//
// # Description
//
// Only the state is restored; metrics and history keep reflecting the
// work done before the restore. Fails while a transaction is open.
//
// # Inputs
//
//   - snap: A snapshot captured from a Manager.
//
// # Outputs
//
//   - error: ErrTransactionActive or ErrBadSnapshot.
func (m *Manager) Restore(snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.activeTx != nil {
		return ErrTransactionActive
	}
	return m.restoreLocked(snap)
}

func (m *Manager) restoreLocked(snap Snapshot) error {
	state, err := field.FromVector(snap.Vector)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSnapshot, err)
	}
	m.state = state
	return nil
}

// -----------------------------------------------------------------------------
// Direct mutations
// -----------------------------------------------------------------------------

// SetAxis sets one component of the field state.
func (m *Manager) SetAxis(axis int, value float64) error {
	return m.applyDirect(setAxisOp{axis: axis, value: value})
}

// Blend interpolates the field state toward another state.
func (m *Manager) Blend(other *field.State, weight float64) error {
	return m.applyDirect(blendOp{other: other, weight: weight})
}

// UpdateFromActivity applies an activity-derived delta and records one
// history sample.
func (m *Manager) UpdateFromActivity(activity field.Activity) error {
	return m.applyDirect(activityOp{activity: activity})
}

// Compose replaces the field state with its composition with another.
func (m *Manager) Compose(other *field.State) error {
	return m.applyDirect(composeOp{other: other})
}

// TunnelTo pulls the field state toward a named attractor.
func (m *Manager) TunnelTo(attractor string, mix float64) error {
	return m.applyDirect(tunnelOp{attractor: attractor, mix: mix})
}

// applyDirect runs one operation outside any transaction.
func (m *Manager) applyDirect(op operation) error {
	m.mu.Lock()
	if m.activeTx != nil {
		m.mu.Unlock()
		return ErrTransactionActive
	}

	err := m.applyOpLocked(op)
	var event Event
	var callbacks []Callback
	if err == nil {
		m.journalLocked("op:"+string(op.kind()), m.state.Vector())
		event, callbacks = m.notificationsLocked(op.kind(), op)
	}
	m.mu.Unlock()

	for _, fn := range callbacks {
		fn(event)
	}
	return err
}

// applyOpLocked performs the domain mutation and updates metrics.
// Failed operations leave the metrics untouched.
func (m *Manager) applyOpLocked(op operation) error {
	start := time.Now()
	if err := op.apply(m); err != nil {
		return err
	}
	m.recordOpLocked(op.kind(), time.Since(start))
	return nil
}

func (m *Manager) recordOpLocked(kind OpKind, d time.Duration) {
	ms := float64(d.Microseconds()) / 1000.0

	m.metrics.TotalOperations++
	m.metrics.OperationsByType[kind]++
	m.metrics.MeanDurationMs += (ms - m.metrics.MeanDurationMs) / float64(m.metrics.TotalOperations)
	if ms > m.metrics.PeakDurationMs {
		m.metrics.PeakDurationMs = ms
	}

	m.obs.recordOp(kind, ms)
}

// recordHistorySampleLocked appends one observation to the bounded
// history ring. Called by the activity operation.
func (m *Manager) recordHistorySampleLocked() {
	m.ring.Push(history.Sample{
		Timestamp:    time.Now(),
		Entropy:      m.state.Entropy(),
		DominantAxis: m.state.DominantAxis(),
		Norm:         m.state.Norm(),
	})
}

// notificationsLocked builds the event and collects the callbacks to
// invoke once the lock is released.
func (m *Manager) notificationsLocked(kind OpKind, op operation) (Event, []Callback) {
	event := Event{
		Kind:      kind,
		Vector:    m.state.Vector(),
		Timestamp: time.Now().UnixMilli(),
	}
	var callbacks []Callback
	for _, sub := range m.subs {
		if op == nil || sub.matches(op) {
			callbacks = append(callbacks, sub.fn)
		}
	}
	return event, callbacks
}

// -----------------------------------------------------------------------------
// Transactions
// -----------------------------------------------------------------------------

// BeginTransaction constructs and begins a transaction bound to this
// manager.
//
// # Description
//
// The transaction captures its pre-image immediately. While it is
// open, every direct mutation and any second BeginTransaction fails
// with ErrTransactionActive.
//
// # Inputs
//
//   - opts: Optional settings. Nil uses the manager's defaults.
//
// # Outputs
//
//   - *Transaction: The open transaction.
//   - error: ErrTransactionActive if one is already open.
func (m *Manager) BeginTransaction(opts *TxOptions) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.activeTx != nil {
		return nil, ErrTransactionActive
	}

	timeout := m.config.TransactionTimeout
	if opts != nil && opts.Timeout > 0 {
		timeout = opts.Timeout
	}

	tx := &Transaction{
		id:        uuid.New().String(),
		mgr:       m,
		timeout:   timeout,
		createdAt: time.Now(),
	}
	if err := tx.beginLocked(); err != nil {
		return nil, err
	}

	m.activeTx = tx
	m.journalLocked("tx:begin", tx.id)
	m.logger.Debug("transaction started",
		slog.String("tx_id", tx.id),
		slog.Duration("timeout", timeout),
	)
	return tx, nil
}

func (m *Manager) recordTransactionLocked(outcome string) {
	switch outcome {
	case "commit":
		m.metrics.TransactionCount++
	case "rollback":
		m.metrics.RollbackCount++
	}
	m.obs.recordTx(outcome)
}

// -----------------------------------------------------------------------------
// Subscriptions
// -----------------------------------------------------------------------------

// Subscribe registers a callback for state changes.
//
// # Inputs
//
//   - axes: Axis indices to watch. Empty watches everything. Only
//     set-axis events can be filtered this way; whole-vector operations
//     always fire.
//   - fn: The callback. Required.
//
// # Outputs
//
//   - string: Subscription id for Unsubscribe.
//   - error: Non-nil if fn is nil.
func (m *Manager) Subscribe(axes []int, fn Callback) (string, error) {
	if fn == nil {
		return "", errors.New("callback is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sub := &subscription{
		id:   uuid.New().String(),
		axes: make(map[int]struct{}, len(axes)),
		fn:   fn,
	}
	for _, a := range axes {
		sub.axes[a] = struct{}{}
	}
	m.subs[sub.id] = sub
	return sub.id, nil
}

// Unsubscribe removes a subscription.
func (m *Manager) Unsubscribe(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[id]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSubscription, id)
	}
	delete(m.subs, id)
	return nil
}

// -----------------------------------------------------------------------------
// Analytics
// -----------------------------------------------------------------------------

// EntropyTrend analyzes entropy movement over the recent history window.
func (m *Manager) EntropyTrend() history.EntropyTrend {
	m.mu.Lock()
	defer m.mu.Unlock()
	return history.AnalyzeEntropy(m.ring.Slice())
}

// DominantTrend analyzes axis-dominance stability over the recent
// history window.
func (m *Manager) DominantTrend() history.DominantTrend {
	m.mu.Lock()
	defer m.mu.Unlock()
	return history.AnalyzeDominant(m.ring.Slice())
}

// Metrics returns a copy of the current counters.
func (m *Manager) Metrics() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.metrics.clone()
}

// HistorySamples returns the observation history, oldest first.
func (m *Manager) HistorySamples() []history.Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ring.Slice()
}

// Reset reinitializes the manager: default field state, empty history,
// zeroed metrics, and no active transaction. Subscriptions survive.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.activeTx != nil {
		m.activeTx.status = txRolledBack
		m.activeTx = nil
	}
	m.state = field.NewState()
	m.ring.Clear()
	m.metrics = newMetrics()
	m.journalLocked("reset", nil)
	m.logger.Info("manager reset")
}

// -----------------------------------------------------------------------------
// Journal
// -----------------------------------------------------------------------------

func (m *Manager) journalLocked(kind string, detail any) {
	if m.config.Journal == nil {
		return
	}
	if err := m.config.Journal.Append(kind, detail); err != nil {
		m.logger.Warn("journal append failed",
			slog.String("kind", kind),
			slog.String("error", err.Error()),
		)
	}
}
