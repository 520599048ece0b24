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
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/fieldvault/services/field"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(t *testing.T, mutate func(*Config)) *Manager {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Logger = quietLogger()
	if mutate != nil {
		mutate(&cfg)
	}
	m, err := NewManager(&cfg)
	require.NoError(t, err)
	return m
}

func TestNewManagerDefaults(t *testing.T) {
	m := newTestManager(t, nil)

	state := m.State()
	assert.InDelta(t, 1.0, state.Entropy(), 1e-9, "starts in uniform state")

	metrics := m.Metrics()
	assert.Zero(t, metrics.TotalOperations)
	assert.Empty(t, m.HistorySamples())
}

func TestConfigValidation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxHistory = 0
	_, err := NewManager(&cfg)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.TransactionTimeout = 0
	_, err = NewManager(&cfg)
	assert.Error(t, err)
}

func TestStateReturnsIndependentCopy(t *testing.T) {
	m := newTestManager(t, nil)
	copy1 := m.State()
	require.NoError(t, copy1.SetAxis(0, 99))

	copy2 := m.State()
	assert.NotEqual(t, copy1.Vector(), copy2.Vector(), "mutating the copy must not touch the manager")
}

func TestDirectMutationsUpdateMetrics(t *testing.T) {
	m := newTestManager(t, nil)

	require.NoError(t, m.SetAxis(2, 5))
	require.NoError(t, m.TunnelTo("uniform", 0.5))
	require.NoError(t, m.Compose(field.NewState()))

	metrics := m.Metrics()
	assert.Equal(t, int64(3), metrics.TotalOperations)
	assert.Equal(t, int64(1), metrics.OperationsByType[OpSetAxis])
	assert.Equal(t, int64(1), metrics.OperationsByType[OpTunnel])
	assert.Equal(t, int64(1), metrics.OperationsByType[OpCompose])
	assert.GreaterOrEqual(t, metrics.PeakDurationMs, metrics.MeanDurationMs)
}

func TestFailedMutationLeavesMetricsAlone(t *testing.T) {
	m := newTestManager(t, nil)

	err := m.SetAxis(field.Dimension+5, 1)
	assert.ErrorIs(t, err, field.ErrAxisRange)

	err = m.TunnelTo("no-such-attractor", 0.5)
	assert.ErrorIs(t, err, field.ErrUnknownAttractor)

	assert.Zero(t, m.Metrics().TotalOperations)
}

func TestActivityRecordsBoundedHistory(t *testing.T) {
	m := newTestManager(t, func(c *Config) { c.MaxHistory = 3 })

	for i := 0; i < 5; i++ {
		require.NoError(t, m.UpdateFromActivity(field.Activity{Intensity: 0.5}))
	}

	samples := m.HistorySamples()
	require.Len(t, samples, 3, "oldest samples evicted at max_history")
	for _, s := range samples {
		assert.InDelta(t, 1.0, s.Norm, 1e-9)
		assert.GreaterOrEqual(t, s.Entropy, 0.0)
	}

	// Only activity updates sample history.
	require.NoError(t, m.SetAxis(0, 2))
	assert.Len(t, m.HistorySamples(), 3)
}

func TestTrendsNeutralWithFewSamples(t *testing.T) {
	m := newTestManager(t, nil)

	require.NoError(t, m.UpdateFromActivity(field.Activity{Intensity: 0.1}))

	et := m.EntropyTrend()
	assert.Equal(t, 1, et.DataPoints)
	assert.Zero(t, et.Delta)

	dt := m.DominantTrend()
	assert.Equal(t, -1, dt.Axis)
	assert.Zero(t, dt.Stability)
}

func TestDominantTrendTracksStableAxis(t *testing.T) {
	m := newTestManager(t, nil)

	// Keep hammering axis 7 so it stays dominant across samples.
	require.NoError(t, m.SetAxis(7, 10))
	for i := 0; i < 6; i++ {
		require.NoError(t, m.UpdateFromActivity(field.Activity{Intensity: 0.05, Focus: []int{7}}))
	}

	dt := m.DominantTrend()
	assert.Equal(t, 7, dt.Axis)
	assert.InDelta(t, 1.0, dt.Stability, 1e-9)
}

func TestSnapshotRestore(t *testing.T) {
	m := newTestManager(t, nil)
	require.NoError(t, m.SetAxis(1, 3))

	snap := m.Snapshot()
	require.NoError(t, m.SetAxis(4, 50))
	require.NoError(t, m.TunnelTo("alternating", 0.9))

	require.NoError(t, m.Restore(snap))
	assert.InDeltaSlice(t, snap.Vector, m.State().Vector(), 1e-12)

	// Metrics are not restored: all four mutations remain counted.
	assert.Equal(t, int64(3), m.Metrics().TotalOperations)
}

func TestRestoreRejectsBadSnapshot(t *testing.T) {
	m := newTestManager(t, nil)
	err := m.Restore(Snapshot{Vector: []float64{1, 2}})
	assert.ErrorIs(t, err, ErrBadSnapshot)
}

func TestSubscriptions(t *testing.T) {
	m := newTestManager(t, nil)

	var all []Event
	allID, err := m.Subscribe(nil, func(e Event) { all = append(all, e) })
	require.NoError(t, err)

	var axis3 []Event
	_, err = m.Subscribe([]int{3}, func(e Event) { axis3 = append(axis3, e) })
	require.NoError(t, err)

	require.NoError(t, m.SetAxis(0, 2))
	require.NoError(t, m.SetAxis(3, 5))
	require.NoError(t, m.TunnelTo("uniform", 0.1))

	require.Len(t, all, 3, "unfiltered subscriber sees every mutation")
	assert.Equal(t, OpSetAxis, all[0].Kind)
	assert.Equal(t, OpTunnel, all[2].Kind)
	assert.Len(t, all[0].Vector, field.Dimension)

	// Axis filter applies to set-axis only; whole-vector ops always fire.
	require.Len(t, axis3, 2)
	assert.Equal(t, OpSetAxis, axis3[0].Kind)
	assert.Equal(t, OpTunnel, axis3[1].Kind)

	require.NoError(t, m.Unsubscribe(allID))
	require.NoError(t, m.SetAxis(1, 1))
	assert.Len(t, all, 3, "unsubscribed callback no longer fires")

	assert.ErrorIs(t, m.Unsubscribe(allID), ErrUnknownSubscription)
}

func TestSubscribeRequiresCallback(t *testing.T) {
	m := newTestManager(t, nil)
	_, err := m.Subscribe(nil, nil)
	assert.Error(t, err)
}

func TestReset(t *testing.T) {
	m := newTestManager(t, nil)
	require.NoError(t, m.SetAxis(0, 9))
	require.NoError(t, m.UpdateFromActivity(field.Activity{Intensity: 1}))

	m.Reset()

	assert.Zero(t, m.Metrics().TotalOperations)
	assert.Empty(t, m.HistorySamples())
	assert.InDelta(t, 1.0, m.State().Entropy(), 1e-9, "state back to uniform default")
}

func TestResetClearsActiveTransaction(t *testing.T) {
	m := newTestManager(t, nil)
	tx, err := m.BeginTransaction(nil)
	require.NoError(t, err)

	m.Reset()

	// The orphaned transaction is terminal.
	assert.ErrorIs(t, tx.SetAxis(0, 1), ErrTransactionClosed)

	// And the manager accepts work again.
	assert.NoError(t, m.SetAxis(0, 1))
}
