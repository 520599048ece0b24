// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package snapshot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	snapshotDurationHistogram = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fieldvault_snapshot_duration_seconds",
		Help:    "Time to complete a snapshot store operation",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"operation", "status"})

	snapshotOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldvault_snapshot_operations_total",
		Help: "Total snapshot store operations by type and status",
	}, []string{"operation", "status"})

	snapshotSizeGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fieldvault_snapshot_size_bytes",
		Help: "Size of the most recently written snapshot in bytes",
	})

	backupCountGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fieldvault_snapshot_backups",
		Help: "Number of backup files currently retained",
	})

	recoveryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldvault_snapshot_recoveries_total",
		Help: "Backup recovery attempts by outcome",
	}, []string{"status"})

	chainDeltaGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fieldvault_chain_deltas",
		Help: "Number of deltas in the incremental chain since the last base",
	})

	chainCompactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldvault_chain_compactions_total",
		Help: "Chain compactions by trigger",
	}, []string{"trigger"})
)
