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
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// instruments holds the manager's OpenTelemetry metric instruments.
// A nil *instruments is a valid no-op receiver, so instrument creation
// failure degrades to uninstrumented operation.
type instruments struct {
	ops          metric.Int64Counter
	opDuration   metric.Float64Histogram
	transactions metric.Int64Counter
}

func newInstruments() (*instruments, error) {
	meter := otel.Meter("fieldvault.memory")

	ops, err := meter.Int64Counter("fieldvault.memory.operations",
		metric.WithDescription("Field mutations applied, by kind"),
	)
	if err != nil {
		return nil, fmt.Errorf("create operations counter: %w", err)
	}

	opDuration, err := meter.Float64Histogram("fieldvault.memory.operation_duration",
		metric.WithDescription("Mutation duration"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}

	transactions, err := meter.Int64Counter("fieldvault.memory.transactions",
		metric.WithDescription("Transaction outcomes"),
	)
	if err != nil {
		return nil, fmt.Errorf("create transactions counter: %w", err)
	}

	return &instruments{
		ops:          ops,
		opDuration:   opDuration,
		transactions: transactions,
	}, nil
}

func (i *instruments) recordOp(kind OpKind, durationMs float64) {
	if i == nil {
		return
	}
	ctx := context.Background()
	attrs := metric.WithAttributes(attribute.String("kind", string(kind)))
	i.ops.Add(ctx, 1, attrs)
	i.opDuration.Record(ctx, durationMs, attrs)
}

func (i *instruments) recordTx(outcome string) {
	if i == nil {
		return
	}
	i.transactions.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}
