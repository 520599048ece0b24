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

import "github.com/AleutianAI/fieldvault/services/field"

// OpKind identifies one kind of field-state mutation.
type OpKind string

const (
	OpSetAxis  OpKind = "set_axis"
	OpBlend    OpKind = "blend"
	OpActivity OpKind = "activity"
	OpCompose  OpKind = "compose"
	OpTunnel   OpKind = "tunnel"
)

// operation is one queued mutation. Each variant applies itself against
// the manager's live state; the compiler keeps dispatch exhaustive by
// construction, one type per kind.
type operation interface {
	kind() OpKind
	apply(m *Manager) error
}

type setAxisOp struct {
	axis  int
	value float64
}

func (o setAxisOp) kind() OpKind { return OpSetAxis }

func (o setAxisOp) apply(m *Manager) error {
	return m.state.SetAxis(o.axis, o.value)
}

type blendOp struct {
	other  *field.State
	weight float64
}

func (o blendOp) kind() OpKind { return OpBlend }

func (o blendOp) apply(m *Manager) error {
	blended, err := m.state.Blend(o.other, o.weight)
	if err != nil {
		return err
	}
	m.state = blended
	return nil
}

type activityOp struct {
	activity field.Activity
}

func (o activityOp) kind() OpKind { return OpActivity }

func (o activityOp) apply(m *Manager) error {
	delta := m.state.DeltaFromActivity(o.activity)
	if err := m.state.ApplyDelta(delta); err != nil {
		return err
	}
	m.recordHistorySampleLocked()
	return nil
}

type composeOp struct {
	other *field.State
}

func (o composeOp) kind() OpKind { return OpCompose }

func (o composeOp) apply(m *Manager) error {
	m.state = m.state.ComposeWith(o.other)
	return nil
}

type tunnelOp struct {
	attractor string
	mix       float64
}

func (o tunnelOp) kind() OpKind { return OpTunnel }

func (o tunnelOp) apply(m *Manager) error {
	return m.state.TunnelToward(o.attractor, o.mix)
}
