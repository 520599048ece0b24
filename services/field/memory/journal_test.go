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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	cfg := DefaultJournalConfig()
	cfg.InMemory = true
	cfg.Logger = quietLogger()
	j, err := OpenJournal(&cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestJournalConfigValidation(t *testing.T) {
	cfg := DefaultJournalConfig()
	assert.Error(t, cfg.Validate(), "persistent journal requires a path")

	cfg.InMemory = true
	assert.NoError(t, cfg.Validate())
}

func TestJournalAppendAndReplay(t *testing.T) {
	j := newTestJournal(t)

	require.NoError(t, j.Append("op:set_axis", map[string]any{"axis": 3}))
	require.NoError(t, j.Append("tx:commit", "some-tx-id"))
	require.NoError(t, j.Append("reset", nil))

	entries, err := j.Replay()
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "op:set_axis", entries[0].Kind)
	assert.Equal(t, "tx:commit", entries[1].Kind)
	assert.Equal(t, "reset", entries[2].Kind)
	assert.JSONEq(t, `"some-tx-id"`, string(entries[1].Detail))
	assert.Nil(t, entries[2].Detail)

	// Sequence numbers are strictly increasing.
	for i := 1; i < len(entries); i++ {
		assert.Greater(t, entries[i].Seq, entries[i-1].Seq)
	}

	// Every replayed entry carried a verifiable checksum.
	for _, e := range entries {
		assert.Equal(t, entryChecksum(e), e.CRC)
	}
}

func TestJournalClosed(t *testing.T) {
	j := newTestJournal(t)
	require.NoError(t, j.Close())
	require.NoError(t, j.Close(), "double close is a no-op")

	assert.ErrorIs(t, j.Append("op:blend", nil), ErrJournalClosed)
	_, err := j.Replay()
	assert.ErrorIs(t, err, ErrJournalClosed)
}

func TestManagerJournalsMutations(t *testing.T) {
	j := newTestJournal(t)
	m := newTestManager(t, func(c *Config) { c.Journal = j })

	require.NoError(t, m.SetAxis(0, 2))
	require.NoError(t, m.TunnelTo("uniform", 0.3))

	tx, err := m.BeginTransaction(nil)
	require.NoError(t, err)
	require.NoError(t, tx.SetAxis(1, 4))
	require.NoError(t, tx.Commit())

	entries, err := j.Replay()
	require.NoError(t, err)

	var kinds []string
	for _, e := range entries {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []string{"op:set_axis", "op:tunnel", "tx:begin", "tx:commit"}, kinds)
}

func TestManagerJournalsRollback(t *testing.T) {
	j := newTestJournal(t)
	m := newTestManager(t, func(c *Config) { c.Journal = j })

	tx, err := m.BeginTransaction(nil)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	entries, err := j.Replay()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "tx:begin", entries[0].Kind)
	assert.Equal(t, "tx:rollback", entries[1].Kind)
}
