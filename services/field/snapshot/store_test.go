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
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T, mutate func(*Config)) *Store {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Dir = t.TempDir()
	cfg.Logger = quietLogger()
	if mutate != nil {
		mutate(&cfg)
	}
	store, err := NewStore(&cfg)
	require.NoError(t, err)
	return store
}

type testPayload struct {
	Name  string    `json:"name"`
	Count int       `json:"count"`
	Vec   []float64 `json:"vec"`
}

func TestCreateAndLoadRoundTrip(t *testing.T) {
	for _, compress := range []bool{true, false} {
		name := "uncompressed"
		if compress {
			name = "compressed"
		}
		t.Run(name, func(t *testing.T) {
			store := newTestStore(t, func(c *Config) { c.Compress = compress })
			ctx := context.Background()

			payload := testPayload{Name: "field", Count: 3, Vec: []float64{0.5, -0.25}}
			rec, err := store.CreateSnapshot(ctx, payload, nil)
			require.NoError(t, err)
			assert.Equal(t, compress, rec.Compressed)
			assert.Len(t, rec.Hash, 64)

			res := store.VerifySnapshot(rec.Path)
			require.True(t, res.Valid, "fresh snapshot must verify: %v", res.Err)
			assert.Equal(t, rec.Hash, res.Hash)

			loaded, err := store.LoadSnapshot(ctx, rec.Path)
			require.NoError(t, err)

			var got testPayload
			require.NoError(t, loaded.Decode(&got))
			assert.Equal(t, payload, got)
		})
	}
}

func TestSingleByteCorruptionIsDetected(t *testing.T) {
	store := newTestStore(t, nil)
	rec, err := store.CreateSnapshot(context.Background(), testPayload{Name: "x"}, nil)
	require.NoError(t, err)

	original, err := os.ReadFile(rec.Path)
	require.NoError(t, err)

	// Flip one byte at every position covered by the trailer hash.
	hashedLen := len(original) - HashSize
	for i := 0; i < hashedLen; i++ {
		corrupted := append([]byte(nil), original...)
		corrupted[i] ^= 0xFF
		require.NoError(t, os.WriteFile(rec.Path, corrupted, 0640))

		res := store.VerifySnapshot(rec.Path)
		assert.False(t, res.Valid, "flip at offset %d must be detected", i)
	}
}

func TestVerifySnapshotIsAQuery(t *testing.T) {
	store := newTestStore(t, nil)

	t.Run("missing file", func(t *testing.T) {
		res := store.VerifySnapshot(filepath.Join(t.TempDir(), "nope.fvs"))
		assert.False(t, res.Valid)
		assert.Error(t, res.Err)
	})

	t.Run("undersized file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "tiny.fvs")
		require.NoError(t, os.WriteFile(path, []byte("short"), 0640))
		res := store.VerifySnapshot(path)
		assert.False(t, res.Valid)
	})

	t.Run("truncated payload", func(t *testing.T) {
		rec, err := store.CreateSnapshot(context.Background(), testPayload{Name: "t"}, nil)
		require.NoError(t, err)
		data, err := os.ReadFile(rec.Path)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(rec.Path, data[:len(data)-10], 0640))

		res := store.VerifySnapshot(rec.Path)
		assert.False(t, res.Valid)
	})
}

func TestLoadWithoutAnySnapshot(t *testing.T) {
	store := newTestStore(t, nil)
	_, err := store.LoadSnapshot(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestParentHashDefaultsToLastGood(t *testing.T) {
	store := newTestStore(t, nil)
	ctx := context.Background()

	first, err := store.CreateSnapshot(ctx, testPayload{Count: 1}, nil)
	require.NoError(t, err)

	second, err := store.CreateSnapshot(ctx, testPayload{Count: 2}, nil)
	require.NoError(t, err)

	res := store.VerifySnapshot(second.Path)
	require.True(t, res.Valid)
	assert.Equal(t, first.Hash, res.Header.ParentHashHex())
}

func TestNoParentStartsFreshLineage(t *testing.T) {
	store := newTestStore(t, nil)
	ctx := context.Background()

	_, err := store.CreateSnapshot(ctx, testPayload{Count: 1}, nil)
	require.NoError(t, err)

	fresh, err := store.CreateSnapshot(ctx, testPayload{Count: 2}, &CreateOptions{NoParent: true})
	require.NoError(t, err)

	res := store.VerifySnapshot(fresh.Path)
	require.True(t, res.Valid)
	assert.Empty(t, res.Header.ParentHashHex(), "all-zero parent reads back as none")
}

func TestBackupRotation(t *testing.T) {
	const maxBackups = 3
	store := newTestStore(t, func(c *Config) { c.MaxBackups = maxBackups })
	ctx := context.Background()

	var hashes []string
	for i := 0; i < maxBackups+4; i++ {
		rec, err := store.CreateSnapshot(ctx, testPayload{Count: i}, nil)
		require.NoError(t, err)
		hashes = append(hashes, rec.Hash)
	}

	backupDir := filepath.Join(store.config.Dir, backupDirName)
	entries, err := os.ReadDir(backupDir)
	require.NoError(t, err)
	require.Len(t, entries, maxBackups, "backup dir pruned to max_backups")

	// The retained backups are the most recent predecessors: with 7
	// snapshots written, backups 4, 5, and 6 (counts 3..5) survive.
	kept := map[string]bool{}
	for _, e := range entries {
		res := store.VerifySnapshot(filepath.Join(backupDir, e.Name()))
		require.True(t, res.Valid)
		kept[res.Hash] = true
	}
	for _, h := range hashes[len(hashes)-1-maxBackups : len(hashes)-1] {
		assert.True(t, kept[h], "expected backup of %s", h[:12])
	}
}

func TestRecoveryFromBackup(t *testing.T) {
	store := newTestStore(t, nil)
	ctx := context.Background()

	payloadA := testPayload{Name: "A", Count: 1}
	recA, err := store.CreateSnapshot(ctx, payloadA, nil)
	require.NoError(t, err)

	recB, err := store.CreateSnapshot(ctx, testPayload{Name: "B", Count: 2}, nil)
	require.NoError(t, err)

	// Corrupt B's trailer hash.
	data, err := os.ReadFile(recB.Path)
	require.NoError(t, err)
	data[len(data)-1] ^= 0xFF
	require.NoError(t, os.WriteFile(recB.Path, data, 0640))

	loaded, err := store.LoadSnapshot(ctx, "")
	require.NoError(t, err, "load must fall back to A's backup")

	var got testPayload
	require.NoError(t, loaded.Decode(&got))
	assert.Equal(t, payloadA, got)
	assert.Equal(t, recA.Hash, loaded.Hash)

	hash, path := store.LastGood()
	assert.Equal(t, recA.Hash, hash)
	assert.Equal(t, filepath.Join(store.config.Dir, recoveredFileName), path)
}

func TestDataLossWhenBackupsExhausted(t *testing.T) {
	store := newTestStore(t, nil)
	ctx := context.Background()

	_, err := store.CreateSnapshot(ctx, testPayload{Name: "A"}, nil)
	require.NoError(t, err)
	recB, err := store.CreateSnapshot(ctx, testPayload{Name: "B"}, nil)
	require.NoError(t, err)

	// Corrupt the live snapshot and the only backup.
	for _, path := range []string{recB.Path} {
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		data[0] ^= 0xFF
		require.NoError(t, os.WriteFile(path, data, 0640))
	}
	backupDir := filepath.Join(store.config.Dir, backupDirName)
	entries, err := os.ReadDir(backupDir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	for _, e := range entries {
		path := filepath.Join(backupDir, e.Name())
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		data[0] ^= 0xFF
		require.NoError(t, os.WriteFile(path, data, 0640))
	}

	_, err = store.LoadSnapshot(ctx, "")
	assert.ErrorIs(t, err, ErrDataLoss)
}

func TestMetadataSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Dir = dir
	cfg.Logger = quietLogger()

	store, err := NewStore(&cfg)
	require.NoError(t, err)
	rec, err := store.CreateSnapshot(context.Background(), testPayload{Name: "persist"}, nil)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := NewStore(&cfg)
	require.NoError(t, err)

	hash, path := reopened.LastGood()
	assert.Equal(t, rec.Hash, hash)
	assert.Equal(t, rec.Path, path)
	require.Len(t, reopened.History(), 1)
	assert.Equal(t, rec.Hash, reopened.History()[0].Hash)
}

func TestTamperedMetadataIsDiscarded(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Dir = dir
	cfg.Logger = quietLogger()

	store, err := NewStore(&cfg)
	require.NoError(t, err)
	_, err = store.CreateSnapshot(context.Background(), testPayload{}, nil)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	metaPath := filepath.Join(dir, metaFileName)
	data, err := os.ReadFile(metaPath)
	require.NoError(t, err)
	tampered := []byte(string(data))
	copy(tampered, []byte(`{"last_good_hash":"beef"`))
	require.NoError(t, os.WriteFile(metaPath, tampered, 0640))

	reopened, err := NewStore(&cfg)
	require.NoError(t, err)
	hash, _ := reopened.LastGood()
	assert.Empty(t, hash, "tampered metadata must not be trusted")
}

func TestListSnapshots(t *testing.T) {
	store := newTestStore(t, nil)
	ctx := context.Background()

	recA, err := store.CreateSnapshot(ctx, testPayload{Count: 1}, nil)
	require.NoError(t, err)
	recB, err := store.CreateSnapshot(ctx, testPayload{Count: 2}, nil)
	require.NoError(t, err)

	// Corrupt A so the scan reports a mixed result.
	data, err := os.ReadFile(recA.Path)
	require.NoError(t, err)
	data[HeaderSize] ^= 0xFF
	require.NoError(t, os.WriteFile(recA.Path, data, 0640))

	list, err := store.ListSnapshots(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)

	byPath := map[string]ListEntry{}
	for _, e := range list {
		byPath[e.Path] = e
	}
	assert.False(t, byPath[recA.Path].Valid)
	assert.True(t, byPath[recB.Path].Valid)
	assert.Equal(t, recB.Hash, byPath[recB.Path].Hash)
}

func TestClosedStoreRejectsOperations(t *testing.T) {
	store := newTestStore(t, nil)
	require.NoError(t, store.Close())

	_, err := store.CreateSnapshot(context.Background(), testPayload{}, nil)
	assert.ErrorIs(t, err, ErrStoreClosed)

	_, err = store.LoadSnapshot(context.Background(), "")
	assert.ErrorIs(t, err, ErrStoreClosed)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults with dir", func(c *Config) { c.Dir = "/tmp/x" }, false},
		{"missing dir", func(c *Config) { c.Dir = "" }, true},
		{"bad compression level", func(c *Config) { c.Dir = "/tmp/x"; c.CompressionLevel = 0 }, true},
		{"bad max backups", func(c *Config) { c.Dir = "/tmp/x"; c.MaxBackups = 0 }, true},
		{"bad max history", func(c *Config) { c.Dir = "/tmp/x"; c.MaxHistory = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
