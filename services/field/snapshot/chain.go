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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Fold merges one delta's changes into an accumulated state.
//
// # Description
//
// Both values are raw JSON; the fold owns their interpretation. A fold
// must be pure with respect to everything but its inputs, since
// compaction replays it over the whole chain.
type Fold func(state, changes json.RawMessage) (json.RawMessage, error)

// JSONMergeFold is a stock fold: both state and changes are JSON
// objects, and each top-level key in changes replaces the same key in
// state. Suitable whenever deltas are recorded as changed-field maps.
func JSONMergeFold(state, changes json.RawMessage) (json.RawMessage, error) {
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(state, &merged); err != nil {
		return nil, fmt.Errorf("state is not a JSON object: %w", err)
	}
	var delta map[string]json.RawMessage
	if err := json.Unmarshal(changes, &delta); err != nil {
		return nil, fmt.Errorf("changes are not a JSON object: %w", err)
	}
	for k, v := range delta {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// ChainConfig configures a Chain.
type ChainConfig struct {
	// MaxDeltasBeforeCompaction triggers automatic compaction when the
	// delta count reaches this value. Default: 10.
	MaxDeltasBeforeCompaction int

	// Logger for chain operations.
	Logger *slog.Logger
}

// DefaultChainConfig returns production defaults.
func DefaultChainConfig() ChainConfig {
	return ChainConfig{
		MaxDeltasBeforeCompaction: 10,
		Logger:                    slog.Default(),
	}
}

// Validate checks if the configuration is valid.
func (c *ChainConfig) Validate() error {
	if c.MaxDeltasBeforeCompaction < 1 {
		return fmt.Errorf("max_deltas_before_compaction must be positive, got %d",
			c.MaxDeltasBeforeCompaction)
	}
	return nil
}

// deltaEnvelope is the payload wrapper for a chain delta.
type deltaEnvelope struct {
	Type       string          `json:"type"`
	ParentHash string          `json:"parent_hash"`
	Changes    json.RawMessage `json:"changes"`
	Timestamp  int64           `json:"timestamp"`
}

// Chain is an incremental snapshot chain: one base plus hash-linked
// deltas, bounded by compaction.
//
// # Description
//
// Each delta records the full hash of its predecessor (the base for the
// first delta) both in its header and in its payload envelope.
// Reconstruction verifies every link and folds the deltas in order;
// any mismatch raises ErrChainIntegrityBroken. The fold is injected at
// construction so the automatic compaction trigger always has it.
//
// # Thread Safety
//
// Safe for concurrent use.
type Chain struct {
	store  *Store
	fold   Fold
	config ChainConfig
	logger *slog.Logger

	mu     sync.Mutex
	base   *Record
	deltas []Record
}

// NewChain creates a chain over an existing store.
//
// # Inputs
//
//   - store: The backing snapshot store. Required.
//   - fold: Delta merge function. Required; compaction cannot run
//     without it.
//   - config: Configuration. If nil, uses DefaultChainConfig().
//
// # Outputs
//
//   - *Chain: The ready chain, with no base yet.
//   - error: Non-nil on missing store/fold or invalid config.
func NewChain(store *Store, fold Fold, config *ChainConfig) (*Chain, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if fold == nil {
		return nil, errors.New("fold function is required")
	}
	if config == nil {
		cfg := DefaultChainConfig()
		config = &cfg
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Chain{
		store:  store,
		fold:   fold,
		config: *config,
		logger: config.Logger.With(slog.String("component", "snapshot_chain")),
	}, nil
}

// Resume rebuilds the chain's link records from the store's persisted
// history.
//
// # Description
//
// A chain's records live in memory; after a restart the store's
// metadata still knows every snapshot it wrote and which ones were
// incremental. Resume takes the newest full snapshot as the base and
// every incremental record after it as the delta list, so a new
// process (the CLI in particular) can reconstruct or compact a chain
// it did not create. Link hashes are still verified on the next
// Reconstruct; Resume only restores bookkeeping.
//
// # Outputs
//
//   - error: ErrNoBaseSnapshot when the history has no full snapshot.
func (c *Chain) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	hist := c.store.History()
	baseIdx := -1
	for i := len(hist) - 1; i >= 0; i-- {
		if !hist[i].Incremental {
			baseIdx = i
			break
		}
	}
	if baseIdx < 0 {
		return ErrNoBaseSnapshot
	}

	base := hist[baseIdx]
	c.base = &base
	c.deltas = append([]Record(nil), hist[baseIdx+1:]...)
	chainDeltaGauge.Set(float64(len(c.deltas)))
	c.logger.Info("chain resumed",
		slog.String("base", base.Hash[:12]),
		slog.Int("deltas", len(c.deltas)),
	)
	return nil
}

// Base returns the current base record, nil before CreateBase.
func (c *Chain) Base() *Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.base
}

// DeltaCount returns the number of deltas since the last base.
func (c *Chain) DeltaCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.deltas)
}

// CreateBase writes a full snapshot as the chain root and resets the
// delta list.
//
// # Inputs
//
//   - ctx: Context for tracing.
//   - payload: Full state, JSON-serializable.
//
// # Outputs
//
//   - *Record: The base snapshot record.
//   - error: Non-nil on store failure.
func (c *Chain) CreateBase(ctx context.Context, payload any) (*Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.createBaseLocked(ctx, payload)
}

func (c *Chain) createBaseLocked(ctx context.Context, payload any) (*Record, error) {
	rec, err := c.store.CreateSnapshot(ctx, payload, nil)
	if err != nil {
		return nil, fmt.Errorf("create base: %w", err)
	}

	c.base = rec
	c.deltas = nil
	chainDeltaGauge.Set(0)
	c.logger.Info("chain base created", slog.String("hash", rec.Hash[:12]))
	return rec, nil
}

// CreateDelta appends a hash-linked delta to the chain.
//
// # Description
//
// The delta's parent hash is the most recent delta's full hash, or the
// base's hash for the first delta. It is recorded twice: in the payload
// envelope and in the snapshot header, so either copy can expose
// tampering. Reaching MaxDeltasBeforeCompaction triggers compaction
// automatically.
//
// # Inputs
//
//   - ctx: Context for tracing.
//   - changes: Delta content, JSON-serializable; interpreted only by
//     the fold.
//
// # Outputs
//
//   - *Record: The delta snapshot record.
//   - error: ErrNoBaseSnapshot, or a store/compaction failure.
func (c *Chain) CreateDelta(ctx context.Context, changes any) (*Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.base == nil {
		return nil, ErrNoBaseSnapshot
	}

	parent := c.base.Hash
	if n := len(c.deltas); n > 0 {
		parent = c.deltas[n-1].Hash
	}

	raw, err := json.Marshal(changes)
	if err != nil {
		return nil, fmt.Errorf("serialize changes: %w", err)
	}
	envelope := deltaEnvelope{
		Type:       "delta",
		ParentHash: parent,
		Changes:    raw,
		Timestamp:  time.Now().UnixMilli(),
	}

	rec, err := c.store.CreateSnapshot(ctx, envelope, &CreateOptions{
		ParentHash:  parent,
		Incremental: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create delta: %w", err)
	}

	c.deltas = append(c.deltas, *rec)
	chainDeltaGauge.Set(float64(len(c.deltas)))
	c.logger.Debug("chain delta created",
		slog.Int("deltas", len(c.deltas)),
		slog.String("parent", parent[:12]),
	)

	if len(c.deltas) >= c.config.MaxDeltasBeforeCompaction {
		if _, err := c.compactLocked(ctx, "auto"); err != nil {
			return nil, fmt.Errorf("auto-compaction: %w", err)
		}
	}
	return rec, nil
}

// Reconstruct folds the base and every delta into the current state.
//
// # Description
//
// Loads the base, then each delta in order, verifying that every link's
// recorded parent hash matches the previous link's actual hash. Any
// verification or linkage failure raises ErrChainIntegrityBroken.
//
// # Outputs
//
//   - json.RawMessage: The fully folded state.
//   - error: ErrNoBaseSnapshot, ErrChainIntegrityBroken, or a fold error.
func (c *Chain) Reconstruct(ctx context.Context) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconstructLocked(ctx)
}

func (c *Chain) reconstructLocked(ctx context.Context) (json.RawMessage, error) {
	ctx, span := storeTracer.Start(ctx, "chain.reconstruct")
	defer span.End()
	_ = ctx
	span.SetAttributes(attribute.Int("chain.deltas", len(c.deltas)))

	if c.base == nil {
		return nil, ErrNoBaseSnapshot
	}

	state, prevHash, err := c.loadLink(c.base.Path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	for i, delta := range c.deltas {
		payload, hash, err := c.loadLink(delta.Path)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("delta %d: %w", i, err)
		}

		var envelope deltaEnvelope
		if err := json.Unmarshal(payload, &envelope); err != nil {
			return nil, fmt.Errorf("%w: delta %d envelope malformed: %v",
				ErrChainIntegrityBroken, i, err)
		}
		if envelope.ParentHash != prevHash {
			return nil, fmt.Errorf("%w: delta %d parent hash %.12s does not match previous link %.12s",
				ErrChainIntegrityBroken, i, envelope.ParentHash, prevHash)
		}

		state, err = c.fold(state, envelope.Changes)
		if err != nil {
			return nil, fmt.Errorf("fold delta %d: %w", i, err)
		}
		prevHash = hash
	}

	return state, nil
}

// loadLink verifies and loads one chain file without backup fallback:
// a broken link must surface as chain corruption, not be papered over
// with an unrelated backup.
func (c *Chain) loadLink(path string) (json.RawMessage, string, error) {
	res := verifyFile(path)
	if !res.Valid {
		return nil, "", fmt.Errorf("%w: %s: %v", ErrChainIntegrityBroken, path, res.Err)
	}
	loaded, err := readVerified(path, res)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s: %v", ErrChainIntegrityBroken, path, err)
	}
	return loaded.Data, res.Hash, nil
}

// Compact folds the whole chain into a fresh base.
//
// # Description
//
// Reconstructs the current state, backs up and deletes the old base
// and every delta file, then writes the folded state as the new base.
// This is the sole mechanism bounding chain growth.
//
// # Outputs
//
//   - *Record: The new base record.
//   - error: Non-nil on reconstruction or store failure.
func (c *Chain) Compact(ctx context.Context) (*Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.compactLocked(ctx, "manual")
}

func (c *Chain) compactLocked(ctx context.Context, trigger string) (*Record, error) {
	ctx, span := storeTracer.Start(ctx, "chain.compact")
	defer span.End()
	span.SetAttributes(
		attribute.String("chain.trigger", trigger),
		attribute.Int("chain.deltas", len(c.deltas)),
	)

	state, err := c.reconstructLocked(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// Old chain files are preserved as backups before removal.
	old := make([]Record, 0, len(c.deltas)+1)
	old = append(old, *c.base)
	old = append(old, c.deltas...)
	for _, rec := range old {
		if err := c.store.BackupFile(rec.Path); err != nil {
			c.logger.Warn("backup of chain file failed",
				slog.String("path", rec.Path),
				slog.String("error", err.Error()),
			)
		}
		if err := os.Remove(rec.Path); err != nil {
			c.logger.Warn("delete of chain file failed",
				slog.String("path", rec.Path),
				slog.String("error", err.Error()),
			)
		}
	}

	rec, err := c.createBaseLocked(ctx, json.RawMessage(state))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	chainCompactionsTotal.WithLabelValues(trigger).Inc()
	c.logger.Info("chain compacted",
		slog.String("trigger", trigger),
		slog.Int("folded", len(old)),
		slog.String("base", rec.Hash[:12]),
	)
	return rec, nil
}
