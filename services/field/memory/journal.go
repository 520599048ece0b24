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
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"log/slog"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// -----------------------------------------------------------------------------
// Journal Configuration
// -----------------------------------------------------------------------------

// JournalConfig configures the operation journal.
type JournalConfig struct {
	// Path is the directory for BadgerDB files. Required unless
	// InMemory.
	Path string

	// SyncWrites enables synchronous writes for durability.
	// Default: true.
	SyncWrites bool

	// SkipCorrupted continues replay past corrupted entries instead of
	// failing fast. Skipped entries are logged. Default: false.
	SkipCorrupted bool

	// InMemory uses an in-memory BadgerDB (for testing).
	InMemory bool

	// Logger for journal operations.
	Logger *slog.Logger
}

// DefaultJournalConfig returns production defaults.
func DefaultJournalConfig() JournalConfig {
	return JournalConfig{
		SyncWrites: true,
		Logger:     slog.Default(),
	}
}

// Validate checks if the configuration is valid.
func (c *JournalConfig) Validate() error {
	if !c.InMemory && c.Path == "" {
		return errors.New("path is required for persistent journal")
	}
	return nil
}

// -----------------------------------------------------------------------------
// Journal
// -----------------------------------------------------------------------------

// JournalEntry is one appended record.
type JournalEntry struct {
	// Seq is the monotonic sequence number.
	Seq uint64 `json:"seq"`

	// Kind identifies the event ("op:blend", "tx:commit", "reset", ...).
	Kind string `json:"kind"`

	// Detail is the event payload, JSON-encoded.
	Detail json.RawMessage `json:"detail,omitempty"`

	// Timestamp is the append time, Unix milliseconds.
	Timestamp int64 `json:"timestamp"`

	// CRC is the IEEE CRC32 of the entry with this field zeroed.
	CRC uint32 `json:"crc"`
}

// Journal is an append-only operation log backed by BadgerDB.
//
// # Description
//
// Every manager mutation and transaction outcome can be appended with
// a per-entry CRC32 checksum. Replay returns entries in sequence order
// for audit or reconstruction; corrupted entries fail the replay
// unless SkipCorrupted is set.
//
// # Thread Safety
//
// Safe for concurrent use.
type Journal struct {
	config JournalConfig
	logger *slog.Logger

	mu     sync.Mutex
	db     *badger.DB
	seq    *badger.Sequence
	closed bool
}

// OpenJournal opens or creates a journal.
//
// # Inputs
//
//   - config: Configuration. If nil, uses DefaultJournalConfig() (which
//     requires InMemory or a Path to pass validation).
//
// # Outputs
//
//   - *Journal: The open journal.
//   - error: Non-nil if the database cannot be opened.
func OpenJournal(config *JournalConfig) (*Journal, error) {
	if config == nil {
		cfg := DefaultJournalConfig()
		config = &cfg
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	opts := badger.DefaultOptions(config.Path).
		WithSyncWrites(config.SyncWrites).
		WithInMemory(config.InMemory).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}

	seq, err := db.GetSequence([]byte("journal-seq"), 128)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open journal sequence: %w", err)
	}

	return &Journal{
		config: *config,
		logger: config.Logger.With(slog.String("component", "memory_journal")),
		db:     db,
		seq:    seq,
	}, nil
}

// Append writes one checksummed entry.
//
// # Inputs
//
//   - kind: Event identifier.
//   - detail: JSON-serializable payload. May be nil.
//
// # Outputs
//
//   - error: ErrJournalClosed, or a serialization/storage failure.
func (j *Journal) Append(kind string, detail any) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrJournalClosed
	}

	var raw json.RawMessage
	if detail != nil {
		var err error
		raw, err = json.Marshal(detail)
		if err != nil {
			return fmt.Errorf("serialize journal detail: %w", err)
		}
	}

	seq, err := j.seq.Next()
	if err != nil {
		return fmt.Errorf("next journal sequence: %w", err)
	}

	entry := JournalEntry{
		Seq:       seq,
		Kind:      kind,
		Detail:    raw,
		Timestamp: time.Now().UnixMilli(),
	}
	entry.CRC = entryChecksum(entry)

	value, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("serialize journal entry: %w", err)
	}

	key := []byte(fmt.Sprintf("entry:%016x", seq))
	err = j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
	if err != nil {
		return fmt.Errorf("append journal entry %d: %w", seq, err)
	}
	return nil
}

// Replay returns all entries in sequence order.
//
// # Outputs
//
//   - []JournalEntry: Entries oldest first.
//   - error: ErrJournalClosed, ErrJournalCorrupted (unless
//     SkipCorrupted), or a storage failure.
func (j *Journal) Replay() ([]JournalEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil, ErrJournalClosed
	}

	var entries []JournalEntry
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte("entry:")
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var entry JournalEntry
			err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &entry)
			})
			if err != nil {
				return fmt.Errorf("decode journal entry: %w", err)
			}

			if entryChecksum(entry) != entry.CRC {
				if j.config.SkipCorrupted {
					j.logger.Warn("skipping corrupted journal entry",
						slog.Uint64("seq", entry.Seq),
					)
					continue
				}
				return fmt.Errorf("%w: seq %d", ErrJournalCorrupted, entry.Seq)
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Close releases the sequence and the database.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true

	if err := j.seq.Release(); err != nil {
		j.logger.Warn("release journal sequence failed", slog.String("error", err.Error()))
	}
	if err := j.db.Close(); err != nil {
		return fmt.Errorf("close journal db: %w", err)
	}
	return nil
}

// entryChecksum computes the CRC32 over the entry with its CRC field
// zeroed.
func entryChecksum(entry JournalEntry) uint32 {
	entry.CRC = 0
	data, err := json.Marshal(entry)
	if err != nil {
		return 0
	}
	return crc32.ChecksumIEEE(data)
}
