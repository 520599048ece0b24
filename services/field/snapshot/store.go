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
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var storeTracer = otel.Tracer("fieldvault.snapshot")

// Fixed file names inside the store directory.
const (
	metaFileName      = "meta.json"
	recoveredFileName = "recovered.fvs"
	backupDirName     = "backups"
	snapshotExt       = ".fvs"
)

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// Config configures a Store.
type Config struct {
	// Dir is the snapshot directory. Created if missing.
	Dir string

	// Compress enables gzip compression of payloads.
	// Default: true.
	Compress bool

	// CompressionLevel is the gzip level (1-9). Default: 6.
	CompressionLevel int

	// MaxBackups is how many backup files to retain. Default: 5.
	MaxBackups int

	// MaxHistory bounds the in-meta snapshot history. Default: 100.
	MaxHistory int

	// Logger for store operations.
	Logger *slog.Logger
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Compress:         true,
		CompressionLevel: 6,
		MaxBackups:       5,
		MaxHistory:       100,
		Logger:           slog.Default(),
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Dir == "" {
		return errors.New("dir must not be empty")
	}
	if c.CompressionLevel < 1 || c.CompressionLevel > 9 {
		return fmt.Errorf("compression_level must be 1-9, got %d", c.CompressionLevel)
	}
	if c.MaxBackups < 1 {
		return fmt.Errorf("max_backups must be positive, got %d", c.MaxBackups)
	}
	if c.MaxHistory < 1 {
		return fmt.Errorf("max_history must be positive, got %d", c.MaxHistory)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Records
// -----------------------------------------------------------------------------

// Record describes one written snapshot.
type Record struct {
	// Path is the absolute path of the snapshot file.
	Path string `json:"path"`

	// Hash is the full SHA-256 digest as lowercase hex.
	Hash string `json:"hash"`

	// Timestamp is the header creation time, Unix milliseconds.
	Timestamp int64 `json:"timestamp"`

	// Size is the total file size in bytes.
	Size int64 `json:"size"`

	// Compressed mirrors the header compression flag.
	Compressed bool `json:"compressed"`

	// Incremental mirrors the header incremental flag.
	Incremental bool `json:"incremental"`
}

// VerifyResult is the outcome of a verification query.
//
// # Description
//
// Verification is a query, not an assertion: corruption is reported in
// the Valid/Err fields, never raised.
type VerifyResult struct {
	// Valid is true when the file parsed and its trailer hash matched.
	Valid bool

	// Header is the decoded header when it could be parsed.
	Header *Header

	// Hash is the recomputed digest as lowercase hex, set when Valid.
	Hash string

	// Err describes why verification failed. Nil when Valid.
	Err error
}

// Loaded is a successfully loaded and verified snapshot payload.
type Loaded struct {
	// Data is the decompressed payload bytes.
	Data json.RawMessage

	// Header is the decoded file header.
	Header *Header

	// Hash is the file's full digest, lowercase hex.
	Hash string

	// Path is the file the payload was loaded from.
	Path string
}

// Decode unmarshals the payload into v.
func (l *Loaded) Decode(v any) error {
	if err := json.Unmarshal(l.Data, v); err != nil {
		return fmt.Errorf("decode snapshot payload: %w", err)
	}
	return nil
}

// ListEntry is one result of a diagnostic store scan.
type ListEntry struct {
	Record

	// Valid reports whether the file passed full verification.
	Valid bool `json:"valid"`

	// ModTime is the file modification time.
	ModTime time.Time `json:"mod_time"`
}

// CreateOptions configures one snapshot write.
type CreateOptions struct {
	// ParentHash is a lowercase hex digest to record as the parent.
	// Empty uses the store's current last-good hash.
	ParentHash string

	// NoParent writes the snapshot with an all-zero parent field even
	// when the store has a last-good hash, starting a fresh lineage.
	// Ignored when ParentHash is set.
	NoParent bool

	// Incremental marks the snapshot as a chain delta.
	Incremental bool
}

// metaRecord is the persisted store bookkeeping.
type metaRecord struct {
	LastGoodHash string   `json:"last_good_hash"`
	LastGoodPath string   `json:"last_good_path"`
	History      []Record `json:"history"`
	UpdatedAt    int64    `json:"updated_at"`

	// MetaHash is the SHA-256 of this record with the field blank.
	// Detects metadata file corruption.
	MetaHash string `json:"meta_hash,omitempty"`
}

// -----------------------------------------------------------------------------
// Store
// -----------------------------------------------------------------------------

// Store is a hash-verified snapshot store with backup rotation.
//
// # Description
//
// Every write is immediately re-read and verified before the store's
// last-good pointer advances; a failed verification deletes the file.
// Loads that hit corruption fall back to the newest valid backup. All
// bookkeeping is instance state persisted in meta.json; there are no
// process-wide globals.
//
// # Thread Safety
//
// Safe for concurrent use. One mutex covers create, backup, prune,
// load, and recovery, so the last-good pointer and the backup directory
// always change together.
type Store struct {
	config Config
	logger *slog.Logger

	mu           sync.Mutex
	closed       bool
	lastGoodHash string
	lastGoodPath string
	history      []Record
	lastBackupTS int64
}

// NewStore creates a store rooted at config.Dir.
//
// # Description
//
// Creates the directory structure if needed and reloads persisted
// metadata. Corrupt metadata is discarded with a warning; the snapshot
// files themselves remain authoritative.
//
// # Inputs
//
//   - config: Configuration. If nil, uses DefaultConfig with Dir unset
//     (which fails validation, so a Dir is effectively required).
//
// # Outputs
//
//   - *Store: The ready store.
//   - error: Non-nil if configuration is invalid or directories cannot
//     be created.
func NewStore(config *Config) (*Store, error) {
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

	if err := os.MkdirAll(filepath.Join(config.Dir, backupDirName), 0750); err != nil {
		return nil, fmt.Errorf("create store dir %s: %w", config.Dir, err)
	}

	s := &Store{
		config: *config,
		logger: config.Logger.With(slog.String("component", "snapshot_store")),
	}
	s.loadMeta()
	return s, nil
}

// LastGood returns the current last-good hash (hex) and path. Both are
// empty until the first successful write or recovery.
func (s *Store) LastGood() (hash, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastGoodHash, s.lastGoodPath
}

// History returns a copy of the bounded snapshot history, oldest first.
func (s *Store) History() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.history))
	copy(out, s.history)
	return out
}

// Close marks the store closed and persists metadata.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.saveMetaLocked()
}

// CreateSnapshot serializes, writes, and verifies a new snapshot.
//
// # Description
//
// The payload is marshaled to JSON, optionally gzip-compressed, framed
// with a header, and written with a SHA-256 trailer. The file is
// immediately re-read and verified; on verification failure it is
// deleted and ErrWriteCorrupted returned, so the store never points at
// an unverified file. The previous last-good file is copied into the
// backup directory before the pointer advances, and backups are pruned
// to MaxBackups.
//
// # Inputs
//
//   - ctx: Context for tracing. Not used for cancellation of file I/O.
//   - payload: Any JSON-serializable value.
//   - opts: Optional per-write settings. Nil uses defaults.
//
// # Outputs
//
//   - *Record: Metadata for the written snapshot.
//   - error: Non-nil on serialization, I/O, or verification failure.
func (s *Store) CreateSnapshot(ctx context.Context, payload any, opts *CreateOptions) (*Record, error) {
	ctx, span := storeTracer.Start(ctx, "snapshot.create")
	defer span.End()
	_ = ctx

	start := time.Now()
	rec, err := s.createSnapshot(payload, opts)
	status := "success"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(
			attribute.String("snapshot.hash", rec.Hash),
			attribute.Int64("snapshot.size", rec.Size),
		)
	}
	snapshotDurationHistogram.WithLabelValues("create", status).Observe(time.Since(start).Seconds())
	snapshotOperationsTotal.WithLabelValues("create", status).Inc()
	return rec, err
}

func (s *Store) createSnapshot(payload any, opts *CreateOptions) (*Record, error) {
	if opts == nil {
		opts = &CreateOptions{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("serialize payload: %w", err)
	}

	var flags Flags
	body := raw
	if s.config.Compress {
		body, err = gzipBytes(raw, s.config.CompressionLevel)
		if err != nil {
			return nil, fmt.Errorf("compress payload: %w", err)
		}
		flags |= FlagCompressed
	}
	if opts.Incremental {
		flags |= FlagIncremental
	}

	parentHex := opts.ParentHash
	if parentHex == "" && !opts.NoParent {
		parentHex = s.lastGoodHash
	}
	var parent []byte
	if parentHex != "" {
		parent, err = hex.DecodeString(parentHex)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrBadParentHash, parentHex)
		}
	}

	ts := time.Now().UnixMilli()
	header, err := EncodeHeader(flags, ts, parent)
	if err != nil {
		return nil, err
	}
	SetPayloadLength(header, uint32(len(body)))

	hash := ComputeHash(header, body)
	hashHex := hex.EncodeToString(hash)
	path := filepath.Join(s.config.Dir, fmt.Sprintf("snap-%d-%s%s", ts, hashHex[:8], snapshotExt))

	file := make([]byte, 0, len(header)+len(body)+HashSize)
	file = append(file, header...)
	file = append(file, body...)
	file = append(file, hash...)
	if err := os.WriteFile(path, file, 0640); err != nil {
		return nil, fmt.Errorf("write snapshot %s: %w", path, err)
	}

	// Re-read and verify before trusting the write.
	check := verifyFile(path)
	if !check.Valid {
		if rmErr := os.Remove(path); rmErr != nil {
			s.logger.Error("failed to delete corrupt snapshot",
				slog.String("path", path),
				slog.String("error", rmErr.Error()),
			)
		}
		return nil, fmt.Errorf("%w: %v", ErrWriteCorrupted, check.Err)
	}

	if s.lastGoodPath != "" && s.lastGoodPath != path && fileExists(s.lastGoodPath) {
		if err := s.createBackupLocked(s.lastGoodPath); err != nil {
			s.logger.Warn("backup of previous snapshot failed",
				slog.String("path", s.lastGoodPath),
				slog.String("error", err.Error()),
			)
		}
		s.pruneBackupsLocked()
	}

	rec := &Record{
		Path:        path,
		Hash:        hashHex,
		Timestamp:   ts,
		Size:        int64(len(file)),
		Compressed:  flags&FlagCompressed != 0,
		Incremental: opts.Incremental,
	}

	s.lastGoodHash = hashHex
	s.lastGoodPath = path
	s.history = append(s.history, *rec)
	if len(s.history) > s.config.MaxHistory {
		s.history = s.history[len(s.history)-s.config.MaxHistory:]
	}
	if err := s.saveMetaLocked(); err != nil {
		s.logger.Warn("persist metadata failed", slog.String("error", err.Error()))
	}

	snapshotSizeGauge.Set(float64(len(file)))
	s.logger.Info("snapshot created",
		slog.String("path", filepath.Base(path)),
		slog.String("hash", hashHex[:12]),
		slog.Int("size", len(file)),
		slog.Bool("compressed", rec.Compressed),
	)
	return rec, nil
}

// VerifySnapshot checks a snapshot file end to end.
//
// # Description
//
// Validates minimum size, decodes the header, checks the declared
// payload length against the file size, and recomputes the trailer
// digest. Any failure is reported in the result, never raised.
//
// # Inputs
//
//   - path: Snapshot file to verify.
//
// # Outputs
//
//   - VerifyResult: Valid plus header/hash, or Err.
func (s *Store) VerifySnapshot(path string) VerifyResult {
	res := verifyFile(path)
	status := "valid"
	if !res.Valid {
		status = "invalid"
	}
	snapshotOperationsTotal.WithLabelValues("verify", status).Inc()
	return res
}

func verifyFile(path string) VerifyResult {
	data, err := os.ReadFile(path)
	if err != nil {
		return VerifyResult{Err: fmt.Errorf("read snapshot: %w", err)}
	}
	if len(data) < MinFileSize {
		return VerifyResult{Err: fmt.Errorf("%w: file is %d bytes, need at least %d",
			ErrHeaderTooShort, len(data), MinFileSize)}
	}

	header, err := DecodeHeader(data)
	if err != nil {
		return VerifyResult{Err: err}
	}

	want := HeaderSize + int(header.PayloadLength) + HashSize
	if len(data) != want {
		return VerifyResult{Header: header, Err: fmt.Errorf(
			"size mismatch: file is %d bytes, header declares %d", len(data), want)}
	}

	payload := data[HeaderSize : HeaderSize+int(header.PayloadLength)]
	stored := data[len(data)-HashSize:]
	computed := ComputeHash(data[:HeaderSize], payload)
	if !bytes.Equal(stored, computed) {
		return VerifyResult{Header: header, Err: errors.New("hash mismatch: snapshot is corrupt")}
	}

	return VerifyResult{
		Valid:  true,
		Header: header,
		Hash:   hex.EncodeToString(computed),
	}
}

// LoadSnapshot loads and verifies a snapshot payload.
//
// # Description
//
// With an empty path, loads the store's last-good snapshot. On
// verification failure, recovery from the newest valid backup is
// attempted once; if no backup is valid, ErrDataLoss is returned and
// callers must treat the store as unrecoverable.
//
// # Inputs
//
//   - ctx: Context for tracing.
//   - path: Snapshot to load, or "" for the last-good snapshot.
//
// # Outputs
//
//   - *Loaded: Decompressed payload with header and hash.
//   - error: ErrNoSnapshot, ErrDataLoss, or an I/O error.
func (s *Store) LoadSnapshot(ctx context.Context, path string) (*Loaded, error) {
	ctx, span := storeTracer.Start(ctx, "snapshot.load")
	defer span.End()
	_ = ctx

	start := time.Now()
	loaded, err := s.loadSnapshot(path)
	status := "success"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	snapshotDurationHistogram.WithLabelValues("load", status).Observe(time.Since(start).Seconds())
	snapshotOperationsTotal.WithLabelValues("load", status).Inc()
	return loaded, err
}

func (s *Store) loadSnapshot(path string) (*Loaded, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	if path == "" {
		path = s.lastGoodPath
	}
	if path == "" {
		return nil, ErrNoSnapshot
	}

	res := verifyFile(path)
	if !res.Valid {
		s.logger.Warn("snapshot failed verification, attempting recovery",
			slog.String("path", path),
			slog.String("error", res.Err.Error()),
		)
		recovered, ok := s.recoverFromBackupLocked()
		if !ok {
			return nil, fmt.Errorf("%w: %v", ErrDataLoss, res.Err)
		}
		// The recovered copy was verified before it was installed.
		path = recovered
		res = verifyFile(path)
		if !res.Valid {
			return nil, fmt.Errorf("%w: recovered copy failed verification: %v", ErrDataLoss, res.Err)
		}
	}

	return readVerified(path, res)
}

// readVerified reads a file that already passed verification and
// decompresses its payload.
func readVerified(path string, res VerifyResult) (*Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	payload := data[HeaderSize : HeaderSize+int(res.Header.PayloadLength)]

	if res.Header.Compressed {
		payload, err = gunzipBytes(payload)
		if err != nil {
			return nil, fmt.Errorf("decompress snapshot %s: %w", path, err)
		}
	}

	return &Loaded{
		Data:   payload,
		Header: res.Header,
		Hash:   res.Hash,
		Path:   path,
	}, nil
}

// RecoverFromBackup restores the newest valid backup.
//
// # Description
//
// Walks backups newest-first, skipping corrupt ones. The first valid
// backup is copied to the fixed recovery path and becomes the store's
// last-good snapshot.
//
// # Outputs
//
//   - string: Path of the recovered copy, "" when no backup is valid.
//   - bool: True on successful recovery.
func (s *Store) RecoverFromBackup(ctx context.Context) (string, bool) {
	ctx, span := storeTracer.Start(ctx, "snapshot.recover")
	defer span.End()
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recoverFromBackupLocked()
}

func (s *Store) recoverFromBackupLocked() (string, bool) {
	entries, err := os.ReadDir(filepath.Join(s.config.Dir, backupDirName))
	if err != nil {
		s.logger.Error("list backups failed", slog.String("error", err.Error()))
		recoveryTotal.WithLabelValues("error").Inc()
		return "", false
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	// Newest first by numeric timestamp prefix.
	sort.Slice(names, func(i, j int) bool {
		return backupTimestamp(names[i]) > backupTimestamp(names[j])
	})

	for _, name := range names {
		backupPath := filepath.Join(s.config.Dir, backupDirName, name)
		res := verifyFile(backupPath)
		if !res.Valid {
			s.logger.Warn("skipping corrupt backup",
				slog.String("backup", name),
				slog.String("error", res.Err.Error()),
			)
			continue
		}

		target := filepath.Join(s.config.Dir, recoveredFileName)
		if err := copyFile(backupPath, target); err != nil {
			s.logger.Error("copy backup to recovery path failed",
				slog.String("backup", name),
				slog.String("error", err.Error()),
			)
			continue
		}

		s.lastGoodPath = target
		s.lastGoodHash = res.Hash
		if err := s.saveMetaLocked(); err != nil {
			s.logger.Warn("persist metadata failed", slog.String("error", err.Error()))
		}

		s.logger.Info("recovered from backup",
			slog.String("backup", name),
			slog.String("hash", res.Hash[:12]),
		)
		recoveryTotal.WithLabelValues("success").Inc()
		return target, true
	}

	recoveryTotal.WithLabelValues("exhausted").Inc()
	return "", false
}

// ListSnapshots scans and fully verifies every snapshot file.
//
// # Description
//
// A diagnostic O(n) scan, not a hot path. Results are sorted by file
// modification time, newest first. Backups are not included.
//
// # Outputs
//
//   - []ListEntry: One entry per snapshot file, including invalid ones.
//   - error: Non-nil if the directory cannot be read.
func (s *Store) ListSnapshots(ctx context.Context) ([]ListEntry, error) {
	_, span := storeTracer.Start(ctx, "snapshot.list")
	defer span.End()

	entries, err := os.ReadDir(s.config.Dir)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}

	var out []ListEntry
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), snapshotExt) {
			continue
		}
		path := filepath.Join(s.config.Dir, e.Name())
		info, err := e.Info()
		if err != nil {
			continue
		}

		res := verifyFile(path)
		entry := ListEntry{
			Record:  Record{Path: path, Size: info.Size()},
			Valid:   res.Valid,
			ModTime: info.ModTime(),
		}
		if res.Header != nil {
			entry.Timestamp = res.Header.Timestamp
			entry.Compressed = res.Header.Compressed
			entry.Incremental = res.Header.Incremental
		}
		if res.Valid {
			entry.Hash = res.Hash
		}
		out = append(out, entry)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].ModTime.After(out[j].ModTime)
	})
	return out, nil
}

// -----------------------------------------------------------------------------
// Backups
// -----------------------------------------------------------------------------

// BackupFile copies an arbitrary snapshot file into the backup
// directory and prunes to MaxBackups.
func (s *Store) BackupFile(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	if err := s.createBackupLocked(path); err != nil {
		return err
	}
	s.pruneBackupsLocked()
	return nil
}

func (s *Store) createBackupLocked(path string) error {
	ts := time.Now().UnixMilli()
	// Keep timestamp prefixes strictly increasing so rotation order is
	// well defined even for sub-millisecond successive writes.
	if ts <= s.lastBackupTS {
		ts = s.lastBackupTS + 1
	}
	s.lastBackupTS = ts

	name := fmt.Sprintf("%d-%s", ts, filepath.Base(path))
	target := filepath.Join(s.config.Dir, backupDirName, name)
	if err := copyFile(path, target); err != nil {
		return fmt.Errorf("create backup: %w", err)
	}
	s.logger.Debug("backup created", slog.String("backup", name))
	return nil
}

func (s *Store) pruneBackupsLocked() {
	dir := filepath.Join(s.config.Dir, backupDirName)
	entries, err := os.ReadDir(dir)
	if err != nil {
		s.logger.Error("list backups failed", slog.String("error", err.Error()))
		return
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Slice(names, func(i, j int) bool {
		return backupTimestamp(names[i]) > backupTimestamp(names[j])
	})

	for _, name := range names[min(len(names), s.config.MaxBackups):] {
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			s.logger.Warn("prune backup failed",
				slog.String("backup", name),
				slog.String("error", err.Error()),
			)
		}
	}

	kept := min(len(names), s.config.MaxBackups)
	backupCountGauge.Set(float64(kept))
}

// backupTimestamp parses the numeric prefix of a backup file name.
// Unparseable names sort oldest.
func backupTimestamp(name string) int64 {
	prefix, _, ok := strings.Cut(name, "-")
	if !ok {
		return 0
	}
	ts, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil {
		return 0
	}
	return ts
}

// -----------------------------------------------------------------------------
// Metadata
// -----------------------------------------------------------------------------

func (s *Store) metaPath() string {
	return filepath.Join(s.config.Dir, metaFileName)
}

func (s *Store) saveMetaLocked() error {
	meta := metaRecord{
		LastGoodHash: s.lastGoodHash,
		LastGoodPath: s.lastGoodPath,
		History:      s.history,
		UpdatedAt:    time.Now().UnixMilli(),
	}

	unhashed, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	digest := sha256.Sum256(unhashed)
	meta.MetaHash = hex.EncodeToString(digest[:])

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	// Atomic write: temp file then rename.
	tmp := s.metaPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0640); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	if err := os.Rename(tmp, s.metaPath()); err != nil {
		return fmt.Errorf("rename metadata: %w", err)
	}
	return nil
}

func (s *Store) loadMeta() {
	data, err := os.ReadFile(s.metaPath())
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("read metadata failed", slog.String("error", err.Error()))
		}
		return
	}

	var meta metaRecord
	if err := json.Unmarshal(data, &meta); err != nil {
		s.logger.Warn("metadata is malformed, starting fresh", slog.String("error", err.Error()))
		return
	}

	if meta.MetaHash != "" {
		stored := meta.MetaHash
		meta.MetaHash = ""
		unhashed, err := json.Marshal(meta)
		if err == nil {
			digest := sha256.Sum256(unhashed)
			if hex.EncodeToString(digest[:]) != stored {
				s.logger.Warn("metadata self-hash mismatch, starting fresh")
				return
			}
		}
	}

	s.lastGoodHash = meta.LastGoodHash
	s.lastGoodPath = meta.LastGoodPath
	s.history = meta.History
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func gzipBytes(data []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gunzipBytes(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0640)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
