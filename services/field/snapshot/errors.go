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

import "errors"

var (
	// ErrInvalidMagic indicates the file does not start with the snapshot
	// magic constant.
	ErrInvalidMagic = errors.New("invalid snapshot magic")

	// ErrHeaderTooShort indicates fewer than HeaderSize bytes were supplied
	// to the header decoder.
	ErrHeaderTooShort = errors.New("snapshot header too short")

	// ErrBadParentHash indicates a parent hash that is not empty and not
	// exactly HashSize bytes.
	ErrBadParentHash = errors.New("parent hash must be empty or 32 bytes")

	// ErrWriteCorrupted indicates a freshly written snapshot failed its
	// immediate re-verification. The file has been deleted.
	ErrWriteCorrupted = errors.New("snapshot write corrupted: post-write verification failed")

	// ErrDataLoss indicates the current snapshot is invalid and no backup
	// could be recovered. Callers must treat this as unrecoverable.
	ErrDataLoss = errors.New("data loss: snapshot invalid and all backups exhausted")

	// ErrNoSnapshot indicates a load was requested but the store has no
	// last-good snapshot and no explicit path was given.
	ErrNoSnapshot = errors.New("no snapshot available")

	// ErrNoBaseSnapshot indicates a delta was requested before a chain
	// base exists.
	ErrNoBaseSnapshot = errors.New("no base snapshot: create a base before deltas")

	// ErrChainIntegrityBroken indicates a delta's parent hash does not
	// match the previous link, or a link failed verification.
	ErrChainIntegrityBroken = errors.New("chain integrity broken")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("snapshot store is closed")
)
