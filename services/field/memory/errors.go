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

import "errors"

var (
	// ErrAlreadyStarted indicates Begin was called twice on one
	// transaction.
	ErrAlreadyStarted = errors.New("transaction already started")

	// ErrTransactionClosed indicates an operation on a committed or
	// rolled-back transaction.
	ErrTransactionClosed = errors.New("transaction is closed")

	// ErrTransactionTimeout indicates the commit deadline elapsed before
	// Commit was called.
	ErrTransactionTimeout = errors.New("transaction timed out before commit")

	// ErrInvalidState indicates an illegal lifecycle transition, such as
	// rolling back a committed transaction.
	ErrInvalidState = errors.New("invalid transaction state transition")

	// ErrTransactionActive indicates a direct mutation or a second
	// transaction was attempted while a transaction is open.
	ErrTransactionActive = errors.New("a transaction is already active on this manager")

	// ErrUnknownSubscription indicates an unsubscribe for an id that was
	// never registered or was already removed.
	ErrUnknownSubscription = errors.New("unknown subscription id")

	// ErrBadSnapshot indicates a snapshot or import record that cannot
	// reconstruct a field state.
	ErrBadSnapshot = errors.New("snapshot does not contain a valid field state")

	// ErrJournalCorrupted indicates a journal entry failed its checksum.
	ErrJournalCorrupted = errors.New("journal entry corrupted: checksum mismatch")

	// ErrJournalClosed indicates the journal has been closed.
	ErrJournalClosed = errors.New("journal is closed")
)
