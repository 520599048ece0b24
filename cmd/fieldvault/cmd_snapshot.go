// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/fieldvault/services/field/snapshot"
)

func runSnapshotCreate(cmd *cobra.Command, args []string) {
	store := openStore()
	defer store.Close()

	path := payloadFile
	if path == "" && len(args) > 0 {
		path = args[0]
	}

	var raw []byte
	var err error
	if path == "" || path == "-" {
		raw, err = io.ReadAll(os.Stdin)
		if err != nil {
			log.Fatalf("Failed to read payload from stdin: %v", err)
		}
	} else {
		raw, err = os.ReadFile(path)
		if err != nil {
			log.Fatalf("Failed to read payload file: %v", err)
		}
	}
	if !json.Valid(raw) {
		log.Fatalf("Payload is not valid JSON")
	}

	rec, err := store.CreateSnapshot(cmd.Context(), json.RawMessage(raw), &snapshot.CreateOptions{
		ParentHash: parentHash,
		NoParent:   createAsBase,
	})
	if err != nil {
		log.Fatalf("Snapshot creation failed: %v", err)
	}

	if asJSON {
		printJSON(rec)
		return
	}
	fmt.Printf("Snapshot written: %s\n", rec.Path)
	fmt.Printf("  hash: %s\n", rec.Hash)
	fmt.Printf("  size: %d bytes (compressed: %v)\n", rec.Size, rec.Compressed)
}

func runSnapshotVerify(cmd *cobra.Command, args []string) {
	store := openStore()
	defer store.Close()

	path := ""
	if len(args) > 0 {
		path = args[0]
	}
	if path == "" {
		_, path = store.LastGood()
		if path == "" {
			log.Fatalf("No snapshot path given and the store has no current snapshot")
		}
	}

	res := store.VerifySnapshot(path)
	if asJSON {
		printJSON(res)
	} else if res.Valid {
		fmt.Printf("OK %s\n", path)
		fmt.Printf("  hash: %s\n", res.Hash)
		fmt.Printf("  written: %s\n", time.UnixMilli(res.Header.Timestamp).Format(time.RFC3339))
		if parent := res.Header.ParentHashHex(); parent != "" {
			fmt.Printf("  parent: %s\n", parent)
		}
	} else {
		fmt.Printf("CORRUPT %s: %v\n", path, res.Err)
	}

	// Verification is a query; a corrupt file is a result, not a crash.
	if !res.Valid {
		os.Exit(1)
	}
}

func runSnapshotList(cmd *cobra.Command, args []string) {
	store := openStore()
	defer store.Close()

	entries, err := store.ListSnapshots(cmd.Context())
	if err != nil {
		log.Fatalf("Failed to list snapshots: %v", err)
	}

	if asJSON {
		printJSON(entries)
		return
	}
	if len(entries) == 0 {
		fmt.Println("No snapshots in store.")
		return
	}

	_, current := store.LastGood()
	for _, e := range entries {
		status := "valid"
		if !e.Valid {
			status = "CORRUPT"
		}
		marker := " "
		if e.Path == current {
			marker = "*"
		}
		kind := "full"
		if e.Incremental {
			kind = "delta"
		}
		fmt.Printf("%s %-7s %-5s %10d B  %s  %s\n",
			marker, status, kind, e.Size,
			e.ModTime.Format("2006-01-02 15:04:05"), e.Path)
	}
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("Failed to marshal output: %v", err)
	}
	fmt.Println(string(out))
}
