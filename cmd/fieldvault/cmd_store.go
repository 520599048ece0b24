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
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"
)

func runRecover(cmd *cobra.Command, args []string) {
	store := openStore()
	defer store.Close()

	path, ok := store.RecoverFromBackup(cmd.Context())
	if !ok {
		log.Fatalf("Recovery failed: no intact backup available")
	}

	if asJSON {
		printJSON(map[string]string{"recovered": path})
		return
	}
	fmt.Printf("Recovered from backup: %s\n", path)
}

func runStats(cmd *cobra.Command, args []string) {
	store := openStore()
	defer store.Close()

	hash, path := store.LastGood()
	history := store.History()
	entries, err := store.ListSnapshots(cmd.Context())
	if err != nil {
		log.Fatalf("Failed to scan store: %v", err)
	}

	valid, corrupt, deltas := 0, 0, 0
	var bytes int64
	for _, e := range entries {
		if e.Valid {
			valid++
		} else {
			corrupt++
		}
		if e.Incremental {
			deltas++
		}
		bytes += e.Size
	}

	if asJSON {
		printJSON(map[string]any{
			"store_dir":     config.StoreDir,
			"current_hash":  hash,
			"current_path":  path,
			"history_depth": len(history),
			"snapshots":     len(entries),
			"valid":         valid,
			"corrupt":       corrupt,
			"deltas":        deltas,
			"total_bytes":   bytes,
		})
		return
	}

	fmt.Printf("Store: %s\n", config.StoreDir)
	if hash == "" {
		fmt.Println("  current: none")
	} else {
		fmt.Printf("  current: %s\n", path)
		fmt.Printf("  hash:    %s\n", hash)
	}
	fmt.Printf("  snapshots: %d (%d valid, %d corrupt, %d deltas)\n",
		len(entries), valid, corrupt, deltas)
	fmt.Printf("  on disk:   %d bytes\n", bytes)
	fmt.Printf("  history:   %d records\n", len(history))
	if n := len(history); n > 0 {
		newest := history[n-1]
		fmt.Printf("  newest:    %s (%s)\n",
			time.UnixMilli(newest.Timestamp).Format(time.RFC3339), newest.Hash[:12])
	}
}
