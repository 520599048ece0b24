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

func runChainCompact(cmd *cobra.Command, args []string) {
	store := openStore()
	defer store.Close()
	chain := openChain(store)

	deltas := chain.DeltaCount()
	if deltas == 0 {
		fmt.Println("Chain has no deltas; nothing to compact.")
		return
	}

	rec, err := chain.Compact(cmd.Context())
	if err != nil {
		log.Fatalf("Compaction failed: %v", err)
	}

	if asJSON {
		printJSON(rec)
		return
	}
	fmt.Printf("Compacted %d deltas into new base: %s\n", deltas, rec.Path)
	fmt.Printf("  hash: %s\n", rec.Hash)
}

func runChainShow(cmd *cobra.Command, args []string) {
	store := openStore()
	defer store.Close()
	chain := openChain(store)

	base := chain.Base()
	if asJSON {
		printJSON(map[string]any{
			"base":   base,
			"deltas": chain.DeltaCount(),
		})
		return
	}

	fmt.Printf("Base:  %s\n", base.Path)
	fmt.Printf("  hash:    %s\n", base.Hash)
	fmt.Printf("  written: %s\n", time.UnixMilli(base.Timestamp).Format(time.RFC3339))
	fmt.Printf("Deltas since base: %d (compaction at %d)\n",
		chain.DeltaCount(), config.MaxDeltas)
}
