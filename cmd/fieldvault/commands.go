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
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	configPath   string
	storeDir     string
	payloadFile  string
	parentHash   string
	asJSON       bool
	createAsBase bool

	rootCmd = &cobra.Command{
		Use:   "fieldvault",
		Short: "A cli to inspect and manage hash-verified field-state snapshot stores",
		Long: `Fieldvault manages a directory of hash-verified snapshots:
				create and verify snapshots, recover from backups, and
				compact incremental chains.`,
	}

	// --- Snapshots ---
	snapshotCmd = &cobra.Command{
		Use:   "snapshot",
		Short: "Create, verify, and list snapshots in the store",
	}
	snapshotCreateCmd = &cobra.Command{
		Use:   "create [payload.json]",
		Short: "Write a verified snapshot of a JSON payload (stdin when no file given)",
		Args:  cobra.MaximumNArgs(1),
		Run:   runSnapshotCreate, // Defined in cmd_snapshot.go
	}
	snapshotVerifyCmd = &cobra.Command{
		Use:   "verify [snapshot-file]",
		Short: "Verify a snapshot file's structure and hash (read-only)",
		Args:  cobra.MaximumNArgs(1),
		Run:   runSnapshotVerify, // Defined in cmd_snapshot.go
	}
	snapshotListCmd = &cobra.Command{
		Use:   "list",
		Short: "List every snapshot in the store with its verification status",
		Run:   runSnapshotList, // Defined in cmd_snapshot.go
	}

	// --- Recovery ---
	recoverCmd = &cobra.Command{
		Use:   "recover",
		Short: "Restore the newest intact backup as the current snapshot",
		Run:   runRecover, // Defined in cmd_store.go
	}

	// --- Incremental Chains ---
	chainCmd = &cobra.Command{
		Use:   "chain",
		Short: "Operate on the store's incremental snapshot chain",
	}
	chainCompactCmd = &cobra.Command{
		Use:   "compact",
		Short: "Fold the chain's base and deltas into a fresh base snapshot",
		Run:   runChainCompact, // Defined in cmd_chain.go
	}
	chainShowCmd = &cobra.Command{
		Use:   "show",
		Short: "Print the resumed chain's base and delta records",
		Run:   runChainShow, // Defined in cmd_chain.go
	}

	// --- Store Stats ---
	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show store health: current snapshot, history, backups",
		Run:   runStats, // Defined in cmd_store.go
	}
)

// init runs when the Go program starts
func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath,
		"Path to the YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&storeDir, "store", "",
		"Snapshot store directory (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&asJSON, "json", false,
		"Emit machine-readable JSON output")

	rootCmd.AddCommand(snapshotCmd)
	snapshotCmd.AddCommand(snapshotCreateCmd)
	snapshotCreateCmd.Flags().StringVarP(&payloadFile, "file", "f", "",
		"Read the payload from this file instead of the positional argument")
	snapshotCreateCmd.Flags().StringVar(&parentHash, "parent", "",
		"Explicit parent hash (hex); defaults to the store's last good snapshot")
	snapshotCreateCmd.Flags().BoolVar(&createAsBase, "base", false,
		"Start a fresh lineage: write with no parent even when one exists")
	snapshotCmd.AddCommand(snapshotVerifyCmd)
	snapshotCmd.AddCommand(snapshotListCmd)

	rootCmd.AddCommand(recoverCmd)

	rootCmd.AddCommand(chainCmd)
	chainCmd.AddCommand(chainCompactCmd)
	chainCmd.AddCommand(chainShowCmd)

	rootCmd.AddCommand(statsCmd)
}
