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
	"log"

	"github.com/AleutianAI/fieldvault/services/field/snapshot"
	"github.com/AleutianAI/fieldvault/services/field/telemetry"
)

const defaultConfigPath = "config.yaml"

// Config is the CLI configuration, loaded from config.yaml.
type Config struct {
	// StoreDir is the snapshot store directory.
	StoreDir string `yaml:"store_dir"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// LogDir enables file logging when set.
	LogDir string `yaml:"log_dir"`

	// Compress controls snapshot payload compression.
	Compress bool `yaml:"compress"`

	// MaxBackups is the backup rotation depth.
	MaxBackups int `yaml:"max_backups"`

	// MaxDeltas is the chain compaction threshold.
	MaxDeltas int `yaml:"max_deltas"`

	// Telemetry configures the otel bootstrap.
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// DefaultCLIConfig returns the configuration used when config.yaml is
// absent.
func DefaultCLIConfig() Config {
	storeCfg := snapshot.DefaultConfig()
	chainCfg := snapshot.DefaultChainConfig()
	tcfg := telemetry.DefaultConfig()
	tcfg.MetricExporter = "none" // a short-lived CLI has nothing to scrape

	return Config{
		StoreDir:   "./fieldvault-data",
		LogLevel:   "info",
		Compress:   storeCfg.Compress,
		MaxBackups: storeCfg.MaxBackups,
		MaxDeltas:  chainCfg.MaxDeltasBeforeCompaction,
		Telemetry:  tcfg,
	}
}

// openStore builds a snapshot store from the loaded configuration.
//
// Fatal on failure: every command needs the store, and a CLI invocation
// has no recovery path.
func openStore() *snapshot.Store {
	cfg := snapshot.DefaultConfig()
	cfg.Dir = config.StoreDir
	cfg.Compress = config.Compress
	cfg.MaxBackups = config.MaxBackups
	cfg.Logger = appLogger.Slog()

	store, err := snapshot.NewStore(&cfg)
	if err != nil {
		log.Fatalf("Failed to open snapshot store at %s: %v", config.StoreDir, err)
	}
	return store
}

// openChain builds a chain over the store and resumes it from the
// store's history.
func openChain(store *snapshot.Store) *snapshot.Chain {
	cfg := snapshot.DefaultChainConfig()
	cfg.MaxDeltasBeforeCompaction = config.MaxDeltas
	cfg.Logger = appLogger.Slog()

	chain, err := snapshot.NewChain(store, snapshot.JSONMergeFold, &cfg)
	if err != nil {
		log.Fatalf("Failed to build chain: %v", err)
	}
	if err := chain.Resume(); err != nil {
		log.Fatalf("Failed to resume chain from store history: %v", err)
	}
	return chain
}
