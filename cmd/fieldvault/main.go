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
	"context"
	"log"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/fieldvault/pkg/logging"
	"github.com/AleutianAI/fieldvault/services/field/telemetry"
)

var (
	config    Config
	appLogger *logging.Logger

	telemetryShutdown func(context.Context) error
)

func main() {
	// Execute the root command. Cobra handles parsing the arguments.
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}

func init() {
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		config = DefaultCLIConfig()

		// The config file is optional; defaults cover local use.
		if data, err := os.ReadFile(configPath); err == nil {
			if err := yaml.Unmarshal(data, &config); err != nil {
				log.Fatalf("Error parsing %s: %v", configPath, err)
			}
		} else if configPath != defaultConfigPath {
			log.Fatalf("Error reading %s: %v", configPath, err)
		}
		if storeDir != "" {
			config.StoreDir = storeDir
		}

		appLogger = logging.New(logging.Config{
			Level:   logging.ParseLevel(config.LogLevel),
			LogDir:  config.LogDir,
			Service: "fieldvault",
		})

		shutdown, err := telemetry.Init(cmd.Context(), config.Telemetry)
		if err != nil {
			log.Fatalf("Error initializing telemetry: %v", err)
		}
		telemetryShutdown = shutdown
	}

	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		if telemetryShutdown != nil {
			if err := telemetryShutdown(cmd.Context()); err != nil {
				appLogger.Warn("telemetry shutdown failed", "error", err)
			}
		}
		if appLogger != nil {
			_ = appLogger.Close()
		}
	}
}
