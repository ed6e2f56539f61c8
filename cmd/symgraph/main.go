// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command symgraph builds, links, and maintains a cross-domain symbol
// graph over pre-parsed source trees.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/symgraph/pkg/logging"
)

// CLI exit codes.
const (
	CLIExitSuccess = 0
	CLIExitError   = 2
)

// =============================================================================
// GLOBAL FLAGS
// =============================================================================

var (
	flagConfig   string
	flagGraph    string
	flagLogLevel string
	flagJSON     bool
)

// globalConfig is resolved once before any command runs.
var globalConfig Config

// globalLogger is the CLI-wide logger, built from config and flags.
var globalLogger *logging.Logger

// =============================================================================
// ROOT COMMAND
// =============================================================================

var rootCmd = &cobra.Command{
	Use:   "symgraph",
	Short: "Symbol graph indexing and cross-domain linking",
	Long: `symgraph maintains a persisted symbol graph over a source tree.

External language parsers emit per-file symbol sidecars; symgraph indexes
them in parallel, resolves call, inheritance, and import references,
links symbols across domain boundaries (UI bindings, database columns,
routes), and keeps the graph current through incremental updates.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		globalConfig, err = LoadConfig(flagConfig)
		if err != nil {
			return err
		}
		if flagGraph != "" {
			globalConfig.Graph = flagGraph
		}
		if flagLogLevel != "" {
			globalConfig.LogLevel = flagLogLevel
		}

		globalLogger, err = logging.New(logging.Config{
			Level:   logging.ParseLevel(globalConfig.LogLevel),
			LogDir:  globalConfig.LogDir,
			Service: "symgraph",
		})
		return err
	},
}

// closeLogger flushes the log file. Called from main rather than a
// PersistentPostRun hook, which cobra skips when RunE fails.
func closeLogger() {
	if globalLogger != nil {
		globalLogger.Close()
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default .symgraph.yaml, env SYMGRAPH_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&flagGraph, "graph", "", "path of the persisted symbol graph")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "minimum log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "emit machine-readable JSON output")
}

// outputResult prints a command result, honoring --json.
func outputResult(v any, human func()) error {
	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	human()
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	closeLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(CLIExitError)
	}
	os.Exit(CLIExitSuccess)
}
