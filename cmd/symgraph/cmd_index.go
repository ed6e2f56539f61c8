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
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/symgraph/services/symgraph/indexer"
	"github.com/AleutianAI/symgraph/services/symgraph/updater"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	indexWorkers   int
	indexQueueSize int
)

// =============================================================================
// INDEX COMMAND
// =============================================================================

var indexCmd = &cobra.Command{
	Use:   "index <file>...",
	Short: "Build the symbol graph from scratch",
	Long: `Index parses the symbol sidecars of the given source files in
parallel and writes a fresh graph. The existing graph file, if any, is
replaced atomically; a failed run leaves it untouched.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().IntVar(&indexWorkers, "workers", 0, "parse workers (default min(4, cores))")
	indexCmd.Flags().IntVar(&indexQueueSize, "queue-size", 0, "writer queue capacity")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	workers := indexWorkers
	if workers <= 0 {
		workers = globalConfig.Workers
	}
	queue := indexQueueSize
	if queue <= 0 {
		queue = globalConfig.QueueSize
	}

	files := make([]string, len(args))
	for i, arg := range args {
		files[i] = sourcePath(arg)
	}

	ix := indexer.New(
		indexer.WithWorkers(workers),
		indexer.WithQueueSize(queue),
		indexer.WithLogger(globalLogger.Logger),
	)
	res, err := ix.Run(cmd.Context(), files, sidecarParse, globalConfig.Graph)
	if err != nil {
		return err
	}

	return outputResult(res, func() {
		fmt.Printf("Indexed %d files: %d nodes -> %s (%s)\n",
			res.FilesProcessed, res.NodeCount, globalConfig.Graph,
			res.Duration.Round(time.Millisecond))
		if len(res.FailedFiles) > 0 {
			fmt.Printf("Failed files: %d\n", len(res.FailedFiles))
			for _, f := range res.FailedFiles {
				fmt.Printf("  %s\n", f)
			}
		}
		if res.Incomplete {
			fmt.Println("Run was cancelled; the graph holds a partial index.")
		}
	})
}

// =============================================================================
// WATCH COMMAND
// =============================================================================

var watchCmd = &cobra.Command{
	Use:   "watch <root>",
	Short: "Keep the graph in sync with a source tree",
	Long: `Watch observes the root directory recursively and applies
debounced change batches to the graph: modified files are re-indexed,
deleted files are removed. Runs until interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	opts := updater.DefaultWatcherOptions()
	opts.Logger = globalLogger.Logger
	if globalConfig.Watch.DebounceMS > 0 {
		opts.Debounce = time.Duration(globalConfig.Watch.DebounceMS) * time.Millisecond
	}
	if len(globalConfig.Watch.Extensions) > 0 {
		opts.Extensions = globalConfig.Watch.Extensions
	}
	if len(globalConfig.Watch.IgnoreDirs) > 0 {
		opts.IgnoreDirs = globalConfig.Watch.IgnoreDirs
	}

	u := updater.New(updater.WithLogger(globalLogger.Logger))
	w, err := updater.NewWatcher(args[0], globalConfig.Graph, sidecarParse, u, opts)
	if err != nil {
		return err
	}

	// Interrupt is the normal way to stop watching.
	if err := w.Run(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
