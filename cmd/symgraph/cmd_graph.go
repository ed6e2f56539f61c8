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
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/symgraph/services/symgraph/linker"
	"github.com/AleutianAI/symgraph/services/symgraph/persist"
	"github.com/AleutianAI/symgraph/services/symgraph/reflink"
	"github.com/AleutianAI/symgraph/services/symgraph/updater"
)

// =============================================================================
// LINK COMMAND
// =============================================================================

var linkCmd = &cobra.Command{
	Use:   "link",
	Short: "Resolve call, inheritance, and import references",
	Long: `Link loads the graph, resolves every raw reference to a concrete
node ID, rebuilds the reverse dependency lists, and writes the graph back
atomically. Running link again on an unchanged graph is a no-op.`,
	Args: cobra.NoArgs,
	RunE: runLink,
}

func init() {
	rootCmd.AddCommand(linkCmd)
}

func runLink(cmd *cobra.Command, args []string) error {
	l := linker.New(linker.WithLogger(globalLogger.Logger))
	res, err := l.Run(cmd.Context(), globalConfig.Graph)
	if err != nil {
		return err
	}

	return outputResult(res, func() {
		fmt.Printf("Linked %d nodes: %d references resolved (%s)\n",
			res.NodeCount, res.ResolvedCount, res.Duration.Round(time.Millisecond))
	})
}

// =============================================================================
// UPDATE COMMAND
// =============================================================================

var updateCmd = &cobra.Command{
	Use:   "update <file>...",
	Short: "Re-index changed files inside the existing graph",
	Long: `Update re-parses the given files and merges the result into the
graph in one pass: prior nodes of each file are replaced, affected
references re-resolved, dependents rebuilt. The whole batch costs one
load and one atomic write.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runUpdate,
}

func init() {
	rootCmd.AddCommand(updateCmd)
}

func runUpdate(cmd *cobra.Command, args []string) error {
	files := make([]string, len(args))
	for i, arg := range args {
		files[i] = sourcePath(arg)
	}

	u := updater.New(updater.WithLogger(globalLogger.Logger))
	res, err := u.Update(cmd.Context(), files, sidecarParse, globalConfig.Graph)
	if err != nil {
		return err
	}

	return outputResult(res, func() {
		fmt.Printf("Updated %d files: -%d +%d nodes, %d re-resolved (%s)\n",
			res.FilesUpdated, res.NodesRemoved, res.NodesAdded,
			res.Reresolved, res.Duration.Round(time.Millisecond))
		for _, f := range res.FailedFiles {
			fmt.Printf("  failed: %s\n", f)
		}
	})
}

// =============================================================================
// REMOVE COMMAND
// =============================================================================

var removeCmd = &cobra.Command{
	Use:   "remove <file>",
	Short: "Remove a file's symbols from the graph",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemove,
}

func init() {
	rootCmd.AddCommand(removeCmd)
}

func runRemove(cmd *cobra.Command, args []string) error {
	u := updater.New(updater.WithLogger(globalLogger.Logger))
	res, err := u.Remove(cmd.Context(), sourcePath(args[0]), globalConfig.Graph)
	if err != nil {
		return err
	}

	return outputResult(res, func() {
		if res.NodesRemoved == 0 {
			fmt.Printf("No symbols for %s in the graph.\n", args[0])
			return
		}
		fmt.Printf("Removed %d nodes of %s\n", res.NodesRemoved, args[0])
	})
}

// =============================================================================
// CROSSLINK COMMAND
// =============================================================================

var crosslinkCmd = &cobra.Command{
	Use:   "crosslink",
	Short: "Run the cross-domain reference linkers",
	Long: `Crosslink runs the registered domain linkers over the graph in
priority order: UI bindings to entity fields, entity fields to database
columns (synthesizing column nodes), routes to controllers and views.
Existing references only change when new evidence is stronger, so the
command is safe to re-run.`,
	Args: cobra.NoArgs,
	RunE: runCrosslink,
}

func init() {
	rootCmd.AddCommand(crosslinkCmd)
}

func runCrosslink(cmd *cobra.Command, args []string) error {
	s, _, err := persist.Load(globalConfig.Graph, persist.WithLoadLogger(globalLogger.Logger))
	if err != nil {
		return err
	}

	registry := reflink.DefaultRegistry(globalLogger.Logger)
	report, err := registry.Run(cmd.Context(), s)
	if err != nil {
		return err
	}

	if _, err := persist.Save(s, globalConfig.Graph); err != nil {
		return fmt.Errorf("writing linked graph: %w", err)
	}

	return outputResult(report, func() {
		for _, lr := range report.Linkers {
			fmt.Printf("%-12s proposed %4d  applied %4d\n", lr.Name, lr.Proposed, lr.Applied)
		}
		fmt.Printf("Applied %d references, synthesized %d nodes (%s)\n",
			report.Applied, report.Synthesized, report.Duration.Round(time.Millisecond))
	})
}

// =============================================================================
// STATS COMMAND
// =============================================================================

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show graph statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	s, report, err := persist.Load(globalConfig.Graph, persist.WithLoadLogger(globalLogger.Logger))
	if err != nil {
		return err
	}

	stats := s.Stats()
	byKind := make(map[string]int, len(stats.ByKind))
	for kind, count := range stats.ByKind {
		byKind[kind.String()] = count
	}
	out := struct {
		Graph        string         `json:"graph"`
		Nodes        int            `json:"nodes"`
		Files        int            `json:"files"`
		References   int            `json:"references"`
		ByKind       map[string]int `json:"by_kind"`
		SkippedLines int            `json:"skipped_lines,omitempty"`
	}{
		Graph:        globalConfig.Graph,
		Nodes:        stats.TotalNodes,
		Files:        stats.FileCount,
		References:   stats.ReferenceCount,
		ByKind:       byKind,
		SkippedLines: report.SkippedLines,
	}

	return outputResult(out, func() {
		fmt.Printf("Graph: %s\n", out.Graph)
		fmt.Printf("Nodes: %d across %d files, %d cross-domain references\n",
			out.Nodes, out.Files, out.References)
		for kind, count := range out.ByKind {
			fmt.Printf("  %-18s %d\n", kind, count)
		}
		if out.SkippedLines > 0 {
			fmt.Printf("Skipped %d malformed lines on load\n", out.SkippedLines)
		}
	})
}

// =============================================================================
// SEARCH COMMAND
// =============================================================================

var searchLimit int

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Find symbols by name",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().IntVar(&searchLimit, "limit", 20, "maximum results")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	s, _, err := persist.Load(globalConfig.Graph, persist.WithLoadLogger(globalLogger.Logger))
	if err != nil {
		return err
	}

	matches, err := s.Search(cmd.Context(), args[0], searchLimit)
	if err != nil {
		return err
	}

	return outputResult(matches, func() {
		for _, node := range matches {
			fmt.Printf("%-14s %-30s %s:%d\n", node.Kind, node.QualifiedName, node.FilePath, node.LineStart)
		}
		fmt.Printf("%d matches\n", len(matches))
	})
}
