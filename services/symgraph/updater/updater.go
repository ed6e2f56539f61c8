// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package updater applies incremental changes to a persisted symbol graph
// without a full rebuild.
//
// An update re-parses only the changed files, merges the results into the
// loaded graph in a single pass, re-resolves the nodes the change could have
// affected, and writes the graph back atomically. A batch of files costs one
// load and one write regardless of batch size.
//
// Resolution staleness contract: an update re-resolves new nodes, nodes
// whose edges touched the changed files, and nodes with unresolved raw
// references. A node whose references were already fully resolved elsewhere
// keeps its prior targets even if the update introduces a candidate that a
// full link pass would prefer on tie-break. Running the linker restores the
// canonical resolution.
package updater

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/symgraph/services/symgraph/ast"
	"github.com/AleutianAI/symgraph/services/symgraph/linker"
	"github.com/AleutianAI/symgraph/services/symgraph/persist"
	"github.com/AleutianAI/symgraph/services/symgraph/store"
)

// DefaultParseConcurrency bounds the parallel re-parse of changed files.
const DefaultParseConcurrency = 4

// Result summarizes an incremental update.
type Result struct {
	// RunID uniquely identifies this update in logs and reports.
	RunID string `json:"run_id"`

	// FilesUpdated is the number of files whose nodes were replaced.
	FilesUpdated int `json:"files_updated"`

	// NodesRemoved is the number of prior nodes discarded.
	NodesRemoved int `json:"nodes_removed"`

	// NodesAdded is the number of freshly parsed nodes merged in.
	NodesAdded int `json:"nodes_added"`

	// Reresolved is the number of nodes whose references were re-resolved,
	// including the new nodes.
	Reresolved int `json:"reresolved"`

	// FailedFiles lists files whose re-parse failed. Their prior nodes are
	// kept untouched.
	FailedFiles []string `json:"failed_files,omitempty"`

	// Duration is the wall-clock time of the update.
	Duration time.Duration `json:"duration"`
}

// Options configures an Updater.
type Options struct {
	// Concurrency bounds the parallel re-parse of changed files.
	Concurrency int

	// Logger receives progress and warning logs. Defaults to slog.Default.
	Logger *slog.Logger

	// StoreOptions are applied to the store the graph is loaded into.
	StoreOptions []store.Option
}

// Option mutates Options.
type Option func(*Options)

// WithConcurrency sets the parallel parse bound.
func WithConcurrency(n int) Option {
	return func(o *Options) {
		o.Concurrency = n
	}
}

// WithLogger sets the logger used by updates.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// WithStoreOptions forwards options to the underlying store.
func WithStoreOptions(opts ...store.Option) Option {
	return func(o *Options) {
		o.StoreOptions = append(o.StoreOptions, opts...)
	}
}

// DefaultOptions returns the default updater options.
func DefaultOptions() Options {
	return Options{
		Concurrency: DefaultParseConcurrency,
		Logger:      slog.Default(),
	}
}

// Updater applies incremental changes to a persisted symbol graph.
type Updater struct {
	opts Options
}

// New creates an Updater with the given options.
func New(opts ...Option) *Updater {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultParseConcurrency
	}
	return &Updater{opts: o}
}

// parsedFile is the outcome of re-parsing one changed file.
type parsedFile struct {
	path  string
	nodes []*ast.SymbolNode
}

// Update re-indexes the given files inside the persisted graph.
//
// Description:
//
//	Re-parses the files in parallel, then applies the whole batch in a
//	single merge: each file's prior nodes are discarded, the fresh nodes
//	take their place, affected references are re-resolved, and dependents
//	are rebuilt. The graph is written back via staging file and atomic
//	rename; a failure at any point leaves the on-disk graph untouched.
//
//	A file whose re-parse fails keeps its prior nodes and is reported in
//	Result.FailedFiles rather than failing the batch.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	files - Paths of the changed files. Files unknown to the graph are
//	    treated as additions.
//	parse - Produces the symbol nodes of one file.
//	graphPath - Path of the persisted graph to update in place.
//
// Outputs:
//
//	*Result - Update summary. Nil on error.
//	error - Nil parse function, load, cancellation, or write failure.
func (u *Updater) Update(ctx context.Context, files []string, parse ast.ParseFunc, graphPath string) (*Result, error) {
	start := time.Now()
	ctx, span := startUpdateSpan(ctx, "Update", graphPath, len(files))
	defer span.End()

	runID := uuid.NewString()
	logger := u.opts.Logger.With(slog.String("run_id", runID))

	res, err := u.update(ctx, files, parse, graphPath, runID, logger)
	elapsed := time.Since(start)

	added, removed := 0, 0
	if res != nil {
		res.Duration = elapsed
		added, removed = res.NodesAdded, res.NodesRemoved
	}
	setUpdateSpanResult(span, added, removed, err)
	recordUpdateMetrics(ctx, "update", added, removed, err, elapsed)

	if err != nil {
		logger.Error("incremental update failed", slog.String("error", err.Error()))
		return nil, err
	}

	logger.Info("incremental update complete",
		slog.Int("files_updated", res.FilesUpdated),
		slog.Int("nodes_removed", res.NodesRemoved),
		slog.Int("nodes_added", res.NodesAdded),
		slog.Int("reresolved", res.Reresolved),
		slog.Int("files_failed", len(res.FailedFiles)),
		slog.Duration("duration", elapsed),
	)
	return res, nil
}

// update is the operation body, separated so Update can uniformly record
// telemetry.
func (u *Updater) update(ctx context.Context, files []string, parse ast.ParseFunc, graphPath, runID string, logger *slog.Logger) (*Result, error) {
	if parse == nil {
		return nil, fmt.Errorf("parse function is nil")
	}
	if len(files) == 0 {
		return &Result{RunID: runID}, nil
	}

	s, _, err := u.load(graphPath, logger)
	if err != nil {
		return nil, err
	}

	parsed, failed, err := u.parseFiles(ctx, files, parse, logger)
	if err != nil {
		return nil, err
	}

	res := &Result{RunID: runID, FailedFiles: failed}
	if len(parsed) == 0 {
		return res, nil
	}

	// Everything below mutates only the in-memory store; the on-disk graph
	// changes solely through the atomic write at the end.

	// Identify, before the merge destroys the evidence, which kept nodes
	// the change can affect: nodes with an edge into a changed file, and
	// nodes with unresolved raw references a new symbol might satisfy.
	changedIDs := make(map[string]bool)
	for _, pf := range parsed {
		for _, node := range s.FindByFile(pf.path) {
			changedIDs[node.ID] = true
		}
	}
	affected := affectedNodeIDs(s, changedIDs)

	var newIDs []string
	for _, pf := range parsed {
		res.NodesRemoved += s.RemoveFile(pf.path)
		res.FilesUpdated++
		for _, node := range pf.nodes {
			if err := s.AddNode(node); err != nil {
				return nil, fmt.Errorf("merging node from %s: %w", pf.path, err)
			}
			newIDs = append(newIDs, node.ID)
			res.NodesAdded++
		}
	}

	r := linker.NewResolver(s)
	for _, id := range append(affected, newIDs...) {
		node, ok := s.Get(id)
		if !ok {
			// Affected node lived in a changed file under another path
			// spelling; its replacement is already in newIDs.
			continue
		}
		r.ResolveNode(node)
		res.Reresolved++
	}
	linker.RebuildDependents(s)

	if _, err := persist.Save(s, graphPath); err != nil {
		return nil, fmt.Errorf("writing updated graph: %w", err)
	}
	return res, nil
}

// Remove deletes a file's nodes from the persisted graph.
//
// Description:
//
//	Removes every node of the file, purges all edges touching the removed
//	nodes, and writes the graph back atomically. Removing a file the graph
//	does not know is a no-op, not an error, and skips the write.
//
// Outputs:
//
//	*Result - NodesRemoved carries the removal count, 0 for unknown files.
//	error - Load or write failure.
func (u *Updater) Remove(ctx context.Context, file, graphPath string) (*Result, error) {
	start := time.Now()
	ctx, span := startUpdateSpan(ctx, "Remove", graphPath, 1)
	defer span.End()

	runID := uuid.NewString()
	logger := u.opts.Logger.With(slog.String("run_id", runID))

	res, err := u.remove(file, graphPath, runID, logger)
	elapsed := time.Since(start)

	removed := 0
	if res != nil {
		res.Duration = elapsed
		removed = res.NodesRemoved
	}
	setUpdateSpanResult(span, 0, removed, err)
	recordUpdateMetrics(ctx, "remove", 0, removed, err, elapsed)

	if err != nil {
		logger.Error("file removal failed",
			slog.String("file", file),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	logger.Info("file removed from graph",
		slog.String("file", file),
		slog.Int("nodes_removed", res.NodesRemoved),
	)
	return res, nil
}

// remove is the operation body for Remove.
func (u *Updater) remove(file, graphPath, runID string, logger *slog.Logger) (*Result, error) {
	s, _, err := u.load(graphPath, logger)
	if err != nil {
		return nil, err
	}

	res := &Result{RunID: runID}
	res.NodesRemoved = s.RemoveFile(file)
	if res.NodesRemoved == 0 {
		return res, nil
	}
	res.FilesUpdated = 1

	if _, err := persist.Save(s, graphPath); err != nil {
		return nil, fmt.Errorf("writing updated graph: %w", err)
	}
	return res, nil
}

// load loads the persisted graph with the updater's store options.
func (u *Updater) load(graphPath string, logger *slog.Logger) (*store.Store, *persist.LoadReport, error) {
	loadOpts := []persist.LoadOption{persist.WithLoadLogger(logger)}
	if len(u.opts.StoreOptions) > 0 {
		loadOpts = append(loadOpts, persist.WithStoreOptions(u.opts.StoreOptions...))
	}

	s, report, err := persist.Load(graphPath, loadOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("loading graph %s: %w", graphPath, err)
	}
	return s, report, nil
}

// parseFiles re-parses the changed files in parallel.
//
// Per-file parse failures are logged and reported, never fatal; the caller
// keeps the failed files' prior nodes. Only context cancellation aborts the
// batch. Output order follows the input file order.
func (u *Updater) parseFiles(ctx context.Context, files []string, parse ast.ParseFunc, logger *slog.Logger) ([]parsedFile, []string, error) {
	results := make([]*parsedFile, len(files))
	var mu sync.Mutex
	var failed []string

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.opts.Concurrency)

	for i, file := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			nodes, err := parse(gctx, file)
			if err != nil {
				logger.Warn("file re-parse failed; keeping prior nodes",
					slog.String("file", file),
					slog.String("error", err.Error()),
				)
				mu.Lock()
				failed = append(failed, file)
				mu.Unlock()
				return nil
			}
			results[i] = &parsedFile{path: file, nodes: nodes}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	parsed := make([]parsedFile, 0, len(files))
	seen := make(map[string]bool, len(files))
	for _, pf := range results {
		if pf == nil || seen[pf.path] {
			continue
		}
		seen[pf.path] = true
		parsed = append(parsed, *pf)
	}
	sort.Strings(failed)
	return parsed, failed, nil
}

// affectedNodeIDs returns, sorted, the IDs of nodes an update to the given
// node set can affect: any node with a resolved edge into the set, and any
// node with at least one unresolved raw reference.
func affectedNodeIDs(s *store.Store, changedIDs map[string]bool) []string {
	var affected []string
	for _, node := range s.Nodes() {
		if changedIDs[node.ID] {
			continue
		}
		if touchesSet(node, changedIDs) || hasUnresolved(node) {
			affected = append(affected, node.ID)
		}
	}
	return affected
}

// touchesSet reports whether any resolved edge of the node targets the set.
func touchesSet(node *ast.SymbolNode, ids map[string]bool) bool {
	for _, target := range node.ResolvedTargets() {
		if ids[target] {
			return true
		}
	}
	return false
}

// hasUnresolved reports whether the node has raw references that did not
// resolve in the last pass.
func hasUnresolved(node *ast.SymbolNode) bool {
	return len(node.ResolvedCalls) < len(node.Raw.Calls) ||
		len(node.ResolvedBases) < len(node.Raw.Bases) ||
		len(node.ResolvedImports) < len(node.Raw.Imports)
}
