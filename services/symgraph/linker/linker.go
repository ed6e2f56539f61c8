// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package linker implements the dependency resolution pass over a persisted
// symbol graph.
//
// The pass loads the graph, resolves every node's raw call, base, and import
// references to concrete node IDs, rebuilds the reverse dependency lists,
// and writes the graph back atomically. Running the pass twice over the same
// graph produces the same result.
package linker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/symgraph/services/symgraph/persist"
	"github.com/AleutianAI/symgraph/services/symgraph/store"
)

// Result summarizes a dependency link pass.
type Result struct {
	// RunID uniquely identifies this pass in logs and reports.
	RunID string `json:"run_id"`

	// NodeCount is the number of nodes in the graph after the pass.
	NodeCount int `json:"node_count"`

	// ResolvedCount is the number of raw references that resolved to a
	// concrete node ID.
	ResolvedCount int `json:"resolved_count"`

	// SkippedLines is the number of malformed graph lines ignored on load.
	SkippedLines int `json:"skipped_lines,omitempty"`

	// Duration is the wall-clock time of the pass.
	Duration time.Duration `json:"duration"`
}

// Options configures a Linker.
type Options struct {
	// Logger receives progress and warning logs. Defaults to slog.Default.
	Logger *slog.Logger

	// StoreOptions are applied to the store the graph is loaded into.
	StoreOptions []store.Option
}

// Option mutates Options.
type Option func(*Options)

// WithLogger sets the logger used by the pass.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		if l != nil {
			o.Logger = l
		}
	}
}

// WithStoreOptions forwards options to the underlying store.
func WithStoreOptions(opts ...store.Option) Option {
	return func(o *Options) {
		o.StoreOptions = append(o.StoreOptions, opts...)
	}
}

// DefaultOptions returns the default linker options.
func DefaultOptions() Options {
	return Options{
		Logger: slog.Default(),
	}
}

// Linker runs dependency resolution passes.
type Linker struct {
	opts Options
}

// New creates a Linker with the given options.
func New(opts ...Option) *Linker {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Linker{opts: o}
}

// Run executes a full dependency link pass over the graph at graphPath.
//
// Description:
//
//	Loads the graph, resolves every node's raw references, replaces each
//	node's resolved lists and dependents wholesale, and writes the graph
//	back via a staging file and atomic rename. A failure after load leaves
//	the on-disk graph untouched.
//
// Inputs:
//
//	ctx - Context for cancellation. Checked between resolution batches.
//	graphPath - Path of the persisted graph to link in place.
//
// Outputs:
//
//	*Result - Pass summary. Nil on error.
//	error - Load, cancellation, or write failure.
func (l *Linker) Run(ctx context.Context, graphPath string) (*Result, error) {
	start := time.Now()
	ctx, span := startLinkSpan(ctx, graphPath)
	defer span.End()

	runID := uuid.NewString()
	logger := l.opts.Logger.With(slog.String("run_id", runID))
	logger.Info("link pass starting", slog.String("graph", graphPath))

	res, err := l.run(ctx, graphPath, runID, logger)
	elapsed := time.Since(start)
	if res != nil {
		res.Duration = elapsed
	}

	setLinkSpanResult(span, res, err)
	recordLinkMetrics(ctx, res, err, elapsed)

	if err != nil {
		logger.Error("link pass failed", slog.String("error", err.Error()))
		return nil, err
	}

	logger.Info("link pass complete",
		slog.Int("nodes", res.NodeCount),
		slog.Int("resolved", res.ResolvedCount),
		slog.Duration("duration", elapsed),
	)
	return res, nil
}

// run is the pass body, separated so Run can uniformly record telemetry.
func (l *Linker) run(ctx context.Context, graphPath, runID string, logger *slog.Logger) (*Result, error) {
	loadOpts := []persist.LoadOption{persist.WithLoadLogger(logger)}
	if len(l.opts.StoreOptions) > 0 {
		loadOpts = append(loadOpts, persist.WithStoreOptions(l.opts.StoreOptions...))
	}

	s, report, err := persist.Load(graphPath, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading graph %s: %w", graphPath, err)
	}

	resolved, err := Resolve(ctx, s)
	if err != nil {
		return nil, err
	}

	if _, err := persist.Save(s, graphPath); err != nil {
		return nil, fmt.Errorf("writing linked graph: %w", err)
	}

	return &Result{
		RunID:         runID,
		NodeCount:     s.Len(),
		ResolvedCount: resolved,
		SkippedLines:  report.SkippedLines,
	}, nil
}

// resolveCheckInterval is how many nodes are resolved between context checks.
const resolveCheckInterval = 1024

// Resolve runs dependency resolution over an in-memory store.
//
// Every node's resolved reference lists and dependents are replaced with the
// outcome of the current pass. The function is exported so the incremental
// updater can run the identical rules over its merged working set.
//
// Outputs:
//
//	int - The number of references that resolved.
//	error - Context cancellation only.
func Resolve(ctx context.Context, s *store.Store) (int, error) {
	r := NewResolver(s)

	resolved := 0
	for i, node := range s.Nodes() {
		if i%resolveCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
		}
		resolved += r.ResolveNode(node)
	}

	RebuildDependents(s)
	return resolved, nil
}
