// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package indexer implements pass 1 of graph construction: concurrent
// parsing of source files into raw, unresolved symbol nodes streamed to the
// canonical graph file.
//
// A bounded worker pool runs the external parse function; a single dedicated
// writer consumes completed per-file batches from a bounded queue and appends
// each node as one NDJSON record to a staging file. This decouples parse
// latency variance from I/O: completion order need not match write order,
// because the format is append-only and order-independent for correctness.
//
// A parse failure for one file is caught at the worker boundary, logged, and
// contributes zero nodes for that file; it never aborts the run. On
// completion (including cancellation, after draining the writer queue) the
// staging file is atomically renamed to the canonical graph file.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/symgraph/services/symgraph/ast"
	"github.com/AleutianAI/symgraph/services/symgraph/persist"
)

// Default configuration values.
const (
	// DefaultQueueSize is the default capacity of the batch queue between
	// parse workers and the writer.
	DefaultQueueSize = 64
)

// DefaultWorkers returns the default parse worker count: min(4, cores).
func DefaultWorkers() int {
	if n := runtime.NumCPU(); n < 4 {
		return n
	}
	return 4
}

// Options configures Indexer behavior.
type Options struct {
	// Workers is the number of parallel parse workers.
	// Default: min(4, available cores)
	Workers int

	// QueueSize is the capacity of the batch queue feeding the writer.
	// Default: 64
	QueueSize int

	// Logger receives per-file parse warnings and run summaries.
	// Default: slog.Default()
	Logger *slog.Logger
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		Workers:   DefaultWorkers(),
		QueueSize: DefaultQueueSize,
		Logger:    slog.Default(),
	}
}

// Option is a functional option for configuring Indexer.
type Option func(*Options)

// WithWorkers sets the number of parallel parse workers.
func WithWorkers(n int) Option {
	return func(o *Options) {
		o.Workers = n
	}
}

// WithQueueSize sets the batch queue capacity.
func WithQueueSize(n int) Option {
	return func(o *Options) {
		o.QueueSize = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// Result contains statistics about an index run.
type Result struct {
	// RunID is a unique identifier for this run, attached to all log
	// records for correlation.
	RunID string

	// NodeCount is the number of nodes written to the graph file.
	NodeCount int

	// FilesProcessed is the number of files successfully parsed.
	FilesProcessed int

	// FailedFiles lists files whose parse failed; each contributed zero
	// nodes. Sorted for deterministic reporting.
	FailedFiles []string

	// Incomplete is true if the run was cancelled before all files were
	// parsed. The written snapshot is still internally consistent.
	Incomplete bool

	// Duration is how long the run took.
	Duration time.Duration
}

// Indexer runs the concurrent parse pass.
//
// The indexer is stateless and can be reused across runs. Each Run call
// operates independently.
type Indexer struct {
	options Options
}

// New creates a new Indexer with the given options.
//
// Example:
//
//	idx := indexer.New(
//	    indexer.WithWorkers(8),
//	    indexer.WithLogger(logger),
//	)
func New(opts ...Option) *Indexer {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	if options.Workers <= 0 {
		options.Workers = DefaultWorkers()
	}
	if options.QueueSize <= 0 {
		options.QueueSize = DefaultQueueSize
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}

	return &Indexer{options: options}
}

// fileBatch is one file's completed parse output, queued for the writer.
type fileBatch struct {
	path  string
	nodes []*ast.SymbolNode
}

// Run parses the given files concurrently and writes the raw graph.
//
// Description:
//
//	Fans the files across the worker pool; each worker calls parse and
//	queues the resulting batch. The single writer appends records to a
//	staging file which is atomically renamed to outputPath at the end.
//	Nodes are written with raw references only; resolution is pass 2.
//
// Inputs:
//
//	ctx - Context for cancellation. On cancellation, in-flight batches are
//	      drained and the snapshot is still committed; the result is
//	      marked Incomplete.
//	files - Source files to parse.
//	parse - The external parse contract. Must not be nil.
//	outputPath - Destination for the canonical graph file.
//
// Outputs:
//
//	*Result - Counts, failed files, run ID.
//	error - Non-nil only for fatal failures (write error, nil parse).
//	        The previous canonical file is untouched on error.
func (ix *Indexer) Run(ctx context.Context, files []string, parse ast.ParseFunc, outputPath string) (*Result, error) {
	if parse == nil {
		return nil, fmt.Errorf("parse function is nil")
	}

	ctx, span := startIndexSpan(ctx, len(files))
	defer span.End()

	start := time.Now()
	result := &Result{RunID: uuid.NewString()}
	logger := ix.options.Logger.With(slog.String("run_id", result.RunID))

	logger.Info("starting index run",
		slog.Int("files", len(files)),
		slog.Int("workers", ix.options.Workers),
	)

	sw, err := persist.NewSnapshotWriter(outputPath)
	if err != nil {
		return nil, err
	}

	jobs := make(chan string)
	batches := make(chan fileBatch, ix.options.QueueSize)

	// Feed jobs; stop early on cancellation.
	go func() {
		defer close(jobs)
		for _, f := range files {
			select {
			case jobs <- f:
			case <-ctx.Done():
				return
			}
		}
	}()

	// Worker pool. A parse failure is converted to a zero-node
	// contribution here and never crosses the worker boundary.
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < ix.options.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				if ctx.Err() != nil {
					return
				}

				nodes, parseErr := parse(ctx, path)
				if parseErr != nil {
					logger.Warn("parse failed, skipping file",
						slog.String("path", path),
						slog.String("error", parseErr.Error()),
					)
					mu.Lock()
					result.FailedFiles = append(result.FailedFiles, path)
					mu.Unlock()
					continue
				}

				batches <- fileBatch{path: path, nodes: nodes}
			}
		}()
	}

	// Close the queue once all workers are done.
	go func() {
		wg.Wait()
		close(batches)
	}()

	// Single writer: serializes all appends so the output never contains
	// an interleaved or partial record. Always drains the queue, even
	// after a write failure, so workers are never blocked on send.
	var writeErr error
	for batch := range batches {
		if writeErr != nil {
			continue
		}
		for _, node := range batch.nodes {
			if node == nil {
				continue
			}
			if err := sw.WriteNode(node); err != nil {
				writeErr = err
				break
			}
			result.NodeCount++
		}
		if writeErr == nil {
			result.FilesProcessed++
		}
	}

	if writeErr != nil {
		sw.Abort()
		recordIndexMetrics(ctx, time.Since(start), result.NodeCount, len(result.FailedFiles), false)
		return nil, fmt.Errorf("writing graph: %w", writeErr)
	}

	if err := sw.Commit(); err != nil {
		recordIndexMetrics(ctx, time.Since(start), result.NodeCount, len(result.FailedFiles), false)
		return nil, err
	}

	result.Incomplete = ctx.Err() != nil
	result.Duration = time.Since(start)
	sort.Strings(result.FailedFiles)

	setIndexSpanResult(span, result.NodeCount, len(result.FailedFiles), result.Incomplete)
	recordIndexMetrics(ctx, result.Duration, result.NodeCount, len(result.FailedFiles), true)

	logger.Info("index run complete",
		slog.Int("nodes", result.NodeCount),
		slog.Int("files_processed", result.FilesProcessed),
		slog.Int("files_failed", len(result.FailedFiles)),
		slog.Bool("incomplete", result.Incomplete),
		slog.Duration("duration", result.Duration),
	)

	return result, nil
}
