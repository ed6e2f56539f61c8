// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package indexer

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for indexing operations.
var (
	tracer = otel.Tracer("symgraph.indexer")
	meter  = otel.Meter("symgraph.indexer")
)

// Metrics for indexing operations.
var (
	indexLatency metric.Float64Histogram
	indexTotal   metric.Int64Counter
	nodesWritten metric.Int64Histogram
	filesFailed  metric.Int64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		indexLatency, err = meter.Float64Histogram(
			"symgraph_index_duration_seconds",
			metric.WithDescription("Duration of full index runs"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		indexTotal, err = meter.Int64Counter(
			"symgraph_index_runs_total",
			metric.WithDescription("Total number of index runs"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		nodesWritten, err = meter.Int64Histogram(
			"symgraph_index_nodes_written",
			metric.WithDescription("Number of nodes written per index run"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		filesFailed, err = meter.Int64Histogram(
			"symgraph_index_files_failed",
			metric.WithDescription("Number of files that failed to parse per index run"),
		)
		if err != nil {
			metricsErr = err
		}
	})
	return metricsErr
}

// startIndexSpan starts the span for an index run.
func startIndexSpan(ctx context.Context, fileCount int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "indexer.Run",
		trace.WithAttributes(
			attribute.Int("files_total", fileCount),
		),
	)
}

// setIndexSpanResult records the outcome attributes on the run span.
func setIndexSpanResult(span trace.Span, nodes, failed int, incomplete bool) {
	span.SetAttributes(
		attribute.Int("nodes_written", nodes),
		attribute.Int("files_failed", failed),
		attribute.Bool("incomplete", incomplete),
	)
}

// recordIndexMetrics records the instruments for a completed run.
func recordIndexMetrics(ctx context.Context, duration time.Duration, nodes, failed int, success bool) {
	if initMetrics() != nil {
		return
	}

	status := "success"
	if !success {
		status = "failure"
	}
	attrs := metric.WithAttributes(attribute.String("status", status))

	indexLatency.Record(ctx, duration.Seconds(), attrs)
	indexTotal.Add(ctx, 1, attrs)
	nodesWritten.Record(ctx, int64(nodes), attrs)
	filesFailed.Record(ctx, int64(failed), attrs)
}
