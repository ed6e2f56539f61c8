// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package updater

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("symgraph.updater")
	meter  = otel.Meter("symgraph.updater")

	updateDuration metric.Float64Histogram
	updateRuns     metric.Int64Counter
	updateNodes    metric.Int64Counter
	metricsOnce    sync.Once
	metricsInitOK  bool
)

// initMetrics lazily initializes the package metrics instruments.
func initMetrics() bool {
	metricsOnce.Do(func() {
		var err error

		updateDuration, err = meter.Float64Histogram(
			"symgraph_update_duration_seconds",
			metric.WithDescription("Duration of incremental graph updates"),
			metric.WithUnit("s"),
		)
		if err != nil {
			return
		}

		updateRuns, err = meter.Int64Counter(
			"symgraph_update_runs_total",
			metric.WithDescription("Total incremental updates by operation and outcome"),
		)
		if err != nil {
			return
		}

		updateNodes, err = meter.Int64Counter(
			"symgraph_update_nodes_total",
			metric.WithDescription("Total nodes added and removed by incremental updates"),
		)
		if err != nil {
			return
		}

		metricsInitOK = true
	})
	return metricsInitOK
}

// startUpdateSpan starts the span for an incremental update operation.
func startUpdateSpan(ctx context.Context, op, graphPath string, fileCount int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "updater."+op,
		trace.WithAttributes(
			attribute.String("graph.path", graphPath),
			attribute.Int("update.files", fileCount),
		),
	)
}

// setUpdateSpanResult records the outcome attributes on the update span.
func setUpdateSpanResult(span trace.Span, added, removed int, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetAttributes(
		attribute.Int("update.nodes_added", added),
		attribute.Int("update.nodes_removed", removed),
	)
	span.SetStatus(codes.Ok, "")
}

// recordUpdateMetrics records the duration and counters for an update.
func recordUpdateMetrics(ctx context.Context, op string, added, removed int, err error, elapsed time.Duration) {
	if !initMetrics() {
		return
	}

	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	)

	updateDuration.Record(ctx, elapsed.Seconds(), attrs)
	updateRuns.Add(ctx, 1, attrs)
	if err == nil {
		updateNodes.Add(ctx, int64(added), metric.WithAttributes(
			attribute.String("operation", op),
			attribute.String("direction", "added"),
		))
		updateNodes.Add(ctx, int64(removed), metric.WithAttributes(
			attribute.String("operation", op),
			attribute.String("direction", "removed"),
		))
	}
}
