// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package linker

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
	tracer = otel.Tracer("symgraph.linker")
	meter  = otel.Meter("symgraph.linker")

	linkDuration  metric.Float64Histogram
	linkRuns      metric.Int64Counter
	linkResolved  metric.Int64Counter
	metricsOnce   sync.Once
	metricsInitOK bool
)

// initMetrics lazily initializes the package metrics instruments.
func initMetrics() bool {
	metricsOnce.Do(func() {
		var err error

		linkDuration, err = meter.Float64Histogram(
			"symgraph_link_duration_seconds",
			metric.WithDescription("Duration of dependency link passes"),
			metric.WithUnit("s"),
		)
		if err != nil {
			return
		}

		linkRuns, err = meter.Int64Counter(
			"symgraph_link_runs_total",
			metric.WithDescription("Total dependency link passes by outcome"),
		)
		if err != nil {
			return
		}

		linkResolved, err = meter.Int64Counter(
			"symgraph_link_resolved_refs_total",
			metric.WithDescription("Total references resolved by link passes"),
		)
		if err != nil {
			return
		}

		metricsInitOK = true
	})
	return metricsInitOK
}

// startLinkSpan starts the span for a link pass.
func startLinkSpan(ctx context.Context, graphPath string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "linker.Run",
		trace.WithAttributes(
			attribute.String("graph.path", graphPath),
		),
	)
}

// setLinkSpanResult records the outcome attributes on the link span.
func setLinkSpanResult(span trace.Span, res *Result, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetAttributes(
		attribute.Int("link.nodes", res.NodeCount),
		attribute.Int("link.resolved", res.ResolvedCount),
	)
	span.SetStatus(codes.Ok, "")
}

// recordLinkMetrics records the duration and counters for a link pass.
func recordLinkMetrics(ctx context.Context, res *Result, err error, elapsed time.Duration) {
	if !initMetrics() {
		return
	}

	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))

	linkDuration.Record(ctx, elapsed.Seconds(), attrs)
	linkRuns.Add(ctx, 1, attrs)
	if res != nil {
		linkResolved.Add(ctx, int64(res.ResolvedCount), attrs)
	}
}
