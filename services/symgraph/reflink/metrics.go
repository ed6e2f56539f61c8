// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package reflink

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for the reference linking framework.
//
// Thread Safety: Safe for concurrent use (Prometheus metrics are thread-safe).
type Metrics struct {
	// ReferencesTotal counts applied references by linker and confidence.
	ReferencesTotal *prometheus.CounterVec

	// SynthesizedTotal counts nodes synthesized for external-domain targets.
	SynthesizedTotal prometheus.Counter

	// RunsTotal counts linker passes by linker and outcome.
	RunsTotal *prometheus.CounterVec

	// LinkDuration observes per-linker pass duration.
	LinkDuration *prometheus.HistogramVec
}

var (
	metricsOnce sync.Once
	metrics     *Metrics
)

// getMetrics returns the package metrics, registering them on first use.
// Registration uses the default registerer, so it must happen exactly once
// per process.
func getMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = &Metrics{
			ReferencesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "symgraph",
					Subsystem: "reflink",
					Name:      "references_total",
					Help:      "Applied cross-domain references by linker and confidence",
				},
				[]string{"linker", "confidence"},
			),

			SynthesizedTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Namespace: "symgraph",
					Subsystem: "reflink",
					Name:      "synthesized_nodes_total",
					Help:      "Nodes synthesized for targets outside the indexed tree",
				},
			),

			RunsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "symgraph",
					Subsystem: "reflink",
					Name:      "runs_total",
					Help:      "Linker passes by linker and outcome",
				},
				[]string{"linker", "outcome"},
			),

			LinkDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: "symgraph",
					Subsystem: "reflink",
					Name:      "duration_seconds",
					Help:      "Per-linker pass duration",
					Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
				},
				[]string{"linker"},
			),
		}
	})
	return metrics
}
