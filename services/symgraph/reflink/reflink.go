// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package reflink links symbols across domain boundaries the dependency
// resolver cannot see: UI bindings to entity fields, entity fields to
// database columns, routes to controller methods and views.
//
// Domain linkers register with a Registry and run in ascending priority
// order over a loaded graph. Each linker proposes typed references with a
// confidence grade; the store keeps the highest-confidence evidence per
// edge, so re-running the registry never downgrades an existing reference
// and re-runs over an unchanged graph are no-ops.
//
// Linkers may synthesize nodes for targets that exist outside the indexed
// source tree, such as database columns. Synthesized node IDs are derived
// from the target's identity, so every linker run converges on the same
// node set.
package reflink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/symgraph/services/symgraph/ast"
	"github.com/AleutianAI/symgraph/services/symgraph/store"
)

// ErrDuplicateLinker is returned when a linker name is registered twice.
var ErrDuplicateLinker = errors.New("reflink: duplicate linker name")

// Linker proposes cross-domain references over a loaded graph.
//
// Implementations must be deterministic: the same graph must yield the
// same references in the same order. Linkers may add synthesized nodes to
// the store; they must tolerate those nodes already existing from a prior
// run.
type Linker interface {
	// Name identifies the linker in reports and metrics. Unique per
	// registry.
	Name() string

	// Priority orders linkers within a run; lower runs first.
	Priority() int

	// Link scans the store and returns the proposed references. It may
	// synthesize nodes but must not add references itself.
	Link(ctx context.Context, s *store.Store) ([]ast.Reference, error)
}

// LinkerReport summarizes one linker's part of a registry run.
type LinkerReport struct {
	// Name is the linker's registered name.
	Name string `json:"name"`

	// Priority is the linker's run position.
	Priority int `json:"priority"`

	// Proposed is the number of references the linker produced.
	Proposed int `json:"proposed"`

	// Applied is the number of references that were new or upgraded an
	// existing edge's confidence.
	Applied int `json:"applied"`
}

// RunReport summarizes one registry run.
type RunReport struct {
	// RunID uniquely identifies the run in logs and reports.
	RunID string `json:"run_id"`

	// Linkers holds the per-linker outcomes in run order.
	Linkers []LinkerReport `json:"linkers"`

	// Applied is the total number of references that changed the graph.
	Applied int `json:"applied"`

	// Synthesized is the number of nodes added for external-domain
	// targets during this run.
	Synthesized int `json:"synthesized"`

	// Duration is the wall-clock time of the run.
	Duration time.Duration `json:"duration"`
}

// Registry holds the domain linkers and runs them over a graph.
//
// Thread Safety:
//
//	Register and Run must not race; the expected use is to register all
//	linkers during setup and then run.
type Registry struct {
	linkers []Linker
	names   map[string]bool
	logger  *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		names:  make(map[string]bool),
		logger: logger,
	}
}

// DefaultRegistry returns a registry with the built-in domain linkers.
func DefaultRegistry(logger *slog.Logger) *Registry {
	r := NewRegistry(logger)

	// Names are distinct by construction, so Register cannot fail here.
	_ = r.Register(NewBindingLinker())
	_ = r.Register(NewColumnLinker())
	_ = r.Register(NewRouteLinker())
	return r
}

// Register adds a linker to the registry.
//
// Outputs:
//
//	error - ErrDuplicateLinker if the name is already registered.
func (r *Registry) Register(l Linker) error {
	if r.names[l.Name()] {
		return fmt.Errorf("%w: %s", ErrDuplicateLinker, l.Name())
	}
	r.names[l.Name()] = true
	r.linkers = append(r.linkers, l)

	// Run order: ascending priority, ties broken by name so runs are
	// stable regardless of registration order.
	sort.SliceStable(r.linkers, func(i, j int) bool {
		if r.linkers[i].Priority() != r.linkers[j].Priority() {
			return r.linkers[i].Priority() < r.linkers[j].Priority()
		}
		return r.linkers[i].Name() < r.linkers[j].Name()
	})
	return nil
}

// Linkers returns the registered linkers in run order.
func (r *Registry) Linkers() []Linker {
	out := make([]Linker, len(r.linkers))
	copy(out, r.linkers)
	return out
}

// Run executes every registered linker over the store in priority order.
//
// Description:
//
//	Each linker scans the store and proposes references; the registry
//	applies them through the store's confidence discipline, so an existing
//	edge only changes when the new evidence is strictly stronger. Later
//	linkers observe nodes synthesized by earlier ones.
//
// Inputs:
//
//	ctx - Context for cancellation. Checked between linkers.
//	s - The loaded graph to link. Mutated in place.
//
// Outputs:
//
//	*RunReport - Per-linker and total outcomes. Nil on error.
//	error - Cancellation or a linker failure, wrapped with the linker name.
func (r *Registry) Run(ctx context.Context, s *store.Store) (*RunReport, error) {
	start := time.Now()
	m := getMetrics()

	report := &RunReport{
		RunID: uuid.NewString(),
	}
	logger := r.logger.With(slog.String("run_id", report.RunID))

	nodesBefore := s.Len()

	for _, l := range r.linkers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		linkerStart := time.Now()
		refs, err := l.Link(ctx, s)
		if err != nil {
			m.RunsTotal.WithLabelValues(l.Name(), "error").Inc()
			return nil, fmt.Errorf("linker %s: %w", l.Name(), err)
		}

		lr := LinkerReport{
			Name:     l.Name(),
			Priority: l.Priority(),
			Proposed: len(refs),
		}
		for i := range refs {
			applied, err := s.AddReference(refs[i])
			if err != nil {
				return nil, fmt.Errorf("linker %s: applying reference: %w", l.Name(), err)
			}
			if applied {
				lr.Applied++
				m.ReferencesTotal.WithLabelValues(l.Name(), refs[i].Confidence.String()).Inc()
			}
		}

		m.RunsTotal.WithLabelValues(l.Name(), "success").Inc()
		m.LinkDuration.WithLabelValues(l.Name()).Observe(time.Since(linkerStart).Seconds())

		logger.Info("linker pass complete",
			slog.String("linker", l.Name()),
			slog.Int("proposed", lr.Proposed),
			slog.Int("applied", lr.Applied),
		)

		report.Linkers = append(report.Linkers, lr)
		report.Applied += lr.Applied
	}

	report.Synthesized = s.Len() - nodesBefore
	report.Duration = time.Since(start)
	if report.Synthesized > 0 {
		m.SynthesizedTotal.Add(float64(report.Synthesized))
	}

	logger.Info("reference linking complete",
		slog.Int("linkers", len(report.Linkers)),
		slog.Int("applied", report.Applied),
		slog.Int("synthesized", report.Synthesized),
		slog.Duration("duration", report.Duration),
	)
	return report, nil
}
