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
	"context"
	"sort"
	"strings"

	"github.com/AleutianAI/symgraph/services/symgraph/ast"
	"github.com/AleutianAI/symgraph/services/symgraph/store"
)

// BindingLinker links UI binding nodes to the entity fields they render.
//
// Confidence grading, strongest rule first:
//   - HIGH: the binding carries an explicit "binds_to" annotation naming
//     the field.
//   - MEDIUM: the binding expression is a dotted path ("user.email")
//     whose entity and field parts match a field's qualified name.
//   - LOW: the bare expression exactly matches a unique field name.
//   - INFERRED: the expression merely contains a field name as a
//     substring.
//
// Ambiguous matches resolve to the candidate with the smallest node ID, so
// runs are deterministic.
type BindingLinker struct{}

// NewBindingLinker creates the UI binding linker.
func NewBindingLinker() *BindingLinker {
	return &BindingLinker{}
}

// Name implements Linker.
func (l *BindingLinker) Name() string { return "ui-binding" }

// Priority implements Linker. Bindings run first so later linkers can
// traverse binding edges.
func (l *BindingLinker) Priority() int { return 10 }

// fieldIndex holds entity field lookups keyed by lowercased names.
type fieldIndex struct {
	byQualified map[string][]*ast.SymbolNode
	byName      map[string][]*ast.SymbolNode
	all         []*ast.SymbolNode
}

// buildFieldIndex indexes the store's entity fields. Candidate lists keep
// the store's ID ordering.
func buildFieldIndex(s *store.Store) *fieldIndex {
	idx := &fieldIndex{
		byQualified: make(map[string][]*ast.SymbolNode),
		byName:      make(map[string][]*ast.SymbolNode),
	}
	for _, f := range s.FindByKind(ast.KindEntityField) {
		idx.all = append(idx.all, f)
		if q := strings.ToLower(f.QualifiedName); q != "" {
			idx.byQualified[q] = append(idx.byQualified[q], f)
		}
		if n := strings.ToLower(f.Name); n != "" {
			idx.byName[n] = append(idx.byName[n], f)
		}
	}
	return idx
}

// Link implements Linker.
func (l *BindingLinker) Link(ctx context.Context, s *store.Store) ([]ast.Reference, error) {
	idx := buildFieldIndex(s)
	if len(idx.all) == 0 {
		return nil, nil
	}

	var refs []ast.Reference
	for _, binding := range s.FindByKind(ast.KindUIBinding) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if ref, ok := l.linkBinding(binding, idx); ok {
			refs = append(refs, ref)
		}
	}
	sortRefs(refs)
	return refs, nil
}

// linkBinding resolves one binding node against the field index.
func (l *BindingLinker) linkBinding(binding *ast.SymbolNode, idx *fieldIndex) (ast.Reference, bool) {
	expr := binding.Metadata["expression"]
	if expr == "" {
		expr = binding.Name
	}

	if target := binding.Metadata["binds_to"]; target != "" {
		if f, ok := lookupField(idx, target); ok {
			return bindingRef(binding, f, ast.ConfidenceHigh, expr, "annotation"), true
		}
	}

	entity, field := splitBinding(expr)
	if field == "" {
		return ast.Reference{}, false
	}

	if entity != "" {
		qualified := strings.ToLower(entity + "." + field)
		if f, ok := firstField(idx.byQualified[qualified]); ok {
			return bindingRef(binding, f, ast.ConfidenceMedium, expr, "qualified"), true
		}
	}

	if f, ok := firstField(idx.byName[strings.ToLower(field)]); ok {
		return bindingRef(binding, f, ast.ConfidenceLow, expr, "name"), true
	}

	// Last resort: a field name contained in the expression.
	lower := strings.ToLower(expr)
	var candidates []*ast.SymbolNode
	for _, f := range idx.all {
		if f.Name != "" && strings.Contains(lower, strings.ToLower(f.Name)) {
			candidates = append(candidates, f)
		}
	}
	if f, ok := firstField(candidates); ok {
		return bindingRef(binding, f, ast.ConfidenceInferred, expr, "substring"), true
	}

	return ast.Reference{}, false
}

// lookupField resolves an explicit annotation, qualified form first.
func lookupField(idx *fieldIndex, target string) (*ast.SymbolNode, bool) {
	key := strings.ToLower(strings.TrimSpace(target))
	if f, ok := firstField(idx.byQualified[key]); ok {
		return f, true
	}
	return firstField(idx.byName[key])
}

// firstField picks the candidate with the smallest node ID.
func firstField(candidates []*ast.SymbolNode) (*ast.SymbolNode, bool) {
	if len(candidates) == 0 {
		return nil, false
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.ID < best.ID {
			best = c
		}
	}
	return best, true
}

// bindingRef builds a BINDS_TO reference with its evidence.
func bindingRef(binding, field *ast.SymbolNode, conf ast.Confidence, expr, rule string) ast.Reference {
	return ast.Reference{
		SourceID:   binding.ID,
		TargetID:   field.ID,
		Relation:   ast.RelationBindsTo,
		Confidence: conf,
		Evidence: map[string]string{
			"expression": expr,
			"rule":       rule,
		},
	}
}

// sortRefs orders references by key for deterministic output.
func sortRefs(refs []ast.Reference) {
	sort.Slice(refs, func(i, j int) bool {
		return refs[i].Key() < refs[j].Key()
	})
}
