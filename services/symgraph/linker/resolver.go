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
	"path"
	"sort"
	"strings"

	"github.com/AleutianAI/symgraph/services/symgraph/ast"
	"github.com/AleutianAI/symgraph/services/symgraph/store"
)

// Resolver turns raw, name-based references into concrete target node IDs.
//
// A resolver is built once against a store snapshot and applied to any
// number of nodes. The incremental updater builds a resolver over its merged
// working set so single-file updates use the identical tie-break rules as a
// full resolution pass.
//
// Tie-break rules:
//   - Calls: prefer a candidate in the caller's own file; among the rest,
//     pick the lexicographically smallest node ID. The rule is
//     content-addressed, so resolution is independent of input file order.
//   - Bases: same tie-break, but candidates are first filtered to
//     class/interface/struct kinds, falling back to the unfiltered pool
//     only if no type-like candidate exists.
//   - Imports: resolved to a FILE node whose stem or dotted module path
//     suffix-matches the import string. No same-file preference, since imports
//     are inherently cross-file.
//
// Unresolvable references are left unresolved; that is the expected outcome
// for third-party symbols, not an error.
type Resolver struct {
	// byName maps symbol name to candidate nodes, excluding FILE and
	// IMPORT kinds. Candidate lists are sorted by ID.
	byName map[string][]*ast.SymbolNode

	// files holds FILE nodes with precomputed match keys, sorted by ID.
	files []fileEntry
}

// fileEntry is a FILE node with its precomputed import match keys.
type fileEntry struct {
	id string

	// stem is the base file name without extension, e.g. "models".
	stem string

	// dotted is the path without extension with separators as dots,
	// e.g. "app.orm.models".
	dotted string
}

// NewResolver builds a resolver over the given store snapshot.
func NewResolver(s *store.Store) *Resolver {
	r := &Resolver{
		byName: make(map[string][]*ast.SymbolNode),
	}

	for _, node := range s.Nodes() {
		switch node.Kind {
		case ast.KindFile:
			r.files = append(r.files, newFileEntry(node))
		case ast.KindImport:
			// Imports are reference sites, never resolution targets.
		default:
			r.byName[node.Name] = append(r.byName[node.Name], node)
		}
	}

	// store.Nodes() iterates in ID order, so candidate lists and the file
	// list are already sorted by ID.
	return r
}

// newFileEntry precomputes the import match keys for a FILE node.
func newFileEntry(node *ast.SymbolNode) fileEntry {
	p := node.FilePath
	if ext := path.Ext(p); ext != "" {
		p = strings.TrimSuffix(p, ext)
	}
	return fileEntry{
		id:     node.ID,
		stem:   path.Base(p),
		dotted: strings.ReplaceAll(p, "/", "."),
	}
}

// ResolveNode resolves all raw references of the node in place.
//
// Description:
//
//	Replaces (never appends to) the node's ResolvedCalls, ResolvedBases,
//	and ResolvedImports with the current resolution outcome, so repeated
//	passes converge on the graph's true current state.
//
// Outputs:
//
//	int - The number of references that resolved.
func (r *Resolver) ResolveNode(node *ast.SymbolNode) int {
	resolved := 0

	node.ResolvedCalls = nil
	for _, name := range node.Raw.Calls {
		if id, ok := r.resolveName(name, node.FilePath, false); ok {
			node.ResolvedCalls = append(node.ResolvedCalls, id)
			resolved++
		}
	}

	node.ResolvedBases = nil
	for _, name := range node.Raw.Bases {
		if id, ok := r.resolveName(name, node.FilePath, true); ok {
			node.ResolvedBases = append(node.ResolvedBases, id)
			resolved++
		}
	}

	node.ResolvedImports = nil
	for _, imp := range node.Raw.Imports {
		if id, ok := r.ResolveImport(imp); ok {
			node.ResolvedImports = append(node.ResolvedImports, id)
			resolved++
		}
	}

	return resolved
}

// resolveName resolves a call or base name against the candidate index.
//
// When typeLike is true, candidates are first narrowed to
// class/interface/struct kinds; the unfiltered pool is the fallback.
func (r *Resolver) resolveName(name, callerFile string, typeLike bool) (string, bool) {
	candidates := r.byName[name]
	if len(candidates) == 0 {
		return "", false
	}

	pool := candidates
	if typeLike {
		var typed []*ast.SymbolNode
		for _, c := range candidates {
			if c.Kind.IsTypeLike() {
				typed = append(typed, c)
			}
		}
		if len(typed) > 0 {
			pool = typed
		}
	}

	// Same-file candidates win outright.
	for _, c := range pool {
		if c.FilePath != "" && c.FilePath == callerFile {
			return c.ID, true
		}
	}

	// Otherwise the lexicographically smallest ID; the pool is sorted.
	return pool[0].ID, true
}

// ResolveImport resolves an import string to a FILE node ID.
//
// Matches when the import string equals a file's stem, equals its dotted
// module path, or is a dotted suffix of it. Ties break to the smallest ID.
func (r *Resolver) ResolveImport(imp string) (string, bool) {
	if imp == "" {
		return "", false
	}

	for _, f := range r.files {
		if f.stem == imp || f.dotted == imp || strings.HasSuffix(f.dotted, "."+imp) {
			return f.id, true
		}
	}
	return "", false
}

// RebuildDependents replaces every node's Dependents with the exact reverse
// of the current resolved forward edges.
//
// Description:
//
//	Dependents are derived state: this function is the single source of
//	truth for a full pass. Each target's list is replaced, never appended
//	to, so repeated runs are idempotent. Lists are deduplicated and
//	sorted for deterministic serialization.
func RebuildDependents(s *store.Store) {
	incoming := make(map[string]map[string]bool)

	nodes := s.Nodes()
	for _, node := range nodes {
		for _, target := range node.ResolvedTargets() {
			if target == node.ID {
				continue
			}
			set, ok := incoming[target]
			if !ok {
				set = make(map[string]bool)
				incoming[target] = set
			}
			set[node.ID] = true
		}
	}

	for _, node := range nodes {
		set := incoming[node.ID]
		if len(set) == 0 {
			node.Dependents = nil
			continue
		}
		deps := make([]string, 0, len(set))
		for id := range set {
			deps = append(deps, id)
		}
		sort.Strings(deps)
		node.Dependents = deps
	}
}
