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
	"strings"

	"github.com/AleutianAI/symgraph/services/symgraph/ast"
	"github.com/AleutianAI/symgraph/services/symgraph/store"
)

// RouteLinker ties controller methods to the pages they serve and the views
// they render.
//
// Two edge kinds:
//   - HANDLES: a controller method whose "route" metadata matches a page's
//     route (HIGH), or whose route's last segment matches the page name
//     (MEDIUM).
//   - RETURNS_VIEW: a controller method whose "view" metadata names a page
//     or UI component (HIGH), or whose name suggests the view by the
//     show/render prefix convention (INFERRED).
type RouteLinker struct{}

// NewRouteLinker creates the route linker.
func NewRouteLinker() *RouteLinker {
	return &RouteLinker{}
}

// Name implements Linker.
func (l *RouteLinker) Name() string { return "route" }

// Priority implements Linker. Runs last; it only consumes existing nodes.
func (l *RouteLinker) Priority() int { return 30 }

// viewIndex holds page and component lookups for route resolution.
type viewIndex struct {
	pagesByRoute map[string][]*ast.SymbolNode
	pagesByName  map[string][]*ast.SymbolNode
	viewsByName  map[string][]*ast.SymbolNode
}

// buildViewIndex indexes pages and UI components. Candidate lists keep the
// store's ID ordering.
func buildViewIndex(s *store.Store) *viewIndex {
	idx := &viewIndex{
		pagesByRoute: make(map[string][]*ast.SymbolNode),
		pagesByName:  make(map[string][]*ast.SymbolNode),
		viewsByName:  make(map[string][]*ast.SymbolNode),
	}
	for _, page := range s.FindByKind(ast.KindPage) {
		if route := page.Metadata["route"]; route != "" {
			key := normalizeRoute(route)
			idx.pagesByRoute[key] = append(idx.pagesByRoute[key], page)
		}
		name := strings.ToLower(page.Name)
		idx.pagesByName[name] = append(idx.pagesByName[name], page)
		idx.viewsByName[name] = append(idx.viewsByName[name], page)
	}
	for _, comp := range s.FindByKind(ast.KindUIComponent) {
		name := strings.ToLower(comp.Name)
		idx.viewsByName[name] = append(idx.viewsByName[name], comp)
	}
	return idx
}

// Link implements Linker.
func (l *RouteLinker) Link(ctx context.Context, s *store.Store) ([]ast.Reference, error) {
	idx := buildViewIndex(s)

	var refs []ast.Reference
	for _, method := range s.FindByKind(ast.KindControllerMethod) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		refs = append(refs, l.linkHandles(method, idx)...)
		refs = append(refs, l.linkReturnsView(method, idx)...)
	}
	sortRefs(refs)
	return refs, nil
}

// linkHandles ties a controller method to the page its route serves.
func (l *RouteLinker) linkHandles(method *ast.SymbolNode, idx *viewIndex) []ast.Reference {
	route := method.Metadata["route"]
	if route == "" {
		return nil
	}
	normalized := normalizeRoute(route)

	if page, ok := firstField(idx.pagesByRoute[normalized]); ok {
		return []ast.Reference{routeRef(method, page, ast.RelationHandles, ast.ConfidenceHigh, route, "route")}
	}

	// Convention fallback: the route's last segment names the page.
	segment := normalized[strings.LastIndex(normalized, "/")+1:]
	if segment != "" {
		if page, ok := firstField(idx.pagesByName[segment]); ok {
			return []ast.Reference{routeRef(method, page, ast.RelationHandles, ast.ConfidenceMedium, route, "segment")}
		}
	}
	return nil
}

// viewPrefixes are method-name prefixes that conventionally render a view.
var viewPrefixes = []string{"show", "render", "view", "get"}

// linkReturnsView ties a controller method to the view it renders.
func (l *RouteLinker) linkReturnsView(method *ast.SymbolNode, idx *viewIndex) []ast.Reference {
	if view := method.Metadata["view"]; view != "" {
		if target, ok := firstField(idx.viewsByName[strings.ToLower(view)]); ok {
			return []ast.Reference{routeRef(method, target, ast.RelationReturnsView, ast.ConfidenceHigh, view, "view")}
		}
		return nil
	}

	name := strings.ToLower(ToSnakeCase(method.Name))
	for _, prefix := range viewPrefixes {
		rest, ok := strings.CutPrefix(name, prefix+"_")
		if !ok {
			continue
		}
		if target, found := firstField(idx.viewsByName[rest]); found {
			return []ast.Reference{routeRef(method, target, ast.RelationReturnsView, ast.ConfidenceInferred, method.Name, "prefix")}
		}
	}
	return nil
}

// routeRef builds a route-related reference with its evidence.
func routeRef(method, target *ast.SymbolNode, rel ast.RelationKind, conf ast.Confidence, matched, rule string) ast.Reference {
	return ast.Reference{
		SourceID:   method.ID,
		TargetID:   target.ID,
		Relation:   rel,
		Confidence: conf,
		Evidence: map[string]string{
			"matched": matched,
			"rule":    rule,
		},
	}
}
