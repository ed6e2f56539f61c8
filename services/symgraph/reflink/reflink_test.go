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
	"errors"
	"testing"

	"github.com/AleutianAI/symgraph/services/symgraph/ast"
	"github.com/AleutianAI/symgraph/services/symgraph/store"
)

func symbol(file, name, qualified string, kind ast.SymbolKind, meta map[string]string) *ast.SymbolNode {
	return &ast.SymbolNode{
		ID:            ast.GenerateID(file, qualified),
		Kind:          kind,
		Name:          name,
		QualifiedName: qualified,
		FilePath:      file,
		LineStart:     1,
		LineEnd:       2,
		Metadata:      meta,
	}
}

func buildStore(t *testing.T, nodes ...*ast.SymbolNode) *store.Store {
	t.Helper()
	s := store.New()
	for _, n := range nodes {
		if err := s.AddNode(n); err != nil {
			t.Fatalf("AddNode(%s) error = %v", n.ID, err)
		}
	}
	return s
}

// namedLinker is a registry test double.
type namedLinker struct {
	name     string
	priority int
	calls    *[]string
}

func (l namedLinker) Name() string  { return l.name }
func (l namedLinker) Priority() int { return l.priority }
func (l namedLinker) Link(ctx context.Context, s *store.Store) ([]ast.Reference, error) {
	*l.calls = append(*l.calls, l.name)
	return nil, nil
}

func TestRegistryOrdering(t *testing.T) {
	var calls []string
	r := NewRegistry(nil)
	for _, l := range []namedLinker{
		{name: "zeta", priority: 10, calls: &calls},
		{name: "low", priority: 30, calls: &calls},
		{name: "alpha", priority: 10, calls: &calls},
	} {
		if err := r.Register(l); err != nil {
			t.Fatalf("Register(%s) error = %v", l.name, err)
		}
	}

	if _, err := r.Run(context.Background(), store.New()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []string{"alpha", "zeta", "low"}
	if len(calls) != len(want) {
		t.Fatalf("linkers ran %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("linkers ran %v, want %v", calls, want)
		}
	}
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	var calls []string
	r := NewRegistry(nil)
	if err := r.Register(namedLinker{name: "dup", priority: 1, calls: &calls}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	err := r.Register(namedLinker{name: "dup", priority: 2, calls: &calls})
	if !errors.Is(err, ErrDuplicateLinker) {
		t.Errorf("Register() error = %v, want ErrDuplicateLinker", err)
	}
}

func TestBindingLinkerConfidenceRules(t *testing.T) {
	field := symbol("user.py", "email", "User.email", ast.KindEntityField, nil)

	tests := []struct {
		name     string
		binding  *ast.SymbolNode
		wantConf ast.Confidence
		wantRule string
	}{
		{
			name: "explicit annotation",
			binding: symbol("form.vue", "emailInput", "emailInput", ast.KindUIBinding,
				map[string]string{"binds_to": "User.email"}),
			wantConf: ast.ConfidenceHigh,
			wantRule: "annotation",
		},
		{
			name: "dotted expression",
			binding: symbol("form.vue", "b1", "b1", ast.KindUIBinding,
				map[string]string{"expression": "user.email"}),
			wantConf: ast.ConfidenceMedium,
			wantRule: "qualified",
		},
		{
			name: "braced expression",
			binding: symbol("form.vue", "b4", "b4", ast.KindUIBinding,
				map[string]string{"expression": "{user.email}"}),
			wantConf: ast.ConfidenceMedium,
			wantRule: "qualified",
		},
		{
			name: "bare field name",
			binding: symbol("form.vue", "b2", "b2", ast.KindUIBinding,
				map[string]string{"expression": "email"}),
			wantConf: ast.ConfidenceLow,
			wantRule: "name",
		},
		{
			name: "substring",
			binding: symbol("form.vue", "b3", "b3", ast.KindUIBinding,
				map[string]string{"expression": "formatEmailDisplay"}),
			wantConf: ast.ConfidenceInferred,
			wantRule: "substring",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := buildStore(t, field, tt.binding)
			refs, err := NewBindingLinker().Link(context.Background(), s)
			if err != nil {
				t.Fatalf("Link() error = %v", err)
			}
			if len(refs) != 1 {
				t.Fatalf("Link() produced %d refs, want 1", len(refs))
			}
			ref := refs[0]
			if ref.TargetID != field.ID || ref.Relation != ast.RelationBindsTo {
				t.Errorf("ref = %+v, want BINDS_TO %s", ref, field.ID)
			}
			if ref.Confidence != tt.wantConf {
				t.Errorf("Confidence = %v, want %v", ref.Confidence, tt.wantConf)
			}
			if ref.Evidence["rule"] != tt.wantRule {
				t.Errorf("rule = %q, want %q", ref.Evidence["rule"], tt.wantRule)
			}
		})
	}
}

func TestColumnLinker(t *testing.T) {
	t.Run("explicit metadata", func(t *testing.T) {
		field := symbol("user.py", "mail", "User.mail", ast.KindEntityField,
			map[string]string{"table": "accounts", "column": "email_address"})
		s := buildStore(t, field)

		refs, err := NewColumnLinker().Link(context.Background(), s)
		if err != nil {
			t.Fatalf("Link() error = %v", err)
		}
		if len(refs) != 1 || refs[0].TargetID != "db::accounts.email_address" {
			t.Fatalf("refs = %+v, want MAPS_TO db::accounts.email_address", refs)
		}
		if refs[0].Confidence != ast.ConfidenceHigh {
			t.Errorf("Confidence = %v, want high", refs[0].Confidence)
		}
	})

	t.Run("convention", func(t *testing.T) {
		field := symbol("user.py", "email", "User.email", ast.KindEntityField, nil)
		s := buildStore(t, field)

		refs, err := NewColumnLinker().Link(context.Background(), s)
		if err != nil {
			t.Fatalf("Link() error = %v", err)
		}
		if len(refs) != 1 || refs[0].TargetID != "db::users.email" {
			t.Fatalf("refs = %+v, want MAPS_TO db::users.email", refs)
		}
		if refs[0].Confidence != ast.ConfidenceMedium {
			t.Errorf("Confidence = %v, want medium", refs[0].Confidence)
		}

		col, ok := s.Get("db::users.email")
		if !ok {
			t.Fatal("column node not synthesized")
		}
		if !col.Synthesized || col.Kind != ast.KindColumn {
			t.Errorf("synthesized node = %+v", col)
		}
	})

	t.Run("orphan field maps to nothing", func(t *testing.T) {
		field := symbol("misc.py", "count", "count", ast.KindEntityField, nil)
		s := buildStore(t, field)

		refs, err := NewColumnLinker().Link(context.Background(), s)
		if err != nil {
			t.Fatalf("Link() error = %v", err)
		}
		if len(refs) != 0 {
			t.Errorf("refs = %+v, want none for a field without an entity", refs)
		}
	})
}

func TestRouteLinker(t *testing.T) {
	page := symbol("users.vue", "users", "users", ast.KindPage,
		map[string]string{"route": "/users"})
	method := symbol("ctl.py", "listUsers", "UserController.listUsers", ast.KindControllerMethod,
		map[string]string{"route": "/users/", "view": "users"})

	s := buildStore(t, page, method)
	refs, err := NewRouteLinker().Link(context.Background(), s)
	if err != nil {
		t.Fatalf("Link() error = %v", err)
	}
	if len(refs) != 2 {
		t.Fatalf("Link() produced %d refs, want HANDLES and RETURNS_VIEW", len(refs))
	}

	byRelation := map[ast.RelationKind]ast.Reference{}
	for _, r := range refs {
		byRelation[r.Relation] = r
	}
	handles, ok := byRelation[ast.RelationHandles]
	if !ok || handles.TargetID != page.ID || handles.Confidence != ast.ConfidenceHigh {
		t.Errorf("HANDLES ref = %+v", handles)
	}
	returns, ok := byRelation[ast.RelationReturnsView]
	if !ok || returns.TargetID != page.ID || returns.Confidence != ast.ConfidenceHigh {
		t.Errorf("RETURNS_VIEW ref = %+v", returns)
	}
}

func TestRunScenarioUIToColumn(t *testing.T) {
	// End to end: a UI binding reaches User.email, which maps onto the
	// synthesized db::users.email column.
	field := symbol("models/user.py", "email", "User.email", ast.KindEntityField, nil)
	binding := symbol("forms/profile.vue", "emailInput", "emailInput", ast.KindUIBinding,
		map[string]string{"expression": "{user.email}"})
	s := buildStore(t, field, binding)

	registry := DefaultRegistry(nil)
	report, err := registry.Run(context.Background(), s)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if report.Applied != 2 {
		t.Errorf("Applied = %d, want 2 (binding + column)", report.Applied)
	}
	if report.Synthesized != 1 {
		t.Errorf("Synthesized = %d, want 1", report.Synthesized)
	}

	if _, ok := s.Get("db::users.email"); !ok {
		t.Fatal("db::users.email not synthesized")
	}

	bindingRefs := s.ReferencesFrom(binding.ID)
	if len(bindingRefs) != 1 || bindingRefs[0].TargetID != field.ID {
		t.Errorf("binding refs = %+v", bindingRefs)
	} else if bindingRefs[0].Confidence != ast.ConfidenceMedium {
		t.Errorf("binding Confidence = %v, want medium for a braced qualified expression",
			bindingRefs[0].Confidence)
	}
	fieldRefs := s.ReferencesFrom(field.ID)
	if len(fieldRefs) != 1 || fieldRefs[0].TargetID != "db::users.email" {
		t.Errorf("field refs = %+v", fieldRefs)
	}

	t.Run("re-run is idempotent", func(t *testing.T) {
		nodesBefore := s.Len()
		refsBefore := s.ReferenceCount()

		again, err := registry.Run(context.Background(), s)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if again.Applied != 0 || again.Synthesized != 0 {
			t.Errorf("second run applied %d refs, synthesized %d nodes; want 0, 0",
				again.Applied, again.Synthesized)
		}
		if s.Len() != nodesBefore || s.ReferenceCount() != refsBefore {
			t.Error("second run changed the graph")
		}
	})
}

func TestConfidenceNeverDowngrades(t *testing.T) {
	// An edge established at HIGH must stay HIGH across re-runs even
	// though weaker rules also match the same binding.
	field := symbol("user.py", "email", "User.email", ast.KindEntityField, nil)
	binding := symbol("form.vue", "b", "b", ast.KindUIBinding,
		map[string]string{"binds_to": "User.email", "expression": "user.email"})
	s := buildStore(t, field, binding)

	registry := DefaultRegistry(nil)
	if _, err := registry.Run(context.Background(), s); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	refs := s.ReferencesFrom(binding.ID)
	if len(refs) != 1 || refs[0].Confidence != ast.ConfidenceHigh {
		t.Fatalf("refs = %+v, want one HIGH edge", refs)
	}

	// Second run: the annotation still wins; the edge stays HIGH.
	if _, err := registry.Run(context.Background(), s); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	refs = s.ReferencesFrom(binding.ID)
	if len(refs) != 1 || refs[0].Confidence != ast.ConfidenceHigh {
		t.Errorf("refs after re-run = %+v, want the HIGH edge unchanged", refs)
	}
}
