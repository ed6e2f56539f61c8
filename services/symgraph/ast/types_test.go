// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"encoding/json"
	"errors"
	"testing"
)

func validNode() *SymbolNode {
	return &SymbolNode{
		ID:            GenerateID("src/app/user.py", "User.save"),
		Kind:          KindMethod,
		Name:          "save",
		QualifiedName: "User.save",
		FilePath:      "src/app/user.py",
		LineStart:     10,
		LineEnd:       20,
	}
}

func TestGenerateID(t *testing.T) {
	got := GenerateID("src/app/user.py", "User.save")
	want := "src/app/user.py:User.save"
	if got != want {
		t.Errorf("GenerateID() = %q, want %q", got, want)
	}

	// Same inputs always produce the same ID.
	if again := GenerateID("src/app/user.py", "User.save"); again != got {
		t.Errorf("GenerateID() not deterministic: %q vs %q", again, got)
	}
}

func TestColumnID(t *testing.T) {
	got := ColumnID("users", "email")
	want := "db::users.email"
	if got != want {
		t.Errorf("ColumnID() = %q, want %q", got, want)
	}
}

func TestSymbolNodeValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*SymbolNode)
		wantErr string
	}{
		{
			name:   "valid node",
			mutate: func(n *SymbolNode) {},
		},
		{
			name:    "missing id",
			mutate:  func(n *SymbolNode) { n.ID = "" },
			wantErr: "ID",
		},
		{
			name:    "missing name",
			mutate:  func(n *SymbolNode) { n.Name = "" },
			wantErr: "Name",
		},
		{
			name:    "missing file path",
			mutate:  func(n *SymbolNode) { n.FilePath = "" },
			wantErr: "FilePath",
		},
		{
			name:    "path traversal",
			mutate:  func(n *SymbolNode) { n.FilePath = "../../etc/passwd" },
			wantErr: "FilePath",
		},
		{
			name:    "zero line start",
			mutate:  func(n *SymbolNode) { n.LineStart = 0 },
			wantErr: "LineStart",
		},
		{
			name:    "line end before start",
			mutate:  func(n *SymbolNode) { n.LineEnd = n.LineStart - 1 },
			wantErr: "LineEnd",
		},
		{
			name: "synthesized skips location checks",
			mutate: func(n *SymbolNode) {
				n.Synthesized = true
				n.FilePath = ""
				n.LineStart = 0
				n.LineEnd = 0
			},
		},
		{
			name: "synthesized still needs an id",
			mutate: func(n *SymbolNode) {
				n.Synthesized = true
				n.ID = ""
			},
			wantErr: "ID",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := validNode()
			tt.mutate(n)

			err := n.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}

			var verr ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() = %v, want ValidationError", err)
			}
			if verr.Field != tt.wantErr {
				t.Errorf("Validate() field = %q, want %q", verr.Field, tt.wantErr)
			}
		})
	}
}

func TestSymbolKindJSON(t *testing.T) {
	data, err := json.Marshal(KindEntityField)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != `"entity_field"` {
		t.Errorf("Marshal() = %s, want \"entity_field\"", data)
	}

	var k SymbolKind
	if err := json.Unmarshal([]byte(`"ui_binding"`), &k); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if k != KindUIBinding {
		t.Errorf("Unmarshal() = %v, want KindUIBinding", k)
	}

	// Unknown names fold to KindUnknown rather than failing the decode,
	// so graphs from newer writers stay loadable.
	if err := json.Unmarshal([]byte(`"hologram"`), &k); err != nil {
		t.Fatalf("Unmarshal(unknown) error = %v", err)
	}
	if k != KindUnknown {
		t.Errorf("Unmarshal(unknown) = %v, want KindUnknown", k)
	}
}

func TestIsTypeLike(t *testing.T) {
	for _, kind := range []SymbolKind{KindClass, KindInterface, KindStruct} {
		if !kind.IsTypeLike() {
			t.Errorf("%v.IsTypeLike() = false, want true", kind)
		}
	}
	for _, kind := range []SymbolKind{KindFunction, KindFile, KindEntity, KindColumn} {
		if kind.IsTypeLike() {
			t.Errorf("%v.IsTypeLike() = true, want false", kind)
		}
	}
}

func TestResolvedTargets(t *testing.T) {
	n := validNode()
	if got := n.ResolvedTargets(); got != nil {
		t.Errorf("ResolvedTargets() on unresolved node = %v, want nil", got)
	}

	n.ResolvedCalls = []string{"a", "b"}
	n.ResolvedBases = []string{"c"}
	n.ResolvedImports = []string{"d"}

	got := n.ResolvedTargets()
	want := []string{"a", "b", "c", "d"}
	if len(got) != len(want) {
		t.Fatalf("ResolvedTargets() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ResolvedTargets()[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	// The result must be detached from the node.
	got[0] = "mutated"
	if n.ResolvedCalls[0] != "a" {
		t.Error("ResolvedTargets() shares backing storage with the node")
	}
}

func TestClone(t *testing.T) {
	n := validNode()
	n.Raw = RawRefs{Calls: []string{"helper"}}
	n.Metadata = map[string]string{"table": "users"}
	n.Dependents = []string{"x"}

	c := n.Clone()
	c.Raw.Calls[0] = "changed"
	c.Metadata["table"] = "changed"
	c.Dependents[0] = "changed"

	if n.Raw.Calls[0] != "helper" || n.Metadata["table"] != "users" || n.Dependents[0] != "x" {
		t.Error("Clone() did not deep-copy node state")
	}
}
