// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/AleutianAI/symgraph/services/symgraph/ast"
)

func writeSidecar(t *testing.T, source, content string) {
	t.Helper()
	if err := os.WriteFile(source+SidecarSuffix, []byte(content), 0o644); err != nil {
		t.Fatalf("writing sidecar: %v", err)
	}
}

func TestSidecarParse(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "app.py")
	writeSidecar(t, source, `[
		{"name": "handler", "kind": "function", "qualified_name": "app.handler"},
		{"name": "Helper", "kind": "class"}
	]`)

	nodes, err := sidecarParse(context.Background(), source)
	if err != nil {
		t.Fatalf("sidecarParse() error = %v", err)
	}
	if len(nodes) != 2 {
		t.Fatalf("got %d nodes, want 2", len(nodes))
	}

	// File path is forced to the source, IDs and qualified names derived.
	if nodes[0].FilePath != source {
		t.Errorf("FilePath = %q, want %q", nodes[0].FilePath, source)
	}
	if want := ast.GenerateID(source, "app.handler"); nodes[0].ID != want {
		t.Errorf("ID = %q, want %q", nodes[0].ID, want)
	}
	if nodes[1].QualifiedName != "Helper" {
		t.Errorf("QualifiedName = %q, want Helper", nodes[1].QualifiedName)
	}
	if want := ast.GenerateID(source, "Helper"); nodes[1].ID != want {
		t.Errorf("ID = %q, want %q", nodes[1].ID, want)
	}
}

func TestSidecarParseAcceptsSidecarPath(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "lib.py")
	writeSidecar(t, source, `[{"name": "f", "kind": "function"}]`)

	nodes, err := sidecarParse(context.Background(), source+SidecarSuffix)
	if err != nil {
		t.Fatalf("sidecarParse() error = %v", err)
	}
	if nodes[0].FilePath != source {
		t.Errorf("FilePath = %q, want %q", nodes[0].FilePath, source)
	}
}

func TestSidecarParseMissing(t *testing.T) {
	_, err := sidecarParse(context.Background(), filepath.Join(t.TempDir(), "gone.py"))
	if err == nil {
		t.Fatal("sidecarParse() should fail without a sidecar")
	}
}

func TestSidecarParseMalformed(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "bad.py")
	writeSidecar(t, source, `{"not": "an array"}`)

	if _, err := sidecarParse(context.Background(), source); err == nil {
		t.Fatal("sidecarParse() should reject non-array JSON")
	}
}

func TestSidecarParseInvalidNode(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "empty.py")
	writeSidecar(t, source, `[{"kind": "function"}]`)

	if _, err := sidecarParse(context.Background(), source); err == nil {
		t.Fatal("sidecarParse() should reject a node without a name")
	}
}

func TestSidecarParseCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := sidecarParse(ctx, "anything.py"); err == nil {
		t.Fatal("sidecarParse() should honor cancellation")
	}
}

func TestSourcePath(t *testing.T) {
	if got := sourcePath("a/b.py" + SidecarSuffix); got != "a/b.py" {
		t.Errorf("sourcePath() = %q", got)
	}
	if got := sourcePath("a/b.py"); got != "a/b.py" {
		t.Errorf("sourcePath() = %q", got)
	}
}
