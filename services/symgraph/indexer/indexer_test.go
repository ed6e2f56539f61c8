// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package indexer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/AleutianAI/symgraph/services/symgraph/ast"
	"github.com/AleutianAI/symgraph/services/symgraph/persist"
)

// fakeParse returns one function node per file, named after the file stem.
func fakeParse(ctx context.Context, filePath string) ([]*ast.SymbolNode, error) {
	name := filepath.Base(filePath)
	return []*ast.SymbolNode{
		{
			ID:            ast.GenerateID(filePath, name),
			Kind:          ast.KindFunction,
			Name:          name,
			QualifiedName: name,
			FilePath:      filePath,
			LineStart:     1,
			LineEnd:       2,
		},
	}, nil
}

func graphPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "graph.ndjson")
}

func TestRun(t *testing.T) {
	path := graphPath(t)
	files := []string{"a.py", "b.py", "c.py"}

	ix := New(WithWorkers(2), WithQueueSize(4))
	res, err := ix.Run(context.Background(), files, fakeParse, path)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if res.NodeCount != 3 || res.FilesProcessed != 3 {
		t.Errorf("Run() = %d nodes / %d files, want 3 / 3", res.NodeCount, res.FilesProcessed)
	}
	if res.Incomplete {
		t.Error("Run() marked a clean run incomplete")
	}
	if res.RunID == "" {
		t.Error("Run() produced an empty run ID")
	}

	s, _, err := persist.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.Len() != 3 {
		t.Errorf("graph holds %d nodes, want 3", s.Len())
	}
}

func TestRunNilParse(t *testing.T) {
	ix := New()
	if _, err := ix.Run(context.Background(), []string{"a.py"}, nil, graphPath(t)); err == nil {
		t.Fatal("Run() with nil parse returned nil error")
	}
}

func TestRunParseFailures(t *testing.T) {
	path := graphPath(t)
	parseErr := errors.New("syntax error")
	parse := func(ctx context.Context, filePath string) ([]*ast.SymbolNode, error) {
		if filePath == "bad.py" || filePath == "worse.py" {
			return nil, parseErr
		}
		return fakeParse(ctx, filePath)
	}

	ix := New(WithWorkers(3))
	res, err := ix.Run(context.Background(), []string{"a.py", "bad.py", "b.py", "worse.py"}, parse, path)
	if err != nil {
		t.Fatalf("Run() error = %v; parse failures must not fail the run", err)
	}

	if res.FilesProcessed != 2 || res.NodeCount != 2 {
		t.Errorf("Run() = %d files / %d nodes, want 2 / 2", res.FilesProcessed, res.NodeCount)
	}
	if len(res.FailedFiles) != 2 || res.FailedFiles[0] != "bad.py" || res.FailedFiles[1] != "worse.py" {
		t.Errorf("FailedFiles = %v, want [bad.py worse.py]", res.FailedFiles)
	}

	// The graph still commits with the successful files' nodes.
	s, _, err := persist.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.Len() != 2 {
		t.Errorf("graph holds %d nodes, want 2", s.Len())
	}
}

func TestRunSameGraphRegardlessOfScheduling(t *testing.T) {
	// Record order in the file may vary with worker scheduling; the loaded
	// graph must not.
	files := []string{"e.py", "a.py", "d.py", "b.py", "c.py"}

	p1 := graphPath(t)
	p2 := graphPath(t)
	for _, p := range []string{p1, p2} {
		ix := New(WithWorkers(4), WithQueueSize(1))
		if _, err := ix.Run(context.Background(), files, fakeParse, p); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	}

	s1, _, err := persist.Load(p1)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	s2, _, err := persist.Load(p2)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	ids1, ids2 := s1.NodeIDs(), s2.NodeIDs()
	if len(ids1) != len(ids2) {
		t.Fatalf("graphs differ in size: %d vs %d", len(ids1), len(ids2))
	}
	for i := range ids1 {
		if ids1[i] != ids2[i] {
			t.Fatalf("graphs differ at %d: %q vs %q", i, ids1[i], ids2[i])
		}
	}
}

func TestRunCancellation(t *testing.T) {
	path := graphPath(t)
	ctx, cancel := context.WithCancel(context.Background())

	var parsed atomic.Int32
	parse := func(ctx context.Context, filePath string) ([]*ast.SymbolNode, error) {
		if parsed.Add(1) == 2 {
			cancel()
		}
		return fakeParse(ctx, filePath)
	}

	files := make([]string, 64)
	for i := range files {
		files[i] = fmt.Sprintf("f%02d.py", i)
	}

	ix := New(WithWorkers(2), WithQueueSize(2))
	res, err := ix.Run(ctx, files, parse, path)
	if err != nil {
		t.Fatalf("Run() error = %v; cancellation must commit a partial graph", err)
	}
	if !res.Incomplete {
		t.Error("Run() after cancellation not marked incomplete")
	}

	// Whatever was enqueued before cancellation is on disk and loadable.
	s, _, err := persist.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.Len() != res.NodeCount {
		t.Errorf("graph holds %d nodes, result reported %d", s.Len(), res.NodeCount)
	}
}

func TestDefaultWorkers(t *testing.T) {
	if n := DefaultWorkers(); n < 1 || n > 4 {
		t.Errorf("DefaultWorkers() = %d, want within [1, 4]", n)
	}
}
