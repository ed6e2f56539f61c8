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
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/AleutianAI/symgraph/services/symgraph/ast"
)

// SidecarSuffix is appended to a source path to locate its symbol dump.
const SidecarSuffix = ".symgraph.json"

// sidecarParse is the integration seam to external language parsers.
//
// Description:
//
//	Language-specific extraction happens outside this binary: a parser
//	emits, per source file, a JSON sidecar named <path>.symgraph.json
//	containing the file's symbol nodes as a JSON array. sidecarParse
//	loads that sidecar for the given source path and normalizes the
//	nodes: every node's file path is forced to the source path, and
//	missing IDs and qualified names are derived from it.
//
// Inputs:
//
//	ctx - Context for cancellation, checked before I/O.
//	filePath - The source file whose sidecar to load. A path that already
//	    ends in the sidecar suffix is read directly.
//
// Outputs:
//
//	[]*ast.SymbolNode - The file's nodes. Never shared between calls.
//	error - Missing sidecar, malformed JSON, or an invalid node.
func sidecarParse(ctx context.Context, filePath string) ([]*ast.SymbolNode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sidecar := filePath
	source := filePath
	if strings.HasSuffix(filePath, SidecarSuffix) {
		source = strings.TrimSuffix(filePath, SidecarSuffix)
	} else {
		sidecar = filePath + SidecarSuffix
	}

	data, err := os.ReadFile(sidecar)
	if err != nil {
		return nil, fmt.Errorf("reading symbol sidecar: %w", err)
	}

	var nodes []*ast.SymbolNode
	if err := json.Unmarshal(data, &nodes); err != nil {
		return nil, fmt.Errorf("parsing symbol sidecar %s: %w", sidecar, err)
	}

	for i, node := range nodes {
		if node == nil {
			return nil, fmt.Errorf("symbol sidecar %s: node %d is null", sidecar, i)
		}
		node.FilePath = source
		if node.QualifiedName == "" {
			node.QualifiedName = node.Name
		}
		if node.ID == "" {
			node.ID = ast.GenerateID(source, node.QualifiedName)
		}
		if err := node.Validate(); err != nil {
			return nil, fmt.Errorf("symbol sidecar %s: node %d: %w", sidecar, i, err)
		}
	}
	return nodes, nil
}

// sourcePath maps a possibly-sidecar argument back to its source path, so
// commands accept either spelling.
func sourcePath(arg string) string {
	return strings.TrimSuffix(arg, SidecarSuffix)
}
