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
	"strings"

	"github.com/AleutianAI/symgraph/services/symgraph/ast"
	"github.com/AleutianAI/symgraph/services/symgraph/store"
)

// ColumnLinker maps entity fields to database columns, synthesizing column
// nodes for the database side of the edge.
//
// Column identity comes from explicit "table" and "column" metadata when the
// field carries it (HIGH confidence), otherwise from ORM convention: the
// table is the pluralized snake_case entity name, the column the snake_case
// field name (MEDIUM confidence).
//
// Column node IDs are derived from table and column, so repeated runs
// converge on one node per column regardless of how many fields map to it.
type ColumnLinker struct{}

// NewColumnLinker creates the entity-field to column linker.
func NewColumnLinker() *ColumnLinker {
	return &ColumnLinker{}
}

// Name implements Linker.
func (l *ColumnLinker) Name() string { return "db-column" }

// Priority implements Linker.
func (l *ColumnLinker) Priority() int { return 20 }

// Link implements Linker.
func (l *ColumnLinker) Link(ctx context.Context, s *store.Store) ([]ast.Reference, error) {
	var refs []ast.Reference
	for _, field := range s.FindByKind(ast.KindEntityField) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		table, column, conf := columnIdentity(field)
		if table == "" || column == "" {
			continue
		}

		colID, err := synthesizeColumn(s, table, column)
		if err != nil {
			return nil, err
		}

		refs = append(refs, ast.Reference{
			SourceID:   field.ID,
			TargetID:   colID,
			Relation:   ast.RelationMapsTo,
			Confidence: conf,
			Evidence: map[string]string{
				"table":  table,
				"column": column,
			},
		})
	}
	sortRefs(refs)
	return refs, nil
}

// columnIdentity derives the table and column a field maps to.
//
// Explicit metadata wins; otherwise the ORM naming convention applies. A
// field whose entity cannot be determined maps to nothing.
func columnIdentity(field *ast.SymbolNode) (table, column string, conf ast.Confidence) {
	table = field.Metadata["table"]
	column = field.Metadata["column"]
	if table != "" && column != "" {
		return table, column, ast.ConfidenceHigh
	}

	entity := field.Metadata["entity"]
	if entity == "" {
		// Qualified names carry the owning entity as their prefix,
		// e.g. "User.email".
		if i := strings.LastIndex(field.QualifiedName, "."); i > 0 {
			entity = field.QualifiedName[:i]
		}
	}
	if entity == "" {
		return "", "", ast.ConfidenceInferred
	}

	if table == "" {
		table = Pluralize(ToSnakeCase(entity))
	}
	if column == "" {
		column = ToSnakeCase(field.Name)
	}
	return table, column, ast.ConfidenceMedium
}

// synthesizeColumn ensures the column node exists and returns its ID.
//
// The first run creates the node; later runs find it already present, which
// keeps the linker idempotent.
func synthesizeColumn(s *store.Store, table, column string) (string, error) {
	id := ast.ColumnID(table, column)
	if _, ok := s.Get(id); ok {
		return id, nil
	}

	node := &ast.SymbolNode{
		ID:            id,
		Kind:          ast.KindColumn,
		Name:          column,
		QualifiedName: table + "." + column,
		Metadata:      map[string]string{"table": table},
		Synthesized:   true,
	}
	if err := s.AddNode(node); err != nil {
		if errors.Is(err, store.ErrDuplicateNode) {
			return id, nil
		}
		return "", err
	}
	return id, nil
}
