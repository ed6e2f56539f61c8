// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ast defines the language-agnostic symbol model for the symbol graph.
//
// A SymbolNode is any declared program element (function, class, UI binding,
// ORM field, database column) produced either by an external per-language
// parser (see ParseFunc) or synthesized by a reference linker. Nodes carry
// raw, name-based references at parse time; the resolution passes turn those
// into concrete target IDs and maintain the derived dependents set.
//
// Design principles:
//   - Language-agnostic: kinds cover code, UI, and storage domains
//   - Closed kind enum matched exhaustively by consumers; the open Metadata
//     map is the extension point for framework-specific attributes
//   - Deterministic IDs: re-parsing unchanged source yields identical IDs
package ast

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// SymbolKind represents the type of program element a node describes.
//
// The set spans structurally unrelated layers on purpose: the cross-domain
// linkers chain UI kinds to entity kinds to storage kinds.
type SymbolKind int

const (
	// KindUnknown indicates an unrecognized or unparseable symbol.
	KindUnknown SymbolKind = iota

	// KindFile represents a source file as a symbol.
	// Used as the target of import resolution.
	KindFile

	// KindFunction represents a standalone function declaration.
	KindFunction

	// KindMethod represents a function attached to a type/class.
	KindMethod

	// KindClass represents a class definition.
	KindClass

	// KindInterface represents an interface or protocol definition.
	KindInterface

	// KindStruct represents a composite data type.
	KindStruct

	// KindImport represents an import statement.
	KindImport

	// KindEntity represents a persistence-mapped model type (ORM entity).
	KindEntity

	// KindEntityField represents a field of an entity.
	KindEntityField

	// KindTable represents a database table.
	KindTable

	// KindColumn represents a database column. Column nodes are usually
	// synthesized by a linker rather than parsed from source.
	KindColumn

	// KindUIComponent represents a UI component (template, custom element).
	KindUIComponent

	// KindUIBinding represents a data binding expression in a UI layer,
	// e.g. "{user.email}".
	KindUIBinding

	// KindController represents a request controller class.
	KindController

	// KindControllerMethod represents an action/handler method on a controller.
	KindControllerMethod

	// KindPage represents a routable page or view template.
	KindPage

	// KindExpression represents a standalone expression extracted from a
	// template or configuration.
	KindExpression

	// KindFormField represents an input field in a form definition.
	KindFormField

	// KindComponentProp represents a declared property of a UI component.
	KindComponentProp
)

// symbolKindNames maps SymbolKind values to their string representations.
var symbolKindNames = map[SymbolKind]string{
	KindUnknown:          "unknown",
	KindFile:             "file",
	KindFunction:         "function",
	KindMethod:           "method",
	KindClass:            "class",
	KindInterface:        "interface",
	KindStruct:           "struct",
	KindImport:           "import",
	KindEntity:           "entity",
	KindEntityField:      "entity_field",
	KindTable:            "table",
	KindColumn:           "column",
	KindUIComponent:      "ui_component",
	KindUIBinding:        "ui_binding",
	KindController:       "controller",
	KindControllerMethod: "controller_method",
	KindPage:             "page",
	KindExpression:       "expression",
	KindFormField:        "form_field",
	KindComponentProp:    "component_prop",
}

// String returns the string representation of the SymbolKind.
//
// Returns "unknown" for unrecognized values.
func (k SymbolKind) String() string {
	if name, ok := symbolKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// MarshalJSON implements json.Marshaler for SymbolKind.
//
// Serializes the kind as a JSON string (e.g., "entity_field") rather than
// a number for readability and forward compatibility.
func (k SymbolKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON implements json.Unmarshaler for SymbolKind.
//
// Accepts both string values and numeric values for backward compatibility.
func (k *SymbolKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*k = ParseSymbolKind(s)
		return nil
	}

	var i int
	if err := json.Unmarshal(data, &i); err != nil {
		return fmt.Errorf("SymbolKind must be string or int: %w", err)
	}
	*k = SymbolKind(i)
	return nil
}

// ParseSymbolKind converts a string to a SymbolKind.
//
// Returns KindUnknown if the string is not recognized.
func ParseSymbolKind(s string) SymbolKind {
	for kind, name := range symbolKindNames {
		if name == s {
			return kind
		}
	}
	return KindUnknown
}

// IsTypeLike reports whether the kind can serve as an inheritance base.
//
// Base resolution filters candidates to type-like kinds first and falls back
// to the unfiltered pool only when no type-like candidate exists.
func (k SymbolKind) IsTypeLike() bool {
	switch k {
	case KindClass, KindInterface, KindStruct:
		return true
	default:
		return false
	}
}

// RawRefs holds the unresolved, name-based mentions discovered at parse time.
//
// Parsers populate these; the dependency linker resolves them to node IDs.
// Unresolvable entries are a normal outcome (third-party symbols), never an
// error.
type RawRefs struct {
	// Calls lists the names of functions/methods invoked by this symbol.
	Calls []string `json:"calls,omitempty"`

	// Bases lists the names of types this symbol inherits from or implements.
	Bases []string `json:"bases,omitempty"`

	// Imports lists imported module paths or file stems.
	Imports []string `json:"imports,omitempty"`
}

// IsEmpty returns true if the RawRefs contain no entries.
func (r RawRefs) IsEmpty() bool {
	return len(r.Calls) == 0 && len(r.Bases) == 0 && len(r.Imports) == 0
}

// SymbolNode represents a declared program element in the symbol graph.
//
// Nodes are created by parsing (raw) or by a reference linker (synthesized).
// The Resolved* and Dependents fields are derived: they are never set at
// parse time and are maintained exclusively by the dependency linker and the
// incremental updater.
type SymbolNode struct {
	// ID is the stable unique identifier for this node.
	// Parsed nodes: "file_path:qualified_name" (see GenerateID).
	// Synthesized nodes: deterministic function of identifying attributes
	// (see ColumnID). Re-parsing unchanged source yields identical IDs.
	ID string `json:"id"`

	// Kind indicates what type of program element this is.
	Kind SymbolKind `json:"kind"`

	// Name is the symbol's identifier as it appears in source.
	Name string `json:"name"`

	// QualifiedName is the name qualified by its container, e.g.
	// "UserService.Create" or "User.email".
	QualifiedName string `json:"qualified_name"`

	// FilePath is the path to the containing file, relative to project root.
	// Empty for synthesized nodes.
	FilePath string `json:"file_path"`

	// LineStart is the 1-indexed line where the declaration starts.
	LineStart int `json:"line_start"`

	// LineEnd is the 1-indexed line where the declaration ends.
	LineEnd int `json:"line_end"`

	// Raw holds the unresolved references discovered at parse time.
	Raw RawRefs `json:"raw_references"`

	// Metadata carries framework-specific attributes that do not warrant
	// first-class fields (annotation arguments, route paths, table names).
	Metadata map[string]string `json:"metadata,omitempty"`

	// ResolvedCalls holds target node IDs for the raw calls that resolved.
	// Derived; replaced wholesale by each resolution pass.
	ResolvedCalls []string `json:"resolved_calls,omitempty"`

	// ResolvedBases holds target node IDs for the raw bases that resolved.
	ResolvedBases []string `json:"resolved_bases,omitempty"`

	// ResolvedImports holds FILE node IDs for the raw imports that resolved.
	ResolvedImports []string `json:"resolved_imports,omitempty"`

	// Dependents holds the IDs of nodes with a resolved forward reference to
	// this node. Derived; never set at parse time.
	Dependents []string `json:"dependents,omitempty"`

	// References holds outgoing cross-domain references produced by the
	// linker framework, serialized alongside the node.
	References []Reference `json:"references,omitempty"`

	// Synthesized is true for nodes created by a linker rather than parsing.
	Synthesized bool `json:"synthesized,omitempty"`
}

// GenerateID creates the deterministic identifier for a parsed symbol.
//
// Format: "file_path:qualified_name". The ID is a pure function of the file
// and the qualified name, so re-parsing the same unchanged source reproduces
// the same ID regardless of parse order or timing.
//
// Callers MUST validate that filePath is within the project boundary before
// calling this function; it performs no path validation itself. Use
// SymbolNode.Validate() to verify paths don't contain traversal sequences.
func GenerateID(filePath, qualifiedName string) string {
	return filePath + ":" + qualifiedName
}

// ColumnID creates the deterministic identifier for a synthesized database
// column node.
//
// Format: "db::table.column". Deterministic IDs make repeated linker runs
// idempotent: synthesizing the same column twice dedupes by ID.
func ColumnID(table, column string) string {
	return fmt.Sprintf("db::%s.%s", table, column)
}

// ValidationError represents a validation failure with field context.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks if the SymbolNode has valid field values.
//
// Returns nil if valid, or a ValidationError describing the first invalid
// field.
//
// Validates:
//   - ID and Name are non-empty
//   - For parsed nodes: FilePath is non-empty, free of path traversal,
//     LineStart >= 1 and LineEnd >= LineStart
//   - For synthesized nodes: FilePath and line fields may be zero
func (n *SymbolNode) Validate() error {
	if n.ID == "" {
		return ValidationError{Field: "ID", Message: "must not be empty"}
	}

	if n.Name == "" {
		return ValidationError{Field: "Name", Message: "must not be empty"}
	}

	if n.Synthesized {
		return nil
	}

	if n.FilePath == "" {
		return ValidationError{Field: "FilePath", Message: "must not be empty"}
	}

	if strings.Contains(n.FilePath, "..") {
		return ValidationError{Field: "FilePath", Message: "must not contain path traversal (..)"}
	}

	if n.LineStart < 1 {
		return ValidationError{Field: "LineStart", Message: "must be >= 1 (1-indexed)"}
	}

	if n.LineEnd < n.LineStart {
		return ValidationError{Field: "LineEnd", Message: "must be >= LineStart"}
	}

	return nil
}

// ResolvedTargets returns all resolved forward reference target IDs in a
// single slice (calls, then bases, then imports).
//
// The result is a fresh slice; mutating it does not affect the node.
func (n *SymbolNode) ResolvedTargets() []string {
	total := len(n.ResolvedCalls) + len(n.ResolvedBases) + len(n.ResolvedImports)
	if total == 0 {
		return nil
	}
	out := make([]string, 0, total)
	out = append(out, n.ResolvedCalls...)
	out = append(out, n.ResolvedBases...)
	out = append(out, n.ResolvedImports...)
	return out
}

// Clone returns a deep copy of the node.
//
// Used by the incremental updater so that mutation of a working set never
// leaks into a caller-held snapshot.
func (n *SymbolNode) Clone() *SymbolNode {
	if n == nil {
		return nil
	}
	out := *n
	out.Raw.Calls = append([]string(nil), n.Raw.Calls...)
	out.Raw.Bases = append([]string(nil), n.Raw.Bases...)
	out.Raw.Imports = append([]string(nil), n.Raw.Imports...)
	out.ResolvedCalls = append([]string(nil), n.ResolvedCalls...)
	out.ResolvedBases = append([]string(nil), n.ResolvedBases...)
	out.ResolvedImports = append([]string(nil), n.ResolvedImports...)
	out.Dependents = append([]string(nil), n.Dependents...)
	if n.Metadata != nil {
		out.Metadata = make(map[string]string, len(n.Metadata))
		for k, v := range n.Metadata {
			out.Metadata[k] = v
		}
	}
	if n.References != nil {
		out.References = make([]Reference, len(n.References))
		for i, ref := range n.References {
			out.References[i] = ref.Clone()
		}
	}
	return &out
}

// ParseFunc is the external parse contract.
//
// One implementation exists per language/framework and is supplied by the
// caller; parsing itself is outside the engine. A ParseFunc returns the
// symbols declared in the file with raw, unresolved references, or an error.
// The parallel indexer converts a failure into a zero-node contribution for
// that file; it never aborts the run.
type ParseFunc func(ctx context.Context, filePath string) ([]*SymbolNode, error)
