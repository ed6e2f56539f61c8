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
	"fmt"
)

// RelationKind defines the type of relationship a Reference expresses.
type RelationKind int

const (
	// RelationUnknown indicates an unrecognized relationship type.
	RelationUnknown RelationKind = iota

	// RelationCalls indicates a function/method calls another.
	RelationCalls

	// RelationInherits indicates a type inherits from or implements another.
	RelationInherits

	// RelationImports indicates a file imports another file/module.
	RelationImports

	// RelationMapsTo indicates a persistence mapping, e.g. an entity field
	// maps to a database column.
	RelationMapsTo

	// RelationBindsTo indicates a UI binding targets a model element.
	RelationBindsTo

	// RelationHandles indicates a controller method handles a page/route.
	RelationHandles

	// RelationReturnsView indicates a controller method renders a view.
	RelationReturnsView
)

// relationKindNames maps RelationKind values to their string representations.
var relationKindNames = map[RelationKind]string{
	RelationUnknown:     "unknown",
	RelationCalls:       "calls",
	RelationInherits:    "inherits",
	RelationImports:     "imports",
	RelationMapsTo:      "maps_to",
	RelationBindsTo:     "binds_to",
	RelationHandles:     "handles",
	RelationReturnsView: "returns_view",
}

// String returns the string representation of the RelationKind.
func (r RelationKind) String() string {
	if name, ok := relationKindNames[r]; ok {
		return name
	}
	return "unknown"
}

// MarshalJSON serializes the relation as a JSON string.
func (r RelationKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON accepts both string and numeric relation values.
func (r *RelationKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*r = ParseRelationKind(s)
		return nil
	}

	var i int
	if err := json.Unmarshal(data, &i); err != nil {
		return fmt.Errorf("RelationKind must be string or int: %w", err)
	}
	*r = RelationKind(i)
	return nil
}

// ParseRelationKind converts a string to a RelationKind.
//
// Returns RelationUnknown if the string is not recognized.
func ParseRelationKind(s string) RelationKind {
	for kind, name := range relationKindNames {
		if name == s {
			return kind
		}
	}
	return RelationUnknown
}

// Confidence is the ranked certainty of a Reference.
//
// The ordering is meaningful: HIGH > MEDIUM > LOW > INFERRED. A reference at
// a given confidence is never downgraded by a later linker producing the same
// (source, target, relation) triple at lower confidence.
type Confidence int

const (
	// ConfidenceInferred marks a weak heuristic match (substring/fuzzy
	// name similarity).
	ConfidenceInferred Confidence = iota

	// ConfidenceLow marks a generic naming-convention guess.
	ConfidenceLow

	// ConfidenceMedium marks a well-known framework naming convention with
	// no explicit override present.
	ConfidenceMedium

	// ConfidenceHigh marks an explicit, source-declared mapping (e.g. an
	// annotation argument).
	ConfidenceHigh
)

// confidenceNames maps Confidence values to their string representations.
var confidenceNames = map[Confidence]string{
	ConfidenceInferred: "inferred",
	ConfidenceLow:      "low",
	ConfidenceMedium:   "medium",
	ConfidenceHigh:     "high",
}

// String returns the string representation of the Confidence.
func (c Confidence) String() string {
	if name, ok := confidenceNames[c]; ok {
		return name
	}
	return "inferred"
}

// MarshalJSON serializes the confidence as a JSON string.
func (c Confidence) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON accepts both string and numeric confidence values.
func (c *Confidence) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*c = ParseConfidence(s)
		return nil
	}

	var i int
	if err := json.Unmarshal(data, &i); err != nil {
		return fmt.Errorf("Confidence must be string or int: %w", err)
	}
	*c = Confidence(i)
	return nil
}

// ParseConfidence converts a string to a Confidence.
//
// Returns ConfidenceInferred if the string is not recognized.
func ParseConfidence(s string) Confidence {
	for c, name := range confidenceNames {
		if name == s {
			return c
		}
	}
	return ConfidenceInferred
}

// Reference represents a typed, confidence-scored edge between two nodes.
//
// References connect symbols across structurally different domains (a UI
// binding to the model field it binds, the field to the column it persists
// to) beyond the plain call graph. Every reference must justify its
// confidence in Evidence: the map records exactly which signal produced the
// match.
type Reference struct {
	// SourceID is the ID of the source node.
	SourceID string `json:"source_id"`

	// TargetID is the ID of the target node.
	TargetID string `json:"target_id"`

	// Relation is the relationship type.
	Relation RelationKind `json:"relation_kind"`

	// Confidence is the ranked certainty of this reference.
	Confidence Confidence `json:"confidence"`

	// Evidence describes the signal that produced the match, e.g.
	// {"linker": "entity_column", "signal": "column_annotation"}.
	Evidence map[string]string `json:"evidence,omitempty"`
}

// Key returns the identity of this reference for deduplication.
//
// Two references with the same (source, target, relation) triple are the
// same edge; confidence and evidence are attributes, not identity.
func (r Reference) Key() string {
	return r.SourceID + "\x00" + r.Relation.String() + "\x00" + r.TargetID
}

// Validate checks if the Reference has valid field values.
func (r Reference) Validate() error {
	if r.SourceID == "" {
		return ValidationError{Field: "SourceID", Message: "must not be empty"}
	}
	if r.TargetID == "" {
		return ValidationError{Field: "TargetID", Message: "must not be empty"}
	}
	if r.Relation == RelationUnknown {
		return ValidationError{Field: "Relation", Message: "must not be unknown"}
	}
	return nil
}

// Clone returns a deep copy of the reference.
func (r Reference) Clone() Reference {
	out := r
	if r.Evidence != nil {
		out.Evidence = make(map[string]string, len(r.Evidence))
		for k, v := range r.Evidence {
			out.Evidence[k] = v
		}
	}
	return out
}
