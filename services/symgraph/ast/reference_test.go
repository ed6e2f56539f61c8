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
	"testing"
)

func TestConfidenceOrdering(t *testing.T) {
	// The whole never-downgrade discipline rests on this ordering.
	if !(ConfidenceInferred < ConfidenceLow &&
		ConfidenceLow < ConfidenceMedium &&
		ConfidenceMedium < ConfidenceHigh) {
		t.Fatal("confidence levels are not ordered inferred < low < medium < high")
	}
}

func TestConfidenceJSON(t *testing.T) {
	data, err := json.Marshal(ConfidenceHigh)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != `"high"` {
		t.Errorf("Marshal() = %s, want \"high\"", data)
	}

	var c Confidence
	if err := json.Unmarshal([]byte(`"inferred"`), &c); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if c != ConfidenceInferred {
		t.Errorf("Unmarshal() = %v, want ConfidenceInferred", c)
	}
}

func TestReferenceKey(t *testing.T) {
	a := Reference{SourceID: "s", TargetID: "t", Relation: RelationBindsTo, Confidence: ConfidenceLow}
	b := Reference{SourceID: "s", TargetID: "t", Relation: RelationBindsTo, Confidence: ConfidenceHigh}
	c := Reference{SourceID: "s", TargetID: "t", Relation: RelationMapsTo}

	// Confidence is evidence, not identity.
	if a.Key() != b.Key() {
		t.Error("Key() differs for the same edge at different confidence")
	}
	if a.Key() == c.Key() {
		t.Error("Key() collides across relation kinds")
	}
}

func TestReferenceValidate(t *testing.T) {
	valid := Reference{
		SourceID:   "a",
		TargetID:   "b",
		Relation:   RelationMapsTo,
		Confidence: ConfidenceMedium,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}

	tests := []struct {
		name   string
		mutate func(*Reference)
	}{
		{"missing source", func(r *Reference) { r.SourceID = "" }},
		{"missing target", func(r *Reference) { r.TargetID = "" }},
		{"unknown relation", func(r *Reference) { r.Relation = RelationUnknown }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			tt.mutate(&r)
			if err := r.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestParseRelationKind(t *testing.T) {
	if got := ParseRelationKind("binds_to"); got != RelationBindsTo {
		t.Errorf("ParseRelationKind(binds_to) = %v", got)
	}
	if got := ParseRelationKind("nonsense"); got != RelationUnknown {
		t.Errorf("ParseRelationKind(nonsense) = %v, want RelationUnknown", got)
	}
}
