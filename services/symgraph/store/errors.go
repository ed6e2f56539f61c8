// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store provides the canonical in-memory symbol graph for one
// snapshot of a codebase.
//
// The Store holds SymbolNodes indexed by ID, name, file, and kind, plus the
// cross-domain References produced by the linker framework. It contains no
// persistence logic; callers decide when and how to serialize (see the
// persist package).
//
// # Ownership Model
//
// The store holds pointers to nodes. Resolution passes (dependency linker,
// incremental updater) mutate nodes in place; the calling process must
// guarantee at most one such pass is in flight against a store at a time.
// Plain reads are safe concurrently with each other.
package store

import (
	"errors"
)

// Sentinel errors for store operations.
var (
	// ErrInvalidNode is returned when a node fails validation.
	// The underlying error from SymbolNode.Validate() is wrapped.
	ErrInvalidNode = errors.New("invalid node")

	// ErrDuplicateNode is returned when adding a node with an ID that
	// already exists in the store.
	ErrDuplicateNode = errors.New("duplicate node ID")

	// ErrMaxNodesExceeded is returned when the store has reached its
	// configured maximum capacity.
	ErrMaxNodesExceeded = errors.New("maximum node count exceeded")

	// ErrInvalidReference is returned when a reference fails validation.
	ErrInvalidReference = errors.New("invalid reference")

	// ErrUnknownNode is returned when a reference names a node ID that is
	// not present in the store.
	ErrUnknownNode = errors.New("unknown node ID")
)
