// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/AleutianAI/symgraph/services/symgraph/ast"
)

// Default configuration values.
const (
	// DefaultMaxNodes is the default maximum number of nodes the store can hold.
	DefaultMaxNodes = 1_000_000

	// searchCheckInterval is how often Search checks for context cancellation.
	searchCheckInterval = 1000
)

// Options configures Store behavior and limits.
type Options struct {
	// MaxNodes is the maximum number of nodes the store can hold.
	// Attempting to add more nodes returns ErrMaxNodesExceeded.
	// Default: 1,000,000
	MaxNodes int
}

// DefaultOptions returns the default options.
func DefaultOptions() Options {
	return Options{
		MaxNodes: DefaultMaxNodes,
	}
}

// Option is a functional option for configuring Store.
type Option func(*Options)

// WithMaxNodes sets the maximum number of nodes the store can hold.
func WithMaxNodes(n int) Option {
	return func(o *Options) {
		o.MaxNodes = n
	}
}

// Stats contains statistics about the store.
type Stats struct {
	// TotalNodes is the total number of nodes in the store.
	TotalNodes int

	// ByKind maps each SymbolKind to the count of nodes of that kind.
	ByKind map[ast.SymbolKind]int

	// FileCount is the number of unique files with nodes in the store.
	FileCount int

	// ReferenceCount is the number of cross-domain references.
	ReferenceCount int

	// MaxNodes is the configured maximum capacity.
	MaxNodes int
}

// Store is the canonical, queryable symbol graph for one snapshot.
//
// The store maintains multiple maps for efficient access patterns:
//   - byID: Primary index for unique node lookup
//   - byName: Secondary index for name-based queries
//   - byFile: Secondary index for file-based queries
//   - byKind: Secondary index for kind-based queries
//
// Cross-domain references are indexed by their (source, target, relation)
// identity so repeated linker runs cannot create duplicates.
//
// Thread Safety:
//
//	Reads are safe for concurrent use. Resolution passes mutate nodes in
//	place; the calling process must guarantee at most one mutating pass is
//	in flight against a store at a time.
type Store struct {
	mu sync.RWMutex

	// Primary index: ID → node
	byID map[string]*ast.SymbolNode

	// Secondary indexes: key → []*node
	byName map[string][]*ast.SymbolNode
	byFile map[string][]*ast.SymbolNode
	byKind map[ast.SymbolKind][]*ast.SymbolNode

	// Cross-domain references keyed by Reference.Key().
	refs map[string]*ast.Reference

	// refsBySource groups reference keys by source node ID.
	refsBySource map[string][]string

	// Maintained counters for O(1) stats
	kindCounts map[ast.SymbolKind]int

	options Options
}

// New creates a new empty store with the given options.
//
// Example:
//
//	// Default options (1M max nodes)
//	s := store.New()
//
//	// Custom options
//	s := store.New(store.WithMaxNodes(100_000))
func New(opts ...Option) *Store {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	return &Store{
		byID:         make(map[string]*ast.SymbolNode),
		byName:       make(map[string][]*ast.SymbolNode),
		byFile:       make(map[string][]*ast.SymbolNode),
		byKind:       make(map[ast.SymbolKind][]*ast.SymbolNode),
		refs:         make(map[string]*ast.Reference),
		refsBySource: make(map[string][]string),
		kindCounts:   make(map[ast.SymbolKind]int),
		options:      options,
	}
}

// AddNode adds a node to the store.
//
// Description:
//
//	Validates the node, checks for duplicates and capacity, then adds the
//	node to all indexes. Any References attached to the node (as loaded
//	from a persisted record) are registered in the reference index and the
//	field is cleared; the persist package re-materializes them on save.
//
// Inputs:
//
//	node - The node to add. Must pass SymbolNode.Validate().
//
// Outputs:
//
//	error - Non-nil if validation fails, the ID already exists, or the
//	        store is at capacity.
//
// Errors:
//
//	ErrInvalidNode - Node failed validation
//	ErrDuplicateNode - Node with same ID already exists
//	ErrMaxNodesExceeded - Store is at capacity
func (s *Store) AddNode(node *ast.SymbolNode) error {
	if node == nil {
		return fmt.Errorf("%w: node is nil", ErrInvalidNode)
	}

	// Validate before acquiring lock (fail fast)
	if err := node.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidNode, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.byID) >= s.options.MaxNodes {
		return ErrMaxNodesExceeded
	}

	if _, exists := s.byID[node.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, node.ID)
	}

	pending := node.References
	node.References = nil

	s.byID[node.ID] = node
	s.byName[node.Name] = append(s.byName[node.Name], node)
	if node.FilePath != "" {
		s.byFile[node.FilePath] = append(s.byFile[node.FilePath], node)
	}
	s.byKind[node.Kind] = append(s.byKind[node.Kind], node)
	s.kindCounts[node.Kind]++

	for _, ref := range pending {
		s.addReferenceLocked(ref)
	}

	return nil
}

// Get retrieves a node by its unique ID.
//
// Returns the node and true if found, nil and false otherwise.
func (s *Store) Get(id string) (*ast.SymbolNode, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	node, exists := s.byID[id]
	return node, exists
}

// FindByName retrieves all nodes with the given name.
//
// Multiple nodes can share a name (e.g., "Handler" in different files).
// The returned slice is a defensive copy.
func (s *Store) FindByName(name string) []*ast.SymbolNode {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return copyNodes(s.byName[name])
}

// FindByFile retrieves all nodes declared in the given file.
//
// The returned slice is a defensive copy.
func (s *Store) FindByFile(filePath string) []*ast.SymbolNode {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return copyNodes(s.byFile[filePath])
}

// FindByKind retrieves all nodes of the given kind.
//
// The returned slice is a defensive copy, sorted by node ID so callers
// iterate deterministically.
func (s *Store) FindByKind(kind ast.SymbolKind) []*ast.SymbolNode {
	s.mu.RLock()
	defer s.mu.RUnlock()

	nodes := copyNodes(s.byKind[kind])
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes
}

// copyNodes returns a defensive copy of the given slice.
func copyNodes(src []*ast.SymbolNode) []*ast.SymbolNode {
	if len(src) == 0 {
		return nil
	}
	out := make([]*ast.SymbolNode, len(src))
	copy(out, src)
	return out
}

// NodeIDs returns all node IDs in lexicographic order.
func (s *Store) NodeIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.byID))
	for id := range s.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Nodes returns all nodes sorted by ID.
//
// The slice is a fresh copy; the node pointers are shared.
func (s *Store) Nodes() []*ast.SymbolNode {
	s.mu.RLock()
	defer s.mu.RUnlock()

	nodes := make([]*ast.SymbolNode, 0, len(s.byID))
	for _, node := range s.byID {
		nodes = append(nodes, node)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes
}

// Files returns all file paths with at least one node, sorted.
func (s *Store) Files() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	files := make([]string, 0, len(s.byFile))
	for f := range s.byFile {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}

// Len returns the number of nodes in the store.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// AddReference records a cross-domain reference.
//
// Description:
//
//	References are deduplicated by their (source, target, relation)
//	identity. An existing reference is never downgraded: a duplicate at
//	lower or equal confidence is a no-op, a duplicate at strictly higher
//	confidence replaces the stored one.
//
// Inputs:
//
//	ref - The reference to add. Source and target must exist in the store.
//
// Outputs:
//
//	bool - True if the reference was stored (new or upgraded).
//	error - Non-nil if validation fails or an endpoint is unknown.
//
// Errors:
//
//	ErrInvalidReference - Reference failed validation
//	ErrUnknownNode - Source or target ID is not in the store
func (s *Store) AddReference(ref ast.Reference) (bool, error) {
	if err := ref.Validate(); err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[ref.SourceID]; !ok {
		return false, fmt.Errorf("%w: source %s", ErrUnknownNode, ref.SourceID)
	}
	if _, ok := s.byID[ref.TargetID]; !ok {
		return false, fmt.Errorf("%w: target %s", ErrUnknownNode, ref.TargetID)
	}

	return s.addReferenceLocked(ref), nil
}

// addReferenceLocked inserts a reference. Caller must hold s.mu.Lock().
// Endpoint existence is not re-checked; used by AddNode for loaded records.
func (s *Store) addReferenceLocked(ref ast.Reference) bool {
	key := ref.Key()
	if existing, ok := s.refs[key]; ok {
		if existing.Confidence >= ref.Confidence {
			return false
		}
		// Upgrade in place; identity is unchanged so indexes stay valid.
		clone := ref.Clone()
		s.refs[key] = &clone
		return true
	}

	clone := ref.Clone()
	s.refs[key] = &clone
	s.refsBySource[ref.SourceID] = append(s.refsBySource[ref.SourceID], key)
	return true
}

// ReferencesFrom returns the references whose source is the given node,
// sorted by key for deterministic iteration.
func (s *Store) ReferencesFrom(sourceID string) []ast.Reference {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := s.refsBySource[sourceID]
	if len(keys) == 0 {
		return nil
	}
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	out := make([]ast.Reference, 0, len(sorted))
	for _, k := range sorted {
		if ref, ok := s.refs[k]; ok {
			out = append(out, ref.Clone())
		}
	}
	return out
}

// References returns all cross-domain references sorted by key.
func (s *Store) References() []ast.Reference {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.refs))
	for k := range s.refs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]ast.Reference, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.refs[k].Clone())
	}
	return out
}

// ReferenceCount returns the number of cross-domain references.
func (s *Store) ReferenceCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.refs)
}

// RemoveFile removes all nodes declared in the given file.
//
// Description:
//
//	Deletes the file's nodes from every index, purges the removed IDs from
//	every remaining node's dependents and resolved edge lists, and drops cross-domain
//	references touching a removed node on either end. No dangling IDs
//	survive removal.
//
// Inputs:
//
//	filePath - The file whose nodes should be removed.
//
// Outputs:
//
//	int - Number of nodes removed. 0 if the file had no nodes (not an error).
func (s *Store) RemoveFile(filePath string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	nodes := s.byFile[filePath]
	if len(nodes) == 0 {
		return 0
	}

	removed := make(map[string]bool, len(nodes))
	for _, node := range nodes {
		removed[node.ID] = true
	}

	for _, node := range nodes {
		delete(s.byID, node.ID)

		s.byName[node.Name] = removeNode(s.byName[node.Name], node)
		if len(s.byName[node.Name]) == 0 {
			delete(s.byName, node.Name)
		}

		s.byKind[node.Kind] = removeNode(s.byKind[node.Kind], node)
		if len(s.byKind[node.Kind]) == 0 {
			delete(s.byKind, node.Kind)
		}

		s.kindCounts[node.Kind]--
		if s.kindCounts[node.Kind] == 0 {
			delete(s.kindCounts, node.Kind)
		}
	}
	delete(s.byFile, filePath)

	// Purge removed IDs from every remaining node's edge lists, both
	// directions.
	for _, node := range s.byID {
		node.Dependents = filterIDs(node.Dependents, removed)
		node.ResolvedCalls = filterIDs(node.ResolvedCalls, removed)
		node.ResolvedBases = filterIDs(node.ResolvedBases, removed)
		node.ResolvedImports = filterIDs(node.ResolvedImports, removed)
	}

	// Drop references that touch a removed node on either end.
	for key, ref := range s.refs {
		if removed[ref.SourceID] || removed[ref.TargetID] {
			delete(s.refs, key)
			s.refsBySource[ref.SourceID] = removeKey(s.refsBySource[ref.SourceID], key)
			if len(s.refsBySource[ref.SourceID]) == 0 {
				delete(s.refsBySource, ref.SourceID)
			}
		}
	}

	return len(nodes)
}

// removeNode removes the given node from the slice by pointer equality.
func removeNode(slice []*ast.SymbolNode, node *ast.SymbolNode) []*ast.SymbolNode {
	for i, n := range slice {
		if n == node {
			slice[i] = slice[len(slice)-1]
			return slice[:len(slice)-1]
		}
	}
	return slice
}

// removeKey removes the given key from the slice.
func removeKey(slice []string, key string) []string {
	for i, k := range slice {
		if k == key {
			slice[i] = slice[len(slice)-1]
			return slice[:len(slice)-1]
		}
	}
	return slice
}

// filterIDs returns ids minus the entries present in drop.
// Returns nil if nothing survives, preserving omitempty serialization.
func filterIDs(ids []string, drop map[string]bool) []string {
	if len(ids) == 0 {
		return ids
	}
	out := ids[:0]
	for _, id := range ids {
		if !drop[id] {
			out = append(out, id)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Search finds nodes matching the query string.
//
// Description:
//
//	Performs fuzzy search across all node names. Results are sorted by
//	relevance: exact matches first, then prefix matches, then substring
//	matches, then fuzzy matches (Levenshtein distance < 3).
//
// Performance:
//
//	O(n) where n is total nodes. The context is checked periodically
//	during search to allow cancellation.
//
// Inputs:
//
//	ctx - Context for cancellation
//	query - Search string (case-insensitive)
//	limit - Maximum number of results to return (0 = no limit)
//
// Outputs:
//
//	[]*ast.SymbolNode - Matching nodes sorted by relevance
//	error - Non-nil if context was cancelled
func (s *Store) Search(ctx context.Context, query string, limit int) ([]*ast.SymbolNode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if query == "" {
		return nil, nil
	}

	queryLower := strings.ToLower(query)

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scoredNode struct {
		node  *ast.SymbolNode
		score int // Lower is better: 0=exact, 1=prefix, 2=contains, 3=fuzzy
	}

	var results []scoredNode
	count := 0

	for _, node := range s.byID {
		count++
		if count%searchCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		nameLower := strings.ToLower(node.Name)
		score := -1

		if nameLower == queryLower {
			score = 0
		} else if strings.HasPrefix(nameLower, queryLower) {
			score = 1
		} else if strings.Contains(nameLower, queryLower) {
			score = 2
		} else if levenshteinDistance(nameLower, queryLower) < 3 {
			score = 3
		}

		if score >= 0 {
			results = append(results, scoredNode{node: node, score: score})
		}
	}

	// Sort by score (lower is better), then by ID for stability
	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score < results[j].score
		}
		return results[i].node.ID < results[j].node.ID
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	nodes := make([]*ast.SymbolNode, len(results))
	for i, r := range results {
		nodes[i] = r.node
	}

	return nodes, nil
}

// levenshteinDistance calculates the edit distance between two strings.
// This is a simple implementation for fuzzy matching.
func levenshteinDistance(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	// Use two rows instead of full matrix for memory efficiency
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}

	return prev[len(b)]
}

// Stats returns statistics about the store.
//
// Counts come from maintained counters, not map traversal.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byKind := make(map[ast.SymbolKind]int, len(s.kindCounts))
	for k, v := range s.kindCounts {
		byKind[k] = v
	}

	return Stats{
		TotalNodes:     len(s.byID),
		ByKind:         byKind,
		FileCount:      len(s.byFile),
		ReferenceCount: len(s.refs),
		MaxNodes:       s.options.MaxNodes,
	}
}
