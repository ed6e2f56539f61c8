// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package persist reads and writes the canonical symbol graph file.
//
// The persisted format is newline-delimited JSON, one record per node,
// including resolved reference target IDs, the dependents array, and any
// cross-domain references whose source is the node. Readers ignore unknown
// fields and skip malformed lines with a warning rather than aborting.
//
// The canonical file is replaced wholesale: writers stage into a temp file
// in the same directory and atomically rename it over the target. A crash
// mid-write never yields a partially written canonical file.
package persist

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/AleutianAI/symgraph/services/symgraph/ast"
	"github.com/AleutianAI/symgraph/services/symgraph/store"
)

// Default configuration values.
const (
	// DefaultMaxLineBytes is the maximum size of a single NDJSON record.
	// Records beyond this are treated as malformed.
	DefaultMaxLineBytes = 16 * 1024 * 1024

	// tmpSuffix is appended to the target path for the staging file.
	tmpSuffix = ".tmp"
)

// ErrWriterClosed is returned when writing to a committed or aborted writer.
var ErrWriterClosed = errors.New("snapshot writer is closed")

// LoadOptions configures Load behavior.
type LoadOptions struct {
	// Logger receives warnings about skipped malformed lines.
	// Default: slog.Default()
	Logger *slog.Logger

	// MaxLineBytes bounds the size of a single record.
	// Default: 16MB
	MaxLineBytes int

	// StoreOptions are passed through to the store constructor.
	StoreOptions []store.Option
}

// LoadOption is a functional option for configuring Load.
type LoadOption func(*LoadOptions)

// WithLoadLogger sets the logger used for load warnings.
func WithLoadLogger(logger *slog.Logger) LoadOption {
	return func(o *LoadOptions) {
		o.Logger = logger
	}
}

// WithMaxLineBytes sets the maximum record size.
func WithMaxLineBytes(n int) LoadOption {
	return func(o *LoadOptions) {
		o.MaxLineBytes = n
	}
}

// WithStoreOptions sets options for the store built during load.
func WithStoreOptions(opts ...store.Option) LoadOption {
	return func(o *LoadOptions) {
		o.StoreOptions = opts
	}
}

// LoadReport describes the outcome of loading a graph file.
type LoadReport struct {
	// NodesLoaded is the number of records successfully added to the store.
	NodesLoaded int

	// SkippedLines is the number of malformed lines skipped with a warning.
	SkippedLines int
}

// Load reads the canonical graph file into a new store.
//
// Description:
//
//	Streams the file line by line. Malformed lines, oversized lines, and
//	records that fail validation are skipped with a warning; the load
//	continues. Unknown JSON fields are ignored for forward compatibility.
//
// Inputs:
//
//	path - Path to the canonical graph file.
//	opts - Optional configuration.
//
// Outputs:
//
//	*store.Store - The loaded graph.
//	*LoadReport - Counts of loaded and skipped records.
//	error - Non-nil only if the file cannot be opened or read.
func Load(path string, opts ...LoadOption) (*store.Store, *LoadReport, error) {
	options := LoadOptions{
		Logger:       slog.Default(),
		MaxLineBytes: DefaultMaxLineBytes,
	}
	for _, opt := range opts {
		opt(&options)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening graph file: %w", err)
	}
	defer f.Close()

	s := store.New(options.StoreOptions...)
	report := &LoadReport{}

	reader := bufio.NewReaderSize(f, 64*1024)

	lineNo := 0
	for {
		line, oversized, err := readRecord(reader, options.MaxLineBytes)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("reading graph file: %w", err)
		}
		lineNo++

		if oversized {
			report.SkippedLines++
			options.Logger.Warn("skipping oversized graph record",
				slog.String("path", path),
				slog.Int("line", lineNo),
				slog.Int("max_bytes", options.MaxLineBytes),
			)
			continue
		}
		if len(line) == 0 {
			continue
		}

		var node ast.SymbolNode
		if err := json.Unmarshal(line, &node); err != nil {
			report.SkippedLines++
			options.Logger.Warn("skipping malformed graph record",
				slog.String("path", path),
				slog.Int("line", lineNo),
				slog.String("error", err.Error()),
			)
			continue
		}

		if err := s.AddNode(&node); err != nil {
			report.SkippedLines++
			options.Logger.Warn("skipping invalid graph record",
				slog.String("path", path),
				slog.Int("line", lineNo),
				slog.String("id", node.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		report.NodesLoaded++
	}

	return s, report, nil
}

// readRecord reads the next newline-terminated record, consuming it fully
// even when it exceeds maxBytes. An oversized record is reported rather
// than returned, so one corrupt line never aborts the whole load.
func readRecord(r *bufio.Reader, maxBytes int) (line []byte, oversized bool, err error) {
	for {
		chunk, readErr := r.ReadSlice('\n')
		if !oversized {
			line = append(line, chunk...)
			if len(line) > maxBytes {
				oversized = true
				line = nil
			}
		}

		switch {
		case readErr == bufio.ErrBufferFull:
			continue
		case readErr == io.EOF:
			if len(line) == 0 && !oversized {
				return nil, false, io.EOF
			}
			return trimRecord(line), oversized, nil
		case readErr != nil:
			return nil, false, readErr
		}
		return trimRecord(line), oversized, nil
	}
}

// trimRecord strips the trailing newline, tolerating CRLF files.
func trimRecord(line []byte) []byte {
	line = bytes.TrimSuffix(line, []byte("\n"))
	return bytes.TrimSuffix(line, []byte("\r"))
}

// SnapshotWriter stages NDJSON records into a temp file and atomically
// renames it over the target on Commit.
//
// Lifecycle: NewSnapshotWriter → WriteNode (repeated) → Commit or Abort.
// After Commit or Abort the writer is closed and rejects further writes.
//
// Thread Safety:
//
//	NOT safe for concurrent use. The parallel indexer funnels all writes
//	through a single writer goroutine.
type SnapshotWriter struct {
	target string
	tmp    string
	f      *os.File
	w      *bufio.Writer
	count  int
	closed bool
}

// NewSnapshotWriter creates a staging file next to the target path.
//
// The parent directory is created if missing. The staging file carries a
// ".tmp" suffix so it is never mistaken for the canonical file.
func NewSnapshotWriter(target string) (*SnapshotWriter, error) {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating graph directory: %w", err)
	}

	tmp := target + tmpSuffix
	f, err := os.Create(tmp)
	if err != nil {
		return nil, fmt.Errorf("creating temp graph file: %w", err)
	}

	return &SnapshotWriter{
		target: target,
		tmp:    tmp,
		f:      f,
		w:      bufio.NewWriterSize(f, 256*1024),
	}, nil
}

// WriteNode appends one node as a single NDJSON record.
func (sw *SnapshotWriter) WriteNode(node *ast.SymbolNode) error {
	if sw.closed {
		return ErrWriterClosed
	}

	data, err := json.Marshal(node)
	if err != nil {
		return fmt.Errorf("encoding node %s: %w", node.ID, err)
	}

	if _, err := sw.w.Write(data); err != nil {
		return fmt.Errorf("writing node %s: %w", node.ID, err)
	}
	if err := sw.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("writing node %s: %w", node.ID, err)
	}

	sw.count++
	return nil
}

// Count returns the number of records written so far.
func (sw *SnapshotWriter) Count() int {
	return sw.count
}

// Commit flushes, fsyncs, and atomically renames the staging file over the
// target.
//
// On any failure the staging file is removed and the previous canonical
// file is untouched.
func (sw *SnapshotWriter) Commit() error {
	if sw.closed {
		return ErrWriterClosed
	}
	sw.closed = true

	if err := sw.w.Flush(); err != nil {
		sw.discard()
		return fmt.Errorf("flushing graph file: %w", err)
	}
	if err := sw.f.Sync(); err != nil {
		sw.discard()
		return fmt.Errorf("syncing graph file: %w", err)
	}
	if err := sw.f.Close(); err != nil {
		os.Remove(sw.tmp)
		return fmt.Errorf("closing graph file: %w", err)
	}

	if err := os.Rename(sw.tmp, sw.target); err != nil {
		os.Remove(sw.tmp)
		return fmt.Errorf("renaming graph file: %w", err)
	}

	return nil
}

// Abort discards the staging file. Safe to call after Commit (no-op).
func (sw *SnapshotWriter) Abort() {
	if sw.closed {
		return
	}
	sw.closed = true
	sw.discard()
}

// discard closes and removes the staging file, ignoring errors.
func (sw *SnapshotWriter) discard() {
	sw.f.Close()
	os.Remove(sw.tmp)
}

// Save writes the full store to the target path atomically.
//
// Description:
//
//	Nodes are written in lexicographic ID order so identical stores
//	produce identical files. Cross-domain references are materialized onto
//	their source node's record without mutating the in-memory node.
//
// Outputs:
//
//	int - Number of records written.
//	error - Non-nil on any write failure; the previous canonical file is
//	        untouched in that case.
func Save(s *store.Store, path string) (int, error) {
	sw, err := NewSnapshotWriter(path)
	if err != nil {
		return 0, err
	}

	for _, node := range s.Nodes() {
		record := *node
		record.References = s.ReferencesFrom(node.ID)
		if err := sw.WriteNode(&record); err != nil {
			sw.Abort()
			return 0, err
		}
	}

	count := sw.Count()
	if err := sw.Commit(); err != nil {
		return 0, err
	}
	return count, nil
}
