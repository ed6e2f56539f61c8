// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package updater

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/AleutianAI/symgraph/services/symgraph/ast"
)

// WatcherOptions configures a Watcher.
type WatcherOptions struct {
	// Debounce is how long to wait after the last change before applying
	// the accumulated batch. Default: 500ms.
	Debounce time.Duration

	// Extensions restricts updates to files with these extensions
	// (including the dot, e.g. ".py"). Empty means every file.
	Extensions []string

	// IgnoreDirs are directory names skipped during the recursive watch.
	IgnoreDirs []string

	// BufferSize is the capacity of the internal event channel.
	// Default: 1024.
	BufferSize int

	// Logger receives watch and update logs. Defaults to slog.Default.
	Logger *slog.Logger
}

// DefaultWatcherOptions returns the default watch configuration.
func DefaultWatcherOptions() WatcherOptions {
	return WatcherOptions{
		Debounce:   500 * time.Millisecond,
		IgnoreDirs: []string{".git", "node_modules", "__pycache__", ".idea", "venv"},
		BufferSize: 1024,
		Logger:     slog.Default(),
	}
}

// fileEvent is one relevant filesystem change.
type fileEvent struct {
	path    string
	removed bool
}

// Watcher keeps a persisted graph in sync with a source tree.
//
// Description:
//
//	Recursively watches a root directory and applies debounced change
//	batches through an Updater: written and created files are re-indexed,
//	deleted and renamed-away files are removed from the graph. Each
//	debounced batch costs one graph load and one atomic write.
//
// Thread Safety:
//
//	Run owns all mutation; it may only be called once per Watcher.
type Watcher struct {
	root      string
	graphPath string
	parse     ast.ParseFunc
	updater   *Updater
	opts      WatcherOptions

	fsw    *fsnotify.Watcher
	events chan fileEvent
	ext    map[string]bool
	ignore map[string]bool
}

// NewWatcher creates a watcher that keeps graphPath in sync with root.
func NewWatcher(root, graphPath string, parse ast.ParseFunc, u *Updater, opts WatcherOptions) (*Watcher, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultWatcherOptions().Debounce
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultWatcherOptions().BufferSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		root:      root,
		graphPath: graphPath,
		parse:     parse,
		updater:   u,
		opts:      opts,
		fsw:       fsw,
		events:    make(chan fileEvent, opts.BufferSize),
		ext:       make(map[string]bool, len(opts.Extensions)),
		ignore:    make(map[string]bool, len(opts.IgnoreDirs)),
	}
	for _, e := range opts.Extensions {
		w.ext[e] = true
	}
	for _, d := range opts.IgnoreDirs {
		w.ignore[d] = true
	}
	return w, nil
}

// Run watches until the context is cancelled.
//
// Description:
//
//	Adds the root tree to the watch set, then loops converting raw
//	filesystem events into debounced update batches. Update failures are
//	logged and watching continues; only context cancellation ends the
//	loop.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	if err := w.addTree(w.root); err != nil {
		return err
	}
	w.opts.Logger.Info("watching for changes",
		slog.String("root", w.root),
		slog.String("graph", w.graphPath),
		slog.Duration("debounce", w.opts.Debounce),
	)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.collectEvents(ctx)
	}()

	w.debounceLoop(ctx)
	wg.Wait()
	return ctx.Err()
}

// addTree adds dir and its subdirectories to the watch set.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if w.ignore[d.Name()] && path != dir {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

// relevant reports whether the path is a file the graph should track.
func (w *Watcher) relevant(path string) bool {
	if len(w.ext) == 0 {
		return true
	}
	return w.ext[filepath.Ext(path)]
}

// collectEvents converts raw fsnotify events into fileEvents.
func (w *Watcher) collectEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.opts.Logger.Warn("watch error", slog.String("error", err.Error()))
		}
	}
}

// handleEvent classifies one fsnotify event.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	// New directories must join the watch set before their contents
	// start changing.
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !w.ignore[filepath.Base(event.Name)] {
				_ = w.addTree(event.Name)
			}
			return
		}
	}

	if !w.relevant(event.Name) {
		return
	}

	ev := fileEvent{path: event.Name}
	switch {
	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		ev.removed = true
	case event.Has(fsnotify.Create) || event.Has(fsnotify.Write):
	default:
		return
	}

	select {
	case w.events <- ev:
	default:
		w.opts.Logger.Warn("event buffer full, dropping change",
			slog.String("file", ev.path),
		)
	}
}

// debounceLoop batches events and applies them once the tree goes quiet.
func (w *Watcher) debounceLoop(ctx context.Context) {
	pending := make(map[string]bool)
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		if len(pending) > 0 {
			w.apply(ctx, pending)
			pending = make(map[string]bool)
		}
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-w.events:
			// Later events for the same path win.
			pending[ev.path] = ev.removed
			if timer == nil {
				timer = time.NewTimer(w.opts.Debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.opts.Debounce)
			}
		case <-timerC:
			flush()
		}
	}
}

// apply pushes one debounced batch through the updater.
func (w *Watcher) apply(ctx context.Context, pending map[string]bool) {
	var changed, removed []string
	for path, isRemoved := range pending {
		if isRemoved {
			removed = append(removed, path)
		} else {
			changed = append(changed, path)
		}
	}
	sort.Strings(changed)
	sort.Strings(removed)

	if len(changed) > 0 {
		if _, err := w.updater.Update(ctx, changed, w.parse, w.graphPath); err != nil {
			w.opts.Logger.Error("watch update failed",
				slog.Int("files", len(changed)),
				slog.String("error", err.Error()),
			)
		}
	}
	for _, path := range removed {
		if _, err := w.updater.Remove(ctx, path, w.graphPath); err != nil {
			w.opts.Logger.Error("watch removal failed",
				slog.String("file", path),
				slog.String("error", err.Error()),
			)
		}
	}
}
