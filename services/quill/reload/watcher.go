// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package reload

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/AleutianAI/quill/services/quill/namespace"
)

// Watcher marks modules pending when their source files change outside
// the file tools, for example when a developer edits alongside the agent.
//
// Every directory under the inferrer's source roots is watched, including
// directories created after Run starts. Roots that do not exist are
// skipped with a warning.
type Watcher struct {
	inferrer *namespace.Inferrer
	sink     PendingSink
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
}

// NewWatcher creates a watcher over the inferrer's source roots.
//
// Outputs:
//
//	*Watcher - Ready to Run. Call Close if Run is never started.
//	error - Non-nil if the OS watcher could not be created.
func NewWatcher(inferrer *namespace.Inferrer, sink PendingSink, logger *slog.Logger) (*Watcher, error) {
	if inferrer == nil || sink == nil {
		return nil, fmt.Errorf("watcher requires an inferrer and a sink")
	}
	if logger == nil {
		logger = slog.Default()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}

	w := &Watcher{
		inferrer: inferrer,
		sink:     sink,
		watcher:  fw,
		logger:   logger,
	}

	for _, root := range inferrer.Roots() {
		if _, err := os.Stat(root); err != nil {
			logger.Warn("source root not watched", slog.String("root", root), slog.String("error", err.Error()))
			continue
		}
		if err := w.addTree(root, false); err != nil {
			_ = fw.Close()
			return nil, err
		}
	}
	return w, nil
}

// WatchList returns the directories currently watched.
func (w *Watcher) WatchList() []string {
	return w.watcher.WatchList()
}

// Run processes events until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", slog.String("error", err.Error()))
		}
	}
}

// Close stops the watcher. Run returns once its channels are closed.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name, true); err != nil {
				w.logger.Warn("watch new directory failed",
					slog.String("path", event.Name),
					slog.String("error", err.Error()),
				)
			}
			return
		}
	}

	w.markPending(event.Name, event.Op.String())
}

func (w *Watcher) markPending(path, op string) {
	id, ok := w.inferrer.Infer(path)
	if !ok {
		return
	}
	w.sink.AddPending(id)
	watcherEventsTotal.Inc()

	w.logger.Debug("module pending",
		slog.String("module", id),
		slog.String("path", path),
		slog.String("op", op),
	)
}

// addTree watches dir and every directory below it. With markFiles set,
// source files found while walking are marked pending, since their create
// events may have fired before the directory was watched.
func (w *Watcher) addTree(dir string, markFiles bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			if markFiles {
				w.markPending(path, "CREATE")
			}
			return nil
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}
