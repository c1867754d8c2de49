// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package file implements the file-mutation engine used by code agents.
//
// Every mutating operation (Write, Append, Insert, Replace) follows the
// same pipeline:
//
//	snapshot → compute content → AtomicWrite → formatter → recount → infer module
//
// and returns a Result describing line-count deltas, threshold status and
// the affected module. Stat reports metadata without mutating anything.
//
// # Concurrency
//
// Operations are synchronous and hold no locks. Append, Insert and Replace
// read, compute and write with no lock across that window, so concurrent
// calls on the same path can lose updates. Each individual write is atomic.
// Callers needing per-path ordering must serialize calls themselves, for
// example with tools.WithPathSerialization.
//
// Operations take a context for logging, tracing and formatter commands.
// A started write is never abandoned part way.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/AleutianAI/quill/services/quill/namespace"
	"github.com/AleutianAI/quill/services/quill/reload"
)

// Config is the engine configuration. It is copied by NewEngine and never
// mutated afterwards.
type Config struct {
	// ProjectRoot is the absolute project directory. Required. Operations
	// on paths outside it fail with ErrPathDenied.
	ProjectRoot string

	// SourceRoots are relative to ProjectRoot, in priority order.
	// Default: ["src"].
	SourceRoots []string

	// DefaultThreshold applies when an operation supplies no threshold.
	DefaultThreshold *int

	// Formatters maps an extension with its leading dot to a formatter.
	Formatters map[string]FormatFunc

	// ReloadExecutor is carried for callers that reload pending modules.
	// The engine never calls it. Default: reload.Noop.
	ReloadExecutor reload.Executor

	// Language selects the recognized source family. Default: Clojure.
	Language *namespace.Language

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Engine runs file operations against one project.
//
// Thread Safety: safe for concurrent use; see the package documentation
// for same-path semantics.
type Engine struct {
	root             string
	defaultThreshold *int
	formatters       map[string]FormatFunc
	inferrer         *namespace.Inferrer
	reloader         reload.Executor
	logger           *slog.Logger
}

// NewEngine validates cfg and builds an Engine.
//
// Errors:
//
//	*ConfigError (wrapping ErrConfiguration) for a missing or relative
//	project root, a root that is not a directory, an empty source root,
//	a negative default threshold, or a malformed formatter entry.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.ProjectRoot == "" {
		return nil, &ConfigError{Field: "ProjectRoot", Reason: "required"}
	}
	if !filepath.IsAbs(cfg.ProjectRoot) {
		return nil, &ConfigError{Field: "ProjectRoot", Reason: "must be absolute"}
	}
	info, err := os.Stat(cfg.ProjectRoot)
	if err != nil {
		return nil, &ConfigError{Field: "ProjectRoot", Reason: err.Error()}
	}
	if !info.IsDir() {
		return nil, &ConfigError{Field: "ProjectRoot", Reason: "not a directory"}
	}

	for i, root := range cfg.SourceRoots {
		if strings.TrimSpace(root) == "" {
			return nil, &ConfigError{Field: fmt.Sprintf("SourceRoots[%d]", i), Reason: "empty"}
		}
	}

	if cfg.DefaultThreshold != nil && *cfg.DefaultThreshold < 0 {
		return nil, &ConfigError{Field: "DefaultThreshold", Reason: "must not be negative"}
	}

	formatters := make(map[string]FormatFunc, len(cfg.Formatters))
	for ext, f := range cfg.Formatters {
		if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
			return nil, &ConfigError{Field: "Formatters", Reason: fmt.Sprintf("extension %q must start with a dot", ext)}
		}
		if f == nil {
			return nil, &ConfigError{Field: "Formatters", Reason: fmt.Sprintf("nil formatter for %q", ext)}
		}
		formatters[ext] = f
	}

	lang := namespace.Clojure
	if cfg.Language != nil {
		lang = *cfg.Language
	}

	root := namespace.Canonical(cfg.ProjectRoot)

	var threshold *int
	if cfg.DefaultThreshold != nil {
		v := *cfg.DefaultThreshold
		threshold = &v
	}

	reloader := cfg.ReloadExecutor
	if reloader == nil {
		reloader = reload.Noop{}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		root:             root,
		defaultThreshold: threshold,
		formatters:       formatters,
		inferrer:         namespace.NewInferrer(root, cfg.SourceRoots, lang),
		reloader:         reloader,
		logger:           logger.With(slog.String("component", "file")),
	}, nil
}

// ProjectRoot returns the canonical project root.
func (e *Engine) ProjectRoot() string {
	return e.root
}

// Inferrer returns the module inferrer shared with watchers.
func (e *Engine) Inferrer() *namespace.Inferrer {
	return e.inferrer
}

// ReloadExecutor returns the configured reload executor.
func (e *Engine) ReloadExecutor() reload.Executor {
	return e.reloader
}

// ResolvePath returns the absolute form of path, resolving relative paths
// against the project root. Paths whose canonical form lies outside the
// project root are rejected with ErrIO and ErrPathDenied.
func (e *Engine) ResolvePath(path string) (string, error) {
	return e.resolve("resolve", path)
}

func (e *Engine) resolve(op, path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", invalidArg(op, path, "path is required")
	}

	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(e.root, abs)
	}
	abs = filepath.Clean(abs)

	canonical := namespace.Canonical(abs)
	if !strings.HasPrefix(canonical, e.root+string(filepath.Separator)) {
		return "", &OpError{Op: op, Path: abs, Err: fmt.Errorf("%w: %w", ErrIO, ErrPathDenied)}
	}
	return abs, nil
}

// threshold picks the per-call limit, falling back to the default.
func (e *Engine) threshold(op, path string, limit *int) (*int, error) {
	if limit == nil {
		return e.defaultThreshold, nil
	}
	if *limit < 0 {
		return nil, invalidArg(op, path, "threshold must not be negative")
	}
	return limit, nil
}

// snapshot reads the pre-mutation state. A missing file is not an error.
func (e *Engine) snapshot(op, path string) (snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return snapshot{}, nil
		}
		return snapshot{}, ioError(op, path, err)
	}
	return snapshot{
		existed: true,
		lines:   CountLinesBytes(data),
		content: data,
	}, nil
}

// requireExisting is snapshot for operations whose target must exist.
func (e *Engine) requireExisting(op, path string) (snapshot, error) {
	pre, err := e.snapshot(op, path)
	if err != nil {
		return pre, err
	}
	if !pre.existed {
		return pre, &OpError{Op: op, Path: path, Err: ErrFileNotFound}
	}
	return pre, nil
}

// commit writes content and runs the rest of the shared pipeline.
func (e *Engine) commit(ctx context.Context, op, path string, pre snapshot, content []byte, createParentDirs bool, limit *int) (*Result, error) {
	if err := AtomicWrite(path, content, createParentDirs); err != nil {
		return nil, ioError(op, path, err)
	}

	format := e.runFormatter(ctx, path)

	after, err := CountLines(path)
	if err != nil {
		return nil, ioError(op, path, err)
	}

	result := buildResult(path, pre, after, limit, e.module(path), format)

	e.logger.DebugContext(ctx, "file operation complete",
		slog.String("op", op),
		slog.String("path", path),
		slog.String("status", string(result.Status)),
		slog.Int("loc_after", after),
		slog.String("module", result.ModuleID()),
	)
	return result, nil
}

func (e *Engine) module(path string) *ModuleInfo {
	id, ok := e.inferrer.Infer(path)
	if !ok {
		return nil
	}
	return &ModuleInfo{
		Identifiers: []string{id},
		Kind:        e.inferrer.Kind(),
	}
}

// observe records metrics for one finished operation.
func (e *Engine) observe(ctx context.Context, op string, start time.Time, result *Result, err error) {
	recordOperation(op, start, result, err)
	if err != nil {
		e.logger.DebugContext(ctx, "file operation failed",
			slog.String("op", op),
			slog.String("error", err.Error()),
			slog.String("kind", string(KindOf(err))),
		)
	}
}
