// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/sourcegraph/go-diff/diff"

	"github.com/AleutianAI/quill/services/quill/reload"
	"github.com/AleutianAI/quill/services/quill/tools"
)

// Tool names, used as operation keys in the audit log.
const (
	ToolWrite   = "file_write"
	ToolAppend  = "file_append"
	ToolInsert  = "file_insert"
	ToolReplace = "file_replace"
	ToolInfo    = "file_info"
)

// toolTimeout covers formatter commands, the only slow step.
const toolTimeout = 60 * time.Second

// RegisterFileTools registers all file tools backed by engine.
func RegisterFileTools(registry *tools.Registry, engine *Engine) error {
	for _, tool := range []tools.Tool{
		NewWriteTool(engine),
		NewAppendTool(engine),
		NewInsertTool(engine),
		NewReplaceTool(engine),
		NewInfoTool(engine),
	} {
		if err := registry.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

var zero = 0.0

var thresholdParam = tools.ParamDef{
	Type:        tools.ParamTypeInt,
	Description: "Line-count limit to report against. Overrides the project default. The write still happens when exceeded.",
	Minimum:     &zero,
}

var pathParam = tools.ParamDef{
	Type:        tools.ParamTypeString,
	Description: "File path, absolute or relative to the project root",
	Required:    true,
}

// =============================================================================
// file_write
// =============================================================================

// WriteTool exposes Engine.Write.
type WriteTool struct {
	engine *Engine
}

// NewWriteTool creates a new write tool.
func NewWriteTool(engine *Engine) *WriteTool {
	return &WriteTool{engine: engine}
}

// Name returns the tool name.
func (t *WriteTool) Name() string { return ToolWrite }

// Category returns the tool category.
func (t *WriteTool) Category() tools.ToolCategory { return tools.CategoryFile }

// Definition returns the tool's parameter schema.
func (t *WriteTool) Definition() tools.ToolDefinition {
	return tools.ToolDefinition{
		Name: ToolWrite,
		Description: "Replace the entire content of a file atomically, creating it if needed. " +
			"Reports line counts, threshold status and the affected namespace.",
		Parameters: map[string]tools.ParamDef{
			"path": pathParam,
			"content": {
				Type:        tools.ParamTypeString,
				Description: "The complete new file content",
				Required:    true,
			},
			"create_parent_dirs": {
				Type:        tools.ParamTypeBool,
				Description: "Create missing parent directories",
				Default:     false,
			},
			"threshold": thresholdParam,
		},
		Category:    tools.CategoryFile,
		Priority:    90,
		SideEffects: true,
		Timeout:     toolTimeout,
		Examples: []tools.ToolExample{
			{
				Description: "Create a new namespace",
				Parameters: map[string]any{
					"path":               "src/app/core.clj",
					"content":            "(ns app.core)\n",
					"create_parent_dirs": true,
				},
			},
		},
	}
}

// Execute runs the tool.
func (t *WriteTool) Execute(ctx context.Context, params map[string]any) (*tools.Result, error) {
	start := time.Now()
	path, _ := stringParam(params, "path")
	content, _ := stringParam(params, "content")
	createDirs, _ := boolParam(params, "create_parent_dirs")
	threshold, err := optionalInt(params, "threshold")
	if err != nil {
		return failure(path, invalidArg("write", path, err.Error()), start), nil
	}

	return mutate(ctx, t.engine, path, start, func() (*Result, error) {
		return t.engine.Write(ctx, WriteArgs{
			Path:             path,
			Content:          content,
			CreateParentDirs: createDirs,
			Threshold:        threshold,
		})
	}), nil
}

// =============================================================================
// file_append
// =============================================================================

// AppendTool exposes Engine.Append.
type AppendTool struct {
	engine *Engine
}

// NewAppendTool creates a new append tool.
func NewAppendTool(engine *Engine) *AppendTool {
	return &AppendTool{engine: engine}
}

// Name returns the tool name.
func (t *AppendTool) Name() string { return ToolAppend }

// Category returns the tool category.
func (t *AppendTool) Category() tools.ToolCategory { return tools.CategoryFile }

// Definition returns the tool's parameter schema.
func (t *AppendTool) Definition() tools.ToolDefinition {
	return tools.ToolDefinition{
		Name: ToolAppend,
		Description: "Append content to the end of a file verbatim. No newline is added; " +
			"start content with \\n when needed. Creates the file if it does not exist.",
		Parameters: map[string]tools.ParamDef{
			"path": pathParam,
			"content": {
				Type:        tools.ParamTypeString,
				Description: "Content to append",
				Required:    true,
			},
			"threshold": thresholdParam,
		},
		Category:    tools.CategoryFile,
		Priority:    80,
		SideEffects: true,
		Timeout:     toolTimeout,
	}
}

// Execute runs the tool.
func (t *AppendTool) Execute(ctx context.Context, params map[string]any) (*tools.Result, error) {
	start := time.Now()
	path, _ := stringParam(params, "path")
	content, _ := stringParam(params, "content")
	threshold, err := optionalInt(params, "threshold")
	if err != nil {
		return failure(path, invalidArg("append", path, err.Error()), start), nil
	}

	return mutate(ctx, t.engine, path, start, func() (*Result, error) {
		return t.engine.Append(ctx, AppendArgs{Path: path, Content: content, Threshold: threshold})
	}), nil
}

// =============================================================================
// file_insert
// =============================================================================

// InsertTool exposes Engine.Insert.
type InsertTool struct {
	engine *Engine
}

// NewInsertTool creates a new insert tool.
func NewInsertTool(engine *Engine) *InsertTool {
	return &InsertTool{engine: engine}
}

// Name returns the tool name.
func (t *InsertTool) Name() string { return ToolInsert }

// Category returns the tool category.
func (t *InsertTool) Category() tools.ToolCategory { return tools.CategoryFile }

// Definition returns the tool's parameter schema.
func (t *InsertTool) Definition() tools.ToolDefinition {
	return tools.ToolDefinition{
		Name: ToolInsert,
		Description: "Insert lines into an existing file. Give exactly one of line, after or before. " +
			"Anchors match the first line containing the text (or matching the regex when regex=true).",
		Parameters: map[string]tools.ParamDef{
			"path": pathParam,
			"content": {
				Type:        tools.ParamTypeString,
				Description: "Lines to insert",
				Required:    true,
			},
			"line": {
				Type:        tools.ParamTypeInt,
				Description: "1-indexed line to insert before; one past the last line appends",
			},
			"after": {
				Type:        tools.ParamTypeString,
				Description: "Insert after the first line matching this pattern",
			},
			"before": {
				Type:        tools.ParamTypeString,
				Description: "Insert before the first line matching this pattern",
			},
			"regex": {
				Type:        tools.ParamTypeBool,
				Description: "Treat after/before as a regular expression",
				Default:     false,
			},
			"threshold": thresholdParam,
		},
		Category:    tools.CategoryFile,
		Priority:    70,
		SideEffects: true,
		Timeout:     toolTimeout,
		Examples: []tools.ToolExample{
			{
				Description: "Add a require after the ns form",
				Parameters: map[string]any{
					"path":    "src/app/core.clj",
					"content": "  (:require [clojure.string :as str])",
					"after":   "(ns app.core",
				},
			},
		},
	}
}

// Execute runs the tool.
func (t *InsertTool) Execute(ctx context.Context, params map[string]any) (*tools.Result, error) {
	start := time.Now()
	path, _ := stringParam(params, "path")
	content, _ := stringParam(params, "content")
	threshold, err := optionalInt(params, "threshold")
	if err != nil {
		return failure(path, invalidArg("insert", path, err.Error()), start), nil
	}
	at, err := parseLocation(params)
	if err != nil {
		return failure(path, invalidArg("insert", path, err.Error()), start), nil
	}

	return mutate(ctx, t.engine, path, start, func() (*Result, error) {
		return t.engine.Insert(ctx, InsertArgs{Path: path, Content: content, At: at, Threshold: threshold})
	}), nil
}

func parseLocation(params map[string]any) (Location, error) {
	line, err := optionalInt(params, "line")
	if err != nil {
		return Location{}, err
	}
	after, hasAfter := stringParam(params, "after")
	before, hasBefore := stringParam(params, "before")
	regex, _ := boolParam(params, "regex")

	set := 0
	for _, present := range []bool{line != nil, hasAfter, hasBefore} {
		if present {
			set++
		}
	}
	if set != 1 {
		return Location{}, fmt.Errorf("exactly one of line, after or before is required (got %d)", set)
	}

	pattern := func(text string) Pattern {
		if regex {
			return Regex(text)
		}
		return Literal(text)
	}

	switch {
	case line != nil:
		return AtLine(*line), nil
	case hasAfter:
		return After(pattern(after)), nil
	default:
		return Before(pattern(before)), nil
	}
}

// =============================================================================
// file_replace
// =============================================================================

// ReplaceTool exposes Engine.Replace.
type ReplaceTool struct {
	engine *Engine
}

// NewReplaceTool creates a new replace tool.
func NewReplaceTool(engine *Engine) *ReplaceTool {
	return &ReplaceTool{engine: engine}
}

// Name returns the tool name.
func (t *ReplaceTool) Name() string { return ToolReplace }

// Category returns the tool category.
func (t *ReplaceTool) Category() tools.ToolCategory { return tools.CategoryFile }

// Definition returns the tool's parameter schema.
func (t *ReplaceTool) Definition() tools.ToolDefinition {
	return tools.ToolDefinition{
		Name: ToolReplace,
		Description: "Find and replace text in an existing file. Replaces the first match unless all=true. " +
			"Zero matches is not an error.",
		Parameters: map[string]tools.ParamDef{
			"path": pathParam,
			"find": {
				Type:        tools.ParamTypeString,
				Description: "Text to find, matched literally unless regex=true",
				Required:    true,
			},
			"replacement": {
				Type:        tools.ParamTypeString,
				Description: "Replacement text; with regex=true, $1 and ${name} expand",
				Required:    true,
			},
			"regex": {
				Type:        tools.ParamTypeBool,
				Description: "Treat find as a regular expression",
				Default:     false,
			},
			"all": {
				Type:        tools.ParamTypeBool,
				Description: "Replace every non-overlapping match",
				Default:     false,
			},
			"threshold": thresholdParam,
		},
		Category:    tools.CategoryFile,
		Priority:    85,
		SideEffects: true,
		Timeout:     toolTimeout,
	}
}

// Execute runs the tool.
func (t *ReplaceTool) Execute(ctx context.Context, params map[string]any) (*tools.Result, error) {
	start := time.Now()
	path, _ := stringParam(params, "path")
	find, _ := stringParam(params, "find")
	replacement, _ := stringParam(params, "replacement")
	regex, _ := boolParam(params, "regex")
	all, _ := boolParam(params, "all")
	threshold, err := optionalInt(params, "threshold")
	if err != nil {
		return failure(path, invalidArg("replace", path, err.Error()), start), nil
	}

	pattern := Literal(find)
	if regex {
		pattern = Regex(find)
	}

	return mutate(ctx, t.engine, path, start, func() (*Result, error) {
		return t.engine.Replace(ctx, ReplaceArgs{
			Path:        path,
			Find:        pattern,
			Replacement: replacement,
			All:         all,
			Threshold:   threshold,
		})
	}), nil
}

// =============================================================================
// file_info
// =============================================================================

// InfoTool exposes Engine.Stat.
type InfoTool struct {
	engine *Engine
}

// NewInfoTool creates a new info tool.
func NewInfoTool(engine *Engine) *InfoTool {
	return &InfoTool{engine: engine}
}

// Name returns the tool name.
func (t *InfoTool) Name() string { return ToolInfo }

// Category returns the tool category.
func (t *InfoTool) Category() tools.ToolCategory { return tools.CategoryInspect }

// Definition returns the tool's parameter schema.
func (t *InfoTool) Definition() tools.ToolDefinition {
	return tools.ToolDefinition{
		Name:        ToolInfo,
		Description: "Report whether a file exists, its line count, modification time and namespace.",
		Parameters: map[string]tools.ParamDef{
			"path": pathParam,
		},
		Category: tools.CategoryInspect,
		Priority: 60,
	}
}

// Execute runs the tool.
func (t *InfoTool) Execute(ctx context.Context, params map[string]any) (*tools.Result, error) {
	start := time.Now()
	path, _ := stringParam(params, "path")

	meta, err := t.engine.Stat(ctx, path)
	if err != nil {
		return failure(path, err, start), nil
	}

	var text string
	rel := t.engine.display(meta.Path)
	switch {
	case !meta.Exists:
		text = fmt.Sprintf("%s does not exist", rel)
	case meta.Module != nil:
		text = fmt.Sprintf("%s: %d lines, modified %s [%s]", rel, *meta.LOC, meta.ModifiedAt.Format(time.RFC3339), meta.Module.Identifiers[0])
	default:
		text = fmt.Sprintf("%s: %d lines, modified %s", rel, *meta.LOC, meta.ModifiedAt.Format(time.RFC3339))
	}

	result := &tools.Result{
		Success:    true,
		Output:     meta,
		OutputText: text,
		Duration:   time.Since(start),
	}
	if meta.Module != nil {
		result.Metadata = map[string]any{"module": meta.Module.Identifiers[0]}
	}
	return result, nil
}

// =============================================================================
// Shared helpers
// =============================================================================

// mutate runs a mutating operation and turns its outcome into a tool
// result. On success the module id, when present, is added to the
// context's pending slot.
func mutate(ctx context.Context, engine *Engine, path string, start time.Time, run func() (*Result, error)) *tools.Result {
	var before []byte
	if abs, err := engine.ResolvePath(path); err == nil {
		before, _ = os.ReadFile(abs)
	}

	res, err := run()
	if err != nil {
		return failure(path, err, start)
	}

	after, _ := os.ReadFile(res.Path)

	if id := res.ModuleID(); id != "" {
		if sink, ok := reload.PendingFrom(ctx); ok {
			sink.AddPending(id)
		}
	}

	result := &tools.Result{
		Success:       true,
		Output:        res,
		OutputText:    engine.summarize(res, string(before), string(after)),
		Duration:      time.Since(start),
		ModifiedFiles: []string{res.Path},
	}
	if id := res.ModuleID(); id != "" {
		result.Metadata = map[string]any{"module": id}
	}
	return result
}

func failure(path string, err error, start time.Time) *tools.Result {
	return &tools.Result{
		Success:  false,
		Output:   ErrorResult(path, err),
		Error:    err.Error(),
		Duration: time.Since(start),
		Metadata: map[string]any{"error_kind": string(KindOf(err))},
	}
}

// display returns path relative to the project root when possible.
func (e *Engine) display(path string) string {
	if rel, err := filepath.Rel(e.root, path); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return path
}

// summarize renders a one-line summary followed by a unified diff.
func (e *Engine) summarize(res *Result, before, after string) string {
	var b strings.Builder
	rel := e.display(res.Path)

	if res.Status == StatusCreated {
		fmt.Fprintf(&b, "created %s: %d lines", rel, res.LOC.After)
	} else {
		fmt.Fprintf(&b, "modified %s: %d → %d lines (%+d)", rel, *res.LOC.Before, res.LOC.After, *res.LOC.Delta)
	}
	if id := res.ModuleID(); id != "" {
		fmt.Fprintf(&b, " [%s]", id)
	}
	if th := res.Threshold; th != nil && th.Exceeded {
		fmt.Fprintf(&b, "; exceeds threshold %d by %d", th.Limit, -th.Remaining)
	}
	if res.Formatted != nil && !*res.Formatted {
		fmt.Fprintf(&b, "; formatter failed: %s", res.FormatError)
	}

	unified := unifiedDiff(rel, before, after)
	if unified == "" {
		b.WriteString("\nno changes")
		return b.String()
	}
	added, removed := diffStats(unified)
	fmt.Fprintf(&b, "\n+%d -%d\n%s", added, removed, unified)
	return b.String()
}

func unifiedDiff(name, before, after string) string {
	if before == after {
		return ""
	}
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: "a/" + filepath.ToSlash(name),
		ToFile:   "b/" + filepath.ToSlash(name),
		Context:  2,
	})
	if err != nil {
		return ""
	}
	return text
}

// diffStats counts added and removed lines in a unified diff.
func diffStats(unified string) (added, removed int) {
	fd, err := diff.ParseFileDiff([]byte(unified))
	if err != nil {
		return 0, 0
	}
	for _, hunk := range fd.Hunks {
		for _, line := range strings.Split(string(hunk.Body), "\n") {
			switch {
			case strings.HasPrefix(line, "+"):
				added++
			case strings.HasPrefix(line, "-"):
				removed++
			}
		}
	}
	return added, removed
}

func stringParam(params map[string]any, key string) (string, bool) {
	v, ok := params[key].(string)
	return v, ok
}

func boolParam(params map[string]any, key string) (bool, bool) {
	v, ok := params[key].(bool)
	return v, ok
}

// optionalInt reads an integer parameter. JSON numbers arrive as float64.
func optionalInt(params map[string]any, key string) (*int, error) {
	raw, ok := params[key]
	if !ok || raw == nil {
		return nil, nil
	}
	var n int
	switch v := raw.(type) {
	case int:
		n = v
	case int64:
		n = int(v)
	case float64:
		if v != float64(int64(v)) {
			return nil, fmt.Errorf("%s must be an integer", key)
		}
		n = int(v)
	default:
		return nil, fmt.Errorf("%s must be an integer, got %T", key, raw)
	}
	return &n, nil
}
