// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrInvalidTool indicates a tool whose Definition does not match it.
	ErrInvalidTool = errors.New("invalid tool")

	// ErrDuplicateTool indicates a second tool registered under a taken name.
	ErrDuplicateTool = errors.New("tool already registered")
)

// Registry maps operation keys to tools.
//
// Names are unique. A registry is typically filled once at startup and
// then only read, but every method is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds tool under its Name.
//
// Description:
//
//	The tool's Definition must carry the same name and category as the
//	tool itself, since agents only ever see the definition. Registering a
//	name twice is an error; the first tool stays.
//
// Outputs:
//
//	error - ErrInvalidTool or ErrDuplicateTool, wrapped with the name
func (r *Registry) Register(tool Tool) error {
	if tool == nil {
		return fmt.Errorf("%w: nil", ErrInvalidTool)
	}
	name := tool.Name()
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidTool)
	}
	def := tool.Definition()
	if def.Name != name {
		return fmt.Errorf("%w: %s: definition is named %q", ErrInvalidTool, name, def.Name)
	}
	if def.Category != tool.Category() {
		return fmt.Errorf("%w: %s: definition category %q, tool category %q",
			ErrInvalidTool, name, def.Category, tool.Category())
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.tools[name]; taken {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, name)
	}
	r.tools[name] = tool
	return nil
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Names returns all registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns the definitions of tools in the given categories,
// or of every tool when none are given. Higher Priority sorts first, then
// name.
func (r *Registry) Definitions(categories ...ToolCategory) []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]ToolDefinition, 0, len(r.tools))
	for _, tool := range r.tools {
		def := tool.Definition()
		if len(categories) > 0 && !containsCategory(categories, def.Category) {
			continue
		}
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool {
		if defs[i].Priority != defs[j].Priority {
			return defs[i].Priority > defs[j].Priority
		}
		return defs[i].Name < defs[j].Name
	})
	return defs
}

func containsCategory(categories []ToolCategory, c ToolCategory) bool {
	for _, want := range categories {
		if want == c {
			return true
		}
	}
	return false
}
