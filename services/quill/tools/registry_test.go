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
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

type mockTool struct {
	name       string
	category   ToolCategory
	definition ToolDefinition
	execute    func(ctx context.Context, params map[string]any) (*Result, error)
}

func newMockTool(name string, category ToolCategory) *mockTool {
	return &mockTool{
		name:     name,
		category: category,
		definition: ToolDefinition{
			Name:        name,
			Description: fmt.Sprintf("Mock tool: %s", name),
			Category:    category,
			Parameters:  make(map[string]ParamDef),
		},
		execute: func(ctx context.Context, params map[string]any) (*Result, error) {
			return &Result{
				Success:    true,
				OutputText: fmt.Sprintf("Mock result from %s", name),
			}, nil
		},
	}
}

func (t *mockTool) Name() string               { return t.name }
func (t *mockTool) Category() ToolCategory     { return t.category }
func (t *mockTool) Definition() ToolDefinition { return t.definition }
func (t *mockTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	return t.execute(ctx, params)
}

func TestRegistry_Register(t *testing.T) {
	mismatched := newMockTool("file_write", CategoryFile)
	mismatched.definition.Name = "write"
	miscategorized := newMockTool("file_info", CategoryInspect)
	miscategorized.definition.Category = CategoryFile

	tests := []struct {
		name    string
		tool    Tool
		wantErr error
	}{
		{"valid", newMockTool("file_write", CategoryFile), nil},
		{"nil", nil, ErrInvalidTool},
		{"empty name", newMockTool("", CategoryFile), ErrInvalidTool},
		{"definition name mismatch", mismatched, ErrInvalidTool},
		{"definition category mismatch", miscategorized, ErrInvalidTool},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewRegistry().Register(tt.tool)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Register() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	registry := NewRegistry()
	first := newMockTool("file_write", CategoryFile)
	if err := registry.Register(first); err != nil {
		t.Fatalf("first Register: %v", err)
	}

	err := registry.Register(newMockTool("file_write", CategoryInspect))
	if !errors.Is(err, ErrDuplicateTool) {
		t.Fatalf("expected ErrDuplicateTool, got %v", err)
	}
	got, _ := registry.Get("file_write")
	if got != Tool(first) {
		t.Error("duplicate registration must keep the first tool")
	}
	if registry.Len() != 1 {
		t.Errorf("expected 1 tool, got %d", registry.Len())
	}
}

func TestRegistry_Get(t *testing.T) {
	registry := NewRegistry()
	_ = registry.Register(newMockTool("file_write", CategoryFile))

	if _, ok := registry.Get("file_write"); !ok {
		t.Error("expected file_write to be found")
	}
	if _, ok := registry.Get("file_delete"); ok {
		t.Error("expected file_delete to be missing")
	}
}

func TestRegistry_Definitions(t *testing.T) {
	registry := NewRegistry()

	low := newMockTool("b_low", CategoryFile)
	low.definition.Priority = 1
	high := newMockTool("z_high", CategoryFile)
	high.definition.Priority = 10
	alsoLow := newMockTool("a_low", CategoryFile)
	alsoLow.definition.Priority = 1
	info := newMockTool("info", CategoryInspect)

	for _, tool := range []*mockTool{low, high, alsoLow, info} {
		if err := registry.Register(tool); err != nil {
			t.Fatalf("Register(%s): %v", tool.name, err)
		}
	}

	tests := []struct {
		name       string
		categories []ToolCategory
		want       []string
	}{
		{"all", nil, []string{"z_high", "a_low", "b_low", "info"}},
		{"file", []ToolCategory{CategoryFile}, []string{"z_high", "a_low", "b_low"}},
		{"inspect", []ToolCategory{CategoryInspect}, []string{"info"}},
		{"unknown", []ToolCategory{"network"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defs := registry.Definitions(tt.categories...)
			got := make([]string, 0, len(defs))
			for _, d := range defs {
				got = append(got, d.Name)
			}
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("Definitions() = %v, want %v", got, tt.want)
			}
		})
	}

	names := registry.Names()
	if fmt.Sprint(names) != "[a_low b_low info z_high]" {
		t.Errorf("expected sorted names, got %v", names)
	}
}

func TestRegistry_Concurrent(t *testing.T) {
	registry := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = registry.Register(newMockTool(fmt.Sprintf("tool_%d", i), CategoryFile))
		}(i)
		go func() {
			defer wg.Done()
			_ = registry.Definitions()
			_ = registry.Names()
		}()
	}
	wg.Wait()

	if registry.Len() != 50 {
		t.Errorf("expected 50 tools, got %d", registry.Len())
	}
}
