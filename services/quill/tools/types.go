// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tools provides the registration and dispatch framework that
// exposes quill operations to an agent.
//
// Tools are registered in a Registry and invoked through an Executor, which
// validates parameters, traces the call, and hands every completed
// Invocation to the configured Observers (for example the audit log).
//
// Thread Safety:
//
//	All types in this package are designed for concurrent use.
package tools

import (
	"context"
	"time"
)

// ToolCategory represents the category a tool belongs to.
type ToolCategory string

const (
	// CategoryFile includes tools that mutate files.
	CategoryFile ToolCategory = "file"

	// CategoryInspect includes read-only tools.
	CategoryInspect ToolCategory = "inspect"
)

// ParamType represents the type of a tool parameter.
type ParamType string

const (
	ParamTypeString ParamType = "string"
	ParamTypeInt    ParamType = "integer"
	ParamTypeBool   ParamType = "boolean"
	ParamTypeObject ParamType = "object"
)

// ParamDef defines a single parameter for a tool.
type ParamDef struct {
	// Type is the parameter type.
	Type ParamType `json:"type"`

	// Description explains what the parameter is for.
	Description string `json:"description"`

	// Required indicates if the parameter must be provided.
	Required bool `json:"required"`

	// Default is the default value if not provided.
	Default any `json:"default,omitempty"`

	// Minimum is the minimum value (for numeric types).
	Minimum *float64 `json:"minimum,omitempty"`
}

// ToolDefinition describes a tool's interface for the agent.
//
// This structure is designed to be serializable to JSON Schema format
// for use with LLM tool calling APIs.
type ToolDefinition struct {
	// Name is the unique identifier for the tool (the operation key).
	Name string `json:"name"`

	// Description explains what the tool does.
	Description string `json:"description"`

	// Parameters defines the input parameters.
	Parameters map[string]ParamDef `json:"parameters"`

	// Category is the tool category.
	Category ToolCategory `json:"category"`

	// Priority influences ordering of definitions (higher first).
	Priority int `json:"priority"`

	// SideEffects indicates if the tool modifies state.
	SideEffects bool `json:"side_effects"`

	// Timeout is the default execution timeout.
	Timeout time.Duration `json:"timeout,omitempty"`

	// Examples provides usage examples.
	Examples []ToolExample `json:"examples,omitempty"`
}

// ToolExample provides an example invocation for a tool.
type ToolExample struct {
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Tool defines the interface for executable tools.
//
// Implementations must be safe for concurrent use.
type Tool interface {
	// Name returns the unique tool name.
	Name() string

	// Category returns the tool category.
	Category() ToolCategory

	// Definition returns the tool's parameter schema.
	Definition() ToolDefinition

	// Execute runs the tool with the given parameters.
	//
	// Domain failures are reported as a Result with Success=false and a nil
	// error; a non-nil error means the tool itself could not run.
	Execute(ctx context.Context, params map[string]any) (*Result, error)
}

// Result contains the outcome of a tool execution.
type Result struct {
	// Success indicates if the tool succeeded.
	Success bool `json:"success"`

	// Output is the tool's structured output.
	Output any `json:"output"`

	// OutputText is a text representation of the output.
	OutputText string `json:"output_text"`

	// Error contains any error message.
	Error string `json:"error,omitempty"`

	// Duration is how long execution took.
	Duration time.Duration `json:"duration"`

	// Truncated indicates if OutputText was truncated.
	Truncated bool `json:"truncated"`

	// ModifiedFiles lists files written by this tool.
	ModifiedFiles []string `json:"modified_files,omitempty"`

	// Metadata contains additional result metadata (module, error_kind).
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Invocation represents a pending or completed tool call.
type Invocation struct {
	// ID is a unique identifier for this invocation.
	ID string `json:"id"`

	// ToolName is the tool to invoke.
	ToolName string `json:"tool_name"`

	// Parameters are the input parameters.
	Parameters map[string]any `json:"parameters"`

	// Reason explains why the agent chose this tool.
	Reason string `json:"reason,omitempty"`

	// StartedAt is when execution started.
	StartedAt time.Time `json:"started_at,omitempty"`

	// CompletedAt is when execution completed.
	CompletedAt time.Time `json:"completed_at,omitempty"`

	// Result contains the execution result (after completion).
	Result *Result `json:"result,omitempty"`
}

// Observer receives every completed invocation, successful or not.
//
// Observers run synchronously after the tool returns and must not modify
// the invocation. Implementations must be safe for concurrent use.
type Observer interface {
	Observe(ctx context.Context, inv *Invocation)
}

// ExecutorOptions configures the tool executor.
type ExecutorOptions struct {
	// DefaultTimeout is the default execution timeout.
	DefaultTimeout time.Duration

	// MaxOutputChars limits OutputText size. Zero disables truncation.
	MaxOutputChars int
}

// DefaultExecutorOptions returns sensible defaults.
func DefaultExecutorOptions() ExecutorOptions {
	return ExecutorOptions{
		DefaultTimeout: 30 * time.Second,
		MaxOutputChars: 16000,
	}
}

// ValidationError represents a parameter validation error.
type ValidationError struct {
	// Parameter is the parameter name that failed validation.
	Parameter string `json:"parameter"`

	// Message describes the validation failure.
	Message string `json:"message"`

	// Actual describes what was received.
	Actual string `json:"actual,omitempty"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Actual != "" {
		return e.Parameter + ": " + e.Message + " (got " + e.Actual + ")"
	}
	return e.Parameter + ": " + e.Message
}
