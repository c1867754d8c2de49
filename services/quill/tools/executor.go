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
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for the executor.
var (
	// ErrToolNotFound indicates the requested tool does not exist.
	ErrToolNotFound = errors.New("tool not found")

	// ErrValidationFailed indicates parameter validation failed.
	ErrValidationFailed = errors.New("parameter validation failed")

	// ErrExecutionFailed indicates tool execution failed.
	ErrExecutionFailed = errors.New("tool execution failed")

	// ErrTimeout indicates the tool execution timed out.
	ErrTimeout = errors.New("tool execution timed out")
)

// Executor handles tool invocations with validation and observability.
//
// Thread Safety:
//
//	Executor is safe for concurrent use. Multiple tool executions can
//	run simultaneously; with path serialization enabled, side-effecting
//	invocations on the same "path" parameter run one at a time.
type Executor struct {
	registry  *Registry
	options   ExecutorOptions
	tracer    *Tracer
	observers []Observer
	locks     *pathLocks
	logger    *slog.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithObserver adds an observer notified after every invocation.
func WithObserver(o Observer) ExecutorOption {
	return func(e *Executor) {
		if o != nil {
			e.observers = append(e.observers, o)
		}
	}
}

// WithTracer sets the tracer used for invocation spans.
func WithTracer(t *Tracer) ExecutorOption {
	return func(e *Executor) {
		e.tracer = t
	}
}

// WithLogger sets the executor's logger.
func WithLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithPathSerialization serializes side-effecting invocations that name
// the same "path" parameter.
func WithPathSerialization() ExecutorOption {
	return func(e *Executor) {
		e.locks = newPathLocks()
	}
}

// NewExecutor creates a new tool executor.
//
// Inputs:
//
//	registry - The tool registry
//	opts - Executor options (uses defaults if nil)
//	options - Functional options
//
// Outputs:
//
//	*Executor - The configured executor
func NewExecutor(registry *Registry, opts *ExecutorOptions, options ...ExecutorOption) *Executor {
	execOpts := DefaultExecutorOptions()
	if opts != nil {
		execOpts = *opts
	}

	e := &Executor{
		registry: registry,
		options:  execOpts,
		logger:   slog.Default(),
	}
	for _, opt := range options {
		opt(e)
	}
	return e
}

// Registry returns the registry this executor dispatches to.
func (e *Executor) Registry() *Registry {
	return e.registry
}

// Execute runs a tool with the given invocation.
//
// Description:
//
//	Validates the invocation, executes the tool under a timeout, truncates
//	oversized output, and notifies observers. Observers see every
//	invocation that resolved to a registered tool, including ones that
//	failed validation.
//
// Inputs:
//
//	ctx - Context for cancellation and timeout
//	invocation - The tool invocation to execute
//
// Outputs:
//
//	*Result - The execution result
//	error - Non-nil if execution failed
//
// Errors:
//
//	ErrToolNotFound - Tool does not exist
//	ErrValidationFailed - Parameter validation failed
//	ErrTimeout - Execution timed out
//	ErrExecutionFailed - Tool returned an error
//
// Thread Safety: This method is safe for concurrent use.
func (e *Executor) Execute(ctx context.Context, invocation *Invocation) (*Result, error) {
	if invocation == nil {
		return nil, fmt.Errorf("%w: nil invocation", ErrValidationFailed)
	}

	if invocation.ID == "" {
		invocation.ID = uuid.NewString()
	}
	if invocation.Parameters == nil {
		invocation.Parameters = map[string]any{}
	}

	logger := e.logger.With(
		"tool", invocation.ToolName,
		"invocation_id", invocation.ID,
	)

	tool, ok := e.registry.Get(invocation.ToolName)
	if !ok {
		logger.Warn("Tool not found")
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, invocation.ToolName)
	}
	def := tool.Definition()

	ctx, span := e.tracer.StartExecute(ctx, invocation)
	logger = LoggerWithTrace(ctx, logger)

	invocation.StartedAt = time.Now()

	result, err := e.run(ctx, tool, def, invocation, logger)

	invocation.CompletedAt = time.Now()
	if result != nil {
		result.Duration = invocation.CompletedAt.Sub(invocation.StartedAt)
		invocation.Result = result
	} else {
		invocation.Result = &Result{
			Success:  false,
			Error:    err.Error(),
			Duration: invocation.CompletedAt.Sub(invocation.StartedAt),
		}
	}

	e.tracer.EndExecute(span, result, err)
	e.notify(ctx, invocation)

	if err != nil {
		return nil, err
	}

	logger.Debug("Tool executed",
		"success", result.Success,
		"duration", result.Duration,
	)
	return result, nil
}

// run validates and executes one invocation.
func (e *Executor) run(ctx context.Context, tool Tool, def ToolDefinition, invocation *Invocation, logger *slog.Logger) (*Result, error) {
	if err := e.validateParams(def, invocation.Parameters); err != nil {
		logger.Warn("Parameter validation failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	if e.locks != nil && def.SideEffects {
		if path, ok := invocation.Parameters["path"].(string); ok && path != "" {
			unlock := e.locks.lock(path)
			defer unlock()
		}
	}

	timeout := e.options.DefaultTimeout
	if def.Timeout > 0 {
		timeout = def.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	logger.Debug("Executing tool")

	result, err := tool.Execute(ctx, invocation.Parameters)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			logger.Error("Tool execution timed out", "timeout", timeout)
			return nil, fmt.Errorf("%w: %s after %v", ErrTimeout, invocation.ToolName, timeout)
		}
		logger.Error("Tool execution failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrExecutionFailed, err)
	}
	if result == nil {
		return nil, fmt.Errorf("%w: %s returned no result", ErrExecutionFailed, invocation.ToolName)
	}

	if e.options.MaxOutputChars > 0 && len(result.OutputText) > e.options.MaxOutputChars {
		e.truncateResult(result)
	}

	if !result.Success {
		logger.Info("Tool reported failure", "error", result.Error)
	}
	return result, nil
}

func (e *Executor) notify(ctx context.Context, invocation *Invocation) {
	for _, o := range e.observers {
		o.Observe(ctx, invocation)
	}
}

// validateParams validates tool parameters against the definition.
func (e *Executor) validateParams(def ToolDefinition, params map[string]any) error {
	for name, paramDef := range def.Parameters {
		if paramDef.Required {
			if _, ok := params[name]; !ok {
				return &ValidationError{
					Parameter: name,
					Message:   "required parameter missing",
				}
			}
		}
	}

	for name, value := range params {
		paramDef, ok := def.Parameters[name]
		if !ok {
			continue
		}
		if err := validateParam(name, value, paramDef); err != nil {
			return err
		}
	}

	return nil
}

// validateParam validates a single parameter value.
func validateParam(name string, value any, def ParamDef) error {
	if value == nil {
		if def.Required {
			return &ValidationError{
				Parameter: name,
				Message:   "required parameter is nil",
			}
		}
		return nil
	}

	switch def.Type {
	case ParamTypeString:
		if _, ok := value.(string); !ok {
			return &ValidationError{
				Parameter: name,
				Message:   "expected string",
				Actual:    fmt.Sprintf("%T", value),
			}
		}

	case ParamTypeInt:
		// JSON decodes numbers as float64.
		var num float64
		switch v := value.(type) {
		case int:
			num = float64(v)
		case int64:
			num = float64(v)
		case float64:
			if v != float64(int64(v)) {
				return &ValidationError{
					Parameter: name,
					Message:   "expected integer",
					Actual:    fmt.Sprintf("%v", v),
				}
			}
			num = v
		default:
			return &ValidationError{
				Parameter: name,
				Message:   "expected integer",
				Actual:    fmt.Sprintf("%T", value),
			}
		}
		if def.Minimum != nil && num < *def.Minimum {
			return &ValidationError{
				Parameter: name,
				Message:   fmt.Sprintf("value must be at least %v", *def.Minimum),
			}
		}

	case ParamTypeBool:
		if _, ok := value.(bool); !ok {
			return &ValidationError{
				Parameter: name,
				Message:   "expected boolean",
				Actual:    fmt.Sprintf("%T", value),
			}
		}

	case ParamTypeObject:
		if _, ok := value.(map[string]any); !ok {
			return &ValidationError{
				Parameter: name,
				Message:   "expected object",
				Actual:    fmt.Sprintf("%T", value),
			}
		}
	}

	return nil
}

// truncateResult cuts OutputText to MaxOutputChars in place.
func (e *Executor) truncateResult(result *Result) {
	result.OutputText = result.OutputText[:e.options.MaxOutputChars] + "\n... [truncated]"
	result.Truncated = true
}

// GetAvailableTools returns definitions for the given categories, or for
// all tools when categories is empty.
func (e *Executor) GetAvailableTools(categories ...ToolCategory) []ToolDefinition {
	return e.registry.Definitions(categories...)
}
