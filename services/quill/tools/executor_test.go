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
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type recordingObserver struct {
	mu   sync.Mutex
	seen []*Invocation
}

func (r *recordingObserver) Observe(_ context.Context, inv *Invocation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, inv)
}

func (r *recordingObserver) invocations() []*Invocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Invocation(nil), r.seen...)
}

func pathTool(name string) *mockTool {
	tool := newMockTool(name, CategoryFile)
	tool.definition.SideEffects = true
	tool.definition.Parameters = map[string]ParamDef{
		"path":  {Type: ParamTypeString, Required: true},
		"count": {Type: ParamTypeInt, Minimum: floatPtr(1)},
		"all":   {Type: ParamTypeBool},
	}
	return tool
}

func floatPtr(f float64) *float64 { return &f }

func TestExecutor_Execute(t *testing.T) {
	t.Run("success assigns id and duration", func(t *testing.T) {
		registry := NewRegistry()
		registry.Register(pathTool("file_write"))
		observer := &recordingObserver{}
		exec := NewExecutor(registry, nil, WithObserver(observer))

		inv := &Invocation{ToolName: "file_write", Parameters: map[string]any{"path": "a.clj"}}
		result, err := exec.Execute(context.Background(), inv)
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.NotEmpty(t, inv.ID)
		assert.False(t, inv.CompletedAt.Before(inv.StartedAt))
		assert.Same(t, result, inv.Result)

		seen := observer.invocations()
		require.Len(t, seen, 1)
		assert.Equal(t, inv.ID, seen[0].ID)
	})

	t.Run("unknown tool is not observed", func(t *testing.T) {
		observer := &recordingObserver{}
		exec := NewExecutor(NewRegistry(), nil, WithObserver(observer))

		_, err := exec.Execute(context.Background(), &Invocation{ToolName: "nope"})
		assert.ErrorIs(t, err, ErrToolNotFound)
		assert.Empty(t, observer.invocations())
	})

	t.Run("nil invocation", func(t *testing.T) {
		exec := NewExecutor(NewRegistry(), nil)
		_, err := exec.Execute(context.Background(), nil)
		assert.ErrorIs(t, err, ErrValidationFailed)
	})

	t.Run("tool error is wrapped", func(t *testing.T) {
		registry := NewRegistry()
		tool := newMockTool("broken", CategoryFile)
		tool.execute = func(context.Context, map[string]any) (*Result, error) {
			return nil, errors.New("boom")
		}
		registry.Register(tool)
		observer := &recordingObserver{}
		exec := NewExecutor(registry, nil, WithObserver(observer))

		_, err := exec.Execute(context.Background(), &Invocation{ToolName: "broken"})
		assert.ErrorIs(t, err, ErrExecutionFailed)

		seen := observer.invocations()
		require.Len(t, seen, 1)
		require.NotNil(t, seen[0].Result)
		assert.False(t, seen[0].Result.Success)
		assert.Contains(t, seen[0].Result.Error, "boom")
	})
}

func TestExecutor_Validation(t *testing.T) {
	registry := NewRegistry()
	registry.Register(pathTool("file_write"))
	observer := &recordingObserver{}
	exec := NewExecutor(registry, nil, WithObserver(observer))

	tests := []struct {
		name    string
		params  map[string]any
		wantErr bool
	}{
		{"missing required", map[string]any{}, true},
		{"nil required", map[string]any{"path": nil}, true},
		{"wrong string type", map[string]any{"path": 3}, true},
		{"json number accepted", map[string]any{"path": "a", "count": float64(2)}, false},
		{"int accepted", map[string]any{"path": "a", "count": 2}, false},
		{"fractional rejected", map[string]any{"path": "a", "count": 2.5}, true},
		{"below minimum", map[string]any{"path": "a", "count": 0}, true},
		{"wrong bool type", map[string]any{"path": "a", "all": "yes"}, true},
		{"unknown params ignored", map[string]any{"path": "a", "extra": 1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := exec.Execute(context.Background(), &Invocation{ToolName: "file_write", Parameters: tt.params})
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrValidationFailed)
				return
			}
			assert.NoError(t, err)
		})
	}

	// Validation failures still reach observers.
	var failures int
	for _, inv := range observer.invocations() {
		if !inv.Result.Success {
			failures++
		}
	}
	assert.Equal(t, 6, failures)
}

func TestExecutor_Timeout(t *testing.T) {
	registry := NewRegistry()
	tool := newMockTool("slow", CategoryFile)
	tool.definition.Timeout = 20 * time.Millisecond
	tool.execute = func(ctx context.Context, _ map[string]any) (*Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	registry.Register(tool)
	exec := NewExecutor(registry, nil)

	_, err := exec.Execute(context.Background(), &Invocation{ToolName: "slow"})
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestExecutor_Truncation(t *testing.T) {
	registry := NewRegistry()
	tool := newMockTool("chatty", CategoryInspect)
	tool.execute = func(context.Context, map[string]any) (*Result, error) {
		return &Result{Success: true, OutputText: strings.Repeat("x", 100)}, nil
	}
	registry.Register(tool)
	exec := NewExecutor(registry, &ExecutorOptions{MaxOutputChars: 10})

	result, err := exec.Execute(context.Background(), &Invocation{ToolName: "chatty"})
	require.NoError(t, err)
	assert.True(t, result.Truncated)
	assert.True(t, strings.HasPrefix(result.OutputText, strings.Repeat("x", 10)+"\n"))
}

func TestExecutor_PathSerialization(t *testing.T) {
	registry := NewRegistry()
	tool := pathTool("file_append")

	var active, maxActive int32
	tool.execute = func(context.Context, map[string]any) (*Result, error) {
		n := atomic.AddInt32(&active, 1)
		for {
			m := atomic.LoadInt32(&maxActive)
			if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return &Result{Success: true}, nil
	}
	registry.Register(tool)
	exec := NewExecutor(registry, nil, WithPathSerialization())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := exec.Execute(context.Background(), &Invocation{
				ToolName:   "file_append",
				Parameters: map[string]any{"path": "src/app/../app/core.clj"},
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxActive))
	assert.Equal(t, 0, exec.locks.size())
}

func TestExecutor_Tracing(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	registry := NewRegistry()
	ok := pathTool("file_write")
	ok.execute = func(context.Context, map[string]any) (*Result, error) {
		return &Result{Success: true, Metadata: map[string]any{"module": "app.core"}}, nil
	}
	failing := pathTool("file_replace")
	failing.execute = func(context.Context, map[string]any) (*Result, error) {
		return &Result{Success: false, Error: "pattern not found"}, nil
	}
	registry.Register(ok)
	registry.Register(failing)

	exec := NewExecutor(registry, nil, WithTracer(NewTracerFromProvider(nil, tp, true)))

	_, err := exec.Execute(context.Background(), &Invocation{ToolName: "file_write", Parameters: map[string]any{"path": "a.clj"}})
	require.NoError(t, err)
	_, err = exec.Execute(context.Background(), &Invocation{ToolName: "file_replace", Parameters: map[string]any{"path": "a.clj"}})
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	assert.Equal(t, "tool.file_write", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), attribute.String("tool.module", "app.core"))
	assert.Contains(t, spans[0].Attributes(), attribute.String("tool.path", "a.clj"))

	assert.Equal(t, "tool.file_replace", spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}

func TestExecutor_TracingDisabled(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	registry := NewRegistry()
	registry.Register(newMockTool("file_info", CategoryInspect))
	exec := NewExecutor(registry, nil, WithTracer(NewTracerFromProvider(nil, tp, false)))

	_, err := exec.Execute(context.Background(), &Invocation{ToolName: "file_info"})
	require.NoError(t, err)
	assert.Empty(t, recorder.Ended())
}

func TestExecutor_GetAvailableTools(t *testing.T) {
	registry := NewRegistry()
	registry.Register(newMockTool("file_write", CategoryFile))
	registry.Register(newMockTool("file_info", CategoryInspect))
	exec := NewExecutor(registry, nil)

	assert.Len(t, exec.GetAvailableTools(), 2)

	inspect := exec.GetAvailableTools(CategoryInspect)
	require.Len(t, inspect, 1)
	assert.Equal(t, "file_info", inspect[0].Name)
}
