// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/quill/services/quill/tools"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func record(id, tool string, offset time.Duration) Record {
	return Record{
		ID:          id,
		Tool:        tool,
		Params:      map[string]any{"path": "src/" + id + ".clj"},
		Success:     true,
		StartedAt:   base.Add(offset),
		CompletedAt: base.Add(offset + 5*time.Millisecond),
	}
}

// storeFactories runs the shared contract against every implementation.
func storeFactories(t *testing.T) map[string]func() Store {
	return map[string]func() Store{
		"memory": func() Store { return NewMemoryStore() },
		"badger in memory": func() Store {
			s, err := NewBadgerStore(InMemoryConfig())
			require.NoError(t, err)
			return s
		},
		"badger on disk": func() Store {
			cfg := DefaultConfig(t.TempDir())
			cfg.SyncWrites = false
			s, err := NewBadgerStore(cfg)
			require.NoError(t, err)
			return s
		},
	}
}

func TestStore_Contract(t *testing.T) {
	ctx := context.Background()

	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory()
			defer store.Close()

			// appended out of time order on purpose
			require.NoError(t, store.Append(ctx, record("b", "file_write", 2*time.Second)))
			require.NoError(t, store.Append(ctx, record("a", "file_insert", 1*time.Second)))
			require.NoError(t, store.Append(ctx, record("c", "file_write", 3*time.Second)))

			t.Run("get", func(t *testing.T) {
				got, err := store.Get(ctx, "a")
				require.NoError(t, err)
				assert.Equal(t, "file_insert", got.Tool)
				assert.Equal(t, "src/a.clj", got.Params["path"])
				assert.True(t, got.StartedAt.Equal(base.Add(time.Second)))
				assert.Equal(t, 5*time.Millisecond, got.Duration())
			})

			t.Run("get missing", func(t *testing.T) {
				_, err := store.Get(ctx, "zzz")
				assert.ErrorIs(t, err, ErrNotFound)
			})

			t.Run("list newest first", func(t *testing.T) {
				got, err := store.List(ctx, Query{})
				require.NoError(t, err)
				require.Len(t, got, 3)
				assert.Equal(t, []string{"c", "b", "a"}, ids(got))
			})

			t.Run("list by tool", func(t *testing.T) {
				got, err := store.List(ctx, Query{Tool: "file_write"})
				require.NoError(t, err)
				assert.Equal(t, []string{"c", "b"}, ids(got))
			})

			t.Run("list limit", func(t *testing.T) {
				got, err := store.List(ctx, Query{Limit: 1})
				require.NoError(t, err)
				assert.Equal(t, []string{"c"}, ids(got))
			})

			t.Run("duplicate id", func(t *testing.T) {
				err := store.Append(ctx, record("a", "file_write", 9*time.Second))
				assert.ErrorIs(t, err, ErrInvalidRecord)
			})

			t.Run("invalid record", func(t *testing.T) {
				assert.ErrorIs(t, store.Append(ctx, Record{Tool: "x"}), ErrInvalidRecord)
				assert.ErrorIs(t, store.Append(ctx, Record{ID: "x"}), ErrInvalidRecord)
			})

			t.Run("closed", func(t *testing.T) {
				require.NoError(t, store.Close())
				assert.NoError(t, store.Close())
				_, err := store.Get(ctx, "a")
				assert.ErrorIs(t, err, ErrClosed)
				assert.ErrorIs(t, store.Append(ctx, record("d", "file_write", 0)), ErrClosed)
			})
		})
	}
}

func TestStore_ConcurrentAppend(t *testing.T) {
	ctx := context.Background()

	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory()
			defer store.Close()

			var wg sync.WaitGroup
			for i := 0; i < 50; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					assert.NoError(t, store.Append(ctx, record(fmt.Sprintf("r%02d", i), "file_write", time.Duration(i)*time.Millisecond)))
				}(i)
			}
			wg.Wait()

			got, err := store.List(ctx, Query{Limit: 100})
			require.NoError(t, err)
			assert.Len(t, got, 50)
			assert.Equal(t, "r49", got[0].ID)
		})
	}
}

func TestBadgerStore_Persists(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewBadgerStore(DefaultConfig(dir))
	require.NoError(t, err)
	rec := record("persist", "file_replace", 0)
	rec.Output = json.RawMessage(`{"status":"ok"}`)
	rec.ModifiedFiles = []string{"/p/src/persist.clj"}
	require.NoError(t, store.Append(ctx, rec))
	require.NoError(t, store.Close())

	reopened, err := NewBadgerStore(DefaultConfig(dir))
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, "persist")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok"}`, string(got.Output))
	assert.Equal(t, rec.ModifiedFiles, got.ModifiedFiles)
}

func TestBadgerStore_RequiresPath(t *testing.T) {
	_, err := NewBadgerStore(Config{})
	assert.Error(t, err)
}

func TestBadgerStore_CancelledContext(t *testing.T) {
	store, err := NewBadgerStore(InMemoryConfig())
	require.NoError(t, err)
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, store.Append(ctx, record("x", "file_write", 0)), context.Canceled)
}

func TestCodec_RoundTrip(t *testing.T) {
	rec := record("codec", "file_write", 0)
	rec.Error = "write failed"
	rec.ErrorKind = "io"

	data, err := encodeRecord(rec)
	require.NoError(t, err)
	got, err := decodeRecord(data)
	require.NoError(t, err)

	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, rec.Error, got.Error)
	assert.Equal(t, rec.ErrorKind, got.ErrorKind)
	assert.True(t, rec.StartedAt.Equal(got.StartedAt))

	_, err = decodeRecord([]byte("not zstd"))
	assert.Error(t, err)
}

// ============================================================================
// Recorder
// ============================================================================

type failingStore struct{ MemoryStore }

func (*failingStore) Append(context.Context, Record) error { return errors.New("disk full") }

func TestRecorder_ThroughExecutor(t *testing.T) {
	registry := tools.NewRegistry()
	registry.Register(&echoTool{})

	store := NewMemoryStore()
	executor := tools.NewExecutor(registry, nil, tools.WithObserver(NewRecorder(store, nil)))

	result, err := executor.Execute(context.Background(), &tools.Invocation{
		ToolName:   "echo",
		Parameters: map[string]any{"path": "src/a.clj"},
	})
	require.NoError(t, err)
	require.True(t, result.Success)

	// validation failure is still recorded
	_, err = executor.Execute(context.Background(), &tools.Invocation{ToolName: "echo"})
	require.Error(t, err)

	records, err := store.List(context.Background(), Query{})
	require.NoError(t, err)
	require.Len(t, records, 2)

	var ok, failed Record
	for _, r := range records {
		if r.Success {
			ok = r
		} else {
			failed = r
		}
	}
	assert.NotEmpty(t, ok.ID)
	assert.Equal(t, "a", ok.Module)
	assert.Equal(t, []string{"src/a.clj"}, ok.ModifiedFiles)
	assert.JSONEq(t, `{"echo":"src/a.clj"}`, string(ok.Output))
	assert.False(t, ok.StartedAt.IsZero())
	assert.Contains(t, failed.Error, "path")
}

func TestRecorder_StoreFailureIgnored(t *testing.T) {
	rec := NewRecorder(&failingStore{}, nil)
	assert.NotPanics(t, func() {
		rec.Observe(context.Background(), &tools.Invocation{ID: "x", ToolName: "echo"})
		rec.Observe(context.Background(), nil)
	})
}

func TestFromInvocation_ErrorKind(t *testing.T) {
	inv := &tools.Invocation{
		ID:       "id-1",
		ToolName: "file_insert",
		Result: &tools.Result{
			Success:  false,
			Error:    "pattern not found",
			Metadata: map[string]any{"error_kind": "pattern_not_found"},
			Output:   func() {},
		},
	}
	r := FromInvocation(inv)
	assert.Equal(t, "pattern_not_found", r.ErrorKind)
	assert.Nil(t, r.Output, "unmarshalable output is dropped")
}

type echoTool struct{}

func (echoTool) Name() string                  { return "echo" }
func (echoTool) Category() tools.ToolCategory { return tools.CategoryInspect }
func (echoTool) Definition() tools.ToolDefinition {
	return tools.ToolDefinition{
		Name:     "echo",
		Category: tools.CategoryInspect,
		Parameters: map[string]tools.ParamDef{
			"path": {Type: tools.ParamTypeString, Required: true},
		},
	}
}
func (echoTool) Execute(_ context.Context, params map[string]any) (*tools.Result, error) {
	path := params["path"].(string)
	return &tools.Result{
		Success:       true,
		Output:        map[string]string{"echo": path},
		ModifiedFiles: []string{path},
		Metadata:      map[string]any{"module": "a"},
	}, nil
}

func ids(records []Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}
