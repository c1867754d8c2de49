// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package audit keeps a log of every tool invocation.
//
// A Recorder observes the dispatch executor and appends one Record per
// completed invocation to a Store. Two stores exist: MemoryStore for tests
// and short-lived processes, and BadgerStore for a persistent log under
// the project directory.
//
// Thread Safety: All Store implementations are safe for concurrent use.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/AleutianAI/quill/services/quill/tools"
)

var (
	// ErrNotFound indicates no record has the requested ID.
	ErrNotFound = errors.New("audit record not found")

	// ErrClosed indicates the store has been closed.
	ErrClosed = errors.New("audit store closed")

	// ErrInvalidRecord indicates a record without an ID or tool name.
	ErrInvalidRecord = errors.New("invalid audit record")
)

// DefaultListLimit caps List when Query.Limit is zero.
const DefaultListLimit = 100

// Record is one completed tool invocation.
type Record struct {
	ID            string          `msgpack:"id" json:"id"`
	Tool          string          `msgpack:"tool" json:"tool"`
	Params        map[string]any  `msgpack:"params,omitempty" json:"params,omitempty"`
	Success       bool            `msgpack:"ok" json:"success"`
	Error         string          `msgpack:"err,omitempty" json:"error,omitempty"`
	ErrorKind     string          `msgpack:"kind,omitempty" json:"errorKind,omitempty"`
	Module        string          `msgpack:"mod,omitempty" json:"module,omitempty"`
	ModifiedFiles []string        `msgpack:"files,omitempty" json:"modifiedFiles,omitempty"`
	Output        json.RawMessage `msgpack:"out,omitempty" json:"output,omitempty"`
	StartedAt     time.Time       `msgpack:"start" json:"startedAt"`
	CompletedAt   time.Time       `msgpack:"end" json:"completedAt"`
}

// Duration returns how long the invocation ran.
func (r Record) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

func (r Record) validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidRecord)
	}
	if r.Tool == "" {
		return fmt.Errorf("%w: tool is required", ErrInvalidRecord)
	}
	return nil
}

// Query filters List results.
type Query struct {
	// Tool restricts results to one tool name. Empty matches all.
	Tool string

	// Limit caps the number of records. Zero uses DefaultListLimit.
	Limit int
}

func (q Query) limit() int {
	if q.Limit <= 0 {
		return DefaultListLimit
	}
	return q.Limit
}

func (q Query) matches(r Record) bool {
	return q.Tool == "" || q.Tool == r.Tool
}

// Store persists audit records.
type Store interface {
	// Append adds a record. The ID must be unique.
	Append(ctx context.Context, r Record) error

	// Get returns the record with the given ID or ErrNotFound.
	Get(ctx context.Context, id string) (Record, error)

	// List returns matching records, newest first.
	List(ctx context.Context, q Query) ([]Record, error)

	// Close releases resources. It is idempotent; other methods return
	// ErrClosed afterwards.
	Close() error
}

// FromInvocation converts a completed invocation to a Record.
//
// The tool's structured output is stored as JSON. Outputs that cannot be
// marshaled are dropped; the text output is never stored.
func FromInvocation(inv *tools.Invocation) Record {
	r := Record{
		ID:          inv.ID,
		Tool:        inv.ToolName,
		Params:      inv.Parameters,
		StartedAt:   inv.StartedAt,
		CompletedAt: inv.CompletedAt,
	}

	res := inv.Result
	if res == nil {
		return r
	}
	r.Success = res.Success
	r.Error = res.Error
	if len(res.ModifiedFiles) > 0 {
		r.ModifiedFiles = append([]string(nil), res.ModifiedFiles...)
	}
	if kind, ok := res.Metadata["error_kind"].(string); ok {
		r.ErrorKind = kind
	}
	if module, ok := res.Metadata["module"].(string); ok {
		r.Module = module
	}
	if res.Output != nil {
		if data, err := json.Marshal(res.Output); err == nil {
			r.Output = data
		}
	}
	return r
}
