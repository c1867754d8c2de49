// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package reload tracks modules that changed on disk and hands them to a
// pluggable Executor that re-loads them into a running process.
//
// The file engine never owns pending state. Callers put a PendingSink in
// the context with WithPending; file tools that infer a module identifier
// add it to that sink when one is present. Reload order is not resolved
// against module dependencies.
package reload

import (
	"context"
	"sync"
)

// PendingSink receives module identifiers awaiting reload.
//
// Implementations must be safe for concurrent use.
type PendingSink interface {
	AddPending(id string)
}

// PendingSet is an insertion-ordered, de-duplicated set of module
// identifiers.
//
// Thread Safety: safe for concurrent use.
type PendingSet struct {
	mu    sync.Mutex
	order []string
	index map[string]struct{}
}

// NewPendingSet creates an empty set.
func NewPendingSet() *PendingSet {
	return &PendingSet{index: make(map[string]struct{})}
}

// AddPending records id. Empty and duplicate ids are ignored.
func (s *PendingSet) AddPending(id string) {
	if id == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.index[id]; ok {
		return
	}
	s.index[id] = struct{}{}
	s.order = append(s.order, id)
}

// Snapshot returns the ids in insertion order without clearing the set.
func (s *PendingSet) Snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Drain returns the ids in insertion order and clears the set.
func (s *PendingSet) Drain() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.order
	s.order = nil
	s.index = make(map[string]struct{})
	if out == nil {
		return []string{}
	}
	return out
}

// Len returns the number of pending ids.
func (s *PendingSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

type pendingKey struct{}

// WithPending returns a context carrying sink as the pending slot.
func WithPending(ctx context.Context, sink PendingSink) context.Context {
	if sink == nil {
		return ctx
	}
	return context.WithValue(ctx, pendingKey{}, sink)
}

// PendingFrom returns the pending slot carried by ctx, if any.
func PendingFrom(ctx context.Context) (PendingSink, bool) {
	sink, ok := ctx.Value(pendingKey{}).(PendingSink)
	return sink, ok && sink != nil
}
