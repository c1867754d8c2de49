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
	"errors"
	"time"
)

// Status reports how an operation affected its target.
type Status string

const (
	// StatusOK means an existing file was modified.
	StatusOK Status = "ok"

	// StatusCreated means the file did not exist before the operation.
	StatusCreated Status = "created"

	// StatusError means the operation failed.
	StatusError Status = "error"
)

// LOC holds line counts around a mutation. Before and Delta are nil when
// the file was created.
type LOC struct {
	Before *int `json:"before"`
	After  int  `json:"after"`
	Delta  *int `json:"delta"`
}

// Threshold reports a line limit check. Remaining may be negative.
type Threshold struct {
	Limit     int  `json:"limit"`
	Exceeded  bool `json:"exceeded"`
	Remaining int  `json:"remaining"`
}

// ModuleInfo identifies the module a file belongs to.
type ModuleInfo struct {
	// Identifiers holds exactly one inferred identifier.
	Identifiers []string `json:"identifiers"`

	// Kind is the language family's module kind, e.g. "namespace".
	Kind string `json:"kind"`
}

// Result is returned by every mutating operation.
type Result struct {
	Path      string      `json:"path"`
	Status    Status      `json:"status"`
	LOC       *LOC        `json:"loc,omitempty"`
	Threshold *Threshold  `json:"threshold,omitempty"`
	Hints     []string    `json:"hints"`
	Module    *ModuleInfo `json:"module,omitempty"`

	// Formatted is nil when no formatter is configured for the extension.
	Formatted   *bool  `json:"formatted,omitempty"`
	FormatError string `json:"formatError,omitempty"`
}

// ModuleID returns the inferred identifier, or "" when there is none.
func (r *Result) ModuleID() string {
	if r == nil || r.Module == nil || len(r.Module.Identifiers) == 0 {
		return ""
	}
	return r.Module.Identifiers[0]
}

// ErrorResult builds the status=error record reported for a failed call.
func ErrorResult(path string, err error) *Result {
	r := &Result{
		Path:   path,
		Status: StatusError,
		Hints:  []string{},
	}
	var opErr *OpError
	if errors.As(err, &opErr) && opErr.Path != "" {
		r.Path = opErr.Path
	}
	return r
}

// Metadata is returned by Stat.
type Metadata struct {
	Path       string      `json:"path"`
	Exists     bool        `json:"exists"`
	LOC        *int        `json:"loc,omitempty"`
	ModifiedAt *time.Time  `json:"modifiedAt,omitempty"`
	Module     *ModuleInfo `json:"module,omitempty"`
}

// snapshot is the pre-mutation state of a target.
type snapshot struct {
	existed bool
	lines   int
	content []byte
}

// buildResult assembles a Result from the pre-state, the final line count
// and the formatter outcome.
func buildResult(path string, pre snapshot, after int, limit *int, module *ModuleInfo, format FormatOutcome) *Result {
	r := &Result{
		Path:      path,
		Status:    StatusOK,
		LOC:       &LOC{After: after},
		Threshold: CheckThreshold(after, limit),
		Hints:     []string{},
		Module:    module,
		Formatted: format.Formatted(),
	}
	if format.Status == FormatFailed {
		r.FormatError = format.ErrorText()
	}

	if !pre.existed {
		r.Status = StatusCreated
		return r
	}

	before := pre.lines
	delta := after - before
	r.LOC.Before = &before
	r.LOC.Delta = &delta
	return r
}
