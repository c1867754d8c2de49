// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package reload

import (
	"context"
	"sort"
)

// Executor re-loads a batch of modules.
//
// Every input id ends up in exactly one of the Report's partitions. A
// failing id never aborts the rest of the batch.
type Executor interface {
	Reload(ctx context.Context, ids []string) Report
}

// Report partitions a reload batch.
type Report struct {
	// Reloaded lists ids that were reloaded successfully.
	Reloaded []string `json:"reloaded"`

	// Failed maps ids to the error that stopped them.
	Failed map[string]error `json:"-"`

	// Skipped lists ids the executor chose not to reload.
	Skipped []string `json:"skipped"`
}

// NewReport returns an empty report with non-nil partitions.
func NewReport() Report {
	return Report{
		Reloaded: []string{},
		Failed:   map[string]error{},
		Skipped:  []string{},
	}
}

// FailedIDs returns the failed ids, sorted.
func (r Report) FailedIDs() []string {
	ids := make([]string, 0, len(r.Failed))
	for id := range r.Failed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// FailureMessages returns the failures as id → message, for serialization.
func (r Report) FailureMessages() map[string]string {
	out := make(map[string]string, len(r.Failed))
	for id, err := range r.Failed {
		out[id] = err.Error()
	}
	return out
}

// Total returns the number of ids across all partitions.
func (r Report) Total() int {
	return len(r.Reloaded) + len(r.Failed) + len(r.Skipped)
}

// Noop skips every id.
type Noop struct{}

// Reload implements Executor.
func (Noop) Reload(_ context.Context, ids []string) Report {
	report := NewReport()
	report.Skipped = append(report.Skipped, ids...)
	return report
}

// Func adapts a per-id function to Executor. Ids are processed in order;
// a nil error marks the id reloaded.
type Func func(ctx context.Context, id string) error

// Reload implements Executor.
func (f Func) Reload(ctx context.Context, ids []string) Report {
	report := NewReport()
	for _, id := range ids {
		if ctx.Err() != nil {
			report.Skipped = append(report.Skipped, id)
			continue
		}
		if err := f(ctx, id); err != nil {
			report.Failed[id] = err
			continue
		}
		report.Reloaded = append(report.Reloaded, id)
	}
	return report
}

// Instrumented wraps an Executor and records outcome metrics.
func Instrumented(next Executor) Executor {
	return instrumented{next: next}
}

type instrumented struct {
	next Executor
}

func (i instrumented) Reload(ctx context.Context, ids []string) Report {
	report := i.next.Reload(ctx, ids)
	recordReport(report)
	return report
}
