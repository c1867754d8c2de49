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
	"log/slog"

	"github.com/AleutianAI/quill/services/quill/tools"
)

// Recorder appends every observed invocation to a Store.
type Recorder struct {
	store  Store
	logger *slog.Logger
}

// NewRecorder creates a Recorder. A nil logger uses slog.Default().
func NewRecorder(store Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		store:  store,
		logger: logger.With(slog.String("component", "audit")),
	}
}

// Observe implements tools.Observer. Store failures are logged and
// otherwise ignored; the invocation is never affected.
func (r *Recorder) Observe(ctx context.Context, inv *tools.Invocation) {
	if inv == nil {
		return
	}
	rec := FromInvocation(inv)

	// The invocation may have ended because its context was cancelled.
	if err := r.store.Append(context.WithoutCancel(ctx), rec); err != nil {
		r.logger.WarnContext(ctx, "audit append failed",
			slog.String("tool", rec.Tool),
			slog.String("invocation_id", rec.ID),
			slog.String("error", err.Error()),
		)
	}
}

var _ tools.Observer = (*Recorder)(nil)
