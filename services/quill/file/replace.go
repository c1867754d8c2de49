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
	"context"
	"log/slog"
	"time"
)

// ReplaceArgs are the inputs to Replace.
type ReplaceArgs struct {
	Path        string
	Find        Pattern
	Replacement string

	// All replaces every non-overlapping match instead of only the first.
	All bool

	// Threshold overrides the configured default line limit.
	Threshold *int
}

// Replace substitutes matches of Find in an existing file.
//
// Zero matches is a successful no-op: the unchanged content still goes
// through the normal write pipeline and the result reports a zero delta
// unless a formatter changes the file.
//
// Errors:
//
//	ErrFileNotFound - The file does not exist.
//	ErrInvalidArgument - Empty or invalid pattern.
func (e *Engine) Replace(ctx context.Context, args ReplaceArgs) (result *Result, err error) {
	const op = "replace"
	start := time.Now()
	defer func() { e.observe(ctx, op, start, result, err) }()

	path, err := e.resolve(op, args.Path)
	if err != nil {
		return nil, err
	}
	limit, err := e.threshold(op, path, args.Threshold)
	if err != nil {
		return nil, err
	}
	m, err := args.Find.compile()
	if err != nil {
		return nil, invalidArg(op, path, err.Error())
	}

	pre, err := e.requireExisting(op, path)
	if err != nil {
		return nil, err
	}

	content, n := m.replace(string(pre.content), args.Replacement, args.All)
	e.logger.DebugContext(ctx, "replace matched",
		slog.String("path", path),
		slog.String("pattern", args.Find.String()),
		slog.Int("replacements", n),
	)

	return e.commit(ctx, op, path, pre, []byte(content), false, limit)
}
