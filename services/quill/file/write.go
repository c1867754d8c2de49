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
	"time"
)

// WriteArgs are the inputs to Write.
type WriteArgs struct {
	// Path is absolute or relative to the project root.
	Path string

	// Content replaces the whole file.
	Content string

	// CreateParentDirs creates missing parent directories.
	CreateParentDirs bool

	// Threshold overrides the configured default line limit.
	Threshold *int
}

// Write replaces the entire content of a file, creating it if needed.
//
// Outputs:
//
//	*Result - Status is StatusCreated when the file did not exist.
//	error - *OpError wrapping ErrIO or ErrInvalidArgument.
func (e *Engine) Write(ctx context.Context, args WriteArgs) (result *Result, err error) {
	const op = "write"
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
	pre, err := e.snapshot(op, path)
	if err != nil {
		return nil, err
	}

	return e.commit(ctx, op, path, pre, []byte(args.Content), args.CreateParentDirs, limit)
}

// AppendArgs are the inputs to Append.
type AppendArgs struct {
	Path      string
	Content   string
	Threshold *int
}

// Append adds content to the end of a file verbatim. No newline is
// inserted between the existing content and the new content. A missing
// file is created, exactly as Write would.
func (e *Engine) Append(ctx context.Context, args AppendArgs) (result *Result, err error) {
	const op = "append"
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
	pre, err := e.snapshot(op, path)
	if err != nil {
		return nil, err
	}

	content := make([]byte, 0, len(pre.content)+len(args.Content))
	content = append(content, pre.content...)
	content = append(content, args.Content...)

	return e.commit(ctx, op, path, pre, content, false, limit)
}
