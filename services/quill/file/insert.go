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
	"fmt"
	"strings"
	"time"
)

type locationKind int

const (
	locUnset locationKind = iota
	locLine
	locAfter
	locBefore
)

// Location is where Insert places new lines. Build one with AtLine,
// After or Before; the zero value is invalid.
type Location struct {
	kind    locationKind
	line    int
	pattern Pattern
}

// AtLine inserts before the line currently at 1-indexed position n.
// n may be one past the last line to insert at the end.
func AtLine(n int) Location {
	return Location{kind: locLine, line: n}
}

// After inserts immediately after the first line matching p.
func After(p Pattern) Location {
	return Location{kind: locAfter, pattern: p}
}

// Before inserts immediately before the first line matching p.
func Before(p Pattern) Location {
	return Location{kind: locBefore, pattern: p}
}

// String describes the location for logs.
func (l Location) String() string {
	switch l.kind {
	case locLine:
		return fmt.Sprintf("line %d", l.line)
	case locAfter:
		return "after " + l.pattern.String()
	case locBefore:
		return "before " + l.pattern.String()
	default:
		return "unset"
	}
}

// InsertArgs are the inputs to Insert.
type InsertArgs struct {
	Path      string
	Content   string
	At        Location
	Threshold *int
}

// Insert splices the lines of Content into an existing file.
//
// Description:
//
//	The file is split into lines, the new lines are inserted at the
//	resolved position, and the result is joined with exactly one trailing
//	newline, whether or not the original had one. Pattern anchors use the
//	first matching line scanning from the top.
//
// Errors:
//
//	ErrFileNotFound - The file does not exist.
//	ErrPatternNotFound - No line matches an After/Before anchor. The file
//	                     is left unchanged.
//	ErrInvalidArgument - Unset location, line outside 1..lines+1, or an
//	                     empty or invalid pattern.
func (e *Engine) Insert(ctx context.Context, args InsertArgs) (result *Result, err error) {
	const op = "insert"
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
	if args.At.kind == locUnset {
		return nil, invalidArg(op, path, "insert location is required")
	}

	pre, err := e.requireExisting(op, path)
	if err != nil {
		return nil, err
	}

	lines := splitLines(string(pre.content))
	idx, err := insertIndex(op, path, lines, args.At)
	if err != nil {
		return nil, err
	}

	added := splitLines(args.Content)
	out := make([]string, 0, len(lines)+len(added))
	out = append(out, lines[:idx]...)
	out = append(out, added...)
	out = append(out, lines[idx:]...)

	return e.commit(ctx, op, path, pre, []byte(joinLines(out)), false, limit)
}

// insertIndex resolves a Location to a 0-indexed splice point.
func insertIndex(op, path string, lines []string, at Location) (int, error) {
	if at.kind == locLine {
		if at.line < 1 || at.line > len(lines)+1 {
			return 0, invalidArg(op, path, fmt.Sprintf("line %d outside 1..%d", at.line, len(lines)+1))
		}
		return at.line - 1, nil
	}

	m, err := at.pattern.compile()
	if err != nil {
		return 0, invalidArg(op, path, err.Error())
	}
	for i, line := range lines {
		if !m.matchString(line) {
			continue
		}
		if at.kind == locAfter {
			return i + 1, nil
		}
		return i, nil
	}
	return 0, &OpError{Op: op, Path: path, Pattern: at.pattern.Text, Err: ErrPatternNotFound}
}

// splitLines splits on "\n" without producing a trailing empty element
// for newline-terminated content. "" yields no lines.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}

// joinLines joins with "\n" and guarantees a single trailing newline.
func joinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}
