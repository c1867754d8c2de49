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
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"
)

// Stat reports whether path exists and, if so, its line count,
// modification time and module. A missing file is a normal result.
// Nothing is written and no formatter runs.
func (e *Engine) Stat(ctx context.Context, path string) (*Metadata, error) {
	const op = "stat"
	start := time.Now()

	meta, err := e.stat(op, path)
	if err != nil {
		e.observe(ctx, op, start, nil, err)
		return nil, err
	}

	operationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	operationsTotal.WithLabelValues(op, string(StatusOK)).Inc()
	return meta, nil
}

func (e *Engine) stat(op, path string) (*Metadata, error) {
	abs, err := e.resolve(op, path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Metadata{Path: abs, Exists: false}, nil
		}
		return nil, ioError(op, abs, err)
	}
	if info.IsDir() {
		return nil, ioError(op, abs, fmt.Errorf("%s is a directory", abs))
	}

	lines, err := CountLines(abs)
	if err != nil {
		return nil, ioError(op, abs, err)
	}
	modified := info.ModTime()

	return &Metadata{
		Path:       abs,
		Exists:     true,
		LOC:        &lines,
		ModifiedAt: &modified,
		Module:     e.module(abs),
	}, nil
}
