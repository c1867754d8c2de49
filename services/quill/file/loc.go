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
	"bytes"
	"errors"
	"io/fs"
	"os"
)

// CountLines returns the number of lines in the file at path, or 0 when
// the file does not exist.
func CountLines(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	return CountLinesBytes(data), nil
}

// CountLinesBytes counts newline-terminated lines, plus one for trailing
// content without a final newline.
//
//	""          → 0
//	"a\n"       → 1
//	"a\nb"      → 2
//	"\n\n"      → 2
func CountLinesBytes(data []byte) int {
	n := bytes.Count(data, []byte{'\n'})
	if len(data) > 0 && data[len(data)-1] != '\n' {
		n++
	}
	return n
}

// CheckThreshold evaluates after against limit. It returns nil when limit
// is nil. A file exactly at the limit is not exceeded.
func CheckThreshold(after int, limit *int) *Threshold {
	if limit == nil {
		return nil
	}
	return &Threshold{
		Limit:     *limit,
		Exceeded:  after > *limit,
		Remaining: *limit - after,
	}
}
