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
	"fmt"
	"os"
	"path/filepath"
)

// defaultFileMode is applied to files that did not exist before the write.
const defaultFileMode os.FileMode = 0644

// tempPattern names in-flight temp files. The suffix is not a source
// extension, so watchers never mistake a temp file for a module.
const tempPattern = ".quill-*.tmp"

// AtomicWrite replaces the content of path so that readers observe either
// the old bytes or the new bytes, never a mix.
//
// Description:
//
//	Content goes to a temp file in the target's own directory, which is
//	synced and then renamed over the target. On any failure before the
//	rename the target is untouched and the temp file is removed. An
//	existing file keeps its permission bits; a symlinked target is written
//	through to the link destination so the link itself survives.
//
// Inputs:
//
//	path - Absolute target path.
//	content - The complete new content.
//	createParentDirs - Create missing parent directories (0755) first.
func AtomicWrite(path string, content []byte, createParentDirs bool) error {
	target := path
	if real, err := filepath.EvalSymlinks(path); err == nil {
		target = real
	}
	dir := filepath.Dir(target)

	if createParentDirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating parent directories: %w", err)
		}
	}

	perm := defaultFileMode
	if info, err := os.Stat(target); err == nil {
		if info.IsDir() {
			return fmt.Errorf("%s is a directory", target)
		}
		perm = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("writing content: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("syncing to disk: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	success = true
	return nil
}
