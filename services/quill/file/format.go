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
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// FormatFunc rewrites the file at path in place. A non-nil error marks the
// run as failed; the engine never treats that as an operation failure.
type FormatFunc func(ctx context.Context, path string) error

// FormatStatus is the variant of a formatter run.
type FormatStatus int

const (
	// FormatSkipped means no formatter is configured for the extension.
	FormatSkipped FormatStatus = iota

	// FormatSucceeded means the formatter returned normally.
	FormatSucceeded

	// FormatFailed means the formatter returned an error or panicked.
	FormatFailed
)

// String returns the metric label for the status.
func (s FormatStatus) String() string {
	switch s {
	case FormatSucceeded:
		return "succeeded"
	case FormatFailed:
		return "failed"
	default:
		return "skipped"
	}
}

// FormatOutcome is the result of running the formatter for one path.
type FormatOutcome struct {
	Status FormatStatus

	// Err is set only for FormatFailed.
	Err error
}

// Formatted maps the outcome to the result's tri-state field.
func (o FormatOutcome) Formatted() *bool {
	switch o.Status {
	case FormatSucceeded:
		v := true
		return &v
	case FormatFailed:
		v := false
		return &v
	default:
		return nil
	}
}

// ErrorText returns the failure detail, or "".
func (o FormatOutcome) ErrorText() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// runFormatter runs the formatter registered for path's extension.
//
// The formatter is trusted not to corrupt the file; its own atomicity is
// not re-verified. Content is not read here; callers re-count afterwards.
func (e *Engine) runFormatter(ctx context.Context, path string) (outcome FormatOutcome) {
	ext := filepath.Ext(path)
	format, ok := e.formatters[ext]
	if !ok {
		return FormatOutcome{Status: FormatSkipped}
	}

	defer func() {
		if r := recover(); r != nil {
			outcome = FormatOutcome{Status: FormatFailed, Err: fmt.Errorf("formatter panicked: %v", r)}
		}
		formatOutcomesTotal.WithLabelValues(outcome.Status.String()).Inc()
		if outcome.Status == FormatFailed {
			e.logger.WarnContext(ctx, "formatter failed",
				slog.String("path", path),
				slog.String("extension", ext),
				slog.String("error", outcome.ErrorText()),
			)
		}
	}()

	if err := format(ctx, path); err != nil {
		return FormatOutcome{Status: FormatFailed, Err: err}
	}
	return FormatOutcome{Status: FormatSucceeded}
}

// PathPlaceholder is replaced by the file path in formatter commands.
const PathPlaceholder = "{path}"

// CommandFormatter returns a FormatFunc that runs an external formatter,
// for example ["cljfmt", "fix", "{path}"]. When no argument contains the
// placeholder the path is appended. A non-zero exit is a failure whose
// message carries the command's stderr.
func CommandFormatter(argv []string, dir string, timeout time.Duration) FormatFunc {
	command := append([]string(nil), argv...)
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return func(ctx context.Context, path string) error {
		if len(command) == 0 {
			return fmt.Errorf("formatter command is empty")
		}

		args := make([]string, 0, len(command)+1)
		substituted := false
		for _, arg := range command {
			if strings.Contains(arg, PathPlaceholder) {
				substituted = true
			}
			args = append(args, strings.ReplaceAll(arg, PathPlaceholder, path))
		}
		if !substituted {
			args = append(args, path)
		}

		cmdCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		cmd := exec.CommandContext(cmdCtx, args[0], args[1:]...)
		cmd.Dir = dir

		var stderr bytes.Buffer
		cmd.Stderr = &stderr

		err := cmd.Run()
		if cmdCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%s timed out after %v", args[0], timeout)
		}
		if err != nil {
			if msg := strings.TrimSpace(stderr.String()); msg != "" {
				return fmt.Errorf("%s: %w: %s", args[0], err, msg)
			}
			return fmt.Errorf("%s: %w", args[0], err)
		}
		return nil
	}
}
