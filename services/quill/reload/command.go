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
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// ModulePlaceholder is replaced by the module id in command arguments.
const ModulePlaceholder = "{module}"

// ErrCommandFailed indicates a reload command exited unsuccessfully.
var ErrCommandFailed = errors.New("reload command failed")

// CommandConfig configures a CommandExecutor.
type CommandConfig struct {
	// Command is the argv template. Any argument may contain "{module}".
	Command []string

	// Dir is the working directory for the command.
	Dir string

	// Concurrency bounds parallel commands. Values below 1 mean 1.
	Concurrency int

	// Timeout bounds each command. Zero means 30s.
	Timeout time.Duration

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// CommandExecutor reloads each module by running an external command, for
// example a REPL client that evaluates (require 'ns :reload).
//
// Thread Safety: safe for concurrent use.
type CommandExecutor struct {
	config CommandConfig
	logger *slog.Logger
}

// NewCommandExecutor validates config and returns an executor.
func NewCommandExecutor(config CommandConfig) (*CommandExecutor, error) {
	if len(config.Command) == 0 || strings.TrimSpace(config.Command[0]) == "" {
		return nil, fmt.Errorf("reload command must not be empty")
	}
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandExecutor{config: config, logger: logger}, nil
}

// Reload runs the command once per distinct, non-empty id.
//
// Empty and repeated ids are skipped. The Reloaded partition keeps input
// order regardless of completion order.
func (e *CommandExecutor) Reload(ctx context.Context, ids []string) Report {
	report := NewReport()

	seen := make(map[string]bool, len(ids))
	var work []string
	for _, id := range ids {
		if id == "" || seen[id] {
			report.Skipped = append(report.Skipped, id)
			continue
		}
		seen[id] = true
		work = append(work, id)
	}

	var mu sync.Mutex
	ok := make(map[string]bool, len(work))

	g := new(errgroup.Group)
	g.SetLimit(e.config.Concurrency)

	for _, id := range work {
		id := id
		g.Go(func() error {
			err := e.run(ctx, id)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed[id] = err
				e.logger.Warn("module reload failed",
					slog.String("module", id),
					slog.String("error", err.Error()),
				)
				return nil
			}
			ok[id] = true
			return nil
		})
	}
	_ = g.Wait()

	for _, id := range work {
		if ok[id] {
			report.Reloaded = append(report.Reloaded, id)
		}
	}
	return report
}

func (e *CommandExecutor) run(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	args := make([]string, len(e.config.Command))
	for i, arg := range e.config.Command {
		args[i] = strings.ReplaceAll(arg, ModulePlaceholder, id)
	}

	cmdCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, args[0], args[1:]...)
	cmd.Dir = e.config.Dir

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if cmdCtx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("%w: %s timed out after %v", ErrCommandFailed, id, e.config.Timeout)
	}
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return fmt.Errorf("%w: %s: %s", ErrCommandFailed, id, msg)
	}
	return nil
}
