// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/quill/pkg/logging"
	"github.com/AleutianAI/quill/services/quill/audit"
	"github.com/AleutianAI/quill/services/quill/config"
	"github.com/AleutianAI/quill/services/quill/file"
	"github.com/AleutianAI/quill/services/quill/reload"
	"github.com/AleutianAI/quill/services/quill/tools"
)

// app holds flag values and the components built from them for one
// invocation.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	// persistent flags
	configPath  string
	logLevel    string
	auditLog    bool
	reloadAfter bool
	showDiff    bool

	project  *config.Project
	logger   *logging.Logger
	engine   *file.Engine
	executor *tools.Executor
	store    audit.Store
	pending  *reload.PendingSet
	exitCode int
}

// setup loads configuration and wires the engine, executor and audit log.
func (a *app) setup(cmd *cobra.Command) error {
	project, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.project = project

	logCfg, err := project.LoggingConfig(a.logLevel)
	if err != nil {
		return err
	}
	logCfg.Output = a.stderr
	a.logger = logging.New(logCfg)
	logger := a.logger.Slog()

	engineCfg, err := project.EngineConfig(logger)
	if err != nil {
		return err
	}
	a.engine, err = file.NewEngine(engineCfg)
	if err != nil {
		return err
	}

	registry := tools.NewRegistry()
	if err := file.RegisterFileTools(registry, a.engine); err != nil {
		return err
	}

	options := []tools.ExecutorOption{
		tools.WithLogger(logger),
		tools.WithTracer(tools.NewTracer(logger, true)),
		tools.WithPathSerialization(),
	}
	if a.auditLog || project.Audit.Enabled {
		if err := a.openAudit(); err != nil {
			return err
		}
		options = append(options, tools.WithObserver(audit.NewRecorder(a.store, logger)))
	}
	a.executor = tools.NewExecutor(registry, nil, options...)
	a.pending = reload.NewPendingSet()

	logger.Debug("quill ready",
		slog.String("command", cmd.Name()),
		slog.String("project_root", a.engine.ProjectRoot()),
	)
	return nil
}

func (a *app) openAudit() error {
	if a.store != nil {
		return nil
	}
	store, err := audit.NewBadgerStore(a.project.AuditConfig(a.logger.Slog()))
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	a.store = store
	return nil
}

// invoke dispatches one tool call and prints its structured output.
func (a *app) invoke(ctx context.Context, toolName string, params map[string]any) error {
	ctx = reload.WithPending(ctx, a.pending)

	result, err := a.executor.Execute(ctx, &tools.Invocation{
		ToolName:   toolName,
		Parameters: params,
		Reason:     "cli",
	})
	if err != nil {
		return err
	}

	if a.showDiff && result.OutputText != "" {
		fmt.Fprintln(a.stderr, result.OutputText)
	}
	if !result.Success {
		kind, _ := result.Metadata["error_kind"].(string)
		fmt.Fprintf(a.stderr, "%s failed (%s): %s\n", toolName, kind, result.Error)
		a.exitCode = exitFailure
	}
	if err := a.printJSON(result.Output); err != nil {
		return err
	}

	if a.reloadAfter {
		a.reloadModules(ctx, a.pending.Drain())
	}
	return nil
}

// reloadModules runs the configured reload executor over ids.
func (a *app) reloadModules(ctx context.Context, ids []string) reload.Report {
	report := a.engine.ReloadExecutor().Reload(ctx, ids)
	logger := a.logger.Slog()
	for _, id := range report.FailedIDs() {
		logger.Error("reload failed", slog.String("module", id), slog.String("error", report.Failed[id].Error()))
		a.exitCode = exitFailure
	}
	if len(report.Reloaded) > 0 {
		logger.Info("reloaded", slog.Any("modules", report.Reloaded))
	}
	return report
}

// printJSON writes v to stdout, indented when stdout is a terminal.
func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	if a.isTerminal() {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

func (a *app) isTerminal() bool {
	f, ok := a.stdout.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// close releases the audit store and log files.
func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			fmt.Fprintf(a.stderr, "closing audit log: %v\n", err)
		}
	}
	if a.logger != nil {
		_ = a.logger.Close()
	}
}
