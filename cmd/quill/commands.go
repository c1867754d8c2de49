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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/quill/services/quill/audit"
	"github.com/AleutianAI/quill/services/quill/config"
	"github.com/AleutianAI/quill/services/quill/file"
	"github.com/AleutianAI/quill/services/quill/reload"
)

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "quill",
		Short: "Atomic file edits with line accounting and namespace reload",
		Long: `quill writes, appends, inserts and replaces file content atomically,
runs configured formatters, and reports line counts, thresholds and the
namespace each edit touched.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", config.DefaultFileName, "Project config file")
	flags.StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	flags.BoolVar(&a.auditLog, "audit", false, "Record invocations in the audit log")
	flags.BoolVar(&a.reloadAfter, "reload", false, "Reload affected namespaces after the command")
	flags.BoolVar(&a.showDiff, "diff", false, "Print the summary and unified diff to stderr")

	root.AddCommand(
		newWriteCmd(a),
		newAppendCmd(a),
		newInsertCmd(a),
		newReplaceCmd(a),
		newStatCmd(a),
		newAuditCmd(a),
		newWatchCmd(a),
		newToolsCmd(a),
	)
	return root
}

// =============================================================================
// Mutating commands
// =============================================================================

// contentFlag returns --content when set, otherwise all of stdin.
func contentFlag(cmd *cobra.Command, a *app) (string, error) {
	if cmd.Flags().Changed("content") {
		return cmd.Flags().GetString("content")
	}
	data, err := io.ReadAll(a.stdin)
	if err != nil {
		return "", fmt.Errorf("read content from stdin: %w", err)
	}
	return string(data), nil
}

func addThreshold(cmd *cobra.Command, params map[string]any) {
	if cmd.Flags().Changed("threshold") {
		n, _ := cmd.Flags().GetInt("threshold")
		params["threshold"] = n
	}
}

func newWriteCmd(a *app) *cobra.Command {
	var createDirs bool
	cmd := &cobra.Command{
		Use:   "write <path>",
		Short: "Replace a file's content, creating it if needed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := contentFlag(cmd, a)
			if err != nil {
				return err
			}
			params := map[string]any{
				"path":               args[0],
				"content":            content,
				"create_parent_dirs": createDirs,
			}
			addThreshold(cmd, params)
			return a.invoke(cmd.Context(), file.ToolWrite, params)
		},
	}
	cmd.Flags().StringP("content", "c", "", "New content (default: read stdin)")
	cmd.Flags().BoolVarP(&createDirs, "create-parent-dirs", "p", false, "Create missing parent directories")
	cmd.Flags().Int("threshold", 0, "Line-count threshold to report against")
	return cmd
}

func newAppendCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "append <path>",
		Short: "Append content verbatim to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := contentFlag(cmd, a)
			if err != nil {
				return err
			}
			params := map[string]any{"path": args[0], "content": content}
			addThreshold(cmd, params)
			return a.invoke(cmd.Context(), file.ToolAppend, params)
		},
	}
	cmd.Flags().StringP("content", "c", "", "Content to append (default: read stdin)")
	cmd.Flags().Int("threshold", 0, "Line-count threshold to report against")
	return cmd
}

func newInsertCmd(a *app) *cobra.Command {
	var (
		after, before string
		regex         bool
	)
	cmd := &cobra.Command{
		Use:   "insert <path>",
		Short: "Insert lines at a line number or next to a matching line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := contentFlag(cmd, a)
			if err != nil {
				return err
			}
			params := map[string]any{"path": args[0], "content": content, "regex": regex}
			if cmd.Flags().Changed("line") {
				n, _ := cmd.Flags().GetInt("line")
				params["line"] = n
			}
			if cmd.Flags().Changed("after") {
				params["after"] = after
			}
			if cmd.Flags().Changed("before") {
				params["before"] = before
			}
			addThreshold(cmd, params)
			return a.invoke(cmd.Context(), file.ToolInsert, params)
		},
	}
	cmd.Flags().StringP("content", "c", "", "Lines to insert (default: read stdin)")
	cmd.Flags().Int("line", 0, "1-indexed line to insert before")
	cmd.Flags().StringVar(&after, "after", "", "Insert after the first line matching this pattern")
	cmd.Flags().StringVar(&before, "before", "", "Insert before the first line matching this pattern")
	cmd.Flags().BoolVar(&regex, "regex", false, "Treat --after/--before as a regular expression")
	cmd.Flags().Int("threshold", 0, "Line-count threshold to report against")
	cmd.MarkFlagsMutuallyExclusive("line", "after", "before")
	cmd.MarkFlagsOneRequired("line", "after", "before")
	return cmd
}

func newReplaceCmd(a *app) *cobra.Command {
	var (
		find, replacement string
		regex, all        bool
	)
	cmd := &cobra.Command{
		Use:   "replace <path>",
		Short: "Find and replace text in a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := map[string]any{
				"path":        args[0],
				"find":        find,
				"replacement": replacement,
				"regex":       regex,
				"all":         all,
			}
			addThreshold(cmd, params)
			return a.invoke(cmd.Context(), file.ToolReplace, params)
		},
	}
	cmd.Flags().StringVar(&find, "find", "", "Text or pattern to find")
	cmd.Flags().StringVar(&replacement, "replacement", "", "Replacement text")
	cmd.Flags().BoolVar(&regex, "regex", false, "Treat --find as a regular expression")
	cmd.Flags().BoolVar(&all, "all", false, "Replace every match")
	cmd.Flags().Int("threshold", 0, "Line-count threshold to report against")
	_ = cmd.MarkFlagRequired("find")
	_ = cmd.MarkFlagRequired("replacement")
	return cmd
}

func newStatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stat <path>",
		Short: "Show existence, line count and namespace of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.invoke(cmd.Context(), file.ToolInfo, map[string]any{"path": args[0]})
		},
	}
}

// =============================================================================
// Audit
// =============================================================================

func newAuditCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the audit log",
	}

	var q audit.Query
	list := &cobra.Command{
		Use:   "list",
		Short: "List recorded invocations, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.openAudit(); err != nil {
				return err
			}
			records, err := a.store.List(cmd.Context(), q)
			if err != nil {
				return err
			}
			if records == nil {
				records = []audit.Record{}
			}
			return a.printJSON(records)
		},
	}
	list.Flags().StringVar(&q.Tool, "tool", "", "Only show this tool")
	list.Flags().IntVar(&q.Limit, "limit", 20, "Maximum records to show")

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one recorded invocation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.openAudit(); err != nil {
				return err
			}
			rec, err := a.store.Get(cmd.Context(), args[0])
			if errors.Is(err, audit.ErrNotFound) {
				fmt.Fprintf(a.stderr, "no audit record %s\n", args[0])
				a.exitCode = exitFailure
				return nil
			}
			if err != nil {
				return err
			}
			return a.printJSON(rec)
		},
	}

	cmd.AddCommand(list, show)
	return cmd
}

// =============================================================================
// Watch
// =============================================================================

type watchTick struct {
	Pending  []string          `json:"pending"`
	Reloaded []string          `json:"reloaded,omitempty"`
	Failed   map[string]string `json:"failed,omitempty"`
}

func newWatchCmd(a *app) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch source roots and report (or reload) changed namespaces",
		Long: `watch follows edits made outside quill. Every interval it prints the
namespaces changed since the last tick as one JSON line; with --reload it
also runs the configured reload command for them. Stops on interrupt.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if interval <= 0 {
				return fmt.Errorf("--interval must be positive")
			}
			logger := a.logger.Slog()
			w, err := reload.NewWatcher(a.engine.Inferrer(), a.pending, logger)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			done := make(chan error, 1)
			go func() { done <- w.Run(ctx) }()
			logger.Info("watching", slog.Any("dirs", w.WatchList()))

			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case err := <-done:
					return err
				case <-ticker.C:
					if a.pending.Len() == 0 {
						continue
					}
					if err := a.printJSON(a.tick(cmd)); err != nil {
						return err
					}
				}
			}
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "How often to report changes")
	return cmd
}

func (a *app) tick(cmd *cobra.Command) watchTick {
	pending := a.pending.Drain()
	if !a.reloadAfter {
		return watchTick{Pending: pending}
	}
	report := a.reloadModules(cmd.Context(), pending)
	return watchTick{
		Pending:  pending,
		Reloaded: report.Reloaded,
		Failed:   report.FailureMessages(),
	}
}

// =============================================================================
// Tools
// =============================================================================

func newToolsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "Print the tool definitions exposed to agents",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return a.printJSON(a.executor.GetAvailableTools())
		},
	}
}
