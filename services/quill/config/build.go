// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/AleutianAI/quill/pkg/logging"
	"github.com/AleutianAI/quill/services/quill/audit"
	"github.com/AleutianAI/quill/services/quill/file"
	"github.com/AleutianAI/quill/services/quill/namespace"
	"github.com/AleutianAI/quill/services/quill/reload"
)

// EngineConfig converts p into a file.Config.
//
// Formatter templates become CommandFormatters run from the project root.
// The reload executor is built with ReloadExecutor.
func (p *Project) EngineConfig(logger *slog.Logger) (file.Config, error) {
	reloader, err := p.ReloadExecutor(logger)
	if err != nil {
		return file.Config{}, err
	}

	cfg := file.Config{
		ProjectRoot:    p.ProjectRoot,
		SourceRoots:    append([]string(nil), p.SourceRoots...),
		ReloadExecutor: reloader,
		Logger:         logger,
	}
	if p.DefaultThreshold != nil {
		v := *p.DefaultThreshold
		cfg.DefaultThreshold = &v
	}
	if len(p.Formatters) > 0 {
		cfg.Formatters = make(map[string]file.FormatFunc, len(p.Formatters))
		for ext, argv := range p.Formatters {
			cfg.Formatters[ext] = file.CommandFormatter(argv, p.ProjectRoot, p.FormatterTimeout)
		}
	}
	if p.Language != nil {
		cfg.Language = &namespace.Language{
			Kind:       p.Language.Kind,
			Extensions: append([]string(nil), p.Language.Extensions...),
			Separator:  p.Language.Separator,
		}
	}
	return cfg, nil
}

// ReloadExecutor returns an instrumented CommandExecutor, or reload.Noop
// when no command is configured.
func (p *Project) ReloadExecutor(logger *slog.Logger) (reload.Executor, error) {
	if len(p.Reload.Command) == 0 {
		return reload.Noop{}, nil
	}
	exec, err := reload.NewCommandExecutor(reload.CommandConfig{
		Command:     p.Reload.Command,
		Dir:         p.ProjectRoot,
		Concurrency: p.Reload.Concurrency,
		Timeout:     p.Reload.Timeout,
		Logger:      logger,
	})
	if err != nil {
		return nil, &file.ConfigError{Field: "reload.command", Reason: err.Error()}
	}
	return reload.Instrumented(exec), nil
}

// AuditConfig returns the badger configuration for the audit log.
func (p *Project) AuditConfig(logger *slog.Logger) audit.Config {
	path := p.Audit.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(p.ProjectRoot, path)
	}
	cfg := audit.DefaultConfig(path)
	cfg.Logger = logger
	return cfg
}

// LoggingConfig returns the logging configuration. An explicit level,
// such as one from a command-line flag, overrides the file.
func (p *Project) LoggingConfig(level string) (logging.Config, error) {
	if level == "" {
		level = p.Log.Level
	}
	parsed, err := logging.ParseLevel(level)
	if err != nil {
		return logging.Config{}, &file.ConfigError{Field: "log.level", Reason: fmt.Sprintf("unknown level %q", level)}
	}
	return logging.Config{
		Level:   parsed,
		LogDir:  p.Log.Dir,
		Service: "quill",
		JSON:    p.Log.JSON,
	}, nil
}
