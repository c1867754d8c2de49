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
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// project creates a temp project with a quill.yaml and returns the root
// and the config path.
func project(t *testing.T, extra string) (string, string) {
	t.Helper()
	root := t.TempDir()
	cfg := filepath.Join(root, "quill.yaml")
	content := "project_root: " + root + "\nsource_roots: [src]\nlog:\n  level: error\n" + extra
	require.NoError(t, os.WriteFile(cfg, []byte(content), 0644))
	return root, cfg
}

type runOutput struct {
	code   int
	stdout string
	stderr string
}

func runCLI(t *testing.T, stdin string, args ...string) runOutput {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, strings.NewReader(stdin), &stdout, &stderr)
	return runOutput{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func decode(t *testing.T, out string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &m), out)
	return m
}

func TestRun_WriteCreates(t *testing.T) {
	root, cfg := project(t, "")

	out := runCLI(t, "", "--config", cfg, "write", "src/app/core.clj", "-p", "-c", "(ns app.core)\n")
	require.Equal(t, exitSuccess, out.code, out.stderr)

	res := decode(t, out.stdout)
	assert.Equal(t, "created", res["status"])
	module := res["module"].(map[string]any)
	assert.Equal(t, []any{"app.core"}, module["identifiers"])

	data, err := os.ReadFile(filepath.Join(root, "src", "app", "core.clj"))
	require.NoError(t, err)
	assert.Equal(t, "(ns app.core)\n", string(data))
}

func TestRun_WriteFromStdin(t *testing.T) {
	root, cfg := project(t, "")

	out := runCLI(t, "line one\nline two\n", "--config", cfg, "write", "notes.txt")
	require.Equal(t, exitSuccess, out.code, out.stderr)

	res := decode(t, out.stdout)
	loc := res["loc"].(map[string]any)
	assert.Equal(t, float64(2), loc["after"])

	data, err := os.ReadFile(filepath.Join(root, "notes.txt"))
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two\n", string(data))
}

func TestRun_DiffOnStderr(t *testing.T) {
	_, cfg := project(t, "")

	out := runCLI(t, "", "--config", cfg, "--diff", "write", "a.txt", "-c", "x\n")
	require.Equal(t, exitSuccess, out.code, out.stderr)
	assert.Contains(t, out.stderr, "created a.txt: 1 lines")
	assert.Contains(t, out.stderr, "+1 -0")
}

func TestRun_OperationFailure(t *testing.T) {
	_, cfg := project(t, "")

	out := runCLI(t, "", "--config", cfg, "insert", "missing.clj", "--line", "1", "-c", "x")
	assert.Equal(t, exitFailure, out.code)
	assert.Contains(t, out.stderr, "file_insert failed (file_not_found)")
	assert.Equal(t, "error", decode(t, out.stdout)["status"])
}

func TestRun_UsageErrors(t *testing.T) {
	_, cfg := project(t, "")

	tests := []struct {
		name string
		args []string
	}{
		{"missing path", []string{"write", "-c", "x"}},
		{"no location", []string{"insert", "a.txt", "-c", "x"}},
		{"two locations", []string{"insert", "a.txt", "--line", "1", "--after", "x", "-c", "x"}},
		{"replace without find", []string{"replace", "a.txt", "--replacement", "y"}},
		{"unknown command", []string{"delete", "a.txt"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := runCLI(t, "", append([]string{"--config", cfg}, tt.args...)...)
			assert.Equal(t, exitError, out.code)
			assert.Contains(t, out.stderr, "Error:")
		})
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	_, cfg := project(t, "default_threshold: -3\n")

	out := runCLI(t, "", "--config", cfg, "stat", "a.txt")
	assert.Equal(t, exitError, out.code)
	assert.Contains(t, out.stderr, "default_threshold")
}

func TestRun_Stat(t *testing.T) {
	_, cfg := project(t, "")

	out := runCLI(t, "", "--config", cfg, "stat", "nothing.txt")
	require.Equal(t, exitSuccess, out.code, out.stderr)
	res := decode(t, out.stdout)
	assert.Equal(t, false, res["exists"])
}

func TestRun_Tools(t *testing.T) {
	_, cfg := project(t, "")

	out := runCLI(t, "", "--config", cfg, "tools")
	require.Equal(t, exitSuccess, out.code, out.stderr)

	var defs []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out.stdout), &defs))
	assert.Len(t, defs, 5)
}

func TestRun_AuditRoundTrip(t *testing.T) {
	_, cfg := project(t, "")

	out := runCLI(t, "", "--config", cfg, "--audit", "write", "a.txt", "-c", "x\n")
	require.Equal(t, exitSuccess, out.code, out.stderr)
	out = runCLI(t, "", "--config", cfg, "--audit", "append", "a.txt", "-c", "y\n")
	require.Equal(t, exitSuccess, out.code, out.stderr)

	out = runCLI(t, "", "--config", cfg, "audit", "list")
	require.Equal(t, exitSuccess, out.code, out.stderr)

	var records []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out.stdout), &records))
	require.Len(t, records, 2)
	assert.Equal(t, "file_append", records[0]["tool"])
	assert.Equal(t, "file_write", records[1]["tool"])

	id := records[1]["id"].(string)
	out = runCLI(t, "", "--config", cfg, "audit", "show", id)
	require.Equal(t, exitSuccess, out.code, out.stderr)
	assert.Equal(t, id, decode(t, out.stdout)["id"])

	out = runCLI(t, "", "--config", cfg, "audit", "show", "no-such-id")
	assert.Equal(t, exitFailure, out.code)
	assert.Contains(t, out.stderr, "no audit record")
}

func TestRun_AuditListEmpty(t *testing.T) {
	_, cfg := project(t, "")

	out := runCLI(t, "", "--config", cfg, "audit", "list", "--tool", "file_write")
	require.Equal(t, exitSuccess, out.code, out.stderr)
	assert.Equal(t, "[]\n", out.stdout)
}

func TestRun_Reload(t *testing.T) {
	root, cfg := project(t, "reload:\n  command: [sh, -c, 'echo $0 >> reloaded.txt', '{module}']\n")

	out := runCLI(t, "", "--config", cfg, "--reload", "write", "src/app/core.clj", "-p", "-c", "(ns app.core)\n")
	require.Equal(t, exitSuccess, out.code, out.stderr)

	data, err := os.ReadFile(filepath.Join(root, "reloaded.txt"))
	require.NoError(t, err)
	assert.Equal(t, "app.core\n", string(data))
}

func TestRun_ReloadFailureExitsNonZero(t *testing.T) {
	_, cfg := project(t, "reload:\n  command: [sh, -c, 'exit 3', '{module}']\n")

	out := runCLI(t, "", "--config", cfg, "--reload", "write", "src/app.clj", "-p", "-c", "(ns app)\n")
	assert.Equal(t, exitFailure, out.code)
	assert.Equal(t, "created", decode(t, out.stdout)["status"])
}

func TestRun_ReloadSkippedWithoutFlag(t *testing.T) {
	root, cfg := project(t, "reload:\n  command: [sh, -c, 'echo $0 >> reloaded.txt', '{module}']\n")

	out := runCLI(t, "", "--config", cfg, "write", "src/app.clj", "-p", "-c", "(ns app)\n")
	require.Equal(t, exitSuccess, out.code, out.stderr)

	_, err := os.Stat(filepath.Join(root, "reloaded.txt"))
	assert.True(t, os.IsNotExist(err))
}
