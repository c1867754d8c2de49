// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the project file (quill.yaml) and turns it into the
// configuration structs of the file, reload, audit and logging packages.
//
// Example quill.yaml:
//
//	project_root: .
//	source_roots: [src, test]
//	default_threshold: 400
//	formatters:
//	  .clj: [cljfmt, fix, "{path}"]
//	reload:
//	  command: [clj-reload, "{module}"]
//	  concurrency: 4
//	audit:
//	  enabled: true
//	log:
//	  level: debug
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/quill/services/quill/file"
)

// DefaultFileName is the project file looked up when no path is given.
const DefaultFileName = "quill.yaml"

// Project is the parsed project file.
type Project struct {
	// ProjectRoot is resolved against the directory holding the file.
	ProjectRoot string `yaml:"project_root"`

	SourceRoots      []string `yaml:"source_roots" validate:"dive,required"`
	DefaultThreshold *int     `yaml:"default_threshold" validate:"omitempty,min=0"`

	Language *Language `yaml:"language"`

	// Formatters maps an extension to an argv template; "{path}" is
	// replaced by the file path, or the path is appended.
	Formatters       map[string][]string `yaml:"formatters" validate:"dive,keys,startswith=.,min=2,endkeys,min=1,dive,required"`
	FormatterTimeout time.Duration       `yaml:"formatter_timeout" validate:"min=0"`

	Reload Reload `yaml:"reload"`
	Audit  Audit  `yaml:"audit"`
	Log    Log    `yaml:"log"`
}

// Language overrides the recognized source family.
type Language struct {
	Kind       string   `yaml:"kind" validate:"required"`
	Extensions []string `yaml:"extensions" validate:"required,min=1,dive,startswith=.,min=2"`
	Separator  string   `yaml:"separator"`
}

// Reload configures the reload command.
type Reload struct {
	// Command is the argv template; "{module}" is replaced per module.
	// Empty disables reloading.
	Command     []string      `yaml:"command" validate:"omitempty,dive,required"`
	Concurrency int           `yaml:"concurrency" validate:"min=0,max=64"`
	Timeout     time.Duration `yaml:"timeout" validate:"min=0"`
}

// Audit configures the persistent audit log.
type Audit struct {
	Enabled bool `yaml:"enabled"`

	// Path is relative to the project root.
	Path string `yaml:"path" validate:"required_if=Enabled true"`
}

// Log configures logging.
type Log struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Dir   string `yaml:"dir"`
	JSON  bool   `yaml:"json"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report yaml names in errors.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Defaults returns the configuration used when no project file exists.
func Defaults(root string) *Project {
	return &Project{
		ProjectRoot:      root,
		SourceRoots:      []string{"src"},
		FormatterTimeout: 30 * time.Second,
		Reload: Reload{
			Concurrency: 4,
			Timeout:     30 * time.Second,
		},
		Audit: Audit{Path: filepath.Join(".quill", "audit")},
		Log:   Log{Level: "info"},
	}
}

// Load reads and validates a project file.
//
// Description:
//
//	A missing file yields Defaults rooted at the working directory. A
//	relative project_root is resolved against the file's directory.
//	Unknown keys are rejected.
//
// Errors:
//
//	*file.ConfigError - Malformed YAML or a failed validation rule.
//	Other errors - The file exists but cannot be read.
func Load(path string) (*Project, error) {
	if path == "" {
		path = DefaultFileName
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		wd, werr := os.Getwd()
		if werr != nil {
			return nil, fmt.Errorf("resolve working directory: %w", werr)
		}
		return Defaults(wd), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	return Parse(data, filepath.Dir(abs))
}

// Parse decodes YAML relative to baseDir and validates the result.
func Parse(data []byte, baseDir string) (*Project, error) {
	p := Defaults(baseDir)
	p.ProjectRoot = ""

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(p); err != nil && !errors.Is(err, io.EOF) {
		return nil, &file.ConfigError{Field: DefaultFileName, Reason: err.Error()}
	}

	switch {
	case p.ProjectRoot == "":
		p.ProjectRoot = baseDir
	case !filepath.IsAbs(p.ProjectRoot):
		p.ProjectRoot = filepath.Join(baseDir, p.ProjectRoot)
	}
	if len(p.SourceRoots) == 0 {
		p.SourceRoots = []string{"src"}
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks p against its validation rules and reports the first
// failure as a *file.ConfigError.
func (p *Project) Validate() error {
	err := validate.Struct(p)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &file.ConfigError{Field: "config", Reason: err.Error()}
	}
	fe := verrs[0]
	return &file.ConfigError{Field: fieldPath(fe), Reason: reason(fe)}
}

// fieldPath strips the root struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "required"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "startswith":
		return fmt.Sprintf("must start with %q", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
