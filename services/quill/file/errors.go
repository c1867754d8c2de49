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
	"errors"
	"fmt"
)

// Sentinel errors. Every operation failure is an *OpError wrapping one of
// these, so callers branch with errors.Is.
var (
	// ErrIO indicates the underlying file system operation failed.
	ErrIO = errors.New("io failure")

	// ErrFileNotFound indicates insert or replace targeted a missing file.
	ErrFileNotFound = errors.New("file not found")

	// ErrPatternNotFound indicates an insert anchor matched no line.
	ErrPatternNotFound = errors.New("pattern not found")

	// ErrInvalidArgument indicates malformed operation arguments.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrPathDenied indicates a path outside the project root. It is always
	// reported together with ErrIO.
	ErrPathDenied = errors.New("path outside project root")

	// ErrConfiguration indicates an invalid engine configuration.
	ErrConfiguration = errors.New("configuration error")
)

// OpError describes a failed operation.
type OpError struct {
	// Op is the operation name: write, append, insert, replace or stat.
	Op string

	// Path is the target path as resolved by the engine.
	Path string

	// Pattern is set for pattern failures.
	Pattern string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *OpError) Error() string {
	if e.Pattern != "" {
		return fmt.Sprintf("%s %s: %v: %q", e.Op, e.Path, e.Err, e.Pattern)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *OpError) Unwrap() error {
	return e.Err
}

func ioError(op, path string, cause error) error {
	return &OpError{Op: op, Path: path, Err: fmt.Errorf("%w: %w", ErrIO, cause)}
}

func invalidArg(op, path, reason string) error {
	return &OpError{Op: op, Path: path, Err: fmt.Errorf("%w: %s", ErrInvalidArgument, reason)}
}

// ConfigError reports an invalid configuration field at construction time.
type ConfigError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("%v: %s: %s", ErrConfiguration, e.Field, e.Reason)
}

// Unwrap returns ErrConfiguration.
func (e *ConfigError) Unwrap() error {
	return ErrConfiguration
}

// ErrorKind classifies an error for callers that cannot use errors.Is,
// such as an agent reading tool metadata.
type ErrorKind string

const (
	KindNone            ErrorKind = ""
	KindIO              ErrorKind = "io"
	KindFileNotFound    ErrorKind = "file_not_found"
	KindPatternNotFound ErrorKind = "pattern_not_found"
	KindInvalidArgument ErrorKind = "invalid_argument"
	KindPathDenied      ErrorKind = "path_denied"
	KindConfiguration   ErrorKind = "configuration"
)

// KindOf returns the most specific kind matching err.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrPathDenied):
		return KindPathDenied
	case errors.Is(err, ErrPatternNotFound):
		return KindPatternNotFound
	case errors.Is(err, ErrFileNotFound):
		return KindFileNotFound
	case errors.Is(err, ErrInvalidArgument):
		return KindInvalidArgument
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	default:
		return KindIO
	}
}
