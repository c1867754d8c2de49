// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package namespace maps source file paths to logical module identifiers.
//
// A module identifier is derived from a file's path relative to the first
// configured source root that contains it:
//
//	{project}/src/my_app/some_ns.clj  →  my-app.some-ns
//
// Paths outside every source root, or with an unrecognized extension, have
// no identifier. That is a normal outcome, not an error.
//
// Thread Safety: Inferrer is immutable after construction and safe for
// concurrent use.
package namespace

import (
	"path/filepath"
	"strings"
)

// DefaultSourceRoot is used when no source roots are configured.
const DefaultSourceRoot = "src"

// Language describes a family of source files whose paths map to modules.
type Language struct {
	// Kind is reported alongside identifiers (e.g. "namespace").
	Kind string

	// Extensions are the recognized suffixes, including the leading dot.
	Extensions []string

	// Separator joins path segments in an identifier.
	Separator string
}

// Clojure recognizes .clj, .cljs and .cljc files. Underscores in file names
// become hyphens in the namespace, mirroring how the compiler munges names.
var Clojure = Language{
	Kind:       "namespace",
	Extensions: []string{".clj", ".cljs", ".cljc"},
	Separator:  ".",
}

// Recognizes returns the matched extension if path belongs to the language.
func (l Language) Recognizes(path string) (string, bool) {
	ext := filepath.Ext(path)
	if ext == "" {
		return "", false
	}
	for _, candidate := range l.Extensions {
		if ext == candidate {
			return ext, true
		}
	}
	return "", false
}

// Inferrer derives module identifiers from file paths.
type Inferrer struct {
	lang  Language
	roots []string
}

// NewInferrer creates an Inferrer for the given project layout.
//
// Inputs:
//
//	projectRoot - Absolute project directory.
//	sourceRoots - Roots relative to projectRoot, in priority order.
//	              Defaults to ["src"] when empty.
//	lang - The language family to recognize.
//
// Outputs:
//
//	*Inferrer - Ready for use. Roots are canonicalized lazily on each call,
//	            so roots that do not exist yet are handled once they do.
func NewInferrer(projectRoot string, sourceRoots []string, lang Language) *Inferrer {
	if len(sourceRoots) == 0 {
		sourceRoots = []string{DefaultSourceRoot}
	}
	roots := make([]string, 0, len(sourceRoots))
	for _, r := range sourceRoots {
		if filepath.IsAbs(r) {
			roots = append(roots, filepath.Clean(r))
			continue
		}
		roots = append(roots, filepath.Join(projectRoot, r))
	}
	if lang.Separator == "" {
		lang.Separator = "."
	}
	return &Inferrer{lang: lang, roots: roots}
}

// Kind returns the module kind reported for inferred identifiers.
func (i *Inferrer) Kind() string {
	return i.lang.Kind
}

// Language returns the language family this Inferrer recognizes.
func (i *Inferrer) Language() Language {
	return i.lang
}

// Roots returns the absolute source roots in priority order.
func (i *Inferrer) Roots() []string {
	out := make([]string, len(i.roots))
	copy(out, i.roots)
	return out
}

// Infer returns the module identifier for path.
//
// Description:
//
//	Both path and every root are canonicalized (symlinks and relative
//	segments resolved) before comparison. The first root in configured
//	order that is a proper ancestor of the path wins; longer or shorter
//	matches later in the list are not considered.
//
// Outputs:
//
//	string - The identifier, e.g. "app.core".
//	bool - False when the path has no identifier.
func (i *Inferrer) Infer(path string) (string, bool) {
	ext, ok := i.lang.Recognizes(path)
	if !ok {
		return "", false
	}

	canonical := Canonical(path)
	for _, root := range i.roots {
		prefix := Canonical(root) + string(filepath.Separator)
		if !strings.HasPrefix(canonical, prefix) {
			continue
		}
		rel := strings.TrimSuffix(canonical[len(prefix):], ext)
		if rel == "" {
			return "", false
		}
		return i.toIdentifier(rel), true
	}
	return "", false
}

func (i *Inferrer) toIdentifier(rel string) string {
	parts := strings.Split(filepath.ToSlash(rel), "/")
	id := strings.Join(parts, i.lang.Separator)
	return strings.ReplaceAll(id, "_", "-")
}

// Canonical returns the absolute, symlink-resolved form of path.
//
// Paths that do not exist yet are resolved through their nearest existing
// ancestor, so a file about to be created compares equal to the same file
// once it exists. If nothing can be resolved the cleaned absolute path is
// returned.
func Canonical(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		return real
	}

	current := abs
	var missing []string
	for {
		parent := filepath.Dir(current)
		missing = append(missing, filepath.Base(current))
		if parent == current {
			return abs
		}
		if real, err := filepath.EvalSymlinks(parent); err == nil {
			for j := len(missing) - 1; j >= 0; j-- {
				real = filepath.Join(real, missing[j])
			}
			return real
		}
		current = parent
	}
}
