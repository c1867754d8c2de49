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
	"regexp"
	"strings"
)

// Pattern is a literal substring or a regular expression.
type Pattern struct {
	Text  string
	Regex bool
}

// Literal matches text as a plain substring; regex metacharacters have no
// special meaning.
func Literal(text string) Pattern {
	return Pattern{Text: text}
}

// Regex matches text as an RE2 regular expression.
func Regex(expr string) Pattern {
	return Pattern{Text: expr, Regex: true}
}

// String returns the pattern text, with slashes around regexes.
func (p Pattern) String() string {
	if p.Regex {
		return "/" + p.Text + "/"
	}
	return p.Text
}

// matcher is a compiled Pattern.
type matcher struct {
	literal string
	re      *regexp.Regexp
}

func (p Pattern) compile() (*matcher, error) {
	if p.Text == "" {
		return nil, fmt.Errorf("pattern must not be empty")
	}
	if !p.Regex {
		return &matcher{literal: p.Text}, nil
	}
	re, err := regexp.Compile(p.Text)
	if err != nil {
		return nil, fmt.Errorf("invalid regular expression: %w", err)
	}
	return &matcher{re: re}, nil
}

func (m *matcher) matchString(s string) bool {
	if m.re != nil {
		return m.re.MatchString(s)
	}
	return strings.Contains(s, m.literal)
}

// replace substitutes the first match, or every non-overlapping match when
// all is set, and reports how many were replaced. Regex replacements
// expand $1 and ${name}; literal replacements are used verbatim.
func (m *matcher) replace(s, replacement string, all bool) (string, int) {
	if m.re == nil {
		n := strings.Count(s, m.literal)
		if n == 0 {
			return s, 0
		}
		if all {
			return strings.ReplaceAll(s, m.literal, replacement), n
		}
		return strings.Replace(s, m.literal, replacement, 1), 1
	}

	if all {
		n := len(m.re.FindAllStringIndex(s, -1))
		if n == 0 {
			return s, 0
		}
		return m.re.ReplaceAllString(s, replacement), n
	}

	loc := m.re.FindStringSubmatchIndex(s)
	if loc == nil {
		return s, 0
	}
	var b strings.Builder
	b.WriteString(s[:loc[0]])
	b.Write(m.re.ExpandString(nil, replacement, s, loc))
	b.WriteString(s[loc[1]:])
	return b.String(), 1
}
