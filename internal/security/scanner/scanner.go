// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Palais Contributors

// Package scanner finds credentials in free text so they can be masked
// before the text is stored, embedded or sent to a model.
package scanner

import (
	"regexp"
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"

	palaiserr "github.com/palais-dev/palais/pkg/errors"
)

// Placeholder replaces every redacted region.
const Placeholder = "[REDACTED]"

// Severity indicates how likely a match is to be a live credential.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
)

// Valid reports whether the severity is a known severity level.
func (s Severity) Valid() bool {
	switch s {
	case SeverityHigh, SeverityMedium:
		return true
	default:
		return false
	}
}

// Rule is a named credential pattern.
type Rule struct {
	Name     string
	Pattern  *regexp.Regexp
	Severity Severity
}

// Match describes a single pattern match. Location and Length are byte
// offsets into Result.Content.
type Match struct {
	Rule     string
	Location int
	Length   int
	Severity Severity
}

// Result holds the outcome of a scan.
type Result struct {
	Matches []Match
	// Content is the normalized text the match offsets refer to.
	Content string
}

// Found reports whether any rule matched.
func (r Result) Found() bool { return len(r.Matches) > 0 }

// Rules returns the names of the rules that matched, sorted and unique.
func (r Result) Rules() []string {
	names := make([]string, 0, len(r.Matches))
	for _, m := range r.Matches {
		names = append(names, m.Rule)
	}
	slices.Sort(names)
	return slices.Compact(names)
}

// Scanner matches text against a fixed rule set. It is safe for concurrent
// use.
type Scanner struct {
	rules []Rule
}

// New creates a scanner with the given rules, or DefaultRules when none are
// given.
func New(rules ...Rule) (*Scanner, error) {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	for i, r := range rules {
		if r.Name == "" {
			return nil, palaiserr.Errorf(palaiserr.CodeConfigValidateInvalidValue, "rule %d has empty name", i)
		}
		if r.Pattern == nil {
			return nil, palaiserr.Errorf(palaiserr.CodeConfigValidateInvalidValue, "rule %d (%s) has nil pattern", i, r.Name)
		}
		if !r.Severity.Valid() {
			return nil, palaiserr.Errorf(palaiserr.CodeConfigValidateInvalidValue, "rule %d (%s) has invalid severity %q", i, r.Name, r.Severity)
		}
	}
	return &Scanner{rules: rules}, nil
}

// invisibleCharReplacer strips zero-width and other invisible characters
// that could split a credential and hide it from the patterns.
var invisibleCharReplacer = strings.NewReplacer(
	"\u200b", "", // zero-width space
	"\u200c", "", // zero-width non-joiner
	"\u200d", "", // zero-width joiner
	"\ufeff", "", // zero-width no-break space / BOM
	"\u00ad", "", // soft hyphen
	"\u2060", "", // word joiner
	"\u2061", "", // invisible function application
	"\u2062", "", // invisible times
	"\u2063", "", // invisible separator
	"\u2064", "", // invisible plus
)

func normalize(s string) string {
	s = invisibleCharReplacer.Replace(s)
	return norm.NFKC.String(s)
}

// Scan normalizes text and reports every rule match in it.
func (s *Scanner) Scan(text string) Result {
	content := normalize(text)
	res := Result{Content: content}
	for _, rule := range s.rules {
		for _, loc := range rule.Pattern.FindAllStringIndex(content, -1) {
			res.Matches = append(res.Matches, Match{
				Rule:     rule.Name,
				Location: loc[0],
				Length:   loc[1] - loc[0],
				Severity: rule.Severity,
			})
		}
	}
	return res
}

// Redact masks every credential in text. Text without matches is returned
// unchanged, not normalized. The second result lists the rules that fired.
func (s *Scanner) Redact(text string) (string, []string) {
	res := s.Scan(text)
	if !res.Found() {
		return text, nil
	}
	return redact(res.Content, res.Matches), res.Rules()
}

// redact replaces matched regions in content with the placeholder,
// merging overlapping matches first.
func redact(content string, matches []Match) string {
	sorted := slices.Clone(matches)
	slices.SortFunc(sorted, func(a, b Match) int { return a.Location - b.Location })

	type span struct{ start, end int }
	spans := []span{{sorted[0].Location, sorted[0].Location + sorted[0].Length}}
	for _, m := range sorted[1:] {
		last := &spans[len(spans)-1]
		end := m.Location + m.Length
		if m.Location <= last.end {
			last.end = max(last.end, end)
		} else {
			spans = append(spans, span{m.Location, end})
		}
	}

	var b strings.Builder
	b.Grow(len(content))
	pos := 0
	for _, sp := range spans {
		b.WriteString(content[pos:sp.start])
		b.WriteString(Placeholder)
		pos = min(sp.end, len(content))
	}
	b.WriteString(content[pos:])
	return b.String()
}
