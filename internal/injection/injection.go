// Package injection flags document text that reads like instructions to the
// agent rather than content of an RFP.
package injection

import (
	"regexp"
	"strings"
)

// defaultPatterns are matched case-insensitively with runs of whitespace
// collapsed, so line-wrapped phrases still match.
var defaultPatterns = []string{
	"ignore previous",
	"ignore all previous",
	"disregard the above",
	"system prompt",
	"you are now",
	"developer mode",
	"approve this lead",
	"set lead_score",
	"call save_qualified_lead",
}

var spaceRun = regexp.MustCompile(`\s+`)

// Result holds the outcome of a scan.
type Result struct {
	Detected bool     `json:"detected"`
	Patterns []string `json:"patterns,omitempty"` // matched phrases, in pattern order
}

// Scanner matches a fixed phrase list.
type Scanner struct {
	patterns []string
}

// NewScanner returns a Scanner for patterns, or the default list when none
// are given.
func NewScanner(patterns ...string) *Scanner {
	if len(patterns) == 0 {
		patterns = defaultPatterns
	}
	norm := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p = normalize(p); p != "" {
			norm = append(norm, p)
		}
	}
	return &Scanner{patterns: norm}
}

// Scan checks text against the default phrase list.
func Scan(text string) Result {
	return NewScanner().Scan(text)
}

// Scan reports every pattern contained in text.
func (s *Scanner) Scan(text string) Result {
	text = normalize(text)
	if text == "" {
		return Result{}
	}
	var matched []string
	for _, p := range s.patterns {
		if strings.Contains(text, p) {
			matched = append(matched, p)
		}
	}
	if len(matched) == 0 {
		return Result{}
	}
	return Result{Detected: true, Patterns: matched}
}

func normalize(s string) string {
	return strings.TrimSpace(spaceRun.ReplaceAllString(strings.ToLower(s), " "))
}
