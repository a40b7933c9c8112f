// Package sanitize pulls a JSON object out of free-form engine text that may
// carry commentary or markdown fences around it.
package sanitize

import (
	"fmt"
	"strings"
)

// Mode selects the brace-span strategy.
type Mode string

const (
	// Greedy takes everything from the first '{' to the last '}'.
	Greedy Mode = "greedy"
	// Balanced takes the first complete, string-aware balanced object.
	Balanced Mode = "balanced"
)

// Func is the signature shared by every extraction strategy.
type Func func(text string) string

// ForMode returns the extraction function for m. An empty mode means Greedy.
func ForMode(m Mode) (Func, error) {
	switch m {
	case "", Greedy:
		return Extract, nil
	case Balanced:
		return ExtractBalanced, nil
	default:
		return nil, fmt.Errorf("sanitize: unknown mode %q", m)
	}
}

func stripFences(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	return strings.TrimSpace(text)
}

// Extract strips fences, trims, and returns the span from the first '{' to
// the last '}'. Without such a span the stripped text is returned.
func Extract(text string) string {
	if text == "" {
		return ""
	}
	text = stripFences(text)
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return text
	}
	return text[start : end+1]
}

// ExtractBalanced strips fences and returns the first brace-balanced object,
// ignoring braces inside JSON strings. Falls back to the stripped text.
func ExtractBalanced(text string) string {
	if text == "" {
		return ""
	}
	text = stripFences(text)

	for start := strings.IndexByte(text, '{'); start >= 0; {
		if end := balancedEnd(text, start); end > 0 {
			return text[start:end]
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return text
}

// balancedEnd returns the index just past the object opening at start, or -1.
func balancedEnd(text string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}
