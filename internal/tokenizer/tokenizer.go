package tokenizer

import (
	"fmt"
	"unicode/utf8"

	tiktoken "github.com/pkoukk/tiktoken-go"

	"titanflow/internal/domain"
)

// DefaultEncoding is used when the engine config names none.
const DefaultEncoding = "cl100k_base"

// TikToken wraps tiktoken-go to implement domain.Tokenizer.
type TikToken struct {
	encoding *tiktoken.Tiktoken
}

// getEncoding is tiktoken.GetEncoding. Package-level var for test injection.
var getEncoding = tiktoken.GetEncoding

// NewTikToken creates a tokenizer for encodingName ("cl100k_base",
// "o200k_base", ...). Empty means DefaultEncoding. The BPE ranks are fetched
// on first use and cached by tiktoken-go, so this fails when offline with a
// cold cache.
func NewTikToken(encodingName string) (*TikToken, error) {
	if encodingName == "" {
		encodingName = DefaultEncoding
	}
	enc, err := getEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: encoding %q unavailable: %w", encodingName, err)
	}
	return &TikToken{encoding: enc}, nil
}

// CountTokens returns the number of tokens in the given text.
func (t *TikToken) CountTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	return len(t.encoding.Encode(text, nil, nil)), nil
}

// Truncate returns the longest token-aligned prefix of text holding at most
// maxTokens tokens. maxTokens <= 0 disables truncation. A multi-byte rune
// split by the cut is dropped.
func (t *TikToken) Truncate(text string, maxTokens int) (string, error) {
	if maxTokens <= 0 || text == "" {
		return text, nil
	}
	tokens := t.encoding.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text, nil
	}
	prefix := t.encoding.Decode(tokens[:maxTokens])
	for len(prefix) > 0 {
		r, size := utf8.DecodeLastRuneInString(prefix)
		if r != utf8.RuneError || size > 1 {
			break
		}
		prefix = prefix[:len(prefix)-size]
	}
	return prefix, nil
}

var _ domain.Tokenizer = (*TikToken)(nil)
