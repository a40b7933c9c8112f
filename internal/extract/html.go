package extract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

// Injectable for tests.
var (
	goQueryParseFunc = goquery.NewDocumentFromReader
	readabilityFunc  = func(input io.Reader, pageURL *url.URL) (readability.Article, error) {
		return readability.FromReader(input, pageURL)
	}
)

// errNoText marks an HTML document with no visible text.
var errNoText = errors.New("html: no text content")

// htmlText strips script and style elements, then prefers the readability
// article body and falls back to all visible text.
func htmlText(raw []byte, name string) (string, error) {
	doc, err := goQueryParseFunc(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("html: parse: %w", err)
	}
	doc.Find("script, style, noscript, template").Remove()

	cleaned, err := doc.Html()
	if err != nil {
		return "", fmt.Errorf("html: render: %w", err)
	}
	if article, err := readabilityFunc(strings.NewReader(cleaned), documentURL(name)); err == nil {
		if text := strings.TrimSpace(article.TextContent); text != "" {
			return text, nil
		}
	}
	text := collapseBlankLines(doc.Text())
	if text == "" {
		return "", errNoText
	}
	return text, nil
}

// documentURL gives readability a base URL for resolving relative links.
func documentURL(name string) *url.URL {
	return &url.URL{Scheme: "file", Path: "/" + strings.TrimPrefix(name, "/")}
}

func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return strings.Join(out, "\n")
}
