// Package extract turns uploaded document bytes into the plain text handed to
// the reasoning loop.
package extract

import (
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/h2non/filetype"
	ftypes "github.com/h2non/filetype/types"

	"titanflow/internal/domain"
)

// Kind is the detected document format.
type Kind string

const (
	KindPDF     Kind = "pdf"
	KindHTML    Kind = "html"
	KindText    Kind = "text"
	KindUnknown Kind = "unknown"
)

// Document is the outcome of one extraction. An unreadable document yields
// empty Text and a Warning; it is never an error.
type Document struct {
	Name      string `json:"name"`
	Kind      Kind   `json:"kind"`
	Text      string `json:"-"`
	Pages     int    `json:"pages,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`
	Warning   string `json:"warning,omitempty"`
}

// Extractor detects the document type and extracts its text, optionally
// trimming it to a token budget.
type Extractor struct {
	logger    *slog.Logger
	tokenizer domain.Tokenizer
	maxTokens int
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLogger sets the logger for extraction warnings.
func WithLogger(l *slog.Logger) Option {
	return func(e *Extractor) { e.logger = l }
}

// WithTokenBudget truncates extracted text to maxTokens tokens of tok.
// A nil tokenizer or maxTokens <= 0 disables truncation.
func WithTokenBudget(tok domain.Tokenizer, maxTokens int) Option {
	return func(e *Extractor) {
		e.tokenizer = tok
		e.maxTokens = maxTokens
	}
}

// New returns an Extractor.
func New(opts ...Option) *Extractor {
	e := &Extractor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Extractor) log() *slog.Logger {
	if e.logger != nil {
		return e.logger
	}
	return slog.Default()
}

// filetypeMatchFunc is filetype.Match. Package-level var for test injection.
var filetypeMatchFunc func([]byte) (ftypes.Type, error) = filetype.Match

// Detect sniffs the format from content first and falls back to the file
// extension.
func Detect(name string, data []byte) Kind {
	if kind, err := filetypeMatchFunc(data); err == nil && kind != filetype.Unknown {
		if kind.MIME.Value == "application/pdf" {
			return KindPDF
		}
		return KindUnknown
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return KindPDF
	case ".html", ".htm", ".xhtml":
		return KindHTML
	}
	if strings.HasPrefix(http.DetectContentType(data), "text/html") {
		return KindHTML
	}
	if utf8.Valid(data) {
		return KindText
	}
	return KindUnknown
}

// Extract returns the text of data. name is only used for type detection
// and log attributes.
func (e *Extractor) Extract(name string, data []byte) Document {
	doc := Document{Name: name, Kind: Detect(name, data)}
	var (
		text string
		err  error
	)
	switch doc.Kind {
	case KindPDF:
		text, doc.Pages, err = pdfText(data)
	case KindHTML:
		text, err = htmlText(data, name)
	case KindText:
		text = string(data)
	default:
		err = fmt.Errorf("unsupported document type")
	}
	if err != nil {
		doc.Warning = err.Error()
		e.log().Warn("document extraction failed, continuing with empty text",
			"document", name, "kind", doc.Kind, "error", err)
		return doc
	}
	doc.Text, doc.Truncated = e.Fit(text)
	return doc
}

// Fit applies the token budget to text and reports whether it was cut.
// Tokenizer failures leave the text untouched.
func (e *Extractor) Fit(text string) (string, bool) {
	if e.tokenizer == nil || e.maxTokens <= 0 {
		return text, false
	}
	cut, err := e.tokenizer.Truncate(text, e.maxTokens)
	if err != nil {
		e.log().Warn("token truncation failed", "error", err)
		return text, false
	}
	if len(cut) < len(text) {
		e.log().Info("document truncated to token budget", "max_tokens", e.maxTokens,
			"bytes_before", len(text), "bytes_after", len(cut))
		return cut, true
	}
	return text, false
}
