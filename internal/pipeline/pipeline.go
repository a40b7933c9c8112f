// Package pipeline joins document extraction, the reasoning loop and metrics
// into the single "analyze document" operation every front end calls.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"titanflow/internal/agent"
	"titanflow/internal/domain"
	"titanflow/internal/extract"
	"titanflow/internal/injection"
	"titanflow/internal/metrics"
)

// Analyzer is safe for concurrent use; each call is an independent run.
type Analyzer struct {
	extractor    *extract.Extractor
	orchestrator *agent.Orchestrator
	scanner      *injection.Scanner
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) { a.logger = l }
}

// WithMetrics records run outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Analyzer) { a.metrics = m }
}

// WithScanner replaces the default injection phrase list.
func WithScanner(s *injection.Scanner) Option {
	return func(a *Analyzer) { a.scanner = s }
}

// New panics if orch is nil. A nil extractor means extract.New().
func New(ex *extract.Extractor, orch *agent.Orchestrator, opts ...Option) *Analyzer {
	if orch == nil {
		panic("pipeline: orchestrator must not be nil")
	}
	if ex == nil {
		ex = extract.New()
	}
	a := &Analyzer{extractor: ex, orchestrator: orch, scanner: injection.NewScanner()}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *Analyzer) log() *slog.Logger {
	if a.logger != nil {
		return a.logger
	}
	return slog.Default()
}

// Report is the outcome of analyzing one document.
type Report struct {
	Document extract.Document
	// Flagged lists instruction-like phrases found in the document text.
	Flagged []string
	*agent.Result
}

// AnalyzeDocument extracts the text of data and runs the reasoning loop on
// it. Extraction problems never fail the call: the run proceeds on empty
// text and Report.Document carries the warning. obs may be nil.
func (a *Analyzer) AnalyzeDocument(ctx context.Context, name string, data []byte, obs agent.Observer) (*Report, error) {
	doc := a.extractor.Extract(name, data)
	a.log().Info("document received", "document", name, "kind", doc.Kind, "bytes", len(data),
		"pages", doc.Pages, "truncated", doc.Truncated)

	flagged := a.screen(name, doc.Text)
	res, err := a.run(ctx, doc.Text, obs)
	if err != nil {
		return nil, err
	}
	return &Report{Document: doc, Flagged: flagged, Result: res}, nil
}

// AnalyzeText runs the reasoning loop on already extracted text, applying
// the token budget first.
func (a *Analyzer) AnalyzeText(ctx context.Context, text string, obs agent.Observer) (*agent.Result, error) {
	text, _ = a.extractor.Fit(text)
	a.screen("", text)
	return a.run(ctx, text, obs)
}

// screen logs and counts instruction-like phrases. The run proceeds either way.
func (a *Analyzer) screen(name, text string) []string {
	r := a.scanner.Scan(text)
	if !r.Detected {
		return nil
	}
	a.log().Warn("document may contain prompt injection", "document", name, "patterns", r.Patterns)
	a.metrics.DocumentFlagged(r.Patterns)
	return r.Patterns
}

func (a *Analyzer) run(ctx context.Context, text string, obs agent.Observer) (*agent.Result, error) {
	orch := a.orchestrator
	if obs != nil {
		orch = orch.Observe(obs)
	}
	start := time.Now()
	res, err := orch.Run(ctx, domain.Task{Text: text})
	if err != nil {
		// A malformed-output failure always follows a correction attempt.
		a.metrics.RunFinished(agent.Outcome(err), errors.Is(err, agent.ErrMalformedOutput), time.Since(start))
		return nil, err
	}
	a.metrics.RunFinished(agent.Outcome(nil), res.Corrected, res.Duration)
	return res, nil
}
