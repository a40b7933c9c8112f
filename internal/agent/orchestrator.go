// Package agent runs the bounded tool-augmented reasoning loop that turns a
// document into a lead decision.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"titanflow/internal/domain"
	"titanflow/internal/sanitize"
	"titanflow/internal/tooling"
)

// DefaultMaxIterations caps tool dispatches per run.
const DefaultMaxIterations = 5

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets a structured logger. Nil is ignored.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMaxIterations sets the tool dispatch budget. Non-positive values are ignored.
func WithMaxIterations(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxIterations = n
		}
	}
}

// WithSanitizer replaces the default greedy sanitizer.
func WithSanitizer(f sanitize.Func) Option {
	return func(o *Orchestrator) {
		if f != nil {
			o.sanitize = f
		}
	}
}

// WithLeadInvariant makes persist-iff-approved violations fail the run
// instead of only being logged.
func WithLeadInvariant(enforce bool) Option {
	return func(o *Orchestrator) { o.enforce = enforce }
}

// WithCorrectionPrompt overrides DefaultCorrectionPrompt.
func WithCorrectionPrompt(p string) Option {
	return func(o *Orchestrator) {
		if p != "" {
			o.correction = p
		}
	}
}

// WithToolDefinitions overrides the advertised tool contract.
func WithToolDefinitions(defs []domain.ToolDefinition) Option {
	return func(o *Orchestrator) {
		if len(defs) > 0 {
			o.definitions = defs
		}
	}
}

// WithObserver adds a transition observer.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) {
		if obs != nil {
			o.observers = append(o.observers, obs)
		}
	}
}

// Orchestrator drives one engine and one tool channel. It holds no per-run
// state, so a single instance serves concurrent runs.
type Orchestrator struct {
	engine        domain.ReasoningEngine
	tools         domain.ToolInvoker
	definitions   []domain.ToolDefinition
	maxIterations int
	sanitize      sanitize.Func
	enforce       bool
	correction    string
	observers     []Observer
	logger        *slog.Logger
	newRunID      func() string
}

// New panics if engine or tools is nil.
func New(engine domain.ReasoningEngine, tools domain.ToolInvoker, opts ...Option) *Orchestrator {
	if engine == nil {
		panic("agent: engine must not be nil")
	}
	if tools == nil {
		panic("agent: tool invoker must not be nil")
	}
	o := &Orchestrator{
		engine:        engine,
		tools:         tools,
		definitions:   tooling.Contract(),
		maxIterations: DefaultMaxIterations,
		sanitize:      sanitize.Extract,
		correction:    DefaultCorrectionPrompt,
		newRunID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) log() *slog.Logger {
	if o.logger != nil {
		return o.logger
	}
	return slog.Default()
}

// Observe returns a copy of o that also reports transitions to obs.
func (o *Orchestrator) Observe(obs Observer) *Orchestrator {
	cp := *o
	cp.observers = append(append([]Observer(nil), o.observers...), obs)
	return &cp
}

// Result is the outcome of a successful run.
type Result struct {
	RunID      string
	Decision   *domain.Decision
	Transcript []domain.Turn
	Iterations int
	Corrected  bool
	Duration   time.Duration
}

// run is the mutable state of one Run call.
type run struct {
	o          *Orchestrator
	id         string
	turns      []domain.Turn
	dispatches int
	state      State
	log        *slog.Logger
}

func (r *run) enter(s State, ev Event) {
	r.state = s
	ev.RunID = r.id
	ev.State = s
	ev.Iteration = r.dispatches
	ev.At = time.Now()
	r.log.Debug("state", "state", s, "iteration", r.dispatches, "tool", ev.Tool)
	for _, obs := range r.o.observers {
		obs(ev)
	}
}

func (r *run) fail(err error) error {
	r.enter(StateFailed, Event{Err: err.Error()})
	r.log.Error("run failed", "error", err, "iterations", r.dispatches)
	return fmt.Errorf("run %s: %w", r.id, err)
}

func (r *run) ask(ctx context.Context) (*domain.EngineReply, error) {
	r.enter(StateAwaitingEngine, Event{})
	reply, err := r.o.engine.Reply(ctx, r.turns, r.o.definitions)
	if err != nil {
		return nil, fmt.Errorf("agent: engine: %w", err)
	}
	if reply == nil {
		reply = &domain.EngineReply{}
	}
	return reply, nil
}

// Run drives the loop for one task. On failure the returned error wraps one
// of the package sentinels or the engine error, and no decision is produced.
func (o *Orchestrator) Run(ctx context.Context, task domain.Task) (*Result, error) {
	start := time.Now()
	r := &run{o: o, id: o.newRunID()}
	r.log = o.log().With("run_id", r.id)
	r.turns = []domain.Turn{{Role: domain.RoleUser, Text: BuildPrompt(task.Text)}}
	r.log.Info("run started", "document_chars", len(task.Text))

	reply, err := r.ask(ctx)
	if err != nil {
		return nil, r.fail(err)
	}

	for reply.WantsTools() {
		r.turns = append(r.turns, domain.Turn{Role: domain.RoleAssistant, Text: reply.Text, ToolCalls: reply.ToolCalls})
		for _, call := range reply.ToolCalls {
			if err := ctx.Err(); err != nil {
				return nil, r.fail(err)
			}
			if r.dispatches >= o.maxIterations {
				return nil, r.fail(fmt.Errorf("%w: limit %d reached, engine requested %s", ErrIterationBudget, o.maxIterations, call.Name))
			}
			r.dispatch(ctx, call)
		}
		if reply, err = r.ask(ctx); err != nil {
			return nil, r.fail(err)
		}
	}

	r.enter(StateFinalized, Event{})
	if reply.Text == "" {
		return nil, r.fail(ErrEmptyReply)
	}
	r.turns = append(r.turns, domain.Turn{Role: domain.RoleAssistant, Text: reply.Text})

	decision, perr := ParseDecision(o.sanitize(reply.Text))
	corrected := false
	if perr != nil {
		r.log.Warn("final output did not parse, requesting correction", "error", perr)
		decision, err = r.correct(ctx)
		if err != nil {
			return nil, r.fail(err)
		}
		corrected = true
	}

	if err := checkLeadInvariant(decision, r.turns, o.enforce); err != nil {
		if o.enforce {
			return nil, r.fail(err)
		}
		r.log.Warn("decision inconsistent with persistence calls", "error", err)
	}

	r.enter(StateSucceeded, Event{})
	res := &Result{
		RunID:      r.id,
		Decision:   decision,
		Transcript: r.turns,
		Iterations: r.dispatches,
		Corrected:  corrected,
		Duration:   time.Since(start),
	}
	r.log.Info("run finished", "status", decision.Status, "iterations", r.dispatches, "corrected", corrected, "duration", res.Duration)
	return res, nil
}

func (r *run) dispatch(ctx context.Context, call domain.ToolCall) {
	r.dispatches++
	r.enter(StateDispatchingTool, Event{Tool: call.Name, Args: call.Args})
	r.log.Info("tool call", "tool", call.Name, "args", call.Args)

	result := r.o.tools.Invoke(ctx, call.Name, call.Args)

	r.log.Info("tool result", "tool", call.Name, "result", result)
	r.enter(StateInjectingResult, Event{Tool: call.Name, Result: result})
	r.turns = append(r.turns, domain.Turn{
		Role:   domain.RoleTool,
		Result: &domain.ToolResult{CallID: call.ID, Name: call.Name, Content: result},
	})
}

// correct sends the single correction follow-up and parses its answer.
func (r *run) correct(ctx context.Context) (*domain.Decision, error) {
	r.enter(StateCorrecting, Event{})
	r.turns = append(r.turns, domain.Turn{Role: domain.RoleUser, Text: r.o.correction})

	reply, err := r.o.engine.Reply(ctx, r.turns, r.o.definitions)
	if err != nil {
		return nil, fmt.Errorf("agent: engine: %w", err)
	}
	if reply == nil {
		reply = &domain.EngineReply{}
	}
	if reply.WantsTools() {
		return nil, fmt.Errorf("%w: correction reply requested tools", ErrMalformedOutput)
	}
	r.turns = append(r.turns, domain.Turn{Role: domain.RoleAssistant, Text: reply.Text})

	d, err := ParseDecision(r.o.sanitize(reply.Text))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	return d, nil
}

// Outcome classifies a Run error for metrics labels: "ok", "budget",
// "malformed", "empty", "invariant", "cancelled" or "engine".
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrIterationBudget):
		return "budget"
	case errors.Is(err, ErrMalformedOutput):
		return "malformed"
	case errors.Is(err, ErrEmptyReply):
		return "empty"
	case errors.Is(err, ErrLeadInvariant):
		return "invariant"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "engine"
	}
}
