package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"titanflow/internal/agent"
	"titanflow/internal/domain"
	"titanflow/internal/extract"
	"titanflow/internal/llm"
	"titanflow/internal/metrics"
	"titanflow/internal/sanitize"
	"titanflow/internal/tokenizer"
	"titanflow/internal/toolchannel"
)

// Tool channel modes.
const (
	ModePool  = "pool"
	ModeSpawn = "spawn"
)

// Deps are the collaborators Build cannot derive from config.
type Deps struct {
	// Secrets resolves API keys for hosted engines.
	Secrets llm.SecretGetter
	// Launcher overrides the tool-server launcher derived from config.
	Launcher toolchannel.Launcher
	// Engine overrides the engine derived from config.
	Engine  domain.ReasoningEngine
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Runtime owns the long-lived pieces behind an Analyzer.
type Runtime struct {
	Analyzer *Analyzer
	Tools    domain.ToolInvoker
	Metrics  *metrics.Metrics

	closers []func() error
}

// Close releases the tool channel.
func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i]())
	}
	return errors.Join(errs...)
}

// executable is os.Executable; tests replace it.
var executable = os.Executable

// Launcher returns the stdio launcher described by cfg. An empty command
// re-executes the running binary as "tools serve" against storeURL.
func Launcher(cfg domain.ToolsConfig, storeURL string, logger *slog.Logger) (*toolchannel.StdioLauncher, error) {
	cmd, args := cfg.Command, cfg.Args
	if cmd == "" {
		self, err := executable()
		if err != nil {
			return nil, fmt.Errorf("pipeline: locate executable: %w", err)
		}
		cmd = self
		if len(args) == 0 {
			args = []string{"tools", "serve"}
			if storeURL != "" {
				args = append(args, "--db", storeURL)
			}
		}
	}
	return &toolchannel.StdioLauncher{Command: cmd, Args: args, Env: envList(cfg.Env), Logger: logger}, nil
}

func envList(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// Build assembles the engine, tool channel, extractor and orchestrator from
// cfg. The pool is warmed before Build returns; a failed warm-up is logged
// and workers are launched on demand instead.
func Build(ctx context.Context, cfg domain.Config, deps Deps) (*Runtime, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	engine := deps.Engine
	if engine == nil {
		var err error
		if engine, err = llm.NewEngine(ctx, cfg.Engine, deps.Secrets); err != nil {
			return nil, err
		}
	}

	sanitizer, err := sanitize.ForMode(sanitize.Mode(strings.ToLower(cfg.Engine.Sanitizer)))
	if err != nil {
		return nil, err
	}

	launcher := deps.Launcher
	if launcher == nil {
		l, err := Launcher(cfg.Tools, cfg.Store.URL, logger)
		if err != nil {
			return nil, err
		}
		launcher = l
	}

	rt := &Runtime{Metrics: deps.Metrics}
	chanOpts := []toolchannel.Option{
		toolchannel.WithTimeout(time.Duration(cfg.Tools.TimeoutSeconds) * time.Second),
		toolchannel.WithLogger(logger),
	}
	if deps.Metrics != nil {
		chanOpts = append(chanOpts, toolchannel.WithObserver(deps.Metrics))
	}

	switch mode := strings.ToLower(cfg.Tools.Mode); mode {
	case ModeSpawn:
		rt.Tools = toolchannel.NewSpawnChannel(launcher, chanOpts...)
	case "", ModePool:
		chanOpts = append(chanOpts, toolchannel.WithSize(cfg.Tools.PoolSize), toolchannel.WithRecycle(cfg.Tools.Recycle))
		pool := toolchannel.NewPool(launcher, chanOpts...)
		if err := pool.Start(ctx); err != nil {
			if errors.Is(err, toolchannel.ErrRecycleSpec) {
				pool.Close()
				return nil, err
			}
			logger.Warn("tool pool warm-up incomplete", "error", err)
		}
		rt.Tools = pool
		rt.closers = append(rt.closers, pool.Close)
	default:
		return nil, fmt.Errorf("pipeline: unknown tools mode %q", mode)
	}

	var exOpts = []extract.Option{extract.WithLogger(logger)}
	if cfg.Engine.MaxDocumentTokens > 0 {
		tok, err := tokenizer.NewTikToken(cfg.Engine.Encoding)
		if err != nil {
			logger.Warn("token budget disabled", "encoding", cfg.Engine.Encoding, "error", err)
		} else {
			exOpts = append(exOpts, extract.WithTokenBudget(tok, cfg.Engine.MaxDocumentTokens))
		}
	}

	orch := agent.New(engine, rt.Tools,
		agent.WithLogger(logger),
		agent.WithMaxIterations(cfg.Engine.MaxIterations),
		agent.WithSanitizer(sanitizer),
		agent.WithLeadInvariant(cfg.Engine.EnforceLeadInvariant),
		agent.WithCorrectionPrompt(cfg.Engine.CorrectionPrompt),
	)
	rt.Analyzer = New(extract.New(exOpts...), orch, WithLogger(logger), WithMetrics(deps.Metrics))
	return rt, nil
}
