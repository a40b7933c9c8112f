package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"titanflow/internal/config"
	"titanflow/internal/domain"
	"titanflow/internal/llm"
	"titanflow/internal/pipeline"
	"titanflow/internal/store"
	"titanflow/internal/toolchannel"
	"titanflow/internal/tooling"
)

// CheckOptions holds options for the check command.
type CheckOptions struct {
	ConfigPath string
	Fix        bool // write a default config when missing and seed an empty catalog
	SkipTools  bool // do not launch the tool server

	// Secrets resolves engine API keys; nil skips the key check.
	Secrets llm.SecretGetter
	// Launcher overrides the tool-server launcher derived from config.
	Launcher toolchannel.Launcher
	Logger   *slog.Logger
}

// RunCheck verifies config, engine credentials, store and the tool server
// handshake. Every section is reported; the exit code is 1 if any failed.
func RunCheck(ctx context.Context, opts CheckOptions, stdout, stderr io.Writer) int {
	cfgPath := opts.ConfigPath
	if cfgPath == "" {
		cfgPath = config.Path()
	}
	note := func(section, message string) {
		fmt.Fprintf(stdout, "  [%s] %s\n", section, message)
	}
	failed := 0
	fail := func(section, message string) {
		failed++
		note(section, "FAIL: "+message)
	}

	// 1. Config
	cfg, err := configLoad(cfgPath)
	switch {
	case err == nil:
		note("Config", fmt.Sprintf("Loaded %s.", cfgPath))
	case errors.Is(err, fs.ErrNotExist):
		note("Config", fmt.Sprintf("No config at %s; using defaults.", cfgPath))
		if opts.Fix {
			if writeErr := configWriteDefault(cfgPath); writeErr != nil {
				fmt.Fprintf(stderr, "  failed to write default config: %v\n", writeErr)
				return 1
			}
			note("Config", fmt.Sprintf("Wrote default config to %s.", cfgPath))
		} else {
			note("Config", "Run with --fix to create a default config file.")
		}
		cfg = config.Default()
	default:
		fail("Config", err.Error())
		return 1
	}

	// 2. Gateway
	note("Gateway", fmt.Sprintf("port=%d", cfg.Gateway.Port))
	if cfg.Gateway.Auth.AuthToken == "" {
		note("Gateway", "Auth is disabled. Set gateway.auth.authToken for production.")
	}

	// 3. Engine
	if msg, err := checkEngine(cfg.Engine, opts.Secrets); err != nil {
		fail("Engine", err.Error())
	} else {
		note("Engine", msg)
	}

	// 4. Store
	if msg, err := checkStore(ctx, cfg.Store.URL, opts.Fix); err != nil {
		fail("Store", err.Error())
	} else {
		note("Store", msg)
	}

	// 5. Tools
	if opts.SkipTools {
		note("Tools", "Skipped.")
	} else if msg, err := checkTools(ctx, cfg, opts); err != nil {
		fail("Tools", err.Error())
	} else {
		note("Tools", msg)
	}

	// 6. Inbox
	if dir := cfg.Inbox.Dir; dir != "" {
		if err := ensureDir(dir, "inbox.dir"); err != nil {
			fail("Inbox", err.Error())
		} else {
			note("Inbox", fmt.Sprintf("inbox.dir %s ok.", dir))
		}
	}

	if failed > 0 {
		fmt.Fprintf(stdout, "  Check failed (%d problem(s)).\n", failed)
		return 1
	}
	fmt.Fprintln(stdout, "  Check complete.")
	return 0
}

func checkEngine(cfg domain.EngineConfig, secrets llm.SecretGetter) (string, error) {
	provider := strings.ToLower(cfg.Provider)
	switch provider {
	case "gemini", "openai":
		if secrets == nil {
			return fmt.Sprintf("provider=%s (key not checked)", provider), nil
		}
		name := llm.GeminiSecret
		if provider == "openai" {
			name = llm.OpenAISecret
		}
		if v, err := secrets(name); err != nil || strings.TrimSpace(v) == "" {
			return "", fmt.Errorf("provider=%s: no API key; run `titanflow secrets set %s`", provider, name)
		}
		return fmt.Sprintf("provider=%s key present.", provider), nil
	case "scripted":
		if _, err := os.Stat(cfg.ScriptPath); err != nil {
			return "", fmt.Errorf("provider=scripted: %w", err)
		}
		return fmt.Sprintf("provider=scripted script=%s.", cfg.ScriptPath), nil
	case "ollama":
		return "provider=ollama (no key required).", nil
	default:
		return "", fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

func checkStore(ctx context.Context, url string, seed bool) (string, error) {
	db, err := storeConnect(url)
	if err != nil {
		return "", err
	}
	defer db.Close()
	s := store.New(db)
	if seed {
		if err := s.Init(ctx); err != nil {
			return "", err
		}
	}
	services, err := s.ListServices(ctx)
	if err != nil {
		return "", fmt.Errorf("%s: %w (run `titanflow db init`)", url, err)
	}
	if len(services) == 0 {
		return "", fmt.Errorf("%s: service catalog is empty (run `titanflow db init`)", url)
	}
	return fmt.Sprintf("%s: %d services in catalog.", url, len(services)), nil
}

func checkTools(ctx context.Context, cfg *domain.Config, opts CheckOptions) (string, error) {
	launcher := opts.Launcher
	if launcher == nil {
		l, err := pipeline.Launcher(cfg.Tools, cfg.Store.URL, opts.Logger)
		if err != nil {
			return "", err
		}
		launcher = l
	}
	server, names, err := probeTools(ctx, launcher, time.Duration(cfg.Tools.TimeoutSeconds)*time.Second)
	if err != nil {
		return "", err
	}
	var missing []string
	for _, def := range tooling.Contract() {
		if !slices.Contains(names, def.Name) {
			missing = append(missing, def.Name)
		}
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("%s does not advertise %s", server, strings.Join(missing, ", "))
	}
	return fmt.Sprintf("%s handshake ok, %d tools.", server, len(names)), nil
}

func ensureDir(dir, label string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("%s: %w", label, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			if mkErr := os.MkdirAll(abs, 0755); mkErr != nil {
				return fmt.Errorf("%s %q: mkdir failed: %w", label, abs, mkErr)
			}
			return nil
		}
		return fmt.Errorf("%s %q: %w", label, abs, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s %q: not a directory", label, abs)
	}
	return nil
}
