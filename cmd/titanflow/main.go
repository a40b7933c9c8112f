package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"titanflow/internal/config"
	"titanflow/internal/domain"
	"titanflow/internal/llm"
	"titanflow/internal/metrics"
	"titanflow/internal/pipeline"
	"titanflow/internal/secrets"
	"titanflow/internal/toolchannel"
)

// buildMeta holds version and build metadata (injectable via ldflags).
type buildMeta struct {
	Version string
	GoOS    string
	GoArch  string
}

func newBuildMeta(version, goos, goarch string) buildMeta {
	if goos == "" {
		goos = runtime.GOOS
	}
	if goarch == "" {
		goarch = runtime.GOARCH
	}
	return buildMeta{Version: version, GoOS: goos, GoArch: goarch}
}

func (m buildMeta) String() string {
	return fmt.Sprintf("titanflow %s %s/%s", m.Version, m.GoOS, m.GoArch)
}

func newRootCommand(bm buildMeta) *cobra.Command {
	root := &cobra.Command{
		Use:           "titanflow",
		Short:         "Lead qualification agent",
		Long:          "TitanFlow reads RFP documents and decides, with tool-assisted reasoning, whether to approve the lead.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion, _ := cmd.Flags().GetBool("version"); showVersion {
				fmt.Fprintln(cmd.OutOrStdout(), bm.String())
				return nil
			}
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runDaemon(cmd, cfg, logger)
		},
	}
	root.Flags().BoolP("version", "V", false, "print version and build metadata")
	root.PersistentFlags().StringP("config", "c", "", "config file (default $"+config.EnvPath+" or "+config.DefaultPath+")")

	root.AddCommand(
		newAnalyzeCommand(),
		newWatchCommand(),
		newToolsCommand(bm),
		newDBCommand(),
		newLeadsCommand(),
		newCheckCommand(),
		newConfigCommand(),
		newSecretsCommand(),
	)
	return root
}

// configPath returns the --config flag value, else the env/default path.
func configPath(cmd *cobra.Command) string {
	if p, _ := cmd.Flags().GetString("config"); p != "" {
		return p
	}
	return config.Path()
}

// loadConfig reads the config (defaults when the file is missing) and
// installs the configured slog handler as the default logger.
func loadConfig(cmd *cobra.Command) (*domain.Config, *slog.Logger, error) {
	cfg, err := config.LoadOrDefault(configPath(cmd))
	if err != nil {
		return nil, nil, err
	}
	logger := newLogger(cfg.Infra, logOutput)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// logOutput is where logs go. Never stdout: the tool server speaks the
// protocol there.
var logOutput io.Writer = os.Stderr

func newLogger(infra domain.InfraConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(infra.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(infra.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Hooks for tests.
var (
	newSecretsManager = secrets.DefaultManager
	// toolLauncher overrides the launcher derived from config when non-nil.
	toolLauncher toolchannel.Launcher
	// shutdownContext is installed by main_signal*.go.
	shutdownContext func(context.Context) (context.Context, context.CancelFunc)
)

// secretGetter resolves API keys from the secrets file, falling back to the
// environment when the file cannot be opened.
func secretGetter(logger *slog.Logger) llm.SecretGetter {
	mgr, err := newSecretsManager()
	if err != nil {
		logger.Debug("secrets file unavailable, using environment only", "error", err)
		return secrets.Getter(nil)
	}
	return secrets.Getter(mgr)
}

func buildRuntime(ctx context.Context, cfg *domain.Config, logger *slog.Logger, m *metrics.Metrics) (*pipeline.Runtime, error) {
	return pipeline.Build(ctx, *cfg, pipeline.Deps{
		Secrets:  secretGetter(logger),
		Launcher: toolLauncher,
		Metrics:  m,
		Logger:   logger,
	})
}

func getVersion() string {
	if version != "" {
		return version
	}
	b, err := os.ReadFile("VERSION")
	if err != nil {
		return "dev"
	}
	return strings.TrimSpace(string(b))
}

// version is set at build time via ldflags for build metadata, e.g.:
//
//	go build -ldflags "-X main.version=1.0.0" -o titanflow ./cmd/titanflow
var version string

// exitCodeErr carries an exit code for the process. When returned from a command, runApp exits with that code.
type exitCodeErr int

func (e exitCodeErr) Error() string { return fmt.Sprintf("exit %d", int(e)) }
func (e exitCodeErr) ExitCode() int { return int(e) }

// runApp runs the root command with the given args and returns the exit code.
func runApp(args []string) int {
	return execute(args, os.Stdout, os.Stderr)
}

func execute(args []string, stdout, stderr io.Writer) int {
	bm := newBuildMeta(version, "", "")
	if bm.Version == "" {
		bm.Version = getVersion()
	}
	root := newRootCommand(bm)
	root.SetArgs(args[1:])
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.Execute(); err != nil {
		var ec interface{ ExitCode() int }
		if errors.As(err, &ec) {
			return ec.ExitCode()
		}
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	return 0
}
