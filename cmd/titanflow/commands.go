package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"titanflow/internal/agent"
	"titanflow/internal/cli"
	"titanflow/internal/inbox"
	"titanflow/internal/secrets"
	"titanflow/internal/store"
	"titanflow/internal/tooling"
)

func newAnalyzeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <file>",
		Short: "Analyze one document and print the decision as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  runAnalyze,
	}
	cmd.Flags().BoolP("verbose", "v", false, "print state transitions to stderr")
	return cmd
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	ctx, stop := shutdownContext(cmd.Context())
	defer stop()

	rt, err := buildRuntime(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	var obs agent.Observer
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		errOut := cmd.ErrOrStderr()
		obs = func(ev agent.Event) {
			if ev.Tool != "" {
				fmt.Fprintf(errOut, "  %-17s #%d %s\n", ev.State, ev.Iteration, ev.Tool)
				return
			}
			fmt.Fprintf(errOut, "  %s\n", ev.State)
		}
	}
	report, err := rt.Analyzer.AnalyzeDocument(ctx, filepath.Base(args[0]), data, obs)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(report.Decision, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

func newWatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Analyze every document dropped into a directory",
		Long:  "Watches dir (default inbox.dir) and writes <file>.decision.json or <file>.error.txt next to each document.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runWatch,
	}
	cmd.Flags().Int("parallel", 2, "documents analyzed at once")
	cmd.Flags().Bool("backlog", true, "analyze existing documents without a result on start")
	return cmd
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	dir := cfg.Inbox.Dir
	if len(args) == 1 {
		dir = args[0]
	}
	if dir == "" {
		return errors.New("no inbox directory: pass one or set inbox.dir")
	}
	ctx, stop := shutdownContext(cmd.Context())
	defer stop()

	rt, err := buildRuntime(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	parallel, _ := cmd.Flags().GetInt("parallel")
	backlog, _ := cmd.Flags().GetBool("backlog")
	w := inbox.New(dir, rt.Analyzer, inbox.WithLogger(logger), inbox.WithParallelism(parallel), inbox.WithBacklog(backlog))
	if err := w.Start(ctx); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "  watching %s\n", dir)
	<-ctx.Done()
	return w.Stop()
}

func newToolsCommand(bm buildMeta) *cobra.Command {
	tools := &cobra.Command{Use: "tools", Short: "Tool server"}
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve the lead tools over stdio (started by the agent)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			dbURL, _ := cmd.Flags().GetString("db")
			if dbURL == "" {
				dbURL = cfg.Store.URL
			}
			db, err := store.Connect(dbURL)
			if err != nil {
				return err
			}
			defer db.Close()
			st := store.New(db, store.WithLogger(logger))

			ctx, stop := shutdownContext(cmd.Context())
			defer stop()
			srv := tooling.NewServer(tooling.NewLeadRegistry(st, st), bm.Version, tooling.WithServerLogger(logger))
			return srv.ServeStdio(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	serve.Flags().String("db", "", "store URL (default store.url)")
	tools.AddCommand(serve)
	return tools
}

func newDBCommand() *cobra.Command {
	db := &cobra.Command{Use: "db", Short: "Manage the pricing and lead database"}
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create tables and seed the service catalog (idempotent)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			conn, err := store.Connect(cfg.Store.URL)
			if err != nil {
				return err
			}
			defer conn.Close()
			st := store.New(conn, store.WithLogger(logger))
			if err := st.Init(cmd.Context()); err != nil {
				return err
			}
			services, err := st.ListServices(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "  %s ready, %d services.\n", cfg.Store.URL, len(services))
			return nil
		},
	}
	db.AddCommand(initCmd)
	return db
}

func newLeadsCommand() *cobra.Command {
	leads := &cobra.Command{Use: "leads", Short: "Inspect the lead ledger"}
	list := &cobra.Command{
		Use:   "list",
		Short: "List saved leads, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			conn, err := store.Connect(cfg.Store.URL)
			if err != nil {
				return err
			}
			defer conn.Close()
			limit, _ := cmd.Flags().GetInt("limit")
			rows, err := store.New(conn, store.WithLogger(logger)).ListLeads(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCLIENT\tSERVICE\tSCORE\tSTATUS\tCREATED")
			for _, l := range rows {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\n", l.ID, l.ClientName, l.Service, l.Score, l.Status, l.CreatedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
	list.Flags().Int("limit", 20, "maximum leads to show (0 = all)")
	list.Flags().Bool("json", false, "print JSON")
	leads.AddCommand(list)
	return leads
}

func newCheckCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check config, engine credentials, store and tool server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fix, _ := cmd.Flags().GetBool("fix")
			skipTools, _ := cmd.Flags().GetBool("skip-tools")
			logger := slog.Default()
			code := cli.RunCheck(cmd.Context(), cli.CheckOptions{
				ConfigPath: configPath(cmd),
				Fix:        fix,
				SkipTools:  skipTools,
				Secrets:    secretGetter(logger),
				Launcher:   toolLauncher,
				Logger:     logger,
			}, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if code != 0 {
				return exitCodeErr(code)
			}
			return nil
		},
	}
	cmd.Flags().Bool("fix", false, "write default config if missing and seed an empty catalog")
	cmd.Flags().Bool("skip-tools", false, "do not launch the tool server")
	return cmd
}

func newConfigCommand() *cobra.Command {
	cfgCmd := &cobra.Command{Use: "config", Short: "Get or set config values by dotted path"}
	run := func(action string) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			opts := cli.ConfigOptions{ConfigPath: configPath(cmd), Action: action, Path: args[0]}
			if len(args) > 1 {
				opts.Value = args[1]
			}
			if code := cli.RunConfig(opts, cmd.OutOrStdout(), cmd.ErrOrStderr()); code != 0 {
				return exitCodeErr(code)
			}
			return nil
		}
	}
	cfgCmd.AddCommand(
		&cobra.Command{Use: "get <path>", Short: "Print a value", Args: cobra.ExactArgs(1), RunE: run("get")},
		&cobra.Command{Use: "set <path> <value>", Short: "Set a value", Args: cobra.ExactArgs(2), RunE: run("set")},
		&cobra.Command{Use: "unset <path>", Short: "Reset a value to its default", Args: cobra.ExactArgs(1), RunE: run("unset")},
	)
	return cfgCmd
}

func newSecretsCommand() *cobra.Command {
	secretsCmd := &cobra.Command{Use: "secrets", Short: "Store or retrieve API keys (encrypted, not in config)"}
	secretsSetCmd := &cobra.Command{Use: "set <name> <value>", Short: "Store a secret (e.g. gemini_api_key)", RunE: runSecretsSet, Args: cobra.ExactArgs(2)}
	secretsGetCmd := &cobra.Command{Use: "get <name>", Short: "Retrieve a secret by name", RunE: runSecretsGet, Args: cobra.ExactArgs(1)}
	secretsDeleteCmd := &cobra.Command{Use: "delete <name>", Short: "Remove a secret by name", RunE: runSecretsDelete, Args: cobra.ExactArgs(1)}
	secretsCmd.AddCommand(secretsSetCmd, secretsGetCmd, secretsDeleteCmd)
	return secretsCmd
}

func runSecretsSet(cmd *cobra.Command, args []string) error {
	m, err := newSecretsManager()
	if err != nil {
		return err
	}
	if err := m.Set(args[0], args[1]); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "ok")
	return nil
}

func runSecretsGet(cmd *cobra.Command, args []string) error {
	m, err := newSecretsManager()
	if err != nil {
		return err
	}
	value, err := m.Get(args[0])
	if err != nil {
		if errors.Is(err, secrets.ErrNotFound) {
			return fmt.Errorf("secret %q not found", args[0])
		}
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), value)
	return nil
}

func runSecretsDelete(cmd *cobra.Command, args []string) error {
	m, err := newSecretsManager()
	if err != nil {
		return err
	}
	return m.Delete(args[0])
}
