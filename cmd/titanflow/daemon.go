package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"titanflow/internal/domain"
	"titanflow/internal/gateway"
	"titanflow/internal/inbox"
	"titanflow/internal/metrics"
)

// daemonBindWaitIterations is the max loop count waiting for the gateway to bind.
var daemonBindWaitIterations = 50

// gatewayReady is called with the gateway once it has bound; tests use it to find the port.
var gatewayReady = func(*gateway.Server) {}

// runDaemon serves the gateway (and the inbox when inbox.dir is set) until
// a shutdown signal or the command context ends.
func runDaemon(cmd *cobra.Command, cfg *domain.Config, logger *slog.Logger) error {
	ctx, stop := shutdownContext(cmd.Context())
	defer stop()
	out := cmd.OutOrStdout()

	m := metrics.New()
	rt, err := buildRuntime(ctx, cfg, logger, m)
	if err != nil {
		return err
	}
	defer rt.Close()

	srv, err := gateway.NewServer(&cfg.Gateway, rt.Analyzer, gateway.WithLogger(logger), gateway.WithMetrics(m.Handler()))
	if err != nil {
		return err
	}
	shutdown := make(chan struct{})
	runErr := make(chan error, 1)
	go func() { runErr <- srv.Run(shutdown) }()

	var bound string
	for i := 0; i < daemonBindWaitIterations && bound == ""; i++ {
		if bound = srv.Addr(); bound == "" {
			if err := srv.ListenErr(); err != nil {
				return fmt.Errorf("gateway failed to bind: %w", err)
			}
			time.Sleep(20 * time.Millisecond)
		}
	}
	if bound == "" {
		close(shutdown)
		return fmt.Errorf("gateway failed to bind :%d (check port or permissions)", cfg.Gateway.Port)
	}
	fmt.Fprintf(out, "  listen %s\n", bound)
	gatewayReady(srv)

	if dir := cfg.Inbox.Dir; dir != "" {
		w := inbox.New(dir, rt.Analyzer, inbox.WithLogger(logger))
		if err := w.Start(ctx); err != nil {
			close(shutdown)
			<-runErr
			return err
		}
		defer w.Stop()
		fmt.Fprintf(out, "  watching %s\n", dir)
	}
	fmt.Fprintln(out, "  ready.")

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		close(shutdown)
		return <-runErr
	case err := <-runErr:
		return err
	}
}
