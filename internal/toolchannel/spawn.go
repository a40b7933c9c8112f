package toolchannel

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"titanflow/internal/domain"
)

// SpawnChannel starts a fresh tool-server process for every invocation,
// performs the handshake, makes one call and tears the process down.
type SpawnChannel struct {
	launcher Launcher
	cfg      settings
}

var _ domain.ToolInvoker = (*SpawnChannel)(nil)

// NewSpawnChannel panics if launcher is nil.
func NewSpawnChannel(launcher Launcher, opts ...Option) *SpawnChannel {
	if launcher == nil {
		panic("toolchannel: launcher must not be nil")
	}
	return &SpawnChannel{launcher: launcher, cfg: newSettings(opts)}
}

// Invoke never panics and never returns an empty string.
func (c *SpawnChannel) Invoke(ctx context.Context, name string, args map[string]any) (out string) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out = Failure(fmt.Errorf("panic: %v", r))
		}
		c.cfg.observer.ToolInvoked(name, !IsFailure(out), time.Since(start))
	}()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.timeout)
	defer cancel()

	sess, err := c.launcher.Launch(ctx)
	if err != nil {
		c.cfg.logger.Warn("tool server launch failed", "tool", name, "error", err)
		return Failure(fmt.Errorf("launch: %w", err))
	}
	defer func() {
		if err := sess.Close(); err != nil {
			c.cfg.logger.Debug("tool server teardown", "error", err)
		}
	}()

	if _, err := handshake(ctx, sess); err != nil {
		return Failure(describe(err, c.cfg.timeout))
	}

	text, err := call(ctx, sess, name, args)
	if err != nil {
		c.cfg.logger.Warn("tool call failed", "tool", name, "error", err)
		return Failure(describe(err, c.cfg.timeout))
	}
	return text
}

// Probe launches a session, completes the handshake and lists the tools the
// server advertises. Used by health checks.
func Probe(ctx context.Context, launcher Launcher, timeout time.Duration) (string, []string, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sess, err := launcher.Launch(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("toolchannel: launch: %w", err)
	}
	defer sess.Close()

	res, err := handshake(ctx, sess)
	if err != nil {
		return "", nil, fmt.Errorf("toolchannel: %w", describe(err, timeout))
	}
	list, err := sess.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return "", nil, fmt.Errorf("toolchannel: list tools: %w", err)
	}
	names := make([]string, 0, len(list.Tools))
	for _, t := range list.Tools {
		names = append(names, t.Name)
	}
	return res.ServerInfo.Name, names, nil
}
