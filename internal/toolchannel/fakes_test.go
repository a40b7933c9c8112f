package toolchannel

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// newToolServer hosts three tools: echo returns its "text" argument, fail
// returns a tool-level error, and hang blocks until its context ends.
func newToolServer(t *testing.T) *server.MCPServer {
	t.Helper()
	s := server.NewMCPServer("test tools", "0")
	s.AddTool(mcp.NewTool("echo", mcp.WithString("text")), func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, _ := req.GetArguments()["text"].(string)
		return mcp.NewToolResultText("echo: " + text), nil
	})
	s.AddTool(mcp.NewTool("fail"), func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultError("bad input"), nil
	})
	s.AddTool(mcp.NewTool("empty"), func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return &mcp.CallToolResult{}, nil
	})
	s.AddTool(mcp.NewTool("hang"), func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	return s
}

// countingLauncher hands out in-process sessions and tracks their lifecycle.
type countingLauncher struct {
	srv      *server.MCPServer
	failNext atomic.Int32
	launched atomic.Int32
	closed   atomic.Int32
}

func (l *countingLauncher) Launch(ctx context.Context) (Session, error) {
	if l.failNext.Load() > 0 {
		l.failNext.Add(-1)
		return nil, errors.New("exec: \"tools\": executable file not found in $PATH")
	}
	c, err := client.NewInProcessClient(l.srv)
	if err != nil {
		return nil, err
	}
	if err := c.Start(ctx); err != nil {
		return nil, err
	}
	l.launched.Add(1)
	return &trackedSession{Session: c, onClose: func() { l.closed.Add(1) }}, nil
}

type trackedSession struct {
	Session
	once    sync.Once
	onClose func()
}

func (s *trackedSession) Close() error {
	s.once.Do(s.onClose)
	return s.Session.Close()
}

// recordingObserver captures observer callbacks.
type recordingObserver struct {
	mu       sync.Mutex
	calls    []bool
	restarts []string
}

func (o *recordingObserver) ToolInvoked(_ string, ok bool, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, ok)
}

func (o *recordingObserver) WorkerRestarted(reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.restarts = append(o.restarts, reason)
}

func (o *recordingObserver) restartCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.restarts)
}

// panicSession panics on CallTool.
type panicSession struct{ Session }

func (panicSession) CallTool(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	panic("session exploded")
}
