// Package toolchannel carries tool calls from the orchestrator to the
// out-of-process tool server over MCP. Every public entry point returns a
// string: failures are folded into a "Tool Error: ..." result so the reasoning
// engine can read them instead of the run crashing.
package toolchannel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// DefaultTimeout bounds one tool invocation, handshake included.
const DefaultTimeout = 10 * time.Second

// ErrorPrefix marks results synthesized from channel failures.
const ErrorPrefix = "Tool Error: "

var (
	// ErrNoContent is reported when the server answers without any content.
	ErrNoContent = errors.New("no content returned")
	// ErrPoolClosed is reported by a Pool after Close.
	ErrPoolClosed = errors.New("toolchannel: pool closed")
	// ErrRecycleSpec is returned by Pool.Start for an unparsable cron spec.
	ErrRecycleSpec = errors.New("toolchannel: invalid recycle spec")
)

// Session is the part of an MCP client the channel drives.
type Session interface {
	Initialize(ctx context.Context, req mcp.InitializeRequest) (*mcp.InitializeResult, error)
	ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// Launcher starts a tool-server process and returns an uninitialized session
// connected to it.
type Launcher interface {
	Launch(ctx context.Context) (Session, error)
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(ctx context.Context) (Session, error)

func (f LauncherFunc) Launch(ctx context.Context) (Session, error) { return f(ctx) }

// Observer receives per-call outcomes. Implemented by the metrics package.
type Observer interface {
	ToolInvoked(tool string, ok bool, d time.Duration)
	WorkerRestarted(reason string)
}

type nopObserver struct{}

func (nopObserver) ToolInvoked(string, bool, time.Duration) {}
func (nopObserver) WorkerRestarted(string)                 {}

// Failure formats err as a tool result.
func Failure(err error) string {
	return ErrorPrefix + err.Error()
}

// IsFailure reports whether a tool result was synthesized from a failure.
func IsFailure(result string) bool {
	return strings.HasPrefix(result, ErrorPrefix)
}

func handshake(ctx context.Context, s Session) (*mcp.InitializeResult, error) {
	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{
		Name:    "titanflow",
		Version: "1.0.0",
	}
	res, err := s.Initialize(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}
	return res, nil
}

// errToolResult wraps a tool-level error reported by the server. The session
// stays healthy after one of these.
type errToolResult struct{ text string }

func (e *errToolResult) Error() string { return e.text }

// call performs one tools/call and extracts the first text payload.
func call(ctx context.Context, s Session, name string, args map[string]any) (string, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	res, err := s.CallTool(ctx, req)
	if err != nil {
		return "", err
	}
	if res == nil || len(res.Content) == 0 {
		return "", ErrNoContent
	}
	text, ok := firstText(res.Content)
	if !ok {
		return "", fmt.Errorf("no text content in %d item(s)", len(res.Content))
	}
	if res.IsError {
		return "", &errToolResult{text: text}
	}
	return text, nil
}

func firstText(content []mcp.Content) (string, bool) {
	for _, c := range content {
		switch tc := c.(type) {
		case mcp.TextContent:
			return tc.Text, true
		case *mcp.TextContent:
			return tc.Text, true
		}
	}
	return "", false
}

// describe adds the timeout to deadline errors so results read naturally.
func describe(err error, timeout time.Duration) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("timed out after %s: %w", timeout, err)
	}
	return err
}
