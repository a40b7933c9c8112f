package tooling

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ServerName is reported to clients during the initialize handshake.
const ServerName = "TitanFlow Tools"

// Server exposes a ToolRegistry over the Model Context Protocol.
type Server struct {
	registry *ToolRegistry
	mcp      *server.MCPServer
	logger   *slog.Logger
}

// ServerOption configures optional Server dependencies.
type ServerOption func(*Server)

// WithServerLogger sets the logger used for per-call diagnostics. It must
// not write to the protocol stream.
func WithServerLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// NewServer registers every tool in reg on a fresh MCP server. Panics if reg
// is nil.
func NewServer(reg *ToolRegistry, version string, opts ...ServerOption) *Server {
	if reg == nil {
		panic("tooling: registry must not be nil")
	}
	s := &Server{registry: reg}
	for _, o := range opts {
		o(s)
	}

	s.mcp = server.NewMCPServer(ServerName, version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	for _, t := range reg.List() {
		s.mcp.AddTool(
			mcp.NewToolWithRawSchema(t.Name(), t.Description(), json.RawMessage(t.Definition())),
			s.handler(t.Name()),
		)
	}
	return s
}

func (s *Server) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

// MCPServer returns the underlying protocol server, e.g. for in-process clients.
func (s *Server) MCPServer() *server.MCPServer { return s.mcp }

// ServeStdio serves the protocol on in/out until ctx is cancelled or in is
// closed.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(s.log().Handler(), slog.LevelError))
	return stdio.Listen(ctx, in, out)
}

// handler resolves the tool through the registry on every call.
func (s *Server) handler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		t, err := s.registry.Get(name)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		args := req.GetArguments()
		if args == nil {
			args = map[string]any{}
		}
		raw, err := json.Marshal(args)
		if err != nil {
			return mcp.NewToolResultErrorFromErr("invalid arguments", err), nil
		}

		out, err := t.Call(ctx, raw)
		if err != nil {
			s.log().Warn("tool call failed", "tool", t.Name(), "error", err, "duration", time.Since(start))
			return mcp.NewToolResultError(err.Error()), nil
		}
		s.log().Info("tool call", "tool", t.Name(), "duration", time.Since(start))
		return mcp.NewToolResultText(out), nil
	}
}
