// Package gateway serves the analyze endpoints, the progress websocket, the
// metrics exposition and a health check over HTTP.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"titanflow/internal/agent"
	"titanflow/internal/domain"
	"titanflow/internal/pipeline"
)

// ErrInvalidPort is returned when gateway port is not in 0..65535.
var ErrInvalidPort = errors.New("gateway port must be 0-65535")

// DefaultMaxUploadBytes caps POST /analyze bodies when the config leaves it unset.
const DefaultMaxUploadBytes int64 = 20 << 20

// Analyzer runs one document through the reasoning loop.
type Analyzer interface {
	AnalyzeDocument(ctx context.Context, name string, data []byte, obs agent.Observer) (*pipeline.Report, error)
	AnalyzeText(ctx context.Context, text string, obs agent.Observer) (*agent.Result, error)
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetrics mounts h on GET /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// Server is an HTTP server that optionally enforces Bearer token auth.
type Server struct {
	cfg         *domain.GatewayConfig
	analyzer    Analyzer
	metrics     http.Handler
	logger      *slog.Logger
	server      *http.Server
	addr        string
	addrMu      sync.RWMutex
	listenErr   error
	listenErrMu sync.Mutex
	listener    net.Listener
}

// NewServer builds a gateway server from config. Port 0 means pick a random port.
// A nil analyzer makes the analyze endpoints answer 503.
// Returns ErrInvalidPort if port is not in 0..65535.
func NewServer(cfg *domain.GatewayConfig, analyzer Analyzer, opts ...Option) (*Server, error) {
	if cfg == nil {
		cfg = &domain.GatewayConfig{Port: 8080}
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, ErrInvalidPort
	}
	s := &Server{cfg: cfg, analyzer: analyzer}
	for _, o := range opts {
		o(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.HandleFunc("POST /analyze", s.handleAnalyze)
	mux.HandleFunc("GET /ws/analyze", s.handleAnalyzeWS)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	s.server = &http.Server{
		Handler:           BearerAuth(cfg.Auth.AuthToken, "/")(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

func (s *Server) maxUpload() int64 {
	if s.cfg.MaxUploadBytes > 0 {
		return s.cfg.MaxUploadBytes
	}
	return DefaultMaxUploadBytes
}

// Addr returns the bound address (e.g. "127.0.0.1:8080") after Run has started. Empty before Run.
func (s *Server) Addr() string {
	s.addrMu.RLock()
	defer s.addrMu.RUnlock()
	return s.addr
}

// ListenErr returns the error from the initial Listen in Run(), if any.
func (s *Server) ListenErr() error {
	s.listenErrMu.Lock()
	defer s.listenErrMu.Unlock()
	return s.listenErr
}

// Handler returns the HTTP handler used by the server, auth included.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// netListen is the function used to listen; tests may replace it to force Listen errors.
var netListen = func(network, address string) (net.Listener, error) {
	return net.Listen(network, address)
}

// Run listens on the configured port and serves until shutdown is closed. Returns nil when shutdown.
func (s *Server) Run(shutdown <-chan struct{}) error {
	addr := ":" + strconv.Itoa(s.cfg.Port)
	ln, err := netListen("tcp", addr)
	if err != nil {
		s.listenErrMu.Lock()
		s.listenErr = err
		s.listenErrMu.Unlock()
		return err
	}
	s.addrMu.Lock()
	s.listener = ln
	s.addr = ln.Addr().String()
	s.addrMu.Unlock()
	s.log().Info("gateway listening", "addr", s.addr)

	done := make(chan error, 1)
	go func() {
		done <- s.server.Serve(ln)
	}()

	<-shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = serverShutdown(s.server, ctx)
	if err != nil {
		return err
	}
	<-done
	return nil
}

// serverShutdown is the function used to shut down the server; tests may replace it.
var serverShutdown = func(srv *http.Server, ctx context.Context) error {
	return srv.Shutdown(ctx)
}
