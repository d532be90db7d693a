package adminserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"connectrpc.com/connect"

	adminv1 "github.com/yndnr/converge/api/admin/v1"
	"github.com/yndnr/converge/internal/core/domain"
	"github.com/yndnr/converge/internal/telemetry/metric"
)

// Config configures the admin HTTP server.
type Config struct {
	ListenAddress     string
	RateLimit         float64 // requests per second, 0 disables
	RateBurst         int
	ReadHeaderTimeout time.Duration
}

// DefaultConfig returns the default admin server configuration.
func DefaultConfig() *Config {
	return &Config{
		ListenAddress:     "127.0.0.1:4525",
		RateLimit:         50,
		RateBurst:         100,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Server is the admin HTTP server.
type Server struct {
	cfg        *Config
	logger     *slog.Logger
	handler    http.Handler
	httpServer *http.Server
	started    time.Time

	mu       sync.Mutex
	listener net.Listener
	running  bool
}

// New assembles the admin API, /metrics and /healthz on one mux.
func New(cfg *Config, h *Handler, metrics *metric.Registry, logger *slog.Logger) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{cfg: cfg, logger: logger, started: time.Now()}

	mux := http.NewServeMux()
	path, api := adminv1.NewAdminServiceHandler(h,
		connect.WithInterceptors(DefaultInterceptors(logger, metrics, cfg.RateLimit, cfg.RateBurst)...))
	mux.Handle(path, api)
	if metrics != nil {
		mux.Handle("/metrics", metrics.Handler())
	}
	mux.HandleFunc("/healthz", s.handleHealth)

	s.handler = mux
	s.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.ListenAddress)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		ln.Close()
		return domain.ErrServiceAlreadyRunning
	}
	s.running = true
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("admin api listening", "address", ln.Addr().String())
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("admin api stopped", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	running := s.running
	s.running = false
	s.mu.Unlock()

	if !running {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
		"uptime": time.Since(s.started).Round(time.Second).String(),
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
