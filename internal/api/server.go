package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ellenhp/bambu-farm/internal/farm"
	"github.com/ellenhp/bambu-farm/internal/infrastructure/config"
	"github.com/ellenhp/bambu-farm/internal/infrastructure/logging"
	"github.com/ellenhp/bambu-farm/internal/printer"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Farm is the read side of the gateway the server reports on.
// This interface is satisfied by *farm.Farm.
type Farm interface {
	Printers(ctx context.Context) ([]printer.Record, error)
	Sessions(ctx context.Context) ([]farm.SessionInfo, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.HTTPConfig
	Logger  *logging.Logger
	Farm    Farm
	Metrics http.Handler // Optional; /metrics is not routed without it
	Version string
}

// Server is the operational HTTP server.
type Server struct {
	cfg       config.HTTPConfig
	logger    *logging.Logger
	farm      Farm
	metrics   http.Handler
	version   string
	startTime time.Time
	server    *http.Server
	listener  net.Listener
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, farm)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Farm == nil {
		return nil, fmt.Errorf("farm is required")
	}

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		farm:      deps.Farm,
		metrics:   deps.Metrics,
		version:   deps.Version,
		startTime: time.Now(),
	}, nil
}

// Start binds the listener and serves in a background goroutine.
// The server can be stopped with Close().
//
// Returns:
//   - error: If the listener cannot be bound (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port)),
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.Timeouts.ReadTimeout(),
		ReadHeaderTimeout: s.cfg.Timeouts.ReadTimeout(),
		WriteTimeout:      s.cfg.Timeouts.WriteTimeout(),
		IdleTimeout:       s.cfg.Timeouts.IdleTimeout(),
	}

	lc := &net.ListenConfig{}
	lis, err := lc.Listen(ctx, "tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("api: listening on %s: %w", s.server.Addr, err)
	}
	s.listener = lis

	s.logger.Info("API server listening", "address", lis.Addr().String())
	go func() {
		if err := s.server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
