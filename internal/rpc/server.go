package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"

	"github.com/ellenhp/bambu-farm/internal/infrastructure/config"
)

// shutdownTimeout bounds graceful stop before in-flight streams are cut.
const shutdownTimeout = 5 * time.Second

// Logger defines the logging interface used by the server.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// CallRecorder counts completed RPCs. Satisfied by *metrics.Collector.
type CallRecorder interface {
	RPCHandled(method, code string)
}

type noopRecorder struct{}

func (noopRecorder) RPCHandled(string, string) {}

// Server wraps a grpc.Server with the BambuFarm service, the standard
// health service, keepalive and logging/recovery interceptors.
type Server struct {
	srv    *grpc.Server
	health *health.Server
	addr   string
	logger Logger
}

// NewServer creates a server for the given service.
//
// Parameters:
//   - cfg: Listen address, keepalive and message size settings
//   - svc: The BambuFarm implementation
//   - logger: Receives call and lifecycle logs (may be nil)
//   - recorder: Receives per-call status codes (may be nil)
func NewServer(cfg config.ServerConfig, svc BambuFarmServer, logger Logger, recorder CallRecorder) *Server {
	if logger == nil {
		logger = noopLogger{}
	}
	if recorder == nil {
		recorder = noopRecorder{}
	}

	keepaliveTime := time.Duration(cfg.Keepalive.Time) * time.Second
	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			loggingUnaryInterceptor(logger, recorder),
			recoveryUnaryInterceptor(logger),
		),
		grpc.ChainStreamInterceptor(
			loggingStreamInterceptor(logger, recorder),
			recoveryStreamInterceptor(logger),
		),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    keepaliveTime,
			Timeout: time.Duration(cfg.Keepalive.Timeout) * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             keepaliveTime / 2,
			PermitWithoutStream: true,
		}),
	}
	if cfg.MaxMessageSize > 0 {
		opts = append(opts,
			grpc.MaxRecvMsgSize(cfg.MaxMessageSize),
			grpc.MaxSendMsgSize(cfg.MaxMessageSize),
		)
	}

	s := &Server{
		srv:    grpc.NewServer(opts...),
		health: health.NewServer(),
		addr:   cfg.Address,
		logger: logger,
	}

	s.srv.RegisterService(&ServiceDesc, svc)
	healthpb.RegisterHealthServer(s.srv, s.health)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	return s
}

// GRPCServer returns the underlying gRPC server.
func (s *Server) GRPCServer() *grpc.Server {
	return s.srv
}

// ListenAndServe listens on the configured address and serves until Stop.
func (s *Server) ListenAndServe(ctx context.Context) error {
	lc := &net.ListenConfig{}
	lis, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("rpc: listening on %s: %w", s.addr, err)
	}
	return s.Serve(lis)
}

// Serve accepts connections on lis until Stop.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("gRPC server listening", "address", lis.Addr().String())
	if err := s.srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("rpc: serve: %w", err)
	}
	return nil
}

// Stop marks the service not serving and stops gracefully, forcing the
// stop if streams are still open after the shutdown timeout or ctx ends.
func (s *Server) Stop(ctx context.Context) {
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.srv.GracefulStop()
		close(stopped)
	}()

	timer := time.NewTimer(shutdownTimeout)
	defer timer.Stop()

	select {
	case <-stopped:
		s.logger.Info("gRPC server stopped")
	case <-timer.C:
		s.logger.Warn("gRPC server shutdown timed out, forcing stop")
		s.srv.Stop()
	case <-ctx.Done():
		s.srv.Stop()
	}
}

// loggingUnaryInterceptor logs each call and records its status code.
func loggingUnaryInterceptor(logger Logger, recorder CallRecorder) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		observeCall(logger, recorder, info.FullMethod, start, err)
		return resp, err
	}
}

// loggingStreamInterceptor logs each stream when it ends.
func loggingStreamInterceptor(logger Logger, recorder CallRecorder) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		logger.Debug("gRPC stream opened", "method", info.FullMethod)
		err := handler(srv, ss)
		observeCall(logger, recorder, info.FullMethod, start, err)
		return err
	}
}

func observeCall(logger Logger, recorder CallRecorder, method string, start time.Time, err error) {
	code := status.Code(err)
	recorder.RPCHandled(method, code.String())

	args := []any{"method", method, "code", code.String(), "duration", time.Since(start)}
	switch code {
	case codes.OK, codes.Canceled, codes.NotFound, codes.FailedPrecondition, codes.InvalidArgument:
		logger.Debug("gRPC call", args...)
	default:
		logger.Warn("gRPC call failed", append(args, "error", err)...)
	}
}

// recoveryUnaryInterceptor turns handler panics into Internal errors.
func recoveryUnaryInterceptor(logger Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("recovered from panic", "method", info.FullMethod, "panic", r)
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}

// recoveryStreamInterceptor turns stream handler panics into Internal errors.
func recoveryStreamInterceptor(logger Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("recovered from panic", "method", info.FullMethod, "panic", r)
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(srv, ss)
	}
}
