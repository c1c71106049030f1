package server

import (
	"context"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// HealthServer is the daemon's gRPC side: the standard health service (for
// orchestrator probes) plus reflection for grpcurl. Its serving status follows
// the database health check.
type HealthServer struct {
	srv    *grpc.Server
	health *health.Server
	check  HealthChecker
	logger *slog.Logger
}

func NewHealthServer(check HealthChecker, logger *slog.Logger) *HealthServer {
	if logger == nil {
		logger = slog.Default()
	}
	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	reflection.Register(srv)
	return &HealthServer{srv: srv, health: hs, check: check, logger: logger}
}

// Serve blocks until the listener fails or Stop is called.
func (s *HealthServer) Serve(lis net.Listener) error {
	s.logger.Info("grpc health serving", "addr", lis.Addr().String())
	return s.srv.Serve(lis)
}

// Watch re-checks the database every interval until ctx is done.
func (s *HealthServer) Watch(ctx context.Context, interval time.Duration) {
	if s.check == nil {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Refresh(ctx)
		}
	}
}

// Refresh runs one check and updates the serving status.
func (s *HealthServer) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if s.check != nil {
		if err := s.check.HealthCheck(ctx, 2*time.Second); err != nil {
			s.logger.Warn("grpc.health.not_serving", "error", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.health.SetServingStatus("", status)
	return status
}

// Stop marks the server not serving and stops gracefully.
func (s *HealthServer) Stop() {
	s.health.Shutdown()
	s.srv.GracefulStop()
}
