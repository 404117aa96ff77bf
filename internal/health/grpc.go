// Package health serves the standard grpc.health.v1 protocol so that
// orchestrators can probe reviewd without speaking its HTTP API.
package health

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service name reported for the review API.
const ServiceName = "reviewledger.ReviewService"

// Probe reports whether a dependency is usable.
type Probe func(ctx context.Context) error

// Server wraps a gRPC server exposing only the health service.
type Server struct {
	grpc   *grpc.Server
	health *grpchealth.Server
	probes map[string]Probe
	logger *zap.Logger
}

// NewServer creates a health Server. Every service starts NOT_SERVING.
func NewServer(logger *zap.Logger) *Server {
	gs := grpc.NewServer(grpc.ChainUnaryInterceptor(loggingInterceptor(logger)))
	hs := grpchealth.NewServer()
	grpc_health_v1.RegisterHealthServer(gs, hs)
	reflection.Register(gs)

	hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	return &Server{grpc: gs, health: hs, probes: make(map[string]Probe), logger: logger}
}

// AddProbe registers a dependency check run by Refresh. Any failing probe
// marks the service NOT_SERVING.
func (s *Server) AddProbe(name string, p Probe) {
	s.probes[name] = p
}

// Refresh runs all probes and updates the serving status.
func (s *Server) Refresh(ctx context.Context) {
	status := grpc_health_v1.HealthCheckResponse_SERVING
	for name, p := range s.probes {
		if err := p(ctx); err != nil {
			s.logger.Warn("health probe failed", zap.String("probe", name), zap.Error(err))
			status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
		}
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Watch calls Refresh every interval until ctx is cancelled.
func (s *Server) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, interval/2)
			s.Refresh(pctx)
			cancel()
		case <-ctx.Done():
			return
		}
	}
}

// Serve accepts connections on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	if err := s.grpc.Serve(lis); err != nil {
		return fmt.Errorf("grpc serve: %w", err)
	}
	return nil
}

// Stop marks every service NOT_SERVING and drains in-flight calls.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

func loggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Debug("grpc",
			zap.String("method", info.FullMethod),
			zap.Duration("latency", time.Since(start)),
			zap.Error(err),
		)
		return resp, err
	}
}
