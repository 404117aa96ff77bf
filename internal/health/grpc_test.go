package health_test

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/jmerrifield20/reviewledger/internal/health"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
)

func startServer(t *testing.T, srv *health.Server) grpc_health_v1.HealthClient {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go srv.Serve(lis) //nolint:errcheck
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient(lis.Addr().String(),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return grpc_health_v1.NewHealthClient(conn)
}

func check(t *testing.T, c grpc_health_v1.HealthClient) grpc_health_v1.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := c.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{Service: health.ServiceName})
	if err != nil {
		t.Fatalf("Check(): %v", err)
	}
	return resp.Status
}

func TestHealth_notServingUntilRefresh(t *testing.T) {
	srv := health.NewServer(zap.NewNop())
	c := startServer(t, srv)

	if got := check(t, c); got != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
		t.Errorf("before Refresh: got %v, want NOT_SERVING", got)
	}
	srv.Refresh(context.Background())
	if got := check(t, c); got != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Errorf("after Refresh: got %v, want SERVING", got)
	}
}

func TestHealth_failingProbe(t *testing.T) {
	srv := health.NewServer(zap.NewNop())
	srv.AddProbe("archive", func(context.Context) error { return errors.New("db unreachable") })
	c := startServer(t, srv)

	srv.Refresh(context.Background())
	if got := check(t, c); got != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
		t.Errorf("failing probe: got %v, want NOT_SERVING", got)
	}
}
