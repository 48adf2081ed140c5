package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"

	sdkgrpc "github.com/mama165/sdk-go/grpc"
)

func serve(t *testing.T, h *HealthServer) grpc_health_v1.HealthClient {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := grpc.NewServer(grpc.ChainUnaryInterceptor(sdkgrpc.UnaryLoggingInterceptor(log)))
	h.Register(s)
	go func() { _ = s.Serve(listener) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient(listener.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return grpc_health_v1.NewHealthClient(conn)
}

func status(t *testing.T, client grpc_health_v1.HealthClient, service string) grpc_health_v1.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := client.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestHealthServer_Check(t *testing.T) {
	req := require.New(t)
	var broken atomic.Bool
	h := NewHealthServer(logs.GetLoggerFromLevel(slog.LevelDebug), time.Hour, map[string]Probe{
		"store": func(context.Context) error {
			if broken.Load() {
				return errors.New("store closed")
			}
			return nil
		},
	})
	client := serve(t, h)

	// Given a server that has not probed yet
	req.Equal(grpc_health_v1.HealthCheckResponse_NOT_SERVING, status(t, client, ServiceName))

	// When every probe passes
	h.Check(context.Background())

	// Then both the named and the overall service are serving
	req.Equal(grpc_health_v1.HealthCheckResponse_SERVING, status(t, client, ServiceName))
	req.Equal(grpc_health_v1.HealthCheckResponse_SERVING, status(t, client, ""))

	t.Run("should stop serving when a probe fails", func(t *testing.T) {
		broken.Store(true)
		h.Check(context.Background())
		require.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, status(t, client, ServiceName))
	})
}

func TestHealthServer_Run(t *testing.T) {
	h := NewHealthServer(logs.GetLoggerFromLevel(slog.LevelDebug), 10*time.Millisecond, nil)
	client := serve(t, h)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	require.Eventually(t, func() bool {
		return status(t, client, ServiceName) == grpc_health_v1.HealthCheckResponse_SERVING
	}, 2*time.Second, 10*time.Millisecond)

	// When the worker stops, the server reports NOT_SERVING
	cancel()
	require.NoError(t, <-done)
	require.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, status(t, client, ServiceName))
}
