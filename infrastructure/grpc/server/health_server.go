package server

import (
	"chatto/contract"
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported next to the overall "" status.
const ServiceName = "chatto"

// Probe reports whether one dependency is usable.
type Probe func(ctx context.Context) error

// HealthServer publishes the grpc health protocol and refreshes it from its
// probes. It runs as a supervised worker.
type HealthServer struct {
	log      *slog.Logger
	health   *health.Server
	probes   map[string]Probe
	interval time.Duration
}

var _ contract.Worker = (*HealthServer)(nil)

func NewHealthServer(log *slog.Logger, interval time.Duration, probes map[string]Probe) *HealthServer {
	h := &HealthServer{
		log:      log,
		health:   health.NewServer(),
		probes:   probes,
		interval: interval,
	}
	h.set(grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	return h
}

func (h *HealthServer) Register(s *grpc.Server) {
	grpc_health_v1.RegisterHealthServer(s, h.health)
}

func (h *HealthServer) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			h.health.Shutdown()
			return nil
		case <-ticker.C:
			h.Check(ctx)
		}
	}
}

// Check runs every probe once. One failing probe marks the whole server NOT_SERVING.
func (h *HealthServer) Check(ctx context.Context) {
	status := grpc_health_v1.HealthCheckResponse_SERVING
	for name, probe := range h.probes {
		if err := probe(ctx); err != nil {
			h.log.Warn("Health probe failed", "probe", name, "error", err)
			status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
		}
	}
	h.set(status)
}

func (h *HealthServer) set(status grpc_health_v1.HealthCheckResponse_ServingStatus) {
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(ServiceName, status)
}
