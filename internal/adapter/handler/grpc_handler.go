package handler

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rl1809/sweet-shop/internal/port"
)

const InventoryServiceName = "sweetshop.Inventory"

// HealthReporter publishes the store's reachability over grpc.health.v1.
type HealthReporter struct {
	server   *health.Server
	store    port.Pinger
	interval time.Duration
	logger   *zap.Logger
}

func NewHealthReporter(store port.Pinger, interval time.Duration, logger *zap.Logger) *HealthReporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	server := health.NewServer()
	server.SetServingStatus(InventoryServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &HealthReporter{server: server, store: store, interval: interval, logger: logger}
}

func (h *HealthReporter) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.server)
}

// Probe pings the store once and records the result.
func (h *HealthReporter) Probe(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := h.store.Ping(ctx); err != nil {
		h.logger.Warn("store ping failed", zap.Error(err))
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.server.SetServingStatus(InventoryServiceName, status)
	h.server.SetServingStatus("", status)
	return status
}

// Run probes until ctx is done, then marks every service NOT_SERVING.
func (h *HealthReporter) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.Probe(ctx)
	for {
		select {
		case <-ctx.Done():
			h.server.Shutdown()
			return
		case <-ticker.C:
			h.Probe(ctx)
		}
	}
}
