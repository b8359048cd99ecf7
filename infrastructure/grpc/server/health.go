package server

import (
	"log/slog"

	grpc3 "github.com/mama165/sdk-go/grpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// HubService is the name orchestrators probe for the live delivery hub.
const HubService = "profilebook.Hub"

// HealthServer reports the hub as serving once listeners are up, and as not
// serving while the process drains connections.
type HealthServer struct {
	*health.Server
	log *slog.Logger
}

func NewHealthServer(log *slog.Logger) *HealthServer {
	h := &HealthServer{Server: health.NewServer(), log: log}
	h.SetServingStatus(HubService, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	return h
}

func (h *HealthServer) MarkServing() {
	h.log.Debug("Health status changed", "service", HubService, "status", "SERVING")
	h.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	h.SetServingStatus(HubService, grpc_health_v1.HealthCheckResponse_SERVING)
}

func (h *HealthServer) MarkDraining() {
	h.log.Info("Health status changed", "service", HubService, "status", "NOT_SERVING")
	h.SetServingStatus(HubService, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
}

// NewOpsServer builds the gRPC listener used by orchestrators.
func NewOpsServer(log *slog.Logger, h *HealthServer) *grpc.Server {
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(grpc3.UnaryLoggingInterceptor(log)))
	grpc_health_v1.RegisterHealthServer(s, h)
	reflection.Register(s)
	return s
}
