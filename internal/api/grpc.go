package api

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthService is the name reported by the gRPC health service.
const HealthService = "timeline.Timeline"

// GRPCServer is a gRPC server exposing the standard health service.
type GRPCServer struct {
	*grpc.Server
	health *health.Server
}

// NewGRPCServer creates the server and marks the timeline as serving.
func NewGRPCServer(opts ...grpc.ServerOption) *GRPCServer {
	s := grpc.NewServer(opts...)
	h := health.NewServer()
	healthpb.RegisterHealthServer(s, h)
	h.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	h.SetServingStatus(HealthService, healthpb.HealthCheckResponse_SERVING)
	return &GRPCServer{Server: s, health: h}
}

// Shutdown reports NOT_SERVING and stops the server gracefully.
func (g *GRPCServer) Shutdown() {
	g.health.Shutdown()
	g.GracefulStop()
}
