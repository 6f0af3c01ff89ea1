// ABOUTME: gRPC health service reporting whether the game server is reachable
// ABOUTME: Service "minecraft" is SERVING while the liveness tracker reports online

package gateway

import (
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
)

// HealthService is the gRPC health service name for the game server.
const HealthService = "minecraft"

// newGRPCServer creates a gRPC server exposing only the health service.
func newGRPCServer(hs *health.Server) *grpc.Server {
	server := grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    15 * time.Second,
			Timeout: 5 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	)
	healthpb.RegisterHealthServer(server, hs)
	return server
}

// setServing mirrors the liveness state into the health service. The overall
// "" service stays SERVING while the bridge process is up.
func (g *Gateway) setServing(online bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if online {
		status = healthpb.HealthCheckResponse_SERVING
	}
	g.health.SetServingStatus(HealthService, status)
}
