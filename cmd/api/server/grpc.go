package server

import (
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	grpcadapter "social-graph-service/internal/adapter/grpc"
	"social-graph-service/internal/adapter/grpc/middleware"
	"social-graph-service/pkg/logger"
)

// SetupGRPC creates and configures the gRPC server
func SetupGRPC(followGraph grpcadapter.FollowGraphServer, l *zap.Logger, rateLimiter *middleware.RateLimiter) *grpc.Server {
	// Request ID first so every later interceptor logs with it
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			logger.RequestIDInterceptor(),
			logger.UnaryLoggingInterceptor(l),
			rateLimiter.UnaryInterceptor(),
		),
	)
	grpcadapter.RegisterFollowGraphServer(grpcServer, followGraph)

	healthServer := health.NewServer()
	healthServer.SetServingStatus(grpcadapter.FollowGraphServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	reflection.Register(grpcServer)

	return grpcServer
}
