// Package health serves the standard gRPC health protocol for the storefront
// so orchestrators can probe it without going through the HTTP API.
package health

import (
	"context"
	"net"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

const requestIDKey = "x-request-id"

type Server struct {
	grpc   *grpc.Server
	health *grpchealth.Server
	log    *zap.Logger
}

func New(log *zap.Logger) *Server {
	log = log.Named("health")
	gs := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(loggingInterceptor(log)),
	)
	hs := grpchealth.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	// Enable reflection for grpcurl/grpcui
	reflection.Register(gs)

	return &Server{grpc: gs, health: hs, log: log}
}

// Serve blocks until Stop is called or lis fails.
func (s *Server) Serve(lis net.Listener) error {
	s.log.Info("health server listening", zap.String("addr", lis.Addr().String()))
	return s.grpc.Serve(lis)
}

// SetServing reports service as serving or not. The empty name is the
// overall server status.
func (s *Server) SetServing(service string, serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(service, st)
}

// Stop marks every service not serving, then drains in-flight checks.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

// WatchBreaker publishes service as not serving while state reports an open
// breaker. It returns when ctx is done.
func (s *Server) WatchBreaker(ctx context.Context, service string, state func() string, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	last := ""
	for {
		current := state()
		if current != last {
			s.SetServing(service, current != "open")
			if last != "" {
				s.log.Info("dependency state changed",
					zap.String("service", service),
					zap.String("from", last),
					zap.String("to", current))
			}
			last = current
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func loggingInterceptor(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("duration", time.Since(start)),
		}
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if ids := md.Get(requestIDKey); len(ids) > 0 {
				fields = append(fields, zap.String("request_id", ids[0]))
			}
		}
		log.Debug("grpc request", fields...)
		return resp, err
	}
}
