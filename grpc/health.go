package grpc

import (
	"context"
	"fmt"
	"net"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the name health checks can ask about besides the empty server-wide name.
const ServiceName = "checkout.CheckoutService"

// HealthServer exposes the standard gRPC health protocol. The service is
// SERVING only while ready reports true.
type HealthServer struct {
	server *grpc.Server
	health *health.Server
	ready  func() bool
	logger *zap.Logger
}

func NewHealthServer(ready func() bool, logger *zap.Logger) *HealthServer {
	server := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(server, hs)

	s := &HealthServer{
		server: server,
		health: hs,
		ready:  ready,
		logger: logger,
	}
	s.Refresh()
	return s
}

// Refresh re-reads readiness and publishes it to watchers.
func (s *HealthServer) Refresh() {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if s.ready() {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

func (s *HealthServer) Serve(lis net.Listener) error {
	s.logger.Info("gRPC health server started", zap.String("addr", lis.Addr().String()))
	return s.server.Serve(lis)
}

// GracefulStop marks everything NOT_SERVING before draining connections.
func (s *HealthServer) GracefulStop() {
	s.health.Shutdown()
	s.server.GracefulStop()
}

// HealthClient checks a checkout service's health endpoint. Every Check goes
// to the server; a failed check is reported, never short-circuited.
type HealthClient struct {
	conn   *grpc.ClientConn
	client healthpb.HealthClient
	logger *zap.Logger
}

func NewHealthClient(address string, logger *zap.Logger, opts ...grpc.DialOption) (*HealthClient, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}, opts...)

	conn, err := grpc.NewClient(address, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to checkout service: %w", err)
	}

	return &HealthClient{
		conn:   conn,
		client: healthpb.NewHealthClient(conn),
		logger: logger,
	}, nil
}

// Check returns true when the named service reports SERVING.
func (hc *HealthClient) Check(ctx context.Context, service string) (bool, error) {
	resp, err := hc.client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		hc.logger.Warn("Health check failed", zap.String("service", service), zap.Error(err))
		return false, err
	}

	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
}

func (hc *HealthClient) Close() error {
	return hc.conn.Close()
}
