package rpc

import (
	"context"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/banshee-data/triage.report/internal/monitoring"
	"github.com/banshee-data/triage.report/internal/serving"
)

const maxMsgSize = 1 << 20 // 1 MB

var logf = monitoring.Component("rpc")

// NewServer returns a gRPC server with the RiskScore and health services
// registered for handle.
func NewServer(handle *serving.Handle) *grpc.Server {
	srv := grpc.NewServer(
		grpc.MaxRecvMsgSize(maxMsgSize),
		grpc.MaxSendMsgSize(maxMsgSize),
		grpc.ChainUnaryInterceptor(loggingInterceptor),
	)
	srv.RegisterService(&ServiceDesc, NewService(handle))

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return srv
}

// Serve runs srv on lis until ctx is cancelled, then stops gracefully.
func Serve(ctx context.Context, srv *grpc.Server, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		logf("gRPC server listening on %s", lis.Addr())
		errCh <- srv.Serve(lis)
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	stopped := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		srv.Stop()
	}
	logf("gRPC server stopped")
	return nil
}

func loggingInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	logf("%s %s %vms", info.FullMethod, status.Code(err),
		float64(time.Since(start).Nanoseconds())/1e6)
	return resp, err
}
