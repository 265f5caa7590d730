// Package healthsvc exposes grpc.health.v1.Health for process liveness
// probing. Inverted from the ancestor's internal/grpcclient health-check
// *client* logic: there is no remote inference microservice in this
// domain, so the health surface concern is repointed at the daemon
// itself, serving rather than dialing it.
package healthsvc

import (
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/murmurhq/murmur/internal/pipeline"
)

// Server wraps a grpc.Server exposing only the standard health service,
// reporting SERVING once a Transcriber is loaded.
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	pipe       *pipeline.Pipeline
}

// New constructs a Server. The overall status starts at the grpc health
// server's default (SERVING) and is recomputed from the Pipeline when Serve
// is called.
func New(pipe *pipeline.Pipeline) *Server {
	h := health.NewServer()
	gs := grpc.NewServer()
	grpc_health_v1.RegisterHealthServer(gs, h)

	return &Server{grpcServer: gs, health: h, pipe: pipe}
}

// Serve blocks accepting connections on lis. Call in its own goroutine.
// The overall service name ("") reflects SERVING/NOT_SERVING based on
// whether a Transcriber is currently loaded.
func (s *Server) Serve(lis net.Listener) error {
	s.refreshStatus()
	return s.grpcServer.Serve(lis)
}

// Stop gracefully stops the gRPC server.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
}

// RefreshStatus recomputes the reported health from the current Pipeline
// state. Callers invoke this after LoadModel, LoadFirstAvailable, or
// Shutdown; model load/unload is rare enough that push-on-change beats a
// polling watcher here.
func (s *Server) RefreshStatus() {
	s.refreshStatus()
}

func (s *Server) refreshStatus() {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if s.pipe.CurrentModelName() != "" {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
}
