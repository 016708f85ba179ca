// Package health exposes the standard gRPC health service. The pipeline is
// reported SERVING while frames keep arriving.
package health

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/banshee-data/markerpose/internal/monitoring"
	"github.com/banshee-data/markerpose/internal/pipeline"
	"github.com/banshee-data/markerpose/internal/timeutil"
)

// ServiceName is the health service name of the frame pipeline. The
// overall server status ("") mirrors it.
const ServiceName = "markerpose.Pipeline"

// Source reports pipeline progress. *pipeline.Driver implements it.
type Source interface {
	Stats() pipeline.Stats
}

// Config holds the health server settings.
type Config struct {
	ListenAddr string
	// StaleAfter is how long without a frame before the pipeline is
	// reported NOT_SERVING.
	StaleAfter time.Duration
	// PollInterval defaults to StaleAfter / 4.
	PollInterval time.Duration
	Clock        timeutil.Clock
}

// Server serves grpc.health.v1.Health for the pipeline.
type Server struct {
	cfg    Config
	source Source
	health *grpchealth.Server

	server   *grpc.Server
	listener net.Listener

	running atomic.Bool
	status  atomic.Int32
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewServer returns a server reporting NOT_SERVING until the first check.
func NewServer(cfg Config, src Source) *Server {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 2 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = cfg.StaleAfter / 4
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	s := &Server{
		cfg:    cfg,
		source: src,
		health: grpchealth.NewServer(),
		stopCh: make(chan struct{}),
	}
	s.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Status returns the last status published.
func (s *Server) Status() healthpb.HealthCheckResponse_ServingStatus {
	return healthpb.HealthCheckResponse_ServingStatus(s.status.Load())
}

// Check evaluates the pipeline now and publishes the result.
func (s *Server) Check() healthpb.HealthCheckResponse_ServingStatus {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	last := s.source.Stats().LastFrameAt
	if !last.IsZero() && s.cfg.Clock.Since(last) <= s.cfg.StaleAfter {
		st = healthpb.HealthCheckResponse_SERVING
	}
	if prev := s.Status(); prev != st {
		monitoring.Logf("pipeline health %s -> %s", prev, st)
	}
	s.setStatus(st)
	return st
}

func (s *Server) setStatus(st healthpb.HealthCheckResponse_ServingStatus) {
	s.status.Store(int32(st))
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// Start listens on ListenAddr, serves the health service and begins
// polling the source.
func (s *Server) Start() error {
	if s.running.Load() {
		return fmt.Errorf("health server already running")
	}
	lis, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = lis
	s.server = grpc.NewServer()
	healthpb.RegisterHealthServer(s.server, s.health)
	s.running.Store(true)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		if err := s.server.Serve(lis); err != nil && s.running.Load() {
			monitoring.Logf("health server error: %v", err)
		}
	}()
	go func() {
		defer s.wg.Done()
		s.watch()
	}()
	monitoring.Logf("health service listening on %s", lis.Addr())
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) watch() {
	ticker := s.cfg.Clock.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	s.Check()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C():
			s.Check()
		}
	}
}

// Stop marks every service NOT_SERVING and stops the server.
func (s *Server) Stop() {
	if !s.running.Load() {
		return
	}
	s.running.Store(false)
	close(s.stopCh)
	s.health.Shutdown()
	s.server.GracefulStop()
	s.wg.Wait()
}
