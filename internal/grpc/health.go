package grpc

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	pkglog "github.com/weiawesome/emergency-chat-relay/pkg/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported alongside the overall ("")
// status.
const ServiceName = "emergency.chat.Relay"

// Pinger reports message store reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the relay's gRPC server. Its only service is grpc.health.v1,
// whose status follows the message store.
type Server struct {
	grpc     *grpc.Server
	health   *health.Server
	pinger   Pinger
	interval time.Duration
	logger   zerolog.Logger

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewServer(pinger Pinger, interval time.Duration, logger zerolog.Logger) *Server {
	gs := grpc.NewServer(
		grpc.UnaryInterceptor(pkglog.UnaryServerInterceptor(logger)),
		grpc.StreamInterceptor(pkglog.StreamServerInterceptor(logger)),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	return &Server{
		grpc:     gs,
		health:   hs,
		pinger:   pinger,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// StartGRPCServer creates the server, runs a first store check and serves on
// addr in a background goroutine.
func StartGRPCServer(addr string, pinger Pinger, interval time.Duration, logger zerolog.Logger) (*Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s := NewServer(pinger, interval, logger)
	s.Serve(lis)

	logger.Info().Str("addr", addr).Msg("grpc server listening")
	return s, nil
}

// Serve starts the health monitor and serves lis in the background.
func (s *Server) Serve(lis net.Listener) {
	s.check(context.Background())
	go s.monitor()

	go func() {
		if err := s.grpc.Serve(lis); err != nil {
			s.logger.Error().Err(err).Msg("grpc server error")
		}
	}()
}

func (s *Server) monitor() {
	defer close(s.done)

	interval := s.interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.check(context.Background())
		}
	}
}

func (s *Server) check(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := s.pinger.Ping(ctx); err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		s.logger.Warn().Err(err).Msg("message store ping failed")
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Stop marks every service NOT_SERVING and drains in-flight RPCs.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		<-s.done
		s.health.Shutdown()
		s.grpc.GracefulStop()
	})
}
