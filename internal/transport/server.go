package transport

import (
	"context"
	"log/slog"
	"net"
	"time"

	"replkv/internal/configuration/properties"
	"replkv/internal/metrics"

	"google.golang.org/grpc"
)

type Server struct {
	network    string
	address    string
	GRPCServer *grpc.Server
	listener   net.Listener
}

func NewServer(cfg *properties.TransportConfigProperties, node Node) *Server {
	timeout := cfg.Timeout()
	if timeout <= 0 {
		slog.Warn("transport timeout must be positive, using 1s")
		timeout = time.Second
	}
	network := cfg.Network
	if network == "" {
		network = "tcp"
	}

	var opts []grpc.ServerOption
	opts = append(opts, grpc.ChainUnaryInterceptor(
		metrics.UnaryServerInterceptor(),
		timeoutInterceptor(timeout),
	))
	if cfg.MaxConcurrentStreams > 0 {
		opts = append(opts, grpc.MaxConcurrentStreams(cfg.MaxConcurrentStreams))
	}

	s := grpc.NewServer(opts...)
	RegisterKVServer(s, NewKVHandler(node))

	return &Server{
		network:    network,
		address:    cfg.Address,
		GRPCServer: s,
	}
}

func (s *Server) Start() error {
	lis, err := net.Listen(s.network, s.address)
	if err != nil {
		return err
	}
	s.listener = lis
	slog.Info("transport listening for clients", "addr", lis.Addr().String())

	go func() {
		if err := s.GRPCServer.Serve(lis); err != nil {
			slog.Error("failed to serve client listener", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address once Start has succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) Stop() {
	s.GRPCServer.GracefulStop()
	slog.Info("transport stopped")
}

func timeoutInterceptor(d time.Duration) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		return handler(ctx, req)
	}
}
