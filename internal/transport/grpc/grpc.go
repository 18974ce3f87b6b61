package grpctransport

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/spf13/viper"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the name the worker reports under in the gRPC health protocol.
const ServiceName = "saga.order.v1.OrderSagaWorker"

// Pinger is a dependency whose reachability drives the serving status.
type Pinger interface {
	Ping(ctx context.Context) error
}

// GRPCTransport serves the gRPC health protocol for orchestrators.
type GRPCTransport struct {
	server   *grpc.Server
	listener net.Listener
	health   *health.Server
	deps     map[string]Pinger
	interval time.Duration
	stop     chan struct{}
}

// option is a function that configures the GRPCTransport.
type option func(*GRPCTransport)

// WithDependency adds a dependency checked by the health monitor.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithDependency(name string, dep Pinger) option {
	return func(g *GRPCTransport) {
		g.deps[name] = dep
	}
}

// WithCheckInterval sets how often dependencies are pinged.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithCheckInterval(interval time.Duration) option {
	return func(g *GRPCTransport) {
		g.interval = interval
	}
}

// WithListener replaces the TCP listener on server.grpc.port.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithListener(listener net.Listener) option {
	return func(g *GRPCTransport) {
		g.listener = listener
	}
}

// NewGRPCTransport creates a new GRPCTransport.
func NewGRPCTransport(opts ...option) *GRPCTransport {
	g := &GRPCTransport{
		server:   newGRPCServer(),
		health:   health.NewServer(),
		deps:     make(map[string]Pinger),
		interval: 10 * time.Second,
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}

	if g.listener == nil {
		listener, err := net.Listen("tcp", ":"+viper.GetString("server.grpc.port"))
		if err != nil {
			panic(err)
		}
		g.listener = listener
	}

	g.RegisterServices()

	return g
}

// Run starts the health monitor and the gRPC server.
func (g *GRPCTransport) Run() error {
	go g.monitor()
	slog.Info("Starting gRPC server", "address", g.listener.Addr().String())

	return g.server.Serve(g.listener)
}

// Shutdown gracefully shuts down the gRPC server.
func (g *GRPCTransport) Shutdown(ctx context.Context) error {
	close(g.stop)
	g.health.Shutdown()

	done := make(chan struct{})
	go func() {
		g.server.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		g.server.Stop()

		return ctx.Err()
	}
}

// RegisterServices registers the gRPC services.
func (g *GRPCTransport) RegisterServices() {
	healthpb.RegisterHealthServer(g.server, g.health)
	g.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	if viper.GetString("env") != "production" {
		reflection.Register(g.server)
	}
}

func (g *GRPCTransport) monitor() {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	g.check()
	for {
		select {
		case <-ticker.C:
			g.check()
		case <-g.stop:
			return
		}
	}
}

// check pings every dependency and flips the serving status of ServiceName.
func (g *GRPCTransport) check() {
	ctx, cancel := context.WithTimeout(context.Background(), g.interval)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	for name, dep := range g.deps {
		if err := dep.Ping(ctx); err != nil {
			slog.Warn("Dependency unavailable", "dependency", name, "error", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}

	g.health.SetServingStatus(ServiceName, status)
	g.health.SetServingStatus("", status)
}

// newGRPCServer creates a new gRPC server with default settings.
func newGRPCServer() *grpc.Server {
	keepaliveParams := keepalive.ServerParameters{
		MaxConnectionIdle: time.Duration(
			viper.GetInt("server.grpc.keepalive.max_connection_idle"),
		) * time.Minute,
		MaxConnectionAge: time.Duration(
			viper.GetInt("server.grpc.keepalive.max_connection_age"),
		) * time.Minute,
		MaxConnectionAgeGrace: time.Duration(
			viper.GetInt("server.grpc.keepalive.max_connection_age_grace"),
		) * time.Second,
		Time: time.Duration(
			viper.GetInt("server.grpc.keepalive.time"),
		) * time.Second,
		Timeout: time.Duration(
			viper.GetInt("server.grpc.keepalive.timeout"),
		) * time.Second,
	}

	keepalivePolicy := keepalive.EnforcementPolicy{
		MinTime: time.Duration(
			viper.GetInt("server.grpc.keepalive.min_time"),
		) * time.Second,
		PermitWithoutStream: viper.GetBool("server.grpc.keepalive.permit_without_stream"),
	}

	opts := []grpc.ServerOption{
		grpc.KeepaliveParams(keepaliveParams),
		grpc.KeepaliveEnforcementPolicy(keepalivePolicy),
	}

	return grpc.NewServer(opts...)
}
