package grpctransport

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

type flakyPinger struct {
	down atomic.Bool
}

func (p *flakyPinger) Ping(context.Context) error {
	if p.down.Load() {
		return errors.New("connection refused")
	}

	return nil
}

func newHealthClient(t *testing.T, opts ...option) (healthpb.HealthClient, *GRPCTransport) {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	g := NewGRPCTransport(append(opts, WithListener(lis), WithCheckInterval(20*time.Millisecond))...)
	go func() { _ = g.Run() }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = g.Shutdown(ctx)
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return healthpb.NewHealthClient(conn), g
}

func servingStatus(t *testing.T, client healthpb.HealthClient) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()

	resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)

	return resp.GetStatus()
}

func TestHealth_ServingWhenDependenciesUp(t *testing.T) {
	client, _ := newHealthClient(t, WithDependency("postgres", &flakyPinger{}))

	assert.Eventually(t, func() bool {
		return servingStatus(t, client) == healthpb.HealthCheckResponse_SERVING
	}, time.Second, 10*time.Millisecond)
}

func TestHealth_FollowsDependency(t *testing.T) {
	dep := &flakyPinger{}
	client, _ := newHealthClient(t, WithDependency("rabbitmq", dep))

	assert.Eventually(t, func() bool {
		return servingStatus(t, client) == healthpb.HealthCheckResponse_SERVING
	}, time.Second, 10*time.Millisecond)

	dep.down.Store(true)
	assert.Eventually(t, func() bool {
		return servingStatus(t, client) == healthpb.HealthCheckResponse_NOT_SERVING
	}, time.Second, 10*time.Millisecond)
}
