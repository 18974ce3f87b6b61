package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/corray333/backend-labs/saga/internal/dal/postgres"
	"github.com/corray333/backend-labs/saga/internal/dal/rabbitmq"
	"github.com/corray333/backend-labs/saga/internal/dal/redis"
	orderrepo "github.com/corray333/backend-labs/saga/internal/dal/repositories/order/postgres"
	taskstaterepo "github.com/corray333/backend-labs/saga/internal/dal/repositories/taskstate/redis"
	"github.com/corray333/backend-labs/saga/internal/otel"
	"github.com/corray333/backend-labs/saga/internal/service/dispatcher"
	"github.com/corray333/backend-labs/saga/internal/service/registry"
	"github.com/corray333/backend-labs/saga/internal/service/router"
	"github.com/corray333/backend-labs/saga/internal/service/services/sagasvc"
	"github.com/corray333/backend-labs/saga/internal/transport/consumer"
	grpctransport "github.com/corray333/backend-labs/saga/internal/transport/grpc"
	httptransport "github.com/corray333/backend-labs/saga/internal/transport/http"
	"github.com/corray333/backend-labs/saga/internal/worker/stalled"
	"github.com/spf13/viper"
)

// App represents the application.
type App struct {
	sagaSvc        *sagasvc.SagaService
	consumerTransp *consumer.Consumer
	httpTransport  *httptransport.HTTPTransport
	grpcTransport  *grpctransport.GRPCTransport
	stalledWorker  *stalled.Worker
	rabbitMqClient *rabbitmq.Client
	postgresClient *postgres.Client
	redisClient    *redis.Client
	otelController *otel.OtelController
}

// MustNewApp creates a new application.
func MustNewApp() *App {
	otelController := otel.MustInitOtel()
	postgresClient := postgres.MustNewClient()
	redisClient := redis.MustNewClient()
	rabbitMqClient := rabbitmq.MustNewClient()

	// Routing table shared by the producer side and the handler registry
	eventRouter := router.New()
	eventDispatcher := dispatcher.New(eventRouter, rabbitMqClient)
	if err := eventDispatcher.DeclareQueues(rabbitMqClient); err != nil {
		panic(err)
	}

	sagaSvc := sagasvc.MustNewSagaService(
		sagasvc.WithPostgresClient(postgresClient),
		sagasvc.WithDispatcher(eventDispatcher),
	)

	handlers := sagaSvc.Register(registry.New(eventRouter))
	if err := handlers.Validate(); err != nil {
		panic("invalid saga handler registry: " + err.Error())
	}

	taskStates := taskstaterepo.NewRedisTaskStateRepository(
		redisClient.Cmdable(),
		taskstaterepo.WithTTL(viper.GetDuration("redis.task_ttl")),
	)

	consumerTransp := consumer.NewConsumer(rabbitMqClient, handlers,
		consumer.WithMaxRetries(viper.GetInt("rabbitmq.max_retries")),
		consumer.WithConcurrency(viper.GetInt("consumer.concurrency")),
		consumer.WithConsumerTag(viper.GetString("consumer.tag")),
		consumer.WithTaskStateRepository(taskStates),
	)

	httpTransport := httptransport.NewHTTPTransport(sagaSvc, taskStates,
		httptransport.WithHealthCheck("postgres", postgresClient),
		httptransport.WithHealthCheck("redis", redisClient),
		httptransport.WithHealthCheck("rabbitmq", rabbitMqClient),
	)
	httpTransport.RegisterRoutes()

	grpcTransport := grpctransport.NewGRPCTransport(
		grpctransport.WithDependency("postgres", postgresClient),
		grpctransport.WithDependency("rabbitmq", rabbitMqClient),
	)

	stalledWorker := newStalledWorker(postgresClient, sagaSvc)

	return &App{
		sagaSvc:        sagaSvc,
		consumerTransp: consumerTransp,
		httpTransport:  httpTransport,
		grpcTransport:  grpcTransport,
		stalledWorker:  stalledWorker,
		rabbitMqClient: rabbitMqClient,
		postgresClient: postgresClient,
		redisClient:    redisClient,
		otelController: otelController,
	}
}

// newStalledWorker returns nil when worker.stalled.enabled is false.
func newStalledWorker(postgresClient *postgres.Client, sagaSvc *sagasvc.SagaService) *stalled.Worker {
	if !viper.GetBool("worker.stalled.enabled") {
		return nil
	}

	orders := orderrepo.NewPostgresOrderRepository(postgresClient.DB())
	if viper.GetBool("worker.stalled.redrive") {
		return stalled.NewWorker(orders, stalled.WithRedriver(sagaSvc))
	}

	return stalled.NewWorker(orders)
}

// Run starts the application.
// Tracks interrupt signal to gracefully shut down the application.
func (a *App) Run() {
	// Create a channel to receive OS signals
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		slog.Info("Starting consumer")
		if err := a.consumerTransp.Run(ctx); err != nil {
			slog.Error("Consumer error", "error", err)
		}
	}()

	go func() {
		if err := a.httpTransport.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	go func() {
		if err := a.grpcTransport.Run(); err != nil {
			slog.Error("gRPC server error", "error", err)
		}
	}()

	if a.stalledWorker != nil {
		go func() {
			slog.Info("Starting stalled saga worker")
			a.stalledWorker.Start(ctx)
		}()
	}

	<-stop
	slog.Info("Shutdown signal received")
	cancel()

	a.gracefulShutdown()
}

// gracefulShutdown stops intake first, then in-flight work, then the connections it depended on.
func (a *App) gracefulShutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if a.stalledWorker != nil {
		a.stalledWorker.Stop()
		slog.Info("Stalled saga worker stopped gracefully")
	}

	if err := a.httpTransport.Shutdown(ctx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped gracefully")
	}

	if err := a.consumerTransp.Shutdown(); err != nil {
		slog.Error("Consumer shutdown error", "error", err)
	} else {
		slog.Info("Consumer stopped gracefully")
	}

	if err := a.grpcTransport.Shutdown(ctx); err != nil {
		slog.Error("gRPC server shutdown error", "error", err)
	} else {
		slog.Info("gRPC server stopped gracefully")
	}

	if err := a.rabbitMqClient.Close(); err != nil {
		slog.Error("RabbitMQ connection close error", "error", err)
	} else {
		slog.Info("RabbitMQ connection closed gracefully")
	}

	if err := a.redisClient.Close(); err != nil {
		slog.Error("Redis connection close error", "error", err)
	} else {
		slog.Info("Redis connection closed gracefully")
	}

	a.postgresClient.Close()
	slog.Info("Database connection closed gracefully")

	if err := a.otelController.Shutdown(ctx); err != nil {
		slog.Error("Otel trace provider connection close error", "error", err)
	} else {
		slog.Info("Otel trace provider connection closed gracefully")
	}

	slog.Info("Application shutdown complete")
}
