package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	_ "github.com/corray333/backend-labs/saga/docs"
	"github.com/corray333/backend-labs/saga/internal/service/models/event"
	"github.com/corray333/backend-labs/saga/internal/service/models/taskstate"
	"github.com/corray333/backend-labs/saga/internal/service/services/sagasvc"
	getorder "github.com/corray333/backend-labs/saga/internal/transport/http/get_order"
	gettask "github.com/corray333/backend-labs/saga/internal/transport/http/get_task"
	"github.com/corray333/backend-labs/saga/internal/transport/http/health"
	startorder "github.com/corray333/backend-labs/saga/internal/transport/http/start_order"
	"github.com/corray333/backend-labs/saga/pkg/http/middleware/trace"
	"github.com/corray333/backend-labs/saga/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger/v2"
)

type service interface {
	StartOrder(ctx context.Context, req sagasvc.StartOrderRequest) (event.Message, error)
	GetOrderHistory(ctx context.Context, id uuid.UUID) (*sagasvc.OrderHistory, error)
}

type taskStateRepository interface {
	Get(ctx context.Context, taskID string) (*taskstate.TaskState, error)
}

type HTTPTransport struct {
	server  *http.Server
	router  *chi.Mux
	service service
	tasks   taskStateRepository
	deps    map[string]health.Pinger
}

// option is a function that configures the HTTPTransport.
type option func(*HTTPTransport)

// WithHealthCheck adds a dependency to GET /healthz.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithHealthCheck(name string, dep health.Pinger) option {
	return func(h *HTTPTransport) {
		h.deps[name] = dep
	}
}

func NewHTTPTransport(service service, tasks taskStateRepository, opts ...option) *HTTPTransport {
	router := newRouter()
	server := newServer(router)
	h := &HTTPTransport{
		server:  server,
		router:  router,
		service: service,
		tasks:   tasks,
		deps:    make(map[string]health.Pinger),
	}
	for _, opt := range opts {
		opt(h)
	}

	return h
}

func (h *HTTPTransport) Run() error {
	slog.Info("Starting HTTP server", "address", h.server.Addr)

	return h.server.ListenAndServe()
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (h *HTTPTransport) Shutdown(ctx context.Context) error {
	return h.server.Shutdown(ctx)
}

// Handler exposes the router.
func (h *HTTPTransport) Handler() http.Handler {
	return h.router
}

// RegisterRoutes registers the routes for the HTTPTransport.
func (h *HTTPTransport) RegisterRoutes() {
	h.router.Get("/healthz", h.health)
	h.router.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	h.router.Route("/api/v1", func(r chi.Router) {
		r.Use(trace.NewTraceMiddleware)
		r.Post("/orders", h.startOrder)
		r.Get("/orders/{id}", h.getOrder)
		r.Get("/tasks/{id}", h.getTask)
	})
}

func (h *HTTPTransport) startOrder(w http.ResponseWriter, r *http.Request) {
	startorder.StartOrder(w, r, h.service)
}

func (h *HTTPTransport) getOrder(w http.ResponseWriter, r *http.Request) {
	getorder.GetOrder(w, r, h.service)
}

func (h *HTTPTransport) getTask(w http.ResponseWriter, r *http.Request) {
	gettask.GetTask(w, r, h.tasks)
}

func (h *HTTPTransport) health(w http.ResponseWriter, r *http.Request) {
	health.Health(w, r, h.deps)
}

func newRouter() *chi.Mux {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(logger.NewLoggerMiddleware(slog.Default()))

	allowedOrigins := viper.GetStringSlice("server.http.cors.allowed_origins")
	allowedMethods := viper.GetStringSlice("server.http.cors.allowed_methods")
	allowedHeaders := viper.GetStringSlice("server.http.cors.allowed_headers")
	exposedHeaders := viper.GetStringSlice("server.http.cors.exposed_headers")
	allowCredentials := viper.GetBool("server.http.cors.allow_credentials")
	maxAge := viper.GetInt("server.http.cors.max_age")

	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   allowedMethods,
		AllowedHeaders:   allowedHeaders,
		ExposedHeaders:   exposedHeaders,
		AllowCredentials: allowCredentials,
		MaxAge:           maxAge,
	})

	router.Use(c.Handler)

	return router
}

func newServer(router http.Handler) *http.Server {
	return &http.Server{
		Addr:              "0.0.0.0:" + viper.GetString("server.http.port"),
		Handler:           router,
		ReadHeaderTimeout: viper.GetDuration("server.http.read_header_timeout"),
	}
}
