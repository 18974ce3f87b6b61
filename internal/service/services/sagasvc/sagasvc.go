package sagasvc

import (
	"context"
	"errors"

	"github.com/corray333/backend-labs/saga/internal/dal/interfaces/iledgerrepo"
	"github.com/corray333/backend-labs/saga/internal/dal/interfaces/iorderrepo"
	"github.com/corray333/backend-labs/saga/internal/dal/postgres"
	"github.com/corray333/backend-labs/saga/internal/dal/uow"
	"github.com/corray333/backend-labs/saga/internal/service/models/event"
	"github.com/corray333/backend-labs/saga/internal/service/registry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrPreconditionFailed means the order is not in the state the step requires.
	ErrPreconditionFailed = errors.New("saga step precondition failed")
	// ErrInvalidPayload means the message lacks data the step needs. Redelivery cannot fix it.
	ErrInvalidPayload = errors.New("invalid saga payload")
	// ErrInvalidRequest is returned by StartOrder for unusable input.
	ErrInvalidRequest = errors.New("invalid order request")
	// ErrRedriveUnavailable means the ledger holds no dispatched payload to republish.
	ErrRedriveUnavailable = errors.New("no recorded payload to redrive")
)

// SagaService runs the order-domain steps of the create order saga.
type SagaService struct {
	pgClient   *postgres.Client
	uowFactory func() unitOfWork
	dispatcher dispatcher
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
	steps      map[event.Name]step
}

type unitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	OrderRepository() iorderrepo.IOrderRepository
	LedgerRepository() iledgerrepo.ILedgerRepository
}

type dispatcher interface {
	Dispatch(ctx context.Context, name event.Name, payload event.Payload) (event.Message, error)
}

func (s *SagaService) newUOW() unitOfWork {
	if s.uowFactory != nil {
		return s.uowFactory()
	}

	return uow.NewUnitOfWork(s.pgClient)
}

// option is a function that configures the SagaService.
type option func(*SagaService)

// MustNewSagaService creates a new SagaService.
func MustNewSagaService(opts ...option) *SagaService {
	s := &SagaService{
		tracer:     otel.Tracer("sagasvc"),
		propagator: otel.GetTextMapPropagator(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.pgClient == nil && s.uowFactory == nil {
		panic("sagasvc: postgres client or unit of work factory is required")
	}
	if s.dispatcher == nil {
		panic("sagasvc: dispatcher is required")
	}

	s.steps = s.buildSteps()

	return s
}

// WithPostgresClient sets the Postgres client for the SagaService.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithPostgresClient(pgClient *postgres.Client) option {
	return func(s *SagaService) {
		s.pgClient = pgClient
	}
}

// WithUnitOfWorkFactory overrides how units of work are created.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithUnitOfWorkFactory(factory func() unitOfWork) option {
	return func(s *SagaService) {
		s.uowFactory = factory
	}
}

// WithDispatcher sets the event dispatcher.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithDispatcher(d dispatcher) option {
	return func(s *SagaService) {
		s.dispatcher = d
	}
}

// WithTracer sets the tracer for step spans.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithTracer(t trace.Tracer) option {
	return func(s *SagaService) {
		s.tracer = t
	}
}

// WithPropagator sets the propagator used to extract the inbound trace carrier.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithPropagator(p propagation.TextMapPropagator) option {
	return func(s *SagaService) {
		s.propagator = p
	}
}

// Register binds every step handler together with the events it may dispatch.
func (s *SagaService) Register(r *registry.Registry) *registry.Registry {
	handlers := []struct {
		name    event.Name
		handler registry.HandlerFunc
	}{
		{event.CreateOrder, s.CreateOrder},
		{event.ApproveOrderPending, s.ApproveOrderPending},
		{event.UpdateOrderSuccess, s.UpdateOrderSuccess},
		{event.UpdateOrderRejected, s.UpdateOrderRejected},
		{event.RevertCreateOrder, s.RevertCreateOrder},
	}
	for _, h := range handlers {
		r.Register(h.name, h.handler, s.steps[h.name].next...)
	}

	return r
}

// CreateOrder inserts the order in init and requests the buyer credit reservation.
func (s *SagaService) CreateOrder(ctx context.Context, msg event.Message) error {
	return s.run(ctx, s.steps[event.CreateOrder], msg)
}

// ApproveOrderPending moves an init order to pending and stamps seller and amount.
func (s *SagaService) ApproveOrderPending(ctx context.Context, msg event.Message) error {
	return s.run(ctx, s.steps[event.ApproveOrderPending], msg)
}

// UpdateOrderSuccess settles a pending order as success and requests the seller transfer.
func (s *SagaService) UpdateOrderSuccess(ctx context.Context, msg event.Message) error {
	return s.run(ctx, s.steps[event.UpdateOrderSuccess], msg)
}

// UpdateOrderRejected settles a pending order as rejected and requests the buyer refund.
func (s *SagaService) UpdateOrderRejected(ctx context.Context, msg event.Message) error {
	return s.run(ctx, s.steps[event.UpdateOrderRejected], msg)
}

// RevertCreateOrder compensates create_order by deleting an init order.
func (s *SagaService) RevertCreateOrder(ctx context.Context, msg event.Message) error {
	return s.run(ctx, s.steps[event.RevertCreateOrder], msg)
}
