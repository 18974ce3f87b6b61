package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/corray333/backend-labs/saga/internal/service/models/event"
	"github.com/google/uuid"
	"github.com/streadway/amqp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// publisher sends one message to a queue on the default exchange.
type publisher interface {
	Publish(ctx context.Context, queue string, msg amqp.Publishing) error
}

// queueRouter resolves the destination queue of an event.
type queueRouter interface {
	Route(name event.Name) (string, error)
	Queues() []string
}

// queueDeclarer creates a destination queue when it does not exist yet.
type queueDeclarer interface {
	DeclareWorkQueue(name string) (amqp.Queue, error)
}

// Dispatcher publishes saga events to the queue selected by the router.
type Dispatcher struct {
	router     queueRouter
	publisher  publisher
	propagator propagation.TextMapPropagator
	tracer     trace.Tracer
	newTaskID  func() uuid.UUID
	now        func() time.Time
}

// option is a function that configures the Dispatcher.
type option func(*Dispatcher)

// New creates a Dispatcher.
func New(router queueRouter, publisher publisher, opts ...option) *Dispatcher {
	d := &Dispatcher{
		router:     router,
		publisher:  publisher,
		propagator: otel.GetTextMapPropagator(),
		tracer:     otel.Tracer("dispatcher"),
		newTaskID:  uuid.New,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}

	return d
}

// DeclareQueues declares every queue the router can send to, so that events published
// before the downstream consumer starts are kept instead of dropped by the broker.
func (d *Dispatcher) DeclareQueues(declarer queueDeclarer) error {
	for _, queue := range d.router.Queues() {
		if _, err := declarer.DeclareWorkQueue(queue); err != nil {
			return fmt.Errorf("failed to declare destination queue %s: %w", queue, err)
		}
		slog.Debug("Destination queue declared", "queue", queue)
	}

	return nil
}

// WithPropagator sets the propagator used to inject the trace carrier.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithPropagator(p propagation.TextMapPropagator) option {
	return func(d *Dispatcher) {
		d.propagator = p
	}
}

// WithTracer sets the tracer for publish spans.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithTracer(t trace.Tracer) option {
	return func(d *Dispatcher) {
		d.tracer = t
	}
}

// WithTaskIDGenerator overrides how task ids are minted.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithTaskIDGenerator(fn func() uuid.UUID) option {
	return func(d *Dispatcher) {
		d.newTaskID = fn
	}
}

// Dispatch publishes name with payload to its routed queue and returns the sent envelope.
// Callers must only dispatch after the transaction that produced the event has committed.
func (d *Dispatcher) Dispatch(ctx context.Context, name event.Name, payload event.Payload) (event.Message, error) {
	ctx, span := d.tracer.Start(ctx, "send_task "+name.String(), trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()

	queue, err := d.router.Route(name)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return event.Message{}, err
	}

	payload.ContextPayload = propagation.MapCarrier{}
	d.propagator.Inject(ctx, payload.ContextPayload)

	msg := event.Message{
		TaskID:  d.newTaskID(),
		Event:   name,
		Payload: payload,
	}
	span.SetAttributes(
		attribute.String("messaging.destination", queue),
		attribute.String("saga.task_id", msg.TaskID.String()),
		attribute.String("saga.order_id", payload.OrderID.String()),
	)

	body, err := json.Marshal(msg)
	if err != nil {
		return event.Message{}, fmt.Errorf("failed to marshal %s message: %w", name, err)
	}

	headers := amqp.Table{}
	for key, value := range payload.ContextPayload {
		headers[key] = value
	}

	err = d.publisher.Publish(ctx, queue, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.TaskID.String(),
		Type:         name.String(),
		Timestamp:    d.now(),
		Headers:      headers,
		Body:         body,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return event.Message{}, fmt.Errorf("failed to publish %s to %s: %w", name, queue, err)
	}

	slog.Info("Event dispatched",
		"event", name,
		"queue", queue,
		"task_id", msg.TaskID,
		"order_id", payload.OrderID,
	)

	return msg, nil
}
