package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/corray333/backend-labs/saga/internal/dal/rabbitmq"
	"github.com/corray333/backend-labs/saga/internal/service/models/event"
	"github.com/corray333/backend-labs/saga/internal/service/models/taskstate"
	"github.com/corray333/backend-labs/saga/internal/service/registry"
	"github.com/corray333/backend-labs/saga/internal/service/router"
	"github.com/corray333/backend-labs/saga/internal/service/services/sagasvc"
	"github.com/google/uuid"
	"github.com/streadway/amqp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// RetryCountHeader carries how many times a delivery was already retried.
const RetryCountHeader = "x-retry-count"

const (
	defaultMaxRetries  = 5
	defaultConcurrency = 50
	shutdownTimeout    = 10 * time.Second
)

type broker interface {
	DeclareWorkQueue(name string) (amqp.Queue, error)
	Consume(queue, consumerTag string) (<-chan amqp.Delivery, error)
	Cancel(consumerTag string) error
	Publish(ctx context.Context, queue string, msg amqp.Publishing) error
}

type handlerRegistry interface {
	Lookup(name event.Name) (registry.HandlerFunc, error)
	Queues() []string
}

type taskStateRepository interface {
	Set(ctx context.Context, state taskstate.TaskState) error
}

// Consumer represents the RabbitMQ consumer transport.
type Consumer struct {
	client      broker
	registry    handlerRegistry
	states      taskStateRepository
	queues      []string
	consumerTag string
	maxRetries  int
	concurrency int
	tracer      trace.Tracer
	propagator  propagation.TextMapPropagator

	mu       sync.Mutex
	tags     []string
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// option is a function that configures the Consumer.
type option func(*Consumer)

// WithMaxRetries sets how many times a failing delivery is republished before it is dead-lettered.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithMaxRetries(n int) option {
	return func(c *Consumer) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithConcurrency bounds the number of handlers running at once.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithConcurrency(n int) option {
	return func(c *Consumer) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithConsumerTag sets the prefix of the per-queue consumer tags.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithConsumerTag(tag string) option {
	return func(c *Consumer) {
		if tag != "" {
			c.consumerTag = tag
		}
	}
}

// WithTaskStateRepository sets where task states are recorded.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithTaskStateRepository(states taskStateRepository) option {
	return func(c *Consumer) {
		c.states = states
	}
}

// WithPropagator sets the propagator used to read trace headers.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithPropagator(p propagation.TextMapPropagator) option {
	return func(c *Consumer) {
		c.propagator = p
	}
}

// NewConsumer creates a Consumer and declares every queue the registry handles.
func NewConsumer(client broker, handlers handlerRegistry, opts ...option) *Consumer {
	c := &Consumer{
		client:      client,
		registry:    handlers,
		states:      noopTaskStates{},
		consumerTag: "order-saga",
		maxRetries:  defaultMaxRetries,
		concurrency: defaultConcurrency,
		tracer:      otel.Tracer("consumer"),
		propagator:  otel.GetTextMapPropagator(),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	for _, name := range handlers.Queues() {
		queue, err := client.DeclareWorkQueue(name)
		if err != nil {
			panic(err)
		}
		c.queues = append(c.queues, queue.Name)
	}
	if len(c.queues) == 0 {
		panic("consumer: registry handles no queue")
	}

	return c
}

// Run consumes every queue until Shutdown is called or ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	defer close(c.done)

	streams := make(map[string]<-chan amqp.Delivery, len(c.queues))
	for _, queue := range c.queues {
		tag := c.consumerTag + "-" + queue
		msgs, err := c.client.Consume(queue, tag)
		if err != nil {
			return fmt.Errorf("failed to consume %s: %w", queue, err)
		}

		c.mu.Lock()
		c.tags = append(c.tags, tag)
		c.mu.Unlock()
		streams[queue] = msgs

		slog.Info("Consumer started", "queue", queue, "consumer_tag", tag)
	}

	// Handlers outlive shutdown signals so that started transactions finish and get acked.
	handlerCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(c.concurrency)

	var wg sync.WaitGroup
	for queue, msgs := range streams {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-c.stop:
					return
				case <-ctx.Done():
					return
				case d, ok := <-msgs:
					if !ok {
						slog.Info("Message channel closed", "queue", queue)

						return
					}

					g.Go(func() error {
						return c.processMessage(handlerCtx, queue, d)
					})
				}
			}
		}()
	}

	wg.Wait()
	if err := g.Wait(); err != nil {
		slog.Error("Error processing messages", "error", err)
	}

	return nil
}

// processMessage runs the handler of one delivery and settles it.
// Only acknowledgement failures are returned.
func (c *Consumer) processMessage(ctx context.Context, queue string, d amqp.Delivery) error {
	ctx = c.propagator.Extract(ctx, headerCarrier(d.Headers))
	ctx, span := c.tracer.Start(ctx, "consume "+queue, trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	retries := retryCount(d.Headers)

	var msg event.Message
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		return c.reject(ctx, span, d, msg, retries, fmt.Errorf("%w: %w", event.ErrMalformedMessage, err))
	}
	if err := msg.Validate(); err != nil {
		return c.reject(ctx, span, d, msg, retries, err)
	}

	span.SetAttributes(
		attribute.String("saga.event", msg.Event.String()),
		attribute.String("saga.task_id", msg.TaskID.String()),
		attribute.Int("saga.retries", retries),
	)

	handler, err := c.registry.Lookup(msg.Event)
	if err != nil {
		return c.reject(ctx, span, d, msg, retries, err)
	}

	c.setState(ctx, msg, taskstate.StateStarted, retries, nil)

	err = handler(ctx, msg)
	if err == nil {
		c.setState(ctx, msg, taskstate.StateSuccess, retries, nil)
		if err := d.Ack(false); err != nil {
			slog.Error("Failed to ack message", "error", err, "task_id", msg.TaskID)

			return err
		}

		return nil
	}

	if !isRetryable(err) || retries >= c.maxRetries {
		return c.reject(ctx, span, d, msg, retries, err)
	}

	return c.retry(ctx, queue, d, msg, retries, err)
}

// retry republishes the delivery with an incremented retry count, then acks the original.
func (c *Consumer) retry(ctx context.Context, queue string, d amqp.Delivery, msg event.Message, retries int, cause error) error {
	headers := amqp.Table{}
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[RetryCountHeader] = int32(retries + 1)

	err := c.client.Publish(ctx, queue, amqp.Publishing{
		ContentType:  d.ContentType,
		DeliveryMode: amqp.Persistent,
		MessageId:    d.MessageId,
		Type:         d.Type,
		Timestamp:    time.Now(),
		Headers:      headers,
		Body:         d.Body,
	})
	if err != nil {
		slog.Error("Failed to republish message, requeueing", "error", err, "task_id", msg.TaskID)
		if err := d.Nack(false, true); err != nil {
			slog.Error("Failed to nack message", "error", err, "task_id", msg.TaskID)

			return err
		}

		return nil
	}

	slog.Warn("Saga step failed, retrying",
		"error", cause,
		"event", msg.Event,
		"task_id", msg.TaskID,
		"retry", retries+1,
		"max_retries", c.maxRetries,
	)
	c.setState(ctx, msg, taskstate.StateRetry, retries+1, cause)

	if err := d.Ack(false); err != nil {
		slog.Error("Failed to ack message", "error", err, "task_id", msg.TaskID)

		return err
	}

	return nil
}

// reject drops the delivery without requeue so the broker dead-letters it.
func (c *Consumer) reject(ctx context.Context, span trace.Span, d amqp.Delivery, msg event.Message, retries int, cause error) error {
	span.RecordError(cause)
	span.SetStatus(codes.Error, cause.Error())

	slog.Error("Saga step failed, dead-lettering message",
		"error", cause,
		"event", msg.Event,
		"task_id", msg.TaskID,
		"retries", retries,
		"delivery_tag", d.DeliveryTag,
	)
	c.setState(ctx, msg, taskstate.StateFailure, retries, cause)

	if err := d.Nack(false, false); err != nil {
		slog.Error("Failed to nack message", "error", err, "task_id", msg.TaskID)

		return err
	}

	return nil
}

func (c *Consumer) setState(ctx context.Context, msg event.Message, state taskstate.State, retries int, cause error) {
	if msg.TaskID == uuid.Nil || msg.Event.IsNone() {
		return
	}

	ts := taskstate.TaskState{
		TaskID:  msg.TaskID.String(),
		Event:   msg.Event.String(),
		State:   state,
		Retries: retries,
	}
	if cause != nil {
		ts.Error = cause.Error()
	}

	if err := c.states.Set(ctx, ts); err != nil {
		slog.Warn("Failed to record task state", "error", err, "task_id", ts.TaskID, "state", state)
	}
}

// Shutdown stops consuming and waits for running handlers.
func (c *Consumer) Shutdown() error {
	slog.Info("Shutting down consumer")
	c.stopOnce.Do(func() { close(c.stop) })

	c.mu.Lock()
	tags := append([]string(nil), c.tags...)
	c.mu.Unlock()

	var errs []error
	for _, tag := range tags {
		if err := c.client.Cancel(tag); err != nil {
			errs = append(errs, fmt.Errorf("failed to cancel %s: %w", tag, err))
		}
	}

	select {
	case <-c.done:
		slog.Info("Consumer stopped successfully")
	case <-time.After(shutdownTimeout):
		slog.Warn("Consumer shutdown timeout")
	}

	return errors.Join(errs...)
}

// isRetryable reports whether redelivery could make err go away.
func isRetryable(err error) bool {
	switch {
	case errors.Is(err, event.ErrMalformedMessage),
		errors.Is(err, sagasvc.ErrInvalidPayload),
		errors.Is(err, router.ErrUnknownEvent),
		errors.Is(err, registry.ErrNoHandler):
		return false
	default:
		return true
	}
}

func retryCount(headers amqp.Table) int {
	switch v := headers[RetryCountHeader].(type) {
	case int:
		return v
	case int8:
		return int(v)
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	case uint8:
		return int(v)
	default:
		return 0
	}
}

func headerCarrier(headers amqp.Table) propagation.MapCarrier {
	carrier := propagation.MapCarrier{}
	for k, v := range headers {
		if s, ok := v.(string); ok {
			carrier[k] = s
		}
	}

	return carrier
}

type noopTaskStates struct{}

func (noopTaskStates) Set(context.Context, taskstate.TaskState) error { return nil }

var _ broker = (*rabbitmq.Client)(nil)
