package stalled

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/corray333/backend-labs/saga/internal/service/models/event"
	"github.com/corray333/backend-labs/saga/internal/service/models/order"
	"github.com/google/uuid"
	"github.com/spf13/viper"
)

type orderRepository interface {
	ListStalled(ctx context.Context, updatedBefore time.Time, limit int) ([]order.Order, error)
}

type redriver interface {
	Redrive(ctx context.Context, id uuid.UUID) (event.Name, error)
}

// attempt tracks redrives of one chain so a chain that keeps stalling backs off.
type attempt struct {
	count int
	next  time.Time
}

// Worker reports orders stuck in a non-terminal status and optionally redrives them.
type Worker struct {
	orders       orderRepository
	redriver     redriver
	pollInterval time.Duration
	stallAfter   time.Duration
	batchSize    int
	backoff      time.Duration
	now          func() time.Time

	mu       sync.Mutex
	attempts map[uuid.UUID]attempt
	stopCh   chan struct{}
	stopOnce sync.Once
}

// option is a function that configures the Worker.
type option func(*Worker)

// WithRedriver enables republishing the recorded next event of stalled chains.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithRedriver(r redriver) option {
	return func(w *Worker) {
		w.redriver = r
	}
}

// WithClock replaces time.Now.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithClock(now func() time.Time) option {
	return func(w *Worker) {
		w.now = now
	}
}

// NewWorker creates a new stalled saga worker.
func NewWorker(orders orderRepository, opts ...option) *Worker {
	pollIntervalSeconds := viper.GetInt("worker.stalled.poll_interval_seconds")
	if pollIntervalSeconds == 0 {
		pollIntervalSeconds = 60
	}

	stallAfterSeconds := viper.GetInt("worker.stalled.stall_after_seconds")
	if stallAfterSeconds == 0 {
		stallAfterSeconds = 300
	}

	batchSize := viper.GetInt("worker.stalled.batch_size")
	if batchSize == 0 {
		batchSize = 100
	}

	backoffSeconds := viper.GetInt("worker.stalled.backoff_seconds")
	if backoffSeconds == 0 {
		backoffSeconds = 30
	}

	w := &Worker{
		orders:       orders,
		pollInterval: time.Duration(pollIntervalSeconds) * time.Second,
		stallAfter:   time.Duration(stallAfterSeconds) * time.Second,
		batchSize:    batchSize,
		backoff:      time.Duration(backoffSeconds) * time.Second,
		now:          time.Now,
		attempts:     make(map[uuid.UUID]attempt),
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Start polls for stalled orders until ctx is done or Stop is called.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	slog.Info("Stalled saga worker started",
		"poll_interval", w.pollInterval,
		"stall_after", w.stallAfter,
		"redrive", w.redriver != nil,
	)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Stalled saga worker shutting down")

			return
		case <-w.stopCh:
			slog.Info("Stalled saga worker stopped")

			return
		case <-ticker.C:
			w.Scan(ctx)
		}
	}
}

// Stop stops the worker.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

// Scan runs one poll and returns the stalled orders it saw.
func (w *Worker) Scan(ctx context.Context) []order.Order {
	now := w.now()
	orders, err := w.orders.ListStalled(ctx, now.Add(-w.stallAfter), w.batchSize)
	if err != nil {
		slog.Error("Failed to list stalled orders", "error", err)

		return nil
	}

	w.forget(orders)

	if len(orders) == 0 {
		return nil
	}

	slog.Warn("Stalled sagas found", "count", len(orders))

	for _, o := range orders {
		slog.Warn("Saga stalled",
			"order_id", o.ID,
			"status", o.Status,
			"updated_at", o.UpdatedAt,
		)

		if w.redriver != nil {
			w.redrive(ctx, o.ID, now)
		}
	}

	return orders
}

func (w *Worker) redrive(ctx context.Context, id uuid.UUID, now time.Time) {
	w.mu.Lock()
	a := w.attempts[id]
	w.mu.Unlock()

	if now.Before(a.next) {
		return
	}

	next, err := w.redriver.Redrive(ctx, id)

	// 30s, 60s, 120s, 240s, etc.
	a.count++
	backoff := time.Duration(math.Pow(2, float64(a.count-1)) * float64(w.backoff))
	a.next = now.Add(backoff)

	w.mu.Lock()
	w.attempts[id] = a
	w.mu.Unlock()

	if err != nil {
		slog.Error("Failed to redrive saga",
			"order_id", id,
			"attempt", a.count,
			"next_attempt", a.next,
			"error", err,
		)

		return
	}

	slog.Info("Saga redriven by stalled worker", "order_id", id, "next_event", next, "attempt", a.count)
}

// forget drops backoff state of chains that are no longer stalled.
func (w *Worker) forget(stalled []order.Order) {
	w.mu.Lock()
	defer w.mu.Unlock()

	current := make(map[uuid.UUID]struct{}, len(stalled))
	for _, o := range stalled {
		current[o.ID] = struct{}{}
	}
	for id := range w.attempts {
		if _, ok := current[id]; !ok {
			delete(w.attempts, id)
		}
	}
}
