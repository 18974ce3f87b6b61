package sagasvc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/corray333/backend-labs/saga/internal/dal/interfaces/iorderrepo"
	"github.com/corray333/backend-labs/saga/internal/service/models/event"
	"github.com/corray333/backend-labs/saga/internal/service/models/ledger"
	"github.com/corray333/backend-labs/saga/internal/service/models/money"
	"github.com/corray333/backend-labs/saga/internal/service/models/order"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// errMutation marks failures after the ledger lookup, inside the mutating transaction.
var errMutation = errors.New("saga step transaction failed")

// step describes one order-domain saga step.
type step struct {
	event event.Name
	// next lists every event apply may return.
	next []event.Name
	// lockOrder takes the order row lock before the ledger lookup.
	lockOrder bool
	// origin steps drop failed transactions instead of returning them.
	origin bool
	// apply mutates state and returns the next event. current is nil when the order row is missing.
	apply func(ctx context.Context, orders iorderrepo.IOrderRepository, current *order.Order, p event.Payload) (event.Name, error)
	// outbound shapes the payload sent with the next event.
	outbound func(p event.Payload) event.Payload
}

func (s *SagaService) buildSteps() map[event.Name]step {
	return map[event.Name]step{
		event.CreateOrder: {
			event:    event.CreateOrder,
			next:     []event.Name{event.ReserveBuyerCredit},
			origin:   true,
			apply:    createOrder,
			outbound: reservationPayload,
		},
		event.ApproveOrderPending: {
			event:     event.ApproveOrderPending,
			lockOrder: true,
			apply:     approveOrderPending,
			outbound:  settlementPayload,
		},
		event.UpdateOrderSuccess: {
			event:     event.UpdateOrderSuccess,
			next:      []event.Name{event.TransferToSellerBalance},
			lockOrder: true,
			apply:     settleOrder(order.StatusSuccess, event.TransferToSellerBalance),
			outbound:  settlementPayload,
		},
		event.UpdateOrderRejected: {
			event:     event.UpdateOrderRejected,
			next:      []event.Name{event.RefundBuyer},
			lockOrder: true,
			apply:     settleOrder(order.StatusRejected, event.RefundBuyer),
			outbound:  settlementPayload,
		},
		event.RevertCreateOrder: {
			event:     event.RevertCreateOrder,
			lockOrder: true,
			apply:     revertCreateOrder,
			outbound:  settlementPayload,
		},
	}
}

func createOrder(ctx context.Context, orders iorderrepo.IOrderRepository, _ *order.Order, p event.Payload) (event.Name, error) {
	o := &order.Order{
		ID:          p.OrderID,
		Status:      order.StatusInit,
		BuyerID:     p.BuyerID,
		ProductID:   p.ProductID,
		Description: p.JobDescription,
		Dimension:   p.Dimension,
	}
	if err := orders.Insert(ctx, o); err != nil {
		return event.None, err
	}

	return event.ReserveBuyerCredit, nil
}

func approveOrderPending(ctx context.Context, orders iorderrepo.IOrderRepository, current *order.Order, p event.Payload) (event.Name, error) {
	if current == nil {
		return event.None, fmt.Errorf("%w: %w: %s", ErrPreconditionFailed, order.ErrNotFound, p.OrderID)
	}
	if !p.SellerID.Valid {
		return event.None, fmt.Errorf("%w: seller_id is required", ErrInvalidPayload)
	}
	amount, err := money.ParseAmount(p.ProductAmount)
	if err != nil {
		return event.None, fmt.Errorf("%w: product_amount: %w", ErrInvalidPayload, err)
	}

	if err := current.Approve(p.SellerID.UUID, amount); err != nil {
		return event.None, fmt.Errorf("%w: %w", ErrPreconditionFailed, err)
	}
	if err := orders.Update(ctx, current); err != nil {
		return event.None, err
	}

	return event.None, nil
}

// settleOrder moves a pending order to a final status. product_amount is forwarded, never persisted.
func settleOrder(target order.Status, next event.Name) func(context.Context, iorderrepo.IOrderRepository, *order.Order, event.Payload) (event.Name, error) {
	return func(ctx context.Context, orders iorderrepo.IOrderRepository, current *order.Order, p event.Payload) (event.Name, error) {
		if current == nil {
			return event.None, fmt.Errorf("%w: %w: %s", ErrPreconditionFailed, order.ErrNotFound, p.OrderID)
		}
		if err := current.Transition(target); err != nil {
			return event.None, fmt.Errorf("%w: %w", ErrPreconditionFailed, err)
		}
		if err := orders.Update(ctx, current); err != nil {
			return event.None, err
		}

		return next, nil
	}
}

func revertCreateOrder(ctx context.Context, orders iorderrepo.IOrderRepository, current *order.Order, p event.Payload) (event.Name, error) {
	if current == nil {
		slog.Info("Order already absent, recording compensation", "order_id", p.OrderID)

		return event.None, nil
	}
	if err := order.ValidateTransition(current.Status, order.StatusCompensated); err != nil {
		return event.None, fmt.Errorf("%w: %w", ErrPreconditionFailed, err)
	}
	if err := orders.Delete(ctx, current.ID); err != nil {
		return event.None, err
	}

	return event.None, nil
}

func reservationPayload(p event.Payload) event.Payload {
	return event.Payload{
		OrderID:       p.OrderID,
		ProductID:     p.ProductID,
		BuyerID:       p.BuyerID,
		SellerID:      p.SellerID,
		ProductAmount: p.ProductAmount,
	}
}

func settlementPayload(p event.Payload) event.Payload {
	return event.Payload{
		OrderID:       p.OrderID,
		BuyerID:       p.BuyerID,
		SellerID:      p.SellerID,
		ProductAmount: p.ProductAmount,
	}
}

func (s *SagaService) run(ctx context.Context, st step, msg event.Message) error {
	ctx = s.propagator.Extract(ctx, msg.Payload.Carrier())
	ctx, span := s.tracer.Start(ctx, "SAGA "+st.event.String(), trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	chainID := msg.Payload.OrderID
	span.SetAttributes(
		attribute.String("saga.event", st.event.String()),
		attribute.String("saga.order_id", chainID.String()),
		attribute.String("saga.task_id", msg.TaskID.String()),
	)
	log := slog.With("event", st.event, "order_id", chainID, "task_id", msg.TaskID)

	fail := func(err error) error {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return err
	}

	if msg.Event != st.event {
		return fail(fmt.Errorf("%w: %s delivered to %s handler", ErrInvalidPayload, msg.Event, st.event))
	}
	if err := msg.Validate(); err != nil {
		return fail(fmt.Errorf("%w: %w", ErrInvalidPayload, err))
	}

	next, duplicate, err := s.execute(ctx, st, msg)
	if errors.Is(err, ledger.ErrUniquenessViolation) || errors.Is(err, order.ErrAlreadyExists) {
		log.Info("Lost race on processed event, forwarding the recorded next event", "error", err)
		next, err = s.recordedNext(ctx, st.event, msg)
		duplicate = true
	}
	if err != nil {
		if st.origin && errors.Is(err, errMutation) {
			log.Error("Saga origin step failed, nothing to compensate",
				"error", err,
				"buyer_id", msg.Payload.BuyerID,
				"product_id", msg.Payload.ProductID,
			)
			span.RecordError(err)

			return nil
		}
		log.Error("Saga step failed", "error", err)

		return fail(err)
	}

	if duplicate {
		log.Info("Receive duplicate event", "next_event", next)
		span.SetAttributes(attribute.Bool("saga.duplicate", true))
	}

	if next.IsNone() {
		return nil
	}

	if _, err := s.dispatcher.Dispatch(ctx, next, st.outbound(msg.Payload)); err != nil {
		log.Error("Failed to dispatch next event", "error", err, "next_event", next)

		return fail(fmt.Errorf("failed to dispatch %s: %w", next, err))
	}

	return nil
}

// execute runs the lock, lookup, mutate and record sequence in one transaction.
// duplicate is true when the ledger already holds the step; next is then the recorded event.
func (s *SagaService) execute(ctx context.Context, st step, msg event.Message) (next event.Name, duplicate bool, err error) {
	ctx, span := s.tracer.Start(ctx, "Execute DB Transaction")
	defer span.End()

	chainID := msg.Payload.OrderID

	work := s.newUOW()
	if err := work.Begin(ctx); err != nil {
		return event.None, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rbErr := work.Rollback(); rbErr != nil {
			slog.Error("Failed to rollback transaction", "error", rbErr, "order_id", chainID, "event", st.event)
		}
	}()

	var current *order.Order
	if st.lockOrder {
		current, err = work.OrderRepository().GetForUpdate(ctx, chainID)
		if err != nil && !errors.Is(err, order.ErrNotFound) {
			return event.None, false, fmt.Errorf("failed to lock order: %w", err)
		}
	}

	recorded, err := work.LedgerRepository().Lookup(ctx, chainID, st.event)
	if err != nil {
		return event.None, false, fmt.Errorf("failed to look up processed event: %w", err)
	}
	if recorded != nil {
		return recorded.NextEvent, true, nil
	}

	next, err = st.apply(ctx, work.OrderRepository(), current, msg.Payload)
	if err != nil {
		return event.None, false, fmt.Errorf("%w: %w", errMutation, err)
	}

	entry := ledger.ProcessedEvent{
		EventID:   msg.TaskID,
		ChainID:   chainID,
		Event:     st.event,
		NextEvent: next,
		Step:      ledger.ReservedStep,
	}
	if !next.IsNone() {
		outbound := st.outbound(msg.Payload)
		entry.NextPayload = &outbound
	}

	err = work.LedgerRepository().Record(ctx, entry)
	if err != nil {
		return event.None, false, fmt.Errorf("%w: %w", errMutation, err)
	}

	if err := work.Commit(); err != nil {
		return event.None, false, fmt.Errorf("%w: failed to commit transaction: %w", errMutation, err)
	}

	return next, false, nil
}

// recordedNext reads the winner's ledger row after a lost insert race.
func (s *SagaService) recordedNext(ctx context.Context, name event.Name, msg event.Message) (event.Name, error) {
	recorded, err := s.newUOW().LedgerRepository().Lookup(ctx, msg.Payload.OrderID, name)
	if err != nil {
		return event.None, fmt.Errorf("failed to look up processed event: %w", err)
	}
	if recorded == nil {
		return event.None, fmt.Errorf("%w: no processed event for %s/%s", ErrPreconditionFailed, msg.Payload.OrderID, name)
	}

	return recorded.NextEvent, nil
}
