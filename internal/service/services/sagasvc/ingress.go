package sagasvc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/corray333/backend-labs/saga/internal/service/models/event"
	"github.com/corray333/backend-labs/saga/internal/service/models/ledger"
	"github.com/corray333/backend-labs/saga/internal/service/models/money"
	"github.com/corray333/backend-labs/saga/internal/service/models/order"
	"github.com/google/uuid"
)

// StartOrderRequest is the input of a new saga.
type StartOrderRequest struct {
	OrderID        uuid.UUID
	BuyerID        uuid.UUID
	SellerID       uuid.NullUUID
	ProductID      int64
	ProductAmount  string
	JobDescription string
	Dimension      string
}

// OrderHistory is the current order projection with the ledger rows of its chain.
// Order is nil once the order was compensated.
type OrderHistory struct {
	Order  *order.Order
	Events []ledger.ProcessedEvent
}

// StartOrder publishes create_order for a new chain. A nil OrderID gets a fresh one.
func (s *SagaService) StartOrder(ctx context.Context, req StartOrderRequest) (event.Message, error) {
	if req.BuyerID == uuid.Nil {
		return event.Message{}, fmt.Errorf("%w: buyer_id is required", ErrInvalidRequest)
	}
	if req.ProductID <= 0 {
		return event.Message{}, fmt.Errorf("%w: product_id must be positive", ErrInvalidRequest)
	}
	if req.ProductAmount != "" {
		if _, err := money.ParseAmount(req.ProductAmount); err != nil {
			return event.Message{}, fmt.Errorf("%w: product_amount: %w", ErrInvalidRequest, err)
		}
	}
	if req.OrderID == uuid.Nil {
		req.OrderID = uuid.New()
	}

	msg, err := s.dispatcher.Dispatch(ctx, event.CreateOrder, event.Payload{
		OrderID:        req.OrderID,
		ProductID:      req.ProductID,
		BuyerID:        req.BuyerID,
		SellerID:       req.SellerID,
		ProductAmount:  req.ProductAmount,
		JobDescription: req.JobDescription,
		Dimension:      req.Dimension,
	})
	if err != nil {
		return event.Message{}, fmt.Errorf("failed to start order saga: %w", err)
	}

	slog.Info("Order saga started", "order_id", req.OrderID, "task_id", msg.TaskID)

	return msg, nil
}

// GetOrderHistory returns order.ErrNotFound when neither the order nor any ledger row exists.
func (s *SagaService) GetOrderHistory(ctx context.Context, id uuid.UUID) (*OrderHistory, error) {
	work := s.newUOW()

	o, err := work.OrderRepository().Get(ctx, id)
	if err != nil && !errors.Is(err, order.ErrNotFound) {
		return nil, err
	}

	events, err := work.LedgerRepository().ListByChain(ctx, id)
	if err != nil {
		return nil, err
	}

	if o == nil && len(events) == 0 {
		return nil, fmt.Errorf("%w: %s", order.ErrNotFound, id)
	}

	return &OrderHistory{
		Order:  o,
		Events: events,
	}, nil
}

// Redrive republishes the next event recorded by the latest step of a chain with the payload
// that step dispatched. It returns event.None when that step is terminal and
// ErrRedriveUnavailable when the ledger row carries no payload.
func (s *SagaService) Redrive(ctx context.Context, id uuid.UUID) (event.Name, error) {
	history, err := s.GetOrderHistory(ctx, id)
	if err != nil {
		return event.None, err
	}
	if history.Order == nil || len(history.Events) == 0 {
		return event.None, nil
	}

	last := history.Events[len(history.Events)-1]
	if last.NextEvent.IsNone() {
		return event.None, nil
	}
	if last.NextPayload == nil {
		return event.None, fmt.Errorf("%w: %s after %s", ErrRedriveUnavailable, last.NextEvent, last.Event)
	}

	if _, err := s.dispatcher.Dispatch(ctx, last.NextEvent, *last.NextPayload); err != nil {
		return event.None, fmt.Errorf("failed to redrive %s: %w", last.NextEvent, err)
	}

	slog.Info("Saga redriven", "order_id", id, "after", last.Event, "next_event", last.NextEvent)

	return last.NextEvent, nil
}
