package getorder

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/corray333/backend-labs/saga/internal/service/models/order"
	"github.com/corray333/backend-labs/saga/internal/service/services/sagasvc"
	"github.com/corray333/backend-labs/saga/internal/transport/http/response"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type service interface {
	GetOrderHistory(ctx context.Context, id uuid.UUID) (*sagasvc.OrderHistory, error)
}

// OrderResponse is the current order row.
type OrderResponse struct {
	ID          string    `json:"id"`
	Status      string    `json:"status"`
	BuyerID     string    `json:"buyer_id"`
	SellerID    *string   `json:"seller_id"`
	ProductID   int64     `json:"product_id"`
	TotalAmount *string   `json:"total_amount"`
	Description string    `json:"job_description"`
	Dimension   string    `json:"dimension"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// EventResponse is one processed event of the chain.
type EventResponse struct {
	EventID   string    `json:"event_id"`
	Event     string    `json:"event"`
	NextEvent *string   `json:"next_event"`
	Step      int       `json:"step"`
	CreatedAt time.Time `json:"created_at"`
}

// OrderHistoryResponse is returned for GET /orders/{id}. Order is null once compensated.
type OrderHistoryResponse struct {
	Order       *OrderResponse  `json:"order"`
	Compensated bool            `json:"compensated"`
	Events      []EventResponse `json:"events"`
}

func fromModel(h *sagasvc.OrderHistory) OrderHistoryResponse {
	resp := OrderHistoryResponse{
		Events:      make([]EventResponse, 0, len(h.Events)),
		Compensated: h.Order == nil,
	}

	if o := h.Order; o != nil {
		resp.Order = &OrderResponse{
			ID:          o.ID.String(),
			Status:      o.Status.String(),
			BuyerID:     o.BuyerID.String(),
			ProductID:   o.ProductID,
			Description: o.Description,
			Dimension:   o.Dimension,
			CreatedAt:   o.CreatedAt,
			UpdatedAt:   o.UpdatedAt,
		}
		if o.SellerID.Valid {
			seller := o.SellerID.UUID.String()
			resp.Order.SellerID = &seller
		}
		if o.TotalAmount != nil {
			total := o.TotalAmount.String()
			resp.Order.TotalAmount = &total
		}
	}

	for _, e := range h.Events {
		item := EventResponse{
			EventID:   e.EventID.String(),
			Event:     e.Event.String(),
			Step:      e.Step,
			CreatedAt: e.CreatedAt,
		}
		if !e.NextEvent.IsNone() {
			next := e.NextEvent.String()
			item.NextEvent = &next
		}
		resp.Events = append(resp.Events, item)
	}

	return resp
}

// GetOrder handles the order history request.
//
//	@Summary	Order with its processed events
//	@Tags		orders
//	@Produce	json
//	@Param		id	path		string	true	"Order ID"
//	@Success	200	{object}	OrderHistoryResponse
//	@Failure	400	{object}	response.Error
//	@Failure	404	{object}	response.Error
//	@Router		/orders/{id} [get]
func GetOrder(w http.ResponseWriter, r *http.Request, service service) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Fail(w, http.StatusBadRequest, "invalid order id")

		return
	}

	history, err := service.GetOrderHistory(r.Context(), id)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			response.Fail(w, http.StatusNotFound, err.Error())

			return
		}
		response.Fail(w, http.StatusInternalServerError, err.Error())
		slog.Error("Error reading order history", "error", err, "order_id", id)

		return
	}

	response.JSON(w, http.StatusOK, fromModel(history))
}
