package startorder

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/corray333/backend-labs/saga/internal/service/models/event"
	"github.com/corray333/backend-labs/saga/internal/service/services/sagasvc"
	"github.com/corray333/backend-labs/saga/internal/transport/http/response"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// service is an interface for the service layer.
type service interface {
	StartOrder(ctx context.Context, req sagasvc.StartOrderRequest) (event.Message, error)
}

// validate caches struct metadata across requests.
var validate = validator.New()

// startOrderRequest represents a start order request.
type startOrderRequest struct {
	OrderID        string `json:"order_id"        validate:"omitempty,uuid"`
	BuyerID        string `json:"buyer_id"        validate:"required,uuid"`
	SellerID       string `json:"seller_id"       validate:"omitempty,uuid"`
	ProductID      int64  `json:"product_id"      validate:"gt=0"`
	ProductAmount  string `json:"product_amount"  validate:"omitempty,numeric"`
	JobDescription string `json:"job_description" validate:"max=1024"`
	Dimension      string `json:"dimension"       validate:"max=255"`
}

// StartOrderResponse is returned once create_order is published.
type StartOrderResponse struct {
	OrderID string `json:"order_id"`
	TaskID  string `json:"task_id"`
}

// Validate validates the start order request.
func (r *startOrderRequest) Validate() error {
	return validate.Struct(r)
}

// toModel converts startOrderRequest to sagasvc.StartOrderRequest.
func (r *startOrderRequest) toModel() (sagasvc.StartOrderRequest, error) {
	req := sagasvc.StartOrderRequest{
		ProductID:      r.ProductID,
		ProductAmount:  r.ProductAmount,
		JobDescription: r.JobDescription,
		Dimension:      r.Dimension,
	}

	var err error
	if req.BuyerID, err = uuid.Parse(r.BuyerID); err != nil {
		return req, err
	}
	if r.OrderID != "" {
		if req.OrderID, err = uuid.Parse(r.OrderID); err != nil {
			return req, err
		}
	}
	if r.SellerID != "" {
		seller, err := uuid.Parse(r.SellerID)
		if err != nil {
			return req, err
		}
		req.SellerID = uuid.NullUUID{UUID: seller, Valid: true}
	}

	return req, nil
}

// StartOrder handles the start order request.
//
//	@Summary	Start a create order saga
//	@Tags		orders
//	@Accept		json
//	@Produce	json
//	@Param		request	body		startOrderRequest	true	"Order"
//	@Success	202		{object}	StartOrderResponse
//	@Failure	400		{object}	response.Error
//	@Failure	500		{object}	response.Error
//	@Router		/orders [post]
func StartOrder(w http.ResponseWriter, r *http.Request, service service) {
	req := startOrderRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Fail(w, http.StatusBadRequest, err.Error())
		slog.Error("Error decoding request body for start order", "error", err)

		return
	}

	if err := req.Validate(); err != nil {
		response.Fail(w, http.StatusBadRequest, err.Error())
		slog.Error("Error validating request body for start order", "error", err)

		return
	}

	model, err := req.toModel()
	if err != nil {
		response.Fail(w, http.StatusBadRequest, err.Error())
		slog.Error("Error converting request to model", "error", err)

		return
	}

	msg, err := service.StartOrder(r.Context(), model)
	if err != nil {
		if errors.Is(err, sagasvc.ErrInvalidRequest) {
			response.Fail(w, http.StatusBadRequest, err.Error())

			return
		}
		response.Fail(w, http.StatusInternalServerError, err.Error())
		slog.Error("Error starting order saga", "error", err)

		return
	}

	response.JSON(w, http.StatusAccepted, StartOrderResponse{
		OrderID: msg.Payload.OrderID.String(),
		TaskID:  msg.TaskID.String(),
	})
}
