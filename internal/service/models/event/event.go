package event

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/propagation"
)

// Name identifies a saga step. It doubles as the task name on the wire.
type Name string

const (
	CreateOrder             Name = "create_order"
	RevertCreateOrder       Name = "revert_create_order"
	ApproveOrderPending     Name = "approve_order_pending"
	UpdateOrderSuccess      Name = "update_order_success"
	UpdateOrderRejected     Name = "update_order_rejected"
	ReserveBuyerCredit      Name = "reserve_buyer_credit"
	TransferToSellerBalance Name = "transfer_to_seller_balance"
	RefundBuyer             Name = "refund_buyer"
	UpdateProductQuota      Name = "update_product_quota"
)

// MaxNameLength matches the width of the event columns in processed_event.
const MaxNameLength = 32

// None marks a terminal step that records no next event.
const None Name = ""

func (n Name) String() string {
	return string(n)
}

// IsNone reports whether the name is the terminal marker.
func (n Name) IsNone() bool {
	return n == None
}

var (
	ErrMalformedMessage = errors.New("malformed saga message")
	ErrMissingTaskID    = errors.New("task id is required")
	ErrMissingOrderID   = errors.New("order id is required")
)

// Payload is the superset of fields carried between saga steps.
type Payload struct {
	OrderID        uuid.UUID              `json:"order_id"`
	ProductID      int64                  `json:"product_id,omitempty"`
	BuyerID        uuid.UUID              `json:"buyer_id"`
	SellerID       uuid.NullUUID          `json:"seller_id"`
	ProductAmount  string                 `json:"product_amount,omitempty"`
	JobDescription string                 `json:"job_description,omitempty"`
	Dimension      string                 `json:"dimension,omitempty"`
	ContextPayload propagation.MapCarrier `json:"context_payload,omitempty"`
}

// Carrier returns the trace carrier, allocating it when the payload has none.
func (p *Payload) Carrier() propagation.MapCarrier {
	if p.ContextPayload == nil {
		p.ContextPayload = propagation.MapCarrier{}
	}

	return p.ContextPayload
}

// Message is the envelope published to and consumed from the broker.
type Message struct {
	TaskID  uuid.UUID `json:"task_id"`
	Event   Name      `json:"event"`
	Payload Payload   `json:"payload"`
}

// Validate checks the fields every step handler relies on.
func (m Message) Validate() error {
	if m.TaskID == uuid.Nil {
		return fmt.Errorf("%w: %w", ErrMalformedMessage, ErrMissingTaskID)
	}
	if m.Event == None || len(m.Event) > MaxNameLength {
		return fmt.Errorf("%w: invalid event name %q", ErrMalformedMessage, m.Event)
	}
	if m.Payload.OrderID == uuid.Nil {
		return fmt.Errorf("%w: %w", ErrMalformedMessage, ErrMissingOrderID)
	}

	return nil
}
