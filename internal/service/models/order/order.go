package order

import (
	"errors"
	"fmt"
	"time"

	"github.com/corray333/backend-labs/saga/internal/service/models/money"
	"github.com/google/uuid"
)

// Status is the saga-visible state of an order.
type Status string

const (
	StatusInit     Status = "init"
	StatusPending  Status = "pending"
	StatusSuccess  Status = "success"
	StatusRejected Status = "rejected"

	// StatusCompensated is never persisted: a compensated order is deleted.
	StatusCompensated Status = "compensated"
)

var (
	ErrInvalidTransition = errors.New("invalid order status transition")
	ErrNotFound          = errors.New("order not found")
	ErrAlreadyExists     = errors.New("order already exists")
)

var transitions = map[Status][]Status{
	StatusInit:    {StatusPending, StatusCompensated},
	StatusPending: {StatusSuccess, StatusRejected},
}

func (s Status) String() string {
	return string(s)
}

// IsTerminal reports whether no further transition can leave the status.
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// ValidateTransition returns ErrInvalidTransition unless from -> to is an edge of the state machine.
func ValidateTransition(from, to Status) error {
	for _, next := range transitions[from] {
		if next == to {
			return nil
		}
	}

	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// Order is the current-state projection of one saga chain.
type Order struct {
	ID          uuid.UUID     `json:"id"`
	Status      Status        `json:"status"`
	BuyerID     uuid.UUID     `json:"buyerId"`
	SellerID    uuid.NullUUID `json:"sellerId"`
	ProductID   int64         `json:"productId"`
	TotalAmount *money.Amount `json:"totalAmount,omitempty"`
	Description string        `json:"description"`
	Dimension   string        `json:"dimension"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// Transition moves the order to next, enforcing the state machine.
func (o *Order) Transition(next Status) error {
	if err := ValidateTransition(o.Status, next); err != nil {
		return err
	}
	o.Status = next

	return nil
}

// Approve applies init -> pending and stamps seller and total amount.
func (o *Order) Approve(sellerID uuid.UUID, amount money.Amount) error {
	if err := o.Transition(StatusPending); err != nil {
		return err
	}
	o.SellerID = uuid.NullUUID{UUID: sellerID, Valid: true}
	o.TotalAmount = &amount

	return nil
}
