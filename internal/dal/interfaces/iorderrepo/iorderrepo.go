package iorderrepo

import (
	"context"
	"time"

	"github.com/corray333/backend-labs/saga/internal/service/models/order"
	"github.com/google/uuid"
)

// IOrderRepository is an interface for order postgres repository.
// Lookups return order.ErrNotFound when the row does not exist.
type IOrderRepository interface {
	Insert(ctx context.Context, o *order.Order) error
	Get(ctx context.Context, id uuid.UUID) (*order.Order, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*order.Order, error)
	Update(ctx context.Context, o *order.Order) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListStalled(ctx context.Context, updatedBefore time.Time, limit int) ([]order.Order, error)
}
