package registry

import (
	"context"
	"testing"

	"github.com/corray333/backend-labs/saga/internal/service/models/event"
	"github.com/corray333/backend-labs/saga/internal/service/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(context.Context, event.Message) error { return nil }

func TestRegistry_Valid(t *testing.T) {
	r := New(router.New()).
		Register(event.CreateOrder, noop, event.ReserveBuyerCredit).
		Register(event.ApproveOrderPending, noop).
		Register(event.UpdateOrderSuccess, noop, event.TransferToSellerBalance).
		Register(event.UpdateOrderRejected, noop, event.RefundBuyer).
		Register(event.RevertCreateOrder, noop)

	require.NoError(t, r.Validate())
	assert.Equal(t, []string{"order"}, r.Queues())
	assert.Len(t, r.Events(), 5)

	h, err := r.Lookup(event.CreateOrder)
	require.NoError(t, err)
	assert.NoError(t, h(context.Background(), event.Message{}))
}

func TestRegistry_LookupMissing(t *testing.T) {
	r := New(router.New())

	_, err := r.Lookup(event.ReserveBuyerCredit)
	assert.ErrorIs(t, err, ErrNoHandler)
}

func TestRegistry_UnroutableHandledEvent(t *testing.T) {
	r := New(router.New()).Register("ship_order", noop)

	err := r.Validate()
	assert.ErrorIs(t, err, ErrUnroutableHandler)
	assert.ErrorIs(t, err, router.ErrUnknownEvent)
	assert.Empty(t, r.Queues())
}

func TestRegistry_UnroutableNextEvent(t *testing.T) {
	r := New(router.New()).Register(event.CreateOrder, noop, "charge_card")

	assert.ErrorIs(t, r.Validate(), router.ErrUnknownEvent)
}

func TestRegistry_Duplicate(t *testing.T) {
	r := New(router.New()).
		Register(event.CreateOrder, noop).
		Register(event.CreateOrder, noop)

	assert.ErrorIs(t, r.Validate(), ErrDuplicateHandler)
}

func TestRegistry_NilHandler(t *testing.T) {
	r := New(router.New()).Register(event.CreateOrder, nil)

	assert.ErrorIs(t, r.Validate(), ErrNoHandler)
}
