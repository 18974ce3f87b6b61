package router

import (
	"errors"
	"fmt"
	"sort"

	"github.com/corray333/backend-labs/saga/internal/service/models/event"
)

const (
	QueueOrder   = "order"
	QueueUser    = "user"
	QueueProduct = "product"
)

// ErrUnknownEvent is a configuration error: the event has no destination queue.
var ErrUnknownEvent = errors.New("no queue routed for event")

var defaultRoutes = map[event.Name]string{
	event.CreateOrder:             QueueOrder,
	event.RevertCreateOrder:       QueueOrder,
	event.ApproveOrderPending:     QueueOrder,
	event.UpdateOrderSuccess:      QueueOrder,
	event.UpdateOrderRejected:     QueueOrder,
	event.ReserveBuyerCredit:      QueueUser,
	event.TransferToSellerBalance: QueueUser,
	event.RefundBuyer:             QueueUser,
	event.UpdateProductQuota:      QueueProduct,
}

// Router maps event names to queue names. It is immutable once built.
type Router struct {
	routes map[event.Name]string
}

// New returns the router for the order saga.
func New() *Router {
	return newRouter(defaultRoutes)
}

func newRouter(routes map[event.Name]string) *Router {
	copied := make(map[event.Name]string, len(routes))
	for name, queue := range routes {
		copied[name] = queue
	}

	return &Router{routes: copied}
}

// Route returns the queue for an event name.
func (r *Router) Route(name event.Name) (string, error) {
	queue, ok := r.routes[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}

	return queue, nil
}

// Queues lists every distinct destination queue, sorted.
func (r *Router) Queues() []string {
	seen := make(map[string]struct{}, len(r.routes))
	queues := make([]string, 0, len(r.routes))
	for _, queue := range r.routes {
		if _, ok := seen[queue]; ok {
			continue
		}
		seen[queue] = struct{}{}
		queues = append(queues, queue)
	}
	sort.Strings(queues)

	return queues
}
