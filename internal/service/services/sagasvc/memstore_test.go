package sagasvc

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/corray333/backend-labs/saga/internal/dal/interfaces/iledgerrepo"
	"github.com/corray333/backend-labs/saga/internal/dal/interfaces/iorderrepo"
	"github.com/corray333/backend-labs/saga/internal/service/models/event"
	"github.com/corray333/backend-labs/saga/internal/service/models/ledger"
	"github.com/corray333/backend-labs/saga/internal/service/models/order"
	"github.com/google/uuid"
)

// memStore is a committed-state store. Writes become visible on Commit only.
type memStore struct {
	mu      sync.Mutex
	orders  map[uuid.UUID]order.Order
	events  []ledger.ProcessedEvent
	deletes int

	beginErr  error
	commitErr error
	lookupErr error
	// beforeRecord runs before the uniqueness check, e.g. to commit a concurrent winner.
	beforeRecord func(s *memStore, entry ledger.ProcessedEvent)
}

func newMemStore() *memStore {
	return &memStore{orders: make(map[uuid.UUID]order.Order)}
}

func (s *memStore) factory() func() unitOfWork {
	return func() unitOfWork {
		return &memUOW{store: s}
	}
}

func (s *memStore) order(id uuid.UUID) (order.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]

	return o, ok
}

func (s *memStore) ledger() []ledger.ProcessedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]ledger.ProcessedEvent(nil), s.events...)
}

func (s *memStore) commitEntry(entry ledger.ProcessedEvent) {
	s.events = append(s.events, entry)
}

type memUOW struct {
	store   *memStore
	began   bool
	done    bool
	upserts map[uuid.UUID]order.Order
	deleted map[uuid.UUID]bool
	entries []ledger.ProcessedEvent
}

func (u *memUOW) Begin(context.Context) error {
	if u.store.beginErr != nil {
		return u.store.beginErr
	}
	u.began = true
	u.upserts = make(map[uuid.UUID]order.Order)
	u.deleted = make(map[uuid.UUID]bool)

	return nil
}

func (u *memUOW) Commit() error {
	if !u.began || u.done {
		return nil
	}
	if u.store.commitErr != nil {
		return u.store.commitErr
	}

	u.store.mu.Lock()
	defer u.store.mu.Unlock()

	for id, o := range u.upserts {
		u.store.orders[id] = o
	}
	for id := range u.deleted {
		delete(u.store.orders, id)
		u.store.deletes++
	}
	u.store.events = append(u.store.events, u.entries...)
	u.done = true

	return nil
}

func (u *memUOW) Rollback() error {
	u.done = true

	return nil
}

func (u *memUOW) OrderRepository() iorderrepo.IOrderRepository {
	return memOrders{u}
}

func (u *memUOW) LedgerRepository() iledgerrepo.ILedgerRepository {
	return memLedger{u}
}

type memOrders struct{ u *memUOW }

func (r memOrders) find(id uuid.UUID) (*order.Order, error) {
	if r.u.deleted[id] {
		return nil, order.ErrNotFound
	}
	if o, ok := r.u.upserts[id]; ok {
		return &o, nil
	}
	o, ok := r.u.store.order(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", order.ErrNotFound, id)
	}

	return &o, nil
}

func (r memOrders) Insert(_ context.Context, o *order.Order) error {
	if _, err := r.find(o.ID); err == nil {
		return fmt.Errorf("%w: %s", order.ErrAlreadyExists, o.ID)
	}
	now := time.Now()
	o.CreatedAt, o.UpdatedAt = now, now
	r.stage(*o)

	return nil
}

func (r memOrders) stage(o order.Order) {
	if r.u.upserts == nil {
		r.u.upserts = make(map[uuid.UUID]order.Order)
	}
	r.u.upserts[o.ID] = o
}

func (r memOrders) Get(_ context.Context, id uuid.UUID) (*order.Order, error) {
	return r.find(id)
}

func (r memOrders) GetForUpdate(_ context.Context, id uuid.UUID) (*order.Order, error) {
	return r.find(id)
}

func (r memOrders) Update(_ context.Context, o *order.Order) error {
	if _, err := r.find(o.ID); err != nil {
		return err
	}
	o.UpdatedAt = time.Now()
	r.stage(*o)

	return nil
}

func (r memOrders) Delete(_ context.Context, id uuid.UUID) error {
	if _, err := r.find(id); err != nil {
		return err
	}
	delete(r.u.upserts, id)
	r.u.deleted[id] = true

	return nil
}

func (r memOrders) ListStalled(context.Context, time.Time, int) ([]order.Order, error) {
	return nil, errors.New("not supported")
}

type memLedger struct{ u *memUOW }

func (r memLedger) Lookup(_ context.Context, chainID uuid.UUID, name event.Name) (*ledger.ProcessedEvent, error) {
	if r.u.store.lookupErr != nil {
		return nil, r.u.store.lookupErr
	}
	for _, e := range append(r.u.store.ledger(), r.u.entries...) {
		if e.ChainID == chainID && e.Event == name {
			return &e, nil
		}
	}

	return nil, nil
}

func (r memLedger) Record(_ context.Context, entry ledger.ProcessedEvent) error {
	if hook := r.u.store.beforeRecord; hook != nil {
		r.u.store.mu.Lock()
		hook(r.u.store, entry)
		r.u.store.mu.Unlock()
	}
	for _, e := range append(r.u.store.ledger(), r.u.entries...) {
		if e.EventID == entry.EventID || (e.ChainID == entry.ChainID && e.Event == entry.Event) {
			return fmt.Errorf("%w: %s/%s", ledger.ErrUniquenessViolation, entry.ChainID, entry.Event)
		}
	}
	entry.CreatedAt = time.Now()
	r.u.entries = append(r.u.entries, entry)

	return nil
}

func (r memLedger) ListByChain(_ context.Context, chainID uuid.UUID) ([]ledger.ProcessedEvent, error) {
	var out []ledger.ProcessedEvent
	for _, e := range r.u.store.ledger() {
		if e.ChainID == chainID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })

	return out, nil
}
