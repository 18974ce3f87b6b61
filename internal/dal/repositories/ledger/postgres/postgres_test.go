package postgresrepo

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/corray333/backend-labs/saga/internal/service/models/event"
	"github.com/corray333/backend-labs/saga/internal/service/models/ledger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLedgerMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	t.Cleanup(func() {
		mock.ExpectClose()
		require.NoError(t, db.Close())
		require.NoError(t, mock.ExpectationsWereMet())
	})

	return sqlx.NewDb(db, "sqlmock"), mock
}

func TestPostgresLedgerRepository_LookupHit(t *testing.T) {
	db, mock := newLedgerMockDB(t)
	repo := NewPostgresLedgerRepository(db)

	chain, eventID := uuid.New(), uuid.New()
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT .* FROM processed_event WHERE chain_id = \$1 AND event = \$2`).
		WithArgs(chain, "create_order").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(eventID.String(), chain.String(), "create_order", "reserve_buyer_credit",
				`{"order_id":"`+chain.String()+`","buyer_id":"`+uuid.Nil.String()+`","seller_id":null,"product_amount":"23.39"}`,
				0, now))

	entry, err := repo.Lookup(context.Background(), chain, event.CreateOrder)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, eventID, entry.EventID)
	assert.Equal(t, event.ReserveBuyerCredit, entry.NextEvent)
	assert.Equal(t, ledger.ReservedStep, entry.Step)
	require.NotNil(t, entry.NextPayload)
	assert.Equal(t, chain, entry.NextPayload.OrderID)
	assert.Equal(t, "23.39", entry.NextPayload.ProductAmount)
}

func TestPostgresLedgerRepository_LookupCorruptPayload(t *testing.T) {
	db, mock := newLedgerMockDB(t)
	repo := NewPostgresLedgerRepository(db)

	chain := uuid.New()
	mock.ExpectQuery("SELECT .* FROM processed_event").
		WithArgs(chain, "create_order").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(uuid.NewString(), chain.String(), "create_order", "reserve_buyer_credit", "{", 0, time.Now()))

	entry, err := repo.Lookup(context.Background(), chain, event.CreateOrder)
	require.Error(t, err)
	assert.Nil(t, entry)
}

func TestPostgresLedgerRepository_LookupMiss(t *testing.T) {
	db, mock := newLedgerMockDB(t)
	repo := NewPostgresLedgerRepository(db)

	chain := uuid.New()
	mock.ExpectQuery("SELECT .* FROM processed_event").
		WithArgs(chain, "revert_create_order").
		WillReturnRows(sqlmock.NewRows(columns))

	entry, err := repo.Lookup(context.Background(), chain, event.RevertCreateOrder)
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestPostgresLedgerRepository_RecordTerminal(t *testing.T) {
	db, mock := newLedgerMockDB(t)
	repo := NewPostgresLedgerRepository(db)

	chain, eventID := uuid.New(), uuid.New()
	mock.ExpectExec("INSERT INTO processed_event").
		WithArgs(eventID, chain, "approve_order_pending", nil, nil, 0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Record(context.Background(), ledger.ProcessedEvent{
		EventID: eventID,
		ChainID: chain,
		Event:   event.ApproveOrderPending,
		Step:    ledger.ReservedStep,
	})
	require.NoError(t, err)
}

func TestPostgresLedgerRepository_RecordUniquenessViolation(t *testing.T) {
	db, mock := newLedgerMockDB(t)
	repo := NewPostgresLedgerRepository(db)

	chain, eventID := uuid.New(), uuid.New()
	mock.ExpectExec("INSERT INTO processed_event").
		WithArgs(eventID, chain, "create_order", "reserve_buyer_credit", sqlmock.AnyArg(), 0).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "chain_event_uc"})

	err := repo.Record(context.Background(), ledger.ProcessedEvent{
		EventID:   eventID,
		ChainID:   chain,
		Event:     event.CreateOrder,
		NextEvent: event.ReserveBuyerCredit,
	})
	assert.ErrorIs(t, err, ledger.ErrUniquenessViolation)

	var pgErr *pgconn.PgError
	require.True(t, errors.As(err, &pgErr))
	assert.Equal(t, "chain_event_uc", pgErr.ConstraintName)
}

func TestPostgresLedgerRepository_RecordOtherError(t *testing.T) {
	db, mock := newLedgerMockDB(t)
	repo := NewPostgresLedgerRepository(db)

	boom := errors.New("connection reset")
	mock.ExpectExec("INSERT INTO processed_event").WillReturnError(boom)

	err := repo.Record(context.Background(), ledger.ProcessedEvent{
		EventID: uuid.New(),
		ChainID: uuid.New(),
		Event:   event.CreateOrder,
	})
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ledger.ErrUniquenessViolation)
}

func TestPostgresLedgerRepository_ListByChain(t *testing.T) {
	db, mock := newLedgerMockDB(t)
	repo := NewPostgresLedgerRepository(db)

	chain := uuid.New()
	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT .* FROM processed_event WHERE chain_id = \$1 ORDER BY created_at ASC, event ASC`).
		WithArgs(chain).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(uuid.NewString(), chain.String(), "create_order", "reserve_buyer_credit", `{"order_id":"`+chain.String()+`"}`, 0, now).
			AddRow(uuid.NewString(), chain.String(), "approve_order_pending", nil, nil, 0, now.Add(time.Second)))

	entries, err := repo.ListByChain(context.Background(), chain)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, event.CreateOrder, entries[0].Event)
	assert.True(t, entries[1].NextEvent.IsNone())
	assert.Nil(t, entries[1].NextPayload)
}

func TestPostgresLedgerRepository_RecordNextPayload(t *testing.T) {
	db, mock := newLedgerMockDB(t)
	repo := NewPostgresLedgerRepository(db)

	chain, eventID := uuid.New(), uuid.New()
	payload := &event.Payload{OrderID: chain, ProductID: 4, ProductAmount: "23.39"}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO processed_event").
		WithArgs(eventID, chain, "create_order", "reserve_buyer_credit", string(raw), 0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = repo.Record(context.Background(), ledger.ProcessedEvent{
		EventID:     eventID,
		ChainID:     chain,
		Event:       event.CreateOrder,
		NextEvent:   event.ReserveBuyerCredit,
		NextPayload: payload,
	})
	require.NoError(t, err)
}
