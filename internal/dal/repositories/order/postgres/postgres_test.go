package postgresrepo

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/corray333/backend-labs/saga/internal/service/models/money"
	"github.com/corray333/backend-labs/saga/internal/service/models/order"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOrderMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
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

func orderRows() *sqlmock.Rows {
	return sqlmock.NewRows(columns)
}

func TestPostgresOrderRepository_Insert(t *testing.T) {
	db, mock := newOrderMockDB(t)
	repo := NewPostgresOrderRepository(db)

	id, buyer := uuid.New(), uuid.New()
	now := time.Now().UTC()

	mock.ExpectQuery("INSERT INTO order_order").
		WithArgs(id, "init", nil, buyer, int64(1), nil, "desc", "10x10").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	o := &order.Order{
		ID:          id,
		Status:      order.StatusInit,
		BuyerID:     buyer,
		ProductID:   1,
		Description: "desc",
		Dimension:   "10x10",
	}
	require.NoError(t, repo.Insert(context.Background(), o))
	assert.Equal(t, now, o.CreatedAt)
	assert.Equal(t, now, o.UpdatedAt)
}

func TestPostgresOrderRepository_InsertDuplicate(t *testing.T) {
	db, mock := newOrderMockDB(t)
	repo := NewPostgresOrderRepository(db)

	mock.ExpectQuery("INSERT INTO order_order").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "order_order_pkey"})

	err := repo.Insert(context.Background(), &order.Order{ID: uuid.New(), Status: order.StatusInit})
	assert.ErrorIs(t, err, order.ErrAlreadyExists)
}

func TestPostgresOrderRepository_GetForUpdate(t *testing.T) {
	db, mock := newOrderMockDB(t)
	repo := NewPostgresOrderRepository(db)

	id, buyer, seller := uuid.New(), uuid.New(), uuid.New()
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT .* FROM order_order WHERE uuid = \$1 FOR UPDATE`).
		WithArgs(id).
		WillReturnRows(orderRows().AddRow(
			id.String(), "pending", seller.String(), buyer.String(), int64(1), "23.39", "desc", "dim", now, now,
		))

	o, err := repo.GetForUpdate(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, o.ID)
	assert.Equal(t, order.StatusPending, o.Status)
	assert.Equal(t, uuid.NullUUID{UUID: seller, Valid: true}, o.SellerID)
	require.NotNil(t, o.TotalAmount)
	assert.Equal(t, money.Amount(2339), *o.TotalAmount)
}

func TestPostgresOrderRepository_GetNotFound(t *testing.T) {
	db, mock := newOrderMockDB(t)
	repo := NewPostgresOrderRepository(db)

	id := uuid.New()
	mock.ExpectQuery(`SELECT .* FROM order_order WHERE uuid = \$1`).
		WithArgs(id).
		WillReturnRows(orderRows())

	_, err := repo.Get(context.Background(), id)
	assert.ErrorIs(t, err, order.ErrNotFound)
}

func TestPostgresOrderRepository_Update(t *testing.T) {
	db, mock := newOrderMockDB(t)
	repo := NewPostgresOrderRepository(db)

	id, seller := uuid.New(), uuid.New()
	amount := money.Amount(2339)

	mock.ExpectExec(`UPDATE order_order SET status = \$1, seller_id = \$2, total_incl_tax = \$3, updated_at = NOW\(\) WHERE uuid = \$4`).
		WithArgs("pending", seller, "23.39", id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Update(context.Background(), &order.Order{
		ID:          id,
		Status:      order.StatusPending,
		SellerID:    uuid.NullUUID{UUID: seller, Valid: true},
		TotalAmount: &amount,
	})
	require.NoError(t, err)
}

func TestPostgresOrderRepository_DeleteMissing(t *testing.T) {
	db, mock := newOrderMockDB(t)
	repo := NewPostgresOrderRepository(db)

	id := uuid.New()
	mock.ExpectExec("DELETE FROM order_order").
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.Delete(context.Background(), id), order.ErrNotFound)
}

func TestPostgresOrderRepository_ExecError(t *testing.T) {
	db, mock := newOrderMockDB(t)
	repo := NewPostgresOrderRepository(db)

	boom := errors.New("connection reset")
	id := uuid.New()
	mock.ExpectExec("DELETE FROM order_order").
		WithArgs(id).
		WillReturnError(boom)

	assert.ErrorIs(t, repo.Delete(context.Background(), id), boom)
}

func TestPostgresOrderRepository_ListStalled(t *testing.T) {
	db, mock := newOrderMockDB(t)
	repo := NewPostgresOrderRepository(db)

	id, buyer := uuid.New(), uuid.New()
	before := time.Now().Add(-time.Hour)

	mock.ExpectQuery(`SELECT .* FROM order_order WHERE status IN \(\$1,\$2\) AND updated_at < \$3 ORDER BY updated_at ASC LIMIT 10`).
		WithArgs("init", "pending", before).
		WillReturnRows(orderRows().AddRow(
			id.String(), "init", nil, buyer.String(), int64(3), nil, "", "", before, before,
		))

	orders, err := repo.ListStalled(context.Background(), before, 10)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, id, orders[0].ID)
	assert.Nil(t, orders[0].TotalAmount)
	assert.False(t, orders[0].SellerID.Valid)
}
