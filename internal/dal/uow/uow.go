package uow

import (
	"context"
	"database/sql"
	"errors"

	"github.com/corray333/backend-labs/saga/internal/dal/interfaces/iledgerrepo"
	"github.com/corray333/backend-labs/saga/internal/dal/interfaces/iorderrepo"
	"github.com/corray333/backend-labs/saga/internal/dal/postgres"
	ledgerrepo "github.com/corray333/backend-labs/saga/internal/dal/repositories/ledger/postgres"
	orderrepo "github.com/corray333/backend-labs/saga/internal/dal/repositories/order/postgres"

	"github.com/jmoiron/sqlx"
)

// UnitOfWork scopes the order and ledger repositories to one transaction.
// Before Begin the repositories run directly on the pool.
type UnitOfWork struct {
	db         *sqlx.DB
	tx         *sqlx.Tx
	orderRepo  iorderrepo.IOrderRepository
	ledgerRepo iledgerrepo.ILedgerRepository
}

func (u *UnitOfWork) OrderRepository() iorderrepo.IOrderRepository {
	return u.orderRepo
}

func (u *UnitOfWork) LedgerRepository() iledgerrepo.ILedgerRepository {
	return u.ledgerRepo
}

func NewUnitOfWork(client *postgres.Client) *UnitOfWork {
	return newUnitOfWork(client.DB())
}

func newUnitOfWork(db *sqlx.DB) *UnitOfWork {
	return &UnitOfWork{
		db:         db,
		orderRepo:  orderrepo.NewPostgresOrderRepository(db),
		ledgerRepo: ledgerrepo.NewPostgresLedgerRepository(db),
	}
}

func (u *UnitOfWork) Begin(ctx context.Context) error {
	tx, err := u.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	u.tx = tx
	u.orderRepo = orderrepo.NewPostgresOrderRepository(tx)
	u.ledgerRepo = ledgerrepo.NewPostgresLedgerRepository(tx)

	return nil
}

func (u *UnitOfWork) Commit() error {
	if u.tx == nil {
		return nil
	}

	return u.tx.Commit()
}

// Rollback aborts the transaction. Calling it after Commit is a no-op.
func (u *UnitOfWork) Rollback() error {
	if u.tx == nil {
		return nil
	}

	if err := u.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}

	return nil
}
