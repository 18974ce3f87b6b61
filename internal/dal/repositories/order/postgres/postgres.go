package postgresrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/corray333/backend-labs/saga/internal/service/models/money"
	"github.com/corray333/backend-labs/saga/internal/service/models/order"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
)

const table = "order_order"

// uniqueViolation is the SQLSTATE Postgres reports for a violated unique constraint.
const uniqueViolation = "23505"

var columns = []string{
	"uuid",
	"status",
	"seller_id",
	"buyer_id",
	"product_id",
	"total_incl_tax",
	"description_text",
	"dimension_text",
	"created_at",
	"updated_at",
}

// OrderDal represents order data access layer model
type OrderDal struct {
	UUID            uuid.UUID      `db:"uuid"`
	Status          string         `db:"status"`
	SellerID        uuid.NullUUID  `db:"seller_id"`
	BuyerID         uuid.UUID      `db:"buyer_id"`
	ProductID       int64          `db:"product_id"`
	TotalInclTax    sql.NullString `db:"total_incl_tax"`
	DescriptionText string         `db:"description_text"`
	DimensionText   string         `db:"dimension_text"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

// ToModel converts OrderDal to service layer Order model
func (o *OrderDal) ToModel() (*order.Order, error) {
	var total *money.Amount
	if o.TotalInclTax.Valid {
		amount, err := money.ParseAmount(o.TotalInclTax.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse total of order %s: %w", o.UUID, err)
		}
		total = &amount
	}

	return &order.Order{
		ID:          o.UUID,
		Status:      order.Status(o.Status),
		BuyerID:     o.BuyerID,
		SellerID:    o.SellerID,
		ProductID:   o.ProductID,
		TotalAmount: total,
		Description: o.DescriptionText,
		Dimension:   o.DimensionText,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	}, nil
}

func totalValue(amount *money.Amount) sql.NullString {
	if amount == nil {
		return sql.NullString{}
	}

	return sql.NullString{String: amount.String(), Valid: true}
}

type PostgresOrderRepository struct {
	conn sqlx.ExtContext
}

func NewPostgresOrderRepository(conn sqlx.ExtContext) *PostgresOrderRepository {
	return &PostgresOrderRepository{
		conn: conn,
	}
}

// Insert creates the order row. Timestamps are stamped by the database.
func (r *PostgresOrderRepository) Insert(ctx context.Context, o *order.Order) error {
	query, args, err := sq.Insert(table).
		Columns(
			"uuid",
			"status",
			"seller_id",
			"buyer_id",
			"product_id",
			"total_incl_tax",
			"description_text",
			"dimension_text",
		).
		Values(
			o.ID,
			o.Status.String(),
			o.SellerID,
			o.BuyerID,
			o.ProductID,
			totalValue(o.TotalAmount),
			o.Description,
			o.Dimension,
		).
		Suffix("RETURNING created_at, updated_at").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert query: %w", err)
	}

	row := r.conn.QueryRowxContext(ctx, query, args...)
	if err := row.Scan(&o.CreatedAt, &o.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s: %w", order.ErrAlreadyExists, o.ID, err)
		}

		return fmt.Errorf("failed to insert order: %w", err)
	}

	return nil
}

// Get reads an order without locking it.
func (r *PostgresOrderRepository) Get(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	return r.get(ctx, id, "")
}

// GetForUpdate reads an order and holds its row lock until the transaction ends.
func (r *PostgresOrderRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	return r.get(ctx, id, "FOR UPDATE")
}

func (r *PostgresOrderRepository) get(ctx context.Context, id uuid.UUID, suffix string) (*order.Order, error) {
	builder := sq.Select(columns...).
		From(table).
		Where(sq.Eq{"uuid": id}).
		PlaceholderFormat(sq.Dollar)
	if suffix != "" {
		builder = builder.Suffix(suffix)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	var dal OrderDal
	if err := sqlx.GetContext(ctx, r.conn, &dal, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", order.ErrNotFound, id)
		}

		return nil, fmt.Errorf("failed to select order: %w", err)
	}

	return dal.ToModel()
}

// Update persists status, seller and total. updated_at is refreshed on every call.
func (r *PostgresOrderRepository) Update(ctx context.Context, o *order.Order) error {
	query, args, err := sq.Update(table).
		Set("status", o.Status.String()).
		Set("seller_id", o.SellerID).
		Set("total_incl_tax", totalValue(o.TotalAmount)).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"uuid": o.ID}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update query: %w", err)
	}

	res, err := r.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}

	return expectOneRow(res, o.ID)
}

// Delete removes the order row.
func (r *PostgresOrderRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query, args, err := sq.Delete(table).
		Where(sq.Eq{"uuid": id}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build delete query: %w", err)
	}

	res, err := r.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}

	return expectOneRow(res, id)
}

// ListStalled returns non-terminal orders not touched since updatedBefore, oldest first.
func (r *PostgresOrderRepository) ListStalled(
	ctx context.Context,
	updatedBefore time.Time,
	limit int,
) ([]order.Order, error) {
	query, args, err := sq.Select(columns...).
		From(table).
		Where(sq.Eq{"status": []string{order.StatusInit.String(), order.StatusPending.String()}}).
		Where(sq.Lt{"updated_at": updatedBefore}).
		OrderBy("updated_at ASC").
		Limit(uint64(limit)).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	var dals []OrderDal
	if err := sqlx.SelectContext(ctx, r.conn, &dals, query, args...); err != nil {
		return nil, fmt.Errorf("failed to select stalled orders: %w", err)
	}

	orders := make([]order.Order, 0, len(dals))
	for i := range dals {
		o, err := dals[i].ToModel()
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}

	return orders, nil
}

func expectOneRow(res sql.Result, id uuid.UUID) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", order.ErrNotFound, id)
	}

	return nil
}
