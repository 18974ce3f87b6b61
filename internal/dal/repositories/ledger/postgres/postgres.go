package postgresrepo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/corray333/backend-labs/saga/internal/service/models/event"
	"github.com/corray333/backend-labs/saga/internal/service/models/ledger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
)

const table = "processed_event"

// uniqueViolation is the SQLSTATE Postgres reports for a violated unique constraint.
const uniqueViolation = "23505"

var columns = []string{
	"event_id",
	"chain_id",
	"event",
	"next_event",
	"next_payload",
	"step",
	"created_at",
}

// ProcessedEventDal represents processed event data access layer model
type ProcessedEventDal struct {
	EventID   uuid.UUID      `db:"event_id"`
	ChainID   uuid.UUID      `db:"chain_id"`
	Event     string         `db:"event"`
	NextEvent   sql.NullString `db:"next_event"`
	NextPayload sql.NullString `db:"next_payload"`
	Step        int            `db:"step"`
	CreatedAt   time.Time      `db:"created_at"`
}

// ToModel converts ProcessedEventDal to service layer ProcessedEvent model
func (p *ProcessedEventDal) ToModel() (ledger.ProcessedEvent, error) {
	entry := ledger.ProcessedEvent{
		EventID:   p.EventID,
		ChainID:   p.ChainID,
		Event:     event.Name(p.Event),
		NextEvent: event.Name(p.NextEvent.String),
		Step:      p.Step,
		CreatedAt: p.CreatedAt,
	}

	if p.NextPayload.Valid {
		var payload event.Payload
		if err := json.Unmarshal([]byte(p.NextPayload.String), &payload); err != nil {
			return entry, fmt.Errorf("failed to decode next payload of %s: %w", p.EventID, err)
		}
		entry.NextPayload = &payload
	}

	return entry, nil
}

func payloadValue(payload *event.Payload) (sql.NullString, error) {
	if payload == nil {
		return sql.NullString{}, nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode next payload: %w", err)
	}

	return sql.NullString{String: string(raw), Valid: true}, nil
}

type PostgresLedgerRepository struct {
	conn sqlx.ExtContext
}

func NewPostgresLedgerRepository(conn sqlx.ExtContext) *PostgresLedgerRepository {
	return &PostgresLedgerRepository{
		conn: conn,
	}
}

// Lookup returns the recorded entry for (chainID, name) or nil.
func (r *PostgresLedgerRepository) Lookup(
	ctx context.Context,
	chainID uuid.UUID,
	name event.Name,
) (*ledger.ProcessedEvent, error) {
	query, args, err := sq.Select(columns...).
		From(table).
		Where(sq.Eq{"chain_id": chainID, "event": name.String()}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	var dal ProcessedEventDal
	if err := sqlx.GetContext(ctx, r.conn, &dal, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to select processed event: %w", err)
	}

	entry, err := dal.ToModel()
	if err != nil {
		return nil, err
	}

	return &entry, nil
}

// Record appends a ledger entry.
func (r *PostgresLedgerRepository) Record(ctx context.Context, entry ledger.ProcessedEvent) error {
	next := sql.NullString{String: entry.NextEvent.String(), Valid: !entry.NextEvent.IsNone()}
	payload, err := payloadValue(entry.NextPayload)
	if err != nil {
		return err
	}

	query, args, err := sq.Insert(table).
		Columns(
			"event_id",
			"chain_id",
			"event",
			"next_event",
			"next_payload",
			"step",
		).
		Values(
			entry.EventID,
			entry.ChainID,
			entry.Event.String(),
			next,
			payload,
			entry.Step,
		).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert query: %w", err)
	}

	if _, err := r.conn.ExecContext(ctx, query, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s/%s: %w", ledger.ErrUniquenessViolation, entry.ChainID, entry.Event, err)
		}

		return fmt.Errorf("failed to insert processed event: %w", err)
	}

	return nil
}

// ListByChain returns every entry of a chain in insertion order.
func (r *PostgresLedgerRepository) ListByChain(ctx context.Context, chainID uuid.UUID) ([]ledger.ProcessedEvent, error) {
	query, args, err := sq.Select(columns...).
		From(table).
		Where(sq.Eq{"chain_id": chainID}).
		OrderBy("created_at ASC", "event ASC").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	var dals []ProcessedEventDal
	if err := sqlx.SelectContext(ctx, r.conn, &dals, query, args...); err != nil {
		return nil, fmt.Errorf("failed to select processed events: %w", err)
	}

	entries := make([]ledger.ProcessedEvent, 0, len(dals))
	for i := range dals {
		entry, err := dals[i].ToModel()
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	return entries, nil
}
