package iledgerrepo

import (
	"context"

	"github.com/corray333/backend-labs/saga/internal/service/models/event"
	"github.com/corray333/backend-labs/saga/internal/service/models/ledger"
	"github.com/google/uuid"
)

// ILedgerRepository is an interface for the processed event ledger.
type ILedgerRepository interface {
	// Lookup returns nil without error when (chainID, name) was never recorded.
	Lookup(ctx context.Context, chainID uuid.UUID, name event.Name) (*ledger.ProcessedEvent, error)
	// Record returns ledger.ErrUniquenessViolation when the pair or the event id already exists.
	Record(ctx context.Context, entry ledger.ProcessedEvent) error
	ListByChain(ctx context.Context, chainID uuid.UUID) ([]ledger.ProcessedEvent, error)
}
