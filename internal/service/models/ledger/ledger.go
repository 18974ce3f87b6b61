package ledger

import (
	"errors"
	"time"

	"github.com/corray333/backend-labs/saga/internal/service/models/event"
	"github.com/google/uuid"
)

// ReservedStep is the only step value current handlers record.
const ReservedStep = 0

// ErrUniquenessViolation means another delivery already recorded the same (chain, event) pair.
var ErrUniquenessViolation = errors.New("processed event already recorded")

// ProcessedEvent is one idempotency ledger row.
type ProcessedEvent struct {
	EventID   uuid.UUID  `json:"eventId"`
	ChainID   uuid.UUID  `json:"chainId"`
	Event     event.Name `json:"event"`
	NextEvent event.Name `json:"nextEvent,omitempty"`
	// NextPayload is what was dispatched with NextEvent. Nil for terminal steps.
	NextPayload *event.Payload `json:"nextPayload,omitempty"`
	Step      int        `json:"step"`
	CreatedAt time.Time  `json:"createdAt"`
}
