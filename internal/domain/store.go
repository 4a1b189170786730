package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ListOpts provides pagination and filtering for list queries. A zero Limit
// means no limit.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// PositionStore persists the ledger's position records and its identity
// counter. The ledger writes through on every committed mutation and restores
// from the store at boot.
type PositionStore interface {
	Save(ctx context.Context, pos Position) error
	Delete(ctx context.Context, tokenID uint64) error
	GetByID(ctx context.Context, tokenID uint64) (Position, error)
	List(ctx context.Context, opts ListOpts) ([]Position, error)

	// NextTokenID returns the persisted identity counter, or 1 when no
	// counter has been stored yet.
	NextTokenID(ctx context.Context) (uint64, error)

	// SetNextTokenID persists the identity counter. Burned identities are
	// never reissued, so the counter outlives the records it numbered.
	SetNextTokenID(ctx context.Context, next uint64) error
}

// EventRecord is a persisted ledger or registry event.
type EventRecord struct {
	ID        string
	Name      string
	TokenID   uint64
	Pool      common.Address
	Payload   map[string]any
	CreatedAt time.Time
}

// EventStore persists the append-only event log consumed by indexers and the
// cold-storage archiver.
type EventStore interface {
	Append(ctx context.Context, rec EventRecord) error
	ListByToken(ctx context.Context, tokenID uint64, opts ListOpts) ([]EventRecord, error)
	ListBefore(ctx context.Context, before time.Time, limit int) ([]EventRecord, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
	Count(ctx context.Context) (int64, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
	ListBefore(ctx context.Context, before time.Time, limit int) ([]AuditEntry, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}
