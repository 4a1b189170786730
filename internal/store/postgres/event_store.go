package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brianmcmichael/ajna-core/internal/domain"
)

// EventStore implements domain.EventStore using PostgreSQL. The table is
// append-only; rows leave it only through the archiver's DeleteBefore.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a new EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

const eventSelectCols = `id, name, token_id, pool_address, payload, created_at`

func scanEventRows(rows pgx.Rows) ([]domain.EventRecord, error) {
	var records []domain.EventRecord
	for rows.Next() {
		var (
			rec         domain.EventRecord
			tokenID     int64
			poolAddr    string
			payloadJSON []byte
		)
		if err := rows.Scan(&rec.ID, &rec.Name, &tokenID, &poolAddr, &payloadJSON, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if payloadJSON != nil {
			if err := json.Unmarshal(payloadJSON, &rec.Payload); err != nil {
				return nil, fmt.Errorf("unmarshal payload for event %s: %w", rec.ID, err)
			}
		}
		rec.TokenID = uint64(tokenID)
		rec.Pool = common.HexToAddress(poolAddr)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Append inserts an event record. A zero CreatedAt is stamped with the
// current time.
func (s *EventStore) Append(ctx context.Context, rec domain.EventRecord) error {
	payloadJSON, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("postgres: marshal payload for event %s: %w", rec.ID, err)
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	const query = `
		INSERT INTO position_events (id, name, token_id, pool_address, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err = s.pool.Exec(ctx, query,
		rec.ID, rec.Name, int64(rec.TokenID), rec.Pool.Hex(), payloadJSON, createdAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: append event %s: %w", rec.Name, err)
	}
	return nil
}

// ListByToken returns a token's events, newest first, with pagination and
// optional time filtering.
func (s *EventStore) ListByToken(ctx context.Context, tokenID uint64, opts domain.ListOpts) ([]domain.EventRecord, error) {
	query := `SELECT ` + eventSelectCols + ` FROM position_events WHERE token_id = $1`
	args := []any{int64(tokenID)}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events for token %d: %w", tokenID, err)
	}
	defer rows.Close()

	records, err := scanEventRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan events for token %d: %w", tokenID, err)
	}
	return records, nil
}

// ListBefore returns up to limit events older than the cutoff, oldest first,
// the order the archiver writes them out in.
func (s *EventStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.EventRecord, error) {
	query := `SELECT ` + eventSelectCols + ` FROM position_events WHERE created_at < $1 ORDER BY created_at ASC`
	args := []any{before}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()

	records, err := scanEventRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan events before %s: %w", before.Format(time.RFC3339), err)
	}
	return records, nil
}

// DeleteBefore removes events older than the cutoff, returning the number of
// rows removed.
func (s *EventStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	const query = `DELETE FROM position_events WHERE created_at < $1`
	tag, err := s.pool.Exec(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete events before %s: %w", before.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

// Count returns the total number of stored events.
func (s *EventStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM position_events`).Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: count events: %w", err)
	}
	return count, nil
}

// Compile-time interface check.
var _ domain.EventStore = (*EventStore)(nil)
