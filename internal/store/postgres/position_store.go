package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brianmcmichael/ajna-core/internal/domain"
)

// nextTokenIDCounter is the ledger_counters row holding the identity counter.
const nextTokenIDCounter = "next_token_id"

// PositionStore implements domain.PositionStore using PostgreSQL. Bucket
// balances are stored as a JSONB object of bucket index to decimal string,
// preserving full 18-decimal precision.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `token_id, owner_address, pool_address, nonce, buckets`

// bucketsToJSON renders bucket balances for the JSONB column.
func bucketsToJSON(buckets map[uint64]*big.Int) ([]byte, error) {
	out := make(map[string]string, len(buckets))
	for bucket, balance := range buckets {
		if balance == nil || balance.Sign() == 0 {
			continue
		}
		out[strconv.FormatUint(bucket, 10)] = balance.String()
	}
	return json.Marshal(out)
}

// bucketsFromJSON parses the JSONB column back into bucket balances.
func bucketsFromJSON(data []byte) (map[uint64]*big.Int, error) {
	raw := make(map[string]string)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	}
	out := make(map[uint64]*big.Int, len(raw))
	for key, value := range raw {
		bucket, err := strconv.ParseUint(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bucket key %q: %w", key, err)
		}
		balance, ok := new(big.Int).SetString(value, 10)
		if !ok {
			return nil, fmt.Errorf("bucket %d balance %q: not a decimal", bucket, value)
		}
		out[bucket] = balance
	}
	return out, nil
}

func scanPositionRow(row pgx.Row) (domain.Position, error) {
	var (
		pos          domain.Position
		tokenID      int64
		owner, pool  string
		nonce        int64
		bucketsJSON  []byte
	)

	if err := row.Scan(&tokenID, &owner, &pool, &nonce, &bucketsJSON); err != nil {
		return domain.Position{}, err
	}

	buckets, err := bucketsFromJSON(bucketsJSON)
	if err != nil {
		return domain.Position{}, err
	}

	pos.TokenID = uint64(tokenID)
	pos.Owner = common.HexToAddress(owner)
	pos.Pool = common.HexToAddress(pool)
	pos.Nonce = uint64(nonce)
	pos.Buckets = buckets
	return pos, nil
}

// Save upserts a position record.
func (s *PositionStore) Save(ctx context.Context, pos domain.Position) error {
	bucketsJSON, err := bucketsToJSON(pos.Buckets)
	if err != nil {
		return fmt.Errorf("postgres: marshal buckets for position %d: %w", pos.TokenID, err)
	}

	const query = `
		INSERT INTO positions (token_id, owner_address, pool_address, nonce, buckets, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (token_id) DO UPDATE SET
			owner_address = EXCLUDED.owner_address,
			pool_address  = EXCLUDED.pool_address,
			nonce         = EXCLUDED.nonce,
			buckets       = EXCLUDED.buckets,
			updated_at    = NOW()`

	_, err = s.pool.Exec(ctx, query,
		int64(pos.TokenID), pos.Owner.Hex(), pos.Pool.Hex(), int64(pos.Nonce), bucketsJSON,
	)
	if err != nil {
		return fmt.Errorf("postgres: save position %d: %w", pos.TokenID, err)
	}
	return nil
}

// Delete removes a position record. Deleting an absent record is not an
// error.
func (s *PositionStore) Delete(ctx context.Context, tokenID uint64) error {
	const query = `DELETE FROM positions WHERE token_id = $1`
	if _, err := s.pool.Exec(ctx, query, int64(tokenID)); err != nil {
		return fmt.Errorf("postgres: delete position %d: %w", tokenID, err)
	}
	return nil
}

// GetByID fetches a position record by token identity.
// It returns domain.ErrNotFound when no record exists.
func (s *PositionStore) GetByID(ctx context.Context, tokenID uint64) (domain.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions WHERE token_id = $1`

	pos, err := scanPositionRow(s.pool.QueryRow(ctx, query, int64(tokenID)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, fmt.Errorf("postgres: position %d: %w", tokenID, domain.ErrNotFound)
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %d: %w", tokenID, err)
	}
	return pos, nil
}

// List returns position records ordered by token identity with pagination
// and optional update-time filtering.
func (s *PositionStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND updated_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND updated_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY token_id ASC"

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
		return nil, fmt.Errorf("postgres: list positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		pos, err := scanPositionRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		positions = append(positions, pos)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list positions rows: %w", err)
	}
	return positions, nil
}

// NextTokenID reads the identity counter, defaulting to 1 before the first
// mint is persisted.
func (s *PositionStore) NextTokenID(ctx context.Context) (uint64, error) {
	const query = `SELECT value FROM ledger_counters WHERE name = $1`

	var value int64
	err := s.pool.QueryRow(ctx, query, nextTokenIDCounter).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 1, nil
		}
		return 0, fmt.Errorf("postgres: read token counter: %w", err)
	}
	return uint64(value), nil
}

// SetNextTokenID persists the identity counter.
func (s *PositionStore) SetNextTokenID(ctx context.Context, next uint64) error {
	const query = `
		INSERT INTO ledger_counters (name, value) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value`

	if _, err := s.pool.Exec(ctx, query, nextTokenIDCounter, int64(next)); err != nil {
		return fmt.Errorf("postgres: set token counter: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.PositionStore = (*PositionStore)(nil)
