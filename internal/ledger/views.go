package ledger

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/brianmcmichael/ajna-core/internal/domain"
	"github.com/brianmcmichael/ajna-core/internal/wad"
)

// LPTokens returns the stored share balance for a token at a bucket. Pure
// read: missing positions and missing buckets both read as zero.
func (l *Ledger) LPTokens(tokenID, bucket uint64) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pos, ok := l.positions[tokenID]
	if !ok {
		return new(big.Int)
	}
	return pos.ShareBalance(bucket)
}

// PositionValueInQuote values the stored share balance at a bucket. The pool
// reports the (collateral, quote) equivalents and the result is
// quote + collateral priced at the bucket's own rate, the position's notional
// value denominated in quote tokens.
func (l *Ledger) PositionValueInQuote(ctx context.Context, tokenID, bucket uint64) (*big.Int, error) {
	l.mu.RLock()
	pos, ok := l.positions[tokenID]
	var shares *big.Int
	var pool common.Address
	if ok {
		shares = pos.ShareBalance(bucket)
		pool = pos.Pool
	}
	l.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("ledger: position value: %w", domain.ErrPositionNotFound)
	}

	price, err := wad.PriceAt(bucket)
	if err != nil {
		return nil, fmt.Errorf("ledger: position value: %w", err)
	}
	val, err := l.pools.Valuation(pool)
	if err != nil {
		return nil, fmt.Errorf("ledger: position value: %w", err)
	}
	collateral, quote, err := val.ExchangeValue(ctx, shares, bucket)
	if err != nil {
		return nil, fmt.Errorf("ledger: position value: exchange value: %w", err)
	}

	value := new(big.Int).Add(orZero(quote), wad.Mul(orZero(collateral), price))
	return value, nil
}

// Position returns a copy of the full record for a token identity.
func (l *Ledger) Position(tokenID uint64) (domain.Position, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pos, ok := l.positions[tokenID]
	if !ok {
		return domain.Position{}, fmt.Errorf("ledger: position %d: %w", tokenID, domain.ErrPositionNotFound)
	}
	return pos.Clone(), nil
}

// List returns copies of all records ordered by token identity, honoring
// Limit and Offset.
func (l *Ledger) List(opts domain.ListOpts) []domain.Position {
	l.mu.RLock()
	ids := make([]uint64, 0, len(l.positions))
	for id := range l.positions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	if opts.Offset > 0 {
		if opts.Offset >= len(ids) {
			ids = nil
		} else {
			ids = ids[opts.Offset:]
		}
	}
	if opts.Limit > 0 && opts.Limit < len(ids) {
		ids = ids[:opts.Limit]
	}

	out := make([]domain.Position, 0, len(ids))
	for _, id := range ids {
		out = append(out, l.positions[id].Clone())
	}
	l.mu.RUnlock()
	return out
}

// TokenMetadata builds the presentation payload for a token identity: the
// identity, its bound pool, and the live bucket set.
func (l *Ledger) TokenMetadata(tokenID uint64) (domain.PositionMetadata, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pos, ok := l.positions[tokenID]
	if !ok {
		return domain.PositionMetadata{}, fmt.Errorf("ledger: metadata %d: %w", tokenID, domain.ErrPositionNotFound)
	}
	return domain.PositionMetadata{
		TokenID: tokenID,
		Pool:    pos.Pool,
		Buckets: pos.BucketList(),
	}, nil
}

// Nonce returns a position's current permit nonce.
func (l *Ledger) Nonce(tokenID uint64) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pos, ok := l.positions[tokenID]
	if !ok {
		return 0, fmt.Errorf("ledger: nonce %d: %w", tokenID, domain.ErrPositionNotFound)
	}
	return pos.Nonce, nil
}

// PoolOf returns the pool binding for a token identity.
func (l *Ledger) PoolOf(tokenID uint64) (common.Address, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pool, ok := l.bindings[tokenID]
	if !ok {
		return common.Address{}, fmt.Errorf("ledger: pool of %d: %w", tokenID, domain.ErrPositionNotFound)
	}
	return pool, nil
}

// Count returns the number of live position records.
func (l *Ledger) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.positions)
}

// NextTokenID returns the identity the next mint will assign.
func (l *Ledger) NextTokenID() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.nextID
}
