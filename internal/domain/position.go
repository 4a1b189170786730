package domain

import (
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// Position is the ledger record binding one token identity to one pool and a
// set of per-bucket share balances. Bucket keys are created lazily on first
// credit; a bucket absent from the map is zero.
type Position struct {
	TokenID uint64
	Owner   common.Address
	Pool    common.Address
	Nonce   uint64
	Buckets map[uint64]*big.Int
}

// ShareBalance returns the stored share balance for the given bucket. Missing
// buckets read as zero. The returned value is a copy.
func (p Position) ShareBalance(bucket uint64) *big.Int {
	if bal, ok := p.Buckets[bucket]; ok && bal != nil {
		return new(big.Int).Set(bal)
	}
	return new(big.Int)
}

// BucketList returns the buckets holding a non-zero balance, ascending.
func (p Position) BucketList() []uint64 {
	buckets := make([]uint64, 0, len(p.Buckets))
	for b, bal := range p.Buckets {
		if bal != nil && bal.Sign() > 0 {
			buckets = append(buckets, b)
		}
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i] < buckets[j] })
	return buckets
}

// Clone returns a deep copy of the position, including balance values.
func (p Position) Clone() Position {
	out := p
	out.Buckets = make(map[uint64]*big.Int, len(p.Buckets))
	for b, bal := range p.Buckets {
		out.Buckets[b] = new(big.Int).Set(bal)
	}
	return out
}

// PositionMetadata is the presentation payload for a token identity. Buckets
// holds the position's live bucket set, ascending. Rendering the payload to a
// display string is delegated to consumers.
type PositionMetadata struct {
	TokenID uint64         `json:"token_id"`
	Pool    common.Address `json:"pool"`
	Buckets []uint64       `json:"buckets"`
}

// MintParams are the inputs to the mint operation.
type MintParams struct {
	Recipient common.Address
	Pool      common.Address
}

// IncreaseLiquidityParams are the inputs to the increase-liquidity operation.
// Amount is the quote-token amount to deposit, WAD-scaled.
type IncreaseLiquidityParams struct {
	Caller    common.Address
	TokenID   uint64
	Pool      common.Address
	Recipient common.Address
	Amount    *big.Int
	Bucket    uint64
}

// DecreaseLiquidityParams are the inputs to the fungible-collateral
// decrease-liquidity operation. Shares is the share amount to redeem.
type DecreaseLiquidityParams struct {
	Caller    common.Address
	TokenID   uint64
	Pool      common.Address
	Recipient common.Address
	Shares    *big.Int
	Bucket    uint64
}

// DecreaseLiquidityResult reports the amounts paid out by a fungible
// decrease-liquidity operation.
type DecreaseLiquidityResult struct {
	Collateral *big.Int
	Quote      *big.Int
}

// DecreaseLiquidityUnitsParams are the inputs to the non-fungible-collateral
// decrease-liquidity operation. UnitCandidates is the caller-supplied list of
// collateral unit identifiers, in fixed input order.
type DecreaseLiquidityUnitsParams struct {
	Caller         common.Address
	TokenID        uint64
	Pool           common.Address
	Recipient      common.Address
	Shares         *big.Int
	Bucket         uint64
	UnitCandidates []uint64
}

// DecreaseLiquidityUnitsResult reports the outcome of a non-fungible
// decrease-liquidity operation. Units holds the transferred unit identifiers;
// it is empty when the floored collateral count was zero.
type DecreaseLiquidityUnitsResult struct {
	Units []uint64
	Quote *big.Int
}

// MemorializeParams are the inputs to the memorialize operation. Owner is the
// owner-of-record whose pool-native balances are imported. Buckets may repeat;
// the last value wins.
type MemorializeParams struct {
	TokenID uint64
	Pool    common.Address
	Owner   common.Address
	Buckets []uint64
}

// BurnParams are the inputs to the burn operation.
type BurnParams struct {
	Caller  common.Address
	TokenID uint64
	Pool    common.Address
	Bucket  uint64
}
