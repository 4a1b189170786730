package domain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PoolValuation reports the value of pool-issued shares in a price bucket.
// Implementations are resolved per pool address through a PoolDirectory.
type PoolValuation interface {
	// ExchangeValue returns the collateral and quote-token amounts equivalent
	// to the given share amount at the given bucket, at the pool's current
	// exchange rate.
	ExchangeValue(ctx context.Context, shares *big.Int, bucket uint64) (collateral, quote *big.Int, err error)

	// ShareBalanceOf returns the raw share balance the pool's own ledger holds
	// for the given lender in the given bucket.
	ShareBalanceOf(ctx context.Context, owner common.Address, bucket uint64) (*big.Int, error)
}

// PoolLiquidity moves quote tokens and collateral in and out of a price
// bucket on behalf of the position ledger.
type PoolLiquidity interface {
	// DepositQuote deposits a quote-token amount at the bucket and returns the
	// share amount the pool credited for it.
	DepositQuote(ctx context.Context, recipient common.Address, amount *big.Int, bucket uint64) (*big.Int, error)

	// WithdrawQuote pays a quote-token amount out of the bucket to recipient.
	WithdrawQuote(ctx context.Context, recipient common.Address, amount *big.Int, bucket uint64) error

	// WithdrawCollateralFungible pays a fungible collateral amount out of the
	// bucket to recipient.
	WithdrawCollateralFungible(ctx context.Context, recipient common.Address, amount *big.Int, bucket uint64) error

	// WithdrawCollateralUnits transfers the given discrete collateral units
	// out of the bucket to recipient.
	WithdrawCollateralUnits(ctx context.Context, recipient common.Address, unitIDs []uint64, bucket uint64) error
}

// PoolDirectory resolves pool interfaces by pool address. Backends that
// cannot move liquidity (the read-only chain mirror) return
// ErrLiquidityUnsupported from Liquidity.
type PoolDirectory interface {
	Valuation(pool common.Address) (PoolValuation, error)
	Liquidity(pool common.Address) (PoolLiquidity, error)
}
