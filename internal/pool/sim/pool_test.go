package sim

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brianmcmichael/ajna-core/internal/domain"
	"github.com/brianmcmichael/ajna-core/internal/wad"
)

var lender = common.BytesToAddress([]byte{0x0a})

func wadAmount(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), wad.One)
}

func TestDepositQuoteCreditsAtRate(t *testing.T) {
	pool := NewPool(common.Address{})
	ctx := context.Background()

	credited, err := pool.DepositQuote(ctx, lender, wadAmount(100), 5)
	require.NoError(t, err)
	assert.Equal(t, 0, wadAmount(100).Cmp(credited), "unit rate credits one share per quote token")
	assert.Equal(t, 0, wadAmount(100).Cmp(pool.Deposit(5)))

	// Doubling the rate halves the shares a deposit buys.
	pool.SetRate(5, wadAmount(2))
	credited, err = pool.DepositQuote(ctx, lender, wadAmount(100), 5)
	require.NoError(t, err)
	assert.Equal(t, 0, wadAmount(50).Cmp(credited))
}

func TestDepositQuoteRejectsOutOfRangeBucket(t *testing.T) {
	pool := NewPool(common.Address{})
	_, err := pool.DepositQuote(context.Background(), lender, wadAmount(1), wad.MaxBucketIndex+1)
	require.ErrorIs(t, err, domain.ErrBucketOutOfRange)
}

func TestExchangeValueQuoteOnly(t *testing.T) {
	pool := NewPool(common.Address{})
	ctx := context.Background()

	_, err := pool.DepositQuote(ctx, lender, wadAmount(100), 4156)
	require.NoError(t, err)

	collateral, quote, err := pool.ExchangeValue(ctx, wadAmount(40), 4156)
	require.NoError(t, err)
	assert.Zero(t, collateral.Sign(), "no collateral inventory means no collateral part")
	assert.Equal(t, 0, wadAmount(40).Cmp(quote))
}

func TestExchangeValuePaysCollateralFirst(t *testing.T) {
	pool := NewPool(common.Address{})
	ctx := context.Background()

	// Bucket 4156 prices collateral at exactly 1 WAD, so the split is legible.
	_, err := pool.DepositQuote(ctx, lender, wadAmount(100), 4156)
	require.NoError(t, err)
	pool.SeedCollateral(4156, wadAmount(3))

	collateral, quote, err := pool.ExchangeValue(ctx, wadAmount(10), 4156)
	require.NoError(t, err)
	assert.Equal(t, 0, wadAmount(3).Cmp(collateral), "collateral capped at inventory")
	assert.Equal(t, 0, wadAmount(7).Cmp(quote), "remainder paid in quote")
}

func TestExchangeValueCountsUnitsAsCollateral(t *testing.T) {
	pool := NewPool(common.Address{})
	ctx := context.Background()

	_, err := pool.DepositQuote(ctx, lender, wadAmount(100), 4156)
	require.NoError(t, err)
	pool.SeedUnits(4156, 11, 12)

	collateral, quote, err := pool.ExchangeValue(ctx, wadAmount(5), 4156)
	require.NoError(t, err)
	assert.Equal(t, 0, wadAmount(2).Cmp(collateral), "two units worth of collateral available")
	assert.Equal(t, 0, wadAmount(3).Cmp(quote))
}

func TestWithdrawQuoteBoundedByDeposit(t *testing.T) {
	pool := NewPool(common.Address{})
	ctx := context.Background()

	_, err := pool.DepositQuote(ctx, lender, wadAmount(10), 5)
	require.NoError(t, err)

	require.NoError(t, pool.WithdrawQuote(ctx, lender, wadAmount(6), 5))
	assert.Equal(t, 0, wadAmount(4).Cmp(pool.Deposit(5)))

	err = pool.WithdrawQuote(ctx, lender, wadAmount(5), 5)
	require.Error(t, err)
}

func TestWithdrawCollateralUnits(t *testing.T) {
	pool := NewPool(common.Address{})
	ctx := context.Background()
	pool.SeedUnits(5, 7, 8, 9)

	require.NoError(t, pool.WithdrawCollateralUnits(ctx, lender, []uint64{7, 9}, 5))
	assert.Equal(t, []uint64{8}, pool.Units(5))

	err := pool.WithdrawCollateralUnits(ctx, lender, []uint64{7}, 5)
	require.Error(t, err, "already withdrawn units cannot be withdrawn again")
}

func TestShareBalanceOfSeededLender(t *testing.T) {
	pool := NewPool(common.Address{})
	ctx := context.Background()
	pool.SeedLender(lender, 3, wadAmount(25))

	balance, err := pool.ShareBalanceOf(ctx, lender, 3)
	require.NoError(t, err)
	assert.Equal(t, 0, wadAmount(25).Cmp(balance))

	balance, err = pool.ShareBalanceOf(ctx, common.BytesToAddress([]byte{0xff}), 3)
	require.NoError(t, err)
	assert.Zero(t, balance.Sign())
}

func TestDirectoryCreatesPoolsOnFirstTouch(t *testing.T) {
	dir := NewDirectory(nil)
	addr := common.BytesToAddress([]byte{0x01})

	val, err := dir.Valuation(addr)
	require.NoError(t, err)
	liq, err := dir.Liquidity(addr)
	require.NoError(t, err)
	assert.Same(t, val, liq, "one pool instance per address")
	assert.Same(t, dir.Pool(addr), val)
}
