// Package sim provides an in-process pool backend with deterministic bucket
// accounting. It backs local development and integration tests when no chain
// endpoint is configured.
package sim

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/brianmcmichael/ajna-core/internal/domain"
	"github.com/brianmcmichael/ajna-core/internal/wad"
)

// Pool simulates a single pool's bucket inventory: quote deposits, fungible
// collateral, discrete collateral units, and pool-native lender balances.
// Shares convert at a per-bucket exchange rate, 1 WAD until moved with
// SetRate to simulate interest accrual.
type Pool struct {
	addr common.Address

	mu      sync.Mutex
	buckets map[uint64]*bucketState
}

type bucketState struct {
	rate       *big.Int
	deposit    *big.Int
	collateral *big.Int
	units      []uint64
	lenders    map[common.Address]*big.Int
}

var (
	_ domain.PoolValuation = (*Pool)(nil)
	_ domain.PoolLiquidity = (*Pool)(nil)
)

func NewPool(addr common.Address) *Pool {
	return &Pool{addr: addr, buckets: make(map[uint64]*bucketState)}
}

// Addr returns the pool's identifying address.
func (p *Pool) Addr() common.Address {
	return p.addr
}

func (p *Pool) bucket(index uint64) *bucketState {
	state, ok := p.buckets[index]
	if !ok {
		state = &bucketState{
			rate:       new(big.Int).Set(wad.One),
			deposit:    new(big.Int),
			collateral: new(big.Int),
			lenders:    make(map[common.Address]*big.Int),
		}
		p.buckets[index] = state
	}
	return state
}

func checkBucket(index uint64) error {
	if index > wad.MaxBucketIndex {
		return fmt.Errorf("sim: bucket %d: %w", index, domain.ErrBucketOutOfRange)
	}
	return nil
}

// DepositQuote accepts a quote amount and credits shares at the bucket's
// exchange rate.
func (p *Pool) DepositQuote(_ context.Context, _ common.Address, amount *big.Int, bucket uint64) (*big.Int, error) {
	if err := checkBucket(bucket); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return new(big.Int), nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	state := p.bucket(bucket)
	credited := wad.Div(amount, state.rate)
	state.deposit.Add(state.deposit, amount)
	return credited, nil
}

// ExchangeValue prices a share amount into its collateral and quote parts.
// Collateral is paid first, up to the bucket's inventory, and the remainder
// in quote tokens capped at the bucket's deposit.
func (p *Pool) ExchangeValue(_ context.Context, shares *big.Int, bucket uint64) (*big.Int, *big.Int, error) {
	if err := checkBucket(bucket); err != nil {
		return nil, nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	state := p.bucket(bucket)
	price, err := wad.PriceAt(bucket)
	if err != nil {
		return nil, nil, err
	}

	value := wad.Mul(orZero(shares), state.rate)

	available := new(big.Int).Set(state.collateral)
	available.Add(available, unitsAsWad(len(state.units)))

	collateral := new(big.Int)
	if available.Sign() > 0 && price.Sign() > 0 {
		collateral = wad.Div(value, price)
		if collateral.Cmp(available) > 0 {
			collateral.Set(available)
		}
	}

	quote := new(big.Int).Sub(value, wad.Mul(collateral, price))
	if quote.Sign() < 0 {
		quote.SetInt64(0)
	}
	if quote.Cmp(state.deposit) > 0 {
		quote.Set(state.deposit)
	}
	return collateral, quote, nil
}

// ShareBalanceOf returns the pool-native lender balance, zero when the lender
// holds nothing in the bucket.
func (p *Pool) ShareBalanceOf(_ context.Context, owner common.Address, bucket uint64) (*big.Int, error) {
	if err := checkBucket(bucket); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	state := p.bucket(bucket)
	if balance, ok := state.lenders[owner]; ok {
		return new(big.Int).Set(balance), nil
	}
	return new(big.Int), nil
}

// WithdrawQuote pays quote tokens out of the bucket's deposit.
func (p *Pool) WithdrawQuote(_ context.Context, _ common.Address, amount *big.Int, bucket uint64) error {
	if err := checkBucket(bucket); err != nil {
		return err
	}
	amount = orZero(amount)

	p.mu.Lock()
	defer p.mu.Unlock()
	state := p.bucket(bucket)
	if state.deposit.Cmp(amount) < 0 {
		return fmt.Errorf("sim: bucket %d: withdraw %s exceeds deposit %s", bucket, amount, state.deposit)
	}
	state.deposit.Sub(state.deposit, amount)
	return nil
}

// WithdrawCollateralFungible pays fungible collateral out of the bucket.
func (p *Pool) WithdrawCollateralFungible(_ context.Context, _ common.Address, amount *big.Int, bucket uint64) error {
	if err := checkBucket(bucket); err != nil {
		return err
	}
	amount = orZero(amount)

	p.mu.Lock()
	defer p.mu.Unlock()
	state := p.bucket(bucket)
	if state.collateral.Cmp(amount) < 0 {
		return fmt.Errorf("sim: bucket %d: withdraw %s exceeds collateral %s", bucket, amount, state.collateral)
	}
	state.collateral.Sub(state.collateral, amount)
	return nil
}

// WithdrawCollateralUnits removes exactly the named unit identifiers from the
// bucket. Every identifier must be present.
func (p *Pool) WithdrawCollateralUnits(_ context.Context, _ common.Address, unitIDs []uint64, bucket uint64) error {
	if err := checkBucket(bucket); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	state := p.bucket(bucket)

	held := make(map[uint64]bool, len(state.units))
	for _, id := range state.units {
		held[id] = true
	}
	for _, id := range unitIDs {
		if !held[id] {
			return fmt.Errorf("sim: bucket %d: unit %d not held", bucket, id)
		}
		delete(held, id)
	}

	kept := state.units[:0]
	for _, id := range state.units {
		if held[id] {
			kept = append(kept, id)
		}
	}
	state.units = kept
	return nil
}

// SetRate moves the bucket's exchange rate, simulating interest accrual.
func (p *Pool) SetRate(bucket uint64, rate *big.Int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bucket(bucket).rate = new(big.Int).Set(rate)
}

// SeedLender sets a pool-native lender balance, the state a memorialization
// imports.
func (p *Pool) SeedLender(owner common.Address, bucket uint64, shares *big.Int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bucket(bucket).lenders[owner] = new(big.Int).Set(shares)
}

// SeedCollateral adds fungible collateral inventory to the bucket.
func (p *Pool) SeedCollateral(bucket uint64, amount *big.Int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	state := p.bucket(bucket)
	state.collateral.Add(state.collateral, amount)
}

// SeedUnits adds discrete collateral units to the bucket.
func (p *Pool) SeedUnits(bucket uint64, unitIDs ...uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	state := p.bucket(bucket)
	state.units = append(state.units, unitIDs...)
}

// Units returns the unit identifiers currently held in the bucket.
func (p *Pool) Units(bucket uint64) []uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	state := p.bucket(bucket)
	out := make([]uint64, len(state.units))
	copy(out, state.units)
	return out
}

// Deposit returns the bucket's quote inventory.
func (p *Pool) Deposit(bucket uint64) *big.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return new(big.Int).Set(p.bucket(bucket).deposit)
}

func unitsAsWad(count int) *big.Int {
	return new(big.Int).Mul(big.NewInt(int64(count)), wad.One)
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
