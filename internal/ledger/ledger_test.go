package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brianmcmichael/ajna-core/internal/domain"
	"github.com/brianmcmichael/ajna-core/internal/store/memory"
)

var (
	owner    = common.BytesToAddress([]byte{0x0a})
	approved = common.BytesToAddress([]byte{0x0b})
	stranger = common.BytesToAddress([]byte{0x0c})
	poolAddr = common.BytesToAddress([]byte{0x01})
	altPool  = common.BytesToAddress([]byte{0x02})
)

func wadAmount(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

// fakeRegistry implements domain.OwnershipRegistry with the synchronous
// transfer callback production registries provide.
type fakeRegistry struct {
	owners    map[uint64]common.Address
	delegates map[uint64]map[common.Address]bool
	callback  domain.TransferCallback
	mintErr   error
	burnErr   error
	burned    []uint64
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		owners:    make(map[uint64]common.Address),
		delegates: make(map[uint64]map[common.Address]bool),
	}
}

func (r *fakeRegistry) IsApprovedOrOwner(caller common.Address, tokenID uint64) (bool, error) {
	if r.owners[tokenID] == caller {
		return true, nil
	}
	return r.delegates[tokenID][caller], nil
}

func (r *fakeRegistry) CurrentOwner(tokenID uint64) (common.Address, error) {
	holder, ok := r.owners[tokenID]
	if !ok {
		return common.Address{}, domain.ErrUnknownToken
	}
	return holder, nil
}

func (r *fakeRegistry) Mint(ctx context.Context, to common.Address, tokenID uint64) error {
	if r.mintErr != nil {
		return r.mintErr
	}
	r.owners[tokenID] = to
	if r.callback != nil {
		r.callback(ctx, common.Address{}, to, tokenID)
	}
	return nil
}

func (r *fakeRegistry) Burn(ctx context.Context, tokenID uint64) error {
	if r.burnErr != nil {
		return r.burnErr
	}
	holder := r.owners[tokenID]
	delete(r.owners, tokenID)
	r.burned = append(r.burned, tokenID)
	if r.callback != nil {
		r.callback(ctx, holder, common.Address{}, tokenID)
	}
	return nil
}

func (r *fakeRegistry) delegate(tokenID uint64, to common.Address) {
	if r.delegates[tokenID] == nil {
		r.delegates[tokenID] = make(map[common.Address]bool)
	}
	r.delegates[tokenID][to] = true
}

// fakePool implements both pool interfaces with scripted outcomes and
// recorded calls.
type fakePool struct {
	creditShares *big.Int
	depositErr   error

	exCollateral *big.Int
	exQuote      *big.Int
	exErr        error
	exCalls      int

	lenderBalances map[string]*big.Int

	deposits        []poolMove
	quoteOut        []poolMove
	collateralOut   []poolMove
	unitsOut        [][]uint64
	withdrawQuote   error
	withdrawUnits   error
	withdrawFunErr  error
}

type poolMove struct {
	recipient common.Address
	amount    *big.Int
	bucket    uint64
}

func newFakePool() *fakePool {
	return &fakePool{
		creditShares:   new(big.Int),
		exCollateral:   new(big.Int),
		exQuote:        new(big.Int),
		lenderBalances: make(map[string]*big.Int),
	}
}

func lenderKey(owner common.Address, bucket uint64) string {
	return fmt.Sprintf("%s/%d", owner.Hex(), bucket)
}

func (p *fakePool) ExchangeValue(_ context.Context, shares *big.Int, bucket uint64) (*big.Int, *big.Int, error) {
	p.exCalls++
	if p.exErr != nil {
		return nil, nil, p.exErr
	}
	return new(big.Int).Set(p.exCollateral), new(big.Int).Set(p.exQuote), nil
}

func (p *fakePool) ShareBalanceOf(_ context.Context, owner common.Address, bucket uint64) (*big.Int, error) {
	if bal, ok := p.lenderBalances[lenderKey(owner, bucket)]; ok {
		return new(big.Int).Set(bal), nil
	}
	return new(big.Int), nil
}

func (p *fakePool) DepositQuote(_ context.Context, recipient common.Address, amount *big.Int, bucket uint64) (*big.Int, error) {
	if p.depositErr != nil {
		return nil, p.depositErr
	}
	p.deposits = append(p.deposits, poolMove{recipient, new(big.Int).Set(amount), bucket})
	return new(big.Int).Set(p.creditShares), nil
}

func (p *fakePool) WithdrawQuote(_ context.Context, recipient common.Address, amount *big.Int, bucket uint64) error {
	if p.withdrawQuote != nil {
		return p.withdrawQuote
	}
	p.quoteOut = append(p.quoteOut, poolMove{recipient, new(big.Int).Set(amount), bucket})
	return nil
}

func (p *fakePool) WithdrawCollateralFungible(_ context.Context, recipient common.Address, amount *big.Int, bucket uint64) error {
	if p.withdrawFunErr != nil {
		return p.withdrawFunErr
	}
	p.collateralOut = append(p.collateralOut, poolMove{recipient, new(big.Int).Set(amount), bucket})
	return nil
}

func (p *fakePool) WithdrawCollateralUnits(_ context.Context, recipient common.Address, unitIDs []uint64, bucket uint64) error {
	if p.withdrawUnits != nil {
		return p.withdrawUnits
	}
	out := make([]uint64, len(unitIDs))
	copy(out, unitIDs)
	p.unitsOut = append(p.unitsOut, out)
	return nil
}

// fakeDirectory resolves every pool address to the same fake pool.
type fakeDirectory struct {
	pool   *fakePool
	valErr error
	liqErr error
}

func (d *fakeDirectory) Valuation(common.Address) (domain.PoolValuation, error) {
	if d.valErr != nil {
		return nil, d.valErr
	}
	return d.pool, nil
}

func (d *fakeDirectory) Liquidity(common.Address) (domain.PoolLiquidity, error) {
	if d.liqErr != nil {
		return nil, d.liqErr
	}
	return d.pool, nil
}

// recordingSink collects emitted events.
type recordingSink struct {
	events []domain.Event
}

func (s *recordingSink) Emit(_ context.Context, ev domain.Event) {
	s.events = append(s.events, ev)
}

func (s *recordingSink) named(name string) []domain.Event {
	var out []domain.Event
	for _, ev := range s.events {
		if ev.EventName() == name {
			out = append(out, ev)
		}
	}
	return out
}

// failingStore wraps a real store and fails writes on demand.
type failingStore struct {
	domain.PositionStore
	failSave   bool
	failDelete bool
}

func (s *failingStore) Save(ctx context.Context, pos domain.Position) error {
	if s.failSave {
		return errors.New("store down")
	}
	return s.PositionStore.Save(ctx, pos)
}

func (s *failingStore) Delete(ctx context.Context, tokenID uint64) error {
	if s.failDelete {
		return errors.New("store down")
	}
	return s.PositionStore.Delete(ctx, tokenID)
}

type fixture struct {
	ledger   *Ledger
	registry *fakeRegistry
	pool     *fakePool
	sink     *recordingSink
}

func newFixture(t *testing.T, store domain.PositionStore) *fixture {
	t.Helper()
	reg := newFakeRegistry()
	pool := newFakePool()
	sink := &recordingSink{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	led := New(reg, &fakeDirectory{pool: pool}, store, sink, logger)
	reg.callback = led.HandleTransfer
	return &fixture{ledger: led, registry: reg, pool: pool, sink: sink}
}

// mintFunded mints a position for owner and credits shares into a bucket via
// a pool deposit.
func (f *fixture) mintFunded(t *testing.T, bucket uint64, credited int64) uint64 {
	t.Helper()
	ctx := context.Background()
	id, err := f.ledger.Mint(ctx, domain.MintParams{Recipient: owner, Pool: poolAddr})
	require.NoError(t, err)
	if credited > 0 {
		f.pool.creditShares = wadAmount(credited)
		err = f.ledger.IncreaseLiquidity(ctx, domain.IncreaseLiquidityParams{
			Caller: owner, TokenID: id, Pool: poolAddr, Recipient: owner,
			Amount: wadAmount(credited), Bucket: bucket,
		})
		require.NoError(t, err)
	}
	return id
}

func TestMintAssignsSequentialIdentities(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first, err := f.ledger.Mint(ctx, domain.MintParams{Recipient: owner, Pool: poolAddr})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first, "identities start at 1")

	second, err := f.ledger.Mint(ctx, domain.MintParams{Recipient: stranger, Pool: altPool})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), second)

	bound, err := f.ledger.PoolOf(first)
	require.NoError(t, err)
	assert.Equal(t, poolAddr, bound)

	pos, err := f.ledger.Position(first)
	require.NoError(t, err)
	assert.Equal(t, owner, pos.Owner, "creation transfer sets the owner")
	assert.Equal(t, poolAddr, pos.Pool)
	assert.Empty(t, pos.Buckets)

	mints := f.sink.named(domain.EventMint)
	require.Len(t, mints, 2)
	ev := mints[0].(domain.MintEvent)
	assert.Equal(t, owner, ev.Recipient)
	assert.Equal(t, poolAddr, ev.Pool)
	assert.Equal(t, uint64(1), ev.TokenID)
}

func TestMintRegistryFailureReleasesIdentity(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.registry.mintErr = errors.New("registry down")
	_, err := f.ledger.Mint(ctx, domain.MintParams{Recipient: owner, Pool: poolAddr})
	require.Error(t, err)
	assert.Zero(t, f.ledger.Count())

	f.registry.mintErr = nil
	id, err := f.ledger.Mint(ctx, domain.MintParams{Recipient: owner, Pool: poolAddr})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id, "failed mint does not consume the identity")
}

func TestIncreaseLiquidityCreditsPoolShares(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := f.mintFunded(t, 0, 0)

	f.pool.creditShares = wadAmount(98)
	err := f.ledger.IncreaseLiquidity(ctx, domain.IncreaseLiquidityParams{
		Caller: owner, TokenID: id, Pool: poolAddr, Recipient: owner,
		Amount: wadAmount(100), Bucket: 5,
	})
	require.NoError(t, err)

	assert.Equal(t, 0, wadAmount(98).Cmp(f.ledger.LPTokens(id, 5)), "stored balance is the credited share amount")

	require.Len(t, f.pool.deposits, 1)
	assert.Equal(t, 0, wadAmount(100).Cmp(f.pool.deposits[0].amount))
	assert.Equal(t, uint64(5), f.pool.deposits[0].bucket)

	events := f.sink.named(domain.EventIncreaseLiquidity)
	require.Len(t, events, 1)
	ev := events[0].(domain.IncreaseLiquidityEvent)
	assert.Equal(t, owner, ev.Recipient)
	assert.Equal(t, uint64(5), ev.Bucket)
	assert.Equal(t, 0, wadAmount(100).Cmp(ev.Amount), "notification carries the deposited amount, not the credited shares")
}

func TestIncreaseLiquidityZeroCreditFails(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := f.mintFunded(t, 0, 0)

	f.pool.creditShares = big.NewInt(0)
	err := f.ledger.IncreaseLiquidity(ctx, domain.IncreaseLiquidityParams{
		Caller: owner, TokenID: id, Pool: poolAddr, Recipient: owner,
		Amount: wadAmount(100), Bucket: 5,
	})
	require.ErrorIs(t, err, domain.ErrNoSharesCredited)
	assert.Zero(t, f.ledger.LPTokens(id, 5).Sign())
	assert.Empty(t, f.sink.named(domain.EventIncreaseLiquidity))
}

func TestIncreaseLiquidityAuthorization(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := f.mintFunded(t, 0, 0)

	tests := []struct {
		name    string
		caller  common.Address
		pool    common.Address
		wantErr error
	}{
		{"stranger is rejected", stranger, poolAddr, domain.ErrUnauthorized},
		{"wrong pool is rejected", owner, altPool, domain.ErrPoolMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.ledger.IncreaseLiquidity(ctx, domain.IncreaseLiquidityParams{
				Caller: tt.caller, TokenID: id, Pool: tt.pool, Recipient: owner,
				Amount: wadAmount(10), Bucket: 5,
			})
			require.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, f.pool.deposits, "guard fires before any pool call")
			assert.Zero(t, f.ledger.LPTokens(id, 5).Sign())
		})
	}
}

func TestIncreaseLiquidityDelegatedCaller(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := f.mintFunded(t, 0, 0)
	f.registry.delegate(id, approved)

	f.pool.creditShares = wadAmount(7)
	err := f.ledger.IncreaseLiquidity(ctx, domain.IncreaseLiquidityParams{
		Caller: approved, TokenID: id, Pool: poolAddr, Recipient: owner,
		Amount: wadAmount(7), Bucket: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, wadAmount(7).Cmp(f.ledger.LPTokens(id, 3)))
}

func TestDecreaseLiquidityPaysQuoteOnly(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := f.mintFunded(t, 5, 98)

	f.pool.exCollateral = big.NewInt(0)
	f.pool.exQuote = wadAmount(97)
	res, err := f.ledger.DecreaseLiquidity(ctx, domain.DecreaseLiquidityParams{
		Caller: owner, TokenID: id, Pool: poolAddr, Recipient: owner,
		Shares: wadAmount(98), Bucket: 5,
	})
	require.NoError(t, err)

	require.Len(t, f.pool.quoteOut, 1)
	assert.Equal(t, 0, wadAmount(97).Cmp(f.pool.quoteOut[0].amount))
	assert.Empty(t, f.pool.collateralOut, "zero collateral equivalent skips the collateral payout")
	assert.Zero(t, f.ledger.LPTokens(id, 5).Sign())
	assert.Equal(t, 0, wadAmount(97).Cmp(res.Quote))
	assert.Zero(t, res.Collateral.Sign())
}

func TestDecreaseLiquidityPaysCollateral(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := f.mintFunded(t, 5, 98)

	f.pool.exCollateral = wadAmount(3)
	f.pool.exQuote = wadAmount(90)
	res, err := f.ledger.DecreaseLiquidity(ctx, domain.DecreaseLiquidityParams{
		Caller: owner, TokenID: id, Pool: poolAddr, Recipient: stranger,
		Shares: wadAmount(50), Bucket: 5,
	})
	require.NoError(t, err)

	require.Len(t, f.pool.collateralOut, 1)
	assert.Equal(t, 0, wadAmount(3).Cmp(f.pool.collateralOut[0].amount))
	assert.Equal(t, stranger, f.pool.collateralOut[0].recipient)
	assert.Equal(t, 0, wadAmount(48).Cmp(f.ledger.LPTokens(id, 5)))

	events := f.sink.named(domain.EventDecreaseLiquidity)
	require.Len(t, events, 1)
	ev := events[0].(domain.DecreaseLiquidityEvent)
	assert.Equal(t, 0, wadAmount(3).Cmp(ev.Collateral))
	assert.Equal(t, 0, wadAmount(90).Cmp(ev.Quote))
	assert.Equal(t, 0, res.Collateral.Cmp(ev.Collateral))
}

func TestDecreaseLiquidityInsufficientShares(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := f.mintFunded(t, 5, 98)

	_, err := f.ledger.DecreaseLiquidity(ctx, domain.DecreaseLiquidityParams{
		Caller: owner, TokenID: id, Pool: poolAddr, Recipient: owner,
		Shares: wadAmount(99), Bucket: 5,
	})
	require.ErrorIs(t, err, domain.ErrInsufficientShares)
	assert.Equal(t, 0, wadAmount(98).Cmp(f.ledger.LPTokens(id, 5)), "balance unchanged")
	assert.Zero(t, f.pool.exCalls, "precondition fails before the valuation call")
	assert.Empty(t, f.pool.quoteOut)
}

func TestDecreaseLiquidityUnitsFloorsCount(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := f.mintFunded(t, 5, 98)

	f.pool.exCollateral = new(big.Int).Add(wadAmount(2), big.NewInt(9e17)) // 2.9 units
	f.pool.exQuote = wadAmount(40)
	res, err := f.ledger.DecreaseLiquidityUnits(ctx, domain.DecreaseLiquidityUnitsParams{
		Caller: owner, TokenID: id, Pool: poolAddr, Recipient: owner,
		Shares: wadAmount(98), Bucket: 5,
		UnitCandidates: []uint64{7, 8, 9},
	})
	require.NoError(t, err)

	require.Len(t, f.pool.unitsOut, 1)
	assert.Equal(t, []uint64{7, 8}, f.pool.unitsOut[0], "floored count selects the leading candidates")
	assert.Equal(t, []uint64{7, 8}, res.Units)
	assert.Zero(t, f.ledger.LPTokens(id, 5).Sign())

	events := f.sink.named(domain.EventDecreaseLiquidityUnits)
	require.Len(t, events, 1)
	assert.Equal(t, []uint64{7, 8}, events[0].(domain.DecreaseLiquidityUnitsEvent).Units)
}

func TestDecreaseLiquidityUnitsZeroCountSymmetry(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := f.mintFunded(t, 5, 98)

	f.pool.exCollateral = big.NewInt(9e17) // 0.9 units floors to zero
	f.pool.exQuote = wadAmount(40)
	res, err := f.ledger.DecreaseLiquidityUnits(ctx, domain.DecreaseLiquidityUnitsParams{
		Caller: owner, TokenID: id, Pool: poolAddr, Recipient: owner,
		Shares: wadAmount(50), Bucket: 5,
		UnitCandidates: []uint64{7, 8, 9},
	})
	require.NoError(t, err)

	assert.Empty(t, f.pool.unitsOut, "no transfer attempted for a zero count")
	assert.Empty(t, res.Units)
	require.Len(t, f.pool.quoteOut, 1, "quote bookkeeping identical to the non-zero branch")
	assert.Equal(t, 0, wadAmount(40).Cmp(f.pool.quoteOut[0].amount))
	assert.Equal(t, 0, wadAmount(48).Cmp(f.ledger.LPTokens(id, 5)), "share subtraction identical to the non-zero branch")
}

func TestDecreaseLiquidityUnitsShortCandidateList(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := f.mintFunded(t, 5, 98)

	f.pool.exCollateral = wadAmount(2)
	f.pool.exQuote = wadAmount(40)
	_, err := f.ledger.DecreaseLiquidityUnits(ctx, domain.DecreaseLiquidityUnitsParams{
		Caller: owner, TokenID: id, Pool: poolAddr, Recipient: owner,
		Shares: wadAmount(98), Bucket: 5,
		UnitCandidates: []uint64{7},
	})
	require.ErrorIs(t, err, domain.ErrInsufficientUnits)
	assert.Equal(t, 0, wadAmount(98).Cmp(f.ledger.LPTokens(id, 5)), "balance unchanged")
	assert.Empty(t, f.pool.quoteOut)
	assert.Empty(t, f.pool.unitsOut)
}

func TestMemorializeImportsPoolBalances(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := f.mintFunded(t, 1, 5) // pre-existing tokenized balance at bucket 1

	f.pool.lenderBalances[lenderKey(owner, 1)] = wadAmount(10)
	f.pool.lenderBalances[lenderKey(owner, 2)] = wadAmount(20)

	err := f.ledger.MemorializePositions(ctx, domain.MemorializeParams{
		TokenID: id, Pool: poolAddr, Owner: owner, Buckets: []uint64{1, 2},
	})
	require.NoError(t, err)

	assert.Equal(t, 0, wadAmount(10).Cmp(f.ledger.LPTokens(id, 1)), "import overwrites, never adds")
	assert.Equal(t, 0, wadAmount(20).Cmp(f.ledger.LPTokens(id, 2)))

	events := f.sink.named(domain.EventMemorializePosition)
	require.Len(t, events, 1, "one notification regardless of bucket count")
	ev := events[0].(domain.MemorializePositionEvent)
	assert.Equal(t, owner, ev.Owner)
	assert.Equal(t, id, ev.TokenID)
}

func TestMemorializeRepeatedBucketLastValueWins(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := f.mintFunded(t, 0, 0)

	f.pool.lenderBalances[lenderKey(owner, 3)] = wadAmount(10)
	err := f.ledger.MemorializePositions(ctx, domain.MemorializeParams{
		TokenID: id, Pool: poolAddr, Owner: owner, Buckets: []uint64{3, 3, 3},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, wadAmount(10).Cmp(f.ledger.LPTokens(id, 3)), "repeats overwrite rather than accumulate")
}

func TestMemorializeValidation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := f.mintFunded(t, 0, 0)

	err := f.ledger.MemorializePositions(ctx, domain.MemorializeParams{
		TokenID: 99, Pool: poolAddr, Owner: owner, Buckets: []uint64{1},
	})
	require.ErrorIs(t, err, domain.ErrPositionNotFound)

	err = f.ledger.MemorializePositions(ctx, domain.MemorializeParams{
		TokenID: id, Pool: altPool, Owner: owner, Buckets: []uint64{1},
	})
	require.ErrorIs(t, err, domain.ErrPoolMismatch)
}

func TestBurnRequiresEveryBucketEmpty(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := f.mintFunded(t, 5, 98)

	err := f.ledger.Burn(ctx, domain.BurnParams{Caller: owner, TokenID: id, Pool: poolAddr, Bucket: 5})
	require.ErrorIs(t, err, domain.ErrLiquidityNotRemoved)

	// Residual balance in a bucket the caller did not pass must also block
	// the burn, or that claim would be silently stranded.
	err = f.ledger.Burn(ctx, domain.BurnParams{Caller: owner, TokenID: id, Pool: poolAddr, Bucket: 4})
	require.ErrorIs(t, err, domain.ErrLiquidityNotRemoved)

	pos, err := f.ledger.Position(id)
	require.NoError(t, err)
	assert.Equal(t, 0, wadAmount(98).Cmp(pos.ShareBalance(5)), "state unchanged after failed burn")
}

func TestBurnErasesRecord(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := f.mintFunded(t, 5, 98)

	f.pool.exQuote = wadAmount(97)
	_, err := f.ledger.DecreaseLiquidity(ctx, domain.DecreaseLiquidityParams{
		Caller: owner, TokenID: id, Pool: poolAddr, Recipient: owner,
		Shares: wadAmount(98), Bucket: 5,
	})
	require.NoError(t, err)

	err = f.ledger.Burn(ctx, domain.BurnParams{Caller: owner, TokenID: id, Pool: poolAddr, Bucket: 5})
	require.NoError(t, err)

	assert.Zero(t, f.ledger.LPTokens(id, 5).Sign(), "erased balances read as zero")
	assert.Equal(t, []uint64{id}, f.registry.burned, "identity retired in the registry")

	err = f.ledger.IncreaseLiquidity(ctx, domain.IncreaseLiquidityParams{
		Caller: owner, TokenID: id, Pool: poolAddr, Recipient: owner,
		Amount: wadAmount(1), Bucket: 5,
	})
	require.ErrorIs(t, err, domain.ErrPositionNotFound, "further operations fail once the record is gone")

	events := f.sink.named(domain.EventBurn)
	require.Len(t, events, 1)
	ev := events[0].(domain.BurnEvent)
	assert.Equal(t, owner, ev.Caller)
	assert.Equal(t, uint64(5), ev.Bucket)
}

func TestPoolBindingImmutable(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := f.mintFunded(t, 5, 98)

	checkPool := func(stage string) {
		t.Helper()
		pos, err := f.ledger.Position(id)
		require.NoError(t, err)
		assert.Equal(t, poolAddr, pos.Pool, "pool binding changed after %s", stage)
		bound, err := f.ledger.PoolOf(id)
		require.NoError(t, err)
		assert.Equal(t, poolAddr, bound)
	}
	checkPool("mint and increase")

	f.pool.exQuote = wadAmount(1)
	_, err := f.ledger.DecreaseLiquidity(ctx, domain.DecreaseLiquidityParams{
		Caller: owner, TokenID: id, Pool: poolAddr, Recipient: owner,
		Shares: wadAmount(1), Bucket: 5,
	})
	require.NoError(t, err)
	checkPool("decrease")

	err = f.ledger.MemorializePositions(ctx, domain.MemorializeParams{
		TokenID: id, Pool: poolAddr, Owner: owner, Buckets: []uint64{2},
	})
	require.NoError(t, err)
	checkPool("memorialize")
}

func TestLPTokensIdempotentRead(t *testing.T) {
	f := newFixture(t, nil)
	id := f.mintFunded(t, 5, 42)

	first := f.ledger.LPTokens(id, 5)
	second := f.ledger.LPTokens(id, 5)
	assert.Equal(t, 0, first.Cmp(second))

	// Mutating the returned value must not reach the stored balance.
	first.SetInt64(0)
	assert.Equal(t, 0, wadAmount(42).Cmp(f.ledger.LPTokens(id, 5)))
}

func TestConsumeNonceSingleUse(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := f.mintFunded(t, 0, 0)

	nonce, err := f.ledger.Nonce(id)
	require.NoError(t, err)
	require.Zero(t, nonce)

	require.NoError(t, f.ledger.ConsumeNonce(ctx, id, 0))

	err = f.ledger.ConsumeNonce(ctx, id, 0)
	require.ErrorIs(t, err, domain.ErrInvalidNonce, "a consumed nonce is never accepted again")

	err = f.ledger.ConsumeNonce(ctx, id, 5)
	require.ErrorIs(t, err, domain.ErrInvalidNonce)

	nonce, err = f.ledger.Nonce(id)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), nonce)
}

func TestHandleTransferSyncsOwner(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := f.mintFunded(t, 0, 0)

	f.ledger.HandleTransfer(ctx, owner, stranger, id)

	pos, err := f.ledger.Position(id)
	require.NoError(t, err)
	assert.Equal(t, stranger, pos.Owner)
}

func TestTokenMetadataTracksLiveBuckets(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := f.mintFunded(t, 9, 10)

	f.pool.creditShares = wadAmount(4)
	require.NoError(t, f.ledger.IncreaseLiquidity(ctx, domain.IncreaseLiquidityParams{
		Caller: owner, TokenID: id, Pool: poolAddr, Recipient: owner,
		Amount: wadAmount(4), Bucket: 3,
	}))

	meta, err := f.ledger.TokenMetadata(id)
	require.NoError(t, err)
	assert.Equal(t, []uint64{3, 9}, meta.Buckets, "bucket set is live balances, ascending")
	assert.Equal(t, poolAddr, meta.Pool)

	f.pool.exQuote = wadAmount(4)
	_, err = f.ledger.DecreaseLiquidity(ctx, domain.DecreaseLiquidityParams{
		Caller: owner, TokenID: id, Pool: poolAddr, Recipient: owner,
		Shares: wadAmount(4), Bucket: 3,
	})
	require.NoError(t, err)

	meta, err = f.ledger.TokenMetadata(id)
	require.NoError(t, err)
	assert.Equal(t, []uint64{9}, meta.Buckets, "emptied buckets drop out of the metadata set")
}

func TestPositionValueInQuote(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := f.mintFunded(t, 4156, 98) // bucket 4156 prices at exactly 1 WAD

	f.pool.exCollateral = wadAmount(2)
	f.pool.exQuote = wadAmount(50)
	value, err := f.ledger.PositionValueInQuote(ctx, id, 4156)
	require.NoError(t, err)
	assert.Equal(t, 0, wadAmount(52).Cmp(value), "quote plus collateral at unit price")

	_, err = f.ledger.PositionValueInQuote(ctx, id, 8000)
	require.ErrorIs(t, err, domain.ErrBucketOutOfRange)

	_, err = f.ledger.PositionValueInQuote(ctx, 99, 4156)
	require.ErrorIs(t, err, domain.ErrPositionNotFound)
}

func TestPersistFailureUnwindsMutation(t *testing.T) {
	mem := memory.NewPositionStore()
	store := &failingStore{PositionStore: mem}
	f := newFixture(t, store)
	ctx := context.Background()
	id := f.mintFunded(t, 5, 98)

	store.failSave = true
	f.pool.creditShares = wadAmount(10)
	err := f.ledger.IncreaseLiquidity(ctx, domain.IncreaseLiquidityParams{
		Caller: owner, TokenID: id, Pool: poolAddr, Recipient: owner,
		Amount: wadAmount(10), Bucket: 5,
	})
	require.Error(t, err)
	assert.Equal(t, 0, wadAmount(98).Cmp(f.ledger.LPTokens(id, 5)), "credit rolled back when persistence fails")

	store.failDelete = true
	store.failSave = false
	f.pool.exQuote = wadAmount(98)
	_, err = f.ledger.DecreaseLiquidity(ctx, domain.DecreaseLiquidityParams{
		Caller: owner, TokenID: id, Pool: poolAddr, Recipient: owner,
		Shares: wadAmount(98), Bucket: 5,
	})
	require.NoError(t, err)
	err = f.ledger.Burn(ctx, domain.BurnParams{Caller: owner, TokenID: id, Pool: poolAddr, Bucket: 5})
	require.Error(t, err)
	_, err = f.ledger.Position(id)
	assert.NoError(t, err, "record survives a failed burn")
}

func TestRestoreRebuildsStateAndCounter(t *testing.T) {
	mem := memory.NewPositionStore()
	ctx := context.Background()

	first := newFixture(t, mem)
	idA := first.mintFunded(t, 5, 98)
	idB := first.mintFunded(t, 7, 3)

	first.pool.exQuote = wadAmount(3)
	_, err := first.ledger.DecreaseLiquidity(ctx, domain.DecreaseLiquidityParams{
		Caller: owner, TokenID: idB, Pool: poolAddr, Recipient: owner,
		Shares: wadAmount(3), Bucket: 7,
	})
	require.NoError(t, err)
	require.NoError(t, first.ledger.Burn(ctx, domain.BurnParams{Caller: owner, TokenID: idB, Pool: poolAddr, Bucket: 7}))

	second := newFixture(t, mem)
	require.NoError(t, second.ledger.Restore(ctx))
	for id, holder := range first.registry.owners {
		second.registry.owners[id] = holder
	}

	assert.Equal(t, 1, second.ledger.Count())
	assert.Equal(t, 0, wadAmount(98).Cmp(second.ledger.LPTokens(idA, 5)))

	next, err := second.ledger.Mint(ctx, domain.MintParams{Recipient: owner, Pool: poolAddr})
	require.NoError(t, err)
	assert.Equal(t, idB+1, next, "burned identities are never reissued")
}
