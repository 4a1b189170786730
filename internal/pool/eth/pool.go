// Package eth mirrors pool valuations from deployed pool contracts over
// JSON-RPC. The mirror is read-only: liquidity movements settle on chain
// through the pools themselves, so the liquidity surface is unsupported and
// balance-mutating operations require the sim backend.
package eth

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/brianmcmichael/ajna-core/internal/domain"
	"github.com/brianmcmichael/ajna-core/internal/wad"
)

// Function selectors: first 4 bytes of keccak256 of the canonical signatures.
// Pools key their buckets by price, so bucket indexes convert before the call.
var (
	selExchangeValue = ethcrypto.Keccak256([]byte("getLPTokenExchangeValue(uint256,uint256)"))[:4]
	selLPBalance     = ethcrypto.Keccak256([]byte("lpBalance(address,uint256)"))[:4]
)

// ContractCaller is the subset of the RPC client the mirror needs.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Directory resolves pool addresses to on-chain valuation mirrors sharing one
// RPC client.
type Directory struct {
	caller ContractCaller
	logger *slog.Logger
}

var _ domain.PoolDirectory = (*Directory)(nil)

// Dial connects to a JSON-RPC endpoint and returns a Directory backed by it.
func Dial(ctx context.Context, rpcURL string, logger *slog.Logger) (*Directory, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("eth: dialing %s: %w", rpcURL, err)
	}
	return NewDirectory(client, logger), nil
}

func NewDirectory(caller ContractCaller, logger *slog.Logger) *Directory {
	return &Directory{caller: caller, logger: logger}
}

func (d *Directory) Valuation(pool common.Address) (domain.PoolValuation, error) {
	return &Pool{addr: pool, caller: d.caller}, nil
}

// Liquidity is unsupported: the mirror never moves funds.
func (d *Directory) Liquidity(pool common.Address) (domain.PoolLiquidity, error) {
	return nil, fmt.Errorf("eth: pool %s: %w", pool.Hex(), domain.ErrLiquidityUnsupported)
}

// Pool reads one deployed pool contract.
type Pool struct {
	addr   common.Address
	caller ContractCaller
}

var _ domain.PoolValuation = (*Pool)(nil)

// ExchangeValue calls getLPTokenExchangeValue(lpTokens, price) and decodes
// the (collateral, quote) pair.
func (p *Pool) ExchangeValue(ctx context.Context, shares *big.Int, bucket uint64) (*big.Int, *big.Int, error) {
	price, err := wad.PriceAt(bucket)
	if err != nil {
		return nil, nil, fmt.Errorf("eth: exchange value: %w", err)
	}

	data := concatBytes(
		selExchangeValue,
		bigIntTo32Bytes(orZero(shares)),
		bigIntTo32Bytes(price),
	)
	out, err := p.caller.CallContract(ctx, ethereum.CallMsg{To: &p.addr, Data: data}, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("eth: pool %s: exchange value call: %w", p.addr.Hex(), err)
	}

	collateral, err := wordAt(out, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("eth: pool %s: exchange value: %w", p.addr.Hex(), err)
	}
	quote, err := wordAt(out, 1)
	if err != nil {
		return nil, nil, fmt.Errorf("eth: pool %s: exchange value: %w", p.addr.Hex(), err)
	}
	return collateral, quote, nil
}

// ShareBalanceOf calls lpBalance(owner, price) and decodes the lender's
// share balance.
func (p *Pool) ShareBalanceOf(ctx context.Context, owner common.Address, bucket uint64) (*big.Int, error) {
	price, err := wad.PriceAt(bucket)
	if err != nil {
		return nil, fmt.Errorf("eth: share balance: %w", err)
	}

	data := concatBytes(
		selLPBalance,
		common.LeftPadBytes(owner.Bytes(), 32),
		bigIntTo32Bytes(price),
	)
	out, err := p.caller.CallContract(ctx, ethereum.CallMsg{To: &p.addr, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("eth: pool %s: lp balance call: %w", p.addr.Hex(), err)
	}

	balance, err := wordAt(out, 0)
	if err != nil {
		return nil, fmt.Errorf("eth: pool %s: lp balance: %w", p.addr.Hex(), err)
	}
	return balance, nil
}

// wordAt decodes the i-th 32-byte return word.
func wordAt(out []byte, i int) (*big.Int, error) {
	end := (i + 1) * 32
	if len(out) < end {
		return nil, fmt.Errorf("return data has %d bytes, need %d", len(out), end)
	}
	return new(big.Int).SetBytes(out[i*32 : end]), nil
}

// bigIntTo32Bytes returns a 32-byte big-endian representation of n.
func bigIntTo32Bytes(n *big.Int) []byte {
	b := n.Bytes()
	if len(b) >= 32 {
		return b[:32]
	}
	padded := make([]byte, 32)
	copy(padded[32-len(b):], b)
	return padded
}

// concatBytes concatenates multiple byte slices into one.
func concatBytes(slices ...[]byte) []byte {
	total := 0
	for _, s := range slices {
		total += len(s)
	}
	buf := make([]byte, 0, total)
	for _, s := range slices {
		buf = append(buf, s...)
	}
	return buf
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
