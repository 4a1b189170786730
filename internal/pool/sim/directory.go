package sim

import (
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/brianmcmichael/ajna-core/internal/domain"
)

// Directory resolves pool addresses to simulated pools, creating each pool on
// first touch so any address the ledger binds is servable.
type Directory struct {
	mu     sync.Mutex
	pools  map[common.Address]*Pool
	logger *slog.Logger
}

var _ domain.PoolDirectory = (*Directory)(nil)

func NewDirectory(logger *slog.Logger) *Directory {
	return &Directory{pools: make(map[common.Address]*Pool), logger: logger}
}

// Pool returns the simulated pool at addr, creating it if needed.
func (d *Directory) Pool(addr common.Address) *Pool {
	d.mu.Lock()
	defer d.mu.Unlock()
	pool, ok := d.pools[addr]
	if !ok {
		pool = NewPool(addr)
		d.pools[addr] = pool
		if d.logger != nil {
			d.logger.Debug("sim: created pool", slog.String("pool", addr.Hex()))
		}
	}
	return pool
}

func (d *Directory) Valuation(addr common.Address) (domain.PoolValuation, error) {
	return d.Pool(addr), nil
}

func (d *Directory) Liquidity(addr common.Address) (domain.PoolLiquidity, error) {
	return d.Pool(addr), nil
}
