package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/brianmcmichael/ajna-core/internal/pool/sim"
)

// PoolSeeder resolves simulated pools by address, creating them on first
// touch. Only the sim backend satisfies it; the chain mirror backend leaves
// these endpoints unregistered.
type PoolSeeder interface {
	Pool(addr common.Address) *sim.Pool
}

// PoolHandler serves the simulated-pool seeding endpoints used by local and
// test deployments.
type PoolHandler struct {
	pools  PoolSeeder
	logger *slog.Logger
}

// NewPoolHandler creates a PoolHandler with the given pool directory and logger.
func NewPoolHandler(pools PoolSeeder, logger *slog.Logger) *PoolHandler {
	return &PoolHandler{
		pools:  pools,
		logger: logger,
	}
}

type seedRateEntry struct {
	Bucket uint64 `json:"bucket"`
	Rate   string `json:"rate"`
}

type seedLenderEntry struct {
	Owner  string `json:"owner"`
	Bucket uint64 `json:"bucket"`
	Shares string `json:"shares"`
}

type seedCollateralEntry struct {
	Bucket uint64 `json:"bucket"`
	Amount string `json:"amount"`
}

type seedUnitsEntry struct {
	Bucket  uint64   `json:"bucket"`
	UnitIDs []uint64 `json:"unit_ids"`
}

// Seed loads exchange rates, lender balances, and collateral into a simulated
// pool. All sections are optional; absent sections leave existing state
// untouched.
// POST /api/pools/{pool}/seed
func (h *PoolHandler) Seed(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("pool", pathParam(r, "pool"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req struct {
		Rates      []seedRateEntry       `json:"rates"`
		Lenders    []seedLenderEntry     `json:"lenders"`
		Collateral []seedCollateralEntry `json:"collateral"`
		Units      []seedUnitsEntry      `json:"units"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	pl := h.pools.Pool(addr)

	for _, entry := range req.Rates {
		rate, err := parseWad("rate", entry.Rate)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		pl.SetRate(entry.Bucket, rate)
	}
	for _, entry := range req.Lenders {
		owner, err := parseAddress("owner", entry.Owner)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		shares, err := parseWad("shares", entry.Shares)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		pl.SeedLender(owner, entry.Bucket, shares)
	}
	for _, entry := range req.Collateral {
		amount, err := parseWad("amount", entry.Amount)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		pl.SeedCollateral(entry.Bucket, amount)
	}
	for _, entry := range req.Units {
		pl.SeedUnits(entry.Bucket, entry.UnitIDs...)
	}

	h.logger.InfoContext(r.Context(), "handler: pool seeded",
		slog.String("pool", addr.Hex()),
		slog.Int("rates", len(req.Rates)),
		slog.Int("lenders", len(req.Lenders)),
	)

	writeJSON(w, http.StatusOK, map[string]any{
		"pool":   addr.Hex(),
		"seeded": true,
	})
}

// Bucket reports a simulated pool bucket's deposit and unit inventory.
// GET /api/pools/{pool}/buckets/{bucket}
func (h *PoolHandler) Bucket(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("pool", pathParam(r, "pool"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	bucket, err := pathBucket(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	pl := h.pools.Pool(addr)
	units := pl.Units(bucket)
	if units == nil {
		units = []uint64{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"pool":    addr.Hex(),
		"bucket":  bucket,
		"deposit": bigToString(pl.Deposit(bucket)),
		"units":   units,
	})
}
