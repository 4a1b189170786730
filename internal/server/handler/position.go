package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/brianmcmichael/ajna-core/internal/domain"
)

// PositionLedger is the slice of the position service the handler depends on.
type PositionLedger interface {
	Mint(ctx context.Context, p domain.MintParams) (uint64, error)
	IncreaseLiquidity(ctx context.Context, p domain.IncreaseLiquidityParams) error
	DecreaseLiquidity(ctx context.Context, p domain.DecreaseLiquidityParams) (domain.DecreaseLiquidityResult, error)
	DecreaseLiquidityUnits(ctx context.Context, p domain.DecreaseLiquidityUnitsParams) (domain.DecreaseLiquidityUnitsResult, error)
	Memorialize(ctx context.Context, p domain.MemorializeParams) error
	Burn(ctx context.Context, p domain.BurnParams) error
	Get(tokenID uint64) (domain.Position, error)
	List(opts domain.ListOpts) []domain.Position
	LPTokens(tokenID, bucket uint64) *big.Int
	ValueInQuote(ctx context.Context, tokenID, bucket uint64) (*big.Int, error)
	Metadata(ctx context.Context, tokenID uint64) (domain.PositionMetadata, error)
	Nonce(tokenID uint64) (uint64, error)
	History(ctx context.Context, tokenID uint64, opts domain.ListOpts) ([]domain.EventRecord, error)
}

// PositionHandler serves the position ledger HTTP endpoints.
type PositionHandler struct {
	service PositionLedger
	logger  *slog.Logger
}

// NewPositionHandler creates a PositionHandler with the given service and logger.
func NewPositionHandler(service PositionLedger, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		service: service,
		logger:  logger,
	}
}

// positionResponse renders a position record. Share balances travel as
// base-10 strings so they survive JSON number precision.
type positionResponse struct {
	TokenID uint64            `json:"token_id"`
	Owner   string            `json:"owner"`
	Pool    string            `json:"pool"`
	Nonce   uint64            `json:"nonce"`
	Buckets map[string]string `json:"buckets"`
}

func toPositionResponse(pos domain.Position) positionResponse {
	buckets := make(map[string]string, len(pos.Buckets))
	for bucket, shares := range pos.Buckets {
		buckets[strconv.FormatUint(bucket, 10)] = bigToString(shares)
	}
	return positionResponse{
		TokenID: pos.TokenID,
		Owner:   pos.Owner.Hex(),
		Pool:    pos.Pool.Hex(),
		Nonce:   pos.Nonce,
		Buckets: buckets,
	}
}

// eventResponse renders one persisted ledger or registry event.
type eventResponse struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	TokenID   uint64         `json:"token_id"`
	Pool      string         `json:"pool"`
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
}

// Mint creates a new position token bound to a pool.
// POST /api/positions
func (h *PositionHandler) Mint(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Recipient string `json:"recipient"`
		Pool      string `json:"pool"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	recipient, err := parseAddress("recipient", req.Recipient)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	pool, err := parseAddress("pool", req.Pool)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tokenID, err := h.service.Mint(r.Context(), domain.MintParams{
		Recipient: recipient,
		Pool:      pool,
	})
	if err != nil {
		writeDomainError(w, r, h.logger, "mint position", err)
		return
	}

	h.logger.InfoContext(r.Context(), "handler: position minted",
		slog.Uint64("token_id", tokenID),
		slog.String("pool", pool.Hex()),
	)

	writeJSON(w, http.StatusCreated, map[string]any{
		"token_id": tokenID,
		"owner":    recipient.Hex(),
		"pool":     pool.Hex(),
	})
}

// List returns position records ordered by token id.
// GET /api/positions?limit=50&offset=0
func (h *PositionHandler) List(w http.ResponseWriter, r *http.Request) {
	positions := h.service.List(parseListOpts(r))

	out := make([]positionResponse, 0, len(positions))
	for _, pos := range positions {
		out = append(out, toPositionResponse(pos))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"positions": out,
		"count":     len(out),
	})
}

// Get returns a single position record.
// GET /api/positions/{id}
func (h *PositionHandler) Get(w http.ResponseWriter, r *http.Request) {
	tokenID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	pos, err := h.service.Get(tokenID)
	if err != nil {
		writeDomainError(w, r, h.logger, "get position", err)
		return
	}

	writeJSON(w, http.StatusOK, toPositionResponse(pos))
}

// Metadata returns the token's presentation payload.
// GET /api/positions/{id}/metadata
func (h *PositionHandler) Metadata(w http.ResponseWriter, r *http.Request) {
	tokenID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	meta, err := h.service.Metadata(r.Context(), tokenID)
	if err != nil {
		writeDomainError(w, r, h.logger, "get position metadata", err)
		return
	}

	buckets := meta.Buckets
	if buckets == nil {
		buckets = []uint64{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token_id": meta.TokenID,
		"pool":     meta.Pool.Hex(),
		"buckets":  buckets,
	})
}

// Nonce returns the token's current permit nonce.
// GET /api/positions/{id}/nonce
func (h *PositionHandler) Nonce(w http.ResponseWriter, r *http.Request) {
	tokenID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	nonce, err := h.service.Nonce(tokenID)
	if err != nil {
		writeDomainError(w, r, h.logger, "get position nonce", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token_id": tokenID,
		"nonce":    nonce,
	})
}

// Events returns the token's persisted event log, newest first.
// GET /api/positions/{id}/events?limit=50&offset=0
func (h *PositionHandler) Events(w http.ResponseWriter, r *http.Request) {
	tokenID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := h.service.History(r.Context(), tokenID, parseListOpts(r))
	if err != nil {
		writeDomainError(w, r, h.logger, "list position events", err)
		return
	}

	out := make([]eventResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, eventResponse{
			ID:        rec.ID,
			Name:      rec.Name,
			TokenID:   rec.TokenID,
			Pool:      rec.Pool.Hex(),
			Payload:   rec.Payload,
			CreatedAt: rec.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": out,
		"count":  len(out),
	})
}

// BucketShares returns the share balance a position holds in one bucket.
// Unknown tokens and empty buckets read as zero.
// GET /api/positions/{id}/buckets/{bucket}
func (h *PositionHandler) BucketShares(w http.ResponseWriter, r *http.Request) {
	tokenID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	bucket, err := pathBucket(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	shares := h.service.LPTokens(tokenID, bucket)
	writeJSON(w, http.StatusOK, map[string]any{
		"token_id": tokenID,
		"bucket":   bucket,
		"shares":   bigToString(shares),
	})
}

// BucketValue values a position's bucket balance in quote-token terms at the
// pool's current exchange rate.
// GET /api/positions/{id}/buckets/{bucket}/value
func (h *PositionHandler) BucketValue(w http.ResponseWriter, r *http.Request) {
	tokenID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	bucket, err := pathBucket(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	value, err := h.service.ValueInQuote(r.Context(), tokenID, bucket)
	if err != nil {
		writeDomainError(w, r, h.logger, "value position bucket", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token_id":       tokenID,
		"bucket":         bucket,
		"value_in_quote": bigToString(value),
	})
}

// IncreaseLiquidity deposits quote token through the position into its pool.
// POST /api/positions/{id}/increase
func (h *PositionHandler) IncreaseLiquidity(w http.ResponseWriter, r *http.Request) {
	tokenID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req struct {
		Caller    string `json:"caller"`
		Pool      string `json:"pool"`
		Recipient string `json:"recipient"`
		Amount    string `json:"amount"`
		Bucket    uint64 `json:"bucket"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	pool, err := parseAddress("pool", req.Pool)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	recipient, err := parseAddress("recipient", req.Recipient)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := parseWad("amount", req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.IncreaseLiquidity(r.Context(), domain.IncreaseLiquidityParams{
		Caller:    caller,
		TokenID:   tokenID,
		Pool:      pool,
		Recipient: recipient,
		Amount:    amount,
		Bucket:    req.Bucket,
	}); err != nil {
		writeDomainError(w, r, h.logger, "increase liquidity", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token_id": tokenID,
		"bucket":   req.Bucket,
		"amount":   amount.String(),
	})
}

// DecreaseLiquidity redeems shares for fungible collateral and quote token.
// POST /api/positions/{id}/decrease
func (h *PositionHandler) DecreaseLiquidity(w http.ResponseWriter, r *http.Request) {
	tokenID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req struct {
		Caller    string `json:"caller"`
		Pool      string `json:"pool"`
		Recipient string `json:"recipient"`
		Shares    string `json:"shares"`
		Bucket    uint64 `json:"bucket"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	pool, err := parseAddress("pool", req.Pool)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	recipient, err := parseAddress("recipient", req.Recipient)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	shares, err := parseWad("shares", req.Shares)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.service.DecreaseLiquidity(r.Context(), domain.DecreaseLiquidityParams{
		Caller:    caller,
		TokenID:   tokenID,
		Pool:      pool,
		Recipient: recipient,
		Shares:    shares,
		Bucket:    req.Bucket,
	})
	if err != nil {
		writeDomainError(w, r, h.logger, "decrease liquidity", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token_id":   tokenID,
		"bucket":     req.Bucket,
		"collateral": bigToString(res.Collateral),
		"quote":      bigToString(res.Quote),
	})
}

// DecreaseLiquidityUnits redeems shares for whole collateral units and quote
// token.
// POST /api/positions/{id}/decrease-units
func (h *PositionHandler) DecreaseLiquidityUnits(w http.ResponseWriter, r *http.Request) {
	tokenID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req struct {
		Caller         string   `json:"caller"`
		Pool           string   `json:"pool"`
		Recipient      string   `json:"recipient"`
		Shares         string   `json:"shares"`
		Bucket         uint64   `json:"bucket"`
		UnitCandidates []uint64 `json:"unit_candidates"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	pool, err := parseAddress("pool", req.Pool)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	recipient, err := parseAddress("recipient", req.Recipient)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	shares, err := parseWad("shares", req.Shares)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.service.DecreaseLiquidityUnits(r.Context(), domain.DecreaseLiquidityUnitsParams{
		Caller:         caller,
		TokenID:        tokenID,
		Pool:           pool,
		Recipient:      recipient,
		Shares:         shares,
		Bucket:         req.Bucket,
		UnitCandidates: req.UnitCandidates,
	})
	if err != nil {
		writeDomainError(w, r, h.logger, "decrease liquidity units", err)
		return
	}

	units := res.Units
	if units == nil {
		units = []uint64{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token_id": tokenID,
		"bucket":   req.Bucket,
		"units":    units,
		"quote":    bigToString(res.Quote),
	})
}

// Memorialize imports the owner's pool-native share balances into the
// position record.
// POST /api/positions/{id}/memorialize
func (h *PositionHandler) Memorialize(w http.ResponseWriter, r *http.Request) {
	tokenID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req struct {
		Pool    string   `json:"pool"`
		Owner   string   `json:"owner"`
		Buckets []uint64 `json:"buckets"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	pool, err := parseAddress("pool", req.Pool)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	owner, err := parseAddress("owner", req.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Buckets) == 0 {
		writeError(w, http.StatusBadRequest, "buckets is required")
		return
	}

	if err := h.service.Memorialize(r.Context(), domain.MemorializeParams{
		TokenID: tokenID,
		Pool:    pool,
		Owner:   owner,
		Buckets: req.Buckets,
	}); err != nil {
		writeDomainError(w, r, h.logger, "memorialize position", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token_id": tokenID,
		"buckets":  req.Buckets,
	})
}

// Burn erases an emptied position and retires its identity.
// POST /api/positions/{id}/burn
func (h *PositionHandler) Burn(w http.ResponseWriter, r *http.Request) {
	tokenID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req struct {
		Caller string `json:"caller"`
		Pool   string `json:"pool"`
		Bucket uint64 `json:"bucket"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	pool, err := parseAddress("pool", req.Pool)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.Burn(r.Context(), domain.BurnParams{
		Caller:  caller,
		TokenID: tokenID,
		Pool:    pool,
		Bucket:  req.Bucket,
	}); err != nil {
		writeDomainError(w, r, h.logger, "burn position", err)
		return
	}

	h.logger.InfoContext(r.Context(), "handler: position burned",
		slog.Uint64("token_id", tokenID),
	)

	writeJSON(w, http.StatusOK, map[string]any{
		"token_id": tokenID,
		"burned":   true,
	})
}
