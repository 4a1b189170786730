package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/brianmcmichael/ajna-core/internal/domain"
	"github.com/brianmcmichael/ajna-core/internal/service"
)

const maxMulticallSteps = 32

// MulticallService is the slice of the position service the batch endpoint
// depends on. It spans every operation a batch step can name.
type MulticallService interface {
	Multicall(ctx context.Context, calls []service.Call) ([]service.CallResult, error)
	Mint(ctx context.Context, p domain.MintParams) (uint64, error)
	IncreaseLiquidity(ctx context.Context, p domain.IncreaseLiquidityParams) error
	DecreaseLiquidity(ctx context.Context, p domain.DecreaseLiquidityParams) (domain.DecreaseLiquidityResult, error)
	DecreaseLiquidityUnits(ctx context.Context, p domain.DecreaseLiquidityUnitsParams) (domain.DecreaseLiquidityUnitsResult, error)
	Memorialize(ctx context.Context, p domain.MemorializeParams) error
	Burn(ctx context.Context, p domain.BurnParams) error
	Approve(ctx context.Context, caller, spender common.Address, tokenID uint64) error
	Transfer(ctx context.Context, caller, from, to common.Address, tokenID uint64) error
	Permit(ctx context.Context, p service.PermitParams) error
}

// MulticallHandler serves the batched-operation endpoint.
type MulticallHandler struct {
	service MulticallService
	logger  *slog.Logger
}

// NewMulticallHandler creates a MulticallHandler with the given service and logger.
func NewMulticallHandler(service MulticallService, logger *slog.Logger) *MulticallHandler {
	return &MulticallHandler{
		service: service,
		logger:  logger,
	}
}

type multicallStep struct {
	Op     string          `json:"op"`
	Params json.RawMessage `json:"params"`
}

type multicallStepResult struct {
	Op     string `json:"op"`
	Result any    `json:"result"`
}

// Batch runs a sequence of operations in order, stopping at the first
// failure. Completed steps stand even when a later step fails. Supported ops:
// mint, increase, decrease, decrease_units, memorialize, burn, approve,
// transfer, permit.
// POST /api/multicall
func (h *MulticallHandler) Batch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Calls []multicallStep `json:"calls"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Calls) == 0 {
		writeError(w, http.StatusBadRequest, "calls is required")
		return
	}
	if len(req.Calls) > maxMulticallSteps {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("at most %d calls per batch", maxMulticallSteps))
		return
	}

	calls := make([]service.Call, 0, len(req.Calls))
	for i, step := range req.Calls {
		call, err := h.buildCall(step)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("call %d (%s): %s", i, step.Op, err))
			return
		}
		calls = append(calls, call)
	}

	results, err := h.service.Multicall(r.Context(), calls)

	completed := make([]multicallStepResult, 0, len(results))
	for _, res := range results {
		completed = append(completed, multicallStepResult{Op: res.Name, Result: res.Result})
	}

	if err != nil {
		status := statusFor(err)
		msg := err.Error()
		if status == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "handler: multicall failed",
				slog.Int("completed", len(completed)),
				slog.String("error", msg),
			)
			msg = "multicall failed"
		}
		writeJSON(w, status, map[string]any{
			"error":     msg,
			"completed": completed,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"results": completed,
		"count":   len(completed),
	})
}

// buildCall decodes one batch step into a deferred service call. Decoding and
// address validation happen up front; the ledger call itself runs inside the
// returned closure.
func (h *MulticallHandler) buildCall(step multicallStep) (service.Call, error) {
	switch step.Op {
	case "mint":
		var p struct {
			Recipient string `json:"recipient"`
			Pool      string `json:"pool"`
		}
		if err := json.Unmarshal(step.Params, &p); err != nil {
			return service.Call{}, fmt.Errorf("invalid params")
		}
		recipient, err := parseAddress("recipient", p.Recipient)
		if err != nil {
			return service.Call{}, err
		}
		pool, err := parseAddress("pool", p.Pool)
		if err != nil {
			return service.Call{}, err
		}
		return service.Call{Name: step.Op, Do: func(ctx context.Context) (any, error) {
			tokenID, err := h.service.Mint(ctx, domain.MintParams{Recipient: recipient, Pool: pool})
			if err != nil {
				return nil, err
			}
			return map[string]any{"token_id": tokenID, "owner": recipient.Hex(), "pool": pool.Hex()}, nil
		}}, nil

	case "increase":
		var p struct {
			Caller    string `json:"caller"`
			TokenID   uint64 `json:"token_id"`
			Pool      string `json:"pool"`
			Recipient string `json:"recipient"`
			Amount    string `json:"amount"`
			Bucket    uint64 `json:"bucket"`
		}
		if err := json.Unmarshal(step.Params, &p); err != nil {
			return service.Call{}, fmt.Errorf("invalid params")
		}
		caller, err := parseAddress("caller", p.Caller)
		if err != nil {
			return service.Call{}, err
		}
		pool, err := parseAddress("pool", p.Pool)
		if err != nil {
			return service.Call{}, err
		}
		recipient, err := parseAddress("recipient", p.Recipient)
		if err != nil {
			return service.Call{}, err
		}
		amount, err := parseWad("amount", p.Amount)
		if err != nil {
			return service.Call{}, err
		}
		params := domain.IncreaseLiquidityParams{
			Caller:    caller,
			TokenID:   p.TokenID,
			Pool:      pool,
			Recipient: recipient,
			Amount:    amount,
			Bucket:    p.Bucket,
		}
		return service.Call{Name: step.Op, Do: func(ctx context.Context) (any, error) {
			if err := h.service.IncreaseLiquidity(ctx, params); err != nil {
				return nil, err
			}
			return map[string]any{"token_id": p.TokenID, "bucket": p.Bucket, "amount": amount.String()}, nil
		}}, nil

	case "decrease":
		var p struct {
			Caller    string `json:"caller"`
			TokenID   uint64 `json:"token_id"`
			Pool      string `json:"pool"`
			Recipient string `json:"recipient"`
			Shares    string `json:"shares"`
			Bucket    uint64 `json:"bucket"`
		}
		if err := json.Unmarshal(step.Params, &p); err != nil {
			return service.Call{}, fmt.Errorf("invalid params")
		}
		caller, err := parseAddress("caller", p.Caller)
		if err != nil {
			return service.Call{}, err
		}
		pool, err := parseAddress("pool", p.Pool)
		if err != nil {
			return service.Call{}, err
		}
		recipient, err := parseAddress("recipient", p.Recipient)
		if err != nil {
			return service.Call{}, err
		}
		shares, err := parseWad("shares", p.Shares)
		if err != nil {
			return service.Call{}, err
		}
		params := domain.DecreaseLiquidityParams{
			Caller:    caller,
			TokenID:   p.TokenID,
			Pool:      pool,
			Recipient: recipient,
			Shares:    shares,
			Bucket:    p.Bucket,
		}
		return service.Call{Name: step.Op, Do: func(ctx context.Context) (any, error) {
			res, err := h.service.DecreaseLiquidity(ctx, params)
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"token_id":   p.TokenID,
				"bucket":     p.Bucket,
				"collateral": bigToString(res.Collateral),
				"quote":      bigToString(res.Quote),
			}, nil
		}}, nil

	case "decrease_units":
		var p struct {
			Caller         string   `json:"caller"`
			TokenID        uint64   `json:"token_id"`
			Pool           string   `json:"pool"`
			Recipient      string   `json:"recipient"`
			Shares         string   `json:"shares"`
			Bucket         uint64   `json:"bucket"`
			UnitCandidates []uint64 `json:"unit_candidates"`
		}
		if err := json.Unmarshal(step.Params, &p); err != nil {
			return service.Call{}, fmt.Errorf("invalid params")
		}
		caller, err := parseAddress("caller", p.Caller)
		if err != nil {
			return service.Call{}, err
		}
		pool, err := parseAddress("pool", p.Pool)
		if err != nil {
			return service.Call{}, err
		}
		recipient, err := parseAddress("recipient", p.Recipient)
		if err != nil {
			return service.Call{}, err
		}
		shares, err := parseWad("shares", p.Shares)
		if err != nil {
			return service.Call{}, err
		}
		params := domain.DecreaseLiquidityUnitsParams{
			Caller:         caller,
			TokenID:        p.TokenID,
			Pool:           pool,
			Recipient:      recipient,
			Shares:         shares,
			Bucket:         p.Bucket,
			UnitCandidates: p.UnitCandidates,
		}
		return service.Call{Name: step.Op, Do: func(ctx context.Context) (any, error) {
			res, err := h.service.DecreaseLiquidityUnits(ctx, params)
			if err != nil {
				return nil, err
			}
			units := res.Units
			if units == nil {
				units = []uint64{}
			}
			return map[string]any{
				"token_id": p.TokenID,
				"bucket":   p.Bucket,
				"units":    units,
				"quote":    bigToString(res.Quote),
			}, nil
		}}, nil

	case "memorialize":
		var p struct {
			TokenID uint64   `json:"token_id"`
			Pool    string   `json:"pool"`
			Owner   string   `json:"owner"`
			Buckets []uint64 `json:"buckets"`
		}
		if err := json.Unmarshal(step.Params, &p); err != nil {
			return service.Call{}, fmt.Errorf("invalid params")
		}
		pool, err := parseAddress("pool", p.Pool)
		if err != nil {
			return service.Call{}, err
		}
		owner, err := parseAddress("owner", p.Owner)
		if err != nil {
			return service.Call{}, err
		}
		if len(p.Buckets) == 0 {
			return service.Call{}, fmt.Errorf("buckets is required")
		}
		params := domain.MemorializeParams{
			TokenID: p.TokenID,
			Pool:    pool,
			Owner:   owner,
			Buckets: p.Buckets,
		}
		return service.Call{Name: step.Op, Do: func(ctx context.Context) (any, error) {
			if err := h.service.Memorialize(ctx, params); err != nil {
				return nil, err
			}
			return map[string]any{"token_id": p.TokenID, "buckets": p.Buckets}, nil
		}}, nil

	case "burn":
		var p struct {
			Caller  string `json:"caller"`
			TokenID uint64 `json:"token_id"`
			Pool    string `json:"pool"`
			Bucket  uint64 `json:"bucket"`
		}
		if err := json.Unmarshal(step.Params, &p); err != nil {
			return service.Call{}, fmt.Errorf("invalid params")
		}
		caller, err := parseAddress("caller", p.Caller)
		if err != nil {
			return service.Call{}, err
		}
		pool, err := parseAddress("pool", p.Pool)
		if err != nil {
			return service.Call{}, err
		}
		params := domain.BurnParams{
			Caller:  caller,
			TokenID: p.TokenID,
			Pool:    pool,
			Bucket:  p.Bucket,
		}
		return service.Call{Name: step.Op, Do: func(ctx context.Context) (any, error) {
			if err := h.service.Burn(ctx, params); err != nil {
				return nil, err
			}
			return map[string]any{"token_id": p.TokenID, "burned": true}, nil
		}}, nil

	case "approve":
		var p struct {
			Caller  string `json:"caller"`
			Spender string `json:"spender"`
			TokenID uint64 `json:"token_id"`
		}
		if err := json.Unmarshal(step.Params, &p); err != nil {
			return service.Call{}, fmt.Errorf("invalid params")
		}
		caller, err := parseAddress("caller", p.Caller)
		if err != nil {
			return service.Call{}, err
		}
		spender, err := parseAddress("spender", p.Spender)
		if err != nil {
			return service.Call{}, err
		}
		return service.Call{Name: step.Op, Do: func(ctx context.Context) (any, error) {
			if err := h.service.Approve(ctx, caller, spender, p.TokenID); err != nil {
				return nil, err
			}
			return map[string]any{"token_id": p.TokenID, "approved": spender.Hex()}, nil
		}}, nil

	case "transfer":
		var p struct {
			Caller  string `json:"caller"`
			From    string `json:"from"`
			To      string `json:"to"`
			TokenID uint64 `json:"token_id"`
		}
		if err := json.Unmarshal(step.Params, &p); err != nil {
			return service.Call{}, fmt.Errorf("invalid params")
		}
		caller, err := parseAddress("caller", p.Caller)
		if err != nil {
			return service.Call{}, err
		}
		from, err := parseAddress("from", p.From)
		if err != nil {
			return service.Call{}, err
		}
		to, err := parseAddress("to", p.To)
		if err != nil {
			return service.Call{}, err
		}
		return service.Call{Name: step.Op, Do: func(ctx context.Context) (any, error) {
			if err := h.service.Transfer(ctx, caller, from, to, p.TokenID); err != nil {
				return nil, err
			}
			return map[string]any{"token_id": p.TokenID, "owner": to.Hex()}, nil
		}}, nil

	case "permit":
		var p struct {
			Spender   string `json:"spender"`
			TokenID   uint64 `json:"token_id"`
			Nonce     uint64 `json:"nonce"`
			Deadline  int64  `json:"deadline"`
			Signature string `json:"signature"`
		}
		if err := json.Unmarshal(step.Params, &p); err != nil {
			return service.Call{}, fmt.Errorf("invalid params")
		}
		spender, err := parseAddress("spender", p.Spender)
		if err != nil {
			return service.Call{}, err
		}
		if p.Signature == "" {
			return service.Call{}, fmt.Errorf("signature is required")
		}
		params := service.PermitParams{
			Spender:   spender,
			TokenID:   p.TokenID,
			Nonce:     p.Nonce,
			Deadline:  p.Deadline,
			Signature: p.Signature,
		}
		return service.Call{Name: step.Op, Do: func(ctx context.Context) (any, error) {
			if err := h.service.Permit(ctx, params); err != nil {
				return nil, err
			}
			return map[string]any{"token_id": p.TokenID, "approved": spender.Hex()}, nil
		}}, nil

	default:
		return service.Call{}, fmt.Errorf("unknown op")
	}
}
