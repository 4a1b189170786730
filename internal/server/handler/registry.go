package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
)

// RegistryService is the slice of the position service the ownership
// endpoints depend on.
type RegistryService interface {
	OwnerOf(tokenID uint64) (common.Address, error)
	Transfer(ctx context.Context, caller, from, to common.Address, tokenID uint64) error
	Approve(ctx context.Context, caller, spender common.Address, tokenID uint64) error
	SetApprovalForAll(ctx context.Context, caller, operator common.Address, approved bool) error
	Approved(tokenID uint64) (common.Address, error)
	IsApprovedForAll(holder, operator common.Address) bool
}

// RegistryHandler serves the token ownership HTTP endpoints.
type RegistryHandler struct {
	service RegistryService
	logger  *slog.Logger
}

// NewRegistryHandler creates a RegistryHandler with the given service and logger.
func NewRegistryHandler(service RegistryService, logger *slog.Logger) *RegistryHandler {
	return &RegistryHandler{
		service: service,
		logger:  logger,
	}
}

// Owner returns the current holder of a token.
// GET /api/registry/owner/{id}
func (h *RegistryHandler) Owner(w http.ResponseWriter, r *http.Request) {
	tokenID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	owner, err := h.service.OwnerOf(tokenID)
	if err != nil {
		writeDomainError(w, r, h.logger, "get token owner", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token_id": tokenID,
		"owner":    owner.Hex(),
	})
}

// Approved returns the approved spender for a token. The zero address means
// no approval is set.
// GET /api/registry/approved/{id}?operator=0x...&holder=0x...
func (h *RegistryHandler) Approved(w http.ResponseWriter, r *http.Request) {
	tokenID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	spender, err := h.service.Approved(tokenID)
	if err != nil {
		writeDomainError(w, r, h.logger, "get approved spender", err)
		return
	}

	resp := map[string]any{
		"token_id": tokenID,
		"approved": spender.Hex(),
	}

	// Operator checks piggyback on the same endpoint when both query
	// parameters are present.
	q := r.URL.Query()
	if q.Get("holder") != "" && q.Get("operator") != "" {
		holder, err := parseAddress("holder", q.Get("holder"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		operator, err := parseAddress("operator", q.Get("operator"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		resp["operator_approved"] = h.service.IsApprovedForAll(holder, operator)
	}

	writeJSON(w, http.StatusOK, resp)
}

// Transfer moves a token between holders. The caller must be the owner, the
// approved spender, or an operator for the owner.
// POST /api/registry/transfer
func (h *RegistryHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caller  string `json:"caller"`
		From    string `json:"from"`
		To      string `json:"to"`
		TokenID uint64 `json:"token_id"`
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
	from, err := parseAddress("from", req.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := parseAddress("to", req.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.TokenID == 0 {
		writeError(w, http.StatusBadRequest, "token_id is required")
		return
	}

	if err := h.service.Transfer(r.Context(), caller, from, to, req.TokenID); err != nil {
		writeDomainError(w, r, h.logger, "transfer token", err)
		return
	}

	h.logger.InfoContext(r.Context(), "handler: token transferred",
		slog.Uint64("token_id", req.TokenID),
		slog.String("from", from.Hex()),
		slog.String("to", to.Hex()),
	)

	writeJSON(w, http.StatusOK, map[string]any{
		"token_id": req.TokenID,
		"owner":    to.Hex(),
	})
}

// Approve sets or clears the single approved spender for a token. Approving
// the zero address clears the slot.
// POST /api/registry/approve
func (h *RegistryHandler) Approve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caller  string `json:"caller"`
		Spender string `json:"spender"`
		TokenID uint64 `json:"token_id"`
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
	spender, err := parseAddress("spender", req.Spender)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.TokenID == 0 {
		writeError(w, http.StatusBadRequest, "token_id is required")
		return
	}

	if err := h.service.Approve(r.Context(), caller, spender, req.TokenID); err != nil {
		writeDomainError(w, r, h.logger, "approve spender", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token_id": req.TokenID,
		"approved": spender.Hex(),
	})
}

// ApprovalForAll grants or revokes operator rights over every token the
// caller holds.
// POST /api/registry/approval-for-all
func (h *RegistryHandler) ApprovalForAll(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caller   string `json:"caller"`
		Operator string `json:"operator"`
		Approved bool   `json:"approved"`
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
	operator, err := parseAddress("operator", req.Operator)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.SetApprovalForAll(r.Context(), caller, operator, req.Approved); err != nil {
		writeDomainError(w, r, h.logger, "set approval for all", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"holder":   caller.Hex(),
		"operator": operator.Hex(),
		"approved": req.Approved,
	})
}
