package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/brianmcmichael/ajna-core/internal/crypto"
	"github.com/brianmcmichael/ajna-core/internal/service"
)

// PermitService is the slice of the position service the permit endpoints
// depend on.
type PermitService interface {
	Permit(ctx context.Context, p service.PermitParams) error
	SignPermit(ctx context.Context, spender common.Address, tokenID uint64, deadline int64) (crypto.Permit, string, error)
}

// PermitHandler serves the signature-based approval endpoints.
type PermitHandler struct {
	service PermitService
	logger  *slog.Logger
}

// NewPermitHandler creates a PermitHandler with the given service and logger.
func NewPermitHandler(service PermitService, logger *slog.Logger) *PermitHandler {
	return &PermitHandler{
		service: service,
		logger:  logger,
	}
}

// Apply verifies a signed permit and records the approval. Each signature is
// usable once; the nonce must match the token's current nonce.
// POST /api/permits
func (h *PermitHandler) Apply(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Spender   string `json:"spender"`
		TokenID   uint64 `json:"token_id"`
		Nonce     uint64 `json:"nonce"`
		Deadline  int64  `json:"deadline"`
		Signature string `json:"signature"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
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
	if req.Signature == "" {
		writeError(w, http.StatusBadRequest, "signature is required")
		return
	}

	if err := h.service.Permit(r.Context(), service.PermitParams{
		Spender:   spender,
		TokenID:   req.TokenID,
		Nonce:     req.Nonce,
		Deadline:  req.Deadline,
		Signature: req.Signature,
	}); err != nil {
		writeDomainError(w, r, h.logger, "apply permit", err)
		return
	}

	h.logger.InfoContext(r.Context(), "handler: permit applied",
		slog.Uint64("token_id", req.TokenID),
		slog.String("spender", spender.Hex()),
	)

	writeJSON(w, http.StatusOK, map[string]any{
		"token_id": req.TokenID,
		"approved": spender.Hex(),
	})
}

// Sign produces a permit signature with the operator key. The permit binds
// the token's current nonce and the given deadline.
// POST /api/permits/sign
func (h *PermitHandler) Sign(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Spender  string `json:"spender"`
		TokenID  uint64 `json:"token_id"`
		Deadline int64  `json:"deadline"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
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

	permit, sig, err := h.service.SignPermit(r.Context(), spender, req.TokenID, req.Deadline)
	if err != nil {
		writeDomainError(w, r, h.logger, "sign permit", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"spender":   permit.Spender.Hex(),
		"token_id":  permit.TokenID,
		"nonce":     permit.Nonce,
		"deadline":  permit.Deadline,
		"signature": sig,
	})
}
