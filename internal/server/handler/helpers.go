package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/brianmcmichael/ajna-core/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps the domain error taxonomy onto HTTP status codes. Unknown
// errors map to 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrPositionNotFound),
		errors.Is(err, domain.ErrUnknownToken),
		errors.Is(err, domain.ErrUnknownPool),
		errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrBucketOutOfRange),
		errors.Is(err, domain.ErrPermitExpired):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrPoolMismatch),
		errors.Is(err, domain.ErrLiquidityNotRemoved),
		errors.Is(err, domain.ErrInsufficientShares),
		errors.Is(err, domain.ErrInsufficientUnits),
		errors.Is(err, domain.ErrInvalidNonce),
		errors.Is(err, domain.ErrNoSharesCredited):
		return http.StatusConflict
	case errors.Is(err, domain.ErrLiquidityUnsupported):
		return http.StatusNotImplemented
	case errors.Is(err, domain.ErrSigningFailed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeDomainError maps err onto an HTTP status and writes the response.
// Domain errors surface their own message; anything unrecognized is logged
// and masked behind a generic 500 body.
func writeDomainError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, action string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "handler: "+action+" failed",
			slog.String("error", err.Error()),
		)
		writeError(w, status, "failed to "+action)
		return
	}
	writeError(w, status, err.Error())
}

// parseListOpts extracts standard pagination parameters from the query string.
// Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
}

// pathParam extracts a named path parameter from the request using Go 1.22+
// built-in routing (http.Request.PathValue).
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

// pathID parses the {id} path parameter as a token identity.
func pathID(r *http.Request) (uint64, error) {
	raw := pathParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid token id %q", raw)
	}
	return id, nil
}

// pathBucket parses the {bucket} path parameter as a bucket index.
func pathBucket(r *http.Request) (uint64, error) {
	raw := pathParam(r, "bucket")
	bucket, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid bucket index %q", raw)
	}
	return bucket, nil
}

// parseAddress validates and decodes a 0x-prefixed hex address.
func parseAddress(field, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%s must be a hex address, got %q", field, s)
	}
	return common.HexToAddress(s), nil
}

// parseWad decodes a non-negative base-10 WAD amount.
func parseWad(field, s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("%s is required", field)
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%s must be a base-10 integer, got %q", field, s)
	}
	if n.Sign() < 0 {
		return nil, fmt.Errorf("%s must not be negative", field)
	}
	return n, nil
}

// bigToString formats an amount for a response body, treating nil as zero.
// Amounts travel as decimal strings so they survive JSON number precision.
func bigToString(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.String()
}
