package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brianmcmichael/ajna-core/internal/domain"
)

func TestStatusForMapsDomainErrors(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrPositionNotFound, http.StatusNotFound},
		{domain.ErrUnknownToken, http.StatusNotFound},
		{domain.ErrUnknownPool, http.StatusNotFound},
		{domain.ErrUnauthorized, http.StatusForbidden},
		{domain.ErrBucketOutOfRange, http.StatusBadRequest},
		{domain.ErrPermitExpired, http.StatusBadRequest},
		{domain.ErrPoolMismatch, http.StatusConflict},
		{domain.ErrLiquidityNotRemoved, http.StatusConflict},
		{domain.ErrInsufficientShares, http.StatusConflict},
		{domain.ErrInsufficientUnits, http.StatusConflict},
		{domain.ErrInvalidNonce, http.StatusConflict},
		{domain.ErrNoSharesCredited, http.StatusConflict},
		{domain.ErrLiquidityUnsupported, http.StatusNotImplemented},
		{domain.ErrSigningFailed, http.StatusServiceUnavailable},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.err.Error(), func(t *testing.T) {
			// Services deliver sentinels wrapped; the mapping must see
			// through the wrapping.
			wrapped := fmt.Errorf("service: op token 7: %w", tc.err)
			assert.Equal(t, tc.want, statusFor(wrapped))
		})
	}
}

func TestWriteDomainErrorMasksInternalDetail(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	req := httptest.NewRequest(http.MethodGet, "/api/positions/1", nil)

	rec := httptest.NewRecorder()
	writeDomainError(rec, req, logger, "get position", errors.New("pgx: connection refused"))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "failed to get position", body["error"], "internal detail stays out of the response")

	rec = httptest.NewRecorder()
	writeDomainError(rec, req, logger, "get position", fmt.Errorf("service: %w", domain.ErrPositionNotFound))
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "position not found")
}

func TestParseWad(t *testing.T) {
	n, err := parseWad("amount", "1000000000000000000")
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000", n.String())

	_, err = parseWad("amount", "-5")
	assert.Error(t, err, "negative amounts are refused")

	_, err = parseWad("amount", "0x10")
	assert.Error(t, err, "hex is not accepted")

	_, err = parseWad("amount", "")
	assert.Error(t, err, "empty amounts are refused")
}

func TestParseListOptsBounds(t *testing.T) {
	opts := parseListOpts(httptest.NewRequest(http.MethodGet, "/api/positions", nil))
	assert.Equal(t, 50, opts.Limit, "default limit")
	assert.Equal(t, 0, opts.Offset)

	opts = parseListOpts(httptest.NewRequest(http.MethodGet, "/api/positions?limit=9999&offset=3", nil))
	assert.Equal(t, 500, opts.Limit, "limit is capped")
	assert.Equal(t, 3, opts.Offset)

	opts = parseListOpts(httptest.NewRequest(http.MethodGet, "/api/positions?limit=junk&offset=-2", nil))
	assert.Equal(t, 50, opts.Limit, "malformed values fall back to defaults")
	assert.Equal(t, 0, opts.Offset)
}

func TestHealthCheckReportsProbes(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	h := NewHealthHandler(logger)
	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])

	h = NewHealthHandler(logger).
		WithCheck("postgres", func(context.Context) error { return nil }).
		WithCheck("redis", func(context.Context) error { return errors.New("connection refused") })

	rec = httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "degraded", body["status"])
	checks := body["checks"].(map[string]any)
	assert.Equal(t, "ok", checks["postgres"])
	assert.Contains(t, checks["redis"], "connection refused")
}
