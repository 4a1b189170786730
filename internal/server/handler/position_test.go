package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brianmcmichael/ajna-core/internal/domain"
)

func TestMintEndpointCreatesPosition(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/positions", map[string]any{
		"recipient": env.owner.Hex(),
		"pool":      poolAddr.Hex(),
	})
	require.Equal(t, http.StatusCreated, rec.Code, "body: %s", rec.Body)

	body := decodeBody(t, rec)
	assert.EqualValues(t, 1, body["token_id"], "first identity is 1")
	assert.Equal(t, env.owner.Hex(), body["owner"])
	assert.Equal(t, poolAddr.Hex(), body["pool"])

	rec = env.do(t, http.MethodGet, "/api/positions/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody(t, rec)
	assert.EqualValues(t, 0, body["nonce"], "fresh position has nonce 0")
	assert.Empty(t, body["buckets"], "fresh position holds no buckets")
}

func TestMintRejectsMalformedAddress(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/positions", map[string]any{
		"recipient": env.owner.Hex(),
		"pool":      "not-an-address",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "pool")
}

func TestGetPositionNotFound(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/positions/42", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetPositionRejectsMalformedID(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/positions/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIncreaseThenDecrease(t *testing.T) {
	env := newTestEnv(t)
	id := env.mintFunded(t, 100)

	rec := env.do(t, http.MethodPost, "/api/positions/"+formatID(id)+"/decrease", map[string]any{
		"caller":    env.owner.Hex(),
		"pool":      poolAddr.Hex(),
		"recipient": env.owner.Hex(),
		"shares":    wadAmount(40).String(),
		"bucket":    defaultBucket,
	})
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body)

	body := decodeBody(t, rec)
	assert.Equal(t, wadAmount(40).String(), body["quote"], "quote-only bucket pays quote")
	assert.Equal(t, "0", body["collateral"])

	rec = env.do(t, http.MethodGet, "/api/positions/"+formatID(id), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	buckets := decodeBody(t, rec)["buckets"].(map[string]any)
	assert.Equal(t, wadAmount(60).String(), buckets["4156"], "60 shares remain")
}

func TestDecreaseRejectsStranger(t *testing.T) {
	env := newTestEnv(t)
	id := env.mintFunded(t, 10)

	rec := env.do(t, http.MethodPost, "/api/positions/"+formatID(id)+"/decrease", map[string]any{
		"caller":    strangerOne.Hex(),
		"pool":      poolAddr.Hex(),
		"recipient": strangerOne.Hex(),
		"shares":    wadAmount(1).String(),
		"bucket":    defaultBucket,
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDecreaseRejectsWrongPool(t *testing.T) {
	env := newTestEnv(t)
	id := env.mintFunded(t, 10)

	rec := env.do(t, http.MethodPost, "/api/positions/"+formatID(id)+"/decrease", map[string]any{
		"caller":    env.owner.Hex(),
		"pool":      altPool.Hex(),
		"recipient": env.owner.Hex(),
		"shares":    wadAmount(1).String(),
		"bucket":    defaultBucket,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestBucketSharesUnknownTokenReadsZero(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/positions/9/buckets/4156", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0", decodeBody(t, rec)["shares"])
}

func TestBucketValueEndpoint(t *testing.T) {
	env := newTestEnv(t)
	id := env.mintFunded(t, 10)

	rec := env.do(t, http.MethodGet, "/api/positions/"+formatID(id)+"/buckets/4156/value", nil)
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body)
	assert.Equal(t, wadAmount(10).String(), decodeBody(t, rec)["value_in_quote"],
		"10 WAD of shares at rate 1 values to 10 WAD of quote")
}

func TestBurnRequiresEmptyPosition(t *testing.T) {
	env := newTestEnv(t)
	id := env.mintFunded(t, 5)

	burnReq := map[string]any{
		"caller": env.owner.Hex(),
		"pool":   poolAddr.Hex(),
		"bucket": defaultBucket,
	}

	rec := env.do(t, http.MethodPost, "/api/positions/"+formatID(id)+"/burn", burnReq)
	assert.Equal(t, http.StatusConflict, rec.Code, "burn with live shares must be refused")

	rec = env.do(t, http.MethodPost, "/api/positions/"+formatID(id)+"/decrease", map[string]any{
		"caller":    env.owner.Hex(),
		"pool":      poolAddr.Hex(),
		"recipient": env.owner.Hex(),
		"shares":    wadAmount(5).String(),
		"bucket":    defaultBucket,
	})
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body)

	rec = env.do(t, http.MethodPost, "/api/positions/"+formatID(id)+"/burn", burnReq)
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body)
	assert.Equal(t, true, decodeBody(t, rec)["burned"])

	rec = env.do(t, http.MethodGet, "/api/positions/"+formatID(id), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "burned position is gone")
}

func TestListPositionsPagination(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := env.svc.Mint(ctx, domain.MintParams{Recipient: env.owner, Pool: poolAddr})
		require.NoError(t, err)
	}

	rec := env.do(t, http.MethodGet, "/api/positions?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decodeBody(t, rec)["count"])

	rec = env.do(t, http.MethodGet, "/api/positions?limit=2&offset=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.EqualValues(t, 1, body["count"])

	positions := body["positions"].([]any)
	require.Len(t, positions, 1)
	assert.EqualValues(t, 3, positions[0].(map[string]any)["token_id"], "offset skips the first two ids")
}

func TestMetadataEndpoint(t *testing.T) {
	env := newTestEnv(t)
	id := env.mintFunded(t, 1)

	rec := env.do(t, http.MethodGet, "/api/positions/"+formatID(id)+"/metadata", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, poolAddr.Hex(), body["pool"])
	buckets := body["buckets"].([]any)
	require.Len(t, buckets, 1)
	assert.EqualValues(t, defaultBucket, buckets[0])
}

func TestEventsEndpointNewestFirst(t *testing.T) {
	env := newTestEnv(t)
	id := env.mintFunded(t, 1)

	rec := env.do(t, http.MethodGet, "/api/positions/"+formatID(id)+"/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	events := body["events"].([]any)
	require.NotEmpty(t, events)

	first := events[0].(map[string]any)
	assert.Equal(t, domain.EventIncreaseLiquidity, first["name"], "latest mutation leads")
	assert.EqualValues(t, id, first["token_id"])
}

func TestDecreaseUnitsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	// Two discrete collateral units sit in the bucket alongside the quote
	// deposit, so redeeming everything pays units first and quote after.
	rec := env.do(t, http.MethodPost, "/api/pools/"+poolAddr.Hex()+"/seed", map[string]any{
		"units": []map[string]any{{"bucket": defaultBucket, "unit_ids": []uint64{11, 12}}},
	})
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body)

	id := env.mintFunded(t, 100)

	rec = env.do(t, http.MethodPost, "/api/positions/"+formatID(id)+"/decrease-units", map[string]any{
		"caller":          env.owner.Hex(),
		"pool":            poolAddr.Hex(),
		"recipient":       env.owner.Hex(),
		"shares":          wadAmount(100).String(),
		"bucket":          defaultBucket,
		"unit_candidates": []uint64{11, 12},
	})
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body)

	body := decodeBody(t, rec)
	units := body["units"].([]any)
	require.Len(t, units, 2)
	assert.EqualValues(t, 11, units[0])
	assert.EqualValues(t, 12, units[1])
	assert.Equal(t, wadAmount(98).String(), body["quote"], "quote remainder after two unit payouts")
}

func TestMemorializeEndpoint(t *testing.T) {
	env := newTestEnv(t)

	// Pool-native balance held by the owner, imported after mint.
	rec := env.do(t, http.MethodPost, "/api/pools/"+poolAddr.Hex()+"/seed", map[string]any{
		"lenders": []map[string]any{{
			"owner":  env.owner.Hex(),
			"bucket": defaultBucket,
			"shares": wadAmount(25).String(),
		}},
	})
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body)

	mintRec := env.do(t, http.MethodPost, "/api/positions", map[string]any{
		"recipient": env.owner.Hex(),
		"pool":      poolAddr.Hex(),
	})
	require.Equal(t, http.StatusCreated, mintRec.Code)
	id := uint64(decodeBody(t, mintRec)["token_id"].(float64))

	rec = env.do(t, http.MethodPost, "/api/positions/"+formatID(id)+"/memorialize", map[string]any{
		"pool":    poolAddr.Hex(),
		"owner":   env.owner.Hex(),
		"buckets": []uint64{defaultBucket},
	})
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body)

	rec = env.do(t, http.MethodGet, "/api/positions/"+formatID(id), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	buckets := decodeBody(t, rec)["buckets"].(map[string]any)
	assert.Equal(t, wadAmount(25).String(), buckets["4156"], "pool-native balance imported")
}

func TestStatusEndpointReportsCounters(t *testing.T) {
	env := newTestEnv(t)
	env.mintFunded(t, 1)

	rec := env.do(t, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "serve", body["mode"])
	assert.Equal(t, "sim", body["pool_backend"])
	assert.EqualValues(t, 1, body["positions"])
	assert.EqualValues(t, 2, body["next_token_id"])
}
