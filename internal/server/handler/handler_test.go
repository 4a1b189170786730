package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/brianmcmichael/ajna-core/internal/crypto"
	"github.com/brianmcmichael/ajna-core/internal/ledger"
	"github.com/brianmcmichael/ajna-core/internal/pool/sim"
	"github.com/brianmcmichael/ajna-core/internal/registry"
	"github.com/brianmcmichael/ajna-core/internal/service"
	"github.com/brianmcmichael/ajna-core/internal/store/memory"
)

const ownerKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var (
	poolAddr    = common.BytesToAddress([]byte{0x0a})
	altPool     = common.BytesToAddress([]byte{0x0b})
	spenderAddr = common.BytesToAddress([]byte{0xee})
	strangerOne = common.BytesToAddress([]byte{0x77})
	testDomain  = crypto.Domain{
		Name:              "Ajna Positions",
		Version:           "1",
		ChainID:           31337,
		VerifyingContract: common.BytesToAddress([]byte{0xcc}),
	}
	wadOne        = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	defaultBucket = uint64(4156)
)

func wadAmount(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), wadOne)
}

// testEnv runs the real service stack behind a mux with the production route
// patterns, so path parameters resolve exactly as they do in the server.
type testEnv struct {
	mux    *http.ServeMux
	svc    *service.PositionService
	dir    *sim.Directory
	signer *crypto.Signer
	owner  common.Address
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	events := memory.NewEventStore()
	audit := memory.NewAuditStore()
	sink := service.NewEventFanout(nil, events, audit, nil, nil, logger)

	reg := registry.New(sink, logger)
	dir := sim.NewDirectory(logger)
	led := ledger.New(reg, dir, memory.NewPositionStore(), sink, logger)
	reg.OnTransfer(led.HandleTransfer)

	signer, err := crypto.NewSigner(ownerKeyHex, testDomain)
	require.NoError(t, err, "test key must parse")

	svc := service.NewPositionService(led, reg, events, testDomain, logger).WithSigner(signer)

	positions := NewPositionHandler(svc, logger)
	registryH := NewRegistryHandler(svc, logger)
	permits := NewPermitHandler(svc, logger)
	multicall := NewMulticallHandler(svc, logger)
	pools := NewPoolHandler(dir, logger)
	status := NewStatusHandler("serve", "sim", time.Now(), svc, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", status.GetStatus)
	mux.HandleFunc("GET /api/positions", positions.List)
	mux.HandleFunc("POST /api/positions", positions.Mint)
	mux.HandleFunc("GET /api/positions/{id}", positions.Get)
	mux.HandleFunc("GET /api/positions/{id}/metadata", positions.Metadata)
	mux.HandleFunc("GET /api/positions/{id}/nonce", positions.Nonce)
	mux.HandleFunc("GET /api/positions/{id}/events", positions.Events)
	mux.HandleFunc("GET /api/positions/{id}/buckets/{bucket}", positions.BucketShares)
	mux.HandleFunc("GET /api/positions/{id}/buckets/{bucket}/value", positions.BucketValue)
	mux.HandleFunc("POST /api/positions/{id}/increase", positions.IncreaseLiquidity)
	mux.HandleFunc("POST /api/positions/{id}/decrease", positions.DecreaseLiquidity)
	mux.HandleFunc("POST /api/positions/{id}/decrease-units", positions.DecreaseLiquidityUnits)
	mux.HandleFunc("POST /api/positions/{id}/memorialize", positions.Memorialize)
	mux.HandleFunc("POST /api/positions/{id}/burn", positions.Burn)
	mux.HandleFunc("GET /api/registry/owner/{id}", registryH.Owner)
	mux.HandleFunc("GET /api/registry/approved/{id}", registryH.Approved)
	mux.HandleFunc("POST /api/registry/transfer", registryH.Transfer)
	mux.HandleFunc("POST /api/registry/approve", registryH.Approve)
	mux.HandleFunc("POST /api/registry/approval-for-all", registryH.ApprovalForAll)
	mux.HandleFunc("POST /api/permits", permits.Apply)
	mux.HandleFunc("POST /api/permits/sign", permits.Sign)
	mux.HandleFunc("POST /api/multicall", multicall.Batch)
	mux.HandleFunc("POST /api/pools/{pool}/seed", pools.Seed)
	mux.HandleFunc("GET /api/pools/{pool}/buckets/{bucket}", pools.Bucket)

	return &testEnv{
		mux:    mux,
		svc:    svc,
		dir:    dir,
		signer: signer,
		owner:  signer.Address(),
	}
}

// do runs one request through the mux and returns the recorded response.
func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err, "request body must marshal")
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rd)
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out), "response must be JSON")
	return out
}

// mintFunded mints a position to the fixture owner over HTTP and deposits
// quote at the default bucket.
func (e *testEnv) mintFunded(t *testing.T, amount int64) uint64 {
	t.Helper()

	rec := e.do(t, http.MethodPost, "/api/positions", map[string]any{
		"recipient": e.owner.Hex(),
		"pool":      poolAddr.Hex(),
	})
	require.Equal(t, http.StatusCreated, rec.Code, "mint must succeed: %s", rec.Body)
	tokenID := uint64(decodeBody(t, rec)["token_id"].(float64))

	rec = e.do(t, http.MethodPost, "/api/positions/"+formatID(tokenID)+"/increase", map[string]any{
		"caller":    e.owner.Hex(),
		"pool":      poolAddr.Hex(),
		"recipient": e.owner.Hex(),
		"amount":    wadAmount(amount).String(),
		"bucket":    defaultBucket,
	})
	require.Equal(t, http.StatusOK, rec.Code, "increase must succeed: %s", rec.Body)
	return tokenID
}

func formatID(id uint64) string {
	return strconv.FormatUint(id, 10)
}
