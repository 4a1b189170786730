package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brianmcmichael/ajna-core/internal/domain"
	"github.com/brianmcmichael/ajna-core/internal/server/handler"
	"github.com/brianmcmichael/ajna-core/internal/server/middleware"
	"github.com/brianmcmichael/ajna-core/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimit caps requests per client IP per RateLimitWindow. Zero
	// disables rate limiting even when a limiter is wired.
	RateLimit       int
	RateLimitWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
// Pools is optional; it is only present on deployments running the simulated
// pool backend.
type Handlers struct {
	Health    *handler.HealthHandler
	Status    *handler.StatusHandler
	Positions *handler.PositionHandler
	Registry  *handler.RegistryHandler
	Permits   *handler.PermitHandler
	Multicall *handler.MulticallHandler
	Pools     *handler.PoolHandler
}

// Server is the HTTP + WebSocket API server for the position ledger.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (CORS, logging, rate limiting, auth) and attaches
// the WebSocket hub. limiter may be nil; rate limiting is skipped without it.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// --- Register routes ---

	// Health and status. Health bypasses auth via the middleware skip list.
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)

	// Position ledger endpoints.
	mux.HandleFunc("GET /api/positions", handlers.Positions.List)
	mux.HandleFunc("POST /api/positions", handlers.Positions.Mint)
	mux.HandleFunc("GET /api/positions/{id}", handlers.Positions.Get)
	mux.HandleFunc("GET /api/positions/{id}/metadata", handlers.Positions.Metadata)
	mux.HandleFunc("GET /api/positions/{id}/nonce", handlers.Positions.Nonce)
	mux.HandleFunc("GET /api/positions/{id}/events", handlers.Positions.Events)
	mux.HandleFunc("GET /api/positions/{id}/buckets/{bucket}", handlers.Positions.BucketShares)
	mux.HandleFunc("GET /api/positions/{id}/buckets/{bucket}/value", handlers.Positions.BucketValue)
	mux.HandleFunc("POST /api/positions/{id}/increase", handlers.Positions.IncreaseLiquidity)
	mux.HandleFunc("POST /api/positions/{id}/decrease", handlers.Positions.DecreaseLiquidity)
	mux.HandleFunc("POST /api/positions/{id}/decrease-units", handlers.Positions.DecreaseLiquidityUnits)
	mux.HandleFunc("POST /api/positions/{id}/memorialize", handlers.Positions.Memorialize)
	mux.HandleFunc("POST /api/positions/{id}/burn", handlers.Positions.Burn)

	// Token ownership endpoints.
	mux.HandleFunc("GET /api/registry/owner/{id}", handlers.Registry.Owner)
	mux.HandleFunc("GET /api/registry/approved/{id}", handlers.Registry.Approved)
	mux.HandleFunc("POST /api/registry/transfer", handlers.Registry.Transfer)
	mux.HandleFunc("POST /api/registry/approve", handlers.Registry.Approve)
	mux.HandleFunc("POST /api/registry/approval-for-all", handlers.Registry.ApprovalForAll)

	// Signature-based approvals.
	mux.HandleFunc("POST /api/permits", handlers.Permits.Apply)
	mux.HandleFunc("POST /api/permits/sign", handlers.Permits.Sign)

	// Batched operations.
	mux.HandleFunc("POST /api/multicall", handlers.Multicall.Batch)

	// Simulated pool seeding, present only on the sim backend.
	if handlers.Pools != nil {
		mux.HandleFunc("POST /api/pools/{pool}/seed", handlers.Pools.Seed)
		mux.HandleFunc("GET /api/pools/{pool}/buckets/{bucket}", handlers.Pools.Bucket)
	}

	// WebSocket endpoint, present only when a signal bus is wired.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux

	h = middleware.Auth(cfg.APIKey, "/api/health")(h)

	if limiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateLimitWindow
		if window <= 0 {
			window = time.Minute
		}
		h = middleware.RateLimit(limiter, cfg.RateLimit, window)(h)
	}

	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
