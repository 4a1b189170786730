package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/brianmcmichael/ajna-core/internal/crypto"
	"github.com/brianmcmichael/ajna-core/internal/domain"
	"github.com/brianmcmichael/ajna-core/internal/ledger"
	"github.com/brianmcmichael/ajna-core/internal/registry"
)

// PositionService is the facade the transport layer drives. It composes the
// ledger and the ownership registry, layers the metadata cache over the
// ledger's metadata view, and hosts the permit and multicall flows.
type PositionService struct {
	ledger       *ledger.Ledger
	registry     *registry.Registry
	events       domain.EventStore
	meta         domain.MetadataCache
	permitDomain crypto.Domain
	signer       *crypto.Signer
	logger       *slog.Logger
}

// NewPositionService creates a PositionService over the given engines.
func NewPositionService(
	led *ledger.Ledger,
	reg *registry.Registry,
	events domain.EventStore,
	permitDomain crypto.Domain,
	logger *slog.Logger,
) *PositionService {
	return &PositionService{
		ledger:       led,
		registry:     reg,
		events:       events,
		permitDomain: permitDomain,
		logger:       logger,
	}
}

// WithMetadataCache attaches a metadata cache. Without one, Metadata always
// computes from the ledger.
func (s *PositionService) WithMetadataCache(meta domain.MetadataCache) *PositionService {
	s.meta = meta
	return s
}

// WithSigner attaches the operator signer used by SignPermit for
// service-custodied keys.
func (s *PositionService) WithSigner(signer *crypto.Signer) *PositionService {
	s.signer = signer
	return s
}

// ---------------------------------------------------------------------------
// Ledger mutations
// ---------------------------------------------------------------------------

// Mint allocates a new position token bound to the given pool.
func (s *PositionService) Mint(ctx context.Context, p domain.MintParams) (uint64, error) {
	id, err := s.ledger.Mint(ctx, p)
	if err != nil {
		return 0, fmt.Errorf("service: mint: %w", err)
	}
	return id, nil
}

// IncreaseLiquidity deposits quote token through the position into its pool.
func (s *PositionService) IncreaseLiquidity(ctx context.Context, p domain.IncreaseLiquidityParams) error {
	if err := s.ledger.IncreaseLiquidity(ctx, p); err != nil {
		return fmt.Errorf("service: increase liquidity token %d: %w", p.TokenID, err)
	}
	return nil
}

// DecreaseLiquidity redeems shares for fungible collateral and quote token.
func (s *PositionService) DecreaseLiquidity(ctx context.Context, p domain.DecreaseLiquidityParams) (domain.DecreaseLiquidityResult, error) {
	res, err := s.ledger.DecreaseLiquidity(ctx, p)
	if err != nil {
		return domain.DecreaseLiquidityResult{}, fmt.Errorf("service: decrease liquidity token %d: %w", p.TokenID, err)
	}
	return res, nil
}

// DecreaseLiquidityUnits redeems shares for whole collateral units and quote
// token.
func (s *PositionService) DecreaseLiquidityUnits(ctx context.Context, p domain.DecreaseLiquidityUnitsParams) (domain.DecreaseLiquidityUnitsResult, error) {
	res, err := s.ledger.DecreaseLiquidityUnits(ctx, p)
	if err != nil {
		return domain.DecreaseLiquidityUnitsResult{}, fmt.Errorf("service: decrease liquidity units token %d: %w", p.TokenID, err)
	}
	return res, nil
}

// Memorialize imports the owner's pool-native share balances into the
// position record.
func (s *PositionService) Memorialize(ctx context.Context, p domain.MemorializeParams) error {
	if err := s.ledger.MemorializePositions(ctx, p); err != nil {
		return fmt.Errorf("service: memorialize token %d: %w", p.TokenID, err)
	}
	return nil
}

// Burn erases an emptied position and retires its identity.
func (s *PositionService) Burn(ctx context.Context, p domain.BurnParams) error {
	if err := s.ledger.Burn(ctx, p); err != nil {
		return fmt.Errorf("service: burn token %d: %w", p.TokenID, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Views
// ---------------------------------------------------------------------------

// Get returns the position record for a token.
func (s *PositionService) Get(tokenID uint64) (domain.Position, error) {
	pos, err := s.ledger.Position(tokenID)
	if err != nil {
		return domain.Position{}, fmt.Errorf("service: get token %d: %w", tokenID, err)
	}
	return pos, nil
}

// List returns position records ordered by token id.
func (s *PositionService) List(opts domain.ListOpts) []domain.Position {
	return s.ledger.List(opts)
}

// LPTokens returns the share balance a position holds in a bucket. Unknown
// tokens and empty buckets read as zero.
func (s *PositionService) LPTokens(tokenID, bucket uint64) *big.Int {
	return s.ledger.LPTokens(tokenID, bucket)
}

// ValueInQuote values a position's bucket balance in quote-token terms at
// the pool's current exchange rate.
func (s *PositionService) ValueInQuote(ctx context.Context, tokenID, bucket uint64) (*big.Int, error) {
	v, err := s.ledger.PositionValueInQuote(ctx, tokenID, bucket)
	if err != nil {
		return nil, fmt.Errorf("service: value token %d bucket %d: %w", tokenID, bucket, err)
	}
	return v, nil
}

// Metadata returns the token's presentation payload, reading through the
// metadata cache when one is attached. Cache faults fall back to the ledger.
func (s *PositionService) Metadata(ctx context.Context, tokenID uint64) (domain.PositionMetadata, error) {
	if s.meta != nil {
		cached, err := s.meta.Get(ctx, tokenID)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "service: metadata cache read failed",
				slog.Uint64("token_id", tokenID),
				slog.String("error", err.Error()),
			)
		}
	}

	meta, err := s.ledger.TokenMetadata(tokenID)
	if err != nil {
		return domain.PositionMetadata{}, fmt.Errorf("service: token metadata %d: %w", tokenID, err)
	}

	if s.meta != nil {
		if err := s.meta.Set(ctx, meta); err != nil {
			s.logger.WarnContext(ctx, "service: metadata cache write failed",
				slog.Uint64("token_id", tokenID),
				slog.String("error", err.Error()),
			)
		}
	}
	return meta, nil
}

// Nonce returns the token's current permit nonce.
func (s *PositionService) Nonce(tokenID uint64) (uint64, error) {
	nonce, err := s.ledger.Nonce(tokenID)
	if err != nil {
		return 0, fmt.Errorf("service: nonce token %d: %w", tokenID, err)
	}
	return nonce, nil
}

// History returns the persisted event log for a token, newest first.
func (s *PositionService) History(ctx context.Context, tokenID uint64, opts domain.ListOpts) ([]domain.EventRecord, error) {
	records, err := s.events.ListByToken(ctx, tokenID, opts)
	if err != nil {
		return nil, fmt.Errorf("service: history token %d: %w", tokenID, err)
	}
	return records, nil
}

// Stats summarizes ledger state for the status surface.
type Stats struct {
	Positions   int
	NextTokenID uint64
	Events      int64
}

// GetStats reports position and event counts.
func (s *PositionService) GetStats(ctx context.Context) (Stats, error) {
	events, err := s.events.Count(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("service: stats: %w", err)
	}
	return Stats{
		Positions:   s.ledger.Count(),
		NextTokenID: s.ledger.NextTokenID(),
		Events:      events,
	}, nil
}

// ---------------------------------------------------------------------------
// Registry surface
// ---------------------------------------------------------------------------

// OwnerOf returns the current holder of a token.
func (s *PositionService) OwnerOf(tokenID uint64) (common.Address, error) {
	owner, err := s.registry.CurrentOwner(tokenID)
	if err != nil {
		return common.Address{}, fmt.Errorf("service: owner of token %d: %w", tokenID, err)
	}
	return owner, nil
}

// Transfer moves a token between holders. The caller must be the owner, the
// approved spender, or an operator for the owner.
func (s *PositionService) Transfer(ctx context.Context, caller, from, to common.Address, tokenID uint64) error {
	if err := s.registry.Transfer(ctx, caller, from, to, tokenID); err != nil {
		return fmt.Errorf("service: transfer token %d: %w", tokenID, err)
	}
	return nil
}

// Approve sets or clears the single approved spender for a token.
func (s *PositionService) Approve(ctx context.Context, caller, spender common.Address, tokenID uint64) error {
	if err := s.registry.Approve(ctx, caller, spender, tokenID); err != nil {
		return fmt.Errorf("service: approve token %d: %w", tokenID, err)
	}
	return nil
}

// SetApprovalForAll grants or revokes operator rights over every token the
// caller holds.
func (s *PositionService) SetApprovalForAll(ctx context.Context, caller, operator common.Address, approved bool) error {
	if err := s.registry.SetApprovalForAll(ctx, caller, operator, approved); err != nil {
		return fmt.Errorf("service: set approval for all: %w", err)
	}
	return nil
}

// Approved returns the approved spender for a token, zero when none is set.
func (s *PositionService) Approved(tokenID uint64) (common.Address, error) {
	spender, err := s.registry.GetApproved(tokenID)
	if err != nil {
		return common.Address{}, fmt.Errorf("service: approved for token %d: %w", tokenID, err)
	}
	return spender, nil
}

// IsApprovedForAll reports whether operator holds blanket approval from
// holder.
func (s *PositionService) IsApprovedForAll(holder, operator common.Address) bool {
	return s.registry.IsApprovedForAll(holder, operator)
}

// ---------------------------------------------------------------------------
// Permits
// ---------------------------------------------------------------------------

// PermitParams carries a signed off-line approval for one token. Nonce must
// equal the token's current nonce; each signature is usable once.
type PermitParams struct {
	Spender   common.Address
	TokenID   uint64
	Nonce     uint64
	Deadline  int64
	Signature string
}

// Permit verifies a signed permit and, when valid, consumes the token's
// nonce and records the approval. The signature must recover to the token's
// current owner or to an operator approved by the owner.
func (s *PositionService) Permit(ctx context.Context, p PermitParams) error {
	return s.PermitAt(ctx, p, time.Now())
}

// PermitAt is Permit with an explicit verification time.
func (s *PositionService) PermitAt(ctx context.Context, p PermitParams, now time.Time) error {
	if p.Deadline < now.Unix() {
		return fmt.Errorf("service: permit token %d: %w", p.TokenID, domain.ErrPermitExpired)
	}

	permit := crypto.Permit{
		Spender:  p.Spender,
		TokenID:  p.TokenID,
		Nonce:    p.Nonce,
		Deadline: p.Deadline,
	}
	signerAddr, err := crypto.RecoverPermit(s.permitDomain, permit, p.Signature)
	if err != nil {
		return fmt.Errorf("service: permit token %d: %w", p.TokenID, err)
	}

	owner, err := s.registry.CurrentOwner(p.TokenID)
	if err != nil {
		return fmt.Errorf("service: permit token %d: %w", p.TokenID, err)
	}
	if signerAddr != owner && !s.registry.IsApprovedForAll(owner, signerAddr) {
		return fmt.Errorf("service: permit token %d: signer %s: %w", p.TokenID, signerAddr.Hex(), domain.ErrUnauthorized)
	}

	if err := s.ledger.ConsumeNonce(ctx, p.TokenID, p.Nonce); err != nil {
		return fmt.Errorf("service: permit token %d: %w", p.TokenID, err)
	}

	if err := s.registry.Approve(ctx, signerAddr, p.Spender, p.TokenID); err != nil {
		return fmt.Errorf("service: permit token %d: %w", p.TokenID, err)
	}

	s.logger.InfoContext(ctx, "service: permit approved",
		slog.Uint64("token_id", p.TokenID),
		slog.String("spender", p.Spender.Hex()),
		slog.String("signer", signerAddr.Hex()),
	)
	return nil
}

// SignPermit produces a permit signature with the operator key for a token
// the operator custodies. The permit binds the token's current nonce.
func (s *PositionService) SignPermit(ctx context.Context, spender common.Address, tokenID uint64, deadline int64) (crypto.Permit, string, error) {
	if s.signer == nil {
		return crypto.Permit{}, "", fmt.Errorf("service: sign permit: no operator signer configured: %w", domain.ErrSigningFailed)
	}

	nonce, err := s.ledger.Nonce(tokenID)
	if err != nil {
		return crypto.Permit{}, "", fmt.Errorf("service: sign permit token %d: %w", tokenID, err)
	}

	permit := crypto.Permit{
		Spender:  spender,
		TokenID:  tokenID,
		Nonce:    nonce,
		Deadline: deadline,
	}
	sig, err := s.signer.SignPermit(permit)
	if err != nil {
		return crypto.Permit{}, "", fmt.Errorf("service: sign permit token %d: %w", tokenID, err)
	}

	s.logger.InfoContext(ctx, "service: permit signed",
		slog.Uint64("token_id", tokenID),
		slog.String("spender", spender.Hex()),
	)
	return permit, sig, nil
}
