// Package registry tracks token ownership, per-token approvals, and operator
// grants, and invokes the transfer callbacks other components register to
// stay in sync with ownership changes.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/brianmcmichael/ajna-core/internal/domain"
)

// Registry is the in-process ownership ledger. Every ownership change flows
// through it: creation transfers from the zero address, destruction transfers
// to the zero address, and holder-to-holder transfers in between. Registered
// callbacks run synchronously after the state change commits, in registration
// order.
type Registry struct {
	mu        sync.RWMutex
	owners    map[uint64]common.Address
	balances  map[common.Address]uint64
	approved  map[uint64]common.Address
	operators map[common.Address]map[common.Address]bool

	listeners []domain.TransferCallback
	events    domain.EventSink
	logger    *slog.Logger
}

var _ domain.OwnershipRegistry = (*Registry)(nil)

// New creates an empty Registry. The event sink may be nil.
func New(events domain.EventSink, logger *slog.Logger) *Registry {
	return &Registry{
		owners:    make(map[uint64]common.Address),
		balances:  make(map[common.Address]uint64),
		approved:  make(map[uint64]common.Address),
		operators: make(map[common.Address]map[common.Address]bool),
		events:    events,
		logger:    logger,
	}
}

// OnTransfer registers a callback invoked synchronously on every transfer.
// Registration happens at wiring time, before the registry serves requests.
func (r *Registry) OnTransfer(cb domain.TransferCallback) {
	r.listeners = append(r.listeners, cb)
}

// Seed restores ownership records at boot, without callbacks or events.
// Approvals and operator grants are not restored; holders re-grant them.
func (r *Registry) Seed(owners map[uint64]common.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for tokenID, holder := range owners {
		if holder == (common.Address{}) {
			continue
		}
		r.owners[tokenID] = holder
		r.balances[holder]++
	}
}

// CurrentOwner returns the holder of record.
func (r *Registry) CurrentOwner(tokenID uint64) (common.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	holder, ok := r.owners[tokenID]
	if !ok {
		return common.Address{}, fmt.Errorf("registry: token %d: %w", tokenID, domain.ErrUnknownToken)
	}
	return holder, nil
}

// BalanceOf returns the number of tokens the holder owns.
func (r *Registry) BalanceOf(holder common.Address) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.balances[holder]
}

// Count returns the number of live tokens.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.owners)
}

// GetApproved returns the single-token spender, zero when none is set.
func (r *Registry) GetApproved(tokenID uint64) (common.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.owners[tokenID]; !ok {
		return common.Address{}, fmt.Errorf("registry: token %d: %w", tokenID, domain.ErrUnknownToken)
	}
	return r.approved[tokenID], nil
}

// IsApprovedForAll reports whether operator holds a blanket grant from holder.
func (r *Registry) IsApprovedForAll(holder, operator common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.operators[holder][operator]
}

// IsApprovedOrOwner reports whether caller may act on the token: the holder,
// the single-token spender, or a blanket operator of the holder.
func (r *Registry) IsApprovedOrOwner(caller common.Address, tokenID uint64) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	holder, ok := r.owners[tokenID]
	if !ok {
		return false, fmt.Errorf("registry: token %d: %w", tokenID, domain.ErrUnknownToken)
	}
	if caller == holder || caller == r.approved[tokenID] {
		return true, nil
	}
	return r.operators[holder][caller], nil
}

// Mint records a new token under the recipient and fires the creation
// transfer from the zero address.
func (r *Registry) Mint(ctx context.Context, to common.Address, tokenID uint64) error {
	if to == (common.Address{}) {
		return fmt.Errorf("registry: mint token %d to the zero address", tokenID)
	}

	r.mu.Lock()
	if _, exists := r.owners[tokenID]; exists {
		r.mu.Unlock()
		return fmt.Errorf("registry: token %d already minted", tokenID)
	}
	r.owners[tokenID] = to
	r.balances[to]++
	r.mu.Unlock()

	r.afterTransfer(ctx, common.Address{}, to, tokenID)
	return nil
}

// Burn retires a token and fires the destruction transfer to the zero
// address. Any single-token approval dies with the token.
func (r *Registry) Burn(ctx context.Context, tokenID uint64) error {
	r.mu.Lock()
	holder, ok := r.owners[tokenID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("registry: burn token %d: %w", tokenID, domain.ErrUnknownToken)
	}
	delete(r.owners, tokenID)
	delete(r.approved, tokenID)
	if r.balances[holder] <= 1 {
		delete(r.balances, holder)
	} else {
		r.balances[holder]--
	}
	r.mu.Unlock()

	r.afterTransfer(ctx, holder, common.Address{}, tokenID)
	return nil
}

// Transfer moves a token between holders. The caller must be approved or the
// holder, from must match the holder of record, and the destination must not
// be the zero address. The single-token approval is cleared.
func (r *Registry) Transfer(ctx context.Context, caller, from, to common.Address, tokenID uint64) error {
	if to == (common.Address{}) {
		return fmt.Errorf("registry: transfer token %d to the zero address", tokenID)
	}

	allowed, err := r.IsApprovedOrOwner(caller, tokenID)
	if err != nil {
		return err
	}
	if !allowed {
		return fmt.Errorf("registry: transfer token %d: caller %s: %w", tokenID, caller.Hex(), domain.ErrUnauthorized)
	}

	r.mu.Lock()
	holder := r.owners[tokenID]
	if holder != from {
		r.mu.Unlock()
		return fmt.Errorf("registry: transfer token %d: from %s is not the holder: %w", tokenID, from.Hex(), domain.ErrUnauthorized)
	}
	delete(r.approved, tokenID)
	r.owners[tokenID] = to
	if r.balances[from] <= 1 {
		delete(r.balances, from)
	} else {
		r.balances[from]--
	}
	r.balances[to]++
	r.mu.Unlock()

	r.afterTransfer(ctx, from, to, tokenID)
	return nil
}

// Approve grants spender single-token rights. Only the holder or one of the
// holder's operators may grant, and the holder cannot be its own spender.
func (r *Registry) Approve(ctx context.Context, caller, spender common.Address, tokenID uint64) error {
	r.mu.Lock()
	holder, ok := r.owners[tokenID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("registry: approve token %d: %w", tokenID, domain.ErrUnknownToken)
	}
	if spender == holder {
		r.mu.Unlock()
		return fmt.Errorf("registry: approve token %d: spender is the holder", tokenID)
	}
	if caller != holder && !r.operators[holder][caller] {
		r.mu.Unlock()
		return fmt.Errorf("registry: approve token %d: caller %s: %w", tokenID, caller.Hex(), domain.ErrUnauthorized)
	}
	if spender == (common.Address{}) {
		delete(r.approved, tokenID)
	} else {
		r.approved[tokenID] = spender
	}
	r.mu.Unlock()

	r.emit(ctx, domain.ApprovalEvent{Owner: holder, Approved: spender, TokenID: tokenID})
	return nil
}

// SetApprovalForAll grants or revokes operator rights over every token the
// caller holds, now and in the future.
func (r *Registry) SetApprovalForAll(ctx context.Context, caller, operator common.Address, approved bool) error {
	if operator == caller {
		return fmt.Errorf("registry: approval for all: operator is the caller")
	}

	r.mu.Lock()
	if approved {
		if r.operators[caller] == nil {
			r.operators[caller] = make(map[common.Address]bool)
		}
		r.operators[caller][operator] = true
	} else {
		delete(r.operators[caller], operator)
		if len(r.operators[caller]) == 0 {
			delete(r.operators, caller)
		}
	}
	r.mu.Unlock()

	r.emit(ctx, domain.ApprovalForAllEvent{Owner: caller, Operator: operator, Approved: approved})
	return nil
}

// afterTransfer runs listeners and emits the transfer event once the state
// change is committed and the lock released.
func (r *Registry) afterTransfer(ctx context.Context, from, to common.Address, tokenID uint64) {
	for _, cb := range r.listeners {
		cb(ctx, from, to, tokenID)
	}
	r.emit(ctx, domain.TransferEvent{From: from, To: to, TokenID: tokenID})
	if r.logger != nil {
		r.logger.DebugContext(ctx, "registry: transfer",
			slog.Uint64("token_id", tokenID),
			slog.String("from", from.Hex()),
			slog.String("to", to.Hex()),
		)
	}
}

func (r *Registry) emit(ctx context.Context, ev domain.Event) {
	if r.events != nil {
		r.events.Emit(ctx, ev)
	}
}
