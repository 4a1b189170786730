package domain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Event names as they appear on the signal bus, in the event store, and in
// audit rows.
const (
	EventMint                   = "mint"
	EventBurn                   = "burn"
	EventIncreaseLiquidity      = "increase_liquidity"
	EventDecreaseLiquidity      = "decrease_liquidity"
	EventDecreaseLiquidityUnits = "decrease_liquidity_units"
	EventMemorializePosition    = "memorialize_position"
	EventTransfer               = "transfer"
	EventApproval               = "approval"
	EventApprovalForAll         = "approval_for_all"
)

// Event is a committed ledger or registry mutation, delivered to off-ledger
// observers after the mutation has been applied.
type Event interface {
	EventName() string
}

// EventSink receives committed events. Delivery failures are an observer
// concern; emission never fails the originating operation.
type EventSink interface {
	Emit(ctx context.Context, ev Event)
}

// MintEvent is emitted when a new position token is created.
type MintEvent struct {
	Recipient common.Address
	Pool      common.Address
	TokenID   uint64
}

func (MintEvent) EventName() string { return EventMint }

// BurnEvent is emitted when a position record is erased. Bucket is the bucket
// the caller passed to the burn operation.
type BurnEvent struct {
	Caller  common.Address
	Bucket  uint64
	TokenID uint64
}

func (BurnEvent) EventName() string { return EventBurn }

// IncreaseLiquidityEvent is emitted after a successful deposit. Amount is the
// quote-token amount deposited, not the share amount credited.
type IncreaseLiquidityEvent struct {
	Recipient common.Address
	Bucket    uint64
	Amount    *big.Int
	TokenID   uint64
}

func (IncreaseLiquidityEvent) EventName() string { return EventIncreaseLiquidity }

// DecreaseLiquidityEvent is emitted after a successful fungible-collateral
// withdrawal.
type DecreaseLiquidityEvent struct {
	Recipient  common.Address
	Bucket     uint64
	Collateral *big.Int
	Quote      *big.Int
	TokenID    uint64
}

func (DecreaseLiquidityEvent) EventName() string { return EventDecreaseLiquidity }

// DecreaseLiquidityUnitsEvent is emitted after a successful
// non-fungible-collateral withdrawal. Units is empty when the floored
// collateral count was zero.
type DecreaseLiquidityUnitsEvent struct {
	Recipient common.Address
	Bucket    uint64
	Units     []uint64
	Quote     *big.Int
	TokenID   uint64
}

func (DecreaseLiquidityUnitsEvent) EventName() string { return EventDecreaseLiquidityUnits }

// MemorializePositionEvent is emitted once per memorialize call, regardless of
// how many buckets were imported.
type MemorializePositionEvent struct {
	Owner   common.Address
	TokenID uint64
}

func (MemorializePositionEvent) EventName() string { return EventMemorializePosition }

// TransferEvent is emitted by the ownership registry on every ownership
// change. From is the zero address on mint; To is the zero address on burn.
type TransferEvent struct {
	From    common.Address
	To      common.Address
	TokenID uint64
}

func (TransferEvent) EventName() string { return EventTransfer }

// ApprovalEvent is emitted when a per-token approval is set or cleared.
type ApprovalEvent struct {
	Owner    common.Address
	Approved common.Address
	TokenID  uint64
}

func (ApprovalEvent) EventName() string { return EventApproval }

// ApprovalForAllEvent is emitted when an operator approval is set or cleared.
type ApprovalForAllEvent struct {
	Owner    common.Address
	Operator common.Address
	Approved bool
}

func (ApprovalForAllEvent) EventName() string { return EventApprovalForAll }
