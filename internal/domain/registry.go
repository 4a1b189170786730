package domain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// TransferCallback is invoked synchronously by the ownership registry inside
// the same unit of work as each ownership change. From is the zero address on
// the creation transfer; To is the zero address on the destruction transfer.
type TransferCallback func(ctx context.Context, from, to common.Address, tokenID uint64)

// OwnershipRegistry is the ledger's view of the token identity registry. The
// ledger allocates identities; the registry tracks holders and delegation.
type OwnershipRegistry interface {
	// IsApprovedOrOwner reports whether caller is the current owner of the
	// token or has been delegated authority over it (per-token approval or
	// operator approval). Unknown tokens report false.
	IsApprovedOrOwner(caller common.Address, tokenID uint64) (bool, error)

	// CurrentOwner returns the current holder of the token.
	CurrentOwner(tokenID uint64) (common.Address, error)

	// Mint records the creation transfer of a ledger-allocated identity to
	// its first owner.
	Mint(ctx context.Context, to common.Address, tokenID uint64) error

	// Burn retires the identity with a destruction transfer.
	Burn(ctx context.Context, tokenID uint64) error
}
