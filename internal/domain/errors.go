package domain

import "errors"

var (
	ErrNotFound             = errors.New("not found")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrPositionNotFound     = errors.New("position not found")
	ErrPoolMismatch         = errors.New("pool does not match position binding")
	ErrLiquidityNotRemoved  = errors.New("liquidity not removed")
	ErrNoSharesCredited     = errors.New("no shares credited by pool")
	ErrInsufficientShares   = errors.New("insufficient share balance")
	ErrInsufficientUnits    = errors.New("insufficient collateral unit candidates")
	ErrInvalidNonce         = errors.New("invalid permit nonce")
	ErrPermitExpired        = errors.New("permit deadline passed")
	ErrUnknownToken         = errors.New("unknown token identity")
	ErrUnknownPool          = errors.New("unknown pool")
	ErrLiquidityUnsupported = errors.New("pool backend does not support liquidity operations")
	ErrBucketOutOfRange     = errors.New("bucket index out of range")
	ErrSigningFailed        = errors.New("signing failed")
	ErrLockHeld             = errors.New("lock already held")
)
