// Package wad provides fixed-point arithmetic on 18-decimal (WAD) integer
// amounts, plus the deterministic bucket index to price mapping used by the
// valuation views.
package wad

import (
	"fmt"
	"math"
	"math/big"

	"github.com/brianmcmichael/ajna-core/internal/domain"
)

// One is the WAD scale factor, 1e18.
var One = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Bucket index bounds. Index 0 carries the highest price; MaxBucketIndex the
// lowest. UnitPriceIndex is the index whose price is exactly 1 WAD.
const (
	MaxBucketIndex uint64 = 7388
	UnitPriceIndex uint64 = 4156
)

// step is the per-bucket price ratio, 1.005 in WAD.
var step = new(big.Int).Mul(big.NewInt(1005), new(big.Int).Exp(big.NewInt(10), big.NewInt(15), nil))

// Mul returns a*b/1e18, flooring.
func Mul(a, b *big.Int) *big.Int {
	out := new(big.Int).Mul(a, b)
	return out.Quo(out, One)
}

// Div returns a*1e18/b, flooring.
func Div(a, b *big.Int) *big.Int {
	out := new(big.Int).Mul(a, One)
	return out.Quo(out, b)
}

// FromUint64 returns n scaled to WAD.
func FromUint64(n uint64) *big.Int {
	return new(big.Int).Mul(new(big.Int).SetUint64(n), One)
}

// FloorUnits floors a WAD amount to a whole-unit count. Amounts too large for
// a uint64 clamp to the maximum; callers bound the result against short
// candidate lists before acting on it.
func FloorUnits(a *big.Int) uint64 {
	q := new(big.Int).Quo(a, One)
	if !q.IsUint64() {
		return math.MaxUint64
	}
	return q.Uint64()
}

// PriceAt returns the WAD price for a bucket index: 1.005^(4156-index).
// Index 0 is the highest representable price; MaxBucketIndex the lowest.
func PriceAt(bucket uint64) (*big.Int, error) {
	if bucket > MaxBucketIndex {
		return nil, fmt.Errorf("wad: price at %d: %w", bucket, domain.ErrBucketOutOfRange)
	}
	if bucket == UnitPriceIndex {
		return new(big.Int).Set(One), nil
	}
	if bucket < UnitPriceIndex {
		return powWad(step, UnitPriceIndex-bucket), nil
	}
	return Div(One, powWad(step, bucket-UnitPriceIndex)), nil
}

// powWad raises a WAD base to an integer exponent by squaring, flooring at
// each multiplication.
func powWad(base *big.Int, exp uint64) *big.Int {
	result := new(big.Int).Set(One)
	b := new(big.Int).Set(base)
	for exp > 0 {
		if exp&1 == 1 {
			result = Mul(result, b)
		}
		exp >>= 1
		if exp > 0 {
			b = Mul(b, b)
		}
	}
	return result
}
