// internal/distribution/allocator.go
package distribution

import (
	crand "crypto/rand"
	"encoding/binary"
	"math"
	"math/bits"
	"math/rand"
	"time"
)

// Rand is the randomness the allocator and tip selection draw from.
// *math/rand.Rand satisfies it.
type Rand interface {
	Int63n(n int64) int64
}

// NewEntropyRand returns a generator seeded from system entropy.
func NewEntropyRand() *rand.Rand {
	var seed [8]byte
	if _, err := crand.Read(seed[:]); err != nil {
		return rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return rand.New(rand.NewSource(int64(binary.LittleEndian.Uint64(seed[:]))))
}

// AmountPlan holds one allocated amount per recipient, in lamports.
type AmountPlan []uint64

// Sum returns the plan total.
func (p AmountPlan) Sum() uint64 {
	var sum uint64
	for _, v := range p {
		sum += v
	}
	return sum
}

// Allocate spreads total across count units so that every unit lies in [min, max]
// and the units sum to total exactly.
//
// Each unit starts at min. A random pass adds a uniform draw from the remaining
// headroom to every unit in order, then a reconciliation pass pushes whatever is
// left into units that still have room below max.
func Allocate(rng Rand, total uint64, count int, minAmount, maxAmount uint64) (AmountPlan, error) {
	if err := validateBounds(total, count, minAmount, maxAmount); err != nil {
		return nil, err
	}

	plan := make(AmountPlan, count)
	for i := range plan {
		plan[i] = minAmount
	}
	remaining := total - minAmount*uint64(count)
	span := maxAmount - minAmount

	for i := range plan {
		if remaining == 0 {
			break
		}
		limit := span
		if remaining < limit {
			limit = remaining
		}
		add := randomUpTo(rng, limit)
		plan[i] += add
		remaining -= add
	}

	for i := len(plan) - 1; i >= 0 && remaining > 0; i-- {
		room := maxAmount - plan[i]
		if room > remaining {
			room = remaining
		}
		plan[i] += room
		remaining -= room
	}

	return plan, nil
}

func validateBounds(total uint64, count int, minAmount, maxAmount uint64) error {
	if count <= 0 {
		return &InvalidAllocationBoundsError{Total: total, Count: count, Min: minAmount, Max: maxAmount,
			Reason: "recipient count must be positive"}
	}
	if minAmount > maxAmount {
		return &InvalidAllocationBoundsError{Total: total, Count: count, Min: minAmount, Max: maxAmount,
			Reason: "min amount exceeds max amount"}
	}

	hi, lower := bits.Mul64(minAmount, uint64(count))
	if hi != 0 || lower > total {
		return &InvalidAllocationBoundsError{Total: total, Count: count, Min: minAmount, Max: maxAmount,
			Reason: "total is below min * count"}
	}
	hi, upper := bits.Mul64(maxAmount, uint64(count))
	if hi == 0 && upper < total {
		return &InvalidAllocationBoundsError{Total: total, Count: count, Min: minAmount, Max: maxAmount,
			Reason: "total exceeds max * count"}
	}
	return nil
}

// randomUpTo returns a uniform value in [0, limit].
func randomUpTo(rng Rand, limit uint64) uint64 {
	if limit == 0 {
		return 0
	}
	if limit >= math.MaxInt64 {
		return uint64(rng.Int63n(math.MaxInt64))
	}
	return uint64(rng.Int63n(int64(limit) + 1))
}
