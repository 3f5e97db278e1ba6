// Package handle provides generation-checked handles into pools.
//
// A Handle is a weak, non-owning reference: an index into a pool plus the generation of the
// slot at the time the handle was issued. Removing an element bumps the slot generation, so a
// handle issued for a previous occupant never compares equal to the handle of the new one.
package handle

import (
	"fmt"
	"math"
)

// Invalid is the index and generation value of the invalid sentinel.
const Invalid = math.MaxUint32

// Handle references an element of type T stored in a Pool[T].
// Pools issue generations starting at 1, so the zero value is invalid like None.
type Handle[T any] struct {
	index uint32
	gen   uint32
}

// New builds a handle from raw parts. Intended for pools and tests.
//
// Parameters:
//   - index: slot index
//   - gen: slot generation
//
// Returns:
//   - Handle[T]: the handle
func New[T any](index, gen uint32) Handle[T] {
	return Handle[T]{index: index, gen: gen}
}

// None returns the invalid sentinel handle (index and generation both Invalid).
func None[T any]() Handle[T] {
	return Handle[T]{index: Invalid, gen: Invalid}
}

// Index returns the slot index.
func (h Handle[T]) Index() uint32 { return h.index }

// Gen returns the slot generation the handle was issued for.
func (h Handle[T]) Gen() uint32 { return h.gen }

// IsValid reports whether h is neither the zero value nor the invalid sentinel. It says
// nothing about whether the referenced element is still alive; ask the pool for that.
func (h Handle[T]) IsValid() bool {
	return h.gen != 0 && (h.index != Invalid || h.gen != Invalid)
}

// Hash packs the handle into a single value: index in the high 32 bits, generation in the low.
func (h Handle[T]) Hash() uint64 {
	return uint64(h.index)<<32 | uint64(h.gen)
}

func (h Handle[T]) String() string {
	if !h.IsValid() {
		return "handle(invalid)"
	}
	return fmt.Sprintf("handle(%d:%d)", h.index, h.gen)
}
