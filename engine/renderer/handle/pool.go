package handle

// firstGen is the generation of a fresh slot. Generation 0 is never issued.
const firstGen = 1

type slot[T any] struct {
	value T
	gen   uint32
	alive bool
}

// Pool owns elements of type T and hands out generation-checked handles to them.
// Freed slots are reused; each reuse carries a higher generation. A slot whose generation
// would reach the sentinel value is retired instead of reused.
//
// Pool is not safe for concurrent use.
type Pool[T any] struct {
	slots []slot[T]
	free  []uint32
	count int
}

// NewPool creates an empty pool with room for capacity elements before growing.
//
// Parameters:
//   - capacity: initial slot capacity
//
// Returns:
//   - *Pool[T]: the pool
func NewPool[T any](capacity int) *Pool[T] {
	return &Pool[T]{
		slots: make([]slot[T], 0, capacity),
	}
}

// Add stores v and returns its handle.
//
// Parameters:
//   - v: the element to store
//
// Returns:
//   - Handle[T]: handle to the stored element
func (p *Pool[T]) Add(v T) Handle[T] {
	p.count++
	if n := len(p.free); n > 0 {
		i := p.free[n-1]
		p.free = p.free[:n-1]
		s := &p.slots[i]
		s.value = v
		s.alive = true
		return Handle[T]{index: i, gen: s.gen}
	}
	p.slots = append(p.slots, slot[T]{value: v, gen: firstGen, alive: true})
	return Handle[T]{index: uint32(len(p.slots) - 1), gen: firstGen}
}

// Get returns a pointer to the element referenced by h. The pointer is only valid until the
// next Add or Remove.
//
// Parameters:
//   - h: the handle to look up
//
// Returns:
//   - *T: the element, or nil
//   - bool: false if h is out of range, stale, or the sentinel
func (p *Pool[T]) Get(h Handle[T]) (*T, bool) {
	if int64(h.index) >= int64(len(p.slots)) {
		return nil, false
	}
	s := &p.slots[h.index]
	if !s.alive || s.gen != h.gen {
		return nil, false
	}
	return &s.value, true
}

// Contains reports whether h references a live element.
func (p *Pool[T]) Contains(h Handle[T]) bool {
	_, ok := p.Get(h)
	return ok
}

// Remove deletes the element referenced by h and bumps the slot generation, invalidating
// every handle previously issued for that slot.
//
// Parameters:
//   - h: the handle to remove
//
// Returns:
//   - T: the removed element
//   - bool: false if h did not reference a live element
func (p *Pool[T]) Remove(h Handle[T]) (T, bool) {
	var zero T
	if _, ok := p.Get(h); !ok {
		return zero, false
	}
	s := &p.slots[h.index]
	v := s.value
	s.value = zero
	s.alive = false
	s.gen++
	p.count--
	if s.gen != Invalid {
		p.free = append(p.free, h.index)
	}
	return v, true
}

// Len returns the number of live elements.
func (p *Pool[T]) Len() int { return p.count }

// Each calls fn for every live element in slot order. fn must not add or remove elements.
func (p *Pool[T]) Each(fn func(h Handle[T], v *T)) {
	for i := range p.slots {
		s := &p.slots[i]
		if s.alive {
			fn(Handle[T]{index: uint32(i), gen: s.gen}, &s.value)
		}
	}
}

// Clear removes every element, bumping each live slot's generation.
func (p *Pool[T]) Clear() {
	p.Each(func(h Handle[T], _ *T) {
		p.Remove(h)
	})
}
