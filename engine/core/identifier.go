package core

import (
	"fmt"
	"sync"
)

// IdentifierPool hands out small integer ids backed by a slot table. Released
// slots are reused before the table grows.
type IdentifierPool[T any] struct {
	mu     sync.Mutex
	owners []*T
	free   []uint32
	count  int
}

func NewIdentifierPool[T any](capacity int) *IdentifierPool[T] {
	return &IdentifierPool[T]{
		owners: make([]*T, 0, capacity),
	}
}

// Acquire stores owner and returns its id.
func (p *IdentifierPool[T]) Acquire(owner *T) uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.count++
	// Existing free spot. Take it.
	if n := len(p.free); n > 0 {
		id := p.free[n-1]
		p.free = p.free[:n-1]
		p.owners[id] = owner
		return id
	}
	// If here, no existing free slots. Need a new id, so push one.
	p.owners = append(p.owners, owner)
	return uint32(len(p.owners) - 1)
}

// Release frees the slot for id, making it available for reuse.
func (p *IdentifierPool[T]) Release(id uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if int(id) >= len(p.owners) {
		return fmt.Errorf("identifier release: id '%d' out of range (max=%d). Nothing was done", id, len(p.owners))
	}
	if p.owners[id] == nil {
		return fmt.Errorf("identifier release: id '%d' is not in use. Nothing was done", id)
	}
	p.owners[id] = nil
	p.free = append(p.free, id)
	p.count--
	return nil
}

// Get returns the owner stored under id, or nil.
func (p *IdentifierPool[T]) Get(id uint32) *T {
	p.mu.Lock()
	defer p.mu.Unlock()
	if int(id) >= len(p.owners) {
		return nil
	}
	return p.owners[id]
}

// Len is the number of ids in use.
func (p *IdentifierPool[T]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

// Snapshot returns the owners in use, ordered by id.
func (p *IdentifierPool[T]) Snapshot() []*T {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*T, 0, p.count)
	for _, o := range p.owners {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}
