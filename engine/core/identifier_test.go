package core

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type slotOwner struct{ name string }

func TestIdentifierPool_AcquireRelease(t *testing.T) {
	p := NewIdentifierPool[slotOwner](2)
	a, b, c := &slotOwner{"a"}, &slotOwner{"b"}, &slotOwner{"c"}

	assert.Equal(t, uint32(0), p.Acquire(a))
	assert.Equal(t, uint32(1), p.Acquire(b))
	assert.Equal(t, 2, p.Len())
	assert.Same(t, b, p.Get(1))

	require.NoError(t, p.Release(0))
	assert.Nil(t, p.Get(0))
	assert.Equal(t, 1, p.Len())

	// The freed slot is reused before the table grows.
	assert.Equal(t, uint32(0), p.Acquire(c))
	assert.Equal(t, []*slotOwner{c, b}, p.Snapshot())
}

func TestIdentifierPool_ReleaseErrors(t *testing.T) {
	p := NewIdentifierPool[slotOwner](0)
	assert.Error(t, p.Release(3))

	id := p.Acquire(&slotOwner{})
	require.NoError(t, p.Release(id))
	assert.Error(t, p.Release(id))
	assert.Nil(t, p.Get(42))
}

func TestIdentifierPool_Concurrent(t *testing.T) {
	p := NewIdentifierPool[slotOwner](0)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				id := p.Acquire(&slotOwner{})
				assert.NoError(t, p.Release(id))
			}
		}()
	}
	wg.Wait()
	assert.Zero(t, p.Len())
	assert.Empty(t, p.Snapshot())
}
