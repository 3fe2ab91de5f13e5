package vulkan

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spaghettifunk/vkctx/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisposalWorker_RunsInEnqueueOrder(t *testing.T) {
	c, _ := newTestContext(t, nil)

	var mu sync.Mutex
	var order []uint64
	for i := 0; i < 50; i++ {
		var tok *Token
		tok = Register(c, &testResource{}, Destructor{Kind: "ordered", Fn: func(*Context) error {
			mu.Lock()
			order = append(order, tok.ID())
			mu.Unlock()
			return nil
		}}, Scoped)
		tok.Release()
	}
	require.NoError(t, c.Sync(context.Background()))

	require.Len(t, order, 50)
	for i := 1; i < len(order); i++ {
		assert.Less(t, order[i-1], order[i])
	}
}

func TestDisposalWorker_SyncHonoursContext(t *testing.T) {
	c, _ := newTestContext(t, nil)

	release := make(chan struct{})
	Register(c, &testResource{}, Destructor{Kind: "blocking", Fn: func(*Context) error {
		<-release
		return nil
	}}, Scoped).Release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Sync(ctx), context.DeadlineExceeded)

	close(release)
	require.NoError(t, c.Sync(context.Background()))
}

func TestDisposalWorker_StopDrainsQueue(t *testing.T) {
	c, d := newTestContext(t, nil)

	var n atomic.Int32
	for i := 0; i < 20; i++ {
		tok := Register(c, &testResource{}, countingDestructor(d, "res", &n), Scoped)
		require.True(t, tok.markQueued())
		c.worker.Enqueue(tok)
	}
	require.NoError(t, c.worker.Stop(0))
	assert.Equal(t, int32(20), n.Load())

	// A second stop returns immediately.
	require.NoError(t, c.worker.Stop(time.Millisecond))
	assert.ErrorIs(t, c.worker.Sync(context.Background()), core.ErrWorkerStopped)
}

func TestDisposalWorker_StopTimeout(t *testing.T) {
	c, _ := newTestContext(t, nil)

	release := make(chan struct{})
	defer close(release)
	Register(c, &testResource{}, Destructor{Kind: "stuck", Fn: func(*Context) error {
		<-release
		return nil
	}}, Scoped).Release()

	assert.ErrorIs(t, c.worker.Stop(10*time.Millisecond), core.ErrJoinTimeout)
}

func TestDisposalWorker_SlowDestructorStillCompletes(t *testing.T) {
	c, _ := newTestContext(t, func(cfg *core.ContextConfig) { cfg.SlowDestructor = core.Duration{Duration: time.Nanosecond} })

	var n atomic.Int32
	Register(c, &testResource{}, Destructor{Kind: "slow", Fn: func(*Context) error {
		time.Sleep(time.Millisecond)
		n.Add(1)
		return nil
	}}, Scoped).Release()

	require.NoError(t, c.Sync(context.Background()))
	assert.Equal(t, int32(1), n.Load())
	assert.Equal(t, uint64(1), c.Stats().Destroyed)
}
