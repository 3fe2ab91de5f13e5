package vulkan

import (
	"sync"

	"github.com/spaghettifunk/vkctx/engine/containers"
	"github.com/spaghettifunk/vkctx/engine/core"
)

type deferredEntry struct {
	token        *Token
	framesWaited uint32
	seq          uint64
}

// DeferredDisposalQueue holds released persistent tokens until the frames that
// may still reference them have retired.
type DeferredDisposalQueue struct {
	mu        sync.Mutex
	entries   *containers.RingQueue[*deferredEntry]
	threshold uint32
	// number of entries ever pushed, the seq of the newest entry
	pushed    uint64
	highWater int
	// set while Len is above highWater, so the warning fires once per crossing
	overHighWater bool
}

// NewDeferredDisposalQueue creates a queue whose entries become eligible after
// maxFramesInFlight+1 ticks.
func NewDeferredDisposalQueue(maxFramesInFlight uint32, highWater int) *DeferredDisposalQueue {
	return &DeferredDisposalQueue{
		entries:   containers.NewGrowableRingQueue[*deferredEntry](64),
		threshold: maxFramesInFlight + 1,
		highWater: highWater,
	}
}

func (q *DeferredDisposalQueue) Push(t *Token) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.pushed++
	_ = q.entries.Enqueue(&deferredEntry{token: t, seq: q.pushed})

	if q.highWater > 0 && q.entries.Len() > q.highWater && !q.overHighWater {
		q.overHighWater = true
		core.LogWarn("Deferred disposal queue holds %d entries (high water %d). Tick or Flush the context to release them.", q.entries.Len(), q.highWater)
	}
}

// Tick ages every entry by one frame and returns the entries that waited long
// enough, oldest first.
func (q *DeferredDisposalQueue) Tick() []*Token {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.entries.Each(func(e *deferredEntry) {
		e.framesWaited++
	})

	// Entries are pushed in order, so the front always waited the longest.
	var ready []*Token
	for !q.entries.IsEmpty() {
		front, _ := q.entries.Peek()
		if front.framesWaited < q.threshold {
			break
		}
		_, _ = q.entries.Dequeue()
		ready = append(ready, front.token)
	}
	q.checkHighWater()
	return ready
}

// Drain removes every entry regardless of age.
func (q *DeferredDisposalQueue) Drain() []*Token {
	q.mu.Lock()
	defer q.mu.Unlock()

	ready := make([]*Token, 0, q.entries.Len())
	for !q.entries.IsEmpty() {
		e, _ := q.entries.Dequeue()
		ready = append(ready, e.token)
	}
	q.checkHighWater()
	return ready
}

// Mark returns a position in the queue. DrainUpTo(mark) later removes only
// entries pushed before Mark was called.
func (q *DeferredDisposalQueue) Mark() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pushed
}

// DrainUpTo removes every entry pushed at or before mark regardless of age,
// oldest first. Newer entries keep waiting.
func (q *DeferredDisposalQueue) DrainUpTo(mark uint64) []*Token {
	q.mu.Lock()
	defer q.mu.Unlock()

	var ready []*Token
	for !q.entries.IsEmpty() {
		front, _ := q.entries.Peek()
		if front.seq > mark {
			break
		}
		_, _ = q.entries.Dequeue()
		ready = append(ready, front.token)
	}
	q.checkHighWater()
	return ready
}

func (q *DeferredDisposalQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.entries.Len()
}

// SetHighWater changes the warning threshold. Zero or less disables it.
func (q *DeferredDisposalQueue) SetHighWater(n int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.highWater = n
	q.checkHighWater()
}

func (q *DeferredDisposalQueue) checkHighWater() {
	if q.highWater <= 0 || q.entries.Len() <= q.highWater {
		q.overHighWater = false
	}
}
