package containers

import "sync"

// BlockingQueue is an unbounded FIFO whose Take blocks until an element is
// available. Put never blocks.
type BlockingQueue[T any] struct {
	mu    sync.Mutex
	cond  *sync.Cond
	queue *RingQueue[T]
}

func NewBlockingQueue[T any](initialSize int) *BlockingQueue[T] {
	bq := &BlockingQueue[T]{
		queue: NewGrowableRingQueue[T](initialSize),
	}
	bq.cond = sync.NewCond(&bq.mu)
	return bq
}

// Put appends value and wakes one waiting consumer.
func (bq *BlockingQueue[T]) Put(value T) {
	bq.mu.Lock()
	// A growable queue never reports full.
	_ = bq.queue.Enqueue(value)
	bq.mu.Unlock()
	bq.cond.Signal()
}

// Take removes the front element, waiting for one if the queue is empty.
func (bq *BlockingQueue[T]) Take() T {
	bq.mu.Lock()
	defer bq.mu.Unlock()
	for bq.queue.IsEmpty() {
		bq.cond.Wait()
	}
	value, _ := bq.queue.Dequeue()
	return value
}

func (bq *BlockingQueue[T]) Len() int {
	bq.mu.Lock()
	defer bq.mu.Unlock()
	return bq.queue.Len()
}
