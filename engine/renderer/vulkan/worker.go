package vulkan

import (
	"context"
	"sync"
	"time"

	"github.com/spaghettifunk/vkctx/engine/containers"
	"github.com/spaghettifunk/vkctx/engine/core"
)

type disposalJobKind uint8

const (
	jobDestroy disposalJobKind = iota
	jobBarrier
	jobPoison
)

type disposalJob struct {
	kind  disposalJobKind
	token *Token
	done  chan struct{}
}

// DisposalFailureHook observes destructors that failed on the worker.
type DisposalFailureHook func(t *Token, err error)

// DisposalWorker runs destructors on a single goroutine, in the order they
// were enqueued.
type DisposalWorker struct {
	ctx       *Context
	queue     *containers.BlockingQueue[disposalJob]
	policy    core.DisposalFailurePolicy
	slow      time.Duration
	onFailure DisposalFailureHook

	mu      sync.Mutex
	stopped bool
	exited  chan struct{}
}

func newDisposalWorker(c *Context, cfg core.ContextConfig, onFailure DisposalFailureHook) *DisposalWorker {
	w := &DisposalWorker{
		ctx:       c,
		queue:     containers.NewBlockingQueue[disposalJob](64),
		policy:    cfg.DisposalFailurePolicy,
		slow:      cfg.SlowDestructor.Duration,
		onFailure: onFailure,
		exited:    make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *DisposalWorker) run() {
	defer close(w.exited)

	clock := core.NewClock()
	for {
		job := w.queue.Take()
		switch job.kind {
		case jobPoison:
			return
		case jobBarrier:
			close(job.done)
		case jobDestroy:
			w.dispose(job.token, clock)
		}
	}
}

func (w *DisposalWorker) dispose(t *Token, clock *core.Clock) {
	clock.Start()
	err := t.destroy(w.ctx)
	clock.Update()
	clock.Stop()

	w.ctx.registry.remove(t)

	if w.slow > 0 && clock.Elapsed() > w.slow {
		core.LogWarn("Slow destructor: %s took %s", t, clock.Elapsed())
	}
	if err == nil {
		w.ctx.metrics.Destroyed()
		return
	}

	w.ctx.metrics.Leaked()
	if w.onFailure != nil {
		w.onFailure(t, err)
	}
	if w.policy == core.DisposalFailureFatal {
		core.LogFatal("Disposal of %s failed: %s", t, err)
		return
	}
	core.LogError("Disposal of %s failed, native resource leaked: %s", t, err)
}

func (w *DisposalWorker) put(job disposalJob) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return false
	}
	w.queue.Put(job)
	return true
}

// Enqueue schedules t for destruction. It never blocks.
func (w *DisposalWorker) Enqueue(t *Token) {
	if !w.put(disposalJob{kind: jobDestroy, token: t}) {
		core.LogError("Disposal worker already stopped, %s will not be destroyed", t)
	}
}

// Sync waits until every job enqueued before the call has run.
func (w *DisposalWorker) Sync(ctx context.Context) error {
	done := make(chan struct{})
	if !w.put(disposalJob{kind: jobBarrier, done: done}) {
		return core.ErrWorkerStopped
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop lets the worker finish its queue and waits for it to exit. A timeout
// of zero waits forever; otherwise the worker is abandoned once it expires.
func (w *DisposalWorker) Stop(timeout time.Duration) error {
	w.mu.Lock()
	if !w.stopped {
		w.stopped = true
		w.queue.Put(disposalJob{kind: jobPoison})
	}
	w.mu.Unlock()

	if timeout <= 0 {
		<-w.exited
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-w.exited:
		return nil
	case <-timer.C:
		core.LogError("Disposal worker still busy after %s with %d jobs queued, abandoning it", timeout, w.queue.Len())
		return core.ErrJoinTimeout
	}
}

// Pending is the number of jobs not yet picked up by the worker.
func (w *DisposalWorker) Pending() int {
	return w.queue.Len()
}
