package core

import "sync/atomic"

// Metrics counts what happened to disposable resources over the lifetime of
// a context. All counters are safe for concurrent use.
type Metrics struct {
	registered atomic.Uint64
	deferred   atomic.Uint64
	scoped     atomic.Uint64
	promoted   atomic.Uint64
	destroyed  atomic.Uint64
	leaked     atomic.Uint64
	frames     atomic.Uint64
}

// Stats is a point-in-time copy of Metrics.
type Stats struct {
	Registered uint64
	Deferred   uint64
	Scoped     uint64
	Promoted   uint64
	Destroyed  uint64
	Leaked     uint64
	Frames     uint64
	// Entries still waiting in the deferred queue.
	PendingDeferred int
	// Tokens not yet destroyed.
	Live int
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) Registered()    { m.registered.Add(1) }
func (m *Metrics) Deferred()      { m.deferred.Add(1) }
func (m *Metrics) Scoped()        { m.scoped.Add(1) }
func (m *Metrics) Promoted(n int) { m.promoted.Add(uint64(n)) }
func (m *Metrics) Destroyed()     { m.destroyed.Add(1) }
func (m *Metrics) Leaked()        { m.leaked.Add(1) }
func (m *Metrics) Frame()         { m.frames.Add(1) }

func (m *Metrics) Snapshot() Stats {
	return Stats{
		Registered: m.registered.Load(),
		Deferred:   m.deferred.Load(),
		Scoped:     m.scoped.Load(),
		Promoted:   m.promoted.Load(),
		Destroyed:  m.destroyed.Load(),
		Leaked:     m.leaked.Load(),
		Frames:     m.frames.Load(),
	}
}
