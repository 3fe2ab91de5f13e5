package vulkan

import (
	"context"
	"fmt"
	"sync"

	vk "github.com/goki/vulkan"
	"github.com/google/uuid"
	"github.com/spaghettifunk/vkctx/engine/core"
)

// ContextState is the lifecycle phase of a Context.
type ContextState uint8

const (
	ContextActive ContextState = iota
	ContextIdling
	ContextDraining
	ContextDestroyed
)

func (s ContextState) String() string {
	switch s {
	case ContextActive:
		return "active"
	case ContextIdling:
		return "idling"
	case ContextDraining:
		return "draining"
	case ContextDestroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("ContextState(%d)", uint8(s))
	}
}

// Allocator is a device memory allocator owned by the context. It is
// destroyed before the logical device.
type Allocator interface {
	Destroy() error
}

// Handles are the native objects produced by bootstrap. The context takes
// ownership of all of them.
type Handles struct {
	Instance       vk.Instance
	DebugCallback  vk.DebugReportCallback
	Surface        vk.Surface
	PhysicalDevice vk.PhysicalDevice
	Device         vk.Device
	Allocator      Allocator
	// Host allocation callbacks passed to every create and destroy call.
	AllocationCallbacks *vk.AllocationCallbacks
	Queues              map[QueueRole]QueueInfo
}

// Context owns a logical device and everything created against it. Resources
// register a destructor with the context; released destructors run on the
// disposal worker once the GPU can no longer be using them.
type Context struct {
	id      uuid.UUID
	cfg     core.ContextConfig
	driver  Driver
	handles Handles

	gate     *QueueGate
	registry *registry
	deferred *DeferredDisposalQueue
	worker   *DisposalWorker
	metrics  *core.Metrics

	memoryOnce       sync.Once
	memoryProperties vk.PhysicalDeviceMemoryProperties

	// lifecycle guards state. Operations that must not overlap a state
	// change hold it for reading.
	lifecycle sync.RWMutex
	state     ContextState
	// serializes Close callers
	closeMu sync.Mutex
}

func NewContext(handles Handles, cfg core.ContextConfig, opts ...Option) (*Context, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.driver == nil {
		o.driver = NewDriver()
	}
	if err := cfg.Normalize(); err != nil {
		return nil, fmt.Errorf("context config: %w", err)
	}

	gate, err := NewQueueGate(o.driver, handles.Device, handles.Queues)
	if err != nil {
		return nil, err
	}

	c := &Context{
		id:       uuid.New(),
		cfg:      cfg,
		driver:   o.driver,
		handles:  handles,
		gate:     gate,
		registry: newRegistry(),
		deferred: NewDeferredDisposalQueue(cfg.MaxFramesInFlight, cfg.DeferredHighWater),
		metrics:  core.NewMetrics(),
		state:    ContextActive,
	}
	c.worker = newDisposalWorker(c, cfg, o.onDisposalFailure)

	core.LogInfo("Context %s created: %d frames in flight, %d distinct queues", c.id, cfg.MaxFramesInFlight, gate.DistinctQueues())
	return c, nil
}

func (c *Context) ID() uuid.UUID {
	return c.id
}

func (c *Context) Config() core.ContextConfig {
	return c.cfg
}

func (c *Context) Driver() Driver {
	return c.driver
}

func (c *Context) Device() vk.Device {
	return c.handles.Device
}

func (c *Context) PhysicalDevice() vk.PhysicalDevice {
	return c.handles.PhysicalDevice
}

func (c *Context) AllocationCallbacks() *vk.AllocationCallbacks {
	return c.handles.AllocationCallbacks
}

func (c *Context) Gate() *QueueGate {
	return c.gate
}

func (c *Context) State() ContextState {
	c.lifecycle.RLock()
	defer c.lifecycle.RUnlock()
	return c.state
}

func (c *Context) register(t *Token) {
	c.lifecycle.RLock()
	defer c.lifecycle.RUnlock()

	if c.state >= ContextDraining {
		core.Invariant("register", fmt.Errorf("%w: context %s is %s", core.ErrContextClosed, c.id, c.state))
	}
	c.registry.add(t)
	c.metrics.Registered()
}

// DisposeDeferred queues t until maxFramesInFlight+1 ticks have passed.
func (c *Context) DisposeDeferred(t *Token) {
	c.dispose("dispose deferred", t, func() {
		c.metrics.Deferred()
		c.deferred.Push(t)
	})
}

// DisposeScoped hands t straight to the disposal worker. The caller must know
// the GPU is done with the resource, for example because a fence covering its
// last use was waited on.
func (c *Context) DisposeScoped(t *Token) {
	c.dispose("dispose scoped", t, func() {
		c.metrics.Scoped()
		c.worker.Enqueue(t)
	})
}

func (c *Context) dispose(op string, t *Token, route func()) {
	if t == nil {
		core.Invariant(op, core.ErrNilOwner)
	}
	if t.ctx != c {
		core.Invariant(op, fmt.Errorf("%s belongs to another context", t))
	}

	c.lifecycle.RLock()
	defer c.lifecycle.RUnlock()

	if !t.markQueued() {
		if t.flushed.Load() {
			core.LogDebug("%s: %s was already flushed by context teardown", op, t)
			return
		}
		core.Invariant(op, fmt.Errorf("%w: %s", core.ErrDoubleDispose, t))
	}
	c.registry.leaveLive(t)
	route()
}

// reclaim routes a token whose owner was collected. Teardown flushes such
// tokens itself once it has started.
func (c *Context) reclaim(t *Token) {
	c.lifecycle.RLock()
	defer c.lifecycle.RUnlock()

	if c.state >= ContextDraining || !t.markQueued() {
		return
	}
	c.registry.leaveLive(t)
	c.metrics.Deferred()
	c.deferred.Push(t)
}

func (c *Context) requireActive(op string) {
	if c.state != ContextActive {
		core.Invariant(op, fmt.Errorf("%w: context %s is %s", core.ErrContextClosed, c.id, c.state))
	}
}

// Submit issues work on the queue bound to role, serialized with every other
// user of that physical queue.
func (c *Context) Submit(role QueueRole, submits []vk.SubmitInfo, fence vk.Fence) error {
	c.lifecycle.RLock()
	defer c.lifecycle.RUnlock()
	c.requireActive("submit")

	return c.gate.Submit(role, submits, fence)
}

// QueueDo runs fn with exclusive access to the queue bound to role.
func (c *Context) QueueDo(role QueueRole, fn func(queue vk.Queue) error) error {
	c.lifecycle.RLock()
	defer c.lifecycle.RUnlock()
	c.requireActive("queue call")

	return c.gate.Do(role, fn)
}

// WaitIdle blocks until the device has finished all submitted work.
func (c *Context) WaitIdle() error {
	c.lifecycle.RLock()
	defer c.lifecycle.RUnlock()
	c.requireActive("wait idle")

	return c.gate.WaitIdle()
}

// Tick marks the end of a frame. Deferred tokens that have waited long enough
// move to the disposal worker.
func (c *Context) Tick() {
	c.lifecycle.RLock()
	defer c.lifecycle.RUnlock()

	if c.state >= ContextDraining {
		return
	}
	c.metrics.Frame()
	c.promote(c.deferred.Tick())
}

// Flush waits for the device to go idle and then promotes, regardless of age,
// every token that was deferred before the call. Tokens released while the
// wait is in progress may belong to work submitted after it began, so they
// keep waiting. Programs that do not tick use it to bound the deferred queue.
func (c *Context) Flush() error {
	c.lifecycle.RLock()
	defer c.lifecycle.RUnlock()
	c.requireActive("flush")

	mark := c.deferred.Mark()
	if err := c.gate.WaitIdle(); err != nil {
		return err
	}
	c.promote(c.deferred.DrainUpTo(mark))
	return nil
}

func (c *Context) promote(ready []*Token) {
	if len(ready) == 0 {
		return
	}
	c.metrics.Promoted(len(ready))
	for _, t := range ready {
		c.worker.Enqueue(t)
	}
}

// Sync waits until every destructor handed to the worker so far has run.
func (c *Context) Sync(ctx context.Context) error {
	return c.worker.Sync(ctx)
}

// ApplyConfig hot-applies the settings that are safe to change at runtime.
func (c *Context) ApplyConfig(cfg core.ContextConfig) {
	if err := cfg.Normalize(); err != nil {
		core.LogWarn("Context %s: ignoring config update: %s", c.id, err)
		return
	}
	c.deferred.SetHighWater(cfg.DeferredHighWater)
	if cfg.MaxFramesInFlight != c.cfg.MaxFramesInFlight {
		core.LogWarn("Context %s: max_frames_in_flight changes need a restart (running with %d)", c.id, c.cfg.MaxFramesInFlight)
	}
}

func (c *Context) Stats() core.Stats {
	s := c.metrics.Snapshot()
	s.PendingDeferred = c.deferred.Len()
	s.Live = c.registry.len()
	return s
}

// Close tears the context down: wait for the device, run every outstanding
// destructor, then destroy the allocator, device, surface, debug callback and
// instance. Failures along the way are logged and teardown continues. If the
// disposal worker is abandoned after worker_join_timeout, the native objects
// are leaked instead, since its destructors may still be using the device.
// Calling Close again is a no-op.
func (c *Context) Close() {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	c.lifecycle.Lock()
	if c.state != ContextActive {
		c.lifecycle.Unlock()
		return
	}
	c.state = ContextIdling
	c.lifecycle.Unlock()

	core.LogInfo("Context %s: waiting for device idle", c.id)
	if err := c.gate.WaitIdle(); err != nil {
		core.LogError("Context %s: wait idle during teardown: %s", c.id, err)
	}

	c.lifecycle.Lock()
	c.state = ContextDraining
	flushed := c.flushAll()
	c.lifecycle.Unlock()

	core.LogInfo("Context %s: draining %d outstanding destructors", c.id, flushed)
	if err := c.worker.Stop(c.cfg.WorkerJoinTimeout.Duration); err != nil {
		core.LogError("Context %s: %s, leaking device and instance", c.id, err)
	} else {
		c.destroyNative()
	}

	c.lifecycle.Lock()
	c.state = ContextDestroyed
	c.lifecycle.Unlock()

	s := c.Stats()
	core.LogInfo("Context %s destroyed: %d registered, %d destroyed, %d leaked", c.id, s.Registered, s.Destroyed, s.Leaked)
}

// flushAll moves every deferred and every still-live token to the worker.
// Must be called with the lifecycle lock held.
func (c *Context) flushAll() int {
	ready := c.deferred.Drain()
	c.promote(ready)
	n := len(ready)

	for _, t := range c.registry.tokens() {
		if !t.markQueued() {
			continue
		}
		t.flushed.Store(true)
		c.registry.leaveLive(t)
		c.worker.Enqueue(t)
		n++
	}
	return n
}

// destroyNative releases the context's own objects in reverse creation order.
func (c *Context) destroyNative() {
	h := c.handles
	if h.Allocator != nil {
		core.LogDebug("Destroying device memory allocator...")
		if err := h.Allocator.Destroy(); err != nil {
			core.LogError("Context %s: destroy allocator: %s", c.id, err)
		}
	}
	if h.Device != nil {
		core.LogDebug("Destroying Vulkan device...")
		c.driver.DestroyDevice(h.Device, h.AllocationCallbacks)
	}
	if h.Surface != vk.NullSurface {
		core.LogDebug("Destroying Vulkan surface...")
		c.driver.DestroySurface(h.Instance, h.Surface, h.AllocationCallbacks)
	}
	if h.DebugCallback != vk.NullDebugReportCallback {
		core.LogDebug("Destroying Vulkan debugger...")
		c.driver.DestroyDebugReportCallback(h.Instance, h.DebugCallback, h.AllocationCallbacks)
	}
	if h.Instance != nil {
		core.LogDebug("Destroying Vulkan instance...")
		c.driver.DestroyInstance(h.Instance, h.AllocationCallbacks)
	}
}

// FindMemoryIndex returns the first memory type allowed by typeFilter that has
// all of propertyFlags, or -1.
func (c *Context) FindMemoryIndex(typeFilter uint32, propertyFlags vk.MemoryPropertyFlags) int32 {
	c.memoryOnce.Do(func() {
		c.memoryProperties = c.driver.GetPhysicalDeviceMemoryProperties(c.handles.PhysicalDevice)
	})
	props := c.memoryProperties

	for i := uint32(0); i < props.MemoryTypeCount; i++ {
		// Check each memory type to see if its bit is set to 1.
		if (typeFilter&(1<<i)) != 0 && props.MemoryTypes[i].PropertyFlags&propertyFlags == propertyFlags {
			return int32(i)
		}
	}
	core.LogWarn("Unable to find suitable memory type!")
	return -1
}
