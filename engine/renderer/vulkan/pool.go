package vulkan

import (
	"fmt"
	"strings"
	"sync"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkctx/engine/core"
)

// QueueRole is the logical use of a hardware queue. Several roles may map to
// the same physical queue.
type QueueRole uint8

const (
	QueueGraphics QueueRole = iota
	QueuePresent
	QueueTransfer
	QueueCompute

	queueRoleCount
)

// Lock acquisition order for anything that needs more than one queue.
var canonicalQueueOrder = [queueRoleCount]QueueRole{QueueGraphics, QueuePresent, QueueTransfer, QueueCompute}

func (r QueueRole) String() string {
	switch r {
	case QueueGraphics:
		return "graphics"
	case QueuePresent:
		return "present"
	case QueueTransfer:
		return "transfer"
	case QueueCompute:
		return "compute"
	default:
		return fmt.Sprintf("QueueRole(%d)", uint8(r))
	}
}

// QueueInfo identifies one device queue as returned by vkGetDeviceQueue.
type QueueInfo struct {
	Family uint32
	Index  uint32
	Queue  vk.Queue
}

type queueIdentity struct {
	family uint32
	index  uint32
}

// QueueHandle is a queue bound to a role. Handles of roles that alias the
// same physical queue share one mutex.
type QueueHandle struct {
	Role   QueueRole
	Family uint32
	Index  uint32
	Queue  vk.Queue
	mu     *sync.Mutex
}

// QueueGate serializes access to device queues. Submissions lock the mutex of
// one queue; WaitIdle locks every distinct queue in canonical order.
type QueueGate struct {
	driver  Driver
	device  vk.Device
	handles [queueRoleCount]*QueueHandle
	// distinct mutexes, in canonical order
	idleOrder []*sync.Mutex
}

func NewQueueGate(driver Driver, device vk.Device, queues map[QueueRole]QueueInfo) (*QueueGate, error) {
	if _, ok := queues[QueueGraphics]; !ok {
		return nil, fmt.Errorf("queue gate: a graphics queue is required")
	}

	g := &QueueGate{
		driver: driver,
		device: device,
	}

	// Equivalence classes are computed once: one mutex per physical queue.
	classes := make(map[queueIdentity]*QueueHandle)
	for _, role := range canonicalQueueOrder {
		info, ok := queues[role]
		if !ok {
			continue
		}
		id := queueIdentity{family: info.Family, index: info.Index}
		mu := &sync.Mutex{}
		if first, exists := classes[id]; exists {
			if first.Queue != info.Queue {
				return nil, fmt.Errorf("queue gate: %s and %s share family %d index %d but have different queue handles", first.Role, role, info.Family, info.Index)
			}
			mu = first.mu
		} else {
			classes[id] = &QueueHandle{Role: role, Queue: info.Queue, mu: mu}
			g.idleOrder = append(g.idleOrder, mu)
		}
		g.handles[role] = &QueueHandle{
			Role:   role,
			Family: info.Family,
			Index:  info.Index,
			Queue:  info.Queue,
			mu:     mu,
		}
	}
	for role := range queues {
		if role >= queueRoleCount {
			return nil, fmt.Errorf("queue gate: unknown queue role %s", role)
		}
	}

	core.LogDebug("Queue gate: %s", g.describe())
	return g, nil
}

func (g *QueueGate) describe() string {
	parts := []string{}
	for _, role := range canonicalQueueOrder {
		if h := g.handles[role]; h != nil {
			parts = append(parts, fmt.Sprintf("%s=%d/%d", role, h.Family, h.Index))
		}
	}
	return fmt.Sprintf("%s (%d distinct)", strings.Join(parts, " "), len(g.idleOrder))
}

func (g *QueueGate) handle(op string, role QueueRole) *QueueHandle {
	if role >= queueRoleCount || g.handles[role] == nil {
		core.Invariant(op, fmt.Errorf("%w: %s", core.ErrUnknownQueueRole, role))
	}
	return g.handles[role]
}

// Has reports whether a queue is bound to role.
func (g *QueueGate) Has(role QueueRole) bool {
	return role < queueRoleCount && g.handles[role] != nil
}

// Handle returns the queue bound to role. It panics for unbound roles.
func (g *QueueGate) Handle(role QueueRole) *QueueHandle {
	return g.handle("queue handle", role)
}

// Mutex exposes the lock guarding role, so aliasing can be verified.
func (g *QueueGate) Mutex(role QueueRole) *sync.Mutex {
	return g.handle("queue mutex", role).mu
}

// DistinctQueues is the number of physical queues behind the bound roles.
func (g *QueueGate) DistinctQueues() int {
	return len(g.idleOrder)
}

// Do runs fn while holding the lock of the queue bound to role. The lock is
// released even if fn panics.
func (g *QueueGate) Do(role QueueRole, fn func(queue vk.Queue) error) error {
	h := g.handle("queue call", role)
	h.mu.Lock()
	defer h.mu.Unlock()

	return fn(h.Queue)
}

// Submit issues vkQueueSubmit on the queue bound to role.
func (g *QueueGate) Submit(role QueueRole, submits []vk.SubmitInfo, fence vk.Fence) error {
	return g.Do(role, func(queue vk.Queue) error {
		return checkResult("vkQueueSubmit", g.driver.QueueSubmit(queue, submits, fence))
	})
}

// QueueWaitIdle waits for the queue bound to role to drain.
func (g *QueueGate) QueueWaitIdle(role QueueRole) error {
	return g.Do(role, func(queue vk.Queue) error {
		return checkResult("vkQueueWaitIdle", g.driver.QueueWaitIdle(queue))
	})
}

// WaitIdle locks every distinct queue, waits for the whole device and unlocks
// in reverse order.
func (g *QueueGate) WaitIdle() error {
	for _, mu := range g.idleOrder {
		mu.Lock()
	}
	defer func() {
		for i := len(g.idleOrder) - 1; i >= 0; i-- {
			g.idleOrder[i].Unlock()
		}
	}()

	return checkResult("vkDeviceWaitIdle", g.driver.DeviceWaitIdle(g.device))
}
