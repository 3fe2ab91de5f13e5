package vulkan

import (
	"fmt"
	"math"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkctx/engine/core"
)

type CommandBufferState int

const (
	COMMAND_BUFFER_STATE_READY CommandBufferState = iota
	COMMAND_BUFFER_STATE_RECORDING
	COMMAND_BUFFER_STATE_IN_RENDER_PASS
	COMMAND_BUFFER_STATE_RECORDING_ENDED
	COMMAND_BUFFER_STATE_SUBMITTED
	COMMAND_BUFFER_STATE_NOT_ALLOCATED
)

// CommandPool allocates command buffers for the queue family bound to Role.
type CommandPool struct {
	Handle vk.CommandPool
	Role   QueueRole

	ctx   *Context
	token *Token
}

func NewCommandPool(c *Context, role QueueRole, resettable bool) (*CommandPool, error) {
	queue := c.gate.Handle(role)

	info := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: queue.Family,
	}
	if resettable {
		info.Flags = vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit)
	}

	var handle vk.CommandPool
	if err := checkResult("vkCreateCommandPool", c.driver.CreateCommandPool(c.Device(), &info, c.AllocationCallbacks(), &handle)); err != nil {
		core.LogError("%s", err)
		return nil, err
	}

	pool := &CommandPool{
		Handle: handle,
		Role:   role,
		ctx:    c,
	}
	pool.token = Register(c, pool, Destructor{
		Kind: "command pool",
		Fn: func(c *Context) error {
			c.driver.DestroyCommandPool(c.Device(), handle, c.AllocationCallbacks())
			return nil
		},
	}, Persistent)
	core.LogDebug("Command pool created for %s queue family %d", role, queue.Family)
	return pool, nil
}

func (p *CommandPool) Token() *Token {
	return p.token
}

// Destroy releases the pool. Command buffers still allocated from it are
// freed along with it.
func (p *CommandPool) Destroy() {
	if p.Handle == vk.NullCommandPool {
		return
	}
	p.token.Release()
	p.Handle = vk.NullCommandPool
}

type CommandBuffer struct {
	Handle vk.CommandBuffer
	// Command buffer state.
	State CommandBufferState

	pool  *CommandPool
	token *Token
}

// Allocate creates one command buffer. Scoped buffers are freed as soon as
// they are released, so they may only be released after a fence wait.
func (p *CommandPool) Allocate(isPrimary bool, mode Mode) (*CommandBuffer, error) {
	c := p.ctx
	cb := &CommandBuffer{
		State: COMMAND_BUFFER_STATE_NOT_ALLOCATED,
		pool:  p,
	}

	level := vk.CommandBufferLevelSecondary
	if isPrimary {
		level = vk.CommandBufferLevelPrimary
	}

	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        p.Handle,
		CommandBufferCount: 1,
		Level:              level,
	}

	buffers := make([]vk.CommandBuffer, 1)
	if err := checkResult("vkAllocateCommandBuffers", c.driver.AllocateCommandBuffers(c.Device(), &allocateInfo, buffers)); err != nil {
		core.LogError("%s", err)
		return nil, err
	}
	cb.Handle = buffers[0]
	cb.State = COMMAND_BUFFER_STATE_READY
	cb.token = Register(c, cb, commandBufferDestructor(p.Handle, p.token, cb.Handle), mode)
	return cb, nil
}

func commandBufferDestructor(pool vk.CommandPool, poolToken *Token, handle vk.CommandBuffer) Destructor {
	return Destructor{
		Kind: "command buffer",
		Fn: func(c *Context) error {
			// Destroying the pool already freed its buffers.
			if poolToken.State() == TokenDestroyed {
				return nil
			}
			c.driver.FreeCommandBuffers(c.Device(), pool, []vk.CommandBuffer{handle})
			return nil
		},
	}
}

func (cb *CommandBuffer) Token() *Token {
	return cb.token
}

// Free releases the command buffer according to its mode.
func (cb *CommandBuffer) Free() {
	if cb.Handle == nil {
		return
	}
	cb.token.Release()
	cb.Handle = nil
	cb.State = COMMAND_BUFFER_STATE_NOT_ALLOCATED
}

func (cb *CommandBuffer) Begin(isSingleUse, isRenderpassContinue, isSimultaneousUse bool) error {
	beginInfo := &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
	}
	if isSingleUse {
		beginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	if isRenderpassContinue {
		beginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageRenderPassContinueBit)
	}
	if isSimultaneousUse {
		beginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageSimultaneousUseBit)
	}

	if err := checkResult("vkBeginCommandBuffer", cb.pool.ctx.driver.BeginCommandBuffer(cb.Handle, beginInfo)); err != nil {
		core.LogError("%s", err)
		return err
	}
	cb.State = COMMAND_BUFFER_STATE_RECORDING
	return nil
}

func (cb *CommandBuffer) End() error {
	if err := checkResult("vkEndCommandBuffer", cb.pool.ctx.driver.EndCommandBuffer(cb.Handle)); err != nil {
		core.LogError("%s", err)
		return err
	}
	cb.State = COMMAND_BUFFER_STATE_RECORDING_ENDED
	return nil
}

func (cb *CommandBuffer) UpdateSubmitted() {
	cb.State = COMMAND_BUFFER_STATE_SUBMITTED
}

func (cb *CommandBuffer) Reset() {
	cb.State = COMMAND_BUFFER_STATE_READY
}

// AllocateAndBeginSingleUse allocates a scoped primary command buffer and
// begins recording to it.
func AllocateAndBeginSingleUse(pool *CommandPool) (*CommandBuffer, error) {
	cb, err := pool.Allocate(true, Scoped)
	if err != nil {
		return nil, err
	}
	if err := cb.Begin(true, false, false); err != nil {
		cb.Free()
		return nil, err
	}
	return cb, nil
}

// EndSingleUse ends recording, submits to the pool's queue and waits on a
// fence for the work to finish. The command buffer and the fence are then
// freed without waiting for the frame window.
func (cb *CommandBuffer) EndSingleUse() error {
	c := cb.pool.ctx

	// Nothing reaches the GPU until the submit succeeds, so failures before
	// that can free immediately.
	if err := cb.End(); err != nil {
		cb.Free()
		return err
	}
	fence, err := newFence(c, false, Scoped)
	if err != nil {
		cb.Free()
		return err
	}

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{cb.Handle},
	}
	if err := c.Submit(cb.pool.Role, []vk.SubmitInfo{submitInfo}, fence.Handle); err != nil {
		core.LogError("%s", err)
		cb.Free()
		fence.Destroy()
		return err
	}
	cb.UpdateSubmitted()

	signaled, err := fence.Wait(math.MaxUint64)
	if err != nil || !signaled {
		// Completion is unknown, so let both objects age out like any
		// persistent resource.
		c.DisposeDeferred(cb.token)
		c.DisposeDeferred(fence.token)
		cb.Handle = nil
		fence.Handle = vk.NullFence
		if err == nil {
			err = fmt.Errorf("single use submission on %s queue did not complete", cb.pool.Role)
		}
		return err
	}

	// The fence proves the GPU is done with both.
	cb.Free()
	fence.Destroy()
	return nil
}
