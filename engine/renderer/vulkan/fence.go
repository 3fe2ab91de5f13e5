package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkctx/engine/core"
)

type Fence struct {
	Handle     vk.Fence
	IsSignaled bool

	ctx   *Context
	token *Token
}

// NewFence creates a fence released through the deferred queue.
func NewFence(c *Context, createSignaled bool) (*Fence, error) {
	return newFence(c, createSignaled, Persistent)
}

func newFence(c *Context, createSignaled bool, mode Mode) (*Fence, error) {
	fence := &Fence{
		// Make sure to signal the fence if required.
		IsSignaled: createSignaled,
		ctx:        c,
	}

	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if fence.IsSignaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}

	var handle vk.Fence
	if err := checkResult("vkCreateFence", c.driver.CreateFence(c.Device(), &fenceCreateInfo, c.AllocationCallbacks(), &handle)); err != nil {
		core.LogError("%s", err)
		return nil, err
	}
	fence.Handle = handle
	fence.token = Register(c, fence, fenceDestructor(handle), mode)
	return fence, nil
}

func fenceDestructor(handle vk.Fence) Destructor {
	return Destructor{
		Kind: "fence",
		Fn: func(c *Context) error {
			c.driver.DestroyFence(c.Device(), handle, c.AllocationCallbacks())
			return nil
		},
	}
}

func (f *Fence) Token() *Token {
	return f.token
}

// Destroy releases the fence. The native handle outlives this call until the
// context decides the GPU cannot be waiting on it anymore.
func (f *Fence) Destroy() {
	if f.Handle == vk.NullFence {
		return
	}
	f.token.Release()
	f.Handle = vk.NullFence
	f.IsSignaled = false
}

// Wait blocks until the fence is signaled or timeoutNs elapses. It reports
// false on timeout; any other failure is returned as a *VulkanError.
func (f *Fence) Wait(timeoutNs uint64) (bool, error) {
	if f.IsSignaled {
		// If already signaled, do not wait.
		return true, nil
	}

	result := f.ctx.driver.WaitForFences(f.ctx.Device(), []vk.Fence{f.Handle}, true, timeoutNs)
	switch result {
	case vk.Success:
		f.IsSignaled = true
		return true, nil
	case vk.Timeout:
		core.LogWarn("vk_fence_wait - Timed out")
		return false, nil
	default:
		err := checkResult("vkWaitForFences", result)
		core.LogError("%s", err)
		return false, err
	}
}

func (f *Fence) Reset() error {
	if !f.IsSignaled {
		return nil
	}
	if err := checkResult("vkResetFences", f.ctx.driver.ResetFences(f.ctx.Device(), []vk.Fence{f.Handle})); err != nil {
		core.LogError("%s", err)
		return err
	}
	f.IsSignaled = false
	return nil
}
