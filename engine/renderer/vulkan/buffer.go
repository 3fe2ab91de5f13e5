package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkctx/engine/core"
)

// Buffer is a device buffer with its own dedicated memory allocation.
type Buffer struct {
	Handle vk.Buffer
	Memory vk.DeviceMemory
	Size   vk.DeviceSize
	Usage  vk.BufferUsageFlags

	token *Token
}

// NewBuffer creates a buffer of size bytes backed by memory with the given
// properties. The buffer is released through the deferred queue.
func NewBuffer(c *Context, size vk.DeviceSize, usage vk.BufferUsageFlags, properties vk.MemoryPropertyFlags) (*Buffer, error) {
	if size == 0 {
		return nil, fmt.Errorf("buffer size must be greater than zero")
	}
	dev := c.Device()
	callbacks := c.AllocationCallbacks()

	var buffer vk.Buffer
	if err := checkResult("vkCreateBuffer", c.driver.CreateBuffer(dev, &vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Usage:       usage,
		Size:        size,
		SharingMode: vk.SharingModeExclusive,
	}, callbacks, &buffer)); err != nil {
		core.LogError("%s", err)
		return nil, err
	}

	// The buffer has not been used by the GPU yet, so failures below can
	// destroy it right away.
	requirements := c.driver.GetBufferMemoryRequirements(dev, buffer)
	memoryType := c.FindMemoryIndex(requirements.MemoryTypeBits, properties)
	if memoryType < 0 {
		c.driver.DestroyBuffer(dev, buffer, callbacks)
		return nil, fmt.Errorf("no memory type matches buffer requirements 0x%x with properties 0x%x", requirements.MemoryTypeBits, properties)
	}

	var memory vk.DeviceMemory
	if err := checkResult("vkAllocateMemory", c.driver.AllocateMemory(dev, &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: uint32(memoryType),
	}, callbacks, &memory)); err != nil {
		core.LogError("%s", err)
		c.driver.DestroyBuffer(dev, buffer, callbacks)
		return nil, err
	}
	if err := checkResult("vkBindBufferMemory", c.driver.BindBufferMemory(dev, buffer, memory, 0)); err != nil {
		core.LogError("%s", err)
		c.driver.DestroyBuffer(dev, buffer, callbacks)
		c.driver.FreeMemory(dev, memory, callbacks)
		return nil, err
	}

	b := &Buffer{
		Handle: buffer,
		Memory: memory,
		Size:   size,
		Usage:  usage,
	}
	b.token = Register(c, b, Destructor{
		Kind: "buffer",
		Fn: func(c *Context) error {
			c.driver.DestroyBuffer(c.Device(), buffer, c.AllocationCallbacks())
			c.driver.FreeMemory(c.Device(), memory, c.AllocationCallbacks())
			return nil
		},
	}, Persistent)
	return b, nil
}

func (b *Buffer) Token() *Token {
	return b.token
}

func (b *Buffer) Destroy() {
	if b.Handle == vk.NullBuffer {
		return
	}
	b.token.Release()
	b.Handle = vk.NullBuffer
	b.Memory = vk.NullDeviceMemory
}
