package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkctx/engine/core"
)

type Semaphore struct {
	Handle vk.Semaphore
	token  *Token
}

func NewSemaphore(c *Context) (*Semaphore, error) {
	info := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}

	var handle vk.Semaphore
	if err := checkResult("vkCreateSemaphore", c.driver.CreateSemaphore(c.Device(), &info, c.AllocationCallbacks(), &handle)); err != nil {
		core.LogError("%s", err)
		return nil, err
	}

	s := &Semaphore{Handle: handle}
	s.token = Register(c, s, Destructor{
		Kind: "semaphore",
		Fn: func(c *Context) error {
			c.driver.DestroySemaphore(c.Device(), handle, c.AllocationCallbacks())
			return nil
		},
	}, Persistent)
	return s, nil
}

func (s *Semaphore) Token() *Token {
	return s.token
}

func (s *Semaphore) Destroy() {
	if s.Handle == vk.NullSemaphore {
		return
	}
	s.token.Release()
	s.Handle = vk.NullSemaphore
}
