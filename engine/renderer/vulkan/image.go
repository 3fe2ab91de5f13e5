package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkctx/engine/core"
)

// ImageOptions describes a single-sample 2D image.
type ImageOptions struct {
	Width, Height uint32
	Format        vk.Format
	Usage         vk.ImageUsageFlags
	Tiling        vk.ImageTiling
	Properties    vk.MemoryPropertyFlags
	// Create a view over the whole image.
	CreateView bool
	ViewAspect vk.ImageAspectFlags
}

type VulkanImage struct {
	Handle vk.Image
	Memory vk.DeviceMemory
	View   vk.ImageView
	Width  uint32
	Height uint32
	Format vk.Format

	token *Token
}

// NewImage creates an image with dedicated memory and, when asked, a view.
// The view, the image and the memory are released together through the
// deferred queue.
func NewImage(c *Context, opts ImageOptions) (*VulkanImage, error) {
	if opts.Width == 0 || opts.Height == 0 {
		return nil, fmt.Errorf("image extent %dx%d is empty", opts.Width, opts.Height)
	}
	dev := c.Device()
	callbacks := c.AllocationCallbacks()

	var image vk.Image
	if err := checkResult("vkCreateImage", c.driver.CreateImage(dev, &vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    opts.Format,
		Extent: vk.Extent3D{
			Width:  opts.Width,
			Height: opts.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        opts.Tiling,
		Usage:         opts.Usage,
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}, callbacks, &image)); err != nil {
		core.LogError("%s", err)
		return nil, err
	}

	requirements := c.driver.GetImageMemoryRequirements(dev, image)
	memoryType := c.FindMemoryIndex(requirements.MemoryTypeBits, opts.Properties)
	if memoryType < 0 {
		c.driver.DestroyImage(dev, image, callbacks)
		return nil, fmt.Errorf("no memory type matches image requirements 0x%x with properties 0x%x", requirements.MemoryTypeBits, opts.Properties)
	}

	var memory vk.DeviceMemory
	if err := checkResult("vkAllocateMemory", c.driver.AllocateMemory(dev, &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: uint32(memoryType),
	}, callbacks, &memory)); err != nil {
		core.LogError("%s", err)
		c.driver.DestroyImage(dev, image, callbacks)
		return nil, err
	}
	if err := checkResult("vkBindImageMemory", c.driver.BindImageMemory(dev, image, memory, 0)); err != nil {
		core.LogError("%s", err)
		c.driver.DestroyImage(dev, image, callbacks)
		c.driver.FreeMemory(dev, memory, callbacks)
		return nil, err
	}

	view := vk.NullImageView
	if opts.CreateView {
		if err := checkResult("vkCreateImageView", c.driver.CreateImageView(dev, &vk.ImageViewCreateInfo{
			SType:    vk.StructureTypeImageViewCreateInfo,
			Image:    image,
			ViewType: vk.ImageViewType2d,
			Format:   opts.Format,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask:     opts.ViewAspect,
				BaseMipLevel:   0,
				LevelCount:     1,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
		}, callbacks, &view)); err != nil {
			core.LogError("%s", err)
			c.driver.DestroyImage(dev, image, callbacks)
			c.driver.FreeMemory(dev, memory, callbacks)
			return nil, err
		}
	}

	img := &VulkanImage{
		Handle: image,
		Memory: memory,
		View:   view,
		Width:  opts.Width,
		Height: opts.Height,
		Format: opts.Format,
	}
	img.token = Register(c, img, Destructor{
		Kind: "image",
		Fn: func(c *Context) error {
			if view != vk.NullImageView {
				c.driver.DestroyImageView(c.Device(), view, c.AllocationCallbacks())
			}
			c.driver.DestroyImage(c.Device(), image, c.AllocationCallbacks())
			c.driver.FreeMemory(c.Device(), memory, c.AllocationCallbacks())
			return nil
		},
	}, Persistent)
	return img, nil
}

func (i *VulkanImage) Token() *Token {
	return i.token
}

func (i *VulkanImage) Destroy() {
	if i.Handle == vk.NullImage {
		return
	}
	i.token.Release()
	i.Handle = vk.NullImage
	i.View = vk.NullImageView
	i.Memory = vk.NullDeviceMemory
}
