package platform

import (
	"fmt"
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkctx/engine/core"
)

func init() {
	// GLFW must run on the main OS thread
	runtime.LockOSThread()
}

// Platform loads the Vulkan library through glfw and optionally owns a hidden
// window used as a presentation surface.
type Platform struct {
	Window *glfw.Window
}

func New() *Platform {
	return &Platform{}
}

// Startup initializes glfw and the Vulkan loader. When width and height are
// non-zero a hidden window is created so a surface can be made for it.
func (p *Platform) Startup(applicationName string, width, height uint32) error {
	if err := glfw.Init(); err != nil {
		core.LogError("failed to initialize glfw: %s", err)
		return err
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		return fmt.Errorf("no Vulkan loader found")
	}

	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		glfw.Terminate()
		return fmt.Errorf("GetInstanceProcAddress is nil")
	}
	vk.SetGetInstanceProcAddr(procAddr)
	if err := vk.Init(); err != nil {
		glfw.Terminate()
		core.LogError("failed to initialize vk: %s", err)
		return err
	}

	if width == 0 || height == 0 {
		core.LogDebug("Platform started without a window.")
		return nil
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	window, err := glfw.CreateWindow(int(width), int(height), applicationName, nil, nil)
	if err != nil {
		glfw.Terminate()
		core.LogError("failed to create window: %s", err)
		return err
	}
	p.Window = window
	return nil
}

// RequiredExtensionNames lists the instance extensions needed to present to
// the window. It is empty without a window.
func (p *Platform) RequiredExtensionNames() []string {
	if p.Window == nil {
		return nil
	}
	return p.Window.GetRequiredInstanceExtensions()
}

// CreateSurface creates a surface for the window.
func (p *Platform) CreateSurface(instance vk.Instance) (vk.Surface, error) {
	if p.Window == nil {
		return vk.NullSurface, fmt.Errorf("platform has no window")
	}
	surface, err := p.Window.CreateWindowSurface(instance, nil)
	if err != nil {
		return vk.NullSurface, fmt.Errorf("vulkan surface creation failed: %w", err)
	}
	return vk.SurfaceFromPointer(surface), nil
}

func (p *Platform) Shutdown() {
	if p.Window != nil {
		p.Window.Destroy()
		p.Window = nil
	}
	glfw.Terminate()
}
