package vulkan

import (
	vk "github.com/goki/vulkan"
)

// Driver is the set of native Vulkan entry points the context and the
// resource wrappers call. NewDriver returns the real implementation; tests
// substitute a recorder.
type Driver interface {
	QueueSubmit(queue vk.Queue, submits []vk.SubmitInfo, fence vk.Fence) vk.Result
	QueueWaitIdle(queue vk.Queue) vk.Result
	DeviceWaitIdle(device vk.Device) vk.Result

	CreateFence(device vk.Device, info *vk.FenceCreateInfo, allocator *vk.AllocationCallbacks, fence *vk.Fence) vk.Result
	DestroyFence(device vk.Device, fence vk.Fence, allocator *vk.AllocationCallbacks)
	WaitForFences(device vk.Device, fences []vk.Fence, waitAll bool, timeout uint64) vk.Result
	ResetFences(device vk.Device, fences []vk.Fence) vk.Result

	CreateSemaphore(device vk.Device, info *vk.SemaphoreCreateInfo, allocator *vk.AllocationCallbacks, semaphore *vk.Semaphore) vk.Result
	DestroySemaphore(device vk.Device, semaphore vk.Semaphore, allocator *vk.AllocationCallbacks)

	CreateCommandPool(device vk.Device, info *vk.CommandPoolCreateInfo, allocator *vk.AllocationCallbacks, pool *vk.CommandPool) vk.Result
	DestroyCommandPool(device vk.Device, pool vk.CommandPool, allocator *vk.AllocationCallbacks)
	AllocateCommandBuffers(device vk.Device, info *vk.CommandBufferAllocateInfo, buffers []vk.CommandBuffer) vk.Result
	FreeCommandBuffers(device vk.Device, pool vk.CommandPool, buffers []vk.CommandBuffer)
	BeginCommandBuffer(buffer vk.CommandBuffer, info *vk.CommandBufferBeginInfo) vk.Result
	EndCommandBuffer(buffer vk.CommandBuffer) vk.Result

	CreateBuffer(device vk.Device, info *vk.BufferCreateInfo, allocator *vk.AllocationCallbacks, buffer *vk.Buffer) vk.Result
	DestroyBuffer(device vk.Device, buffer vk.Buffer, allocator *vk.AllocationCallbacks)
	GetBufferMemoryRequirements(device vk.Device, buffer vk.Buffer) vk.MemoryRequirements
	GetPhysicalDeviceMemoryProperties(physicalDevice vk.PhysicalDevice) vk.PhysicalDeviceMemoryProperties
	AllocateMemory(device vk.Device, info *vk.MemoryAllocateInfo, allocator *vk.AllocationCallbacks, memory *vk.DeviceMemory) vk.Result
	FreeMemory(device vk.Device, memory vk.DeviceMemory, allocator *vk.AllocationCallbacks)
	BindBufferMemory(device vk.Device, buffer vk.Buffer, memory vk.DeviceMemory, offset vk.DeviceSize) vk.Result

	CreateImage(device vk.Device, info *vk.ImageCreateInfo, allocator *vk.AllocationCallbacks, image *vk.Image) vk.Result
	DestroyImage(device vk.Device, image vk.Image, allocator *vk.AllocationCallbacks)
	GetImageMemoryRequirements(device vk.Device, image vk.Image) vk.MemoryRequirements
	BindImageMemory(device vk.Device, image vk.Image, memory vk.DeviceMemory, offset vk.DeviceSize) vk.Result
	CreateImageView(device vk.Device, info *vk.ImageViewCreateInfo, allocator *vk.AllocationCallbacks, view *vk.ImageView) vk.Result
	DestroyImageView(device vk.Device, view vk.ImageView, allocator *vk.AllocationCallbacks)

	DestroyDevice(device vk.Device, allocator *vk.AllocationCallbacks)
	DestroySurface(instance vk.Instance, surface vk.Surface, allocator *vk.AllocationCallbacks)
	DestroyDebugReportCallback(instance vk.Instance, callback vk.DebugReportCallback, allocator *vk.AllocationCallbacks)
	DestroyInstance(instance vk.Instance, allocator *vk.AllocationCallbacks)
}

type vulkanDriver struct{}

// NewDriver returns the Driver backed by the loaded Vulkan library.
func NewDriver() Driver {
	return vulkanDriver{}
}

func (vulkanDriver) QueueSubmit(queue vk.Queue, submits []vk.SubmitInfo, fence vk.Fence) vk.Result {
	return vk.QueueSubmit(queue, uint32(len(submits)), submits, fence)
}

func (vulkanDriver) QueueWaitIdle(queue vk.Queue) vk.Result {
	return vk.QueueWaitIdle(queue)
}

func (vulkanDriver) DeviceWaitIdle(device vk.Device) vk.Result {
	return vk.DeviceWaitIdle(device)
}

func (vulkanDriver) CreateFence(device vk.Device, info *vk.FenceCreateInfo, allocator *vk.AllocationCallbacks, fence *vk.Fence) vk.Result {
	return vk.CreateFence(device, info, allocator, fence)
}

func (vulkanDriver) DestroyFence(device vk.Device, fence vk.Fence, allocator *vk.AllocationCallbacks) {
	vk.DestroyFence(device, fence, allocator)
}

func (vulkanDriver) WaitForFences(device vk.Device, fences []vk.Fence, waitAll bool, timeout uint64) vk.Result {
	all := vk.Bool32(vk.False)
	if waitAll {
		all = vk.True
	}
	return vk.WaitForFences(device, uint32(len(fences)), fences, all, timeout)
}

func (vulkanDriver) ResetFences(device vk.Device, fences []vk.Fence) vk.Result {
	return vk.ResetFences(device, uint32(len(fences)), fences)
}

func (vulkanDriver) CreateSemaphore(device vk.Device, info *vk.SemaphoreCreateInfo, allocator *vk.AllocationCallbacks, semaphore *vk.Semaphore) vk.Result {
	return vk.CreateSemaphore(device, info, allocator, semaphore)
}

func (vulkanDriver) DestroySemaphore(device vk.Device, semaphore vk.Semaphore, allocator *vk.AllocationCallbacks) {
	vk.DestroySemaphore(device, semaphore, allocator)
}

func (vulkanDriver) CreateCommandPool(device vk.Device, info *vk.CommandPoolCreateInfo, allocator *vk.AllocationCallbacks, pool *vk.CommandPool) vk.Result {
	return vk.CreateCommandPool(device, info, allocator, pool)
}

func (vulkanDriver) DestroyCommandPool(device vk.Device, pool vk.CommandPool, allocator *vk.AllocationCallbacks) {
	vk.DestroyCommandPool(device, pool, allocator)
}

func (vulkanDriver) AllocateCommandBuffers(device vk.Device, info *vk.CommandBufferAllocateInfo, buffers []vk.CommandBuffer) vk.Result {
	return vk.AllocateCommandBuffers(device, info, buffers)
}

func (vulkanDriver) FreeCommandBuffers(device vk.Device, pool vk.CommandPool, buffers []vk.CommandBuffer) {
	vk.FreeCommandBuffers(device, pool, uint32(len(buffers)), buffers)
}

func (vulkanDriver) BeginCommandBuffer(buffer vk.CommandBuffer, info *vk.CommandBufferBeginInfo) vk.Result {
	return vk.BeginCommandBuffer(buffer, info)
}

func (vulkanDriver) EndCommandBuffer(buffer vk.CommandBuffer) vk.Result {
	return vk.EndCommandBuffer(buffer)
}

func (vulkanDriver) CreateBuffer(device vk.Device, info *vk.BufferCreateInfo, allocator *vk.AllocationCallbacks, buffer *vk.Buffer) vk.Result {
	return vk.CreateBuffer(device, info, allocator, buffer)
}

func (vulkanDriver) DestroyBuffer(device vk.Device, buffer vk.Buffer, allocator *vk.AllocationCallbacks) {
	vk.DestroyBuffer(device, buffer, allocator)
}

func (vulkanDriver) GetBufferMemoryRequirements(device vk.Device, buffer vk.Buffer) vk.MemoryRequirements {
	var memReqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(device, buffer, &memReqs)
	memReqs.Deref()
	return memReqs
}

func (vulkanDriver) GetPhysicalDeviceMemoryProperties(physicalDevice vk.PhysicalDevice) vk.PhysicalDeviceMemoryProperties {
	var memoryProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(physicalDevice, &memoryProperties)
	memoryProperties.Deref()
	for i := uint32(0); i < memoryProperties.MemoryTypeCount; i++ {
		memoryProperties.MemoryTypes[i].Deref()
	}
	for i := uint32(0); i < memoryProperties.MemoryHeapCount; i++ {
		memoryProperties.MemoryHeaps[i].Deref()
	}
	return memoryProperties
}

func (vulkanDriver) AllocateMemory(device vk.Device, info *vk.MemoryAllocateInfo, allocator *vk.AllocationCallbacks, memory *vk.DeviceMemory) vk.Result {
	return vk.AllocateMemory(device, info, allocator, memory)
}

func (vulkanDriver) FreeMemory(device vk.Device, memory vk.DeviceMemory, allocator *vk.AllocationCallbacks) {
	vk.FreeMemory(device, memory, allocator)
}

func (vulkanDriver) BindBufferMemory(device vk.Device, buffer vk.Buffer, memory vk.DeviceMemory, offset vk.DeviceSize) vk.Result {
	return vk.BindBufferMemory(device, buffer, memory, offset)
}

func (vulkanDriver) CreateImage(device vk.Device, info *vk.ImageCreateInfo, allocator *vk.AllocationCallbacks, image *vk.Image) vk.Result {
	return vk.CreateImage(device, info, allocator, image)
}

func (vulkanDriver) DestroyImage(device vk.Device, image vk.Image, allocator *vk.AllocationCallbacks) {
	vk.DestroyImage(device, image, allocator)
}

func (vulkanDriver) GetImageMemoryRequirements(device vk.Device, image vk.Image) vk.MemoryRequirements {
	var memReqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(device, image, &memReqs)
	memReqs.Deref()
	return memReqs
}

func (vulkanDriver) BindImageMemory(device vk.Device, image vk.Image, memory vk.DeviceMemory, offset vk.DeviceSize) vk.Result {
	return vk.BindImageMemory(device, image, memory, offset)
}

func (vulkanDriver) CreateImageView(device vk.Device, info *vk.ImageViewCreateInfo, allocator *vk.AllocationCallbacks, view *vk.ImageView) vk.Result {
	return vk.CreateImageView(device, info, allocator, view)
}

func (vulkanDriver) DestroyImageView(device vk.Device, view vk.ImageView, allocator *vk.AllocationCallbacks) {
	vk.DestroyImageView(device, view, allocator)
}

func (vulkanDriver) DestroyDevice(device vk.Device, allocator *vk.AllocationCallbacks) {
	vk.DestroyDevice(device, allocator)
}

func (vulkanDriver) DestroySurface(instance vk.Instance, surface vk.Surface, allocator *vk.AllocationCallbacks) {
	vk.DestroySurface(instance, surface, allocator)
}

func (vulkanDriver) DestroyDebugReportCallback(instance vk.Instance, callback vk.DebugReportCallback, allocator *vk.AllocationCallbacks) {
	vk.DestroyDebugReportCallback(instance, callback, allocator)
}

func (vulkanDriver) DestroyInstance(instance vk.Instance, allocator *vk.AllocationCallbacks) {
	vk.DestroyInstance(instance, allocator)
}
