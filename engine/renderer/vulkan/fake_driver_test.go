package vulkan

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkctx/engine/core"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

// fakeHandle returns a unique non-nil pointer usable as any handle type.
func fakeHandle() unsafe.Pointer {
	return unsafe.Pointer(new([64]byte))
}

// fakeDriver records every native call in order and checks that no handle is
// destroyed twice and no queue is used by two goroutines at once.
type fakeDriver struct {
	mu        sync.Mutex
	calls     []string
	results   map[string]vk.Result
	destroyed map[unsafe.Pointer]int

	memoryProperties vk.PhysicalDeviceMemoryProperties
	memoryTypeBits   uint32

	queueUsers sync.Map // vk.Queue -> *atomic.Int32
	overlap    atomic.Bool
	submits    atomic.Int64
	// called while a submit holds the queue
	onSubmit func()
	// called from DeviceWaitIdle
	onDeviceWaitIdle func()
}

func newFakeDriver() *fakeDriver {
	d := &fakeDriver{
		results:        map[string]vk.Result{},
		destroyed:      map[unsafe.Pointer]int{},
		memoryTypeBits: 0b11,
	}
	d.memoryProperties.MemoryTypeCount = 2
	d.memoryProperties.MemoryTypes[0].PropertyFlags = vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
	d.memoryProperties.MemoryTypes[1].PropertyFlags = vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
	return d
}

func (d *fakeDriver) record(format string, args ...any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, fmt.Sprintf(format, args...))
}

func (d *fakeDriver) result(op string) vk.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r, ok := d.results[op]; ok {
		return r
	}
	return vk.Success
}

func (d *fakeDriver) setResult(op string, r vk.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.results[op] = r
}

func (d *fakeDriver) destroy(op string, handle unsafe.Pointer) {
	d.mu.Lock()
	d.destroyed[handle]++
	d.mu.Unlock()
	d.record("%s", op)
}

// Calls returns a copy of the call log.
func (d *fakeDriver) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

// Count returns how many recorded calls start with prefix.
func (d *fakeDriver) Count(prefix string) int {
	n := 0
	for _, c := range d.Calls() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// Index returns the position of the first call starting with prefix, or -1.
func (d *fakeDriver) Index(prefix string) int {
	for i, c := range d.Calls() {
		if strings.HasPrefix(c, prefix) {
			return i
		}
	}
	return -1
}

func (d *fakeDriver) DoubleDestroys() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, count := range d.destroyed {
		if count > 1 {
			n++
		}
	}
	return n
}

func (d *fakeDriver) QueueSubmit(queue vk.Queue, submits []vk.SubmitInfo, fence vk.Fence) vk.Result {
	v, _ := d.queueUsers.LoadOrStore(queue, &atomic.Int32{})
	users := v.(*atomic.Int32)
	if users.Add(1) > 1 {
		d.overlap.Store(true)
	}
	defer users.Add(-1)

	if d.onSubmit != nil {
		d.onSubmit()
	}
	d.submits.Add(1)
	d.record("QueueSubmit")
	return d.result("QueueSubmit")
}

func (d *fakeDriver) QueueWaitIdle(queue vk.Queue) vk.Result {
	d.record("QueueWaitIdle")
	return d.result("QueueWaitIdle")
}

func (d *fakeDriver) DeviceWaitIdle(device vk.Device) vk.Result {
	if d.onDeviceWaitIdle != nil {
		d.onDeviceWaitIdle()
	}
	d.record("DeviceWaitIdle")
	return d.result("DeviceWaitIdle")
}

func (d *fakeDriver) CreateFence(device vk.Device, info *vk.FenceCreateInfo, allocator *vk.AllocationCallbacks, fence *vk.Fence) vk.Result {
	if r := d.result("CreateFence"); r != vk.Success {
		return r
	}
	*fence = vk.Fence(fakeHandle())
	d.record("CreateFence")
	return vk.Success
}

func (d *fakeDriver) DestroyFence(device vk.Device, fence vk.Fence, allocator *vk.AllocationCallbacks) {
	d.destroy("DestroyFence", unsafe.Pointer(fence))
}

func (d *fakeDriver) WaitForFences(device vk.Device, fences []vk.Fence, waitAll bool, timeout uint64) vk.Result {
	d.record("WaitForFences")
	return d.result("WaitForFences")
}

func (d *fakeDriver) ResetFences(device vk.Device, fences []vk.Fence) vk.Result {
	d.record("ResetFences")
	return d.result("ResetFences")
}

func (d *fakeDriver) CreateSemaphore(device vk.Device, info *vk.SemaphoreCreateInfo, allocator *vk.AllocationCallbacks, semaphore *vk.Semaphore) vk.Result {
	if r := d.result("CreateSemaphore"); r != vk.Success {
		return r
	}
	*semaphore = vk.Semaphore(fakeHandle())
	d.record("CreateSemaphore")
	return vk.Success
}

func (d *fakeDriver) DestroySemaphore(device vk.Device, semaphore vk.Semaphore, allocator *vk.AllocationCallbacks) {
	d.destroy("DestroySemaphore", unsafe.Pointer(semaphore))
}

func (d *fakeDriver) CreateCommandPool(device vk.Device, info *vk.CommandPoolCreateInfo, allocator *vk.AllocationCallbacks, pool *vk.CommandPool) vk.Result {
	if r := d.result("CreateCommandPool"); r != vk.Success {
		return r
	}
	*pool = vk.CommandPool(fakeHandle())
	d.record("CreateCommandPool family=%d", info.QueueFamilyIndex)
	return vk.Success
}

func (d *fakeDriver) DestroyCommandPool(device vk.Device, pool vk.CommandPool, allocator *vk.AllocationCallbacks) {
	d.destroy("DestroyCommandPool", unsafe.Pointer(pool))
}

func (d *fakeDriver) AllocateCommandBuffers(device vk.Device, info *vk.CommandBufferAllocateInfo, buffers []vk.CommandBuffer) vk.Result {
	if r := d.result("AllocateCommandBuffers"); r != vk.Success {
		return r
	}
	for i := range buffers {
		buffers[i] = vk.CommandBuffer(fakeHandle())
	}
	d.record("AllocateCommandBuffers")
	return vk.Success
}

func (d *fakeDriver) FreeCommandBuffers(device vk.Device, pool vk.CommandPool, buffers []vk.CommandBuffer) {
	for _, b := range buffers {
		d.destroy("FreeCommandBuffers", unsafe.Pointer(b))
	}
}

func (d *fakeDriver) BeginCommandBuffer(buffer vk.CommandBuffer, info *vk.CommandBufferBeginInfo) vk.Result {
	d.record("BeginCommandBuffer")
	return d.result("BeginCommandBuffer")
}

func (d *fakeDriver) EndCommandBuffer(buffer vk.CommandBuffer) vk.Result {
	d.record("EndCommandBuffer")
	return d.result("EndCommandBuffer")
}

func (d *fakeDriver) CreateBuffer(device vk.Device, info *vk.BufferCreateInfo, allocator *vk.AllocationCallbacks, buffer *vk.Buffer) vk.Result {
	if r := d.result("CreateBuffer"); r != vk.Success {
		return r
	}
	*buffer = vk.Buffer(fakeHandle())
	d.record("CreateBuffer size=%d", info.Size)
	return vk.Success
}

func (d *fakeDriver) DestroyBuffer(device vk.Device, buffer vk.Buffer, allocator *vk.AllocationCallbacks) {
	d.destroy("DestroyBuffer", unsafe.Pointer(buffer))
}

func (d *fakeDriver) GetBufferMemoryRequirements(device vk.Device, buffer vk.Buffer) vk.MemoryRequirements {
	return vk.MemoryRequirements{Size: 4096, Alignment: 256, MemoryTypeBits: d.memoryTypeBits}
}

func (d *fakeDriver) GetPhysicalDeviceMemoryProperties(physicalDevice vk.PhysicalDevice) vk.PhysicalDeviceMemoryProperties {
	d.record("GetPhysicalDeviceMemoryProperties")
	return d.memoryProperties
}

func (d *fakeDriver) AllocateMemory(device vk.Device, info *vk.MemoryAllocateInfo, allocator *vk.AllocationCallbacks, memory *vk.DeviceMemory) vk.Result {
	if r := d.result("AllocateMemory"); r != vk.Success {
		return r
	}
	*memory = vk.DeviceMemory(fakeHandle())
	d.record("AllocateMemory type=%d", info.MemoryTypeIndex)
	return vk.Success
}

func (d *fakeDriver) FreeMemory(device vk.Device, memory vk.DeviceMemory, allocator *vk.AllocationCallbacks) {
	d.destroy("FreeMemory", unsafe.Pointer(memory))
}

func (d *fakeDriver) BindBufferMemory(device vk.Device, buffer vk.Buffer, memory vk.DeviceMemory, offset vk.DeviceSize) vk.Result {
	d.record("BindBufferMemory")
	return d.result("BindBufferMemory")
}

func (d *fakeDriver) CreateImage(device vk.Device, info *vk.ImageCreateInfo, allocator *vk.AllocationCallbacks, image *vk.Image) vk.Result {
	if r := d.result("CreateImage"); r != vk.Success {
		return r
	}
	*image = vk.Image(fakeHandle())
	d.record("CreateImage %dx%d", info.Extent.Width, info.Extent.Height)
	return vk.Success
}

func (d *fakeDriver) DestroyImage(device vk.Device, image vk.Image, allocator *vk.AllocationCallbacks) {
	d.destroy("DestroyImage", unsafe.Pointer(image))
}

func (d *fakeDriver) GetImageMemoryRequirements(device vk.Device, image vk.Image) vk.MemoryRequirements {
	return vk.MemoryRequirements{Size: 1 << 16, Alignment: 1024, MemoryTypeBits: d.memoryTypeBits}
}

func (d *fakeDriver) BindImageMemory(device vk.Device, image vk.Image, memory vk.DeviceMemory, offset vk.DeviceSize) vk.Result {
	d.record("BindImageMemory")
	return d.result("BindImageMemory")
}

func (d *fakeDriver) CreateImageView(device vk.Device, info *vk.ImageViewCreateInfo, allocator *vk.AllocationCallbacks, view *vk.ImageView) vk.Result {
	if r := d.result("CreateImageView"); r != vk.Success {
		return r
	}
	*view = vk.ImageView(fakeHandle())
	d.record("CreateImageView")
	return vk.Success
}

func (d *fakeDriver) DestroyImageView(device vk.Device, view vk.ImageView, allocator *vk.AllocationCallbacks) {
	d.destroy("DestroyImageView", unsafe.Pointer(view))
}

func (d *fakeDriver) DestroyDevice(device vk.Device, allocator *vk.AllocationCallbacks) {
	d.destroy("DestroyDevice", unsafe.Pointer(device))
}

func (d *fakeDriver) DestroySurface(instance vk.Instance, surface vk.Surface, allocator *vk.AllocationCallbacks) {
	d.destroy("DestroySurface", unsafe.Pointer(surface))
}

func (d *fakeDriver) DestroyDebugReportCallback(instance vk.Instance, callback vk.DebugReportCallback, allocator *vk.AllocationCallbacks) {
	d.destroy("DestroyDebugReportCallback", unsafe.Pointer(callback))
}

func (d *fakeDriver) DestroyInstance(instance vk.Instance, allocator *vk.AllocationCallbacks) {
	d.destroy("DestroyInstance", unsafe.Pointer(instance))
}

type fakeAllocator struct {
	driver *fakeDriver
}

func (a *fakeAllocator) Destroy() error {
	a.driver.record("DestroyAllocator")
	return nil
}

// testQueues binds graphics and present to the same queue, and transfer and
// compute to queues of their own.
func testQueues() map[QueueRole]QueueInfo {
	shared := vk.Queue(fakeHandle())
	return map[QueueRole]QueueInfo{
		QueueGraphics: {Family: 0, Index: 0, Queue: shared},
		QueuePresent:  {Family: 0, Index: 0, Queue: shared},
		QueueTransfer: {Family: 1, Index: 0, Queue: vk.Queue(fakeHandle())},
		QueueCompute:  {Family: 2, Index: 0, Queue: vk.Queue(fakeHandle())},
	}
}

func testHandles(d *fakeDriver) Handles {
	return Handles{
		Instance:       vk.Instance(fakeHandle()),
		DebugCallback:  vk.DebugReportCallback(fakeHandle()),
		Surface:        vk.Surface(fakeHandle()),
		PhysicalDevice: vk.PhysicalDevice(fakeHandle()),
		Device:         vk.Device(fakeHandle()),
		Allocator:      &fakeAllocator{driver: d},
		Queues:         testQueues(),
	}
}

func testContextConfig() core.ContextConfig {
	cfg := core.DefaultContextConfig()
	cfg.SlowDestructor = core.Duration{}
	// Collection timing is not deterministic; tests that need it opt in.
	cfg.ReclaimUnreachable = false
	return cfg
}

// newTestContext creates a context over a fake driver. It is closed when the
// test ends unless the test closed it already.
func newTestContext(t *testing.T, configure func(*core.ContextConfig), opts ...Option) (*Context, *fakeDriver) {
	t.Helper()
	d := newFakeDriver()
	cfg := testContextConfig()
	if configure != nil {
		configure(&cfg)
	}
	c, err := NewContext(testHandles(d), cfg, append([]Option{WithDriver(d)}, opts...)...)
	if err != nil {
		t.Fatalf("NewContext: %s", err)
	}
	t.Cleanup(c.Close)
	return c, d
}

// testResource stands in for a wrapper object owning a native handle.
type testResource struct {
	name string
	_    [64]byte
}

// countingDestructor increments n and records the call on d.
func countingDestructor(d *fakeDriver, kind string, n *atomic.Int32) Destructor {
	return Destructor{
		Kind: kind,
		Fn: func(c *Context) error {
			n.Add(1)
			d.record("destructor %s", kind)
			return nil
		},
	}
}

// invariantError recovers the panic raised by fn.
func invariantError(fn func()) (err *core.InvariantError) {
	defer func() {
		if r := recover(); r != nil {
			if ie, ok := r.(*core.InvariantError); ok {
				err = ie
				return
			}
			panic(r)
		}
	}()
	fn()
	return nil
}
