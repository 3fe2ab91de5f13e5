package vulkan

import (
	"fmt"
	"runtime"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkctx/engine/core"
)

const portabilitySubsetExtensionName = "VK_KHR_portability_subset"

// BootstrapConfig describes the instance and device to create.
type BootstrapConfig struct {
	ApplicationName string
	// Enables VK_LAYER_KHRONOS_validation and a debug report callback.
	Validation bool
	// Extra instance extensions, e.g. the ones a window system needs.
	InstanceExtensions []string
	// CreateSurface is optional. With a surface, a present queue is selected
	// and the swapchain extension enabled.
	CreateSurface func(instance vk.Instance) (vk.Surface, error)
	// Skip devices that are not discrete GPUs.
	RequireDiscreteGPU bool
}

// Bootstrap creates the instance, optional debug callback and surface, picks a
// physical device and creates a logical device with one queue per distinct
// family. The returned Handles are meant to be passed to NewContext, which
// then owns them.
func Bootstrap(cfg BootstrapConfig) (h Handles, err error) {
	// Undo partial work in reverse order on failure.
	defer func() {
		if err == nil {
			return
		}
		if h.Device != nil {
			vk.DestroyDevice(h.Device, nil)
		}
		if h.Surface != vk.NullSurface {
			vk.DestroySurface(h.Instance, h.Surface, nil)
		}
		if h.DebugCallback != vk.NullDebugReportCallback {
			vk.DestroyDebugReportCallback(h.Instance, h.DebugCallback, nil)
		}
		if h.Instance != nil {
			vk.DestroyInstance(h.Instance, nil)
		}
		h = Handles{}
	}()

	if h.Instance, err = createInstance(cfg); err != nil {
		return h, err
	}
	core.LogInfo("Vulkan Instance created.")

	if cfg.Validation {
		core.LogDebug("Creating Vulkan debugger...")
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		var dbg vk.DebugReportCallback
		if err = checkResult("vkCreateDebugReportCallbackEXT", vk.CreateDebugReportCallback(h.Instance, &debugCreateInfo, nil, &dbg)); err != nil {
			return h, err
		}
		h.DebugCallback = dbg
		core.LogDebug("Vulkan debugger created.")
	}

	if cfg.CreateSurface != nil {
		core.LogDebug("Creating Vulkan surface...")
		if h.Surface, err = cfg.CreateSurface(h.Instance); err != nil {
			return h, err
		}
		core.LogDebug("Vulkan surface created.")
	}

	physicalDevice, families, err := selectPhysicalDevice(h.Instance, h.Surface, cfg.RequireDiscreteGPU)
	if err != nil {
		return h, err
	}
	h.PhysicalDevice = physicalDevice

	if h.Device, err = createDevice(physicalDevice, families, h.Surface != vk.NullSurface); err != nil {
		return h, err
	}

	h.Queues = make(map[QueueRole]QueueInfo)
	for _, role := range canonicalQueueOrder {
		family, ok := families.family(role)
		if !ok {
			continue
		}
		var queue vk.Queue
		vk.GetDeviceQueue(h.Device, family, 0, &queue)
		h.Queues[role] = QueueInfo{Family: family, Index: 0, Queue: queue}
	}
	core.LogInfo("Queues obtained.")
	return h, nil
}

func createInstance(cfg BootstrapConfig) (vk.Instance, error) {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 1, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(cfg.ApplicationName),
		PEngineName:        VulkanSafeString("vkctx"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	extensions := append([]string{}, cfg.InstanceExtensions...)
	if runtime.GOOS == "darwin" {
		extensions = append(extensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}

	layers := []string{}
	if cfg.Validation {
		extensions = append(extensions, vk.ExtDebugReportExtensionName)
		layers = append(layers, "VK_LAYER_KHRONOS_validation")
		if err := requireLayers(layers); err != nil {
			return nil, err
		}
		core.LogInfo("All required validation layers are present.")
	}
	core.LogDebug("Required extensions: %v", extensions)

	createInfo.EnabledExtensionCount = uint32(len(extensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(extensions)
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	var instance vk.Instance
	if err := checkResult("vkCreateInstance", vk.CreateInstance(&createInfo, nil, &instance)); err != nil {
		core.LogError("%s", err)
		return nil, err
	}
	if err := vk.InitInstance(instance); err != nil {
		vk.DestroyInstance(instance, nil)
		core.LogError("%s", err)
		return nil, err
	}
	return instance, nil
}

func requireLayers(required []string) error {
	var count uint32
	if err := checkResult("vkEnumerateInstanceLayerProperties", vk.EnumerateInstanceLayerProperties(&count, nil)); err != nil {
		return err
	}
	available := make([]vk.LayerProperties, count)
	if err := checkResult("vkEnumerateInstanceLayerProperties", vk.EnumerateInstanceLayerProperties(&count, available)); err != nil {
		return err
	}

	names := make(map[string]bool, count)
	for i := range available {
		available[i].Deref()
		names[vulkanName(available[i].LayerName[:])] = true
	}
	for _, layer := range required {
		if !names[layer] {
			return fmt.Errorf("required validation layer is missing: %s", layer)
		}
	}
	return nil
}

// queueFamilies records the family chosen for each role; -1 means none.
type queueFamilies struct {
	graphics int32
	present  int32
	transfer int32
	compute  int32
}

func (q queueFamilies) family(role QueueRole) (uint32, bool) {
	var idx int32
	switch role {
	case QueueGraphics:
		idx = q.graphics
	case QueuePresent:
		idx = q.present
	case QueueTransfer:
		idx = q.transfer
	case QueueCompute:
		idx = q.compute
	default:
		return 0, false
	}
	return uint32(idx), idx >= 0
}

// classifyQueueFamilies picks a family per role. supportsPresent is nil when
// there is no surface.
func classifyQueueFamilies(families []vk.QueueFamilyProperties, supportsPresent func(family uint32) bool) queueFamilies {
	out := queueFamilies{graphics: -1, present: -1, transfer: -1, compute: -1}

	minTransferScore := 255
	dedicatedCompute := int32(-1)
	for i := range families {
		flags := vk.QueueFlagBits(families[i].QueueFlags)
		graphics := flags&vk.QueueGraphicsBit != 0
		compute := flags&vk.QueueComputeBit != 0

		score := 0
		if graphics {
			if out.graphics < 0 {
				out.graphics = int32(i)
			}
			score++
		}
		if compute {
			if out.compute < 0 {
				out.compute = int32(i)
			}
			if !graphics && dedicatedCompute < 0 {
				dedicatedCompute = int32(i)
			}
			score++
		}
		// Take the lowest scoring family to favour a dedicated transfer queue.
		if flags&vk.QueueTransferBit != 0 && score < minTransferScore {
			minTransferScore = score
			out.transfer = int32(i)
		}
	}
	if dedicatedCompute >= 0 {
		out.compute = dedicatedCompute
	}
	// Graphics and compute families implicitly support transfers.
	if out.transfer < 0 {
		out.transfer = out.graphics
	}

	if supportsPresent != nil {
		if out.graphics >= 0 && supportsPresent(uint32(out.graphics)) {
			out.present = out.graphics
		} else {
			for i := range families {
				if supportsPresent(uint32(i)) {
					out.present = int32(i)
					break
				}
			}
		}
	}
	return out
}

func selectPhysicalDevice(instance vk.Instance, surface vk.Surface, requireDiscrete bool) (vk.PhysicalDevice, queueFamilies, error) {
	var count uint32
	if err := checkResult("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(instance, &count, nil)); err != nil {
		return nil, queueFamilies{}, err
	}
	if count == 0 {
		return nil, queueFamilies{}, fmt.Errorf("no devices which support Vulkan were found")
	}
	devices := make([]vk.PhysicalDevice, count)
	if err := checkResult("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(instance, &count, devices)); err != nil {
		return nil, queueFamilies{}, err
	}

	for _, device := range devices {
		var properties vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(device, &properties)
		properties.Deref()
		name := vulkanName(properties.DeviceName[:])

		if requireDiscrete && properties.DeviceType != vk.PhysicalDeviceTypeDiscreteGpu {
			core.LogInfo("Device '%s' is not a discrete GPU, and one is required. Skipping.", name)
			continue
		}

		var familyCount uint32
		vk.GetPhysicalDeviceQueueFamilyProperties(device, &familyCount, nil)
		familyProps := make([]vk.QueueFamilyProperties, familyCount)
		vk.GetPhysicalDeviceQueueFamilyProperties(device, &familyCount, familyProps)
		for i := range familyProps {
			familyProps[i].Deref()
		}

		var supportsPresent func(uint32) bool
		if surface != vk.NullSurface {
			supportsPresent = func(family uint32) bool {
				var supported vk.Bool32
				if res := vk.GetPhysicalDeviceSurfaceSupport(device, family, surface, &supported); res != vk.Success {
					return false
				}
				return supported == vk.True
			}
		}

		families := classifyQueueFamilies(familyProps, supportsPresent)
		if families.graphics < 0 || (surface != vk.NullSurface && families.present < 0) {
			core.LogInfo("Device '%s' does not meet queue requirements. Skipping.", name)
			continue
		}

		core.LogInfo("Selected device: '%s'.", name)
		core.LogInfo(
			"Vulkan API version: %d.%d.%d",
			vk.Version.Major(vk.Version(properties.ApiVersion)),
			vk.Version.Minor(vk.Version(properties.ApiVersion)),
			vk.Version.Patch(vk.Version(properties.ApiVersion)),
		)
		core.LogDebug("Queue families: graphics=%d present=%d transfer=%d compute=%d",
			families.graphics, families.present, families.transfer, families.compute)
		return device, families, nil
	}
	return nil, queueFamilies{}, fmt.Errorf("no physical devices were found which meet the requirements")
}

func createDevice(physicalDevice vk.PhysicalDevice, families queueFamilies, withSwapchain bool) (vk.Device, error) {
	core.LogInfo("Creating logical device...")

	// NOTE: Do not create additional queues for shared indices.
	seen := map[uint32]bool{}
	queueCreateInfos := []vk.DeviceQueueCreateInfo{}
	for _, role := range canonicalQueueOrder {
		family, ok := families.family(role)
		if !ok || seen[family] {
			continue
		}
		seen[family] = true
		queueCreateInfos = append(queueCreateInfos, vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: family,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		})
	}

	extensions := []string{}
	if withSwapchain {
		extensions = append(extensions, vk.KhrSwapchainExtensionName)
	}
	if hasDeviceExtension(physicalDevice, portabilitySubsetExtensionName) {
		core.LogInfo("Adding required extension '%s'.", portabilitySubsetExtensionName)
		extensions = append(extensions, portabilitySubsetExtensionName)
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensions),
	}

	var device vk.Device
	if err := checkResult("vkCreateDevice", vk.CreateDevice(physicalDevice, &deviceCreateInfo, nil, &device)); err != nil {
		core.LogError("%s", err)
		return nil, err
	}
	core.LogInfo("Logical device created.")
	return device, nil
}

func hasDeviceExtension(physicalDevice vk.PhysicalDevice, name string) bool {
	var count uint32
	if res := vk.EnumerateDeviceExtensionProperties(physicalDevice, "", &count, nil); res != vk.Success || count == 0 {
		return false
	}
	available := make([]vk.ExtensionProperties, count)
	if res := vk.EnumerateDeviceExtensionProperties(physicalDevice, "", &count, available); res != vk.Success {
		return false
	}
	for i := range available {
		available[i].Deref()
		if vulkanName(available[i].ExtensionName[:]) == name {
			return true
		}
	}
	return false
}

// vulkanName converts a fixed size, zero terminated name to a string.
func vulkanName(b []byte) string {
	return string(b[:FindFirstZeroInByteArray(b)])
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
