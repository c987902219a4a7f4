// Package vulkan implements the renderer backend over goki/vulkan.
package vulkan

import (
	"fmt"
	"runtime"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-hal/engine/core"
	"github.com/spaghettifunk/anima-hal/engine/renderer"
)

func init() {
	renderer.RegisterBackend(core.APIVulkan, func(opts renderer.DeviceOptions) (renderer.Device, error) {
		return NewDevice(opts)
	})
}

type Device struct {
	instance vk.Instance
	debug    vk.DebugReportCallback
	surface  vk.Surface

	physical   vk.PhysicalDevice
	properties vk.PhysicalDeviceProperties
	memory     vk.PhysicalDeviceMemoryProperties
	name       string

	logical        vk.Device
	graphicsFamily uint32
	presentFamily  uint32
	graphicsQueue  vk.Queue
	presentQueue   vk.Queue

	locks *lockPool
}

// queueFamilies holds the family indices found on a physical device; -1
// means none.
type queueFamilies struct {
	graphics int32
	present  int32
}

func NewDevice(opts renderer.DeviceOptions) (*Device, error) {
	if err := loadVulkan(); err != nil {
		return nil, err
	}
	d := &Device{locks: newLockPool()}

	instance, err := createInstance(opts.Settings, opts.Surface)
	if err != nil {
		return nil, err
	}
	d.instance = instance

	if opts.Settings.Renderer.Validation {
		if d.debug, err = createDebugCallback(instance); err != nil {
			core.LogWarn("validation output disabled: %s", err)
		}
	}
	if opts.Surface != nil {
		if d.surface, err = createSurface(instance, opts.Surface); err != nil {
			d.Destroy()
			return nil, err
		}
	}
	if err := d.selectPhysicalDevice(opts.Settings.Renderer.RequiredGPUIndex); err != nil {
		d.Destroy()
		return nil, err
	}
	if err := d.createLogicalDevice(); err != nil {
		d.Destroy()
		return nil, err
	}
	return d, nil
}

func (d *Device) Name() string { return "vulkan: " + d.name }

func (d *Device) selectPhysicalDevice(requiredIndex uint32) error {
	var count uint32
	if err := resultError("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(d.instance, &count, nil)); err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("vulkan: no devices which support Vulkan were found")
	}
	devices := make([]vk.PhysicalDevice, count)
	if err := resultError("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(d.instance, &count, devices)); err != nil {
		return err
	}
	if requiredIndex >= count {
		return fmt.Errorf("%w: required_gpu_index %d, %d devices present", core.ErrInvalidSettings, requiredIndex, count)
	}

	physical := devices[requiredIndex]
	var properties vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(physical, &properties)
	properties.Deref()
	name := cString(properties.DeviceName[:])

	families, err := d.findQueueFamilies(physical)
	if err != nil {
		return err
	}
	if families.graphics < 0 || (d.surface != nil && families.present < 0) {
		return fmt.Errorf("vulkan: device %q lacks a graphics or present queue", name)
	}
	if d.surface != nil {
		if ok, err := hasDeviceExtension(physical, vk.KhrSwapchainExtensionName); err != nil {
			return err
		} else if !ok {
			return fmt.Errorf("vulkan: device %q does not support %s", name, vk.KhrSwapchainExtensionName)
		}
	}

	d.physical = physical
	d.properties = properties
	d.name = name
	d.graphicsFamily = uint32(families.graphics)
	d.presentFamily = d.graphicsFamily
	if families.present >= 0 {
		d.presentFamily = uint32(families.present)
	}
	vk.GetPhysicalDeviceMemoryProperties(physical, &d.memory)
	d.memory.Deref()

	logDeviceInfo(properties, d.memory)
	return nil
}

// findQueueFamilies prefers a single family that does graphics and present.
func (d *Device) findQueueFamilies(physical vk.PhysicalDevice) (queueFamilies, error) {
	out := queueFamilies{graphics: -1, present: -1}
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(physical, &count, nil)
	props := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(physical, &count, props)

	for i := range props {
		props[i].Deref()
		graphics := vk.QueueFlagBits(props[i].QueueFlags)&vk.QueueGraphicsBit != 0
		present := false
		if d.surface != nil {
			var supported vk.Bool32
			if err := resultError("vkGetPhysicalDeviceSurfaceSupport", vk.GetPhysicalDeviceSurfaceSupport(physical, uint32(i), d.surface, &supported)); err != nil {
				return out, err
			}
			present = supported == vk.True
		}
		if graphics && present {
			return queueFamilies{graphics: int32(i), present: int32(i)}, nil
		}
		if graphics && out.graphics < 0 {
			out.graphics = int32(i)
		}
		if present && out.present < 0 {
			out.present = int32(i)
		}
	}
	return out, nil
}

func hasDeviceExtension(physical vk.PhysicalDevice, name string) (bool, error) {
	var count uint32
	if err := resultError("vkEnumerateDeviceExtensionProperties", vk.EnumerateDeviceExtensionProperties(physical, "", &count, nil)); err != nil {
		return false, err
	}
	exts := make([]vk.ExtensionProperties, count)
	if err := resultError("vkEnumerateDeviceExtensionProperties", vk.EnumerateDeviceExtensionProperties(physical, "", &count, exts)); err != nil {
		return false, err
	}
	for i := range exts {
		exts[i].Deref()
		if cString(exts[i].ExtensionName[:]) == name {
			return true, nil
		}
	}
	return false, nil
}

func logDeviceInfo(properties vk.PhysicalDeviceProperties, memory vk.PhysicalDeviceMemoryProperties) {
	kind := "unknown"
	switch properties.DeviceType {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		kind = "integrated"
	case vk.PhysicalDeviceTypeDiscreteGpu:
		kind = "discrete"
	case vk.PhysicalDeviceTypeVirtualGpu:
		kind = "virtual"
	case vk.PhysicalDeviceTypeCpu:
		kind = "cpu"
	}
	core.LogInfo("Selected device: '%s' (%s)", cString(properties.DeviceName[:]), kind)
	core.LogInfo("Vulkan API version: %d.%d.%d",
		vk.Version(properties.ApiVersion).Major(),
		vk.Version(properties.ApiVersion).Minor(),
		vk.Version(properties.ApiVersion).Patch())
	for j := uint32(0); j < memory.MemoryHeapCount; j++ {
		memory.MemoryHeaps[j].Deref()
		gib := float64(memory.MemoryHeaps[j].Size) / (1 << 30)
		if vk.MemoryHeapFlagBits(memory.MemoryHeaps[j].Flags)&vk.MemoryHeapDeviceLocalBit != 0 {
			core.LogInfo("Local GPU memory: %.2f GiB", gib)
		} else {
			core.LogInfo("Shared system memory: %.2f GiB", gib)
		}
	}
}

func (d *Device) createLogicalDevice() error {
	families := []uint32{d.graphicsFamily}
	if d.presentFamily != d.graphicsFamily {
		families = append(families, d.presentFamily)
	}
	queueInfos := make([]vk.DeviceQueueCreateInfo, len(families))
	for i, family := range families {
		queueInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: family,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
	}

	var extensions []string
	if d.surface != nil {
		extensions = append(extensions, vk.KhrSwapchainExtensionName)
	}
	if runtime.GOOS == "darwin" {
		if ok, _ := hasDeviceExtension(d.physical, "VK_KHR_portability_subset"); ok {
			extensions = append(extensions, "VK_KHR_portability_subset")
		}
	}

	info := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{{}},
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensions),
	}
	if err := resultError("vkCreateDevice", vk.CreateDevice(d.physical, &info, nil, &d.logical)); err != nil {
		return err
	}
	vk.GetDeviceQueue(d.logical, d.graphicsFamily, 0, &d.graphicsQueue)
	vk.GetDeviceQueue(d.logical, d.presentFamily, 0, &d.presentQueue)
	core.LogInfo("Logical device created (graphics family %d, present family %d)", d.graphicsFamily, d.presentFamily)
	return nil
}

// submit queues one batch on the graphics queue. wait and signal may be nil.
func (d *Device) submit(buffers []vk.CommandBuffer, wait, signal vk.Semaphore, fence vk.Fence) error {
	info := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: uint32(len(buffers)),
		PCommandBuffers:    buffers,
	}
	if wait != nil {
		info.WaitSemaphoreCount = 1
		info.PWaitSemaphores = []vk.Semaphore{wait}
		info.PWaitDstStageMask = []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit)}
	}
	if signal != nil {
		info.SignalSemaphoreCount = 1
		info.PSignalSemaphores = []vk.Semaphore{signal}
	}
	return d.locks.withQueue(d.graphicsFamily, func() error {
		return resultError("vkQueueSubmit", vk.QueueSubmit(d.graphicsQueue, 1, []vk.SubmitInfo{info}, fence))
	})
}

func (d *Device) CreateFence(initialValue uint64) (renderer.Fence, error) {
	return newFence(d, initialValue), nil
}

// Signal queues an empty submission carrying a binary fence for value.
func (d *Device) Signal(fence renderer.Fence, value uint64) error {
	f, ok := fence.(*Fence)
	if !ok {
		return fmt.Errorf("vulkan: foreign fence %T", fence)
	}
	handle, err := f.acquire()
	if err != nil {
		return err
	}
	if err := d.submit(nil, nil, nil, handle); err != nil {
		f.recycle(handle)
		return err
	}
	f.enqueue(value, handle)
	return nil
}

// Wait is satisfied by queue order for every value already queued on this
// device. Waiting for a value nobody has queued would stall the queue.
func (d *Device) Wait(fence renderer.Fence, value uint64) error {
	f, ok := fence.(*Fence)
	if !ok {
		return fmt.Errorf("vulkan: foreign fence %T", fence)
	}
	if !f.reached(value) {
		return fmt.Errorf("vulkan: queue wait for fence value %d that was never signalled", value)
	}
	return nil
}

func (d *Device) Destroy() {
	if d.logical != nil {
		vk.DeviceWaitIdle(d.logical)
		vk.DestroyDevice(d.logical, nil)
		d.logical = nil
	}
	if d.surface != nil {
		vk.DestroySurface(d.instance, d.surface, nil)
		d.surface = nil
	}
	if d.debug != nil {
		vk.DestroyDebugReportCallback(d.instance, d.debug, nil)
		d.debug = nil
	}
	if d.instance != nil {
		vk.DestroyInstance(d.instance, nil)
		d.instance = nil
	}
	core.LogInfo("Vulkan device destroyed")
}
