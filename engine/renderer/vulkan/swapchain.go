package vulkan

import (
	"fmt"
	stdmath "math"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-hal/engine/core"
	"github.com/spaghettifunk/anima-hal/engine/math"
	"github.com/spaghettifunk/anima-hal/engine/renderer"
	"github.com/spaghettifunk/anima-hal/engine/renderer/metadata"
)

type swapchainSupport struct {
	capabilities vk.SurfaceCapabilities
	formats      []vk.SurfaceFormat
	presentModes []vk.PresentMode
}

func querySwapchainSupport(physical vk.PhysicalDevice, surface vk.Surface) (swapchainSupport, error) {
	var s swapchainSupport
	if err := resultError("vkGetPhysicalDeviceSurfaceCapabilities", vk.GetPhysicalDeviceSurfaceCapabilities(physical, surface, &s.capabilities)); err != nil {
		return s, err
	}
	s.capabilities.Deref()
	s.capabilities.CurrentExtent.Deref()
	s.capabilities.MinImageExtent.Deref()
	s.capabilities.MaxImageExtent.Deref()

	var count uint32
	if err := resultError("vkGetPhysicalDeviceSurfaceFormats", vk.GetPhysicalDeviceSurfaceFormats(physical, surface, &count, nil)); err != nil {
		return s, err
	}
	if count > 0 {
		s.formats = make([]vk.SurfaceFormat, count)
		if err := resultError("vkGetPhysicalDeviceSurfaceFormats", vk.GetPhysicalDeviceSurfaceFormats(physical, surface, &count, s.formats)); err != nil {
			return s, err
		}
		for i := range s.formats {
			s.formats[i].Deref()
		}
	}

	count = 0
	if err := resultError("vkGetPhysicalDeviceSurfacePresentModes", vk.GetPhysicalDeviceSurfacePresentModes(physical, surface, &count, nil)); err != nil {
		return s, err
	}
	if count > 0 {
		s.presentModes = make([]vk.PresentMode, count)
		if err := resultError("vkGetPhysicalDeviceSurfacePresentModes", vk.GetPhysicalDeviceSurfacePresentModes(physical, surface, &count, s.presentModes)); err != nil {
			return s, err
		}
	}
	return s, nil
}

// Swapchain presents to the device surface. Acquire semaphores rotate per
// call; the present semaphore belongs to the image.
type Swapchain struct {
	device *Device
	handle vk.Swapchain
	format vk.SurfaceFormat
	extent vk.Extent2D
	images []*Resource

	acquired []vk.Semaphore
	rendered []vk.Semaphore
	next     int
	current  uint32
}

func (d *Device) CreateSwapchain(desc metadata.SwapchainDesc) (renderer.Swapchain, error) {
	if d.surface == nil {
		return nil, fmt.Errorf("vulkan: headless device has no surface to present to")
	}
	support, err := querySwapchainSupport(d.physical, d.surface)
	if err != nil {
		return nil, err
	}
	if len(support.formats) == 0 || len(support.presentModes) == 0 {
		return nil, fmt.Errorf("vulkan: surface reports no formats or present modes")
	}

	sc := &Swapchain{device: d, format: support.formats[0]}
	want := toVkFormat(desc.Format)
	for _, f := range support.formats {
		if f.Format == want && f.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			sc.format = f
			break
		}
	}

	caps := support.capabilities
	sc.extent = vk.Extent2D{Width: desc.Width, Height: desc.Height}
	if caps.CurrentExtent.Width != stdmath.MaxUint32 {
		sc.extent = caps.CurrentExtent
	}
	sc.extent.Width = math.Clamp(sc.extent.Width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width)
	sc.extent.Height = math.Clamp(sc.extent.Height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height)

	imageCount := math.Max(desc.FrameCount, caps.MinImageCount)
	if caps.MaxImageCount > 0 {
		imageCount = math.Min(imageCount, caps.MaxImageCount)
	}

	info := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          d.surface,
		MinImageCount:    imageCount,
		ImageFormat:      sc.format.Format,
		ImageColorSpace:  sc.format.ColorSpace,
		ImageExtent:      sc.extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferDstBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      presentMode(desc.VSync, support.presentModes),
		Clipped:          vk.True,
	}
	if d.graphicsFamily != d.presentFamily {
		info.ImageSharingMode = vk.SharingModeConcurrent
		info.QueueFamilyIndexCount = 2
		info.PQueueFamilyIndices = []uint32{d.graphicsFamily, d.presentFamily}
	}
	if err := resultError("vkCreateSwapchain", vk.CreateSwapchain(d.logical, &info, nil, &sc.handle)); err != nil {
		return nil, err
	}

	var count uint32
	if err := resultError("vkGetSwapchainImages", vk.GetSwapchainImages(d.logical, sc.handle, &count, nil)); err != nil {
		sc.Destroy()
		return nil, err
	}
	handles := make([]vk.Image, count)
	if err := resultError("vkGetSwapchainImages", vk.GetSwapchainImages(d.logical, sc.handle, &count, handles)); err != nil {
		sc.Destroy()
		return nil, err
	}
	imageDesc := metadata.ResourceDesc{
		Type:      metadata.ResourceTypeTexture,
		Format:    fromVkFormat(sc.format.Format),
		BindFlags: metadata.BindFlagRenderTarget | metadata.BindFlagCopyDest,
		Width:     sc.extent.Width,
		Height:    sc.extent.Height,
	}
	for i, h := range handles {
		desc := imageDesc
		desc.Name = fmt.Sprintf("swapchain image %d", i)
		sc.images = append(sc.images, &Resource{
			device:         d,
			desc:           desc,
			image:          h,
			swapchainImage: true,
			fresh:          newFreshTable(desc),
		})
	}

	semInfo := vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}
	for range handles {
		var a, r vk.Semaphore
		if err := resultError("vkCreateSemaphore", vk.CreateSemaphore(d.logical, &semInfo, nil, &a)); err != nil {
			sc.Destroy()
			return nil, err
		}
		sc.acquired = append(sc.acquired, a)
		if err := resultError("vkCreateSemaphore", vk.CreateSemaphore(d.logical, &semInfo, nil, &r)); err != nil {
			sc.Destroy()
			return nil, err
		}
		sc.rendered = append(sc.rendered, r)
	}

	core.LogInfo("Vulkan swapchain created: %dx%d, %d images", sc.extent.Width, sc.extent.Height, count)
	return sc, nil
}

func (s *Swapchain) ImageCount() uint32 { return uint32(len(s.images)) }

func (s *Swapchain) Format() metadata.Format { return fromVkFormat(s.format.Format) }

func (s *Swapchain) GetBackBuffer(index uint32) renderer.NativeResource {
	if index >= uint32(len(s.images)) {
		return nil
	}
	return s.images[index]
}

// NextImage acquires an image and queues a submission that waits for it
// and then signals fence to signalValue. Later submissions on the queue are
// ordered after that wait.
func (s *Swapchain) NextImage(fence renderer.Fence, signalValue uint64) (uint32, error) {
	f, ok := fence.(*Fence)
	if !ok {
		return 0, fmt.Errorf("vulkan: foreign fence %T", fence)
	}
	sem := s.acquired[s.next]
	s.next = (s.next + 1) % len(s.acquired)

	var index uint32
	res := vk.AcquireNextImage(s.device.logical, s.handle, vk.MaxUint64, sem, vk.NullFence, &index)
	switch res {
	case vk.Success:
	case vk.Suboptimal:
		core.LogDebug("swapchain is suboptimal for the surface")
	case vk.ErrorOutOfDate:
		return 0, fmt.Errorf("acquiring image: %w", core.ErrSwapchainBooting)
	default:
		return 0, resultError("vkAcquireNextImage", res)
	}
	s.current = index

	handle, err := f.acquire()
	if err != nil {
		return 0, err
	}
	if err := s.device.submit(nil, sem, nil, handle); err != nil {
		f.recycle(handle)
		return 0, err
	}
	f.enqueue(signalValue, handle)
	return index, nil
}

// Present queues the current image. The queue already runs in submission
// order, so waitValue is met by everything submitted before this call.
func (s *Swapchain) Present(fence renderer.Fence, waitValue uint64) error {
	if f, ok := fence.(*Fence); ok && !f.reached(waitValue) {
		return fmt.Errorf("vulkan: presenting before fence value %d was submitted", waitValue)
	}
	sem := s.rendered[s.current]
	if err := s.device.submit(nil, nil, sem, vk.NullFence); err != nil {
		return err
	}
	info := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{sem},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{s.handle},
		PImageIndices:      []uint32{s.current},
	}
	var res vk.Result
	s.device.locks.withQueue(s.device.presentFamily, func() error {
		res = vk.QueuePresent(s.device.presentQueue, &info)
		return nil
	})
	switch res {
	case vk.Success:
		return nil
	case vk.Suboptimal, vk.ErrorOutOfDate:
		return fmt.Errorf("presenting: %w", core.ErrSwapchainBooting)
	}
	return resultError("vkQueuePresent", res)
}

func (s *Swapchain) Destroy() {
	dev := s.device.logical
	vk.DeviceWaitIdle(dev)
	for _, sem := range s.acquired {
		vk.DestroySemaphore(dev, sem, nil)
	}
	for _, sem := range s.rendered {
		vk.DestroySemaphore(dev, sem, nil)
	}
	s.acquired, s.rendered, s.images = nil, nil, nil
	if s.handle != nil {
		vk.DestroySwapchain(dev, s.handle, nil)
		s.handle = nil
	}
}
