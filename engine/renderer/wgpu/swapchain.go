package wgpu

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/anima-hal/engine/core"
	"github.com/spaghettifunk/anima-hal/engine/renderer"
	"github.com/spaghettifunk/anima-hal/engine/renderer/metadata"
)

// Swapchain is a ring of offscreen render targets. Presenting retires the
// current image; nothing reaches a window.
type Swapchain struct {
	device *Device
	desc   metadata.SwapchainDesc
	images []*Resource

	mu       sync.Mutex
	next     uint32
	presents uint64
}

func (d *Device) CreateSwapchain(desc metadata.SwapchainDesc) (renderer.Swapchain, error) {
	if desc.FrameCount == 0 {
		return nil, fmt.Errorf("%w: swapchain with no images", core.ErrInvalidSettings)
	}
	sc := &Swapchain{device: d, desc: desc}
	for i := uint32(0); i < desc.FrameCount; i++ {
		native, err := d.CreateResource(metadata.ResourceDesc{
			Name:      fmt.Sprintf("swapchain image %d", i),
			Type:      metadata.ResourceTypeTexture,
			Format:    desc.Format,
			BindFlags: metadata.BindFlagRenderTarget | metadata.BindFlagCopySource,
			Width:     desc.Width,
			Height:    desc.Height,
		})
		if err != nil {
			sc.Destroy()
			return nil, err
		}
		image := native.(*Resource)
		image.swapchainImage = true
		sc.images = append(sc.images, image)
	}
	core.LogInfo("wgpu swapchain created: %dx%d, %d images", desc.Width, desc.Height, desc.FrameCount)
	return sc, nil
}

func (s *Swapchain) ImageCount() uint32 { return uint32(len(s.images)) }

func (s *Swapchain) Format() metadata.Format { return s.desc.Format }

func (s *Swapchain) GetBackBuffer(index uint32) renderer.NativeResource {
	if index >= uint32(len(s.images)) {
		return nil
	}
	return s.images[index]
}

// NextImage hands out images round robin. An image is usable once the work
// submitted before the call has retired.
func (s *Swapchain) NextImage(fence renderer.Fence, signalValue uint64) (uint32, error) {
	s.mu.Lock()
	index := s.next
	s.next = (s.next + 1) % uint32(len(s.images))
	s.mu.Unlock()
	return index, s.device.Signal(fence, signalValue)
}

func (s *Swapchain) Present(fence renderer.Fence, waitValue uint64) error {
	if f, ok := fence.(*Fence); ok && !f.reached(waitValue) {
		return fmt.Errorf("wgpu: presenting before fence value %d was submitted", waitValue)
	}
	s.mu.Lock()
	s.presents++
	s.mu.Unlock()
	return nil
}

// Presents counts Present calls.
func (s *Swapchain) Presents() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presents
}

func (s *Swapchain) Destroy() {
	for _, img := range s.images {
		img.swapchainImage = false
		img.Destroy()
	}
	s.images = nil
}
