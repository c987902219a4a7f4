package null

import (
	"sync"

	"github.com/spaghettifunk/anima-hal/engine/renderer"
	"github.com/spaghettifunk/anima-hal/engine/renderer/metadata"
)

// Swapchain hands out its images round robin.
type Swapchain struct {
	mu       sync.Mutex
	device   *Device
	desc     metadata.SwapchainDesc
	images   []*Resource
	next     uint32
	presents int
}

func newSwapchain(device *Device, desc metadata.SwapchainDesc) *Swapchain {
	sc := &Swapchain{device: device, desc: desc}
	for i := uint32(0); i < desc.FrameCount; i++ {
		sc.images = append(sc.images, &Resource{
			Desc: metadata.ResourceDesc{
				Type:   metadata.ResourceTypeTexture,
				Format: desc.Format,
				Width:  desc.Width,
				Height: desc.Height,
			},
			swapchainImage: true,
		})
	}
	return sc
}

func (sc *Swapchain) ImageCount() uint32      { return uint32(len(sc.images)) }
func (sc *Swapchain) Format() metadata.Format { return sc.desc.Format }
func (sc *Swapchain) Desc() metadata.SwapchainDesc {
	return sc.desc
}

func (sc *Swapchain) GetBackBuffer(index uint32) renderer.NativeResource {
	return sc.images[index]
}

func (sc *Swapchain) NextImage(fence renderer.Fence, signalValue uint64) (uint32, error) {
	sc.mu.Lock()
	index := sc.next
	sc.next = (sc.next + 1) % uint32(len(sc.images))
	sc.mu.Unlock()
	return index, sc.device.Signal(fence, signalValue)
}

func (sc *Swapchain) Present(fence renderer.Fence, waitValue uint64) error {
	sc.mu.Lock()
	sc.presents++
	sc.mu.Unlock()
	return nil
}

// Presents counts Present calls.
func (sc *Swapchain) Presents() int {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.presents
}

func (sc *Swapchain) Destroy() {
	for _, img := range sc.images {
		img.destroyed.Store(true)
	}
}
