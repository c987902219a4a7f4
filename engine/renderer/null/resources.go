package null

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/spaghettifunk/anima-hal/engine/core"
	"github.com/spaghettifunk/anima-hal/engine/renderer"
	"github.com/spaghettifunk/anima-hal/engine/renderer/metadata"
)

type Resource struct {
	Desc           metadata.ResourceDesc
	swapchainImage bool
	destroyed      atomic.Bool
}

// Destroy is a no-op for swapchain images; the swapchain owns them.
func (r *Resource) Destroy() {
	if r.swapchainImage {
		return
	}
	r.destroyed.Store(true)
}

func (r *Resource) IsDestroyed() bool { return r.destroyed.Load() }

type View struct {
	Resource  *Resource
	Desc      metadata.ViewDesc
	destroyed atomic.Bool
}

func (v *View) Destroy()          { v.destroyed.Store(true) }
func (v *View) IsDestroyed() bool { return v.destroyed.Load() }

type DescriptorHeap struct {
	mu       sync.Mutex
	category metadata.DescriptorCategory
	slots    []renderer.NativeView
}

func (h *DescriptorHeap) Category() metadata.DescriptorCategory { return h.category }

func (h *DescriptorHeap) Capacity() uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return uint32(len(h.slots))
}

func (h *DescriptorHeap) Write(offset uint32, view renderer.NativeView) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if int(offset) >= len(h.slots) {
		return fmt.Errorf("%w: %s heap offset %d", core.ErrInvalidDescriptor, h.category, offset)
	}
	h.slots[offset] = view
	return nil
}

func (h *DescriptorHeap) Clear(offset uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if int(offset) < len(h.slots) {
		h.slots[offset] = nil
	}
}

// Get returns what is stored at offset.
func (h *DescriptorHeap) Get(offset uint32) renderer.NativeView {
	h.mu.Lock()
	defer h.mu.Unlock()
	if int(offset) >= len(h.slots) {
		return nil
	}
	return h.slots[offset]
}

func (h *DescriptorHeap) Destroy() {
	h.mu.Lock()
	h.slots = nil
	h.mu.Unlock()
}

type BindlessHeap struct {
	mu       sync.Mutex
	viewType metadata.ViewType
	slots    []renderer.NativeView
	resizes  int
}

func (h *BindlessHeap) ViewType() metadata.ViewType { return h.viewType }

func (h *BindlessHeap) Capacity() uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return uint32(len(h.slots))
}

func (h *BindlessHeap) Write(index uint32, view renderer.NativeView) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if int(index) >= len(h.slots) {
		return fmt.Errorf("%w: %s[%d]", core.ErrBindlessIndexOutOfRange, h.viewType, index)
	}
	h.slots[index] = view
	return nil
}

func (h *BindlessHeap) Clear(index uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if int(index) < len(h.slots) {
		h.slots[index] = nil
	}
}

func (h *BindlessHeap) Get(index uint32) renderer.NativeView {
	h.mu.Lock()
	defer h.mu.Unlock()
	if int(index) >= len(h.slots) {
		return nil
	}
	return h.slots[index]
}

func (h *BindlessHeap) Resize(capacity uint32) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if int(capacity) < len(h.slots) {
		return fmt.Errorf("null: cannot shrink bindless heap from %d to %d", len(h.slots), capacity)
	}
	slots := make([]renderer.NativeView, capacity)
	copy(slots, h.slots)
	h.slots = slots
	h.resizes++
	return nil
}

// Resizes counts Resize calls.
func (h *BindlessHeap) Resizes() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.resizes
}

func (h *BindlessHeap) Destroy() {
	h.mu.Lock()
	h.slots = nil
	h.mu.Unlock()
}
