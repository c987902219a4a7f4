package vulkan

import (
	"fmt"
	"sync"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-hal/engine/core"
	"github.com/spaghettifunk/anima-hal/engine/renderer"
	"github.com/spaghettifunk/anima-hal/engine/renderer/metadata"
)

// DescriptorHeap is a CPU table of views. Vulkan has no CPU descriptor
// heaps; the view objects themselves are the descriptors and are copied
// into sets when bound.
type DescriptorHeap struct {
	category metadata.DescriptorCategory

	mu    sync.Mutex
	slots []*View
}

func (d *Device) CreateDescriptorHeap(category metadata.DescriptorCategory, capacity uint32) (renderer.DescriptorHeap, error) {
	return &DescriptorHeap{category: category, slots: make([]*View, capacity)}, nil
}

func (h *DescriptorHeap) Category() metadata.DescriptorCategory { return h.category }

func (h *DescriptorHeap) Capacity() uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return uint32(len(h.slots))
}

func (h *DescriptorHeap) Write(offset uint32, view renderer.NativeView) error {
	v, ok := view.(*View)
	if !ok {
		return fmt.Errorf("vulkan: foreign view %T", view)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if offset >= uint32(len(h.slots)) {
		return fmt.Errorf("%w: offset %d of %d", core.ErrInvalidDescriptor, offset, len(h.slots))
	}
	h.slots[offset] = v
	return nil
}

func (h *DescriptorHeap) Clear(offset uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if offset < uint32(len(h.slots)) {
		h.slots[offset] = nil
	}
}

// Get returns the view stored at offset.
func (h *DescriptorHeap) Get(offset uint32) *View {
	h.mu.Lock()
	defer h.mu.Unlock()
	if offset >= uint32(len(h.slots)) {
		return nil
	}
	return h.slots[offset]
}

func (h *DescriptorHeap) Destroy() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.slots = nil
}

// BindlessHeap is a descriptor set with a single arrayed binding of one
// descriptor type. Growing it builds a new set and rewrites every live
// entry at its old index.
type BindlessHeap struct {
	device         *Device
	viewType       metadata.ViewType
	descriptorType vk.DescriptorType

	mu     sync.Mutex
	layout vk.DescriptorSetLayout
	pool   vk.DescriptorPool
	set    vk.DescriptorSet
	views  []*View
}

func (d *Device) CreateBindlessHeap(viewType metadata.ViewType, capacity uint32) (renderer.BindlessHeap, error) {
	dt, ok := descriptorTypeOf(viewType)
	if !ok {
		return nil, fmt.Errorf("vulkan: %s views cannot be bindless", viewType)
	}
	h := &BindlessHeap{device: d, viewType: viewType, descriptorType: dt}
	if err := h.build(capacity); err != nil {
		return nil, err
	}
	h.views = make([]*View, capacity)
	core.LogDebug("bindless %s heap created with %d slots", viewType, capacity)
	return h, nil
}

func (h *BindlessHeap) build(capacity uint32) error {
	dev := h.device.logical
	binding := vk.DescriptorSetLayoutBinding{
		Binding:         0,
		DescriptorType:  h.descriptorType,
		DescriptorCount: capacity,
		StageFlags:      vk.ShaderStageFlags(vk.ShaderStageAll),
	}
	layoutInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: 1,
		PBindings:    []vk.DescriptorSetLayoutBinding{binding},
	}
	var layout vk.DescriptorSetLayout
	if err := resultError("vkCreateDescriptorSetLayout", vk.CreateDescriptorSetLayout(dev, &layoutInfo, nil, &layout)); err != nil {
		return err
	}

	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       1,
		PoolSizeCount: 1,
		PPoolSizes: []vk.DescriptorPoolSize{{
			Type:            h.descriptorType,
			DescriptorCount: capacity,
		}},
	}
	var pool vk.DescriptorPool
	if err := resultError("vkCreateDescriptorPool", vk.CreateDescriptorPool(dev, &poolInfo, nil, &pool)); err != nil {
		vk.DestroyDescriptorSetLayout(dev, layout, nil)
		return err
	}

	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{layout},
	}
	var set vk.DescriptorSet
	if err := resultError("vkAllocateDescriptorSets", vk.AllocateDescriptorSets(dev, &allocInfo, &set)); err != nil {
		vk.DestroyDescriptorPool(dev, pool, nil)
		vk.DestroyDescriptorSetLayout(dev, layout, nil)
		return err
	}

	h.release()
	h.layout, h.pool, h.set = layout, pool, set
	return nil
}

func (h *BindlessHeap) release() {
	dev := h.device.logical
	if h.pool != nil {
		vk.DestroyDescriptorPool(dev, h.pool, nil)
		h.pool = nil
	}
	if h.layout != nil {
		vk.DestroyDescriptorSetLayout(dev, h.layout, nil)
		h.layout = nil
	}
}

func (h *BindlessHeap) ViewType() metadata.ViewType { return h.viewType }

func (h *BindlessHeap) Capacity() uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return uint32(len(h.views))
}

// Set returns the descriptor set to bind and its layout.
func (h *BindlessHeap) Set() (vk.DescriptorSet, vk.DescriptorSetLayout) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.set, h.layout
}

func (h *BindlessHeap) Write(index uint32, view renderer.NativeView) error {
	v, ok := view.(*View)
	if !ok {
		return fmt.Errorf("vulkan: foreign view %T", view)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if index >= uint32(len(h.views)) {
		return fmt.Errorf("%w: %d of %d", core.ErrBindlessIndexOutOfRange, index, len(h.views))
	}
	writes := []vk.WriteDescriptorSet{v.write(h.set, index, h.descriptorType)}
	vk.UpdateDescriptorSets(h.device.logical, 1, writes, 0, nil)
	h.views[index] = v
	return nil
}

// Clear forgets the entry. The stale descriptor stays in the set until the
// slot is written again; shaders must not index it.
func (h *BindlessHeap) Clear(index uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if index < uint32(len(h.views)) {
		h.views[index] = nil
	}
}

func (h *BindlessHeap) Resize(capacity uint32) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if capacity <= uint32(len(h.views)) {
		return nil
	}
	if err := h.build(capacity); err != nil {
		return err
	}
	views := make([]*View, capacity)
	copy(views, h.views)
	h.views = views

	var writes []vk.WriteDescriptorSet
	for i, v := range h.views {
		if v != nil {
			writes = append(writes, v.write(h.set, uint32(i), h.descriptorType))
		}
	}
	if len(writes) > 0 {
		vk.UpdateDescriptorSets(h.device.logical, uint32(len(writes)), writes, 0, nil)
	}
	core.LogDebug("bindless %s heap grown to %d slots, %d entries rewritten", h.viewType, capacity, len(writes))
	return nil
}

func (h *BindlessHeap) Destroy() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.release()
	h.views = nil
}
