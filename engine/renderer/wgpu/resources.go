package wgpu

import (
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/spaghettifunk/anima-hal/engine/core"
	"github.com/spaghettifunk/anima-hal/engine/renderer"
	"github.com/spaghettifunk/anima-hal/engine/renderer/metadata"
)

type Resource struct {
	device  *Device
	desc    metadata.ResourceDesc
	texture hal.Texture
	buffer  hal.Buffer
	sampler hal.Sampler

	swapchainImage bool
	destroyed      bool
}

func (d *Device) CreateResource(desc metadata.ResourceDesc) (renderer.NativeResource, error) {
	r := &Resource{device: d, desc: desc}
	var err error
	switch desc.Type {
	case metadata.ResourceTypeTexture:
		r.texture, err = d.device.CreateTexture(&hal.TextureDescriptor{
			Label: desc.Name,
			Size: hal.Extent3D{
				Width:              desc.Width,
				Height:             desc.Height,
				DepthOrArrayLayers: desc.Layers(),
			},
			MipLevelCount: desc.Levels(),
			SampleCount:   1,
			Dimension:     gputypes.TextureDimension2D,
			Format:        toTextureFormat(desc.Format),
			Usage:         textureUsage(desc.BindFlags),
		})
	case metadata.ResourceTypeBuffer, metadata.ResourceTypeAccelerationStructure:
		if desc.Size == 0 {
			return nil, fmt.Errorf("wgpu: buffer %q has zero size", desc.Name)
		}
		r.buffer, err = d.device.CreateBuffer(&hal.BufferDescriptor{
			Label: desc.Name,
			Size:  desc.Size,
			Usage: bufferUsage(desc.BindFlags),
		})
	case metadata.ResourceTypeSampler:
		r.sampler, err = d.device.CreateSampler(&hal.SamplerDescriptor{
			Label:        desc.Name,
			AddressModeU: gputypes.AddressModeRepeat,
			AddressModeV: gputypes.AddressModeRepeat,
			AddressModeW: gputypes.AddressModeRepeat,
			MagFilter:    gputypes.FilterModeLinear,
			MinFilter:    gputypes.FilterModeLinear,
			MipmapFilter: gputypes.FilterModeLinear,
			LodMaxClamp:  32,
		})
	default:
		return nil, fmt.Errorf("wgpu: resource %q has unsupported type %s", desc.Name, desc.Type)
	}
	if err != nil {
		return nil, halError("creating "+desc.Name, err)
	}
	return r, nil
}

func (r *Resource) Desc() metadata.ResourceDesc { return r.desc }

// Destroy is a no-op for swapchain images; the swapchain owns them.
func (r *Resource) Destroy() {
	if r.swapchainImage || r.destroyed {
		return
	}
	r.destroyed = true
	switch {
	case r.texture != nil:
		r.device.device.DestroyTexture(r.texture)
	case r.buffer != nil:
		r.device.device.DestroyBuffer(r.buffer)
	case r.sampler != nil:
		r.device.device.DestroySampler(r.sampler)
	}
}

// View is a hal texture view, or a buffer range for buffer views.
type View struct {
	device   *Device
	desc     metadata.ViewDesc
	resource *Resource
	texture  hal.TextureView
}

func (d *Device) CreateView(resource renderer.NativeResource, desc metadata.ViewDesc) (renderer.NativeView, error) {
	res, ok := resource.(*Resource)
	if !ok {
		return nil, fmt.Errorf("wgpu: foreign resource %T", resource)
	}
	if res.destroyed {
		return nil, core.ErrResourceDestroyed
	}
	v := &View{device: d, desc: desc, resource: res}
	if res.texture == nil {
		return v, nil
	}

	format := res.desc.Format
	if desc.Format != metadata.FormatUndefined {
		format = desc.Format
	}
	levels := desc.LevelCount
	if levels == 0 {
		levels = res.desc.Levels() - desc.BaseMipLevel
	}
	layers := desc.LayerCount
	if layers == 0 {
		layers = res.desc.Layers() - desc.BaseArrayLayer
	}
	dim := gputypes.TextureViewDimension2D
	if layers > 1 {
		dim = gputypes.TextureViewDimension2DArray
	}
	view, err := d.device.CreateTextureView(res.texture, &hal.TextureViewDescriptor{
		Label:           fmt.Sprintf("%s %s view", res.desc.Name, desc.ViewType),
		Format:          toTextureFormat(format),
		Dimension:       dim,
		Aspect:          aspectOf(desc.ViewType, format),
		BaseMipLevel:    desc.BaseMipLevel,
		MipLevelCount:   levels,
		BaseArrayLayer:  desc.BaseArrayLayer,
		ArrayLayerCount: layers,
	})
	if err != nil {
		return nil, halError("creating view", err)
	}
	v.texture = view
	return v, nil
}

// binding returns the bind group resource for the view.
func (v *View) binding() gputypes.BindingResource {
	switch {
	case v.texture != nil:
		return gputypes.TextureViewBinding{TextureView: v.texture.NativeHandle()}
	case v.resource.sampler != nil:
		return gputypes.SamplerBinding{Sampler: v.resource.sampler.NativeHandle()}
	case v.resource.buffer != nil:
		return gputypes.BufferBinding{
			Buffer: v.resource.buffer.NativeHandle(),
			Offset: v.desc.Offset,
			Size:   v.desc.Size,
		}
	}
	return nil
}

func (v *View) Destroy() {
	if v.texture != nil {
		v.device.device.DestroyTextureView(v.texture)
		v.texture = nil
	}
}

// DescriptorHeap is a CPU table of views; WebGPU has no descriptor heaps.
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
		return fmt.Errorf("wgpu: foreign view %T", view)
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

func (h *DescriptorHeap) Destroy() {
	h.mu.Lock()
	h.slots = nil
	h.mu.Unlock()
}

// BindlessHeap keeps the live entries of a bindless table. WebGPU has no
// binding arrays, so the table is flattened into bind group entries whose
// binding number is the bindless index.
type BindlessHeap struct {
	viewType metadata.ViewType

	mu    sync.Mutex
	views []*View
}

func (d *Device) CreateBindlessHeap(viewType metadata.ViewType, capacity uint32) (renderer.BindlessHeap, error) {
	if !bindable(viewType) {
		return nil, fmt.Errorf("wgpu: %s views cannot be bindless", viewType)
	}
	return &BindlessHeap{viewType: viewType, views: make([]*View, capacity)}, nil
}

func (h *BindlessHeap) ViewType() metadata.ViewType { return h.viewType }

func (h *BindlessHeap) Capacity() uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return uint32(len(h.views))
}

func (h *BindlessHeap) Write(index uint32, view renderer.NativeView) error {
	v, ok := view.(*View)
	if !ok {
		return fmt.Errorf("wgpu: foreign view %T", view)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if index >= uint32(len(h.views)) {
		return fmt.Errorf("%w: %d of %d", core.ErrBindlessIndexOutOfRange, index, len(h.views))
	}
	h.views[index] = v
	return nil
}

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
	views := make([]*View, capacity)
	copy(views, h.views)
	h.views = views
	return nil
}

// Entries returns a bind group entry for every live index.
func (h *BindlessHeap) Entries() []gputypes.BindGroupEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []gputypes.BindGroupEntry
	for i, v := range h.views {
		if v == nil {
			continue
		}
		if res := v.binding(); res != nil {
			out = append(out, gputypes.BindGroupEntry{Binding: uint32(i), Resource: res})
		}
	}
	return out
}

func (h *BindlessHeap) Destroy() {
	h.mu.Lock()
	h.views = nil
	h.mu.Unlock()
}
