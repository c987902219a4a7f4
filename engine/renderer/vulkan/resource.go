package vulkan

import (
	"fmt"
	"sync"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-hal/engine/core"
	"github.com/spaghettifunk/anima-hal/engine/renderer"
	"github.com/spaghettifunk/anima-hal/engine/renderer/metadata"
)

// Resource wraps an image, a buffer or a sampler with its memory.
type Resource struct {
	device *Device
	desc   metadata.ResourceDesc

	image   vk.Image
	buffer  vk.Buffer
	sampler vk.Sampler
	memory  vk.DeviceMemory

	// swapchain images are owned by the swapchain
	swapchainImage bool

	mu sync.Mutex
	// subresources never transitioned yet; their real layout is undefined
	// whatever state the core believes they start in
	fresh     []bool
	destroyed bool
}

func newFreshTable(desc metadata.ResourceDesc) []bool {
	fresh := make([]bool, desc.Levels()*desc.Layers())
	for i := range fresh {
		fresh[i] = true
	}
	return fresh
}

// takeFresh reports whether the subresource has never been transitioned,
// and marks it as transitioned.
func (r *Resource) takeFresh(mip, layer uint32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := mip*r.desc.Layers() + layer
	if int(i) >= len(r.fresh) || !r.fresh[i] {
		return false
	}
	r.fresh[i] = false
	return true
}

func (r *Resource) Desc() metadata.ResourceDesc { return r.desc }

func (r *Resource) Destroy() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed || r.swapchainImage {
		return
	}
	r.destroyed = true
	dev := r.device.logical
	if r.image != nil {
		vk.DestroyImage(dev, r.image, nil)
	}
	if r.buffer != nil {
		vk.DestroyBuffer(dev, r.buffer, nil)
	}
	if r.sampler != nil {
		vk.DestroySampler(dev, r.sampler, nil)
	}
	if r.memory != nil {
		vk.FreeMemory(dev, r.memory, nil)
	}
}

func (d *Device) CreateResource(desc metadata.ResourceDesc) (renderer.NativeResource, error) {
	switch desc.Type {
	case metadata.ResourceTypeTexture:
		return d.createImage(desc)
	case metadata.ResourceTypeBuffer:
		return d.createBuffer(desc)
	case metadata.ResourceTypeSampler:
		return d.createSampler(desc)
	}
	return nil, fmt.Errorf("vulkan: %s resources are not supported", desc.Type)
}

func (d *Device) createImage(desc metadata.ResourceDesc) (*Resource, error) {
	format := toVkFormat(desc.Format)
	if format == vk.FormatUndefined {
		return nil, fmt.Errorf("vulkan: texture %q has no format", desc.Name)
	}
	info := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    format,
		Extent: vk.Extent3D{
			Width:  desc.Width,
			Height: desc.Height,
			Depth:  1,
		},
		MipLevels:     desc.Levels(),
		ArrayLayers:   desc.Layers(),
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         vk.ImageUsageFlags(imageUsage(desc.BindFlags)),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	var image vk.Image
	if err := resultError("vkCreateImage", vk.CreateImage(d.logical, &info, nil, &image)); err != nil {
		return nil, err
	}

	var req vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.logical, image, &req)
	req.Deref()
	memory, err := d.allocate(req, vk.MemoryPropertyDeviceLocalBit)
	if err != nil {
		vk.DestroyImage(d.logical, image, nil)
		return nil, err
	}
	if err := resultError("vkBindImageMemory", vk.BindImageMemory(d.logical, image, memory, 0)); err != nil {
		vk.FreeMemory(d.logical, memory, nil)
		vk.DestroyImage(d.logical, image, nil)
		return nil, err
	}
	return &Resource{device: d, desc: desc, image: image, memory: memory, fresh: newFreshTable(desc)}, nil
}

func (d *Device) createBuffer(desc metadata.ResourceDesc) (*Resource, error) {
	if desc.Size == 0 {
		return nil, fmt.Errorf("vulkan: buffer %q has zero size", desc.Name)
	}
	info := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(desc.Size),
		Usage:       vk.BufferUsageFlags(bufferUsage(desc.BindFlags)),
		SharingMode: vk.SharingModeExclusive,
	}
	var buffer vk.Buffer
	if err := resultError("vkCreateBuffer", vk.CreateBuffer(d.logical, &info, nil, &buffer)); err != nil {
		return nil, err
	}

	var req vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.logical, buffer, &req)
	req.Deref()
	memory, err := d.allocate(req, vk.MemoryPropertyDeviceLocalBit)
	if err != nil {
		vk.DestroyBuffer(d.logical, buffer, nil)
		return nil, err
	}
	if err := resultError("vkBindBufferMemory", vk.BindBufferMemory(d.logical, buffer, memory, 0)); err != nil {
		vk.FreeMemory(d.logical, memory, nil)
		vk.DestroyBuffer(d.logical, buffer, nil)
		return nil, err
	}
	return &Resource{device: d, desc: desc, buffer: buffer, memory: memory}, nil
}

func (d *Device) createSampler(desc metadata.ResourceDesc) (*Resource, error) {
	info := vk.SamplerCreateInfo{
		SType:        vk.StructureTypeSamplerCreateInfo,
		MagFilter:    vk.FilterLinear,
		MinFilter:    vk.FilterLinear,
		MipmapMode:   vk.SamplerMipmapModeLinear,
		AddressModeU: vk.SamplerAddressModeRepeat,
		AddressModeV: vk.SamplerAddressModeRepeat,
		AddressModeW: vk.SamplerAddressModeRepeat,
		MaxLod:       float32(desc.Levels()),
	}
	var sampler vk.Sampler
	if err := resultError("vkCreateSampler", vk.CreateSampler(d.logical, &info, nil, &sampler)); err != nil {
		return nil, err
	}
	return &Resource{device: d, desc: desc, sampler: sampler}, nil
}

func (d *Device) allocate(req vk.MemoryRequirements, properties vk.MemoryPropertyFlagBits) (vk.DeviceMemory, error) {
	index := d.findMemoryIndex(req.MemoryTypeBits, uint32(properties))
	if index < 0 {
		return nil, fmt.Errorf("vulkan: no memory type for bits %#x", req.MemoryTypeBits)
	}
	info := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  req.Size,
		MemoryTypeIndex: uint32(index),
	}
	var memory vk.DeviceMemory
	if err := resultError("vkAllocateMemory", vk.AllocateMemory(d.logical, &info, nil, &memory)); err != nil {
		return nil, err
	}
	return memory, nil
}

func (d *Device) findMemoryIndex(typeFilter, propertyFlags uint32) int32 {
	memory := d.memory
	for i := uint32(0); i < memory.MemoryTypeCount; i++ {
		memory.MemoryTypes[i].Deref()
		if typeFilter&(1<<i) != 0 && uint32(memory.MemoryTypes[i].PropertyFlags)&propertyFlags == propertyFlags {
			return int32(i)
		}
	}
	core.LogWarn("Unable to find suitable memory type!")
	return -1
}

// View is the native half of a renderer view: an image view, a texel
// buffer view, a buffer range or a sampler.
type View struct {
	device   *Device
	desc     metadata.ViewDesc
	resource *Resource

	imageView  vk.ImageView
	bufferView vk.BufferView
}

func (d *Device) CreateView(resource renderer.NativeResource, desc metadata.ViewDesc) (renderer.NativeView, error) {
	r, ok := resource.(*Resource)
	if !ok {
		return nil, fmt.Errorf("vulkan: view of a foreign resource %T", resource)
	}
	v := &View{device: d, desc: desc, resource: r}
	switch {
	case r.image != nil:
		if desc.ViewType == metadata.ViewTypeShadingRateSource {
			return v, nil
		}
		info := vk.ImageViewCreateInfo{
			SType:    vk.StructureTypeImageViewCreateInfo,
			Image:    r.image,
			ViewType: vk.ImageViewType2d,
			Format:   toVkFormat(desc.Format),
			Components: vk.ComponentMapping{
				R: vk.ComponentSwizzleIdentity,
				G: vk.ComponentSwizzleIdentity,
				B: vk.ComponentSwizzleIdentity,
				A: vk.ComponentSwizzleIdentity,
			},
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask:     vk.ImageAspectFlags(aspectOf(desc.Format)),
				BaseMipLevel:   desc.BaseMipLevel,
				LevelCount:     desc.LevelCount,
				BaseArrayLayer: desc.BaseArrayLayer,
				LayerCount:     desc.LayerCount,
			},
		}
		if desc.LayerCount > 1 {
			info.ViewType = vk.ImageViewType2dArray
		}
		if err := resultError("vkCreateImageView", vk.CreateImageView(d.logical, &info, nil, &v.imageView)); err != nil {
			return nil, err
		}
	case r.buffer != nil:
		if desc.ViewType != metadata.ViewTypeBuffer && desc.ViewType != metadata.ViewTypeRWBuffer {
			return v, nil
		}
		if desc.Format == metadata.FormatUndefined {
			return nil, fmt.Errorf("vulkan: %s view of %q needs a format", desc.ViewType, r.desc.Name)
		}
		info := vk.BufferViewCreateInfo{
			SType:  vk.StructureTypeBufferViewCreateInfo,
			Buffer: r.buffer,
			Format: toVkFormat(desc.Format),
			Offset: vk.DeviceSize(desc.Offset),
			Range:  vk.DeviceSize(v.bufferRange()),
		}
		if err := resultError("vkCreateBufferView", vk.CreateBufferView(d.logical, &info, nil, &v.bufferView)); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// bufferRange is the byte size the view covers; zero means the rest of the
// buffer.
func (v *View) bufferRange() uint64 {
	if v.desc.Size != 0 {
		return v.desc.Size
	}
	return v.resource.desc.Size - v.desc.Offset
}

// write fills a descriptor write for slot index of set.
func (v *View) write(set vk.DescriptorSet, index uint32, descriptorType vk.DescriptorType) vk.WriteDescriptorSet {
	w := vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          set,
		DstBinding:      0,
		DstArrayElement: index,
		DescriptorCount: 1,
		DescriptorType:  descriptorType,
	}
	switch descriptorType {
	case vk.DescriptorTypeSampler:
		w.PImageInfo = []vk.DescriptorImageInfo{{Sampler: v.resource.sampler}}
	case vk.DescriptorTypeSampledImage, vk.DescriptorTypeStorageImage:
		w.PImageInfo = []vk.DescriptorImageInfo{{
			ImageView:   v.imageView,
			ImageLayout: imageLayoutOfView(v.desc.ViewType),
		}}
	case vk.DescriptorTypeUniformTexelBuffer, vk.DescriptorTypeStorageTexelBuffer:
		w.PTexelBufferView = []vk.BufferView{v.bufferView}
	default:
		w.PBufferInfo = []vk.DescriptorBufferInfo{{
			Buffer: v.resource.buffer,
			Offset: vk.DeviceSize(v.desc.Offset),
			Range:  vk.DeviceSize(v.bufferRange()),
		}}
	}
	return w
}

func (v *View) Destroy() {
	if v.imageView != nil {
		vk.DestroyImageView(v.device.logical, v.imageView, nil)
		v.imageView = nil
	}
	if v.bufferView != nil {
		vk.DestroyBufferView(v.device.logical, v.bufferView, nil)
		v.bufferView = nil
	}
}
