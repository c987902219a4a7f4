package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-hal/engine/core"
	"github.com/spaghettifunk/anima-hal/engine/renderer"
)

// CommandList is a primary command buffer with a pool of its own, so lists
// can be recorded on different goroutines without sharing a pool.
type CommandList struct {
	device *Device
	pool   vk.CommandPool
	handle vk.CommandBuffer
	open   bool
}

func (d *Device) CreateCommandList() (renderer.NativeCommandList, error) {
	poolInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: d.graphicsFamily,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	var pool vk.CommandPool
	if err := resultError("vkCreateCommandPool", vk.CreateCommandPool(d.logical, &poolInfo, nil, &pool)); err != nil {
		return nil, err
	}

	allocInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	buffers := make([]vk.CommandBuffer, 1)
	if err := resultError("vkAllocateCommandBuffers", vk.AllocateCommandBuffers(d.logical, &allocInfo, buffers)); err != nil {
		vk.DestroyCommandPool(d.logical, pool, nil)
		return nil, err
	}
	return &CommandList{device: d, pool: pool, handle: buffers[0]}, nil
}

func (l *CommandList) Open() error {
	if l.open {
		return core.ErrCommandListOpen
	}
	if err := resultError("vkResetCommandBuffer", vk.ResetCommandBuffer(l.handle, 0)); err != nil {
		return err
	}
	begin := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if err := resultError("vkBeginCommandBuffer", vk.BeginCommandBuffer(l.handle, &begin)); err != nil {
		return err
	}
	l.open = true
	return nil
}

func (l *CommandList) Close() error {
	if !l.open {
		return core.ErrCommandListNotOpen
	}
	l.open = false
	return resultError("vkEndCommandBuffer", vk.EndCommandBuffer(l.handle))
}

// ResourceBarrier records one vkCmdPipelineBarrier for the whole batch.
func (l *CommandList) ResourceBarrier(transitions []renderer.ResolvedTransition) {
	if !l.open {
		core.LogError("recording %d barriers into a closed command list", len(transitions))
		return
	}
	b := buildBarriers(transitions)
	if len(b.images) == 0 && len(b.buffers) == 0 {
		return
	}
	vk.CmdPipelineBarrier(l.handle,
		vk.PipelineStageFlags(b.srcStage), vk.PipelineStageFlags(b.dstStage), 0,
		0, nil,
		uint32(len(b.buffers)), b.buffers,
		uint32(len(b.images)), b.images)
}

func (l *CommandList) Destroy() {
	if l.pool == nil {
		return
	}
	vk.FreeCommandBuffers(l.device.logical, l.pool, 1, []vk.CommandBuffer{l.handle})
	vk.DestroyCommandPool(l.device.logical, l.pool, nil)
	l.pool, l.handle = nil, nil
}

type barrierBatch struct {
	images   []vk.ImageMemoryBarrier
	buffers  []vk.BufferMemoryBarrier
	srcStage vk.PipelineStageFlagBits
	dstStage vk.PipelineStageFlagBits
}

func buildBarriers(transitions []renderer.ResolvedTransition) barrierBatch {
	var b barrierBatch
	for _, t := range transitions {
		native, ok := t.Resource.Native().(*Resource)
		if !ok {
			core.LogWarn("skipping barrier on foreign resource %s", t.Resource.Name())
			continue
		}
		before, okBefore := translateState(t.Before)
		after, okAfter := translateState(t.After)
		if !okBefore || !okAfter {
			core.LogError("untranslatable transition %s", t)
			continue
		}
		switch {
		case native.image != nil:
			oldLayout := before.layout
			if native.takeFresh(t.MipLevel, t.ArrayLayer) {
				oldLayout = vk.ImageLayoutUndefined
			}
			b.images = append(b.images, vk.ImageMemoryBarrier{
				SType:               vk.StructureTypeImageMemoryBarrier,
				SrcAccessMask:       vk.AccessFlags(before.access),
				DstAccessMask:       vk.AccessFlags(after.access),
				OldLayout:           oldLayout,
				NewLayout:           after.layout,
				SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
				DstQueueFamilyIndex: vk.QueueFamilyIgnored,
				Image:               native.image,
				SubresourceRange: vk.ImageSubresourceRange{
					AspectMask:     vk.ImageAspectFlags(aspectOf(native.desc.Format)),
					BaseMipLevel:   t.MipLevel,
					LevelCount:     1,
					BaseArrayLayer: t.ArrayLayer,
					LayerCount:     1,
				},
			})
		case native.buffer != nil:
			b.buffers = append(b.buffers, vk.BufferMemoryBarrier{
				SType:               vk.StructureTypeBufferMemoryBarrier,
				SrcAccessMask:       vk.AccessFlags(before.access),
				DstAccessMask:       vk.AccessFlags(after.access),
				SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
				DstQueueFamilyIndex: vk.QueueFamilyIgnored,
				Buffer:              native.buffer,
				Size:                vk.DeviceSize(native.desc.Size),
			})
		default:
			continue
		}
		b.srcStage |= before.stage
		b.dstStage |= after.stage
	}
	if b.srcStage == 0 {
		b.srcStage = vk.PipelineStageTopOfPipeBit
	}
	if b.dstStage == 0 {
		b.dstStage = vk.PipelineStageBottomOfPipeBit
	}
	return b
}

func (d *Device) ExecuteCommandLists(lists []renderer.NativeCommandList) error {
	handles := make([]vk.CommandBuffer, 0, len(lists))
	for _, l := range lists {
		cl, ok := l.(*CommandList)
		if !ok {
			return fmt.Errorf("vulkan: executing a foreign command list %T", l)
		}
		if cl.open {
			return core.ErrCommandListOpen
		}
		handles = append(handles, cl.handle)
	}
	return d.submit(handles, nil, nil, vk.NullFence)
}
