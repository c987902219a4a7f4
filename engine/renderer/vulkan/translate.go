package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-hal/engine/renderer/metadata"
)

// stateInfo is what a resource state means to a pipeline barrier.
type stateInfo struct {
	layout vk.ImageLayout
	access vk.AccessFlagBits
	stage  vk.PipelineStageFlagBits
}

var stateTable = map[metadata.ResourceState]stateInfo{
	metadata.ResourceStateUndefined: {
		layout: vk.ImageLayoutUndefined,
		stage:  vk.PipelineStageTopOfPipeBit,
	},
	metadata.ResourceStateCommon: {
		layout: vk.ImageLayoutGeneral,
		access: vk.AccessMemoryReadBit | vk.AccessMemoryWriteBit,
		stage:  vk.PipelineStageAllCommandsBit,
	},
	metadata.ResourceStateGenericRead: {
		layout: vk.ImageLayoutGeneral,
		access: vk.AccessShaderReadBit | vk.AccessTransferReadBit | vk.AccessUniformReadBit |
			vk.AccessVertexAttributeReadBit | vk.AccessIndexReadBit | vk.AccessIndirectCommandReadBit,
		stage: vk.PipelineStageAllCommandsBit,
	},
	metadata.ResourceStateRenderTarget: {
		layout: vk.ImageLayoutColorAttachmentOptimal,
		access: vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit,
		stage:  vk.PipelineStageColorAttachmentOutputBit,
	},
	metadata.ResourceStateDepthWrite: {
		layout: vk.ImageLayoutDepthStencilAttachmentOptimal,
		access: vk.AccessDepthStencilAttachmentReadBit | vk.AccessDepthStencilAttachmentWriteBit,
		stage:  vk.PipelineStageEarlyFragmentTestsBit | vk.PipelineStageLateFragmentTestsBit,
	},
	metadata.ResourceStateDepthRead: {
		layout: vk.ImageLayoutDepthStencilReadOnlyOptimal,
		access: vk.AccessDepthStencilAttachmentReadBit | vk.AccessShaderReadBit,
		stage:  vk.PipelineStageEarlyFragmentTestsBit | vk.PipelineStageLateFragmentTestsBit | vk.PipelineStageFragmentShaderBit,
	},
	metadata.ResourceStateUnorderedAccess: {
		layout: vk.ImageLayoutGeneral,
		access: vk.AccessShaderReadBit | vk.AccessShaderWriteBit,
		stage:  vk.PipelineStageComputeShaderBit | vk.PipelineStageFragmentShaderBit,
	},
	metadata.ResourceStatePixelShaderResource: {
		layout: vk.ImageLayoutShaderReadOnlyOptimal,
		access: vk.AccessShaderReadBit,
		stage:  vk.PipelineStageFragmentShaderBit,
	},
	metadata.ResourceStateNonPixelShaderResource: {
		layout: vk.ImageLayoutShaderReadOnlyOptimal,
		access: vk.AccessShaderReadBit,
		stage:  vk.PipelineStageVertexShaderBit | vk.PipelineStageComputeShaderBit,
	},
	metadata.ResourceStateCopySource: {
		layout: vk.ImageLayoutTransferSrcOptimal,
		access: vk.AccessTransferReadBit,
		stage:  vk.PipelineStageTransferBit,
	},
	metadata.ResourceStateCopyDest: {
		layout: vk.ImageLayoutTransferDstOptimal,
		access: vk.AccessTransferWriteBit,
		stage:  vk.PipelineStageTransferBit,
	},
	metadata.ResourceStatePresent: {
		layout: vk.ImageLayoutPresentSrc,
		stage:  vk.PipelineStageBottomOfPipeBit,
	},
	metadata.ResourceStateVertexAndConstantBuffer: {
		layout: vk.ImageLayoutGeneral,
		access: vk.AccessVertexAttributeReadBit | vk.AccessUniformReadBit,
		stage:  vk.PipelineStageVertexInputBit | vk.PipelineStageVertexShaderBit | vk.PipelineStageFragmentShaderBit,
	},
	metadata.ResourceStateIndexBuffer: {
		layout: vk.ImageLayoutGeneral,
		access: vk.AccessIndexReadBit,
		stage:  vk.PipelineStageVertexInputBit,
	},
	// Acceleration structures and shading-rate images are only reachable
	// through extensions this backend does not enable; both are treated as
	// plain shader storage.
	metadata.ResourceStateRaytracingAccelerationStructure: {
		layout: vk.ImageLayoutGeneral,
		access: vk.AccessShaderReadBit | vk.AccessShaderWriteBit,
		stage:  vk.PipelineStageComputeShaderBit,
	},
	metadata.ResourceStateShadingRateSource: {
		layout: vk.ImageLayoutGeneral,
		access: vk.AccessShaderReadBit,
		stage:  vk.PipelineStageFragmentShaderBit,
	},
}

// translateState maps a core state. Unknown never reaches a backend; it is
// reported as not ok.
func translateState(s metadata.ResourceState) (stateInfo, bool) {
	info, ok := stateTable[s]
	return info, ok
}

var formatTable = map[metadata.Format]vk.Format{
	metadata.FormatRGBA8Unorm:     vk.FormatR8g8b8a8Unorm,
	metadata.FormatBGRA8Unorm:     vk.FormatB8g8r8a8Unorm,
	metadata.FormatRGBA16Float:    vk.FormatR16g16b16a16Sfloat,
	metadata.FormatRGBA32Float:    vk.FormatR32g32b32a32Sfloat,
	metadata.FormatR32Float:       vk.FormatR32Sfloat,
	metadata.FormatD32Float:       vk.FormatD32Sfloat,
	metadata.FormatD24UnormS8Uint: vk.FormatD24UnormS8Uint,
}

func toVkFormat(f metadata.Format) vk.Format {
	if v, ok := formatTable[f]; ok {
		return v
	}
	return vk.FormatUndefined
}

func fromVkFormat(f vk.Format) metadata.Format {
	for k, v := range formatTable {
		if v == f {
			return k
		}
	}
	return metadata.FormatUndefined
}

func aspectOf(f metadata.Format) vk.ImageAspectFlagBits {
	switch f {
	case metadata.FormatD32Float:
		return vk.ImageAspectDepthBit
	case metadata.FormatD24UnormS8Uint:
		return vk.ImageAspectDepthBit | vk.ImageAspectStencilBit
	}
	return vk.ImageAspectColorBit
}

func imageUsage(flags metadata.BindFlag) vk.ImageUsageFlagBits {
	var usage vk.ImageUsageFlagBits
	if flags&metadata.BindFlagShaderResource != 0 {
		usage |= vk.ImageUsageSampledBit
	}
	if flags&metadata.BindFlagUnorderedAccess != 0 {
		usage |= vk.ImageUsageStorageBit
	}
	if flags&metadata.BindFlagRenderTarget != 0 {
		usage |= vk.ImageUsageColorAttachmentBit
	}
	if flags&metadata.BindFlagDepthStencil != 0 {
		usage |= vk.ImageUsageDepthStencilAttachmentBit
	}
	if flags&metadata.BindFlagCopySource != 0 {
		usage |= vk.ImageUsageTransferSrcBit
	}
	if flags&metadata.BindFlagCopyDest != 0 {
		usage |= vk.ImageUsageTransferDstBit
	}
	if usage == 0 {
		usage = vk.ImageUsageSampledBit
	}
	return usage
}

func bufferUsage(flags metadata.BindFlag) vk.BufferUsageFlagBits {
	var usage vk.BufferUsageFlagBits
	if flags&metadata.BindFlagVertexBuffer != 0 {
		usage |= vk.BufferUsageVertexBufferBit
	}
	if flags&metadata.BindFlagIndexBuffer != 0 {
		usage |= vk.BufferUsageIndexBufferBit
	}
	if flags&metadata.BindFlagConstantBuffer != 0 {
		usage |= vk.BufferUsageUniformBufferBit
	}
	if flags&metadata.BindFlagShaderResource != 0 {
		usage |= vk.BufferUsageStorageBufferBit | vk.BufferUsageUniformTexelBufferBit
	}
	if flags&metadata.BindFlagUnorderedAccess != 0 {
		usage |= vk.BufferUsageStorageBufferBit | vk.BufferUsageStorageTexelBufferBit
	}
	if flags&metadata.BindFlagCopySource != 0 {
		usage |= vk.BufferUsageTransferSrcBit
	}
	if flags&metadata.BindFlagCopyDest != 0 {
		usage |= vk.BufferUsageTransferDstBit
	}
	if usage == 0 {
		usage = vk.BufferUsageStorageBufferBit
	}
	return usage
}

// descriptorTypeOf reports the shader-visible descriptor type of a view.
// Attachment views and acceleration structures have none.
func descriptorTypeOf(vt metadata.ViewType) (vk.DescriptorType, bool) {
	switch vt {
	case metadata.ViewTypeConstantBuffer:
		return vk.DescriptorTypeUniformBuffer, true
	case metadata.ViewTypeSampler:
		return vk.DescriptorTypeSampler, true
	case metadata.ViewTypeTexture:
		return vk.DescriptorTypeSampledImage, true
	case metadata.ViewTypeRWTexture:
		return vk.DescriptorTypeStorageImage, true
	case metadata.ViewTypeBuffer:
		return vk.DescriptorTypeUniformTexelBuffer, true
	case metadata.ViewTypeRWBuffer:
		return vk.DescriptorTypeStorageTexelBuffer, true
	case metadata.ViewTypeStructuredBuffer, metadata.ViewTypeRWStructuredBuffer,
		metadata.ViewTypeByteAddressBuffer, metadata.ViewTypeRWByteAddressBuffer:
		return vk.DescriptorTypeStorageBuffer, true
	}
	return 0, false
}

// imageLayoutOfView is the layout a view's image is expected in when read
// through a descriptor.
func imageLayoutOfView(vt metadata.ViewType) vk.ImageLayout {
	switch vt {
	case metadata.ViewTypeRWTexture:
		return vk.ImageLayoutGeneral
	case metadata.ViewTypeRenderTarget:
		return vk.ImageLayoutColorAttachmentOptimal
	case metadata.ViewTypeDepthStencil:
		return vk.ImageLayoutDepthStencilAttachmentOptimal
	}
	return vk.ImageLayoutShaderReadOnlyOptimal
}

// presentMode picks FIFO for vsync, otherwise the lowest latency mode the
// surface offers.
func presentMode(vsync bool, available []vk.PresentMode) vk.PresentMode {
	if vsync {
		return vk.PresentModeFifo
	}
	best := vk.PresentModeFifo
	for _, m := range available {
		if m == vk.PresentModeMailbox {
			return m
		}
		if m == vk.PresentModeImmediate {
			best = m
		}
	}
	return best
}
