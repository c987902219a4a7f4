package wgpu

import (
	"github.com/gogpu/gputypes"

	"github.com/spaghettifunk/anima-hal/engine/renderer/metadata"
)

// usageInfo is what a resource state means to a hal barrier. WebGPU usages
// are coarser than resource states, so several states share a usage.
type usageInfo struct {
	texture gputypes.TextureUsage
	buffer  gputypes.BufferUsage
}

var usageTable = map[metadata.ResourceState]usageInfo{
	metadata.ResourceStateUndefined: {},
	metadata.ResourceStateCommon: {
		texture: gputypes.TextureUsageStorageBinding,
		buffer:  gputypes.BufferUsageStorage,
	},
	metadata.ResourceStateGenericRead: {
		texture: gputypes.TextureUsageCopySrc | gputypes.TextureUsageTextureBinding,
		buffer: gputypes.BufferUsageCopySrc | gputypes.BufferUsageUniform | gputypes.BufferUsageVertex |
			gputypes.BufferUsageIndex | gputypes.BufferUsageIndirect,
	},
	metadata.ResourceStateRenderTarget: {
		texture: gputypes.TextureUsageRenderAttachment,
	},
	metadata.ResourceStateDepthWrite: {
		texture: gputypes.TextureUsageRenderAttachment,
	},
	metadata.ResourceStateDepthRead: {
		texture: gputypes.TextureUsageTextureBinding,
	},
	metadata.ResourceStateUnorderedAccess: {
		texture: gputypes.TextureUsageStorageBinding,
		buffer:  gputypes.BufferUsageStorage,
	},
	metadata.ResourceStatePixelShaderResource: {
		texture: gputypes.TextureUsageTextureBinding,
		buffer:  gputypes.BufferUsageStorage,
	},
	metadata.ResourceStateNonPixelShaderResource: {
		texture: gputypes.TextureUsageTextureBinding,
		buffer:  gputypes.BufferUsageStorage,
	},
	metadata.ResourceStateCopySource: {
		texture: gputypes.TextureUsageCopySrc,
		buffer:  gputypes.BufferUsageCopySrc,
	},
	metadata.ResourceStateCopyDest: {
		texture: gputypes.TextureUsageCopyDst,
		buffer:  gputypes.BufferUsageCopyDst,
	},
	// The hal queue moves surface textures into the present layout itself.
	metadata.ResourceStatePresent: {},
	metadata.ResourceStateVertexAndConstantBuffer: {
		buffer: gputypes.BufferUsageVertex | gputypes.BufferUsageUniform,
	},
	metadata.ResourceStateIndexBuffer: {
		buffer: gputypes.BufferUsageIndex,
	},
	metadata.ResourceStateRaytracingAccelerationStructure: {
		buffer: gputypes.BufferUsageStorage,
	},
	metadata.ResourceStateShadingRateSource: {
		texture: gputypes.TextureUsageTextureBinding,
	},
}

func translateState(s metadata.ResourceState) (usageInfo, bool) {
	u, ok := usageTable[s]
	return u, ok
}

var formatTable = map[metadata.Format]gputypes.TextureFormat{
	metadata.FormatRGBA8Unorm:     gputypes.TextureFormatRGBA8Unorm,
	metadata.FormatBGRA8Unorm:     gputypes.TextureFormatBGRA8Unorm,
	metadata.FormatRGBA16Float:    gputypes.TextureFormatRGBA16Float,
	metadata.FormatRGBA32Float:    gputypes.TextureFormatRGBA32Float,
	metadata.FormatR32Float:       gputypes.TextureFormatR32Float,
	metadata.FormatD32Float:       gputypes.TextureFormatDepth32Float,
	metadata.FormatD24UnormS8Uint: gputypes.TextureFormatDepth24PlusStencil8,
}

func toTextureFormat(f metadata.Format) gputypes.TextureFormat {
	return formatTable[f]
}

func fromTextureFormat(f gputypes.TextureFormat) metadata.Format {
	for k, v := range formatTable {
		if v == f {
			return k
		}
	}
	return metadata.FormatUndefined
}

func aspectOf(viewType metadata.ViewType, f metadata.Format) gputypes.TextureAspect {
	if f.IsDepth() && viewType != metadata.ViewTypeDepthStencil {
		return gputypes.TextureAspectDepthOnly
	}
	return gputypes.TextureAspectAll
}

func textureUsage(flags metadata.BindFlag) gputypes.TextureUsage {
	var u gputypes.TextureUsage
	if flags&metadata.BindFlagShaderResource != 0 {
		u |= gputypes.TextureUsageTextureBinding
	}
	if flags&metadata.BindFlagUnorderedAccess != 0 {
		u |= gputypes.TextureUsageStorageBinding
	}
	if flags&(metadata.BindFlagRenderTarget|metadata.BindFlagDepthStencil) != 0 {
		u |= gputypes.TextureUsageRenderAttachment
	}
	if flags&metadata.BindFlagCopySource != 0 {
		u |= gputypes.TextureUsageCopySrc
	}
	if flags&metadata.BindFlagCopyDest != 0 {
		u |= gputypes.TextureUsageCopyDst
	}
	if u == 0 {
		u = gputypes.TextureUsageTextureBinding
	}
	return u
}

func bufferUsage(flags metadata.BindFlag) gputypes.BufferUsage {
	var u gputypes.BufferUsage
	if flags&metadata.BindFlagVertexBuffer != 0 {
		u |= gputypes.BufferUsageVertex
	}
	if flags&metadata.BindFlagIndexBuffer != 0 {
		u |= gputypes.BufferUsageIndex
	}
	if flags&metadata.BindFlagConstantBuffer != 0 {
		u |= gputypes.BufferUsageUniform
	}
	if flags&(metadata.BindFlagShaderResource|metadata.BindFlagUnorderedAccess|metadata.BindFlagAccelerationStructure) != 0 {
		u |= gputypes.BufferUsageStorage
	}
	if flags&metadata.BindFlagCopySource != 0 {
		u |= gputypes.BufferUsageCopySrc
	}
	if flags&metadata.BindFlagCopyDest != 0 {
		u |= gputypes.BufferUsageCopyDst
	}
	if u == 0 {
		u = gputypes.BufferUsageStorage
	}
	return u
}

// bindable reports whether views of this type can sit in a bind group.
func bindable(vt metadata.ViewType) bool {
	switch vt {
	case metadata.ViewTypeRenderTarget, metadata.ViewTypeDepthStencil,
		metadata.ViewTypeShadingRateSource, metadata.ViewTypeAccelerationStructure,
		metadata.ViewTypeUnknown:
		return false
	}
	return true
}

func deviceTypeName(t gputypes.DeviceType) string {
	switch t {
	case gputypes.DeviceTypeIntegratedGPU:
		return "integrated"
	case gputypes.DeviceTypeDiscreteGPU:
		return "discrete"
	case gputypes.DeviceTypeVirtualGPU:
		return "virtual"
	case gputypes.DeviceTypeCPU:
		return "cpu"
	}
	return "other"
}
