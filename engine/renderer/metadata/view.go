package metadata

import "fmt"

/** @brief How a view exposes its resource to the pipeline. */
type ViewType int

const (
	ViewTypeUnknown ViewType = iota
	ViewTypeConstantBuffer
	ViewTypeSampler
	ViewTypeTexture
	ViewTypeRWTexture
	ViewTypeAccelerationStructure
	ViewTypeBuffer
	ViewTypeRWBuffer
	ViewTypeStructuredBuffer
	ViewTypeRWStructuredBuffer
	ViewTypeByteAddressBuffer
	ViewTypeRWByteAddressBuffer
	ViewTypeRenderTarget
	ViewTypeDepthStencil
	ViewTypeShadingRateSource
)

var viewTypeNames = [...]string{
	ViewTypeUnknown:               "Unknown",
	ViewTypeConstantBuffer:        "ConstantBuffer",
	ViewTypeSampler:               "Sampler",
	ViewTypeTexture:               "Texture",
	ViewTypeRWTexture:             "RWTexture",
	ViewTypeAccelerationStructure: "AccelerationStructure",
	ViewTypeBuffer:                "Buffer",
	ViewTypeRWBuffer:              "RWBuffer",
	ViewTypeStructuredBuffer:      "StructuredBuffer",
	ViewTypeRWStructuredBuffer:    "RWStructuredBuffer",
	ViewTypeByteAddressBuffer:     "ByteAddressBuffer",
	ViewTypeRWByteAddressBuffer:   "RWByteAddressBuffer",
	ViewTypeRenderTarget:          "RenderTarget",
	ViewTypeDepthStencil:          "DepthStencil",
	ViewTypeShadingRateSource:     "ShadingRateSource",
}

func (v ViewType) String() string {
	if v >= 0 && int(v) < len(viewTypeNames) {
		return viewTypeNames[v]
	}
	return fmt.Sprintf("ViewType(%d)", int(v))
}

/** @brief Heap category a descriptor lives in. */
type DescriptorCategory int

const (
	DescriptorCategorySRV DescriptorCategory = iota
	DescriptorCategoryUAV
	DescriptorCategoryCBV
	DescriptorCategorySampler
	DescriptorCategoryRTV
	DescriptorCategoryDSV

	DescriptorCategoryCount
)

func (c DescriptorCategory) String() string {
	switch c {
	case DescriptorCategorySRV:
		return "SRV"
	case DescriptorCategoryUAV:
		return "UAV"
	case DescriptorCategoryCBV:
		return "CBV"
	case DescriptorCategorySampler:
		return "Sampler"
	case DescriptorCategoryRTV:
		return "RTV"
	case DescriptorCategoryDSV:
		return "DSV"
	}
	return fmt.Sprintf("DescriptorCategory(%d)", int(c))
}

// DescriptorCategoryOf maps a view type to the heap category its descriptor
// is allocated from. The second result is false for view types that need no
// descriptor (shading-rate sources are bound directly).
func DescriptorCategoryOf(v ViewType) (DescriptorCategory, bool) {
	switch v {
	case ViewTypeTexture, ViewTypeBuffer, ViewTypeStructuredBuffer,
		ViewTypeByteAddressBuffer, ViewTypeAccelerationStructure:
		return DescriptorCategorySRV, true
	case ViewTypeRWTexture, ViewTypeRWBuffer, ViewTypeRWStructuredBuffer, ViewTypeRWByteAddressBuffer:
		return DescriptorCategoryUAV, true
	case ViewTypeConstantBuffer:
		return DescriptorCategoryCBV, true
	case ViewTypeSampler:
		return DescriptorCategorySampler, true
	case ViewTypeRenderTarget:
		return DescriptorCategoryRTV, true
	case ViewTypeDepthStencil:
		return DescriptorCategoryDSV, true
	}
	return 0, false
}

/**
 * @brief Describes a view of a resource. The subresource window is clamped
 * to the resource when the view is created.
 */
type ViewDesc struct {
	ViewType ViewType
	Format   Format
	SubresourceRange
	/** @brief Buffer views: offset and size in bytes. */
	Offset uint64
	Size   uint64
	/** @brief Structured buffer element stride. */
	StructureStride uint32
	/** @brief Also publish the view in the bindless table. */
	Bindless bool
}
