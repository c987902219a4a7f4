package metadata

import "fmt"

/**
 * @brief The access state of a single subresource. States are mutually
 * exclusive: a subresource is in exactly one of them at any point of the
 * submission sequence.
 */
type ResourceState uint32

const (
	/** @brief Contents are undefined; the initial state of fresh textures. */
	ResourceStateUndefined ResourceState = iota
	ResourceStateCommon
	ResourceStateGenericRead
	ResourceStateRenderTarget
	ResourceStateDepthWrite
	ResourceStateDepthRead
	ResourceStateUnorderedAccess
	ResourceStatePixelShaderResource
	ResourceStateNonPixelShaderResource
	ResourceStateCopySource
	ResourceStateCopyDest
	ResourceStatePresent
	ResourceStateVertexAndConstantBuffer
	ResourceStateIndexBuffer
	ResourceStateRaytracingAccelerationStructure
	ResourceStateShadingRateSource
	/**
	 * @brief Only meaningful in a command list's local tracker: the list has
	 * not touched the subresource yet.
	 */
	ResourceStateUnknown
)

var resourceStateNames = [...]string{
	ResourceStateUndefined:                       "Undefined",
	ResourceStateCommon:                          "Common",
	ResourceStateGenericRead:                     "GenericRead",
	ResourceStateRenderTarget:                    "RenderTarget",
	ResourceStateDepthWrite:                      "DepthWrite",
	ResourceStateDepthRead:                       "DepthRead",
	ResourceStateUnorderedAccess:                 "UnorderedAccess",
	ResourceStatePixelShaderResource:             "PixelShaderResource",
	ResourceStateNonPixelShaderResource:          "NonPixelShaderResource",
	ResourceStateCopySource:                      "CopySource",
	ResourceStateCopyDest:                        "CopyDest",
	ResourceStatePresent:                         "Present",
	ResourceStateVertexAndConstantBuffer:         "VertexAndConstantBuffer",
	ResourceStateIndexBuffer:                     "IndexBuffer",
	ResourceStateRaytracingAccelerationStructure: "RaytracingAccelerationStructure",
	ResourceStateShadingRateSource:               "ShadingRateSource",
	ResourceStateUnknown:                         "Unknown",
}

func (s ResourceState) String() string {
	if int(s) < len(resourceStateNames) {
		return resourceStateNames[s]
	}
	return fmt.Sprintf("ResourceState(%d)", uint32(s))
}

// IsWrite reports whether the state allows the GPU to write the subresource.
func (s ResourceState) IsWrite() bool {
	switch s {
	case ResourceStateRenderTarget, ResourceStateDepthWrite, ResourceStateUnorderedAccess,
		ResourceStateCopyDest, ResourceStateRaytracingAccelerationStructure:
		return true
	}
	return false
}
