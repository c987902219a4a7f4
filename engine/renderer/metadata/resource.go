package metadata

import "fmt"

type ResourceType int

/** @brief Kinds of GPU resources the core tracks. */
const (
	ResourceTypeUnknown ResourceType = iota
	ResourceTypeBuffer
	ResourceTypeTexture
	ResourceTypeSampler
	ResourceTypeAccelerationStructure
)

func (t ResourceType) String() string {
	switch t {
	case ResourceTypeBuffer:
		return "Buffer"
	case ResourceTypeTexture:
		return "Texture"
	case ResourceTypeSampler:
		return "Sampler"
	case ResourceTypeAccelerationStructure:
		return "AccelerationStructure"
	}
	return fmt.Sprintf("ResourceType(%d)", int(t))
}

/** @brief Pixel formats understood by every backend. */
type Format int

const (
	FormatUndefined Format = iota
	FormatRGBA8Unorm
	FormatBGRA8Unorm
	FormatRGBA16Float
	FormatRGBA32Float
	FormatR32Float
	FormatD32Float
	FormatD24UnormS8Uint
)

// IsDepth reports whether the format has a depth aspect.
func (f Format) IsDepth() bool {
	return f == FormatD32Float || f == FormatD24UnormS8Uint
}

/** @brief Bind flags describing how a resource may be used. */
type BindFlag uint32

const (
	BindFlagVertexBuffer BindFlag = 1 << iota
	BindFlagIndexBuffer
	BindFlagConstantBuffer
	BindFlagShaderResource
	BindFlagUnorderedAccess
	BindFlagRenderTarget
	BindFlagDepthStencil
	BindFlagCopySource
	BindFlagCopyDest
	BindFlagAccelerationStructure
)

/**
 * @brief Everything a backend needs to create a resource and everything
 * the core needs to track it.
 */
type ResourceDesc struct {
	/** @brief Debug name, shown in logs. */
	Name      string
	Type      ResourceType
	Format    Format
	BindFlags BindFlag
	Width     uint32
	Height    uint32
	/** @brief Buffer size in bytes; ignored for textures. */
	Size uint64
	/** @brief Number of mip levels; zero is treated as one. */
	LevelCount uint32
	/** @brief Number of array layers; zero is treated as one. */
	LayerCount uint32
	/** @brief State every subresource starts in. */
	InitialState ResourceState
}

// Levels returns the mip count, treating zero as one.
func (d ResourceDesc) Levels() uint32 {
	if d.LevelCount == 0 {
		return 1
	}
	return d.LevelCount
}

// Layers returns the layer count, treating zero as one.
func (d ResourceDesc) Layers() uint32 {
	if d.LayerCount == 0 {
		return 1
	}
	return d.LayerCount
}
