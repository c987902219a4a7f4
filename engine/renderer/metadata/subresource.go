package metadata

import "math"

/** @brief Count value meaning "every remaining mip level / array layer". */
const RemainingCount uint32 = math.MaxUint32

/**
 * @brief Addresses a rectangular set of subresources: a run of mip levels
 * crossed with a run of array layers.
 */
type SubresourceRange struct {
	BaseMipLevel   uint32
	LevelCount     uint32
	BaseArrayLayer uint32
	LayerCount     uint32
}

// AllSubresources covers every mip level and array layer of a resource.
func AllSubresources() SubresourceRange {
	return SubresourceRange{LevelCount: RemainingCount, LayerCount: RemainingCount}
}

// Subresource addresses exactly one (mip, layer) pair.
func Subresource(mip, layer uint32) SubresourceRange {
	return SubresourceRange{BaseMipLevel: mip, LevelCount: 1, BaseArrayLayer: layer, LayerCount: 1}
}

// MipRange covers levelCount mips starting at baseMip, on every layer.
func MipRange(baseMip, levelCount uint32) SubresourceRange {
	return SubresourceRange{BaseMipLevel: baseMip, LevelCount: levelCount, LayerCount: RemainingCount}
}

// Resolve clamps the range to a resource with the given dimensions. The
// returned range never extends past levels/layers; it may be empty.
func (r SubresourceRange) Resolve(levels, layers uint32) SubresourceRange {
	out := r
	if out.BaseMipLevel >= levels {
		out.LevelCount = 0
	} else if out.LevelCount > levels-out.BaseMipLevel {
		out.LevelCount = levels - out.BaseMipLevel
	}
	if out.BaseArrayLayer >= layers {
		out.LayerCount = 0
	} else if out.LayerCount > layers-out.BaseArrayLayer {
		out.LayerCount = layers - out.BaseArrayLayer
	}
	return out
}

// InBounds reports whether every subresource the range names exists in a
// levels x layers resource. RemainingCount always fits once the base does.
func (r SubresourceRange) InBounds(levels, layers uint32) bool {
	if r.BaseMipLevel >= levels || r.BaseArrayLayer >= layers {
		return false
	}
	if r.LevelCount != RemainingCount && r.LevelCount > levels-r.BaseMipLevel {
		return false
	}
	if r.LayerCount != RemainingCount && r.LayerCount > layers-r.BaseArrayLayer {
		return false
	}
	return true
}

func (r SubresourceRange) IsEmpty() bool {
	return r.LevelCount == 0 || r.LayerCount == 0
}

// Covers reports whether the range spans every subresource of a levels x layers resource.
func (r SubresourceRange) Covers(levels, layers uint32) bool {
	c := r.Resolve(levels, layers)
	return c.BaseMipLevel == 0 && c.BaseArrayLayer == 0 && c.LevelCount == levels && c.LayerCount == layers
}

// Contains reports whether (mip, layer) lies inside the range.
func (r SubresourceRange) Contains(mip, layer uint32) bool {
	return mip >= r.BaseMipLevel && mip-r.BaseMipLevel < r.LevelCount &&
		layer >= r.BaseArrayLayer && layer-r.BaseArrayLayer < r.LayerCount
}
