package renderer

import (
	"github.com/spaghettifunk/anima-hal/engine/core"
	"github.com/spaghettifunk/anima-hal/engine/renderer/metadata"
)

// ResolveLazyBarriers turns the lazy barriers of list into exact
// transitions, reading before states from the global trackers as they are
// now. Subresources already in the requested state produce nothing.
func ResolveLazyBarriers(list *CommandList) []ResolvedTransition {
	var out []ResolvedTransition
	for _, b := range list.lazy {
		if b.Resource.IsDestroyed() {
			core.LogWarn("skipping barrier on destroyed resource %s", b.Resource.Name())
			continue
		}
		global := b.Resource.GetGlobalResourceStateTracker()
		r := b.Range
		if global.HasResourceState() && r.Covers(global.Levels(), global.Layers()) &&
			global.GetResourceState() == b.After {
			continue
		}
		for mip := r.BaseMipLevel; mip < r.BaseMipLevel+r.LevelCount; mip++ {
			for layer := r.BaseArrayLayer; layer < r.BaseArrayLayer+r.LayerCount; layer++ {
				before := global.GetSubresourceState(mip, layer)
				if before == b.After {
					continue
				}
				out = append(out, ResolvedTransition{
					Resource:   b.Resource,
					MipLevel:   mip,
					ArrayLayer: layer,
					Before:     before,
					After:      b.After,
				})
			}
		}
	}
	return out
}

// CommitLocalState copies the final local state of every touched
// subresource into the global trackers. Subresources the list never
// touched are left alone.
func CommitLocalState(list *CommandList) {
	for _, res := range list.touched {
		if res.IsDestroyed() {
			continue
		}
		local := list.trackers[res]
		global := res.GetGlobalResourceStateTracker()
		if local.HasResourceState() {
			if s := local.GetResourceState(); s != metadata.ResourceStateUnknown {
				global.SetResourceState(s)
			}
			continue
		}
		for mip := uint32(0); mip < local.Levels(); mip++ {
			for layer := uint32(0); layer < local.Layers(); layer++ {
				if s := local.GetSubresourceState(mip, layer); s != metadata.ResourceStateUnknown {
					global.SetSubresourceState(mip, layer, s)
				}
			}
		}
	}
}
