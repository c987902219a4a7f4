package renderer

import (
	"fmt"

	"github.com/spaghettifunk/anima-hal/engine/core"
	"github.com/spaghettifunk/anima-hal/engine/renderer/metadata"
)

// LazyBarrier records that a list needs a range of a resource in After
// before its first use. The before state is unknown while recording.
type LazyBarrier struct {
	Resource *Resource
	After    metadata.ResourceState
	Range    metadata.SubresourceRange
}

// ResolvedTransition is an exact transition of one subresource.
type ResolvedTransition struct {
	Resource   *Resource
	MipLevel   uint32
	ArrayLayer uint32
	Before     metadata.ResourceState
	After      metadata.ResourceState
}

func (t ResolvedTransition) String() string {
	return fmt.Sprintf("%s[%d,%d] %s->%s", t.Resource.Name(), t.MipLevel, t.ArrayLayer, t.Before, t.After)
}

// CommandList wraps a native list with the state it needs for barrier
// resolution: the lazy barriers it recorded and a private tracker per
// touched resource. A list is used by one goroutine at a time and needs no
// locking; different lists may be recorded concurrently.
type CommandList struct {
	native NativeCommandList
	open   bool

	lazy     []LazyBarrier
	trackers map[*Resource]*ResourceStateTracker
	touched  []*Resource // first-touch order

	fence      Fence
	fenceValue uint64
}

func NewCommandList(native NativeCommandList) *CommandList {
	return &CommandList{
		native:   native,
		trackers: make(map[*Resource]*ResourceStateTracker),
	}
}

func (cl *CommandList) Native() NativeCommandList { return cl.native }
func (cl *CommandList) IsOpen() bool              { return cl.open }

// FenceValue is the value the context signals once the last submission
// of this list has retired. Zero if it was never submitted.
func (cl *CommandList) FenceValue() uint64 { return cl.fenceValue }

// Open starts recording and forgets everything recorded before.
func (cl *CommandList) Open() error {
	if cl.open {
		return core.ErrCommandListOpen
	}
	if err := cl.native.Open(); err != nil {
		return err
	}
	cl.lazy = cl.lazy[:0]
	clear(cl.trackers)
	cl.touched = cl.touched[:0]
	cl.open = true
	return nil
}

func (cl *CommandList) Close() error {
	if !cl.open {
		return core.ErrCommandListNotOpen
	}
	cl.open = false
	return cl.native.Close()
}

// Reset blocks until the previous submission of the list has retired and
// then opens it again.
func (cl *CommandList) Reset() error {
	if cl.open {
		return core.ErrCommandListOpen
	}
	if cl.fence != nil && cl.fence.GetCompletedValue() < cl.fenceValue {
		if err := cl.fence.Wait(cl.fenceValue); err != nil {
			return err
		}
	}
	return cl.Open()
}

// UseResource declares that the following commands access rng of resource
// in state after. Subresources this list has not touched yet get a lazy
// barrier resolved at submission; subresources already in a different
// local state get an exact transition recorded right away.
func (cl *CommandList) UseResource(resource *Resource, after metadata.ResourceState, rng metadata.SubresourceRange) error {
	if !cl.open {
		return core.ErrCommandListNotOpen
	}
	if resource.IsDestroyed() {
		return fmt.Errorf("%w: %s", core.ErrResourceDestroyed, resource.Name())
	}
	if after == metadata.ResourceStateUnknown {
		return fmt.Errorf("%w: cannot transition to %s", core.ErrInvalidSubresource, after)
	}
	levels, layers := resource.GetLevelCount(), resource.GetLayerCount()
	if !rng.InBounds(levels, layers) {
		return fmt.Errorf("%w: %+v outside %dx%d %s", core.ErrInvalidSubresource, rng, levels, layers, resource.Name())
	}
	r := rng.Resolve(levels, layers)
	if r.IsEmpty() {
		return fmt.Errorf("%w: %+v of %s", core.ErrInvalidSubresource, rng, resource.Name())
	}

	local, ok := cl.trackers[resource]
	if !ok {
		local = newLocalStateTracker(levels, layers)
		cl.trackers[resource] = local
		cl.touched = append(cl.touched, resource)
	}

	if !local.IsPerSubresource() && local.GetResourceState() == metadata.ResourceStateUnknown {
		cl.lazy = append(cl.lazy, LazyBarrier{Resource: resource, After: after, Range: r})
		local.SetRangeState(r, after)
		return nil
	}

	var immediate []ResolvedTransition
	for mip := r.BaseMipLevel; mip < r.BaseMipLevel+r.LevelCount; mip++ {
		for layer := r.BaseArrayLayer; layer < r.BaseArrayLayer+r.LayerCount; layer++ {
			switch before := local.GetSubresourceState(mip, layer); before {
			case after:
			case metadata.ResourceStateUnknown:
				cl.lazy = append(cl.lazy, LazyBarrier{
					Resource: resource,
					After:    after,
					Range:    metadata.Subresource(mip, layer),
				})
			default:
				immediate = append(immediate, ResolvedTransition{
					Resource:   resource,
					MipLevel:   mip,
					ArrayLayer: layer,
					Before:     before,
					After:      after,
				})
			}
		}
	}
	if len(immediate) > 0 {
		cl.native.ResourceBarrier(immediate)
	}
	local.SetRangeState(r, after)
	return nil
}

// LazyBarriers returns the barriers waiting for submission, in record order.
func (cl *CommandList) LazyBarriers() []LazyBarrier {
	return cl.lazy
}

// ResourceStateTrackers returns the local tracker of every resource the
// list touched.
func (cl *CommandList) ResourceStateTrackers() map[*Resource]*ResourceStateTracker {
	return cl.trackers
}

// LocalState returns the state the list leaves (mip, layer) of resource in,
// or Unknown if it never touched it.
func (cl *CommandList) LocalState(resource *Resource, mip, layer uint32) metadata.ResourceState {
	if t, ok := cl.trackers[resource]; ok {
		return t.GetSubresourceState(mip, layer)
	}
	return metadata.ResourceStateUnknown
}

func (cl *CommandList) Destroy() {
	if cl.native != nil {
		cl.native.Destroy()
		cl.native = nil
	}
	clear(cl.trackers)
	cl.lazy, cl.touched = nil, nil
}
