package renderer

import (
	"fmt"

	"github.com/spaghettifunk/anima-hal/engine/core"
	"github.com/spaghettifunk/anima-hal/engine/renderer/metadata"
)

// ResourceStateTracker stores the state of every subresource of a resource.
// It starts as a single uniform state and is promoted to a per-subresource
// table the first time one subresource diverges. The promotion is never
// undone.
type ResourceStateTracker struct {
	levels  uint32
	layers  uint32
	uniform metadata.ResourceState
	// nil while uniform; indexed mip*layers + layer
	table []metadata.ResourceState
}

func NewResourceStateTracker(levels, layers uint32) *ResourceStateTracker {
	if levels == 0 {
		levels = 1
	}
	if layers == 0 {
		layers = 1
	}
	return &ResourceStateTracker{
		levels:  levels,
		layers:  layers,
		uniform: metadata.ResourceStateUndefined,
	}
}

func newLocalStateTracker(levels, layers uint32) *ResourceStateTracker {
	t := NewResourceStateTracker(levels, layers)
	t.uniform = metadata.ResourceStateUnknown
	return t
}

func (t *ResourceStateTracker) Levels() uint32 { return t.levels }
func (t *ResourceStateTracker) Layers() uint32 { return t.layers }

// IsPerSubresource reports whether the tracker has been promoted.
func (t *ResourceStateTracker) IsPerSubresource() bool { return t.table != nil }

// HasResourceState reports whether every subresource shares one state.
func (t *ResourceStateTracker) HasResourceState() bool {
	if t.table == nil {
		return true
	}
	first := t.table[0]
	for _, s := range t.table[1:] {
		if s != first {
			return false
		}
	}
	return true
}

// GetResourceState returns the uniform state. Only meaningful when
// HasResourceState is true.
func (t *ResourceStateTracker) GetResourceState() metadata.ResourceState {
	if t.table == nil {
		return t.uniform
	}
	return t.table[0]
}

func (t *ResourceStateTracker) SetResourceState(state metadata.ResourceState) {
	t.uniform = state
	for i := range t.table {
		t.table[i] = state
	}
}

// GetSubresourceState returns the state of one subresource. It panics with
// core.ErrInvalidSubresource when (mip, layer) is outside the resource; use
// Contains to check first.
func (t *ResourceStateTracker) GetSubresourceState(mip, layer uint32) metadata.ResourceState {
	if t.table == nil {
		return t.uniform
	}
	return t.table[t.index(mip, layer)]
}

// SetSubresourceState writes the state of one subresource, promoting the
// tracker when it diverges from the uniform state. Like GetSubresourceState
// it panics when (mip, layer) is outside the resource.
func (t *ResourceStateTracker) SetSubresourceState(mip, layer uint32, state metadata.ResourceState) {
	if t.table == nil {
		if state == t.uniform {
			return
		}
		t.promote()
	}
	t.table[t.index(mip, layer)] = state
}

// SetRangeState writes state into every subresource of r. A range covering
// the whole resource keeps the uniform representation.
func (t *ResourceStateTracker) SetRangeState(r metadata.SubresourceRange, state metadata.ResourceState) {
	if r.Covers(t.levels, t.layers) {
		t.SetResourceState(state)
		return
	}
	r = r.Resolve(t.levels, t.layers)
	for mip := r.BaseMipLevel; mip < r.BaseMipLevel+r.LevelCount; mip++ {
		for layer := r.BaseArrayLayer; layer < r.BaseArrayLayer+r.LayerCount; layer++ {
			t.SetSubresourceState(mip, layer, state)
		}
	}
}

// Contains reports whether (mip, layer) addresses a subresource of the tracker.
func (t *ResourceStateTracker) Contains(mip, layer uint32) bool {
	return mip < t.levels && layer < t.layers
}

// snapshot copies the tracker so a failed submission can put it back.
func (t *ResourceStateTracker) snapshot() ResourceStateTracker {
	c := *t
	if t.table != nil {
		c.table = append([]metadata.ResourceState(nil), t.table...)
	}
	return c
}

func (t *ResourceStateTracker) restore(s ResourceStateTracker) {
	t.uniform = s.uniform
	t.table = s.table
}

func (t *ResourceStateTracker) promote() {
	t.table = make([]metadata.ResourceState, int(t.levels)*int(t.layers))
	for i := range t.table {
		t.table[i] = t.uniform
	}
}

func (t *ResourceStateTracker) index(mip, layer uint32) int {
	if !t.Contains(mip, layer) {
		panic(fmt.Errorf("%w: (%d, %d) outside %dx%d", core.ErrInvalidSubresource, mip, layer, t.levels, t.layers))
	}
	return int(mip)*int(t.layers) + int(layer)
}
