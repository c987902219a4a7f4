package renderer

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/spaghettifunk/anima-hal/engine/core"
	"github.com/spaghettifunk/anima-hal/engine/renderer/metadata"
)

// Resource wraps a backend handle together with its authoritative state
// tracker. It is reference counted: every pass that shares it calls Acquire
// and Release, and the last Release destroys the native handle and every
// view still registered on it.
type Resource struct {
	id     uuid.UUID
	desc   metadata.ResourceDesc
	native NativeResource
	global *ResourceStateTracker

	refs      atomic.Int32
	destroyed atomic.Bool

	mu    sync.Mutex
	views map[*View]struct{}
}

// NewResource takes ownership of native. The returned resource holds one
// reference and every subresource starts in desc.InitialState.
func NewResource(native NativeResource, desc metadata.ResourceDesc) *Resource {
	r := &Resource{
		id:     uuid.New(),
		desc:   desc,
		native: native,
		global: NewResourceStateTracker(desc.Levels(), desc.Layers()),
		views:  make(map[*View]struct{}),
	}
	r.global.SetResourceState(desc.InitialState)
	r.refs.Store(1)
	return r
}

func (r *Resource) ID() uuid.UUID               { return r.id }
func (r *Resource) Name() string                { return r.desc.Name }
func (r *Resource) Type() metadata.ResourceType { return r.desc.Type }
func (r *Resource) Desc() metadata.ResourceDesc { return r.desc }
func (r *Resource) Native() NativeResource      { return r.native }
func (r *Resource) GetLevelCount() uint32       { return r.global.Levels() }
func (r *Resource) GetLayerCount() uint32       { return r.global.Layers() }
func (r *Resource) RefCount() int32             { return r.refs.Load() }
func (r *Resource) IsDestroyed() bool           { return r.destroyed.Load() }

// GetGlobalResourceStateTracker returns the tracker that reflects the most
// recently submitted state. Only the submitting goroutine may mutate it.
func (r *Resource) GetGlobalResourceStateTracker() *ResourceStateTracker {
	return r.global
}

// SetInitialState overwrites the state of every subresource. Used for
// resources whose first state is dictated by the backend, such as
// swapchain images.
func (r *Resource) SetInitialState(state metadata.ResourceState) {
	r.global.SetResourceState(state)
}

// Acquire adds a reference and returns r for chaining.
func (r *Resource) Acquire() *Resource {
	if r.destroyed.Load() {
		core.LogWarn("acquiring destroyed resource %s (%s)", r.desc.Name, r.id)
		return r
	}
	r.refs.Add(1)
	return r
}

// Release drops a reference and returns how many remain. The resource is
// destroyed when the count reaches zero.
func (r *Resource) Release() int32 {
	n := r.refs.Add(-1)
	if n == 0 {
		r.destroy()
	}
	if n < 0 {
		core.LogWarn("resource %s (%s) released more times than acquired", r.desc.Name, r.id)
		r.refs.Store(0)
		return 0
	}
	return n
}

func (r *Resource) destroy() {
	if !r.destroyed.CompareAndSwap(false, true) {
		return
	}
	r.mu.Lock()
	views := make([]*View, 0, len(r.views))
	for v := range r.views {
		views = append(views, v)
	}
	r.views = map[*View]struct{}{}
	r.mu.Unlock()

	for _, v := range views {
		v.Destroy()
	}
	if r.native != nil {
		r.native.Destroy()
	}
	core.LogDebug("resource %s (%s) destroyed, %d views invalidated", r.desc.Name, r.id, len(views))
}

func (r *Resource) attachView(v *View) {
	r.mu.Lock()
	r.views[v] = struct{}{}
	r.mu.Unlock()
}

func (r *Resource) detachView(v *View) {
	r.mu.Lock()
	delete(r.views, v)
	r.mu.Unlock()
}

// ViewCount is the number of live views created on the resource.
func (r *Resource) ViewCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}
