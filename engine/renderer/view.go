package renderer

import (
	"sync"
	"weak"

	"github.com/google/uuid"

	"github.com/spaghettifunk/anima-hal/engine/core"
	"github.com/spaghettifunk/anima-hal/engine/math"
	"github.com/spaghettifunk/anima-hal/engine/renderer/metadata"
)

// View binds a resource for shader or attachment access. It keeps only a
// weak reference to its resource; the resource tracks its views so it can
// free their descriptors when it goes away.
type View struct {
	id       uuid.UUID
	desc     metadata.ViewDesc
	resource weak.Pointer[Resource]
	native   NativeView

	pool      *DescriptorPool
	handle    DescriptorHandle
	hasHandle bool
	bindless  *BindlessViewPool

	mu        sync.Mutex
	destroyed bool
}

// clampViewDesc limits the subresource window of desc to what the resource has.
func clampViewDesc(resource *Resource, desc metadata.ViewDesc) metadata.ViewDesc {
	levels := resource.GetLevelCount()
	layers := resource.GetLayerCount()
	desc.BaseMipLevel = math.Min(desc.BaseMipLevel, levels-1)
	desc.BaseArrayLayer = math.Min(desc.BaseArrayLayer, layers-1)
	desc.LevelCount = math.Clamp(desc.LevelCount, 1, math.SaturatingSub(levels, desc.BaseMipLevel))
	desc.LayerCount = math.Clamp(desc.LayerCount, 1, math.SaturatingSub(layers, desc.BaseArrayLayer))
	if desc.Format == metadata.FormatUndefined {
		desc.Format = resource.Desc().Format
	}
	return desc
}

// newView creates the native view, its CPU descriptor and, when requested,
// its one-slot bindless table. pool and bindlessPool may be nil.
func newView(device Device, resource *Resource, desc metadata.ViewDesc, pool *DescriptorPool, bindlessPool *BindlessDescriptorPool) (*View, error) {
	if resource.IsDestroyed() {
		return nil, core.ErrResourceDestroyed
	}
	desc = clampViewDesc(resource, desc)

	native, err := device.CreateView(resource.Native(), desc)
	if err != nil {
		return nil, err
	}
	v := &View{
		id:       uuid.New(),
		desc:     desc,
		resource: weak.Make(resource),
		native:   native,
	}

	if category, ok := metadata.DescriptorCategoryOf(desc.ViewType); ok && pool != nil {
		h, err := pool.AllocateDescriptor(category)
		if err != nil {
			native.Destroy()
			return nil, err
		}
		if err := pool.Write(h, native); err != nil {
			_ = pool.Free(h)
			native.Destroy()
			return nil, err
		}
		v.pool, v.handle, v.hasHandle = pool, h, true
	}

	if desc.Bindless && bindlessPool != nil {
		bv, err := NewBindlessViewPool(bindlessPool, desc.ViewType, 1)
		if err != nil {
			v.Destroy()
			return nil, err
		}
		v.bindless = bv
		if err := bv.WriteView(0, v); err != nil {
			v.Destroy()
			return nil, err
		}
	}

	resource.attachView(v)
	return v, nil
}

func (v *View) ID() uuid.UUID               { return v.id }
func (v *View) Desc() metadata.ViewDesc     { return v.desc }
func (v *View) ViewType() metadata.ViewType { return v.desc.ViewType }
func (v *View) Native() NativeView          { return v.native }
func (v *View) GetBaseMipLevel() uint32     { return v.desc.BaseMipLevel }
func (v *View) GetLevelCount() uint32       { return v.desc.LevelCount }
func (v *View) GetBaseArrayLayer() uint32   { return v.desc.BaseArrayLayer }
func (v *View) GetLayerCount() uint32       { return v.desc.LayerCount }

// Resource returns the viewed resource, or nil once it has been destroyed
// or collected.
func (v *View) Resource() *Resource {
	r := v.resource.Value()
	if r == nil || r.IsDestroyed() {
		return nil
	}
	return r
}

// Descriptor returns the CPU descriptor of the view, if its type has one.
func (v *View) Descriptor() (DescriptorHandle, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.handle, v.hasHandle
}

// DescriptorID is the index shaders use to reach the view through the
// bindless table. ok is false for views created without Bindless.
func (v *View) DescriptorID() (uint32, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.bindless == nil {
		return 0, false
	}
	return v.bindless.GetBaseDescriptorId(), true
}

func (v *View) IsDestroyed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.destroyed
}

// Destroy frees the descriptor slots immediately. The caller guarantees no
// in-flight GPU work still reads them; use Context.ReleaseView otherwise.
func (v *View) Destroy() {
	v.mu.Lock()
	if v.destroyed {
		v.mu.Unlock()
		return
	}
	v.destroyed = true
	pool, handle, hasHandle := v.pool, v.handle, v.hasHandle
	bindless := v.bindless
	v.hasHandle, v.bindless = false, nil
	v.mu.Unlock()

	if bindless != nil {
		bindless.Release()
	}
	if hasHandle {
		if err := pool.Free(handle); err != nil {
			core.LogError("freeing descriptor of view %s: %v", v.id, err)
		}
	}
	if v.native != nil {
		v.native.Destroy()
	}
	if r := v.resource.Value(); r != nil {
		r.detachView(v)
	}
}
