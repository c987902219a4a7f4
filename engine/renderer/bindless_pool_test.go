package renderer_test

import (
	"errors"
	"testing"

	"github.com/spaghettifunk/anima-hal/engine/core"
	"github.com/spaghettifunk/anima-hal/engine/renderer"
	"github.com/spaghettifunk/anima-hal/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-hal/engine/renderer/null"
)

func TestBindlessRangesFirstFitAndCoalesce(t *testing.T) {
	pool := renderer.NewBindlessDescriptorPool(null.NewDevice(), 16)
	vt := metadata.ViewTypeTexture

	a, err := pool.AllocateRange(vt, 4)
	must(t, err)
	b, err := pool.AllocateRange(vt, 4)
	must(t, err)
	c, err := pool.AllocateRange(vt, 4)
	must(t, err)
	if a.Offset != 0 || b.Offset != 4 || c.Offset != 8 {
		t.Fatalf("offsets %d %d %d", a.Offset, b.Offset, c.Offset)
	}

	must(t, pool.FreeRange(a))
	must(t, pool.FreeRange(b))
	// a and b merged: an 8-slot range fits at 0
	d, err := pool.AllocateRange(vt, 8)
	must(t, err)
	if d.Offset != 0 {
		t.Errorf("merged range at %d, want 0", d.Offset)
	}
	if pool.Capacity(vt) != 16 {
		t.Errorf("capacity = %d, want 16", pool.Capacity(vt))
	}

	if err := pool.FreeRange(a); err == nil {
		t.Error("freeing a stale range inside a live one succeeded")
	}
	must(t, pool.FreeRange(d))
	if err := pool.FreeRange(d); !errors.Is(err, core.ErrDescriptorDoubleFree) {
		t.Errorf("double free: %v", err)
	}
}

func TestBindlessGrowthPreservesOffsets(t *testing.T) {
	device := null.NewDevice()
	pool := renderer.NewBindlessDescriptorPool(device, 4)
	vt := metadata.ViewTypeRWBuffer

	first, err := pool.AllocateRange(vt, 3)
	must(t, err)
	heap := pool.Heap(vt).(*null.BindlessHeap)
	marker := &null.View{}
	must(t, pool.Write(vt, first.Offset+2, marker))

	second, err := pool.AllocateRange(vt, 6)
	must(t, err)
	if heap.Resizes() != 1 {
		t.Errorf("resizes = %d, want 1", heap.Resizes())
	}
	if pool.Capacity(vt) < 9 {
		t.Errorf("capacity = %d, want >= 9", pool.Capacity(vt))
	}
	if second.Offset != 3 {
		t.Errorf("second range at %d, want 3", second.Offset)
	}
	if heap.Get(first.Offset+2) != marker {
		t.Error("growth lost an existing entry")
	}
}

func TestBindlessViewPoolWriteView(t *testing.T) {
	ctx, _ := newContext(t, 2)
	tex := newTexture(t, ctx, "material", 1, metadata.ResourceStatePixelShaderResource)
	buf, err := ctx.CreateResource(metadata.ResourceDesc{
		Name:         "params",
		Type:         metadata.ResourceTypeBuffer,
		Size:         256,
		InitialState: metadata.ResourceStateVertexAndConstantBuffer,
	})
	must(t, err)

	srv, err := ctx.CreateView(tex, metadata.ViewDesc{ViewType: metadata.ViewTypeTexture})
	must(t, err)
	cbv, err := ctx.CreateView(buf, metadata.ViewDesc{ViewType: metadata.ViewTypeConstantBuffer, Size: 256})
	must(t, err)

	table, err := renderer.NewBindlessViewPool(ctx.BindlessPool(), metadata.ViewTypeTexture, 3)
	must(t, err)
	if table.GetViewCount() != 3 {
		t.Errorf("view count = %d", table.GetViewCount())
	}

	must(t, table.WriteView(1, srv))
	heap := ctx.BindlessPool().Heap(metadata.ViewTypeTexture).(*null.BindlessHeap)
	if heap.Get(table.GetBaseDescriptorId()+1) != srv.Native() {
		t.Error("slot 1 does not hold the view")
	}

	if err := table.WriteView(3, srv); !errors.Is(err, core.ErrBindlessIndexOutOfRange) {
		t.Errorf("out of range write: %v", err)
	}
	if err := table.WriteView(0, cbv); !errors.Is(err, core.ErrViewTypeMismatch) {
		t.Errorf("mismatched write: %v", err)
	}

	must(t, table.WriteView(1, nil))
	if heap.Get(table.GetBaseDescriptorId()+1) != nil {
		t.Error("nil write did not clear the slot")
	}

	table.Release()
	table.Release()
	if err := table.WriteView(0, srv); !errors.Is(err, core.ErrInvalidDescriptor) {
		t.Errorf("write after release: %v", err)
	}
}

func TestBindlessViewGetsDescriptorID(t *testing.T) {
	ctx, _ := newContext(t, 2)
	tex := newTexture(t, ctx, "bindless", 1, metadata.ResourceStatePixelShaderResource)

	plain, err := ctx.CreateView(tex, metadata.ViewDesc{ViewType: metadata.ViewTypeTexture})
	must(t, err)
	if _, ok := plain.DescriptorID(); ok {
		t.Error("non-bindless view has a descriptor id")
	}

	v1, err := ctx.CreateView(tex, metadata.ViewDesc{ViewType: metadata.ViewTypeTexture, Bindless: true})
	must(t, err)
	v2, err := ctx.CreateView(tex, metadata.ViewDesc{ViewType: metadata.ViewTypeTexture, Bindless: true})
	must(t, err)
	id1, ok1 := v1.DescriptorID()
	id2, ok2 := v2.DescriptorID()
	if !ok1 || !ok2 || id1 == id2 {
		t.Fatalf("ids %d/%v %d/%v", id1, ok1, id2, ok2)
	}
	heap := ctx.BindlessPool().Heap(metadata.ViewTypeTexture).(*null.BindlessHeap)
	if heap.Get(id1) != v1.Native() || heap.Get(id2) != v2.Native() {
		t.Error("bindless slots do not hold their views")
	}

	v1.Destroy()
	if heap.Get(id1) != nil {
		t.Error("bindless slot not cleared on destroy")
	}
	v3, err := ctx.CreateView(tex, metadata.ViewDesc{ViewType: metadata.ViewTypeTexture, Bindless: true})
	must(t, err)
	if id3, _ := v3.DescriptorID(); id3 != id1 {
		t.Errorf("freed slot %d not reused, got %d", id1, id3)
	}
}
