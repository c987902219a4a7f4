package wgpu

import (
	"errors"
	"testing"
	"time"

	"github.com/gogpu/gputypes"

	"github.com/spaghettifunk/anima-hal/engine/core"
	"github.com/spaghettifunk/anima-hal/engine/renderer"
	"github.com/spaghettifunk/anima-hal/engine/renderer/metadata"
)

func newTestDevice(t *testing.T) *Device {
	t.Helper()
	d, err := NewDevice(core.DefaultSettings(), gputypes.BackendEmpty)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(d.Destroy)
	return d
}

func TestNewDeviceRejectsMissingGPU(t *testing.T) {
	settings := core.DefaultSettings()
	settings.Renderer.RequiredGPUIndex = 7
	_, err := NewDevice(settings, gputypes.BackendEmpty)
	if !errors.Is(err, core.ErrInvalidSettings) {
		t.Fatalf("err = %v, want ErrInvalidSettings", err)
	}
}

func TestFenceCompletesWithSubmission(t *testing.T) {
	d := newTestDevice(t)
	fence, _ := d.CreateFence(0)

	native, err := d.CreateCommandList()
	if err != nil {
		t.Fatal(err)
	}
	defer native.Destroy()
	if err := native.Open(); err != nil {
		t.Fatal(err)
	}
	if err := native.Close(); err != nil {
		t.Fatal(err)
	}
	if err := d.ExecuteCommandLists([]renderer.NativeCommandList{native}); err != nil {
		t.Fatal(err)
	}
	if err := d.Signal(fence, 1); err != nil {
		t.Fatal(err)
	}
	if err := fence.Wait(1); err != nil {
		t.Fatal(err)
	}
	if got := fence.GetCompletedValue(); got != 1 {
		t.Errorf("completed = %d, want 1", got)
	}
	if err := d.Wait(fence, 1); err != nil {
		t.Errorf("queue wait on a signalled value: %v", err)
	}
	if err := d.Wait(fence, 2); err == nil {
		t.Error("queue wait on a value nobody queued should fail")
	}
}

func TestFenceCPUSignalWakesWaiter(t *testing.T) {
	d := newTestDevice(t)
	fence, _ := d.CreateFence(0)
	done := make(chan error, 1)
	go func() { done <- fence.Wait(2) }()

	select {
	case <-done:
		t.Fatal("Wait returned before the value was reached")
	case <-time.After(20 * time.Millisecond):
	}
	_ = fence.Signal(2)
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Wait never returned")
	}
}

func TestCommandListStateErrors(t *testing.T) {
	d := newTestDevice(t)
	native, _ := d.CreateCommandList()
	defer native.Destroy()

	if err := native.Close(); !errors.Is(err, core.ErrCommandListNotOpen) {
		t.Errorf("closing an unopened list: %v", err)
	}
	_ = native.Open()
	if err := native.Open(); !errors.Is(err, core.ErrCommandListOpen) {
		t.Errorf("opening twice: %v", err)
	}
	if err := d.ExecuteCommandLists([]renderer.NativeCommandList{native}); !errors.Is(err, core.ErrCommandListOpen) {
		t.Errorf("executing an open list: %v", err)
	}
}

func TestBindlessHeapEntries(t *testing.T) {
	d := newTestDevice(t)
	heap, err := d.CreateBindlessHeap(metadata.ViewTypeTexture, 2)
	if err != nil {
		t.Fatal(err)
	}
	tex, _ := d.CreateResource(metadata.ResourceDesc{
		Name: "albedo", Type: metadata.ResourceTypeTexture, Format: metadata.FormatRGBA8Unorm, Width: 4, Height: 4,
	})
	view, err := d.CreateView(tex, metadata.ViewDesc{ViewType: metadata.ViewTypeTexture})
	if err != nil {
		t.Fatal(err)
	}

	if err := heap.Write(2, view); !errors.Is(err, core.ErrBindlessIndexOutOfRange) {
		t.Errorf("write past capacity: %v", err)
	}
	if err := heap.Resize(4); err != nil {
		t.Fatal(err)
	}
	if err := heap.Write(3, view); err != nil {
		t.Fatal(err)
	}
	entries := heap.(*BindlessHeap).Entries()
	if len(entries) != 1 || entries[0].Binding != 3 {
		t.Fatalf("entries = %+v", entries)
	}
	if _, ok := entries[0].Resource.(gputypes.TextureViewBinding); !ok {
		t.Errorf("resource = %T, want a texture view binding", entries[0].Resource)
	}
	heap.Clear(3)
	if n := len(heap.(*BindlessHeap).Entries()); n != 0 {
		t.Errorf("%d entries after clear", n)
	}

	if _, err := d.CreateBindlessHeap(metadata.ViewTypeRenderTarget, 2); err == nil {
		t.Error("render target views cannot be bindless")
	}
}

func TestContextPresentsThroughWGPU(t *testing.T) {
	settings := core.DefaultSettings()
	settings.Renderer.API = core.APIWGPU
	settings.Renderer.FrameCount = 2
	settings.Application.Width = 32
	settings.Application.Height = 32
	settings.Descriptors.InitialHeapSize = 4
	settings.Descriptors.MaxDescriptors = 16
	settings.Descriptors.BindlessHeapSize = 4

	d := newTestDevice(t)
	ctx, err := renderer.NewContext(d, settings)
	if err != nil {
		t.Fatal(err)
	}
	defer ctx.Close()

	for frame := 0; frame < 5; frame++ {
		back := ctx.GetBackBuffer(ctx.GetFrameIndex())
		cl, err := ctx.CreateCommandList()
		if err != nil {
			t.Fatal(err)
		}
		if err := cl.Open(); err != nil {
			t.Fatal(err)
		}
		if err := cl.UseResource(back, metadata.ResourceStateRenderTarget, metadata.AllSubresources()); err != nil {
			t.Fatal(err)
		}
		if err := cl.Close(); err != nil {
			t.Fatal(err)
		}
		if err := ctx.ExecuteCommandLists([]*renderer.CommandList{cl}); err != nil {
			t.Fatal(err)
		}
		if err := ctx.Present(); err != nil {
			t.Fatalf("frame %d: %v", frame, err)
		}
	}
	if got := ctx.GetBackBuffer(ctx.GetFrameIndex()).GetGlobalResourceStateTracker().GetSubresourceState(0, 0); got != metadata.ResourceStatePresent {
		t.Errorf("back buffer ended in %s, want Present", got)
	}
}
