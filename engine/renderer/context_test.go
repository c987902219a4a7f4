package renderer_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/spaghettifunk/anima-hal/engine/core"
	"github.com/spaghettifunk/anima-hal/engine/renderer"
	"github.com/spaghettifunk/anima-hal/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-hal/engine/renderer/null"
)

func newContext(t *testing.T, frames uint32) (*renderer.Context, *null.Device) {
	t.Helper()
	settings := core.DefaultSettings()
	settings.Renderer.FrameCount = frames
	settings.Application.Width = 64
	settings.Application.Height = 64
	settings.Descriptors.InitialHeapSize = 4
	settings.Descriptors.MaxDescriptors = 16
	settings.Descriptors.BindlessHeapSize = 4

	device := null.NewDevice()
	ctx, err := renderer.NewContext(device, settings)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = ctx.Close() })
	return ctx, device
}

func newTexture(t *testing.T, ctx *renderer.Context, name string, levels uint32, initial metadata.ResourceState) *renderer.Resource {
	t.Helper()
	res, err := ctx.CreateResource(metadata.ResourceDesc{
		Name:         name,
		Type:         metadata.ResourceTypeTexture,
		Format:       metadata.FormatRGBA8Unorm,
		Width:        16,
		Height:       16,
		LevelCount:   levels,
		InitialState: initial,
	})
	if err != nil {
		t.Fatal(err)
	}
	return res
}

func record(t *testing.T, ctx *renderer.Context, uses func(cl *renderer.CommandList) error) *renderer.CommandList {
	t.Helper()
	cl, err := ctx.CreateCommandList()
	if err != nil {
		t.Fatal(err)
	}
	if err := cl.Open(); err != nil {
		t.Fatal(err)
	}
	if err := uses(cl); err != nil {
		t.Fatal(err)
	}
	if err := cl.Close(); err != nil {
		t.Fatal(err)
	}
	return cl
}

func TestExecuteEmptyBatchSynthesizesNoBarrierList(t *testing.T) {
	ctx, device := newContext(t, 2)
	tex := newTexture(t, ctx, "rt", 2, metadata.ResourceStateRenderTarget)

	cl := record(t, ctx, func(cl *renderer.CommandList) error {
		return cl.UseResource(tex, metadata.ResourceStateRenderTarget, metadata.AllSubresources())
	})
	listsBefore := device.CommandListCount()
	if err := ctx.ExecuteCommandLists([]*renderer.CommandList{cl}); err != nil {
		t.Fatal(err)
	}

	sub, ok := device.LastSubmission()
	if !ok {
		t.Fatal("nothing submitted")
	}
	if len(sub.Lists) != 1 || sub.Lists[0].List != cl.Native() {
		t.Errorf("submitted %d lists, want only the caller's list", len(sub.Lists))
	}
	if device.CommandListCount() != listsBefore {
		t.Error("a barrier list was created for an empty batch")
	}
}

func TestExecuteOrderDependentResolution(t *testing.T) {
	ctx, device := newContext(t, 2)
	tex := newTexture(t, ctx, "chain", 4, metadata.ResourceStateGenericRead)

	a := record(t, ctx, func(cl *renderer.CommandList) error {
		return cl.UseResource(tex, metadata.ResourceStateRenderTarget, metadata.Subresource(0, 0))
	})
	b := record(t, ctx, func(cl *renderer.CommandList) error {
		return cl.UseResource(tex, metadata.ResourceStateRenderTarget, metadata.Subresource(1, 0))
	})
	if err := ctx.ExecuteCommandLists([]*renderer.CommandList{a, b}); err != nil {
		t.Fatal(err)
	}

	sub, _ := device.LastSubmission()
	// barrier(a), a, barrier(b), b
	if len(sub.Lists) != 4 {
		t.Fatalf("submitted %d native lists, want 4", len(sub.Lists))
	}
	if sub.Lists[1].List != a.Native() || sub.Lists[3].List != b.Native() {
		t.Error("caller lists out of order")
	}
	ts := sub.Transitions()
	if len(ts) != 2 {
		t.Fatalf("%d transitions, want 2: %v", len(ts), ts)
	}
	for i, tr := range ts {
		if tr.Resource != tex || tr.MipLevel != uint32(i) ||
			tr.Before != metadata.ResourceStateGenericRead || tr.After != metadata.ResourceStateRenderTarget {
			t.Errorf("transition %d = %s", i, tr)
		}
	}

	global := tex.GetGlobalResourceStateTracker()
	for m, want := range []metadata.ResourceState{
		metadata.ResourceStateRenderTarget,
		metadata.ResourceStateRenderTarget,
		metadata.ResourceStateGenericRead,
		metadata.ResourceStateGenericRead,
	} {
		if got := global.GetSubresourceState(uint32(m), 0); got != want {
			t.Errorf("mip %d = %s, want %s", m, got, want)
		}
	}
	if a.FenceValue() != ctx.FenceValue() || b.FenceValue() != ctx.FenceValue() {
		t.Errorf("list fence values %d/%d, context %d", a.FenceValue(), b.FenceValue(), ctx.FenceValue())
	}
}

func TestExecuteAcrossCalls(t *testing.T) {
	ctx, device := newContext(t, 2)
	tex := newTexture(t, ctx, "pingpong", 1, metadata.ResourceStateCommon)

	first := record(t, ctx, func(cl *renderer.CommandList) error {
		return cl.UseResource(tex, metadata.ResourceStateUnorderedAccess, metadata.AllSubresources())
	})
	must(t, ctx.ExecuteCommandLists([]*renderer.CommandList{first}))
	second := record(t, ctx, func(cl *renderer.CommandList) error {
		return cl.UseResource(tex, metadata.ResourceStateNonPixelShaderResource, metadata.AllSubresources())
	})
	must(t, ctx.ExecuteCommandLists([]*renderer.CommandList{second}))

	sub, _ := device.LastSubmission()
	ts := sub.Transitions()
	if len(ts) != 1 || ts[0].Before != metadata.ResourceStateUnorderedAccess {
		t.Errorf("second call transitions = %v", ts)
	}
}

func TestExecuteRejectsOpenList(t *testing.T) {
	ctx, _ := newContext(t, 2)
	cl, err := ctx.CreateCommandList()
	must(t, err)
	must(t, cl.Open())
	if err := ctx.ExecuteCommandLists([]*renderer.CommandList{cl}); !errors.Is(err, core.ErrCommandListOpen) {
		t.Errorf("err = %v, want ErrCommandListOpen", err)
	}
}

func TestPresentTransitionsBackBuffer(t *testing.T) {
	ctx, device := newContext(t, 2)
	bb := ctx.GetBackBuffer(ctx.GetFrameIndex())
	if got := bb.GetGlobalResourceStateTracker().GetResourceState(); got != metadata.ResourceStatePresent {
		t.Fatalf("fresh back buffer in %s, want Present", got)
	}

	cl := record(t, ctx, func(cl *renderer.CommandList) error {
		return cl.UseResource(bb, metadata.ResourceStateRenderTarget, metadata.AllSubresources())
	})
	must(t, ctx.ExecuteCommandLists([]*renderer.CommandList{cl}))
	must(t, ctx.Present())

	sub, _ := device.LastSubmission()
	ts := sub.Transitions()
	if len(ts) != 1 || ts[0].Resource != bb || ts[0].Before != metadata.ResourceStateRenderTarget || ts[0].After != metadata.ResourceStatePresent {
		t.Errorf("present transitions = %v", ts)
	}
	if got := bb.GetGlobalResourceStateTracker().GetResourceState(); got != metadata.ResourceStatePresent {
		t.Errorf("back buffer after present = %s", got)
	}
	if ctx.GetFrameIndex() != 1 {
		t.Errorf("frame index = %d, want 1", ctx.GetFrameIndex())
	}
}

func TestPresentFrameSlotGating(t *testing.T) {
	ctx, _ := newContext(t, 3)
	fence := fenceOf(t, ctx)
	fence.Hold()

	var firstRetire uint64
	for i := 0; i < 3; i++ {
		must(t, ctx.Present())
		if i == 0 {
			firstRetire = ctx.FenceValue()
		}
	}
	if ctx.GetFrameIndex() != 0 {
		t.Fatalf("frame index = %d, want 0", ctx.GetFrameIndex())
	}

	done := make(chan error, 1)
	go func() { done <- ctx.Present() }()

	select {
	case err := <-done:
		t.Fatalf("4th Present returned (%v) before slot 0 retired", err)
	case <-time.After(50 * time.Millisecond):
	}
	if blocked := fence.BlockedWaits(); len(blocked) == 0 || blocked[0] != firstRetire {
		t.Errorf("blocked waits = %v, want first %d", blocked, firstRetire)
	}

	fence.CompleteTo(firstRetire)
	select {
	case err := <-done:
		must(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("4th Present still blocked after slot 0 retired")
	}
	fence.Release()
}

func TestWaitIdle(t *testing.T) {
	ctx, _ := newContext(t, 2)
	fence := fenceOf(t, ctx)
	before := ctx.FenceValue()
	must(t, ctx.WaitIdle())
	if ctx.FenceValue() != before+1 || fence.GetCompletedValue() != before+1 {
		t.Errorf("fence %d completed %d, want %d", ctx.FenceValue(), fence.GetCompletedValue(), before+1)
	}
}

func TestResizeResetsFrameIndex(t *testing.T) {
	ctx, _ := newContext(t, 3)
	must(t, ctx.Present())
	old := ctx.GetBackBuffer(0)

	must(t, ctx.Resize(128, 96))
	if ctx.GetFrameIndex() != 0 {
		t.Errorf("frame index = %d after resize", ctx.GetFrameIndex())
	}
	bb := ctx.GetBackBuffer(0)
	if bb == old || bb.Desc().Width != 128 || bb.Desc().Height != 96 {
		t.Errorf("back buffer not recreated: %+v", bb.Desc())
	}
	if !old.IsDestroyed() {
		t.Error("old back buffer still alive")
	}

	must(t, ctx.Resize(0, 0))
	if err := ctx.Present(); !errors.Is(err, core.ErrSwapchainBooting) {
		t.Errorf("present without swapchain: %v", err)
	}
	must(t, ctx.Resize(32, 32))
	must(t, ctx.Present())
}

func TestApplySettingsRebuildsFrames(t *testing.T) {
	ctx, _ := newContext(t, 2)
	s := core.DefaultSettings()
	s.Application.Width, s.Application.Height = 64, 64
	s.Renderer.FrameCount = 4
	s.Log.Level = "info"
	must(t, ctx.ApplySettings(s))
	if ctx.FrameCount() != 4 {
		t.Errorf("frame count = %d, want 4", ctx.FrameCount())
	}
	if ctx.GetBackBuffer(3) == nil {
		t.Error("swapchain not recreated with 4 images")
	}

	bad := s.Clone()
	bad.Renderer.FrameCount = 0
	if err := ctx.ApplySettings(bad); !errors.Is(err, core.ErrInvalidSettings) {
		t.Errorf("invalid settings: %v", err)
	}
}

func TestCloseTwice(t *testing.T) {
	device := null.NewDevice()
	ctx, err := renderer.NewContext(device, core.DefaultSettings())
	must(t, err)
	must(t, ctx.Close())
	if err := ctx.Close(); !errors.Is(err, core.ErrContextClosed) {
		t.Errorf("second close: %v", err)
	}
	if err := ctx.Present(); !errors.Is(err, core.ErrContextClosed) {
		t.Errorf("present after close: %v", err)
	}
}

func TestCommandListResetWaitsForRetirement(t *testing.T) {
	ctx, _ := newContext(t, 2)
	fence := fenceOf(t, ctx)
	tex := newTexture(t, ctx, "t", 1, metadata.ResourceStateCommon)

	fence.Hold()
	cl := record(t, ctx, func(cl *renderer.CommandList) error {
		return cl.UseResource(tex, metadata.ResourceStateCopyDest, metadata.AllSubresources())
	})
	must(t, ctx.ExecuteCommandLists([]*renderer.CommandList{cl}))

	done := make(chan error, 1)
	go func() { done <- cl.Reset() }()
	select {
	case <-done:
		t.Fatal("Reset returned before the list retired")
	case <-time.After(50 * time.Millisecond):
	}
	fence.Release()
	select {
	case err := <-done:
		must(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Reset still blocked")
	}
	if !cl.IsOpen() || len(cl.LazyBarriers()) != 0 {
		t.Error("Reset did not reopen a clean list")
	}
}

func TestConcurrentRecordingSerialSubmit(t *testing.T) {
	ctx, device := newContext(t, 2)
	const workers = 4
	textures := make([]*renderer.Resource, workers)
	for i := range textures {
		textures[i] = newTexture(t, ctx, "worker", 1, metadata.ResourceStateCommon)
	}

	lists := make([]*renderer.CommandList, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		cl, err := ctx.CreateCommandList()
		must(t, err)
		lists[i] = cl
		wg.Add(1)
		go func(cl *renderer.CommandList, tex *renderer.Resource) {
			defer wg.Done()
			if err := cl.Open(); err != nil {
				t.Error(err)
				return
			}
			if err := cl.UseResource(tex, metadata.ResourceStateRenderTarget, metadata.AllSubresources()); err != nil {
				t.Error(err)
			}
			if err := cl.UseResource(tex, metadata.ResourceStatePixelShaderResource, metadata.AllSubresources()); err != nil {
				t.Error(err)
			}
			_ = cl.Close()
		}(cl, textures[i])
	}
	wg.Wait()
	must(t, ctx.ExecuteCommandLists(lists))

	sub, _ := device.LastSubmission()
	if got := len(sub.Transitions()); got != workers*2 {
		t.Errorf("%d transitions, want %d (lazy + immediate per worker)", got, workers*2)
	}
	for _, tex := range textures {
		if got := tex.GetGlobalResourceStateTracker().GetResourceState(); got != metadata.ResourceStatePixelShaderResource {
			t.Errorf("%s = %s", tex.Name(), got)
		}
	}
}

func fenceOf(t *testing.T, ctx *renderer.Context) *null.Fence {
	t.Helper()
	f, ok := ctx.Fence().(*null.Fence)
	if !ok {
		t.Fatalf("fence is %T", ctx.Fence())
	}
	return f
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}
