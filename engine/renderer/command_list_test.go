package renderer

import (
	"errors"
	"sync"
	"testing"

	"github.com/spaghettifunk/anima-hal/engine/core"
	"github.com/spaghettifunk/anima-hal/engine/renderer/metadata"
)

type recordingList struct {
	open     bool
	barriers []ResolvedTransition
}

func (l *recordingList) Open() error  { l.open = true; l.barriers = nil; return nil }
func (l *recordingList) Close() error { l.open = false; return nil }
func (l *recordingList) ResourceBarrier(ts []ResolvedTransition) {
	l.barriers = append(l.barriers, ts...)
}
func (l *recordingList) Destroy() {}

func newTestList(t *testing.T) (*CommandList, *recordingList) {
	t.Helper()
	native := &recordingList{}
	cl := NewCommandList(native)
	if err := cl.Open(); err != nil {
		t.Fatal(err)
	}
	return cl, native
}

func newTestTexture(name string, levels, layers uint32, initial metadata.ResourceState) *Resource {
	return NewResource(nil, metadata.ResourceDesc{
		Name:         name,
		Type:         metadata.ResourceTypeTexture,
		LevelCount:   levels,
		LayerCount:   layers,
		InitialState: initial,
	})
}

func TestUseResourceIdempotent(t *testing.T) {
	tex := newTestTexture("albedo", 3, 2, metadata.ResourceStateCommon)
	cl, native := newTestList(t)

	for i := 0; i < 2; i++ {
		if err := cl.UseResource(tex, metadata.ResourceStatePixelShaderResource, metadata.AllSubresources()); err != nil {
			t.Fatal(err)
		}
	}
	if len(native.barriers) != 0 {
		t.Errorf("recorded %d immediate barriers, want 0", len(native.barriers))
	}
	if n := len(cl.LazyBarriers()); n != 1 {
		t.Fatalf("%d lazy barriers, want 1", n)
	}
	if err := cl.Close(); err != nil {
		t.Fatal(err)
	}

	ts := ResolveLazyBarriers(cl)
	if len(ts) != 3*2 {
		t.Fatalf("%d transitions, want one per subresource (6)", len(ts))
	}
	seen := map[[2]uint32]bool{}
	for _, tr := range ts {
		key := [2]uint32{tr.MipLevel, tr.ArrayLayer}
		if seen[key] {
			t.Errorf("subresource %v transitioned twice", key)
		}
		seen[key] = true
		if tr.Before != metadata.ResourceStateCommon || tr.After != metadata.ResourceStatePixelShaderResource {
			t.Errorf("transition %s", tr)
		}
	}
}

func TestUseResourceKnownStateRecordsImmediately(t *testing.T) {
	tex := newTestTexture("gbuffer", 2, 1, metadata.ResourceStateCommon)
	cl, native := newTestList(t)

	must(t, cl.UseResource(tex, metadata.ResourceStateRenderTarget, metadata.AllSubresources()))
	must(t, cl.UseResource(tex, metadata.ResourceStatePixelShaderResource, metadata.Subresource(1, 0)))

	if len(native.barriers) != 1 {
		t.Fatalf("immediate barriers = %d, want 1", len(native.barriers))
	}
	b := native.barriers[0]
	if b.MipLevel != 1 || b.Before != metadata.ResourceStateRenderTarget || b.After != metadata.ResourceStatePixelShaderResource {
		t.Errorf("immediate barrier %s", b)
	}
	if got := cl.LocalState(tex, 1, 0); got != metadata.ResourceStatePixelShaderResource {
		t.Errorf("local mip1 = %s", got)
	}
	if got := cl.LocalState(tex, 0, 0); got != metadata.ResourceStateRenderTarget {
		t.Errorf("local mip0 = %s", got)
	}
	if n := len(cl.LazyBarriers()); n != 1 {
		t.Errorf("lazy barriers = %d, want 1", n)
	}
}

func TestUseResourcePartialThenFull(t *testing.T) {
	tex := newTestTexture("shadow", 3, 1, metadata.ResourceStateCommon)
	cl, native := newTestList(t)

	must(t, cl.UseResource(tex, metadata.ResourceStateCopyDest, metadata.Subresource(0, 0)))
	must(t, cl.UseResource(tex, metadata.ResourceStateCopyDest, metadata.AllSubresources()))

	if len(native.barriers) != 0 {
		t.Errorf("immediate barriers = %d, want 0", len(native.barriers))
	}
	// mip0 from the first call, mips 1 and 2 from the second
	ts := ResolveLazyBarriers(cl)
	if len(ts) != 3 {
		t.Fatalf("%d transitions, want 3", len(ts))
	}
}

func TestUseResourceErrors(t *testing.T) {
	tex := newTestTexture("t", 1, 1, metadata.ResourceStateCommon)
	cl := NewCommandList(&recordingList{})

	if err := cl.UseResource(tex, metadata.ResourceStateCommon, metadata.AllSubresources()); !errors.Is(err, core.ErrCommandListNotOpen) {
		t.Errorf("closed list: %v", err)
	}
	must(t, cl.Open())
	if err := cl.Open(); !errors.Is(err, core.ErrCommandListOpen) {
		t.Errorf("double open: %v", err)
	}
	if err := cl.UseResource(tex, metadata.ResourceStateCommon, metadata.Subresource(4, 0)); !errors.Is(err, core.ErrInvalidSubresource) {
		t.Errorf("out of range: %v", err)
	}
	if err := cl.UseResource(tex, metadata.ResourceStateUnknown, metadata.AllSubresources()); !errors.Is(err, core.ErrInvalidSubresource) {
		t.Errorf("Unknown target: %v", err)
	}
	mips := newTestTexture("mips", 4, 1, metadata.ResourceStateCommon)
	if err := cl.UseResource(mips, metadata.ResourceStateCopyDest, metadata.MipRange(2, 8)); !errors.Is(err, core.ErrInvalidSubresource) {
		t.Errorf("range past the last mip: %v", err)
	}
	if lazy := cl.LazyBarriers(); len(lazy) != 0 {
		t.Errorf("rejected range left %d lazy barriers", len(lazy))
	}
	tex.Release()
	if err := cl.UseResource(tex, metadata.ResourceStateCommon, metadata.AllSubresources()); !errors.Is(err, core.ErrResourceDestroyed) {
		t.Errorf("destroyed resource: %v", err)
	}
}

func TestResolveSkipsMatchingStates(t *testing.T) {
	tex := newTestTexture("rt", 2, 1, metadata.ResourceStateRenderTarget)
	cl, _ := newTestList(t)
	must(t, cl.UseResource(tex, metadata.ResourceStateRenderTarget, metadata.AllSubresources()))
	if ts := ResolveLazyBarriers(cl); len(ts) != 0 {
		t.Errorf("got %d transitions for a no-op barrier", len(ts))
	}
}

func TestResolveSplitsDivergentRange(t *testing.T) {
	tex := newTestTexture("mips", 3, 1, metadata.ResourceStateCommon)
	tex.GetGlobalResourceStateTracker().SetSubresourceState(1, 0, metadata.ResourceStateCopyDest)

	cl, _ := newTestList(t)
	must(t, cl.UseResource(tex, metadata.ResourceStatePixelShaderResource, metadata.AllSubresources()))
	ts := ResolveLazyBarriers(cl)
	if len(ts) != 3 {
		t.Fatalf("%d transitions, want 3", len(ts))
	}
	for _, tr := range ts {
		want := metadata.ResourceStateCommon
		if tr.MipLevel == 1 {
			want = metadata.ResourceStateCopyDest
		}
		if tr.Before != want {
			t.Errorf("mip %d before = %s, want %s", tr.MipLevel, tr.Before, want)
		}
	}
}

func TestCommitSkipsUnknown(t *testing.T) {
	tex := newTestTexture("partial", 4, 1, metadata.ResourceStateGenericRead)
	tex.GetGlobalResourceStateTracker().SetSubresourceState(3, 0, metadata.ResourceStateCopyDest)

	cl, _ := newTestList(t)
	must(t, cl.UseResource(tex, metadata.ResourceStateRenderTarget, metadata.Subresource(0, 0)))
	must(t, cl.Close())
	CommitLocalState(cl)

	want := []metadata.ResourceState{
		metadata.ResourceStateRenderTarget,
		metadata.ResourceStateGenericRead,
		metadata.ResourceStateGenericRead,
		metadata.ResourceStateCopyDest,
	}
	global := tex.GetGlobalResourceStateTracker()
	for m, w := range want {
		if got := global.GetSubresourceState(uint32(m), 0); got != w {
			t.Errorf("mip %d = %s, want %s", m, got, w)
		}
	}
}

func TestOrderDependentResolution(t *testing.T) {
	tex := newTestTexture("chain", 3, 1, metadata.ResourceStateGenericRead)

	a, _ := newTestList(t)
	must(t, a.UseResource(tex, metadata.ResourceStateRenderTarget, metadata.Subresource(0, 0)))
	must(t, a.Close())
	b, _ := newTestList(t)
	must(t, b.UseResource(tex, metadata.ResourceStateRenderTarget, metadata.Subresource(1, 0)))
	must(t, b.Close())

	var all []ResolvedTransition
	for _, l := range []*CommandList{a, b} {
		all = append(all, ResolveLazyBarriers(l)...)
		CommitLocalState(l)
	}
	if len(all) != 2 {
		t.Fatalf("%d transitions, want 2", len(all))
	}
	for i, tr := range all {
		if tr.MipLevel != uint32(i) || tr.Before != metadata.ResourceStateGenericRead || tr.After != metadata.ResourceStateRenderTarget {
			t.Errorf("transition %d = %s", i, tr)
		}
	}
	global := tex.GetGlobalResourceStateTracker()
	for m, w := range []metadata.ResourceState{
		metadata.ResourceStateRenderTarget,
		metadata.ResourceStateRenderTarget,
		metadata.ResourceStateGenericRead,
	} {
		if got := global.GetSubresourceState(uint32(m), 0); got != w {
			t.Errorf("mip %d = %s, want %s", m, got, w)
		}
	}
}

func TestOverlappingListsLastWriterWins(t *testing.T) {
	tex := newTestTexture("shared", 1, 1, metadata.ResourceStateCommon)

	a, _ := newTestList(t)
	must(t, a.UseResource(tex, metadata.ResourceStateCopyDest, metadata.AllSubresources()))
	must(t, a.Close())
	b, _ := newTestList(t)
	must(t, b.UseResource(tex, metadata.ResourceStatePixelShaderResource, metadata.AllSubresources()))
	must(t, b.Close())

	ta := ResolveLazyBarriers(a)
	CommitLocalState(a)
	tb := ResolveLazyBarriers(b)
	CommitLocalState(b)

	if len(ta) != 1 || ta[0].Before != metadata.ResourceStateCommon || ta[0].After != metadata.ResourceStateCopyDest {
		t.Errorf("list a: %v", ta)
	}
	if len(tb) != 1 || tb[0].Before != metadata.ResourceStateCopyDest || tb[0].After != metadata.ResourceStatePixelShaderResource {
		t.Errorf("list b: %v", tb)
	}
	if got := tex.GetGlobalResourceStateTracker().GetResourceState(); got != metadata.ResourceStatePixelShaderResource {
		t.Errorf("global = %s", got)
	}
}

func TestConcurrentRecording(t *testing.T) {
	tex := newTestTexture("shared", 8, 1, metadata.ResourceStateCommon)
	const workers = 8
	lists := make([]*CommandList, workers)
	var wg sync.WaitGroup
	for i := range lists {
		lists[i] = NewCommandList(&recordingList{})
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cl := lists[i]
			if err := cl.Open(); err != nil {
				t.Error(err)
				return
			}
			for j := 0; j < 100; j++ {
				state := metadata.ResourceStateRenderTarget
				if j%2 == 1 {
					state = metadata.ResourceStatePixelShaderResource
				}
				if err := cl.UseResource(tex, state, metadata.Subresource(uint32(i), 0)); err != nil {
					t.Error(err)
					return
				}
			}
			_ = cl.Close()
		}(i)
	}
	wg.Wait()

	for i, cl := range lists {
		if n := len(cl.LazyBarriers()); n != 1 {
			t.Errorf("list %d: %d lazy barriers", i, n)
		}
		if got := cl.LocalState(tex, uint32(i), 0); got != metadata.ResourceStatePixelShaderResource {
			t.Errorf("list %d: local = %s", i, got)
		}
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}
