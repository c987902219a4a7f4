package renderer

import (
	"errors"
	"testing"

	"github.com/spaghettifunk/anima-hal/engine/core"
	"github.com/spaghettifunk/anima-hal/engine/renderer/metadata"
)

func TestTrackerUniformRoundTrip(t *testing.T) {
	const levels, layers = 5, 3
	tr := NewResourceStateTracker(levels, layers)
	tr.SetResourceState(metadata.ResourceStateCopyDest)

	for m := uint32(0); m < levels; m++ {
		for l := uint32(0); l < layers; l++ {
			if got := tr.GetSubresourceState(m, l); got != metadata.ResourceStateCopyDest {
				t.Fatalf("(%d,%d) = %s, want CopyDest", m, l, got)
			}
		}
	}
	if tr.IsPerSubresource() {
		t.Error("uniform write promoted the tracker")
	}
}

func TestTrackerPromotion(t *testing.T) {
	const levels, layers = 4, 2
	tr := NewResourceStateTracker(levels, layers)
	tr.SetResourceState(metadata.ResourceStateGenericRead)

	tr.SetSubresourceState(2, 1, metadata.ResourceStateGenericRead)
	if tr.IsPerSubresource() {
		t.Fatal("writing the uniform state must not promote")
	}

	tr.SetSubresourceState(2, 1, metadata.ResourceStateUnorderedAccess)
	if !tr.IsPerSubresource() {
		t.Fatal("divergent write did not promote")
	}
	for m := uint32(0); m < levels; m++ {
		for l := uint32(0); l < layers; l++ {
			want := metadata.ResourceStateGenericRead
			if m == 2 && l == 1 {
				want = metadata.ResourceStateUnorderedAccess
			}
			if got := tr.GetSubresourceState(m, l); got != want {
				t.Errorf("(%d,%d) = %s, want %s", m, l, got, want)
			}
		}
	}
	if tr.HasResourceState() {
		t.Error("HasResourceState true on diverged tracker")
	}

	// stays promoted, but a uniform write reaches every entry
	tr.SetResourceState(metadata.ResourceStateCommon)
	if !tr.IsPerSubresource() {
		t.Error("tracker demoted")
	}
	if !tr.HasResourceState() || tr.GetResourceState() != metadata.ResourceStateCommon {
		t.Errorf("after SetResourceState: uniform=%v state=%s", tr.HasResourceState(), tr.GetResourceState())
	}
}

func TestTrackerSetRangeState(t *testing.T) {
	tr := NewResourceStateTracker(4, 1)
	tr.SetRangeState(metadata.AllSubresources(), metadata.ResourceStateRenderTarget)
	if tr.IsPerSubresource() {
		t.Error("full range promoted the tracker")
	}

	tr.SetRangeState(metadata.MipRange(1, 2), metadata.ResourceStateCopySource)
	want := []metadata.ResourceState{
		metadata.ResourceStateRenderTarget,
		metadata.ResourceStateCopySource,
		metadata.ResourceStateCopySource,
		metadata.ResourceStateRenderTarget,
	}
	for m, w := range want {
		if got := tr.GetSubresourceState(uint32(m), 0); got != w {
			t.Errorf("mip %d = %s, want %s", m, got, w)
		}
	}
}

func TestTrackerOutOfRangePanics(t *testing.T) {
	tr := NewResourceStateTracker(2, 2)
	tr.SetSubresourceState(0, 0, metadata.ResourceStateCommon)
	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, core.ErrInvalidSubresource) {
			t.Errorf("recover() = %v, want ErrInvalidSubresource", r)
		}
	}()
	tr.GetSubresourceState(2, 0)
}

func TestTrackerZeroDimensions(t *testing.T) {
	tr := NewResourceStateTracker(0, 0)
	if tr.Levels() != 1 || tr.Layers() != 1 {
		t.Errorf("dimensions = %dx%d, want 1x1", tr.Levels(), tr.Layers())
	}
}
