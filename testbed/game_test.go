package testbed

import (
	"testing"

	"github.com/spaghettifunk/anima-hal/engine"
	"github.com/spaghettifunk/anima-hal/engine/core"
	"github.com/spaghettifunk/anima-hal/engine/renderer"
	"github.com/spaghettifunk/anima-hal/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-hal/engine/renderer/null"
)

func newTestContext(t *testing.T) *renderer.Context {
	t.Helper()
	s := core.DefaultSettings()
	s.Renderer.API = core.APINull
	s.Renderer.FrameCount = 2
	s.Application.Width = 64
	s.Application.Height = 32
	ctx, err := renderer.NewContext(null.NewDevice(), s)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = ctx.Close() })
	return ctx
}

func renderFrames(t *testing.T, g *TestGame, ctx *renderer.Context, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := g.Update(1.0 / 60); err != nil {
			t.Fatal(err)
		}
		if err := g.Render(ctx, 1.0/60); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if err := ctx.Present(); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
	}
}

func TestGameRendersFrameGraph(t *testing.T) {
	ctx := newTestContext(t)
	g := NewTestGame(&engine.ApplicationConfig{})
	if err := g.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	renderFrames(t, g, ctx, 4)

	s := g.state()
	if got := len(s.lists); got != 2 {
		t.Errorf("%d list sets, want one per frame slot", got)
	}
	scene := s.scene.GetGlobalResourceStateTracker()
	if got := scene.GetSubresourceState(0, 0); got != metadata.ResourceStatePixelShaderResource {
		t.Errorf("scene color ended in %s", got)
	}
	blur := s.blur.GetGlobalResourceStateTracker()
	if got := blur.GetSubresourceState(0, 0); got != metadata.ResourceStateUnorderedAccess {
		t.Errorf("blur mip 0 ended in %s", got)
	}
	if got := blur.GetSubresourceState(2, 0); got != metadata.ResourceStatePixelShaderResource {
		t.Errorf("blur mip 2 ended in %s", got)
	}
	if _, ok := s.sceneSRV.DescriptorID(); !ok {
		t.Error("scene view has no bindless index")
	}

	if err := g.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}
	if len(s.lists) != 0 || s.scene != nil {
		t.Error("shutdown left resources behind")
	}
}

func TestGameRebuildsTargetsAfterResize(t *testing.T) {
	ctx := newTestContext(t)
	g := NewTestGame(&engine.ApplicationConfig{})
	if err := g.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	old := g.state().scene

	if err := ctx.Resize(128, 64); err != nil {
		t.Fatal(err)
	}
	if err := g.OnResize(128, 64); err != nil {
		t.Fatal(err)
	}
	renderFrames(t, g, ctx, 1)

	s := g.state()
	if s.scene == old {
		t.Fatal("scene target was not rebuilt")
	}
	if !old.IsDestroyed() {
		t.Error("old scene target survived the rebuild")
	}
	if d := s.scene.Desc(); d.Width != 128 || d.Height != 64 {
		t.Errorf("scene target is %dx%d", d.Width, d.Height)
	}
	_ = g.Shutdown(ctx)
}
