package testbed

import (
	"fmt"

	"github.com/spaghettifunk/anima-hal/engine"
	"github.com/spaghettifunk/anima-hal/engine/core"
	"github.com/spaghettifunk/anima-hal/engine/renderer"
	"github.com/spaghettifunk/anima-hal/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-hal/engine/systems"
)

// How often the blur view is recreated, in frames.
const viewChurnInterval = 60

// TestGame drives a small frame graph. A scene pass renders into an HDR
// target and a depth buffer. A composite pass writes the first mip of a blur
// chain, samples the scene and the rest of the chain, and draws into the
// back buffer.
type TestGame struct {
	*engine.Game
}

type passLists struct {
	scene     *renderer.CommandList
	composite *renderer.CommandList
}

type gameState struct {
	width   uint32
	height  uint32
	frames  uint64
	resized bool

	scene     *renderer.Resource
	depth     *renderer.Resource
	blur      *renderer.Resource
	constants *renderer.Resource

	sceneSRV *renderer.View
	depthSRV *renderer.View
	blurUAV  *renderer.View
	blurSRV  *renderer.View

	// Command lists per frame slot.
	lists map[uint32]*passLists
	jobs  *systems.JobSystem
}

func NewTestGame(app *engine.ApplicationConfig) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: app,
			State: &gameState{
				lists: make(map[uint32]*passLists),
			},
		},
	}
	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown
	return tg
}

func (g *TestGame) state() *gameState {
	return g.State.(*gameState)
}

func (g *TestGame) Initialize(ctx *renderer.Context) error {
	s := g.state()
	jobs, err := systems.NewJobSystem(2, 2)
	if err != nil {
		return err
	}
	s.jobs = jobs
	if b := ctx.GetBackBuffer(0); b != nil {
		s.width, s.height = b.Desc().Width, b.Desc().Height
	}

	constants, err := ctx.CreateResource(metadata.ResourceDesc{
		Name:      "frame constants",
		Type:      metadata.ResourceTypeBuffer,
		BindFlags: metadata.BindFlagConstantBuffer | metadata.BindFlagCopyDest,
		Size:      256,
	})
	if err != nil {
		return err
	}
	s.constants = constants
	return g.createTargets(ctx)
}

// createTargets builds the size dependent targets and their views.
func (g *TestGame) createTargets(ctx *renderer.Context) error {
	s := g.state()
	if s.width == 0 || s.height == 0 {
		return nil
	}
	var err error
	s.scene, err = ctx.CreateResource(metadata.ResourceDesc{
		Name:      "scene color",
		Type:      metadata.ResourceTypeTexture,
		Format:    metadata.FormatRGBA16Float,
		BindFlags: metadata.BindFlagRenderTarget | metadata.BindFlagShaderResource,
		Width:     s.width,
		Height:    s.height,
	})
	if err != nil {
		return err
	}
	s.depth, err = ctx.CreateResource(metadata.ResourceDesc{
		Name:      "scene depth",
		Type:      metadata.ResourceTypeTexture,
		Format:    metadata.FormatD32Float,
		BindFlags: metadata.BindFlagDepthStencil | metadata.BindFlagShaderResource,
		Width:     s.width,
		Height:    s.height,
	})
	if err != nil {
		return err
	}
	s.blur, err = ctx.CreateResource(metadata.ResourceDesc{
		Name:       "blur chain",
		Type:       metadata.ResourceTypeTexture,
		Format:     metadata.FormatRGBA8Unorm,
		BindFlags:  metadata.BindFlagUnorderedAccess | metadata.BindFlagShaderResource,
		Width:      max(s.width/2, 1),
		Height:     max(s.height/2, 1),
		LevelCount: 4,
	})
	if err != nil {
		return err
	}

	if s.sceneSRV, err = ctx.CreateView(s.scene, metadata.ViewDesc{ViewType: metadata.ViewTypeTexture, Bindless: true}); err != nil {
		return err
	}
	if s.depthSRV, err = ctx.CreateView(s.depth, metadata.ViewDesc{ViewType: metadata.ViewTypeTexture, Bindless: true}); err != nil {
		return err
	}
	if s.blurUAV, err = ctx.CreateView(s.blur, metadata.ViewDesc{
		ViewType:         metadata.ViewTypeRWTexture,
		SubresourceRange: metadata.Subresource(0, 0),
	}); err != nil {
		return err
	}
	return g.refreshBlurView(ctx)
}

// refreshBlurView swaps the bindless view of the blur chain for a new one.
// The old view goes away once the frames still reading it have retired.
func (g *TestGame) refreshBlurView(ctx *renderer.Context) error {
	s := g.state()
	view, err := ctx.CreateView(s.blur, metadata.ViewDesc{
		ViewType:         metadata.ViewTypeTexture,
		SubresourceRange: metadata.MipRange(1, 3),
		Bindless:         true,
	})
	if err != nil {
		return err
	}
	if s.blurSRV != nil {
		ctx.ReleaseView(s.blurSRV)
	}
	s.blurSRV = view
	if id, ok := view.DescriptorID(); ok {
		core.LogDebug("blur chain published at bindless index %d", id)
	}
	return nil
}

func (g *TestGame) destroyTargets() {
	s := g.state()
	for _, v := range []*renderer.View{s.sceneSRV, s.depthSRV, s.blurUAV, s.blurSRV} {
		if v != nil {
			v.Destroy()
		}
	}
	s.sceneSRV, s.depthSRV, s.blurUAV, s.blurSRV = nil, nil, nil, nil
	for _, r := range []*renderer.Resource{s.scene, s.depth, s.blur} {
		if r != nil {
			r.Release()
		}
	}
	s.scene, s.depth, s.blur = nil, nil, nil
}

func (g *TestGame) Update(deltaTime float64) error {
	g.state().frames++
	return nil
}

func (g *TestGame) Render(ctx *renderer.Context, deltaTime float64) error {
	s := g.state()
	if s.resized {
		s.resized = false
		if err := g.rebuildTargets(ctx); err != nil {
			return err
		}
	}
	if s.scene == nil {
		return nil
	}
	if s.frames%viewChurnInterval == 0 {
		if err := g.refreshBlurView(ctx); err != nil {
			return err
		}
	}

	frame := ctx.GetFrameIndex()
	back := ctx.GetBackBuffer(frame)
	if back == nil {
		return nil
	}
	lists, err := g.listsFor(ctx, frame)
	if err != nil {
		return err
	}

	// The passes record in parallel; ordering between them is settled at
	// submission.
	err = s.jobs.RunAll(
		systems.JobTask{Name: "scene pass", Run: func() error { return g.recordScene(lists.scene) }},
		systems.JobTask{Name: "composite pass", Run: func() error { return g.recordComposite(lists.composite, back) }},
	)
	if err != nil {
		return err
	}
	return ctx.ExecuteCommandLists([]*renderer.CommandList{lists.scene, lists.composite})
}

func (g *TestGame) listsFor(ctx *renderer.Context, frame uint32) (*passLists, error) {
	s := g.state()
	if l, ok := s.lists[frame]; ok {
		return l, nil
	}
	scene, err := ctx.CreateCommandList()
	if err != nil {
		return nil, err
	}
	composite, err := ctx.CreateCommandList()
	if err != nil {
		scene.Destroy()
		return nil, err
	}
	l := &passLists{scene: scene, composite: composite}
	s.lists[frame] = l
	return l, nil
}

func (g *TestGame) recordScene(cl *renderer.CommandList) error {
	s := g.state()
	if err := cl.Reset(); err != nil {
		return err
	}
	uses := []struct {
		resource *renderer.Resource
		state    metadata.ResourceState
	}{
		{s.constants, metadata.ResourceStateVertexAndConstantBuffer},
		{s.scene, metadata.ResourceStateRenderTarget},
		{s.depth, metadata.ResourceStateDepthWrite},
	}
	for _, u := range uses {
		if err := cl.UseResource(u.resource, u.state, metadata.AllSubresources()); err != nil {
			return fmt.Errorf("scene pass: %w", err)
		}
	}
	return cl.Close()
}

func (g *TestGame) recordComposite(cl *renderer.CommandList, back *renderer.Resource) error {
	s := g.state()
	if err := cl.Reset(); err != nil {
		return err
	}
	uses := []struct {
		resource *renderer.Resource
		state    metadata.ResourceState
		rng      metadata.SubresourceRange
	}{
		{s.scene, metadata.ResourceStateNonPixelShaderResource, metadata.AllSubresources()},
		{s.blur, metadata.ResourceStateUnorderedAccess, metadata.Subresource(0, 0)},
		{s.blur, metadata.ResourceStatePixelShaderResource, metadata.MipRange(1, 3)},
		{s.depth, metadata.ResourceStateDepthRead, metadata.AllSubresources()},
		{s.scene, metadata.ResourceStatePixelShaderResource, metadata.AllSubresources()},
		{back, metadata.ResourceStateRenderTarget, metadata.AllSubresources()},
	}
	for _, u := range uses {
		if err := cl.UseResource(u.resource, u.state, u.rng); err != nil {
			return fmt.Errorf("composite pass: %w", err)
		}
	}
	return cl.Close()
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	s := g.state()
	if width == s.width && height == s.height {
		return nil
	}
	s.width, s.height = width, height
	s.resized = true
	return nil
}

// rebuildTargets recreates the size dependent targets once the frames in
// flight have retired.
func (g *TestGame) rebuildTargets(ctx *renderer.Context) error {
	if err := ctx.WaitIdle(); err != nil {
		return err
	}
	g.destroyTargets()
	return g.createTargets(ctx)
}

func (g *TestGame) Shutdown(ctx *renderer.Context) error {
	if err := ctx.WaitIdle(); err != nil {
		return err
	}
	s := g.state()
	for frame, l := range s.lists {
		l.scene.Destroy()
		l.composite.Destroy()
		delete(s.lists, frame)
	}
	g.destroyTargets()
	if s.constants != nil {
		s.constants.Release()
		s.constants = nil
	}
	if s.jobs != nil {
		_ = s.jobs.Shutdown()
		s.jobs = nil
	}
	return nil
}
