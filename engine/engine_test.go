package engine

import (
	"testing"

	"github.com/spaghettifunk/anima-hal/engine/core"
	"github.com/spaghettifunk/anima-hal/engine/renderer"
	"github.com/spaghettifunk/anima-hal/engine/renderer/metadata"
	_ "github.com/spaghettifunk/anima-hal/engine/renderer/null"
)

func headlessSettings() *core.Settings {
	s := core.DefaultSettings()
	s.Renderer.API = core.APINull
	s.Renderer.FrameCount = 2
	s.Application.Width = 64
	s.Application.Height = 64
	return s
}

func TestEngineRunsHeadlessUntilQuit(t *testing.T) {
	var (
		ctx      *renderer.Context
		updates  int
		renders  int
		shutdown bool
	)
	game := &Game{
		FnInitialize: func(c *renderer.Context) error {
			ctx = c
			return nil
		},
		FnUpdate: func(float64) error {
			updates++
			if updates == 4 {
				core.EventFire(core.EVENT_CODE_APPLICATION_QUIT, nil, core.EventContext{})
			}
			return nil
		},
		FnRender: func(c *renderer.Context, _ float64) error {
			renders++
			cl, err := c.CreateCommandList()
			if err != nil {
				return err
			}
			if err := cl.Open(); err != nil {
				return err
			}
			back := c.GetBackBuffer(c.GetFrameIndex())
			if err := cl.UseResource(back, metadata.ResourceStateRenderTarget, metadata.AllSubresources()); err != nil {
				return err
			}
			if err := cl.Close(); err != nil {
				return err
			}
			return c.ExecuteCommandLists([]*renderer.CommandList{cl})
		},
		FnShutdown: func(*renderer.Context) error {
			shutdown = true
			return nil
		},
	}

	e, err := New(game, headlessSettings())
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Initialize(); err != nil {
		t.Fatal(err)
	}
	if e.Stage() != EngineStageInitialized {
		t.Errorf("stage = %d after Initialize", e.Stage())
	}
	if err := e.Run(); err != nil {
		t.Fatal(err)
	}
	if renders != 3 {
		t.Errorf("rendered %d frames, want 3", renders)
	}
	// Each present signals once for the image and once for the submission.
	if got := ctx.FenceValue(); got < 3 {
		t.Errorf("fence value = %d after 3 frames", got)
	}
	if err := e.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if !shutdown {
		t.Error("game shutdown hook not called")
	}
	if e.Context() != nil {
		t.Error("context survives Shutdown")
	}
}

func TestEngineAppliesReloadedSettingsBetweenFrames(t *testing.T) {
	var frames int
	var e *Engine
	game := &Game{
		FnUpdate: func(float64) error {
			frames++
			switch frames {
			case 1:
				reloaded := headlessSettings()
				reloaded.Renderer.FrameCount = 3
				var ctx core.EventContext
				ctx.Data.Payload = reloaded
				core.EventFire(core.EVENT_CODE_SETTINGS_CHANGED, nil, ctx)
			case 3:
				e.Quit()
			}
			return nil
		},
	}
	e, err := New(game, headlessSettings())
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Initialize(); err != nil {
		t.Fatal(err)
	}
	defer e.Shutdown()

	if err := e.Run(); err != nil {
		t.Fatal(err)
	}
	if got := e.Context().FrameCount(); got != 3 {
		t.Errorf("frame count = %d, want 3", got)
	}
}

func TestEngineSuspendsOnZeroSizedWindow(t *testing.T) {
	e, err := New(&Game{}, headlessSettings())
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Initialize(); err != nil {
		t.Fatal(err)
	}
	defer e.Shutdown()

	resize := func(w, h uint32) {
		var ctx core.EventContext
		ctx.Data.U32[0], ctx.Data.U32[1] = w, h
		core.EventFire(core.EVENT_CODE_RESIZED, nil, ctx)
	}
	resize(0, 0)
	if !e.isSuspended {
		t.Fatal("a zero sized window should suspend the engine")
	}
	resize(32, 16)
	if e.isSuspended {
		t.Fatal("restoring the window should resume the engine")
	}
	if w, h := e.GetFramebufferSize(); w != 32 || h != 16 {
		t.Errorf("framebuffer = %dx%d", w, h)
	}
	if e.Context().GetBackBuffer(0) == nil {
		t.Error("no swapchain after restoring the window")
	}
}

func TestNewRejectsInvalidSettings(t *testing.T) {
	s := headlessSettings()
	s.Renderer.FrameCount = 0
	if _, err := New(&Game{}, s); err == nil {
		t.Error("zero frames should be rejected")
	}
}
