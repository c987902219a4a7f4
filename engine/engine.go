package engine

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/spaghettifunk/anima-hal/engine/core"
	"github.com/spaghettifunk/anima-hal/engine/platform"
	"github.com/spaghettifunk/anima-hal/engine/renderer"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently booting up
	EngineStageBooting
	// Engine completed boot process and is ready to be initialized
	EngineStageBootComplete
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

const (
	statsInterval   = 5.0 // seconds
	suspendedPoll   = 100 * time.Millisecond
	pendingSettings = 1
)

// Engine hosts a renderer context and drives a Game with it.
type Engine struct {
	currentStage Stage
	gameInstance *Game
	settings     *core.Settings
	isRunning    atomic.Bool
	isSuspended  bool
	platform     *platform.Platform
	device       renderer.Device
	context      *renderer.Context
	watcher      *core.SettingsWatcher
	reloaded     chan *core.Settings
	width        uint32
	height       uint32
	clock        *core.Clock
	lastTime     float64
	lastStats    float64
}

func New(g *Game, settings *core.Settings) (*Engine, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if g.ApplicationConfig == nil {
		g.ApplicationConfig = &ApplicationConfig{}
	}
	e := &Engine{
		currentStage: EngineStageBooting,
		gameInstance: g,
		settings:     settings.Clone(),
		platform:     platform.New(),
		reloaded:     make(chan *core.Settings, pendingSettings),
		width:        settings.Application.Width,
		height:       settings.Application.Height,
		clock:        core.NewClock(),
	}
	e.currentStage = EngineStageBootComplete
	return e, nil
}

func (e *Engine) Stage() Stage { return e.currentStage }

// Context is nil until Initialize succeeds.
func (e *Engine) Context() *renderer.Context { return e.context }

// needsWindow reports whether the configured backend presents to a window.
// The other backends render offscreen.
func (e *Engine) needsWindow() bool {
	return e.settings.Renderer.API == core.APIVulkan
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing

	if !core.EventInitialize() {
		return fmt.Errorf("failed to initialize the event system")
	}
	core.EventRegister(core.EVENT_CODE_APPLICATION_QUIT, e, e.onEvent)
	core.EventRegister(core.EVENT_CODE_RESIZED, e, e.onResized)
	core.EventRegister(core.EVENT_CODE_SETTINGS_CHANGED, e, e.onSettingsChanged)

	opts := renderer.DeviceOptions{Settings: e.settings}
	if e.needsWindow() {
		app := e.gameInstance.ApplicationConfig
		if err := e.platform.Startup(e.settings.Application.Name, app.StartPosX, app.StartPosY, e.width, e.height); err != nil {
			return err
		}
		opts.Surface = e.platform
		// HiDPI framebuffers can differ from the requested window size.
		if w, h := e.platform.FramebufferSize(); w != 0 && h != 0 {
			e.width, e.height = w, h
		}
	}

	device, err := renderer.NewDevice(opts)
	if err != nil {
		return err
	}
	e.device = device

	ctxSettings := e.settings.Clone()
	ctxSettings.Application.Width, ctxSettings.Application.Height = e.width, e.height
	ctx, err := renderer.NewContext(device, ctxSettings)
	if err != nil {
		return err
	}
	e.context = ctx

	if path := e.gameInstance.ApplicationConfig.SettingsPath; path != "" {
		w, err := core.NewSettingsWatcher(path)
		if err != nil {
			core.LogWarn("settings reload disabled: %s", err)
		} else {
			e.watcher = w
			go e.watchSettings()
		}
	}

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(ctx); err != nil {
			return err
		}
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(e.width, e.height); err != nil {
			return err
		}
	}

	e.isRunning.Store(true)
	e.currentStage = EngineStageInitialized
	return nil
}

// watchSettings forwards reloaded settings files as events until the
// watcher is closed.
func (e *Engine) watchSettings() {
	updates, errs := e.watcher.Updates(), e.watcher.Errors()
	for updates != nil || errs != nil {
		select {
		case s, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			var ctx core.EventContext
			ctx.Data.Payload = s
			core.EventFire(core.EVENT_CODE_SETTINGS_CHANGED, e.watcher, ctx)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			core.LogWarn("settings reload failed: %s", err)
		}
	}
}

func (e *Engine) Run() error {
	if e.context == nil {
		return fmt.Errorf("engine is not initialized")
	}
	e.currentStage = EngineStageRunning
	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.ElapsedSeconds()
	e.lastStats = e.lastTime

	for e.isRunning.Load() {
		if !e.platform.PumpMessages() {
			break
		}
		if err := e.applyReloadedSettings(); err != nil {
			core.LogError("applying settings: %s", err)
		}
		if e.isSuspended {
			time.Sleep(suspendedPoll)
			continue
		}

		// Update clock and get delta time.
		e.clock.Update()
		currentTime := e.clock.ElapsedSeconds()
		delta := currentTime - e.lastTime
		e.lastTime = currentTime

		if e.gameInstance.FnUpdate != nil {
			if err := e.gameInstance.FnUpdate(delta); err != nil {
				return fmt.Errorf("game update failed: %w", err)
			}
		}
		// A quit raised during the update skips the frame.
		if !e.isRunning.Load() {
			break
		}
		if e.context.GetBackBuffer(e.context.GetFrameIndex()) == nil {
			if err := e.recreateSwapchain(); err != nil {
				return err
			}
			continue
		}
		if e.gameInstance.FnRender != nil {
			if err := e.gameInstance.FnRender(e.context, delta); err != nil {
				return fmt.Errorf("game render failed: %w", err)
			}
		}
		if err := e.present(); err != nil {
			return err
		}

		if currentTime-e.lastStats >= statsInterval {
			fps, ms := e.context.FrameStats()
			core.LogDebug("%.1f fps, %.3f ms per frame", fps, ms)
			e.lastStats = currentTime
		}
	}
	return nil
}

func (e *Engine) present() error {
	err := e.context.Present()
	if errors.Is(err, core.ErrSwapchainBooting) {
		return e.recreateSwapchain()
	}
	return err
}

// recreateSwapchain resizes to the current framebuffer. A zero sized
// framebuffer suspends the loop until the window comes back.
func (e *Engine) recreateSwapchain() error {
	if e.platform.Window != nil {
		e.width, e.height = e.platform.FramebufferSize()
	}
	if e.width == 0 || e.height == 0 {
		e.isSuspended = true
		return nil
	}
	core.LogDebug("recreating swapchain at %dx%d", e.width, e.height)
	return e.context.Resize(e.width, e.height)
}

func (e *Engine) applyReloadedSettings() error {
	select {
	case s := <-e.reloaded:
		if err := e.context.ApplySettings(s); err != nil {
			return err
		}
		e.settings = s
		return nil
	default:
		return nil
	}
}

// Quit stops the loop after the current frame. Safe to call from any
// goroutine.
func (e *Engine) Quit() {
	e.isRunning.Store(false)
}

func (e *Engine) Shutdown() error {
	e.currentStage = EngineStageShuttingDown
	e.isRunning.Store(false)

	var errs []error
	if e.watcher != nil {
		errs = append(errs, e.watcher.Close())
		e.watcher = nil
	}
	if e.context != nil {
		if e.gameInstance.FnShutdown != nil {
			errs = append(errs, e.gameInstance.FnShutdown(e.context))
		}
		errs = append(errs, e.context.Close())
		e.context = nil
	}
	if e.device != nil {
		e.device.Destroy()
		e.device = nil
	}
	errs = append(errs, e.platform.Shutdown())

	core.EventUnregister(core.EVENT_CODE_APPLICATION_QUIT, e)
	core.EventUnregister(core.EVENT_CODE_RESIZED, e)
	core.EventUnregister(core.EVENT_CODE_SETTINGS_CHANGED, e)
	e.currentStage = EngineStageUninitialized
	return errors.Join(errs...)
}

// GetFramebufferSize returns the width and height (in this order)
// of the application Framebuffer
func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

func (e *Engine) onEvent(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	if code == core.EVENT_CODE_APPLICATION_QUIT {
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.Quit()
		return true
	}
	return false
}

func (e *Engine) onResized(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	width, height := data.Data.U32[0], data.Data.U32[1]
	if width == e.width && height == e.height {
		return false
	}
	e.width, e.height = width, height
	core.LogDebug("Window resize: %d, %d", width, height)

	// Handle minimization
	if width == 0 || height == 0 {
		core.LogInfo("Window minimized, suspending application.")
		e.isSuspended = true
		return false
	}
	if e.isSuspended {
		core.LogInfo("Window restored, resuming application.")
		e.isSuspended = false
	}
	if err := e.context.Resize(width, height); err != nil {
		core.LogError("resizing: %s", err)
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(width, height); err != nil {
			core.LogError("game resize: %s", err)
		}
	}
	return false
}

// onSettingsChanged hands reloaded settings to the loop, which applies
// them between frames. A newer reload replaces one still waiting.
func (e *Engine) onSettingsChanged(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	s, ok := data.Data.Payload.(*core.Settings)
	if !ok {
		core.LogError("wrong payload %T for event code %d", data.Data.Payload, code)
		return false
	}
	for {
		select {
		case e.reloaded <- s:
			return false
		default:
		}
		select {
		case <-e.reloaded:
		default:
		}
	}
}
