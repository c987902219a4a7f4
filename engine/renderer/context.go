package renderer

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/anima-hal/engine/core"
	"github.com/spaghettifunk/anima-hal/engine/renderer/metadata"
)

// Context is the submission side of the renderer. It resolves lazy barriers,
// paces frames against a single fence and owns the swapchain and the
// descriptor pools. All methods serialize on one mutex; command lists are
// recorded outside of it.
type Context struct {
	mu sync.Mutex

	device   Device
	settings *core.Settings

	fence      Fence
	fenceValue uint64

	swapchain   Swapchain
	backBuffers []*Resource
	width       uint32
	height      uint32

	frames     []*frameSlot
	frameIndex uint32

	descriptors *DescriptorPool
	bindless    *BindlessDescriptorPool

	clock     *core.Clock
	metrics   *core.FrameMetrics
	lastFrame float64

	closed bool
}

// NewContext builds a context on device. settings is copied; later changes
// go through ApplySettings.
func NewContext(device Device, settings *core.Settings) (*Context, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	c := &Context{
		device:   device,
		settings: settings.Clone(),
		width:    settings.Application.Width,
		height:   settings.Application.Height,
		clock:    core.NewClock(),
		metrics:  core.NewFrameMetrics(),
	}

	fence, err := device.CreateFence(0)
	if err != nil {
		return nil, fmt.Errorf("creating fence: %w", err)
	}
	c.fence = fence

	d := c.settings.Descriptors
	c.descriptors = NewDescriptorPool(device, d.InitialHeapSize, d.MaxDescriptors)
	c.bindless = NewBindlessDescriptorPool(device, d.BindlessHeapSize)

	if err := c.createFrames(c.settings.Renderer.FrameCount); err != nil {
		c.destroyLocked()
		return nil, err
	}
	if err := c.createSwapchain(); err != nil {
		c.destroyLocked()
		return nil, err
	}
	c.clock.Start()
	core.LogInfo("context created on %s with %d frames", device.Name(), len(c.frames))
	return c, nil
}

// createFrames replaces the frame slots only once all of them exist. On
// failure the slots built so far are destroyed and c.frames is untouched.
func (c *Context) createFrames(count uint32) error {
	frames := make([]*frameSlot, 0, count)
	for i := uint32(0); i < count; i++ {
		native, err := c.device.CreateCommandList()
		if err != nil {
			for _, f := range frames {
				f.destroy()
			}
			return fmt.Errorf("creating present list %d: %w", i, err)
		}
		frames = append(frames, &frameSlot{presentList: NewCommandList(native)})
	}
	c.frames = frames
	c.frameIndex = 0
	return nil
}

func (c *Context) createSwapchain() error {
	if c.width == 0 || c.height == 0 {
		core.LogDebug("skipping swapchain creation for %dx%d", c.width, c.height)
		return nil
	}
	sc, err := c.device.CreateSwapchain(metadata.SwapchainDesc{
		Width:      c.width,
		Height:     c.height,
		FrameCount: uint32(len(c.frames)),
		VSync:      c.settings.Renderer.VSync,
		Format:     metadata.FormatBGRA8Unorm,
	})
	if err != nil {
		return fmt.Errorf("creating swapchain: %w", err)
	}
	c.swapchain = sc
	c.backBuffers = make([]*Resource, sc.ImageCount())
	for i := range c.backBuffers {
		bb := NewResource(sc.GetBackBuffer(uint32(i)), metadata.ResourceDesc{
			Name:      fmt.Sprintf("back buffer %d", i),
			Type:      metadata.ResourceTypeTexture,
			Format:    sc.Format(),
			BindFlags: metadata.BindFlagRenderTarget | metadata.BindFlagCopyDest,
			Width:     c.width,
			Height:    c.height,
		})
		bb.SetInitialState(metadata.ResourceStatePresent)
		c.backBuffers[i] = bb
	}
	c.frameIndex = 0
	core.LogInfo("swapchain created: %dx%d, %d images, vsync %t", c.width, c.height, len(c.backBuffers), c.settings.Renderer.VSync)
	return nil
}

func (c *Context) destroySwapchain() {
	for _, bb := range c.backBuffers {
		bb.Release()
	}
	c.backBuffers = nil
	if c.swapchain != nil {
		c.swapchain.Destroy()
		c.swapchain = nil
	}
}

func (c *Context) Device() Device                        { return c.device }
func (c *Context) Fence() Fence                          { return c.fence }
func (c *Context) DescriptorPool() *DescriptorPool       { return c.descriptors }
func (c *Context) BindlessPool() *BindlessDescriptorPool { return c.bindless }

func (c *Context) FrameCount() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return uint32(len(c.frames))
}

func (c *Context) GetFrameIndex() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frameIndex
}

// GetBackBuffer returns swapchain image index, or nil while there is no
// swapchain (zero sized window).
func (c *Context) GetBackBuffer(index uint32) *Resource {
	c.mu.Lock()
	defer c.mu.Unlock()
	if int(index) >= len(c.backBuffers) {
		return nil
	}
	return c.backBuffers[index]
}

// FenceValue is the last value the context signaled.
func (c *Context) FenceValue() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fenceValue
}

// FrameStats returns frames per second and the average frame time in
// milliseconds over the last frames.
func (c *Context) FrameStats() (fps float64, frameTimeMs float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metrics.Frame()
}

func (c *Context) CreateResource(desc metadata.ResourceDesc) (*Resource, error) {
	native, err := c.device.CreateResource(desc)
	if err != nil {
		return nil, fmt.Errorf("creating resource %q: %w", desc.Name, err)
	}
	return NewResource(native, desc), nil
}

func (c *Context) CreateView(resource *Resource, desc metadata.ViewDesc) (*View, error) {
	return newView(c.device, resource, desc, c.descriptors, c.bindless)
}

// ReleaseView destroys view once the GPU work of the current frame has
// retired, freeing its descriptor slots at that point.
func (c *Context) ReleaseView(view *View) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		view.Destroy()
		return
	}
	slot := c.frames[c.frameIndex]
	slot.pendingViews = append(slot.pendingViews, view)
}

func (c *Context) CreateCommandList() (*CommandList, error) {
	native, err := c.device.CreateCommandList()
	if err != nil {
		return nil, err
	}
	return NewCommandList(native), nil
}

func (c *Context) waitFence(value uint64) error {
	if c.fence.GetCompletedValue() >= value {
		return nil
	}
	core.LogDebug("waiting for fence value %d (completed %d)", value, c.fence.GetCompletedValue())
	return c.fence.Wait(value)
}

// ExecuteCommandLists submits closed lists in order. For every list with
// unresolved barriers a barrier-only list is inserted right before it. The
// global trackers are updated list by list, so a later list sees the
// state an earlier one left. The whole call is one submission followed by
// one fence signal.
func (c *Context) ExecuteCommandLists(lists []*CommandList) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.executeLocked(lists)
}

func (c *Context) executeLocked(lists []*CommandList) error {
	if c.closed {
		return core.ErrContextClosed
	}
	if len(lists) == 0 {
		return nil
	}
	for _, l := range lists {
		if l.IsOpen() {
			return core.ErrCommandListOpen
		}
	}

	slot := c.frames[c.frameIndex]
	signal := c.fenceValue + 1
	raw := make([]NativeCommandList, 0, 2*len(lists))
	var tmps []*tmpCommandList
	saved := make(map[*Resource]ResourceStateTracker)
	resolved := 0

	// Later lists resolve against the states committed by earlier ones, so
	// the commits happen before submission and are undone if it fails.
	rollback := func() {
		for res, s := range saved {
			res.GetGlobalResourceStateTracker().restore(s)
		}
	}

	for _, l := range lists {
		transitions := ResolveLazyBarriers(l)
		if len(transitions) > 0 {
			tmp, err := c.acquireTmpList(slot)
			if err != nil {
				rollback()
				return err
			}
			if err := tmp.native.Open(); err != nil {
				rollback()
				return err
			}
			tmp.native.ResourceBarrier(transitions)
			if err := tmp.native.Close(); err != nil {
				rollback()
				return err
			}
			tmps = append(tmps, tmp)
			raw = append(raw, tmp.native)
			resolved += len(transitions)
		}
		raw = append(raw, l.native)
		for _, res := range l.touched {
			if _, ok := saved[res]; !ok && !res.IsDestroyed() {
				saved[res] = res.GetGlobalResourceStateTracker().snapshot()
			}
		}
		CommitLocalState(l)
	}

	if err := c.device.ExecuteCommandLists(raw); err != nil {
		rollback()
		return fmt.Errorf("executing %d command lists: %w", len(raw), err)
	}
	// The work is queued from here on, so the committed states stay. Fence
	// values are only recorded once the signal that retires them is queued.
	if err := c.device.Signal(c.fence, signal); err != nil {
		return fmt.Errorf("signaling fence %d: %w", signal, err)
	}
	c.fenceValue = signal
	for _, tmp := range tmps {
		tmp.fenceValue = signal
	}
	for _, l := range lists {
		l.fence = c.fence
		l.fenceValue = signal
	}
	core.LogDebug("submitted %d lists (%d native), %d transitions, fence %d", len(lists), len(raw), resolved, signal)
	return nil
}

// WaitIdle blocks until everything submitted so far has retired.
func (c *Context) WaitIdle() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waitIdleLocked()
}

func (c *Context) waitIdleLocked() error {
	value := c.fenceValue + 1
	if err := c.device.Signal(c.fence, value); err != nil {
		return err
	}
	c.fenceValue = value
	return c.fence.Wait(value)
}

// Present moves the current back buffer to Present, submits it and advances
// to the next frame slot. Before the current slot's objects are reused it
// waits for the fence value recorded when the slot was last presented.
func (c *Context) Present() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return core.ErrContextClosed
	}
	if c.swapchain == nil {
		return core.ErrSwapchainBooting
	}

	slot := c.frames[c.frameIndex]
	if err := c.waitFence(slot.fenceValue); err != nil {
		return err
	}
	slot.retire()

	backBuffer := c.backBuffers[int(c.frameIndex)%len(c.backBuffers)]
	list := slot.presentList
	if err := list.Open(); err != nil {
		return err
	}
	if err := list.UseResource(backBuffer, metadata.ResourceStatePresent, metadata.AllSubresources()); err != nil {
		return err
	}
	if err := list.Close(); err != nil {
		return err
	}

	acquired := c.fenceValue + 1
	image, err := c.swapchain.NextImage(c.fence, acquired)
	if err != nil {
		return fmt.Errorf("acquiring swapchain image: %w", err)
	}
	c.fenceValue = acquired
	if image != c.frameIndex%uint32(len(c.backBuffers)) {
		core.LogWarn("swapchain returned image %d for frame %d", image, c.frameIndex)
	}
	if err := c.device.Wait(c.fence, c.fenceValue); err != nil {
		return err
	}
	if err := c.executeLocked([]*CommandList{list}); err != nil {
		return err
	}
	slot.fenceValue = c.fenceValue
	slot.advance()
	if err := c.swapchain.Present(c.fence, c.fenceValue); err != nil {
		return fmt.Errorf("presenting: %w", err)
	}

	c.frameIndex = (c.frameIndex + 1) % uint32(len(c.frames))
	c.frames[c.frameIndex].tmpOffset = 0

	c.clock.Update()
	now := c.clock.ElapsedSeconds()
	c.metrics.Update(now - c.lastFrame)
	c.lastFrame = now
	return nil
}

// Resize recreates the swapchain for the new extent after the GPU has gone
// idle. A zero extent drops the swapchain until the next non-zero resize.
func (c *Context) Resize(width, height uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrContextClosed
	}
	if width == c.width && height == c.height && c.swapchain != nil {
		return nil
	}
	if err := c.waitIdleLocked(); err != nil {
		return err
	}
	c.destroySwapchain()
	c.width, c.height = width, height
	return c.createSwapchain()
}

// ApplySettings applies a new configuration. Log level changes take effect
// at once; frame count and vsync changes rebuild the frame slots and the
// swapchain. Descriptor pool sizes only apply to a new context.
func (c *Context) ApplySettings(settings *core.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrContextClosed
	}

	old := c.settings
	c.settings = settings.Clone()
	core.SetLogLevel(settings.Log.Level)

	frameCountChanged := old.Renderer.FrameCount != settings.Renderer.FrameCount
	if !frameCountChanged && old.Renderer.VSync == settings.Renderer.VSync {
		return nil
	}
	if err := c.waitIdleLocked(); err != nil {
		return err
	}
	c.destroySwapchain()
	if frameCountChanged {
		previous := c.frames
		if err := c.createFrames(settings.Renderer.FrameCount); err != nil {
			c.settings = old
			core.SetLogLevel(old.Log.Level)
			if serr := c.createSwapchain(); serr != nil {
				core.LogError("restoring swapchain: %s", serr)
			}
			return err
		}
		for _, f := range previous {
			f.destroy()
		}
	}
	core.LogInfo("settings applied: frames %d, vsync %t", len(c.frames), settings.Renderer.VSync)
	return c.createSwapchain()
}

// Close waits for the GPU and destroys everything the context owns. The
// device itself stays with the caller.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrContextClosed
	}
	err := c.waitIdleLocked()
	c.destroyLocked()
	return err
}

func (c *Context) destroyLocked() {
	c.closed = true
	c.destroySwapchain()
	for _, f := range c.frames {
		if f != nil {
			f.destroy()
		}
	}
	c.frames = nil
	if c.descriptors != nil {
		c.descriptors.Destroy()
	}
	if c.bindless != nil {
		c.bindless.Destroy()
	}
	if c.fence != nil {
		c.fence.Destroy()
	}
}
