// Package wgpu implements the renderer backend over the gogpu/wgpu hal.
// It drives a Vulkan hal device when one is available and falls back to
// the hal no-op device otherwise; either way it renders offscreen.
package wgpu

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	_ "github.com/gogpu/wgpu/hal/noop"
	_ "github.com/gogpu/wgpu/hal/vulkan"

	"github.com/spaghettifunk/anima-hal/engine/core"
	"github.com/spaghettifunk/anima-hal/engine/renderer"
)

func init() {
	renderer.RegisterBackend(core.APIWGPU, func(opts renderer.DeviceOptions) (renderer.Device, error) {
		if opts.Surface != nil {
			core.LogWarn("wgpu backend renders offscreen; the window will not be presented to")
		}
		return NewDevice(opts.Settings, gputypes.BackendVulkan, gputypes.BackendEmpty)
	})
}

type Device struct {
	instance hal.Instance
	info     gputypes.AdapterInfo
	device   hal.Device
	queue    hal.Queue

	// submitMu keeps submissions and their indices in the order fences see.
	submitMu       sync.Mutex
	lastSubmission uint64
}

// NewDevice opens the first hal backend of variants that exposes an
// adapter.
func NewDevice(settings *core.Settings, variants ...gputypes.Backend) (*Device, error) {
	flags := gputypes.InstanceFlagsNone
	if settings.Renderer.Validation {
		flags = gputypes.InstanceFlagsDebug | gputypes.InstanceFlagsValidation
	}
	var errs []error
	for _, variant := range variants {
		backend, ok := hal.GetBackend(variant)
		if !ok {
			errs = append(errs, fmt.Errorf("%s: %w", variant, hal.ErrBackendNotFound))
			continue
		}
		d, err := open(backend, flags, settings.Renderer.RequiredGPUIndex)
		if err != nil {
			core.LogWarn("wgpu: %s backend unavailable: %s", variant, err)
			errs = append(errs, err)
			continue
		}
		return d, nil
	}
	return nil, fmt.Errorf("wgpu: no usable hal backend: %w", errors.Join(errs...))
}

func open(backend hal.Backend, flags gputypes.InstanceFlags, requiredIndex uint32) (*Device, error) {
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{
		Backends: gputypes.BackendsAll,
		Flags:    flags,
	})
	if err != nil {
		return nil, err
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("no adapters")
	}
	if requiredIndex >= uint32(len(adapters)) {
		instance.Destroy()
		return nil, fmt.Errorf("%w: required_gpu_index %d, %d adapters present", core.ErrInvalidSettings, requiredIndex, len(adapters))
	}
	exposed := adapters[requiredIndex]
	opened, err := exposed.Adapter.Open(0, exposed.Capabilities.Limits)
	if err != nil {
		instance.Destroy()
		return nil, err
	}
	core.LogInfo("Selected adapter: '%s' (%s, %s)", exposed.Info.Name, deviceTypeName(exposed.Info.DeviceType), exposed.Info.Backend)
	return &Device{
		instance: instance,
		info:     exposed.Info,
		device:   opened.Device,
		queue:    opened.Queue,
	}, nil
}

func (d *Device) Name() string { return "wgpu: " + d.info.Name }

// submit hands buffers to the queue and returns the submission index.
// Empty submissions reuse the last index.
func (d *Device) submit(buffers []hal.CommandBuffer) (uint64, error) {
	d.submitMu.Lock()
	defer d.submitMu.Unlock()
	if len(buffers) == 0 {
		return d.lastSubmission, nil
	}
	index, err := d.queue.Submit(buffers)
	if err != nil {
		return 0, halError("submit", err)
	}
	d.lastSubmission = index
	return index, nil
}

func (d *Device) completedSubmission() uint64 {
	return d.queue.PollCompleted()
}

func (d *Device) CreateFence(initialValue uint64) (renderer.Fence, error) {
	return newFence(d, initialValue), nil
}

// Signal completes value once everything submitted so far has retired.
func (d *Device) Signal(fence renderer.Fence, value uint64) error {
	f, ok := fence.(*Fence)
	if !ok {
		return fmt.Errorf("wgpu: foreign fence %T", fence)
	}
	index, err := d.submit(nil)
	if err != nil {
		return err
	}
	f.enqueue(value, index)
	return nil
}

// Wait is satisfied by queue order for values already queued.
func (d *Device) Wait(fence renderer.Fence, value uint64) error {
	f, ok := fence.(*Fence)
	if !ok {
		return fmt.Errorf("wgpu: foreign fence %T", fence)
	}
	if !f.reached(value) {
		return fmt.Errorf("wgpu: queue wait for fence value %d that was never signalled", value)
	}
	return nil
}

func (d *Device) Destroy() {
	if d.device != nil {
		if err := d.device.WaitIdle(); err != nil {
			core.LogWarn("wgpu: waiting for idle before destroy: %s", err)
		}
		d.device.Destroy()
		d.device = nil
	}
	if d.instance != nil {
		d.instance.Destroy()
		d.instance = nil
	}
	core.LogInfo("wgpu device destroyed")
}

func halError(op string, err error) error {
	if errors.Is(err, hal.ErrDeviceLost) {
		core.LogError("wgpu: %s: device lost", op)
		return fmt.Errorf("%s: %w", op, core.ErrDeviceLost)
	}
	return fmt.Errorf("wgpu: %s: %w", op, err)
}
