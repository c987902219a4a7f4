package wgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/spaghettifunk/anima-hal/engine/core"
	"github.com/spaghettifunk/anima-hal/engine/renderer"
	"github.com/spaghettifunk/anima-hal/engine/renderer/metadata"
)

// CommandList owns one hal encoder. Closing it yields the command buffer
// that ExecuteCommandLists submits; reopening recycles that buffer.
type CommandList struct {
	device  *Device
	encoder hal.CommandEncoder
	buffer  hal.CommandBuffer
	open    bool
}

func (d *Device) CreateCommandList() (renderer.NativeCommandList, error) {
	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "command list"})
	if err != nil {
		return nil, halError("creating command encoder", err)
	}
	return &CommandList{device: d, encoder: encoder}, nil
}

// Open starts recording. The previous buffer must have retired, which the
// frame slots guarantee before they hand a list out again.
func (l *CommandList) Open() error {
	if l.open {
		return core.ErrCommandListOpen
	}
	if l.buffer != nil {
		l.encoder.ResetAll([]hal.CommandBuffer{l.buffer})
		l.buffer = nil
	}
	if err := l.encoder.BeginEncoding("command list"); err != nil {
		return halError("begin encoding", err)
	}
	l.open = true
	return nil
}

func (l *CommandList) Close() error {
	if !l.open {
		return core.ErrCommandListNotOpen
	}
	l.open = false
	buffer, err := l.encoder.EndEncoding()
	if err != nil {
		return halError("end encoding", err)
	}
	l.buffer = buffer
	return nil
}

func (l *CommandList) ResourceBarrier(transitions []renderer.ResolvedTransition) {
	if !l.open {
		core.LogError("recording %d barriers into a closed command list", len(transitions))
		return
	}
	textures, buffers := buildBarriers(transitions)
	if len(buffers) > 0 {
		l.encoder.TransitionBuffers(buffers)
	}
	if len(textures) > 0 {
		l.encoder.TransitionTextures(textures)
	}
}

func (l *CommandList) Destroy() {
	if l.encoder == nil {
		return
	}
	if l.open {
		l.encoder.DiscardEncoding()
	}
	if l.buffer != nil {
		l.encoder.ResetAll([]hal.CommandBuffer{l.buffer})
		l.buffer = nil
	}
	l.encoder.Destroy()
	l.encoder = nil
}

// buildBarriers turns resolved transitions into hal barriers. Transitions
// into Present are left to the queue, which owns that layout change.
func buildBarriers(transitions []renderer.ResolvedTransition) ([]hal.TextureBarrier, []hal.BufferBarrier) {
	var textures []hal.TextureBarrier
	var buffers []hal.BufferBarrier
	for _, t := range transitions {
		native, ok := t.Resource.Native().(*Resource)
		if !ok {
			core.LogWarn("skipping barrier on foreign resource %s", t.Resource.Name())
			continue
		}
		if t.After == metadata.ResourceStatePresent {
			continue
		}
		before, okBefore := translateState(t.Before)
		after, okAfter := translateState(t.After)
		if !okBefore || !okAfter {
			core.LogError("untranslatable transition %s", t)
			continue
		}
		switch {
		case native.texture != nil:
			textures = append(textures, hal.TextureBarrier{
				Texture: native.texture,
				Range: hal.TextureRange{
					Aspect:          gputypes.TextureAspectAll,
					BaseMipLevel:    t.MipLevel,
					MipLevelCount:   1,
					BaseArrayLayer:  t.ArrayLayer,
					ArrayLayerCount: 1,
				},
				Usage: hal.TextureUsageTransition{OldUsage: before.texture, NewUsage: after.texture},
			})
		case native.buffer != nil:
			buffers = append(buffers, hal.BufferBarrier{
				Buffer: native.buffer,
				Usage:  hal.BufferUsageTransition{OldUsage: before.buffer, NewUsage: after.buffer},
			})
		}
	}
	return textures, buffers
}

// ExecuteCommandLists submits the lists' buffers in slice order as one
// queue submission.
func (d *Device) ExecuteCommandLists(lists []renderer.NativeCommandList) error {
	buffers := make([]hal.CommandBuffer, 0, len(lists))
	for _, l := range lists {
		cl, ok := l.(*CommandList)
		if !ok {
			return fmt.Errorf("wgpu: executing a foreign command list %T", l)
		}
		if cl.open {
			return core.ErrCommandListOpen
		}
		if cl.buffer == nil {
			return fmt.Errorf("wgpu: executing a list that was never recorded")
		}
		buffers = append(buffers, cl.buffer)
	}
	_, err := d.submit(buffers)
	return err
}
