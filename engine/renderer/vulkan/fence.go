package vulkan

import (
	"fmt"
	"math"
	"sync"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-hal/engine/core"
)

// pendingSignal is a queue-side signal of value, observable through the
// binary fence that was attached to its submission.
type pendingSignal struct {
	value  uint64
	handle vk.Fence
}

// Fence is a timeline counter built over binary fences. Every queue-side
// signal submits a binary fence; the completed value is the value of the
// newest signal whose fence is signaled. Pending signals complete in queue
// order, so polling stops at the first unfinished one.
type Fence struct {
	device *Device

	mu        sync.Mutex
	cond      *sync.Cond
	completed uint64
	queued    uint64
	pending   []pendingSignal
	spent     []vk.Fence
	free      []vk.Fence
	waiting   int
	destroyed bool
}

func newFence(device *Device, initialValue uint64) *Fence {
	f := &Fence{device: device, completed: initialValue, queued: initialValue}
	f.cond = sync.NewCond(&f.mu)
	return f
}

func (f *Fence) GetCompletedValue() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.pollLocked(); err != nil {
		core.LogError("polling fence: %s", err)
	}
	return f.completed
}

// Wait blocks until the completed value reaches value. There is no
// timeout: a hung device blocks the caller.
func (f *Fence) Wait(value uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for {
		if err := f.pollLocked(); err != nil {
			return err
		}
		if f.completed >= value {
			return nil
		}
		target, ok := f.firstPendingAtLeast(value)
		if !ok {
			// only a CPU signal can get us there
			f.cond.Wait()
			continue
		}
		f.waiting++
		f.mu.Unlock()
		res := vk.WaitForFences(f.device.logical, 1, []vk.Fence{target}, vk.True, math.MaxUint64)
		f.mu.Lock()
		f.waiting--
		if err := resultError("vkWaitForFences", res); err != nil {
			return err
		}
	}
}

// Signal advances the completed value from the CPU.
func (f *Fence) Signal(value uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if value > f.completed {
		f.completed = value
	}
	if value > f.queued {
		f.queued = value
	}
	f.cond.Broadcast()
	return nil
}

// reached reports whether value has been signalled or queued for signalling.
func (f *Fence) reached(value uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return value <= f.queued
}

func (f *Fence) firstPendingAtLeast(value uint64) (vk.Fence, bool) {
	for _, p := range f.pending {
		if p.value >= value {
			return p.handle, true
		}
	}
	return nil, false
}

func (f *Fence) pollLocked() error {
	retired := 0
	for _, p := range f.pending {
		res := vk.GetFenceStatus(f.device.logical, p.handle)
		if res == vk.NotReady {
			break
		}
		if err := resultError("vkGetFenceStatus", res); err != nil {
			return err
		}
		if p.value > f.completed {
			f.completed = p.value
		}
		retired++
	}
	if retired > 0 {
		for _, p := range f.pending[:retired] {
			f.spent = append(f.spent, p.handle)
		}
		f.pending = append([]pendingSignal(nil), f.pending[retired:]...)
		f.cond.Broadcast()
	}
	// a waiter may still be blocked on a spent handle
	if f.waiting > 0 {
		return nil
	}
	for _, h := range f.spent {
		if err := resultError("vkResetFences", vk.ResetFences(f.device.logical, 1, []vk.Fence{h})); err != nil {
			return err
		}
		f.free = append(f.free, h)
	}
	f.spent = f.spent[:0]
	return nil
}

// acquire returns an unsignaled binary fence to attach to a submission.
func (f *Fence) acquire() (vk.Fence, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.destroyed {
		return nil, fmt.Errorf("vulkan: signalling a destroyed fence")
	}
	if n := len(f.free); n > 0 {
		h := f.free[n-1]
		f.free = f.free[:n-1]
		return h, nil
	}
	info := vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo}
	var h vk.Fence
	if err := resultError("vkCreateFence", vk.CreateFence(f.device.logical, &info, nil, &h)); err != nil {
		return nil, err
	}
	return h, nil
}

// enqueue records that handle was submitted to signal value.
func (f *Fence) enqueue(value uint64, handle vk.Fence) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = append(f.pending, pendingSignal{value: value, handle: handle})
	if value > f.queued {
		f.queued = value
	}
	f.cond.Broadcast()
}

// recycle returns a fence whose submission failed.
func (f *Fence) recycle(handle vk.Fence) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.free = append(f.free, handle)
}

func (f *Fence) Destroy() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.destroyed {
		return
	}
	f.destroyed = true
	for _, p := range f.pending {
		vk.WaitForFences(f.device.logical, 1, []vk.Fence{p.handle}, vk.True, math.MaxUint64)
		vk.DestroyFence(f.device.logical, p.handle, nil)
	}
	for _, h := range append(f.spent, f.free...) {
		vk.DestroyFence(f.device.logical, h, nil)
	}
	f.pending, f.spent, f.free = nil, nil, nil
}
