package wgpu

import (
	"sync"

	"github.com/spaghettifunk/anima-hal/engine/core"
)

// pendingSignal is a queue signal that completes once the queue has retired
// submission.
type pendingSignal struct {
	value      uint64
	submission uint64
}

// Fence is a timeline over queue submission indices. hal queues report the
// last retired submission; a queued signal completes when its submission
// does.
type Fence struct {
	device *Device

	mu        sync.Mutex
	cond      *sync.Cond
	completed uint64
	queued    uint64
	pending   []pendingSignal
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
	f.pollLocked()
	return f.completed
}

func (f *Fence) Wait(value uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for {
		f.pollLocked()
		if f.completed >= value {
			return nil
		}
		if f.destroyed {
			return core.ErrDeviceLost
		}
		if !f.coveredLocked(value) {
			// Only a CPU Signal can get us there.
			f.cond.Wait()
			continue
		}
		f.mu.Unlock()
		err := f.device.device.WaitIdle()
		f.mu.Lock()
		if err != nil {
			return err
		}
	}
}

func (f *Fence) Signal(value uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.advanceLocked(value)
	if value > f.queued {
		f.queued = value
	}
	return nil
}

// reached reports whether value is completed or already queued.
func (f *Fence) reached(value uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queued >= value || f.completed >= value
}

func (f *Fence) coveredLocked(value uint64) bool {
	for _, p := range f.pending {
		if p.value >= value {
			return true
		}
	}
	return false
}

func (f *Fence) enqueue(value, submission uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if value > f.queued {
		f.queued = value
	}
	f.pending = append(f.pending, pendingSignal{value: value, submission: submission})
	f.pollLocked()
}

func (f *Fence) pollLocked() {
	if len(f.pending) == 0 {
		return
	}
	retired := f.device.completedSubmission()
	rest := f.pending[:0]
	for _, p := range f.pending {
		if p.submission <= retired {
			f.advanceLocked(p.value)
		} else {
			rest = append(rest, p)
		}
	}
	f.pending = rest
}

func (f *Fence) advanceLocked(value uint64) {
	if value > f.completed {
		f.completed = value
		f.cond.Broadcast()
	}
}

func (f *Fence) Destroy() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyed = true
	f.pending = nil
	f.cond.Broadcast()
}
