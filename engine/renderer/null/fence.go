package null

import (
	"sync"
)

// Fence is a CPU timeline. Queue signals complete immediately unless the
// fence is held, in which case they queue up until Release; this lets tests
// stand in for a GPU that is still busy.
type Fence struct {
	mu        sync.Mutex
	cond      *sync.Cond
	completed uint64
	held      bool
	pending   []uint64
	waits     []uint64
	blocked   []uint64
	destroyed bool
}

func NewFence(initialValue uint64) *Fence {
	f := &Fence{completed: initialValue}
	f.cond = sync.NewCond(&f.mu)
	return f
}

func (f *Fence) GetCompletedValue() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completed
}

func (f *Fence) Wait(value uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waits = append(f.waits, value)
	if f.completed >= value {
		return nil
	}
	f.blocked = append(f.blocked, value)
	for f.completed < value {
		f.cond.Wait()
	}
	return nil
}

func (f *Fence) Signal(value uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.advance(value)
	return nil
}

func (f *Fence) advance(value uint64) {
	if value > f.completed {
		f.completed = value
		f.cond.Broadcast()
	}
}

func (f *Fence) queueSignal(value uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held {
		f.pending = append(f.pending, value)
		return
	}
	f.advance(value)
}

// Hold stops queue signals from completing.
func (f *Fence) Hold() {
	f.mu.Lock()
	f.held = true
	f.mu.Unlock()
}

// Release completes every held queue signal and stops holding.
func (f *Fence) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.held = false
	for _, v := range f.pending {
		f.advance(v)
	}
	f.pending = nil
}

// CompleteTo completes held queue signals up to value, keeping the hold.
func (f *Fence) CompleteTo(value uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rest := f.pending[:0]
	for _, v := range f.pending {
		if v <= value {
			f.advance(v)
		} else {
			rest = append(rest, v)
		}
	}
	f.pending = rest
}

// Waits returns every value passed to Wait.
func (f *Fence) Waits() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint64(nil), f.waits...)
}

// BlockedWaits returns the values of the Wait calls that had to block.
func (f *Fence) BlockedWaits() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint64(nil), f.blocked...)
}

func (f *Fence) Destroy() {
	f.mu.Lock()
	f.destroyed = true
	f.mu.Unlock()
}
