package null

import (
	"sync"

	"github.com/spaghettifunk/anima-hal/engine/core"
	"github.com/spaghettifunk/anima-hal/engine/renderer"
)

// CommandList records the barriers written into it since the last Open.
type CommandList struct {
	mu          sync.Mutex
	id          int
	open        bool
	opens       int
	transitions []renderer.ResolvedTransition
	destroyed   bool
}

func (cl *CommandList) ID() int { return cl.id }

func (cl *CommandList) Open() error {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.open {
		return core.ErrCommandListOpen
	}
	cl.open = true
	cl.opens++
	cl.transitions = nil
	return nil
}

func (cl *CommandList) Close() error {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if !cl.open {
		return core.ErrCommandListNotOpen
	}
	cl.open = false
	return nil
}

func (cl *CommandList) ResourceBarrier(transitions []renderer.ResolvedTransition) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if !cl.open {
		core.LogError("null: barrier recorded into closed list %d", cl.id)
		return
	}
	cl.transitions = append(cl.transitions, transitions...)
}

func (cl *CommandList) IsOpen() bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.open
}

// Opens counts how many times the list has been opened.
func (cl *CommandList) Opens() int {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.opens
}

func (cl *CommandList) Transitions() []renderer.ResolvedTransition {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return append([]renderer.ResolvedTransition(nil), cl.transitions...)
}

func (cl *CommandList) Destroy() {
	cl.mu.Lock()
	cl.destroyed = true
	cl.mu.Unlock()
}
