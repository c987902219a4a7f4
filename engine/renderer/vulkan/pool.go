package vulkan

import "sync"

// lockPool hands out one mutex per queue family. Queues are externally
// synchronized in Vulkan, and submission, signalling and presentation may
// come from different goroutines.
type lockPool struct {
	mu     sync.Mutex
	queues map[uint32]*sync.Mutex
}

func newLockPool() *lockPool {
	return &lockPool{queues: make(map[uint32]*sync.Mutex)}
}

func (p *lockPool) queue(family uint32) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.queues[family]
	if !ok {
		l = &sync.Mutex{}
		p.queues[family] = l
	}
	return l
}

// withQueue runs fn while holding the lock of the queue family.
func (p *lockPool) withQueue(family uint32, fn func() error) error {
	l := p.queue(family)
	l.Lock()
	defer l.Unlock()
	return fn()
}
