package renderer

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/anima-hal/engine/containers"
	"github.com/spaghettifunk/anima-hal/engine/core"
	"github.com/spaghettifunk/anima-hal/engine/math"
	"github.com/spaghettifunk/anima-hal/engine/renderer/metadata"
)

// DescriptorHandle addresses one descriptor slot. Heap indexes the heap list
// of the category; heaps are only ever appended, so a handle stays valid
// across growth.
type DescriptorHandle struct {
	Category metadata.DescriptorCategory
	Heap     uint32
	Offset   uint32
}

func (h DescriptorHandle) String() string {
	return fmt.Sprintf("%s[%d:%d]", h.Category, h.Heap, h.Offset)
}

type categoryHeaps struct {
	heaps    []DescriptorHeap
	free     *containers.RingQueue[DescriptorHandle]
	live     map[DescriptorHandle]struct{}
	cursor   uint32 // first never-issued offset in the last heap
	capacity uint32
}

// DescriptorPool hands out CPU descriptor slots per category. Freed slots
// go to a FIFO free list and are reused before any heap grows. When every
// heap of a category is full a new heap twice the size of the previous one
// is appended, up to maxSize descriptors in total.
type DescriptorPool struct {
	mu          sync.Mutex
	device      Device
	initialSize uint32
	maxSize     uint32
	categories  [metadata.DescriptorCategoryCount]*categoryHeaps
}

func NewDescriptorPool(device Device, initialSize, maxSize uint32) *DescriptorPool {
	if initialSize == 0 {
		initialSize = 1
	}
	if maxSize < initialSize {
		maxSize = initialSize
	}
	p := &DescriptorPool{
		device:      device,
		initialSize: initialSize,
		maxSize:     maxSize,
	}
	for i := range p.categories {
		p.categories[i] = &categoryHeaps{
			free: containers.NewGrowingRingQueue[DescriptorHandle](int(initialSize)),
			live: make(map[DescriptorHandle]struct{}),
		}
	}
	return p
}

func (p *DescriptorPool) category(c metadata.DescriptorCategory) (*categoryHeaps, error) {
	if c < 0 || c >= metadata.DescriptorCategoryCount {
		return nil, fmt.Errorf("%w: category %d", core.ErrInvalidDescriptor, int(c))
	}
	return p.categories[c], nil
}

// AllocateDescriptor returns a slot not owned by any live view.
func (p *DescriptorPool) AllocateDescriptor(category metadata.DescriptorCategory) (DescriptorHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.category(category)
	if err != nil {
		return DescriptorHandle{}, err
	}

	if !ch.free.IsEmpty() {
		h, _ := ch.free.Dequeue()
		ch.live[h] = struct{}{}
		return h, nil
	}

	if n := len(ch.heaps); n == 0 || ch.cursor == ch.heaps[n-1].Capacity() {
		if err := p.grow(category, ch); err != nil {
			return DescriptorHandle{}, err
		}
	}
	h := DescriptorHandle{
		Category: category,
		Heap:     uint32(len(ch.heaps) - 1),
		Offset:   ch.cursor,
	}
	ch.cursor++
	ch.live[h] = struct{}{}
	return h, nil
}

func (p *DescriptorPool) grow(category metadata.DescriptorCategory, ch *categoryHeaps) error {
	size := p.initialSize
	if n := len(ch.heaps); n > 0 {
		size = ch.heaps[n-1].Capacity() * 2
	}
	size = math.Min(size, math.SaturatingSub(p.maxSize, ch.capacity))
	if size == 0 {
		core.LogError("descriptor pool exhausted for %s (%d descriptors live)", category, len(ch.live))
		return fmt.Errorf("%w: %s at %d", core.ErrDescriptorPoolExhausted, category, ch.capacity)
	}
	heap, err := p.device.CreateDescriptorHeap(category, size)
	if err != nil {
		return err
	}
	ch.heaps = append(ch.heaps, heap)
	ch.cursor = 0
	ch.capacity += size
	core.LogDebug("descriptor heap %s grown by %d to %d", category, size, ch.capacity)
	return nil
}

// Free returns h to the free list and clears its heap entry. Freeing a
// handle that is not live is an error; the free list never holds a slot
// twice.
func (p *DescriptorPool) Free(h DescriptorHandle) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.category(h.Category)
	if err != nil {
		return err
	}
	if int(h.Heap) >= len(ch.heaps) || h.Offset >= ch.heaps[h.Heap].Capacity() {
		return fmt.Errorf("%w: %s", core.ErrInvalidDescriptor, h)
	}
	if _, ok := ch.live[h]; !ok {
		return fmt.Errorf("%w: %s", core.ErrDescriptorDoubleFree, h)
	}
	delete(ch.live, h)
	ch.heaps[h.Heap].Clear(h.Offset)
	return ch.free.Enqueue(h)
}

// Write stores view into the slot addressed by h.
func (p *DescriptorPool) Write(h DescriptorHandle, view NativeView) error {
	heap, err := p.Heap(h)
	if err != nil {
		return err
	}
	return heap.Write(h.Offset, view)
}

// Heap returns the backing heap of a live handle.
func (p *DescriptorPool) Heap(h DescriptorHandle) (DescriptorHeap, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.category(h.Category)
	if err != nil {
		return nil, err
	}
	if _, ok := ch.live[h]; !ok {
		return nil, fmt.Errorf("%w: %s not live", core.ErrInvalidDescriptor, h)
	}
	return ch.heaps[h.Heap], nil
}

// Capacity is the number of slots across every heap of category.
func (p *DescriptorPool) Capacity(category metadata.DescriptorCategory) uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ch, err := p.category(category); err == nil {
		return ch.capacity
	}
	return 0
}

// InUse is the number of live handles of category.
func (p *DescriptorPool) InUse(category metadata.DescriptorCategory) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ch, err := p.category(category); err == nil {
		return len(ch.live)
	}
	return 0
}

// HeapCount is the number of heaps allocated for category.
func (p *DescriptorPool) HeapCount(category metadata.DescriptorCategory) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ch, err := p.category(category); err == nil {
		return len(ch.heaps)
	}
	return 0
}

func (p *DescriptorPool) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, ch := range p.categories {
		for _, h := range ch.heaps {
			h.Destroy()
		}
		p.categories[i] = &categoryHeaps{
			free: containers.NewGrowingRingQueue[DescriptorHandle](int(p.initialSize)),
			live: make(map[DescriptorHandle]struct{}),
		}
	}
}
