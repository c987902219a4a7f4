package renderer

import (
	"fmt"
	"sync"

	"golang.org/x/exp/slices"

	"github.com/spaghettifunk/anima-hal/engine/core"
	"github.com/spaghettifunk/anima-hal/engine/math"
	"github.com/spaghettifunk/anima-hal/engine/renderer/metadata"
)

// BindlessRange is a contiguous run of slots in the bindless heap of one
// view type.
type BindlessRange struct {
	ViewType metadata.ViewType
	Offset   uint32
	Count    uint32
}

type span struct {
	offset uint32
	count  uint32
}

type typedBindlessHeap struct {
	heap      BindlessHeap
	free      []span            // sorted by offset, never adjacent
	allocated map[uint32]uint32 // offset -> count of live ranges
}

// BindlessDescriptorPool owns one shader visible heap per view type and
// carves it into ranges. Allocation is first-fit over the free ranges;
// freed ranges are merged with their neighbours. A heap that cannot satisfy
// a request is resized, which keeps every issued offset valid.
type BindlessDescriptorPool struct {
	mu          sync.Mutex
	device      Device
	initialSize uint32
	heaps       map[metadata.ViewType]*typedBindlessHeap
}

func NewBindlessDescriptorPool(device Device, initialSize uint32) *BindlessDescriptorPool {
	if initialSize == 0 {
		initialSize = 1
	}
	return &BindlessDescriptorPool{
		device:      device,
		initialSize: initialSize,
		heaps:       make(map[metadata.ViewType]*typedBindlessHeap),
	}
}

func (p *BindlessDescriptorPool) typed(viewType metadata.ViewType) (*typedBindlessHeap, error) {
	if th, ok := p.heaps[viewType]; ok {
		return th, nil
	}
	heap, err := p.device.CreateBindlessHeap(viewType, p.initialSize)
	if err != nil {
		return nil, err
	}
	th := &typedBindlessHeap{
		heap:      heap,
		free:      []span{{offset: 0, count: heap.Capacity()}},
		allocated: make(map[uint32]uint32),
	}
	p.heaps[viewType] = th
	return th, nil
}

// AllocateRange reserves count contiguous slots for viewType.
func (p *BindlessDescriptorPool) AllocateRange(viewType metadata.ViewType, count uint32) (BindlessRange, error) {
	if count == 0 {
		return BindlessRange{}, fmt.Errorf("%w: empty bindless range", core.ErrBindlessIndexOutOfRange)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	th, err := p.typed(viewType)
	if err != nil {
		return BindlessRange{}, err
	}
	if offset, ok := th.take(count); ok {
		return BindlessRange{ViewType: viewType, Offset: offset, Count: count}, nil
	}

	old := th.heap.Capacity()
	capacity := math.NextPowerOfTwo(old + count)
	if capacity < old*2 {
		capacity = old * 2
	}
	if err := th.heap.Resize(capacity); err != nil {
		return BindlessRange{}, err
	}
	core.LogDebug("bindless heap %s resized %d -> %d", viewType, old, capacity)
	th.release(span{offset: old, count: capacity - old})

	offset, _ := th.take(count)
	return BindlessRange{ViewType: viewType, Offset: offset, Count: count}, nil
}

// FreeRange returns r to the pool and clears its slots.
func (p *BindlessDescriptorPool) FreeRange(r BindlessRange) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	th, ok := p.heaps[r.ViewType]
	if !ok || r.Count == 0 || r.Offset+r.Count > th.heap.Capacity() {
		return fmt.Errorf("%w: %s [%d, +%d)", core.ErrBindlessIndexOutOfRange, r.ViewType, r.Offset, r.Count)
	}
	count, live := th.allocated[r.Offset]
	if !live {
		return fmt.Errorf("%w: bindless %s [%d, +%d)", core.ErrDescriptorDoubleFree, r.ViewType, r.Offset, r.Count)
	}
	if count != r.Count {
		return fmt.Errorf("%w: bindless %s range at %d has %d slots, not %d", core.ErrInvalidDescriptor, r.ViewType, r.Offset, count, r.Count)
	}
	delete(th.allocated, r.Offset)
	for i := r.Offset; i < r.Offset+r.Count; i++ {
		th.heap.Clear(i)
	}
	th.release(span{offset: r.Offset, count: r.Count})
	return nil
}

// Write stores view at an absolute index of the heap of viewType.
func (p *BindlessDescriptorPool) Write(viewType metadata.ViewType, index uint32, view NativeView) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	th, ok := p.heaps[viewType]
	if !ok || index >= th.heap.Capacity() {
		return fmt.Errorf("%w: %s[%d]", core.ErrBindlessIndexOutOfRange, viewType, index)
	}
	if view == nil {
		th.heap.Clear(index)
		return nil
	}
	return th.heap.Write(index, view)
}

// Capacity is the size of the heap of viewType, zero if none exists yet.
func (p *BindlessDescriptorPool) Capacity(viewType metadata.ViewType) uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if th, ok := p.heaps[viewType]; ok {
		return th.heap.Capacity()
	}
	return 0
}

// Heap returns the heap of viewType, or nil.
func (p *BindlessDescriptorPool) Heap(viewType metadata.ViewType) BindlessHeap {
	p.mu.Lock()
	defer p.mu.Unlock()
	if th, ok := p.heaps[viewType]; ok {
		return th.heap
	}
	return nil
}

func (p *BindlessDescriptorPool) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for vt, th := range p.heaps {
		th.heap.Destroy()
		delete(p.heaps, vt)
	}
}

func (th *typedBindlessHeap) take(count uint32) (uint32, bool) {
	for i, s := range th.free {
		if s.count < count {
			continue
		}
		offset := s.offset
		if s.count == count {
			th.free = slices.Delete(th.free, i, i+1)
		} else {
			th.free[i] = span{offset: s.offset + count, count: s.count - count}
		}
		th.allocated[offset] = count
		return offset, true
	}
	return 0, false
}

func (th *typedBindlessHeap) release(r span) {
	i := slices.IndexFunc(th.free, func(s span) bool { return s.offset > r.offset })
	if i < 0 {
		i = len(th.free)
	}
	th.free = slices.Insert(th.free, i, r)

	// merge with the next range, then the previous one
	if i+1 < len(th.free) && th.free[i].offset+th.free[i].count == th.free[i+1].offset {
		th.free[i].count += th.free[i+1].count
		th.free = slices.Delete(th.free, i+1, i+2)
	}
	if i > 0 && th.free[i-1].offset+th.free[i-1].count == th.free[i].offset {
		th.free[i-1].count += th.free[i].count
		th.free = slices.Delete(th.free, i, i+1)
	}
}

// BindlessViewPool is a fixed-size window into the bindless heap. Shaders
// index it as GetBaseDescriptorId()+i; WriteView swaps the view behind one
// index in place.
type BindlessViewPool struct {
	mu       sync.Mutex
	pool     *BindlessDescriptorPool
	rng      BindlessRange
	released bool
}

func NewBindlessViewPool(pool *BindlessDescriptorPool, viewType metadata.ViewType, count uint32) (*BindlessViewPool, error) {
	rng, err := pool.AllocateRange(viewType, count)
	if err != nil {
		return nil, err
	}
	return &BindlessViewPool{pool: pool, rng: rng}, nil
}

func (bp *BindlessViewPool) GetBaseDescriptorId() uint32 { return bp.rng.Offset }
func (bp *BindlessViewPool) GetViewCount() uint32        { return bp.rng.Count }
func (bp *BindlessViewPool) ViewType() metadata.ViewType { return bp.rng.ViewType }

// WriteView points slot index at view. A nil view clears the slot.
func (bp *BindlessViewPool) WriteView(index uint32, view *View) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if bp.released {
		return fmt.Errorf("%w: bindless view pool released", core.ErrInvalidDescriptor)
	}
	if index >= bp.rng.Count {
		return fmt.Errorf("%w: %d >= %d", core.ErrBindlessIndexOutOfRange, index, bp.rng.Count)
	}
	if view == nil {
		return bp.pool.Write(bp.rng.ViewType, bp.rng.Offset+index, nil)
	}
	if view.ViewType() != bp.rng.ViewType {
		return fmt.Errorf("%w: %s into %s table", core.ErrViewTypeMismatch, view.ViewType(), bp.rng.ViewType)
	}
	if view.IsDestroyed() {
		return core.ErrResourceDestroyed
	}
	return bp.pool.Write(bp.rng.ViewType, bp.rng.Offset+index, view.Native())
}

// Release hands the range back to the bindless pool. Safe to call twice.
func (bp *BindlessViewPool) Release() {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	if bp.released {
		return
	}
	bp.released = true
	if err := bp.pool.FreeRange(bp.rng); err != nil {
		core.LogError("releasing bindless range: %v", err)
	}
}
