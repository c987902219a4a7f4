// Package null is a software backend. It records everything it is asked to
// do and completes GPU work the moment it is submitted, which makes it the
// reference device for tests and for running the host without a GPU.
package null

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/anima-hal/engine/core"
	"github.com/spaghettifunk/anima-hal/engine/renderer"
	"github.com/spaghettifunk/anima-hal/engine/renderer/metadata"
)

func init() {
	renderer.RegisterBackend(core.APINull, func(opts renderer.DeviceOptions) (renderer.Device, error) {
		return NewDevice(), nil
	})
}

// SubmittedList is a snapshot of one native list taken when it was executed.
type SubmittedList struct {
	List        *CommandList
	Transitions []renderer.ResolvedTransition
}

// Submission is one ExecuteCommandLists call.
type Submission struct {
	Lists []SubmittedList
}

// Transitions returns every transition of the submission in queue order.
func (s Submission) Transitions() []renderer.ResolvedTransition {
	var out []renderer.ResolvedTransition
	for _, l := range s.Lists {
		out = append(out, l.Transitions...)
	}
	return out
}

type Device struct {
	mu          sync.Mutex
	submissions []Submission
	queueWaits  []uint64
	lists       int
	heaps       int
}

func NewDevice() *Device {
	return &Device{}
}

func (d *Device) Name() string { return "null" }

func (d *Device) CreateFence(initialValue uint64) (renderer.Fence, error) {
	return NewFence(initialValue), nil
}

func (d *Device) CreateCommandList() (renderer.NativeCommandList, error) {
	d.mu.Lock()
	d.lists++
	id := d.lists
	d.mu.Unlock()
	return &CommandList{id: id}, nil
}

func (d *Device) CreateSwapchain(desc metadata.SwapchainDesc) (renderer.Swapchain, error) {
	if desc.FrameCount == 0 {
		return nil, fmt.Errorf("%w: swapchain with no images", core.ErrInvalidSettings)
	}
	return newSwapchain(d, desc), nil
}

func (d *Device) CreateResource(desc metadata.ResourceDesc) (renderer.NativeResource, error) {
	if desc.Type == metadata.ResourceTypeUnknown {
		return nil, fmt.Errorf("null: resource %q has no type", desc.Name)
	}
	return &Resource{Desc: desc}, nil
}

func (d *Device) CreateView(resource renderer.NativeResource, desc metadata.ViewDesc) (renderer.NativeView, error) {
	res, ok := resource.(*Resource)
	if !ok {
		return nil, fmt.Errorf("null: foreign resource %T", resource)
	}
	if res.IsDestroyed() {
		return nil, core.ErrResourceDestroyed
	}
	return &View{Resource: res, Desc: desc}, nil
}

func (d *Device) CreateDescriptorHeap(category metadata.DescriptorCategory, capacity uint32) (renderer.DescriptorHeap, error) {
	d.mu.Lock()
	d.heaps++
	d.mu.Unlock()
	return &DescriptorHeap{category: category, slots: make([]renderer.NativeView, capacity)}, nil
}

func (d *Device) CreateBindlessHeap(viewType metadata.ViewType, capacity uint32) (renderer.BindlessHeap, error) {
	return &BindlessHeap{viewType: viewType, slots: make([]renderer.NativeView, capacity)}, nil
}

func (d *Device) ExecuteCommandLists(lists []renderer.NativeCommandList) error {
	sub := Submission{Lists: make([]SubmittedList, 0, len(lists))}
	for _, l := range lists {
		cl, ok := l.(*CommandList)
		if !ok {
			return fmt.Errorf("null: foreign command list %T", l)
		}
		if cl.IsOpen() {
			return fmt.Errorf("null: list %d: %w", cl.id, core.ErrCommandListOpen)
		}
		sub.Lists = append(sub.Lists, SubmittedList{List: cl, Transitions: cl.Transitions()})
	}
	d.mu.Lock()
	d.submissions = append(d.submissions, sub)
	d.mu.Unlock()
	return nil
}

func (d *Device) Signal(fence renderer.Fence, value uint64) error {
	f, ok := fence.(*Fence)
	if !ok {
		return fmt.Errorf("null: foreign fence %T", fence)
	}
	f.queueSignal(value)
	return nil
}

// Wait records the queue-side wait. The null queue runs in order, so there
// is nothing to wait for.
func (d *Device) Wait(fence renderer.Fence, value uint64) error {
	d.mu.Lock()
	d.queueWaits = append(d.queueWaits, value)
	d.mu.Unlock()
	return nil
}

func (d *Device) Destroy() {}

// Submissions returns every ExecuteCommandLists call so far.
func (d *Device) Submissions() []Submission {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Submission(nil), d.submissions...)
}

// LastSubmission returns the most recent submission.
func (d *Device) LastSubmission() (Submission, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.submissions) == 0 {
		return Submission{}, false
	}
	return d.submissions[len(d.submissions)-1], true
}

// CommandListCount is the number of native lists created so far.
func (d *Device) CommandListCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lists
}

// DescriptorHeapCount is the number of descriptor heaps created so far.
func (d *Device) DescriptorHeapCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.heaps
}
