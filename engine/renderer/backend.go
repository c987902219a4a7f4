package renderer

import (
	"github.com/spaghettifunk/anima-hal/engine/renderer/metadata"
)

// Device is the capability set every backend implements. The core never
// sees native handles directly; it drives the backend through these calls
// and hands back the objects it got from them.
type Device interface {
	Name() string
	CreateFence(initialValue uint64) (Fence, error)
	CreateCommandList() (NativeCommandList, error)
	CreateSwapchain(desc metadata.SwapchainDesc) (Swapchain, error)
	CreateResource(desc metadata.ResourceDesc) (NativeResource, error)
	CreateView(resource NativeResource, desc metadata.ViewDesc) (NativeView, error)
	CreateDescriptorHeap(category metadata.DescriptorCategory, capacity uint32) (DescriptorHeap, error)
	CreateBindlessHeap(viewType metadata.ViewType, capacity uint32) (BindlessHeap, error)
	// ExecuteCommandLists hands closed lists to the queue in slice order as
	// a single submission.
	ExecuteCommandLists(lists []NativeCommandList) error
	// Signal enqueues a queue-side signal of fence to value.
	Signal(fence Fence, value uint64) error
	// Wait makes the queue (not the CPU) wait until fence reaches value.
	Wait(fence Fence, value uint64) error
	Destroy()
}

// Fence is a monotonic 64-bit counter shared by the CPU and the queue.
type Fence interface {
	GetCompletedValue() uint64
	// Wait blocks the calling goroutine until the completed value is >= value.
	Wait(value uint64) error
	// Signal sets the completed value from the CPU.
	Signal(value uint64) error
	Destroy()
}

type NativeResource interface {
	Destroy()
}

type NativeView interface {
	Destroy()
}

// NativeCommandList records backend commands. ResourceBarrier receives
// transitions whose before state is already known.
type NativeCommandList interface {
	Open() error
	Close() error
	ResourceBarrier(transitions []ResolvedTransition)
	Destroy()
}

type Swapchain interface {
	ImageCount() uint32
	Format() metadata.Format
	// GetBackBuffer returns the image at index. The returned resource is
	// owned by the swapchain; destroying it is a no-op.
	GetBackBuffer(index uint32) NativeResource
	// NextImage acquires the next image and makes the queue signal fence to
	// signalValue once it is usable.
	NextImage(fence Fence, signalValue uint64) (uint32, error)
	// Present queues the current image once fence reaches waitValue.
	Present(fence Fence, waitValue uint64) error
	Destroy()
}

// DescriptorHeap is a CPU visible table of descriptors of one category.
type DescriptorHeap interface {
	Category() metadata.DescriptorCategory
	Capacity() uint32
	Write(offset uint32, view NativeView) error
	Clear(offset uint32)
	Destroy()
}

// BindlessHeap is a shader visible table indexed by integer id.
type BindlessHeap interface {
	ViewType() metadata.ViewType
	Capacity() uint32
	Write(index uint32, view NativeView) error
	Clear(index uint32)
	// Resize grows the table to capacity, keeping existing entries at their indices.
	Resize(capacity uint32) error
	Destroy()
}
