package renderer

import (
	"fmt"
	"sync"

	"golang.org/x/exp/slices"

	"github.com/spaghettifunk/anima-hal/engine/core"
)

// Surface is what a windowed backend needs from the platform layer.
type Surface interface {
	// RequiredInstanceExtensions lists the instance extensions needed to
	// present to the window.
	RequiredInstanceExtensions() []string
	// CreateWindowSurface creates a presentation surface for instance and
	// returns its native handle.
	CreateWindowSurface(instance interface{}) (uintptr, error)
	FramebufferSize() (width, height uint32)
}

type DeviceOptions struct {
	Settings *core.Settings
	// Surface is nil for headless devices.
	Surface Surface
}

type DeviceFactory func(opts DeviceOptions) (Device, error)

var (
	backendsMu sync.RWMutex
	backends   = make(map[string]DeviceFactory)
)

// RegisterBackend makes a backend available under api. Backends register
// themselves from init; registering the same name twice panics.
func RegisterBackend(api string, factory DeviceFactory) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	if _, ok := backends[api]; ok {
		panic(fmt.Sprintf("renderer: backend %q registered twice", api))
	}
	backends[api] = factory
}

// Backends returns the registered backend names, sorted.
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// NewDevice creates a device of the backend named by opts.Settings.Renderer.API.
func NewDevice(opts DeviceOptions) (Device, error) {
	backendsMu.RLock()
	factory, ok := backends[opts.Settings.Renderer.API]
	backendsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (have %v)", core.ErrUnsupportedBackend, opts.Settings.Renderer.API, Backends())
	}
	device, err := factory(opts)
	if err != nil {
		return nil, fmt.Errorf("creating %s device: %w", opts.Settings.Renderer.API, err)
	}
	core.LogInfo("device created: %s", device.Name())
	return device, nil
}
