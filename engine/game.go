package engine

import (
	"github.com/spaghettifunk/anima-hal/engine/renderer"
)

// Game is the application driven by the engine loop. Every callback runs on
// the main goroutine.
type Game struct {
	ApplicationConfig *ApplicationConfig
	State             interface{}
	FnInitialize      Initialize
	FnUpdate          Update
	FnRender          Render
	FnOnResize        OnResize
	FnShutdown        Shutdown
}

type Initialize func(ctx *renderer.Context) error
type Update func(deltaTime float64) error

// Render records and executes the frame's command lists. The engine presents
// afterwards.
type Render func(ctx *renderer.Context, deltaTime float64) error
type OnResize func(width uint32, height uint32) error
type Shutdown func(ctx *renderer.Context) error
