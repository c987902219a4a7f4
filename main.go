/*
This is an example of application that will use the
engine package to drive the renderer
*/
package main

import (
	"errors"
	"flag"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/anima-hal/engine"
	"github.com/spaghettifunk/anima-hal/engine/core"
	"github.com/spaghettifunk/anima-hal/testbed"

	_ "github.com/spaghettifunk/anima-hal/engine/renderer/null"
	_ "github.com/spaghettifunk/anima-hal/engine/renderer/vulkan"
	_ "github.com/spaghettifunk/anima-hal/engine/renderer/wgpu"
)

func main() {
	settingsPath := flag.String("settings", "config.toml", "settings file, reloaded on change")
	api := flag.String("api", "", "override renderer.api (null, vulkan, wgpu)")
	flag.Parse()

	settings, err := core.LoadSettings(*settingsPath)
	if errors.Is(err, fs.ErrNotExist) {
		core.LogWarn("%s not found, using default settings", *settingsPath)
		settings = core.DefaultSettings()
		*settingsPath = ""
	} else if err != nil {
		core.LogFatal("loading settings: %s", err)
	}
	if *api != "" {
		settings.Renderer.API = *api
	}
	core.SetLogLevel(settings.Log.Level)

	tb := testbed.NewTestGame(&engine.ApplicationConfig{
		StartPosX:    100,
		StartPosY:    100,
		SettingsPath: *settingsPath,
	})

	e, err := engine.New(tb.Game, settings)
	if err != nil {
		core.LogFatal("%s", err)
	}
	if err := e.Initialize(); err != nil {
		_ = e.Shutdown()
		core.LogFatal("%s", err)
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	go func() {
		<-sigCh
		e.Quit()
	}()

	runErr := e.Run()
	if err := e.Shutdown(); err != nil {
		core.LogError("shutdown: %s", err)
	}
	if runErr != nil {
		core.LogFatal("%s", runErr)
	}
}
