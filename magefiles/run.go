//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Runs the demo host with config.toml.
func (Run) Engine() error {
	mg.Deps(Build.Engine)
	fmt.Println("Run engine...")
	_, err := executeCmd("bin/anima-hal", withArgs("-settings", "config.toml"), withStream())
	return err
}

// Runs the demo host on the given backend.
func (Run) Backend(api string) error {
	mg.Deps(Build.Engine)
	_, err := executeCmd("bin/anima-hal", withArgs("-settings", "config.toml", "-api", api), withStream())
	return err
}
