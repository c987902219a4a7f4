//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

// Compiles the demo host into bin/anima-hal.
func (Build) Engine() error {
	_, err := executeCmd("go", withArgs("build", "-o", "bin/anima-hal", "."), withStream())
	return err
}

// Tidies the module.
func (Build) Tidy() error {
	return goTidy()
}

// Runs the test suite with the race detector.
func Test() error {
	_, err := executeCmd("go", withArgs("test", "-race", "./..."), withStream())
	return err
}

// Runs go vet over every package.
func Vet() error {
	_, err := executeCmd("go", withArgs("vet", "./..."), withStream())
	return err
}
