//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Test mg.Namespace

// Runs the unit tests. None of them need a GPU.
func (Test) Unit() error {
	_, err := executeCmd("go", withArgs("test", "./engine/..."), withStream())
	return err
}

// Runs the unit tests with the race detector, which needs cgo.
func (Test) Race() error {
	mg.Deps(Test.Unit)
	_, err := executeCmd("go",
		withArgs("test", "-race", "-count=1", "./engine/..."),
		withEnv("CGO_ENABLED=1"),
		withStream())
	return err
}
