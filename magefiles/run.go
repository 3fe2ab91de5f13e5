//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Runs the host application with vkctx.toml.
func (Run) Host() error {
	fmt.Println("Run host...")
	if _, err := executeCmd("go", withArgs("run", ".", "vkctx.toml"), withStream()); err != nil {
		return err
	}
	return nil
}

// Runs the host application with the Khronos validation layer forced on by
// the loader, independent of the validation setting in the config.
func (Run) Validated() error {
	fmt.Println("Run host with validation...")
	_, err := executeCmd("go",
		withArgs("run", ".", "vkctx.toml"),
		withEnv("VK_INSTANCE_LAYERS=VK_LAYER_KHRONOS_validation"),
		withStream())
	return err
}
