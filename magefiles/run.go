//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Compiles the shaders and runs the engine with config.toml.
func (Run) Engine() error {
	mg.Deps(Build.Shaders)
	fmt.Println("Run engine...")
	if _, err := executeCmd("go", withArgs("run", ".", "-config", "config.toml"), withStream()); err != nil {
		return err
	}
	return nil
}

// Runs one render mode by name, e.g. mage run:mode uniform_buffer.
func (Run) Mode(name string) error {
	mg.Deps(Build.Shaders)
	if _, err := executeCmd("go", withArgs("run", ".", "-config", "config.toml", "-mode", name), withStream()); err != nil {
		return err
	}
	return nil
}

// Runs the unit tests. None of them need a GPU.
func (Run) Tests() error {
	if _, err := executeCmd("go", withArgs("test", "./..."), withStream()); err != nil {
		return err
	}
	return nil
}
