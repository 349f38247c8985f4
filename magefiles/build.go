//go:build mage

package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

// Compiles every GLSL shader under shaders/ to SPIR-V in assets/shaders/.
func (Build) Shaders() error {
	return buildShaders()
}

// Builds the engine binary into bin/.
func (Build) Engine() error {
	mg.Deps(Build.Shaders)
	if _, err := executeCmd("go", withArgs("build", "-o", filepath.Join("bin", "monkey"), "."), withStream()); err != nil {
		return err
	}
	return nil
}

func buildShaders() error {
	var sources []string
	for _, pattern := range []string{"shaders/*.vert", "shaders/*.frag"} {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return err
		}
		sources = append(sources, matches...)
	}
	if len(sources) == 0 {
		return fmt.Errorf("no shader sources found under shaders/")
	}

	for _, src := range sources {
		// shaders/cube.vert -> assets/shaders/cube.vert.spv
		out := filepath.Join("assets", "shaders", filepath.Base(src)+".spv")
		if _, err := executeCmd("glslc", withArgs(src, "-o", out), withStream()); err != nil {
			return err
		}
	}
	fmt.Printf("Compiled %s\n", strings.Join(sources, ", "))
	return nil
}
