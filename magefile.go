//go:build mage
// +build mage

package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/magefile/mage/mg"
)

// Default target to run when none is specified
// If not set, running mage will list available targets
var Default = Build

func Build() error {
	mg.Deps(BuildExtract, BuildInspect)
	fmt.Println("Compilation finished")
	return nil
}

func BuildExtract() error {
	fmt.Println("Building extract executable...")
	return goCmd("build", "-o", "./bin/extract", "./extract")
}

func BuildInspect() error {
	fmt.Println("Building inspect executable...")
	return goCmd("build", "-o", "./bin/inspect", "./inspect")
}

// Test runs the unit tests. The HDF5 backend needs cgo as well.
func Test() error {
	return goCmd("test", "./...")
}

func goCmd(args ...string) error {
	ldflags := os.Getenv("CGO_LDFLAGS")
	cflags := os.Getenv("CGO_CFLAGS")
	cmd := exec.Command("go", args...)
	cmd.Env = append(os.Environ(),
		"CGO_ENABLED=1",
		fmt.Sprintf("CGO_LDFLAGS=%s", ldflags),
		fmt.Sprintf("CGO_CFLAGS=%s", cflags))
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
