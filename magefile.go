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

// Build compiles every executable.
func Build() error {
	mg.Deps(BuildAnalysis)
	fmt.Println("Compilation finished")
	return nil
}

// goCommand runs the go tool with cgo enabled and the HDF5 flags of the
// environment.
func goCommand(args ...string) *exec.Cmd {
	ldflags := os.Getenv("CGO_LDFLAGS")
	cflags := os.Getenv("CGO_CFLAGS")
	cmd := exec.Command("go", args...)
	cmd.Env = append(os.Environ(),
		"CGO_ENABLED=1",
		fmt.Sprintf("CGO_LDFLAGS=%s", ldflags),
		fmt.Sprintf("CGO_CFLAGS=%s", cflags))
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd
}

func BuildAnalysis() error {
	fmt.Println("Building rpcanalysis executable...")
	return goCommand("build", "-o", "./bin/rpcanalysis", "./rpcanalysis").Run()
}

// Test runs the unit tests of every package.
func Test() error {
	fmt.Println("Running tests...")
	return goCommand("test", "./...").Run()
}
