// Package runtimes describes how to launch subordinate interpreters.
//
// Each runtime lives in its own directory holding a runtime.toml manifest
// and the stage-2 source sent to the runtime's stage 1 during the
// handshake.
package runtimes

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SelfCommand in a manifest stands for the running bond executable.
const SelfCommand = "@self"

// Runtime is a loaded manifest.
type Runtime struct {
	Name        string
	Description string
	Command     string
	Args        []string
	Env         map[string]string
	TransExcept bool
	Dir         string
	Stage2Path  string
}

func (r *Runtime) validate() error {
	if r.Name == "" {
		return fmt.Errorf("runtime name is required")
	}
	if strings.ContainsAny(r.Name, `/\ `) {
		return fmt.Errorf("invalid runtime name %q", r.Name)
	}
	if r.Command == "" {
		return fmt.Errorf("command is required")
	}
	return nil
}

// Executable resolves the command to run. SelfCommand maps to the current
// binary.
func (r *Runtime) Executable() (string, error) {
	if r.Command != SelfCommand {
		return r.Command, nil
	}
	self, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("runtime %s: resolve executable: %w", r.Name, err)
	}
	return self, nil
}

// Stage2 reads the stage-2 source.
func (r *Runtime) Stage2() (string, error) {
	data, err := os.ReadFile(r.Stage2Path)
	if err != nil {
		return "", fmt.Errorf("runtime %s: read stage 2: %w", r.Name, err)
	}
	return string(data), nil
}

// Stage2File is the stage-2 path relative to the runtime directory.
func (r *Runtime) Stage2File() string {
	rel, err := filepath.Rel(r.Dir, r.Stage2Path)
	if err != nil {
		return r.Stage2Path
	}
	return rel
}
