package runtimes

import (
	"os"
	"path/filepath"

	"github.com/erg0nix/bond/internal/jseval"
)

// DefaultRuntime is the runtime built into the bond binary.
const DefaultRuntime = "js"

type bundledRuntime struct {
	name     string
	manifest string
	stage2   string
	file     string
}

const jsManifest = `name = "js"
description = "JavaScript (goja), built into bond"
command = "@self"
args = ["sub"]
stage2 = "stage2.js"
trans_except = false
`

var bundledRuntimes = []bundledRuntime{
	{
		name:     DefaultRuntime,
		manifest: jsManifest,
		stage2:   jseval.Prelude,
		file:     "stage2.js",
	},
}

// EnsureDefaults installs the bundled runtimes under runtimesDir unless a
// directory of the same name already exists.
func EnsureDefaults(runtimesDir string) error {
	for _, b := range bundledRuntimes {
		if err := ensureRuntime(runtimesDir, b); err != nil {
			return err
		}
	}
	return nil
}

func ensureRuntime(runtimesDir string, b bundledRuntime) error {
	dir := filepath.Join(runtimesDir, b.name)

	if _, err := os.Stat(dir); err == nil {
		return nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	if err := os.WriteFile(filepath.Join(dir, manifestName), []byte(b.manifest), 0o644); err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(dir, b.file), []byte(b.stage2), 0o644)
}
