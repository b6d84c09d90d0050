package runtimes

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

const manifestName = "runtime.toml"

type manifest struct {
	Name        string            `toml:"name"`
	Description string            `toml:"description"`
	Command     string            `toml:"command"`
	Args        []string          `toml:"args"`
	Stage2      string            `toml:"stage2"`
	TransExcept bool              `toml:"trans_except"`
	Env         map[string]string `toml:"env"`
}

func loadRuntimeDir(dirPath string) (*Runtime, error) {
	data, err := os.ReadFile(filepath.Join(dirPath, manifestName))
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	var m manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}

	if m.Name == "" {
		m.Name = filepath.Base(dirPath)
	}
	if m.Stage2 == "" {
		m.Stage2 = "stage2"
	}

	clean := filepath.Clean(m.Stage2)
	if filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return nil, fmt.Errorf("stage2 file %q must be a relative path within the runtime directory", m.Stage2)
	}

	stage2Path := filepath.Join(dirPath, clean)
	if _, err := os.Stat(stage2Path); err != nil {
		return nil, fmt.Errorf("stage 2 %s not found in %s", m.Stage2, dirPath)
	}

	rt := &Runtime{
		Name:        m.Name,
		Description: m.Description,
		Command:     m.Command,
		Args:        m.Args,
		Env:         m.Env,
		TransExcept: m.TransExcept,
		Dir:         dirPath,
		Stage2Path:  stage2Path,
	}

	if err := rt.validate(); err != nil {
		return nil, fmt.Errorf("invalid runtime %q: %w", dirPath, err)
	}

	return rt, nil
}
