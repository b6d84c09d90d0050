package runtimes

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Registry loads and stores runtimes from a directory, providing thread-safe access by name.
type Registry struct {
	runtimesDir string
	runtimes    map[string]*Runtime
	mu          sync.RWMutex
}

// NewRegistry creates an empty registry rooted at runtimesDir. Call Load to
// read its manifests.
func NewRegistry(runtimesDir string) *Registry {
	return &Registry{
		runtimesDir: runtimesDir,
		runtimes:    make(map[string]*Runtime),
	}
}

// Load discovers and parses every runtime directory. Broken manifests are
// logged and skipped.
func (r *Registry) Load() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.runtimes = make(map[string]*Runtime)

	if _, err := os.Stat(r.runtimesDir); os.IsNotExist(err) {
		return nil
	}

	entries, err := os.ReadDir(r.runtimesDir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		rt, err := loadRuntimeDir(filepath.Join(r.runtimesDir, entry.Name()))
		if err != nil {
			slog.Warn("skipping runtime", "dir", entry.Name(), "error", err)
			continue
		}
		r.runtimes[rt.Name] = rt
	}

	return nil
}

// Get returns the runtime with the given name, or false if not found.
func (r *Registry) Get(name string) (*Runtime, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rt, ok := r.runtimes[name]
	return rt, ok
}

// List returns all runtimes sorted by name.
func (r *Registry) List() []*Runtime {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]*Runtime, 0, len(r.runtimes))
	for _, rt := range r.runtimes {
		list = append(list, rt)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}
