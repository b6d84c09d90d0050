package cli

import (
	"log/slog"
	"os"

	"github.com/erg0nix/bond/internal/config"
	"github.com/erg0nix/bond/internal/runtimes"
)

func setupRuntimes(cfg config.Config) *runtimes.Registry {
	if err := os.MkdirAll(cfg.RuntimesDir, 0o755); err != nil {
		slog.Warn("failed to create runtimes directory", "error", err)
	}
	if err := runtimes.EnsureDefaults(cfg.RuntimesDir); err != nil {
		slog.Warn("failed to ensure default runtimes", "error", err)
	}

	registry := runtimes.NewRegistry(cfg.RuntimesDir)
	if err := registry.Load(); err != nil {
		slog.Warn("failed to load runtimes", "error", err)
	}
	return registry
}
