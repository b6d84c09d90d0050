package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadOrCreateWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}
	if cfg.DefaultRuntime != "js" {
		t.Errorf("default_runtime = %q, want js", cfg.DefaultRuntime)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not written: %v", err)
	}

	again, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.Session != cfg.Session {
		t.Errorf("session = %+v, want %+v", again.Session, cfg.Session)
	}
}

func TestLoadOrCreateReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	content := `
data_dir = "` + filepath.ToSlash(dir) + `"
runtimes_dir = ""
default_runtime = "php"
bind = "  "
log_level = "debug"

[session]
trans_except = true
max_depth = 0
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}

	if cfg.DefaultRuntime != "php" {
		t.Errorf("default_runtime = %q, want php", cfg.DefaultRuntime)
	}
	if cfg.RuntimesDir != filepath.Join(dir, "runtimes") {
		t.Errorf("runtimes_dir = %q, want %q", cfg.RuntimesDir, filepath.Join(dir, "runtimes"))
	}
	if cfg.Bind != Default().Bind {
		t.Errorf("bind = %q, want %q", cfg.Bind, Default().Bind)
	}
	if !cfg.Session.TransExcept {
		t.Error("trans_except should be true")
	}
	if cfg.Session.MaxDepth != 256 {
		t.Errorf("max_depth = %d, want 256", cfg.Session.MaxDepth)
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Errorf("level = %v, want debug", cfg.SlogLevel())
	}
}

func TestLoadOrCreateRejectsEmptyRuntime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`default_runtime = ""`), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadOrCreate(path); err == nil {
		t.Error("expected error for empty default_runtime")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("BOND_TRANS_EXCEPT", "true")
	t.Setenv("BOND_MAX_DEPTH", "12")
	t.Setenv("BOND_LOG_LEVEL", "error")

	cfg, err := LoadFromEnv(Default())
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if !cfg.Session.TransExcept {
		t.Error("trans_except should be overridden")
	}
	if cfg.Session.MaxDepth != 12 {
		t.Errorf("max_depth = %d, want 12", cfg.Session.MaxDepth)
	}
	if cfg.SlogLevel() != slog.LevelError {
		t.Errorf("level = %v, want error", cfg.SlogLevel())
	}
}

func TestEnvOverridesInvalid(t *testing.T) {
	t.Setenv("BOND_MAX_DEPTH", "-3")

	if _, err := LoadFromEnv(Default()); err == nil {
		t.Error("expected error for negative depth")
	}
}

func TestSlogLevelFallback(t *testing.T) {
	cfg := Config{LogLevel: "chatty"}
	if cfg.SlogLevel() != slog.LevelWarn {
		t.Errorf("level = %v, want warn", cfg.SlogLevel())
	}
}
