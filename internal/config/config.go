// Package config loads the bond configuration file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// SessionConfig holds the per-session protocol settings.
type SessionConfig struct {
	TransExcept     bool `toml:"trans_except"`
	MaxDepth        int  `toml:"max_depth"`
	MaxMessageBytes int  `toml:"max_message_bytes"`
}

// Config is the on-disk bond configuration (config.toml).
type Config struct {
	DataDir        string        `toml:"data_dir"`
	RuntimesDir    string        `toml:"runtimes_dir"`
	DefaultRuntime string        `toml:"default_runtime"`
	Bind           string        `toml:"bind"`
	LogLevel       string        `toml:"log_level"`
	Session        SessionConfig `toml:"session"`
}

// Default returns the configuration written on first use.
func Default() Config {
	dataDir := defaultDataDir()
	return Config{
		DataDir:        dataDir,
		RuntimesDir:    filepath.Join(dataDir, "runtimes"),
		DefaultRuntime: "js",
		Bind:           "127.0.0.1:7341",
		LogLevel:       "warn",
		Session: SessionConfig{
			TransExcept:     false,
			MaxDepth:        256,
			MaxMessageBytes: 10 * 1024 * 1024,
		},
	}
}

// LoadOrCreate reads the config at path, writing the defaults there first
// if the file does not exist. Environment overrides are applied last.
func LoadOrCreate(path string) (Config, error) {
	config := Default()

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return config, err
			}

			configData, err := toml.Marshal(config)
			if err != nil {
				return config, err
			}

			if err := os.WriteFile(path, configData, 0o644); err != nil {
				return config, err
			}

			return LoadFromEnv(config)
		}

		return config, err
	}

	configData, err := os.ReadFile(path)
	if err != nil {
		return config, err
	}

	if err := toml.Unmarshal(configData, &config); err != nil {
		return config, fmt.Errorf("config: parse %s: %w", path, err)
	}

	config.DataDir = expandPath(config.DataDir)
	config.RuntimesDir = expandPath(config.RuntimesDir)
	config.Bind = strings.TrimSpace(config.Bind)
	config.DefaultRuntime = strings.TrimSpace(config.DefaultRuntime)

	if config.RuntimesDir == "" {
		config.RuntimesDir = filepath.Join(config.DataDir, "runtimes")
	}
	if config.DefaultRuntime == "" {
		return config, errors.New("default_runtime is required")
	}
	if config.Bind == "" {
		config.Bind = Default().Bind
	}
	if config.Session.MaxDepth <= 0 {
		config.Session.MaxDepth = Default().Session.MaxDepth
	}
	if config.Session.MaxMessageBytes <= 0 {
		config.Session.MaxMessageBytes = Default().Session.MaxMessageBytes
	}

	return LoadFromEnv(config)
}

// SlogLevel maps LogLevel to a slog level. Unknown names select warn.
func (c Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelWarn
	}
	return level
}

func defaultDataDir() string {
	homeDir, _ := os.UserHomeDir()

	if homeDir == "" {
		return ".bond"
	}

	return filepath.Join(homeDir, ".bond")
}

func expandPath(path string) string {
	if path == "" {
		return ""
	}

	if strings.HasPrefix(path, "~") {
		homeDir, _ := os.UserHomeDir()

		if homeDir != "" {
			trimmed := strings.TrimPrefix(path, "~")
			trimmed = strings.TrimPrefix(trimmed, string(os.PathSeparator))

			return filepath.Join(homeDir, trimmed)
		}
	}

	return path
}
