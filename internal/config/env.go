package config

import (
	"fmt"
	"os"
	"strconv"
)

// LoadFromEnv applies BOND_* environment overrides.
func LoadFromEnv(cfg Config) (Config, error) {
	if v := os.Getenv("BOND_TRANS_EXCEPT"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("config: BOND_TRANS_EXCEPT: %w", err)
		}
		cfg.Session.TransExcept = b
	}
	if v := os.Getenv("BOND_MAX_DEPTH"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return cfg, fmt.Errorf("config: BOND_MAX_DEPTH must be a positive integer, got %q", v)
		}
		cfg.Session.MaxDepth = n
	}
	if v := os.Getenv("BOND_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	return cfg, nil
}
