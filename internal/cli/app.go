package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/erg0nix/bond/internal/bootstrap"
	"github.com/erg0nix/bond/internal/config"
	"github.com/erg0nix/bond/internal/driver"
	"github.com/erg0nix/bond/internal/runtimes"

	"github.com/spf13/cobra"
)

// App carries the resolved configuration shared by every subcommand.
type App struct {
	Config     config.Config
	ConfigPath string
	Runtime    string
	ServerAddr string
	Logger     *slog.Logger

	// Stderr receives diagnostics so they never mix with printed values.
	Stderr io.Writer
}

func newApp(cmd *cobra.Command) (*App, error) {
	configPath, _ := cmd.Flags().GetString("config")
	runtimeOverride, _ := cmd.Flags().GetString("runtime")
	serverAddr, _ := cmd.Flags().GetString("server")

	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if cmd.Flags().Changed("trans-except") {
		cfg.Session.TransExcept, _ = cmd.Flags().GetBool("trans-except")
	}

	rt := cfg.DefaultRuntime
	if runtimeOverride != "" {
		rt = runtimeOverride
	}

	return &App{
		Config:     cfg,
		ConfigPath: configPath,
		Runtime:    rt,
		ServerAddr: serverAddr,
		Logger:     newLogger(cfg),
		Stderr:     cmd.ErrOrStderr(),
	}, nil
}

func (a *App) driverOptions(lang string, transExcept bool) driver.Options {
	return driver.Options{
		Lang:                  lang,
		TransparentExceptions: transExcept,
		MaxDepth:              a.Config.Session.MaxDepth,
		MaxMessageSize:        a.Config.Session.MaxMessageBytes,
		Logger:                a.Logger,
	}
}

// openDriver attaches to the session server when --server is set and
// spawns the configured runtime otherwise.
func (a *App) openDriver(ctx context.Context) (*driver.Driver, error) {
	if a.ServerAddr != "" {
		d, err := driver.Dial(ctx, a.ServerAddr, a.driverOptions(runtimes.DefaultRuntime, a.Config.Session.TransExcept))
		if err != nil {
			printServerNotRunning(a.Stderr, a.ServerAddr, err)
			return nil, err
		}
		return d, nil
	}

	registry := setupRuntimes(a.Config)
	rt, ok := registry.Get(a.Runtime)
	if !ok {
		return nil, fmt.Errorf("unknown runtime %q (see bond runtimes)", a.Runtime)
	}

	exe, err := rt.Executable()
	if err != nil {
		return nil, err
	}
	args := append([]string(nil), rt.Args...)
	if rt.Command == runtimes.SelfCommand && a.ConfigPath != "" {
		args = append(args, "--config", a.ConfigPath)
	}

	code, err := rt.Stage2()
	if err != nil {
		return nil, err
	}

	transExcept := a.Config.Session.TransExcept || rt.TransExcept
	payload := bootstrap.Payload{
		Code:  code,
		Start: bootstrap.Start{TransExcept: transExcept}.Args(),
	}

	return driver.Spawn(ctx, driver.Command{Path: exe, Args: args, Env: rt.Env}, payload, a.driverOptions(rt.Name, transExcept))
}
