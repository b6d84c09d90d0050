package cli

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	lipgloss "github.com/charmbracelet/lipgloss/v2"

	"github.com/erg0nix/bond/internal/app"
	"github.com/erg0nix/bond/internal/config"

	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the session server (one JavaScript session per connection)",
		RunE:  runServeCmd,
	}

	cmd.Flags().Bool("foreground", false, "run server in foreground")
	cmd.Flags().String("bind", "", "bind address (overrides config)")

	return cmd
}

func runServeCmd(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	foreground, _ := cmd.Flags().GetBool("foreground")
	bindOverride, _ := cmd.Flags().GetString("bind")

	cfg := a.Config
	if bindOverride != "" {
		cfg.Bind = bindOverride
	}

	if foreground {
		return app.RunServer(cfg, a.Logger)
	}

	return startServer(cfg, a.ConfigPath, bindOverride)
}

func startServer(cfg config.Config, configPath, bind string) error {
	if alreadyRunning(cfg) {
		lipgloss.Println(styleDim.Render("server already running at " + clientAddrFromBind(cfg.Bind)))
		return nil
	}

	serverCmd := exec.Command(os.Args[0], "serve", "--foreground")
	if configPath != "" {
		serverCmd.Args = append(serverCmd.Args, "--config", configPath)
	}
	if bind != "" {
		serverCmd.Args = append(serverCmd.Args, "--bind", bind)
	}

	logFile := filepath.Join(cfg.DataDir, "server.log")
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("start server: create data dir: %w", err)
	}

	out, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("start server: open log: %w", err)
	}
	defer out.Close()

	serverCmd.Stdout = out
	serverCmd.Stderr = out

	if err := serverCmd.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	lipgloss.Println(
		styleSuccess.Render("started server") + " " +
			stylePID.Render(fmt.Sprintf("pid %d", serverCmd.Process.Pid)) + " " +
			styleDim.Render(clientAddrFromBind(cfg.Bind)))
	return nil
}
