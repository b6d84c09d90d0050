package cli

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"

	lipgloss "github.com/charmbracelet/lipgloss/v2"

	"github.com/erg0nix/bond/internal/app"
	"github.com/erg0nix/bond/internal/config"

	"github.com/spf13/cobra"
)

// ExitError carries a process exit code out of a command.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// NewRootCommand builds the bond command tree.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "bond",
		Short:         "Drive interpreters over a line protocol",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to config file")
	rootCmd.PersistentFlags().StringP("runtime", "r", "", "runtime to spawn (overrides config)")
	rootCmd.PersistentFlags().String("server", "", "use the session server at this address instead of spawning")
	rootCmd.PersistentFlags().Bool("trans-except", false, "send exceptions as structured values")

	rootCmd.AddCommand(newSubCmd())
	rootCmd.AddCommand(newEvalCmd())
	rootCmd.AddCommand(newExecCmd())
	rootCmd.AddCommand(newCallCmd())
	rootCmd.AddCommand(newReplCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newStopCmd())
	rootCmd.AddCommand(newPsCmd())
	rootCmd.AddCommand(newRuntimesCmd())

	return rootCmd
}

func loadConfig(path string) (config.Config, error) {
	configPath := path
	if configPath == "" {
		configPath = filepath.Join(config.Default().DataDir, "config.toml")
	}
	return config.LoadOrCreate(configPath)
}

func newLogger(cfg config.Config) *slog.Logger {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)
	return logger
}

func clientAddrFromBind(bind string) string {
	host, port, err := netSplitHostPort(bind)
	if err != nil || port == "" {
		return bind
	}

	if host == "" || host == "0.0.0.0" || host == "::" {
		return "127.0.0.1:" + port
	}
	return bind
}

func netSplitHostPort(addr string) (string, string, error) {
	if strings.HasPrefix(addr, ":") {
		return "", strings.TrimPrefix(addr, ":"), nil
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", "", err
	}
	return host, port, nil
}

func alreadyRunning(cfg config.Config) bool {
	return app.ReadPID(app.PIDFile(cfg)) != 0
}

func printServerNotRunning(w io.Writer, addr string, err error) {
	if w == nil {
		w = os.Stderr
	}
	lipgloss.Fprintln(w, styleError.Render("server is not running at "+addr))
	lipgloss.Fprintln(w, "start with: "+styleName.Render("bond serve"))
	if err != nil {
		lipgloss.Fprintln(w, styleDim.Render(err.Error()))
	}
}
