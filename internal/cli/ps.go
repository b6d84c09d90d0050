package cli

import (
	"context"
	"io"
	"strconv"
	"time"

	lipgloss "github.com/charmbracelet/lipgloss/v2"
	"github.com/charmbracelet/lipgloss/v2/table"

	"github.com/erg0nix/bond/internal/app"
	"github.com/erg0nix/bond/internal/config"
	"github.com/erg0nix/bond/internal/driver"

	"github.com/spf13/cobra"
)

func newPsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ps",
		Short: "Show the session server status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}

			t := newTable("NAME", "STATUS", "PID", "ENDPOINT", "PROBE")
			addServerRow(cmd.Context(), t, a.Config)

			lipgloss.Println(t.Render())
			return nil
		},
	}
}

func addServerRow(ctx context.Context, t *table.Table, cfg config.Config) {
	addr := clientAddrFromBind(cfg.Bind)

	pid := app.ReadPID(app.PIDFile(cfg))
	if pid == 0 {
		t.Row("bond", styleDim.Render("stopped"), "-", addr, "-")
		return
	}

	t.Row("bond", styleActive.Render("running"), stylePID.Render(strconv.Itoa(pid)), addr, probeServer(ctx, addr))
}

// probeServer opens a session and round-trips one expression.
func probeServer(ctx context.Context, addr string) string {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	start := time.Now()
	d, err := driver.Dial(ctx, addr, driver.Options{Lang: "js", Stdout: io.Discard, Stderr: io.Discard})
	if err != nil {
		return styleError.Render("unreachable")
	}
	defer d.Close()

	if _, err := d.Eval(ctx, "1"); err != nil {
		return styleError.Render("error")
	}
	return time.Since(start).Round(time.Millisecond).String()
}
