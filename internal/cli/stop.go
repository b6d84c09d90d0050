package cli

import (
	"fmt"

	lipgloss "github.com/charmbracelet/lipgloss/v2"

	"github.com/erg0nix/bond/internal/app"

	"github.com/spf13/cobra"
)

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the session server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}

			pid, err := app.StopServer(app.PIDFile(a.Config))
			if err != nil {
				lipgloss.Println(styleError.Render("bond server: " + err.Error()))
				return err
			}
			if pid == 0 {
				lipgloss.Println(styleDim.Render("bond server not running"))
				return nil
			}

			lipgloss.Println(styleSuccess.Render("stopped bond server") + " " + stylePID.Render(fmt.Sprintf("pid %d", pid)))
			return nil
		},
	}
}
