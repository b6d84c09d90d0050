package cli

import (
	"strings"

	lipgloss "github.com/charmbracelet/lipgloss/v2"

	"github.com/spf13/cobra"
)

func newRuntimesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "runtimes",
		Short: "List available runtimes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}

			registry := setupRuntimes(a.Config)
			list := registry.List()
			if len(list) == 0 {
				lipgloss.Println(styleDim.Render("no runtimes in " + a.Config.RuntimesDir))
				return nil
			}

			t := newTable("NAME", "COMMAND", "STAGE2", "TRANS_EXCEPT", "DESCRIPTION")
			for _, rt := range list {
				name := rt.Name
				if name == a.Runtime {
					name = styleActive.Render(name + " *")
				}

				transExcept := styleDim.Render("no")
				if rt.TransExcept {
					transExcept = "yes"
				}

				command := strings.TrimSpace(rt.Command + " " + strings.Join(rt.Args, " "))
				t.Row(name, styleName.Render(command), rt.Stage2File(), transExcept, rt.Description)
			}

			lipgloss.Println(t.Render())
			return nil
		},
	}
}
