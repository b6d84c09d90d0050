package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	lipgloss "github.com/charmbracelet/lipgloss/v2"
	"github.com/peterh/liner"

	"github.com/erg0nix/bond/internal/driver"

	"github.com/spf13/cobra"
)

// prompter is the part of liner.State the REPL needs.
type prompter interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
}

func newReplCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Start an interactive session",
		Long: "Start an interactive session. Lines are executed as statement blocks;\n" +
			"prefix a line with ! to evaluate it as an expression and print its value.",
		Args: cobra.NoArgs,
		RunE: runReplCmd,
	}
	cmd.Flags().String("prompt", "", "prompt to show (default: \"<runtime>> \")")
	return cmd
}

func runReplCmd(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	d, err := a.openDriver(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	prompt, _ := cmd.Flags().GetString("prompt")
	if prompt == "" {
		prompt = d.Lang() + "> "
	}

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	historyPath := filepath.Join(a.Config.DataDir, "history")
	if f, err := os.Open(historyPath); err == nil {
		line.ReadHistory(f)
		f.Close()
	}

	runREPL(ctx, d, line, prompt, cmd.OutOrStdout())

	if f, err := os.Create(historyPath); err == nil {
		line.WriteHistory(f)
		f.Close()
	}
	return nil
}

// runREPL reads lines until end of input. Errors raised by evaluated code
// are printed and the session continues; a broken session ends the loop.
func runREPL(ctx context.Context, d *driver.Driver, p prompter, prompt string, out io.Writer) {
	for {
		input, err := p.Prompt(prompt)
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) {
				continue
			}
			fmt.Fprintln(out, "<EOF>")
			return
		}
		if strings.TrimSpace(input) == "" {
			continue
		}
		p.AppendHistory(input)

		var v any
		if expr, ok := strings.CutPrefix(input, "!"); ok {
			v, err = d.Eval(ctx, expr)
			if err == nil {
				err = printValue(out, v)
			}
		} else {
			err = d.EvalBlock(ctx, input)
		}

		if err != nil {
			lipgloss.Fprintln(out, formatError(err))

			var protoErr *driver.ProtocolError
			if errors.As(err, &protoErr) {
				return
			}
		}
	}
}
