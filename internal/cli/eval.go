package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	lipgloss "github.com/charmbracelet/lipgloss/v2"

	"github.com/erg0nix/bond/internal/codec"
	"github.com/erg0nix/bond/internal/driver"

	"github.com/spf13/cobra"
)

func newEvalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "eval EXPR",
		Short: "Evaluate one expression and print its value as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDriver(cmd, func(ctx context.Context, d *driver.Driver) error {
				v, err := d.Eval(ctx, args[0])
				if err != nil {
					return err
				}
				return printValue(cmd.OutOrStdout(), v)
			})
		},
	}
}

func newExecCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exec [CODE | -]",
		Short: "Execute a block of statements (reads stdin when CODE is - or missing)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := blockSource(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			return withDriver(cmd, func(ctx context.Context, d *driver.Driver) error {
				return d.EvalBlock(ctx, code)
			})
		},
	}
}

func newCallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "call NAME [ARG...]",
		Short: "Call a function with JSON arguments and print the result",
		Long: "Call a function with JSON arguments and print the result.\n" +
			"Arguments that are not valid JSON are passed as strings.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			callArgs := parseCallArgs(args[1:])
			return withDriver(cmd, func(ctx context.Context, d *driver.Driver) error {
				v, err := d.Call(ctx, args[0], callArgs...)
				if err != nil {
					return err
				}
				return printValue(cmd.OutOrStdout(), v)
			})
		},
	}
}

// withDriver runs fn against a fresh session and closes it afterwards.
// Output of the subordinate goes to the command's streams.
func withDriver(cmd *cobra.Command, fn func(context.Context, *driver.Driver) error) error {
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
	d.SetChannel("STDOUT", cmd.OutOrStdout())
	d.SetChannel("STDERR", cmd.ErrOrStderr())

	runErr := fn(ctx, d)
	closeErr := d.Close()

	if runErr != nil {
		lipgloss.Fprintln(cmd.ErrOrStderr(), formatError(runErr))
		return &ExitError{Code: 1}
	}
	return closeErr
}

func blockSource(stdin io.Reader, args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return args[0], nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read code: %w", err)
	}
	return string(data), nil
}

func parseCallArgs(raw []string) []any {
	args := make([]any, 0, len(raw))
	for _, s := range raw {
		v, err := codec.Decode([]byte(s))
		if err != nil {
			args = append(args, s)
			continue
		}
		args = append(args, v)
	}
	return args
}

func printValue(w io.Writer, v any) error {
	data, err := codec.Encode(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func formatError(err error) string {
	var remote *driver.RemoteError
	var serErr *codec.SerializationError
	var protoErr *driver.ProtocolError

	switch {
	case errors.As(err, &remote):
		return styledError(remote.Message, "raised in "+remote.Lang)
	case errors.As(err, &serErr):
		return styledError(serErr.Detail(), fmt.Sprintf("serialization failed (%s side)", serErr.Side))
	case errors.As(err, &protoErr):
		return styledError(protoErr.Error(), "the session was terminated")
	default:
		return styleError.Render(strings.TrimSpace(err.Error()))
	}
}
