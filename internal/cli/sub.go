package cli

import (
	"os"

	"github.com/erg0nix/bond/internal/bootstrap"
	"github.com/erg0nix/bond/internal/engine"
	"github.com/erg0nix/bond/internal/jseval"
	"github.com/erg0nix/bond/internal/wire"

	"github.com/spf13/cobra"
)

func newSubCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "sub",
		Short:  "Run the built-in JavaScript subordinate on stdin/stdout",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE:   runSubCmd,
	}
}

// runSubCmd is stage 1 of the js runtime. stdout carries only protocol
// lines; logs go to stderr.
func runSubCmd(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}

	logger := a.Logger.With("role", "sub", "pid", os.Getpid())
	in := wire.NewReader(os.Stdin, a.Config.Session.MaxMessageBytes, logger)
	out := wire.NewWriter(os.Stdout, logger)

	load := jseval.Stage2(in, out, engine.Options{
		MaxDepth: a.Config.Session.MaxDepth,
		Logger:   logger,
	})

	code, err := bootstrap.RunStage1(in, out, load)
	if err != nil {
		logger.Error("stage 1 failed", "error", err)
		return &ExitError{Code: jseval.ExitStartup}
	}
	if code != engine.ExitOK {
		return &ExitError{Code: code}
	}
	return nil
}
