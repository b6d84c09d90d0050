package jseval

import (
	_ "embed"
	"io"
	"log/slog"

	"github.com/erg0nix/bond/internal/bootstrap"
	"github.com/erg0nix/bond/internal/capture"
	"github.com/erg0nix/bond/internal/engine"
	"github.com/erg0nix/bond/internal/wire"
)

// Prelude is the stage-2 source the controller sends to a JavaScript subordinate.
//
//go:embed prelude.js
var Prelude string

// ExitStartup is returned when stage 2 cannot be loaded.
const ExitStartup = 2

// NewSession wires an evaluator and an engine over one stream pair. Console
// output is captured per command. The prelude is not loaded.
func NewSession(in *wire.Reader, out *wire.Writer, opts engine.Options) (*engine.Engine, *Evaluator) {
	output := capture.New(wire.ChannelStdout, wire.ChannelStderr)
	ev := New(map[string]io.Writer{
		wire.ChannelStdout: output.Writer(wire.ChannelStdout),
		wire.ChannelStderr: output.Writer(wire.ChannelStderr),
	})
	return engine.New(in, out, ev, output, opts), ev
}

// Stage2 returns the bootstrap loader for the JavaScript runtime: it loads
// the received code into a fresh session and serves the protocol with the
// start arguments applied.
func Stage2(in *wire.Reader, out *wire.Writer, opts engine.Options) bootstrap.Loader {
	return func(code string, start bootstrap.Start) int {
		logger := opts.Logger
		if logger == nil {
			logger = slog.Default()
		}

		opts.TransparentExceptions = start.TransExcept
		eng, ev := NewSession(in, out, opts)

		if err := ev.ExecBlock(code); err != nil {
			logger.Error("cannot load stage 2", "error", err)
			return ExitStartup
		}

		logger.Debug("stage 2 loaded", "protocol", start.Protocol, "trans_except", start.TransExcept)
		return eng.Serve()
	}
}
