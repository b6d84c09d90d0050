// Package engine implements the subordinate side of the bond protocol: a
// command loop that evaluates requests from the controller and forwards
// exported calls back to it over the same stream pair.
package engine

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/erg0nix/bond/internal/capture"
	"github.com/erg0nix/bond/internal/codec"
	"github.com/erg0nix/bond/internal/wire"
)

// Exit codes returned by Run and Serve.
const (
	ExitOK       = 0
	ExitProtocol = 1
)

// DefaultMaxDepth bounds nested controller/subordinate call frames.
const DefaultMaxDepth = 256

// Options configures an Engine.
type Options struct {
	// TransparentExceptions sends application exceptions as structured
	// values instead of flattened messages.
	TransparentExceptions bool
	MaxDepth              int
	Logger                *slog.Logger
}

// Engine runs the command loop for one session.
type Engine struct {
	in      *wire.Reader
	out     *wire.Writer
	eval    Evaluator
	output  *capture.Interceptor
	exports *ExportRegistry
	opts    Options
	logger  *slog.Logger

	frames []string
	fatal  error
	closed bool
	result any
}

// New creates an engine. output must be the interceptor the evaluator
// writes its console output to.
func New(in *wire.Reader, out *wire.Writer, eval Evaluator, output *capture.Interceptor, opts Options) *Engine {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if output == nil {
		output = capture.New(wire.ChannelStdout, wire.ChannelStderr)
	}

	return &Engine{
		in:      in,
		out:     out,
		eval:    eval,
		output:  output,
		exports: NewExportRegistry(),
		opts:    opts,
		logger:  logger,
	}
}

// Exports returns the session's export registry.
func (e *Engine) Exports() *ExportRegistry {
	return e.exports
}

// Depth is the number of active command loops: 1 at top level, plus one per
// pending call into the controller.
func (e *Engine) Depth() int {
	return len(e.frames) + 1
}

// Result is the payload of the RETURN that ended the top-level loop.
func (e *Engine) Result() any {
	return e.result
}

// Serve announces readiness, runs the command loop and says goodbye. After
// a protocol fault nothing more is written.
func (e *Engine) Serve() int {
	if err := e.out.SendState(wire.Ready); err != nil {
		e.logger.Error("cannot announce readiness", "error", err)
		return ExitProtocol
	}

	code := e.Run()
	if code != ExitOK {
		return code
	}

	if err := e.out.SendState(wire.Bye); err != nil {
		e.logger.Debug("cannot send BYE", "error", err)
	}
	return code
}

// Run processes commands until RETURN, end of input, or a protocol fault.
func (e *Engine) Run() int {
	payload, err := e.loop()

	var protoErr *ProtocolError
	switch {
	case err == nil:
		e.result = payload
		return ExitOK
	case errors.Is(err, io.EOF):
		return ExitOK
	case errors.As(err, &protoErr):
		e.logger.Warn("subordinate terminated", "error", err)
		return ExitProtocol
	default:
		// EXCEPT or ERROR with no pending call to raise into.
		e.logger.Warn("unhandled exception at top level", "error", err)
		return ExitProtocol
	}
}

// Call forwards an invocation to the controller and waits for its answer,
// serving any requests the controller makes in the meantime.
func (e *Engine) Call(name string, args []any) (any, error) {
	if e.fatal != nil {
		return nil, e.fatal
	}
	if e.closed {
		return nil, fmt.Errorf("engine: call %s: %w", name, io.ErrUnexpectedEOF)
	}
	if len(e.frames)+1 >= e.opts.MaxDepth {
		return nil, &EvalError{Name: "RangeError", Message: fmt.Sprintf("maximum call depth %d exceeded calling %s", e.opts.MaxDepth, name)}
	}
	if args == nil {
		args = []any{}
	}

	msg, err := wire.NewMessage(wire.Call, []any{name, args})
	if err != nil {
		return nil, err
	}

	if err := e.flushOutput(); err != nil {
		return nil, e.fail("cannot flush output", err)
	}
	if err := e.out.Write(msg); err != nil {
		return nil, e.fail("cannot send CALL", err)
	}

	e.frames = append(e.frames, name)
	defer func() { e.frames = e.frames[:len(e.frames)-1] }()

	e.logger.Debug("forwarding call", "name", name, "depth", e.Depth())

	ret, err := e.loop()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("engine: call %s: %w", name, io.ErrUnexpectedEOF)
	}
	return ret, err
}

func (e *Engine) loop() (any, error) {
	for {
		msg, err := e.in.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				e.closed = true
				return nil, io.EOF
			}
			return nil, e.fail("cannot read command", err)
		}
		if msg.State == "" {
			e.closed = true
			return nil, io.EOF
		}

		var ret any
		var cmdErr error

		switch msg.State {
		case wire.Eval:
			ret, cmdErr = e.evalExpr(msg)
		case wire.EvalBlock:
			cmdErr = e.execBlock(msg)
		case wire.Export:
			cmdErr = e.export(msg)
		case wire.Call:
			ret, cmdErr = e.call(msg)
		case wire.Return:
			return msg.Value()
		case wire.Except:
			payload, err := msg.Value()
			if err != nil {
				return nil, err
			}
			return nil, newRemoteError(payload)
		case wire.Error:
			text, err := msg.Text()
			if err != nil {
				return nil, err
			}
			return nil, codec.Remote(text)
		default:
			return nil, e.fail(fmt.Sprintf("unrecognized command %q", msg.State), nil)
		}

		if e.fatal != nil {
			return nil, e.fatal
		}
		if e.closed {
			return nil, io.EOF
		}

		if err := e.respond(ret, cmdErr); err != nil {
			return nil, e.fail("cannot send response", err)
		}
	}
}

func (e *Engine) evalExpr(msg wire.Message) (any, error) {
	code, err := msg.Text()
	if err != nil {
		return nil, err
	}
	return e.eval.EvalExpr(code)
}

func (e *Engine) execBlock(msg wire.Message) error {
	code, err := msg.Text()
	if err != nil {
		return err
	}
	return e.eval.ExecBlock(code)
}

func (e *Engine) export(msg wire.Message) error {
	if err := wire.Validate(wire.SchemaExportName, msg.Args); err != nil {
		return err
	}
	name, err := msg.Text()
	if err != nil {
		return err
	}

	if e.eval.Defined(name) {
		return &EvalError{Name: "Error", Message: fmt.Sprintf("function %q %s", name, ErrAlreadyExists)}
	}

	forward := func(args []any) (any, error) {
		return e.Call(name, args)
	}
	if err := e.exports.Add(name, forward); err != nil {
		return &EvalError{Name: "Error", Message: err.Error()}
	}
	return e.eval.Define(name, forward)
}

func (e *Engine) call(msg wire.Message) (any, error) {
	if err := wire.Validate(wire.SchemaCallArgs, msg.Args); err != nil {
		return nil, err
	}

	v, err := codec.Decode(msg.Args)
	if err != nil {
		return nil, err
	}
	req := v.([]any)
	callee, args := req[0].(string), req[1].([]any)

	fn, err := e.eval.ResolveCallable(callee)
	if err != nil {
		return nil, err
	}
	return fn(args)
}

func (e *Engine) respond(ret any, cmdErr error) error {
	if err := e.flushOutput(); err != nil {
		return err
	}

	state := wire.Return
	payload := ret

	if cmdErr != nil {
		var serErr *codec.SerializationError
		if errors.As(cmdErr, &serErr) {
			state = wire.Error
			payload = serErr.Detail()
		} else {
			state = wire.Except
			payload = e.exceptionPayload(cmdErr)
		}
	}

	data, err := codec.Encode(payload)
	if err != nil {
		state = wire.Error
		data, _ = codec.Encode(serializationDetail(err))
	}

	e.logger.Debug("command done", "state", state, "depth", e.Depth())
	return e.out.Write(wire.Message{State: state, Args: data})
}

func (e *Engine) exceptionPayload(err error) any {
	if !e.opts.TransparentExceptions {
		return err.Error()
	}

	var p exceptionPayloader
	if errors.As(err, &p) {
		return p.ExceptionPayload()
	}
	return map[string]any{"name": "Error", "message": err.Error()}
}

func (e *Engine) flushOutput() error {
	return e.output.Flush(func(channel, text string) error {
		return e.out.Send(wire.Output, []any{channel, text})
	})
}

func (e *Engine) fail(reason string, err error) error {
	if e.fatal == nil {
		e.fatal = &ProtocolError{Reason: reason, Err: err}
		e.output.Reset()
		if in, ok := e.eval.(Interrupter); ok {
			in.Interrupt(e.fatal)
		}
	}
	return e.fatal
}

func serializationDetail(err error) string {
	var serErr *codec.SerializationError
	if errors.As(err, &serErr) {
		return serErr.Detail()
	}
	return err.Error()
}
