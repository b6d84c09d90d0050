// Package driver is the controller side of the bond protocol. A Driver
// sends requests to a subordinate interpreter and serves the calls the
// subordinate makes back into exported Go functions while it waits.
//
// A Driver is not safe for concurrent use. Requests issued from inside an
// exported function run on the same goroutine as the request that
// triggered them, which is what makes nested callbacks work.
package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/erg0nix/bond/internal/codec"
	"github.com/erg0nix/bond/internal/wire"
)

// DefaultMaxDepth bounds nested request frames.
const DefaultMaxDepth = 256

// Func is a Go function exported to the subordinate.
type Func func(ctx context.Context, args []any) (any, error)

// Options configures a Driver.
type Options struct {
	// Lang names the subordinate runtime in errors and logs.
	Lang string

	// TransparentExceptions must match the flag the subordinate was started
	// with; it shapes the EXCEPT payloads the driver sends back.
	TransparentExceptions bool

	// Stdout and Stderr receive forwarded OUTPUT. Nil selects os.Stdout
	// and os.Stderr.
	Stdout io.Writer
	Stderr io.Writer

	MaxDepth       int
	MaxMessageSize int
	Logger         *slog.Logger
}

// transport is the resource behind the streams, e.g. a child process.
type transport interface {
	// Wait releases the transport after the subordinate said BYE.
	Wait() error
	Kill() error
}

// Driver correlates requests and responses on one stream pair.
type Driver struct {
	id     uuid.UUID
	lang   string
	in     *wire.Reader
	out    *wire.Writer
	opts   Options
	logger *slog.Logger

	channels map[string]io.Writer
	bindings map[string]Func
	conn     transport

	depth  int
	fatal  error
	closed bool
}

// New attaches to a subordinate that is about to announce READY and waits
// for it.
func New(in *wire.Reader, out *wire.Writer, opts Options) (*Driver, error) {
	return newDriver(in, out, nil, opts)
}

func newDriver(in *wire.Reader, out *wire.Writer, conn transport, opts Options) (*Driver, error) {
	if opts.Lang == "" {
		opts.Lang = "unknown"
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	id := uuid.New()
	d := &Driver{
		id:     id,
		lang:   opts.Lang,
		in:     in,
		out:    out,
		opts:   opts,
		logger: logger.With("session", id.String(), "lang", opts.Lang),
		channels: map[string]io.Writer{
			wire.ChannelStdout: opts.Stdout,
			wire.ChannelStderr: opts.Stderr,
		},
		bindings: make(map[string]Func),
		conn:     conn,
	}

	msg, err := in.Read()
	if err != nil {
		return nil, &ProtocolError{Lang: d.lang, Reason: "waiting for READY", Err: err}
	}
	if msg.State != wire.Ready {
		return nil, &ProtocolError{Lang: d.lang, Reason: fmt.Sprintf("expected READY, got %q", msg.State)}
	}

	d.logger.Debug("subordinate ready")
	return d, nil
}

// ID identifies the session in logs.
func (d *Driver) ID() string {
	return d.id.String()
}

// Lang names the subordinate runtime.
func (d *Driver) Lang() string {
	return d.lang
}

// Depth is the number of requests currently awaiting a response.
func (d *Driver) Depth() int {
	return d.depth
}

// SetChannel redirects one OUTPUT channel. A nil writer discards it.
func (d *Driver) SetChannel(channel string, w io.Writer) {
	if w == nil {
		w = io.Discard
	}
	d.channels[channel] = w
}

// Eval evaluates a single expression and returns its value.
func (d *Driver) Eval(ctx context.Context, code string) (any, error) {
	return d.SendAndAwait(ctx, wire.Eval, code)
}

// EvalBlock executes a block of statements.
func (d *Driver) EvalBlock(ctx context.Context, code string) error {
	_, err := d.SendAndAwait(ctx, wire.EvalBlock, code)
	return err
}

// Call invokes name with args. name may be any callable expression.
func (d *Driver) Call(ctx context.Context, name string, args ...any) (any, error) {
	if args == nil {
		args = []any{}
	}
	return d.SendAndAwait(ctx, wire.Call, []any{name, args})
}

// Export makes fn callable from the subordinate as name. Names cannot be
// exported twice.
func (d *Driver) Export(ctx context.Context, name string, fn Func) error {
	_, existed := d.bindings[name]
	if !existed {
		d.bindings[name] = fn
	}

	if _, err := d.SendAndAwait(ctx, wire.Export, name); err != nil {
		if !existed {
			delete(d.bindings, name)
		}
		return err
	}
	return nil
}

// Callable returns a Func that calls name in the subordinate.
func (d *Driver) Callable(name string) Func {
	return func(ctx context.Context, args []any) (any, error) {
		return d.Call(ctx, name, args...)
	}
}

// Proxy exports name from this subordinate into other as remote (or name
// when remote is empty), so the two subordinates can call each other
// through the controller.
func (d *Driver) Proxy(ctx context.Context, name string, other *Driver, remote string) error {
	if remote == "" {
		remote = name
	}
	return other.Export(ctx, remote, d.Callable(name))
}

// SendAndAwait writes one request and processes incoming messages until
// its response arrives.
func (d *Driver) SendAndAwait(ctx context.Context, state wire.State, payload any) (any, error) {
	if d.fatal != nil {
		return nil, d.fatal
	}
	if d.closed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.depth >= d.opts.MaxDepth {
		return nil, fmt.Errorf("%w (%d) sending %s", ErrMaxDepth, d.opts.MaxDepth, state)
	}

	msg, err := wire.NewMessage(state, payload)
	if err != nil {
		return nil, err
	}
	if err := d.out.Write(msg); err != nil {
		return nil, d.fail("cannot send "+string(state), err)
	}

	d.depth++
	defer func() { d.depth-- }()

	return d.await(ctx)
}

func (d *Driver) await(ctx context.Context) (any, error) {
	for {
		msg, err := d.in.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return nil, d.fail("cannot read response", err)
		}

		switch msg.State {
		case wire.Output:
			if err := d.output(msg); err != nil {
				return nil, d.fail("bad OUTPUT", err)
			}

		case wire.Call:
			if err := d.serveCall(ctx, msg); err != nil {
				return nil, err
			}

		case wire.Return:
			return msg.Value()

		case wire.Except:
			payload, err := msg.Value()
			if err != nil {
				return nil, err
			}
			return nil, newRemoteError(d.lang, payload)

		case wire.Error:
			text, err := msg.Text()
			if err != nil {
				return nil, err
			}
			return nil, codec.Remote(text)

		default:
			return nil, d.fail(fmt.Sprintf("unexpected state %q", msg.State), nil)
		}
	}
}

func (d *Driver) output(msg wire.Message) error {
	if err := wire.Validate(wire.SchemaOutputPayload, msg.Args); err != nil {
		return err
	}
	v, err := msg.Value()
	if err != nil {
		return err
	}

	pair := v.([]any)
	channel, text := pair[0].(string), pair[1].(string)

	w, ok := d.channels[channel]
	if !ok {
		d.logger.Warn("output on unknown channel", "channel", channel)
		return nil
	}
	_, err = io.WriteString(w, text)
	if err != nil {
		d.logger.Warn("cannot forward output", "channel", channel, "error", err)
	}
	return nil
}

// serveCall runs an exported function for the subordinate. Only transport
// failures are returned; everything else is answered on the wire.
func (d *Driver) serveCall(ctx context.Context, msg wire.Message) error {
	ret, callErr := d.invoke(ctx, msg)
	if d.fatal != nil {
		return d.fatal
	}

	state := wire.Return
	payload := ret

	if callErr != nil {
		var serErr *codec.SerializationError
		if errors.As(callErr, &serErr) {
			state, payload = wire.Error, serErr.Detail()
		} else {
			state, payload = wire.Except, d.exceptionPayload(callErr)
		}
	}

	data, err := codec.Encode(payload)
	if err != nil {
		var serErr *codec.SerializationError
		errors.As(err, &serErr)
		state = wire.Error
		data, _ = codec.Encode(serErr.Detail())
	}

	if err := d.out.Write(wire.Message{State: state, Args: data}); err != nil {
		return d.fail("cannot answer CALL", err)
	}
	return nil
}

func (d *Driver) invoke(ctx context.Context, msg wire.Message) (any, error) {
	if err := wire.Validate(wire.SchemaCallArgs, msg.Args); err != nil {
		return nil, err
	}
	v, err := msg.Value()
	if err != nil {
		return nil, err
	}

	req := v.([]any)
	name, args := req[0].(string), req[1].([]any)

	fn, ok := d.bindings[name]
	if !ok {
		return nil, fmt.Errorf("%s is not exported", name)
	}

	d.logger.Debug("serving call", "name", name, "depth", d.depth)
	return fn(ctx, args)
}

func (d *Driver) exceptionPayload(err error) any {
	if !d.opts.TransparentExceptions {
		return err.Error()
	}

	var p exceptionPayloader
	if errors.As(err, &p) && p.ExceptionPayload() != nil {
		return p.ExceptionPayload()
	}
	return map[string]any{"name": "Error", "message": err.Error()}
}

func (d *Driver) fail(reason string, err error) error {
	if d.fatal == nil {
		d.fatal = &ProtocolError{Lang: d.lang, Reason: reason, Err: err}
		d.logger.Warn("session broken", "error", d.fatal)
	}
	return d.fatal
}

// Close ends the session: the subordinate sees end of input, says BYE and
// exits. A broken session is killed instead.
func (d *Driver) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true

	if d.fatal != nil {
		return d.Kill()
	}

	if err := d.out.Close(); err != nil {
		d.logger.Debug("cannot close input", "error", err)
	}

	msg, err := d.in.Read()
	if err != nil || msg.State != wire.Bye {
		if d.conn != nil {
			d.conn.Kill()
		}
		if err == nil {
			err = fmt.Errorf("unexpected %q", msg.State)
		}
		return &ProtocolError{Lang: d.lang, Reason: "waiting for BYE", Err: err}
	}

	d.logger.Debug("subordinate said goodbye")
	if d.conn != nil {
		return d.conn.Wait()
	}
	return nil
}

// Kill terminates the subordinate without a handshake.
func (d *Driver) Kill() error {
	d.closed = true
	if d.fatal == nil {
		d.fatal = ErrClosed
	}
	if d.conn == nil {
		return d.out.Close()
	}
	return d.conn.Kill()
}
