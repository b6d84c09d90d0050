package driver

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/erg0nix/bond/internal/bootstrap"
	"github.com/erg0nix/bond/internal/wire"
)

// exitTimeout is how long Close waits for a subordinate to exit after BYE.
const exitTimeout = 5 * time.Second

// Command describes how to start a subordinate's stage 1.
type Command struct {
	Path string
	Args []string
	Env  map[string]string
	Dir  string
}

type process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	exited chan error
	once   sync.Once
	err    error
}

func (p *process) Wait() error {
	select {
	case err := <-p.exited:
		p.err = err
	case <-time.After(exitTimeout):
		p.cmd.Process.Kill()
		p.err = fmt.Errorf("driver: subordinate did not exit within %s", exitTimeout)
	}
	return p.err
}

func (p *process) Kill() error {
	var err error
	p.once.Do(func() {
		p.stdin.Close()
		err = p.cmd.Process.Kill()
		if errors.Is(err, os.ErrProcessDone) {
			err = nil
		}
	})
	return err
}

// Spawn starts a subordinate, performs the stage-1 handshake with payload
// and waits for READY. The subordinate's stderr is forwarded to
// opts.Stderr line by line. Cancelling ctx before READY kills the process.
func Spawn(ctx context.Context, command Command, payload bootstrap.Payload, opts Options) (*Driver, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cmd := exec.Command(command.Path, command.Args...)
	cmd.Dir = command.Dir
	cmd.Env = os.Environ()
	for k, v := range command.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("driver: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("driver: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return nil, fmt.Errorf("driver: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		stderr.Close()
		return nil, fmt.Errorf("driver: start %s: %w", command.Path, err)
	}

	logger.Debug("subordinate started", "path", command.Path, "pid", cmd.Process.Pid)

	proc := &process{cmd: cmd, stdin: stdin, exited: make(chan error, 1)}

	stderrSink := opts.Stderr
	if stderrSink == nil {
		stderrSink = os.Stderr
	}
	var drained sync.WaitGroup
	drained.Add(1)
	go func() {
		defer drained.Done()
		drainStderr(stderr, stderrSink)
	}()
	go func() {
		drained.Wait()
		proc.exited <- cmd.Wait()
	}()

	ready := make(chan struct{})
	defer close(ready)
	go func() {
		select {
		case <-ctx.Done():
			proc.Kill()
		case <-ready:
		}
	}()

	in := wire.NewReader(stdout, opts.MaxMessageSize, logger)
	out := wire.NewWriter(stdin, logger)

	if err := bootstrap.Handshake(in, out, payload); err != nil {
		proc.Kill()
		return nil, errors.Join(err, ctx.Err())
	}

	d, err := newDriver(in, out, proc, opts)
	if err != nil {
		proc.Kill()
		return nil, errors.Join(err, ctx.Err())
	}
	return d, nil
}

func drainStderr(r io.Reader, w io.Writer) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fmt.Fprintln(w, scanner.Text())
	}
}

type connTransport struct {
	conn net.Conn
}

func (c connTransport) Wait() error {
	return c.conn.Close()
}

func (c connTransport) Kill() error {
	return c.conn.Close()
}

// halfCloser lets Close signal end of input while still reading BYE.
type halfCloser struct {
	net.Conn
}

func (h halfCloser) Close() error {
	if cw, ok := h.Conn.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
	}
	return h.Conn.Close()
}

// Dial connects to a subordinate served over a socket (see `bond serve`).
// The server performs no bootstrap; the session starts at READY.
func Dial(ctx context.Context, addr string, opts Options) (*Driver, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("driver: dial %s: %w", addr, err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	in := wire.NewReader(conn, opts.MaxMessageSize, logger)
	out := wire.NewWriter(halfCloser{conn}, logger)

	d, err := newDriver(in, out, connTransport{conn}, opts)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return d, nil
}
