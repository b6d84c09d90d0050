package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/erg0nix/bond/internal/config"
	"github.com/erg0nix/bond/internal/engine"
	"github.com/erg0nix/bond/internal/jseval"
	"github.com/erg0nix/bond/internal/wire"
)

const drainTimeout = 5 * time.Second

// PIDFile returns the location of the server PID file.
func PIDFile(cfg config.Config) string {
	return filepath.Join(cfg.DataDir, "server.pid")
}

// RunServer listens on cfg.Bind and serves JavaScript sessions until
// SIGTERM or SIGINT.
func RunServer(cfg config.Config, logger *slog.Logger) error {
	listener, err := net.Listen("tcp", cfg.Bind)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", cfg.Bind, err)
	}

	pidFile := PIDFile(cfg)
	if err := writePIDFile(pidFile); err != nil {
		logger.Warn("failed to write PID file", "error", err)
	}
	defer os.Remove(pidFile)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	return Serve(ctx, listener, cfg, logger)
}

// Serve accepts connections on listener until ctx is done. Every
// connection is an independent session: the server has already loaded the
// stage-2 prelude, so the peer starts at READY.
func Serve(ctx context.Context, listener net.Listener, cfg config.Config, logger *slog.Logger) error {
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		conns = make(map[net.Conn]struct{})
	)

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	logger.Info("server listening", "address", listener.Addr().String())

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			logger.Warn("accept failed", "error", err)
			continue
		}

		mu.Lock()
		conns[conn] = struct{}{}
		mu.Unlock()

		wg.Add(1)
		go func() {
			defer wg.Done()
			handleConnection(conn, cfg, logger)

			mu.Lock()
			delete(conns, conn)
			mu.Unlock()
		}()
	}

	logger.Info("shutting down")

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()

	select {
	case <-done:
	case <-time.After(drainTimeout):
		logger.Warn("drain timeout, closing sessions")
		mu.Lock()
		for conn := range conns {
			conn.Close()
		}
		mu.Unlock()
		<-done
	}

	return nil
}

func handleConnection(conn net.Conn, cfg config.Config, logger *slog.Logger) {
	defer conn.Close()

	logger = logger.With("conn", uuid.NewString(), "remote", conn.RemoteAddr().String())
	logger.Info("session started")

	opts := engine.Options{
		TransparentExceptions: cfg.Session.TransExcept,
		MaxDepth:              cfg.Session.MaxDepth,
		Logger:                logger,
	}
	in := wire.NewReader(conn, cfg.Session.MaxMessageBytes, logger)
	out := wire.NewWriter(conn, logger)

	eng, ev := jseval.NewSession(in, out, opts)
	if err := ev.ExecBlock(jseval.Prelude); err != nil {
		logger.Error("cannot load prelude", "error", err)
		return
	}

	code := eng.Serve()
	logger.Info("session ended", "exit", code)
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("write pid file: mkdir: %w", err)
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	return nil
}
