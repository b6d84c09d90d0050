package app

import (
	"context"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/erg0nix/bond/internal/config"
	"github.com/erg0nix/bond/internal/driver"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestServeSessions(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- Serve(ctx, listener, config.Default(), discardLogger()) }()

	addr := listener.Addr().String()
	opts := driver.Options{Lang: "js", Stdout: io.Discard, Stderr: io.Discard}

	first, err := driver.Dial(ctx, addr, opts)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	second, err := driver.Dial(ctx, addr, opts)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	if err := first.EvalBlock(ctx, "var who = 'first';"); err != nil {
		t.Fatalf("EvalBlock: %v", err)
	}

	v, err := second.Eval(ctx, "typeof who")
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if v != "undefined" {
		t.Errorf("sessions share state: typeof who = %v", v)
	}

	v, err = first.Eval(ctx, "who")
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if v != "first" {
		t.Errorf("who = %v, want first", v)
	}

	if err := first.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := second.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}

	cancel()
	select {
	case err := <-served:
		if err != nil {
			t.Errorf("Serve: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestReadPID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.pid")

	if pid := ReadPID(path); pid != 0 {
		t.Errorf("missing file: pid = %d, want 0", pid)
	}

	if err := writePIDFile(path); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	if pid := ReadPID(path); pid != os.Getpid() {
		t.Errorf("pid = %d, want %d", pid, os.Getpid())
	}

	if err := os.WriteFile(path, []byte("not a pid"), 0o644); err != nil {
		t.Fatal(err)
	}
	if pid := ReadPID(path); pid != 0 {
		t.Errorf("garbage file: pid = %d, want 0", pid)
	}
}

func TestStopServerWithoutServer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.pid")

	pid, err := StopServer(path)
	if err != nil || pid != 0 {
		t.Errorf("StopServer = %d, %v; want 0, nil", pid, err)
	}
}
