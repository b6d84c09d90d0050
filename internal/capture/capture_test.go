package capture

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
)

type emitted struct {
	channel string
	text    string
}

func collect(ic *Interceptor) ([]emitted, error) {
	var out []emitted
	err := ic.Flush(func(channel, text string) error {
		out = append(out, emitted{channel, text})
		return nil
	})
	return out, err
}

func TestFlushEmitsNonEmptyChannelsInOrder(t *testing.T) {
	ic := New("STDOUT", "STDERR")

	fmt.Fprint(ic.Writer("STDERR"), "warn\n")
	fmt.Fprint(ic.Writer("STDOUT"), "hello ")
	fmt.Fprint(ic.Writer("STDOUT"), "world\n")

	got, err := collect(ic)
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}

	want := []emitted{{"STDOUT", "hello world\n"}, {"STDERR", "warn\n"}}
	if len(got) != len(want) {
		t.Fatalf("emitted %d channels, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("emitted[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestFlushClearsBuffers(t *testing.T) {
	ic := New("STDOUT", "STDERR")
	fmt.Fprint(ic.Writer("STDOUT"), "once")

	if got, _ := collect(ic); len(got) != 1 {
		t.Fatalf("first flush emitted %d channels, want 1", len(got))
	}
	if got, _ := collect(ic); len(got) != 0 {
		t.Errorf("second flush emitted %v, want nothing", got)
	}
}

func TestFlushResetsEvenWhenEmitFails(t *testing.T) {
	ic := New("STDOUT", "STDERR")
	fmt.Fprint(ic.Writer("STDOUT"), "a")
	fmt.Fprint(ic.Writer("STDERR"), "b")

	boom := errors.New("boom")
	calls := 0
	err := ic.Flush(func(string, string) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
	if calls != 2 {
		t.Errorf("emit called %d times, want 2", calls)
	}
	if ic.Pending("STDOUT") != "" || ic.Pending("STDERR") != "" {
		t.Error("buffers not cleared after failed flush")
	}
}

func TestUndeclaredChannelIsDiscarded(t *testing.T) {
	ic := New("STDOUT")
	n, err := ic.Writer("OTHER").Write([]byte("xyz"))
	if err != nil || n != 3 {
		t.Errorf("Write = (%d, %v), want (3, nil)", n, err)
	}
	if got, _ := collect(ic); len(got) != 0 {
		t.Errorf("emitted %v, want nothing", got)
	}
}

func TestPassthrough(t *testing.T) {
	ic := New("STDOUT")
	var device bytes.Buffer

	ic.Passthrough("STDOUT", &device)
	fmt.Fprint(ic.Writer("STDOUT"), "direct")
	if device.String() != "direct" {
		t.Errorf("device = %q, want direct", device.String())
	}
	if ic.Pending("STDOUT") != "" {
		t.Error("passthrough write was buffered")
	}

	ic.Passthrough("STDOUT", nil)
	fmt.Fprint(ic.Writer("STDOUT"), "buffered")
	if ic.Pending("STDOUT") != "buffered" {
		t.Errorf("pending = %q, want buffered", ic.Pending("STDOUT"))
	}
}

func TestReset(t *testing.T) {
	ic := New("STDOUT")
	fmt.Fprint(ic.Writer("STDOUT"), "junk")
	ic.Reset()
	if got, _ := collect(ic); len(got) != 0 {
		t.Errorf("emitted %v after Reset", got)
	}
}
