package wire

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/erg0nix/bond/internal/codec"
)

func TestParse(t *testing.T) {
	tests := []struct {
		line  string
		state State
		args  string
	}{
		{"READY", Ready, ""},
		{"EVAL \"1 + 1\"", Eval, `"1 + 1"`},
		{`CALL ["f",[1,"a b"]]`, Call, `["f",[1,"a b"]]`},
		{"RETURN ", Return, ""},
		{"BOGUS stuff", State("BOGUS"), "stuff"},
	}

	for _, tt := range tests {
		msg := Parse([]byte(tt.line))
		if msg.State != tt.state {
			t.Errorf("Parse(%q).State = %q, want %q", tt.line, msg.State, tt.state)
		}
		if string(msg.Args) != tt.args {
			t.Errorf("Parse(%q).Args = %q, want %q", tt.line, msg.Args, tt.args)
		}
	}
}

func TestMessageBytes(t *testing.T) {
	if got := (Message{State: Bye}).String(); got != "BYE" {
		t.Errorf("payloadless message = %q, want BYE", got)
	}

	msg, err := NewMessage(Output, []any{ChannelStdout, "hi\n"})
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	if got, want := msg.String(), `OUTPUT ["STDOUT","hi\n"]`; got != want {
		t.Errorf("message = %q, want %q", got, want)
	}
}

func TestMessageValueDefaultsToEmptyList(t *testing.T) {
	v, err := Message{State: Return}.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	list, ok := v.([]any)
	if !ok || len(list) != 0 {
		t.Errorf("value = %#v, want empty list", v)
	}
}

func TestMessageTextRejectsNonString(t *testing.T) {
	_, err := Message{State: Export, Args: []byte("42")}.Text()
	if !codec.IsSerialization(err) {
		t.Errorf("err = %v, want serialization error", err)
	}
}

func TestNewMessageRejectsFunctions(t *testing.T) {
	_, err := NewMessage(Return, func() {})
	if !codec.IsSerialization(err) {
		t.Errorf("err = %v, want serialization error", err)
	}
}

func TestKnownStates(t *testing.T) {
	for _, s := range []State{Ready, Call, Eval, EvalBlock, Export, Return, Except, Error, Output, Bye} {
		if !s.Known() {
			t.Errorf("%s.Known() = false", s)
		}
	}
	if State("EVALUATE").Known() {
		t.Error("EVALUATE should not be a known state")
	}
}

func TestReaderWriterRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, nil)

	if err := w.SendState(Ready); err != nil {
		t.Fatalf("SendState: %v", err)
	}
	if err := w.Send(Return, map[string]any{"k": []any{1, 2}}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	r := NewReader(&buf, 0, nil)

	msg, err := r.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if msg.State != Ready || msg.Args != nil {
		t.Errorf("first message = %v, want READY", msg)
	}

	msg, err = r.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got := string(msg.Args); got != `{"k":[1,2]}` {
		t.Errorf("args = %s", got)
	}

	if _, err := r.Read(); !errors.Is(err, io.EOF) {
		t.Errorf("err = %v, want io.EOF", err)
	}
}

func TestReaderRejectsOversizedLine(t *testing.T) {
	r := NewReader(strings.NewReader(strings.Repeat("x", 128)+"\n"), 64, nil)
	if _, err := r.Read(); err == nil || errors.Is(err, io.EOF) {
		t.Errorf("err = %v, want size error", err)
	}
}

func TestReaderCapBelowInitialBuffer(t *testing.T) {
	line := "RETURN \"" + strings.Repeat("x", 32*1024) + "\"\n"
	r := NewReader(strings.NewReader(line), 1024, nil)
	if msg, err := r.Read(); err == nil || errors.Is(err, io.EOF) {
		t.Errorf("got %s with %d bytes, want size error", msg.State, len(msg.Args))
	}
}

func TestReaderLargeLine(t *testing.T) {
	payload := strings.Repeat("x", 1<<16)
	var buf bytes.Buffer
	w := NewWriter(&buf, nil)
	if err := w.Send(Return, payload); err != nil {
		t.Fatalf("Send: %v", err)
	}

	msg, err := NewReader(&buf, 0, nil).Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	text, err := msg.Text()
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if text != payload {
		t.Errorf("payload length = %d, want %d", len(text), len(payload))
	}
}
