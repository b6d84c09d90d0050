// Package wire frames bond protocol messages: one `STATE[ json-args]` line per message.
package wire

import (
	"bytes"
	"fmt"

	"github.com/erg0nix/bond/internal/codec"
)

// State is the leading token of a wire message.
type State string

const (
	Ready     State = "READY"
	Call      State = "CALL"
	Eval      State = "EVAL"
	EvalBlock State = "EVAL_BLOCK"
	Export    State = "EXPORT"
	Return    State = "RETURN"
	Except    State = "EXCEPT"
	Error     State = "ERROR"
	Output    State = "OUTPUT"
	Bye       State = "BYE"
)

// Stage2Marker is the line stage 1 writes before it reads the stage-2 payload.
const Stage2Marker = "STAGE2"

// Standard output channel names.
const (
	ChannelStdout = "STDOUT"
	ChannelStderr = "STDERR"
)

var knownStates = map[State]bool{
	Ready: true, Call: true, Eval: true, EvalBlock: true, Export: true,
	Return: true, Except: true, Error: true, Output: true, Bye: true,
}

// Known reports whether s is one of the protocol states.
func (s State) Known() bool {
	return knownStates[s]
}

// Message is one decoded line. Args holds the raw JSON payload, nil when the
// line carried none.
type Message struct {
	State State
	Args  []byte
}

// Parse splits a line at its first space into state and raw payload.
func Parse(line []byte) Message {
	state, args, found := bytes.Cut(line, []byte{' '})
	msg := Message{State: State(state)}
	if found && len(args) > 0 {
		msg.Args = args
	}
	return msg
}

// NewMessage encodes payload into a message. A nil payload is sent as JSON null.
func NewMessage(state State, payload any) (Message, error) {
	data, err := codec.Encode(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{State: state, Args: data}, nil
}

// Bytes renders the message without the line terminator.
func (m Message) Bytes() []byte {
	if len(m.Args) == 0 {
		return []byte(m.State)
	}
	line := make([]byte, 0, len(m.State)+1+len(m.Args))
	line = append(line, m.State...)
	line = append(line, ' ')
	return append(line, m.Args...)
}

func (m Message) String() string {
	return string(m.Bytes())
}

// Value decodes the payload. An absent payload decodes as an empty list.
func (m Message) Value() (any, error) {
	if len(m.Args) == 0 {
		return []any{}, nil
	}
	return codec.Decode(m.Args)
}

// Text decodes a payload that must be a JSON string.
func (m Message) Text() (string, error) {
	v, err := m.Value()
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", &codec.SerializationError{Side: codec.SideLocal, Message: fmt.Sprintf("%s payload must be a string, got %T", m.State, v)}
	}
	return s, nil
}
