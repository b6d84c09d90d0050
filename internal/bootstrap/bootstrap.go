// Package bootstrap implements the two-stage loader handshake.
//
// Stage 1 is the smallest program that can run in a subordinate runtime: it
// writes the STAGE2 marker, reads one line holding {"code", "start"}, loads
// code as the real protocol implementation and calls its entry point with
// start. The controller only ever needs to know how to get stage 1 running.
package bootstrap

import (
	"errors"
	"fmt"
	"io"

	"github.com/erg0nix/bond/internal/codec"
	"github.com/erg0nix/bond/internal/wire"
)

// Version of the {code, start} contract.
const Version = 1

// Protocol is the only payload codec the subordinates speak.
const Protocol = "JSON"

// Payload is the single line stage 1 receives.
type Payload struct {
	Code  string `json:"code"`
	Start []any  `json:"start"`
}

// Start holds the decoded stage-2 entry point arguments.
type Start struct {
	Protocol    string
	TransExcept bool
}

// Args renders Start in the [protocol, trans_except] wire order.
func (s Start) Args() []any {
	protocol := s.Protocol
	if protocol == "" {
		protocol = Protocol
	}
	return []any{protocol, s.TransExcept}
}

// ParseStart decodes [protocol, trans_except]; both are optional.
func ParseStart(args []any) (Start, error) {
	start := Start{Protocol: Protocol}

	if len(args) > 0 && args[0] != nil {
		protocol, ok := args[0].(string)
		if !ok {
			return start, fmt.Errorf("bootstrap: protocol must be a string, got %T", args[0])
		}
		if protocol != Protocol {
			return start, fmt.Errorf("bootstrap: unsupported protocol %q", protocol)
		}
	}

	if len(args) > 1 && args[1] != nil {
		switch v := args[1].(type) {
		case bool:
			start.TransExcept = v
		case int64:
			start.TransExcept = v != 0
		default:
			return start, fmt.Errorf("bootstrap: trans_except must be a boolean, got %T", args[1])
		}
	}

	return start, nil
}

// Loader loads stage-2 code, runs it and returns the process exit code.
type Loader func(code string, start Start) int

// ErrNoPayload is returned when the input closes before the stage-2 line.
var ErrNoPayload = errors.New("bootstrap: input closed before stage 2 payload")

// RunStage1 performs the subordinate half of the handshake and hands over
// to load. The reader is shared with stage 2 so no buffered input is lost.
func RunStage1(in *wire.Reader, out *wire.Writer, load Loader) (int, error) {
	if err := out.WriteLine([]byte(wire.Stage2Marker)); err != nil {
		return 1, fmt.Errorf("bootstrap: announce stage 2: %w", err)
	}

	line, err := in.ReadLine()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 1, ErrNoPayload
		}
		return 1, fmt.Errorf("bootstrap: read stage 2: %w", err)
	}

	payload, err := DecodePayload(line)
	if err != nil {
		return 1, err
	}

	start, err := ParseStart(payload.Start)
	if err != nil {
		return 1, err
	}

	return load(payload.Code, start), nil
}

// DecodePayload validates and decodes a stage-2 line.
func DecodePayload(line []byte) (Payload, error) {
	if err := wire.Validate(wire.SchemaStage2, line); err != nil {
		return Payload{}, fmt.Errorf("bootstrap: invalid stage 2 payload: %w", err)
	}

	v, err := codec.Decode(line)
	if err != nil {
		return Payload{}, fmt.Errorf("bootstrap: decode stage 2 payload: %w", err)
	}
	obj := v.(map[string]any)

	return Payload{Code: obj["code"].(string), Start: obj["start"].([]any)}, nil
}

// Handshake is the controller half: wait for the marker, skipping any
// banner the runtime prints first, then send the payload.
func Handshake(in *wire.Reader, out *wire.Writer, payload Payload) error {
	for {
		line, err := in.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("bootstrap: subordinate exited before %s", wire.Stage2Marker)
			}
			return fmt.Errorf("bootstrap: wait for %s: %w", wire.Stage2Marker, err)
		}
		if string(line) == wire.Stage2Marker {
			break
		}
	}

	if payload.Start == nil {
		payload.Start = []any{}
	}
	data, err := codec.Encode(payload)
	if err != nil {
		return fmt.Errorf("bootstrap: encode stage 2 payload: %w", err)
	}
	if err := out.WriteLine(data); err != nil {
		return fmt.Errorf("bootstrap: send stage 2 payload: %w", err)
	}
	return nil
}
