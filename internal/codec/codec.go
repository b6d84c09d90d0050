// Package codec converts values to and from the JSON text carried by wire messages.
//
// Anything encoding/json cannot represent (functions, channels, cycles,
// NaN/Inf) fails with a *SerializationError instead of degrading silently,
// and so does malformed input. Callers classify protocol states on exactly
// this distinction, so every failure here must stay detectable with errors.As.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
)

// Side tells which end of the channel failed to (de)serialize a value.
type Side string

const (
	SideLocal  Side = "local"
	SideRemote Side = "remote"
)

// SerializationError reports a value that could not be encoded or decoded.
type SerializationError struct {
	Side    Side
	Message string
	Err     error
}

func (e *SerializationError) Error() string {
	if e.Side == "" {
		return "serialization error: " + e.Message
	}
	return fmt.Sprintf("serialization error (%s): %s", e.Side, e.Message)
}

func (e *SerializationError) Unwrap() error {
	return e.Err
}

// Detail is the message without the side prefix, as carried by an ERROR payload.
func (e *SerializationError) Detail() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Remote builds the error reported when the peer answered with ERROR.
func Remote(message string) *SerializationError {
	return &SerializationError{Side: SideRemote, Message: message}
}

// IsSerialization reports whether err is, or wraps, a *SerializationError.
func IsSerialization(err error) bool {
	var serErr *SerializationError
	return errors.As(err, &serErr)
}

// Encode renders v as a single line of JSON text.
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(v); err != nil {
		return nil, &SerializationError{Side: SideLocal, Message: fmt.Sprintf("cannot encode %s", describe(v)), Err: err}
	}

	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Decode parses one JSON value. Integral numbers that fit in an int64 come
// back as int64, every other number as float64.
func Decode(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, &SerializationError{Side: SideLocal, Message: "cannot decode payload", Err: err}
	}

	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, &SerializationError{Side: SideLocal, Message: "trailing data after payload"}
	}

	return normalize(v)
}

// DecodeInto parses data into a typed destination.
func DecodeInto(data []byte, dst any) error {
	if err := json.Unmarshal(data, dst); err != nil {
		return &SerializationError{Side: SideLocal, Message: "cannot decode payload", Err: err}
	}
	return nil
}

func normalize(v any) (any, error) {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i, nil
		}
		f, err := val.Float64()
		if err != nil || math.IsInf(f, 0) {
			return nil, &SerializationError{Side: SideLocal, Message: "number out of range: " + val.String()}
		}
		return f, nil
	case []any:
		for i := range val {
			n, err := normalize(val[i])
			if err != nil {
				return nil, err
			}
			val[i] = n
		}
		return val, nil
	case map[string]any:
		for k := range val {
			n, err := normalize(val[k])
			if err != nil {
				return nil, err
			}
			val[k] = n
		}
		return val, nil
	default:
		return v, nil
	}
}

func describe(v any) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("value of type %T", v)
}
