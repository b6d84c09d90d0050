package engine

import (
	"errors"
	"fmt"
)

// ErrAlreadyExists is returned by EXPORT for a name that is already defined.
var ErrAlreadyExists = errors.New("already exists")

// ProtocolError is a fatal desynchronization: an unknown command, a broken
// stream, or an EXCEPT/ERROR with no pending call to deliver it to.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error: %s: %v", e.Reason, e.Err)
	}
	return "protocol error: " + e.Reason
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// RemoteError is an exception the controller raised while answering a CALL.
type RemoteError struct {
	Message string
	Data    any
}

func (e *RemoteError) Error() string {
	return e.Message
}

// ExceptionPayload lets a controller exception cross back unchanged when
// nothing in the subordinate handled it.
func (e *RemoteError) ExceptionPayload() any {
	if e.Data != nil {
		return e.Data
	}
	return map[string]any{"name": "Error", "message": e.Message}
}

func newRemoteError(payload any) *RemoteError {
	switch p := payload.(type) {
	case string:
		return &RemoteError{Message: p}
	case map[string]any:
		if msg, ok := p["message"].(string); ok {
			return &RemoteError{Message: msg, Data: p}
		}
	}
	return &RemoteError{Message: fmt.Sprint(payload), Data: payload}
}

type exceptionPayloader interface {
	ExceptionPayload() any
}
