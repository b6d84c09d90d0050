package driver

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by requests on a driver that was closed or killed.
var ErrClosed = errors.New("driver: closed")

// ErrMaxDepth is returned when nested calls exceed Options.MaxDepth.
var ErrMaxDepth = errors.New("driver: maximum call depth exceeded")

// RemoteError is an exception raised by code running in the subordinate.
// Data holds the decoded EXCEPT payload: the flattened message, or the
// structured exception when the session is transparent.
type RemoteError struct {
	Lang    string
	Message string
	Data    any
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote exception [%s]: %s", e.Lang, e.Message)
}

// ExceptionPayload lets a remote exception be forwarded unchanged, e.g.
// when a proxied call fails inside another subordinate.
func (e *RemoteError) ExceptionPayload() any {
	return e.Data
}

func newRemoteError(lang string, payload any) *RemoteError {
	err := &RemoteError{Lang: lang, Data: payload}

	switch p := payload.(type) {
	case string:
		err.Message = p
	case map[string]any:
		msg, _ := p["message"].(string)
		if name, ok := p["name"].(string); ok && name != "" {
			msg = name + ": " + msg
		}
		err.Message = msg
	default:
		err.Message = fmt.Sprint(payload)
	}
	return err
}

// ProtocolError means the channel is out of sync. The driver cannot be
// used afterwards.
type ProtocolError struct {
	Lang   string
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error [%s]: %s: %v", e.Lang, e.Reason, e.Err)
	}
	return fmt.Sprintf("protocol error [%s]: %s", e.Lang, e.Reason)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

type exceptionPayloader interface {
	ExceptionPayload() any
}
