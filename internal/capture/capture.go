// Package capture buffers the output evaluated code writes while a command runs.
package capture

import (
	"bytes"
	"io"
	"sync"
)

// EmitFunc receives one drained channel.
type EmitFunc func(channel string, text string) error

// Interceptor holds one append-only buffer per named channel. Channels are
// flushed in the order they were declared.
type Interceptor struct {
	mu       sync.Mutex
	order    []string
	buffers  map[string]*bytes.Buffer
	redirect map[string]io.Writer
}

// New creates an interceptor for the given channel names.
func New(channels ...string) *Interceptor {
	ic := &Interceptor{
		buffers:  make(map[string]*bytes.Buffer, len(channels)),
		redirect: make(map[string]io.Writer),
	}
	for _, name := range channels {
		if _, dup := ic.buffers[name]; dup {
			continue
		}
		ic.order = append(ic.order, name)
		ic.buffers[name] = &bytes.Buffer{}
	}
	return ic
}

// Writer returns the sink for a channel. Writes to an undeclared channel
// are discarded.
func (ic *Interceptor) Writer(channel string) io.Writer {
	return channelWriter{ic: ic, channel: channel}
}

// Passthrough sends a channel's writes straight to w instead of buffering
// them. A nil w restores buffering.
func (ic *Interceptor) Passthrough(channel string, w io.Writer) {
	ic.mu.Lock()
	defer ic.mu.Unlock()

	if w == nil {
		delete(ic.redirect, channel)
		return
	}
	ic.redirect[channel] = w
}

// Pending returns the buffered bytes of a channel without draining it.
func (ic *Interceptor) Pending(channel string) string {
	ic.mu.Lock()
	defer ic.mu.Unlock()

	if buf, ok := ic.buffers[channel]; ok {
		return buf.String()
	}
	return ""
}

// Flush hands every non-empty channel to emit and then empties all buffers,
// even when emit fails part way. The first emit error is returned.
func (ic *Interceptor) Flush(emit EmitFunc) error {
	ic.mu.Lock()
	type drained struct{ channel, text string }
	var pending []drained
	for _, name := range ic.order {
		buf := ic.buffers[name]
		if buf.Len() == 0 {
			continue
		}
		pending = append(pending, drained{name, buf.String()})
		buf.Reset()
	}
	ic.mu.Unlock()

	var firstErr error
	for _, d := range pending {
		if err := emit(d.channel, d.text); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Reset discards any buffered output.
func (ic *Interceptor) Reset() {
	ic.mu.Lock()
	defer ic.mu.Unlock()

	for _, buf := range ic.buffers {
		buf.Reset()
	}
}

type channelWriter struct {
	ic      *Interceptor
	channel string
}

func (w channelWriter) Write(p []byte) (int, error) {
	w.ic.mu.Lock()
	if dst, ok := w.ic.redirect[w.channel]; ok {
		w.ic.mu.Unlock()
		return dst.Write(p)
	}
	defer w.ic.mu.Unlock()

	buf, ok := w.ic.buffers[w.channel]
	if !ok {
		return len(p), nil
	}
	return buf.Write(p)
}
