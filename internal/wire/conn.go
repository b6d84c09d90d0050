package wire

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// DefaultMaxMessageSize bounds a single wire line.
const DefaultMaxMessageSize = 10 * 1024 * 1024

// Reader reads newline-terminated messages from a byte stream.
type Reader struct {
	scanner *bufio.Scanner
	logger  *slog.Logger
	lineNum int
}

// NewReader wraps r. maxSize <= 0 selects DefaultMaxMessageSize.
func NewReader(r io.Reader, maxSize int, logger *slog.Logger) *Reader {
	if maxSize <= 0 {
		maxSize = DefaultMaxMessageSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, min(64*1024, maxSize)), maxSize)

	return &Reader{scanner: scanner, logger: logger}
}

// ReadLine returns the next line without its terminator, or io.EOF once the
// stream is closed. The returned slice is only valid until the next call.
func (r *Reader) ReadLine() ([]byte, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return nil, fmt.Errorf("wire: read line %d: %w", r.lineNum+1, err)
		}
		return nil, io.EOF
	}

	r.lineNum++
	line := r.scanner.Bytes()
	r.logger.Debug("wire recv", "line", r.lineNum, "data", preview(line))
	return line, nil
}

// Read returns the next message. The payload is copied out of the scanner buffer.
func (r *Reader) Read() (Message, error) {
	line, err := r.ReadLine()
	if err != nil {
		return Message{}, err
	}

	msg := Parse(line)
	if msg.Args != nil {
		msg.Args = append([]byte(nil), msg.Args...)
	}
	return msg, nil
}

// Writer writes one message per line and never splits a line between writers.
type Writer struct {
	w      io.Writer
	logger *slog.Logger
	mu     sync.Mutex
}

// NewWriter wraps w. A nil logger selects slog.Default.
func NewWriter(w io.Writer, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{w: w, logger: logger}
}

// WriteLine writes line followed by a newline in a single Write call.
func (w *Writer) WriteLine(line []byte) error {
	data := make([]byte, 0, len(line)+1)
	data = append(data, line...)
	data = append(data, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.w.Write(data); err != nil {
		return fmt.Errorf("wire: write: %w", err)
	}
	if f, ok := w.w.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("wire: flush: %w", err)
		}
	}

	w.logger.Debug("wire send", "data", preview(line))
	return nil
}

// Write sends a message.
func (w *Writer) Write(msg Message) error {
	return w.WriteLine(msg.Bytes())
}

// Send encodes payload and sends it under state.
func (w *Writer) Send(state State, payload any) error {
	msg, err := NewMessage(state, payload)
	if err != nil {
		return err
	}
	return w.Write(msg)
}

// SendState sends a message that carries no payload.
func (w *Writer) SendState(state State) error {
	return w.Write(Message{State: state})
}

// Close closes the underlying writer if it supports it.
func (w *Writer) Close() error {
	if closer, ok := w.w.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func preview(line []byte) string {
	const limit = 120
	if len(line) <= limit {
		return string(line)
	}
	return string(line[:limit]) + "..."
}
