package resp

import (
	"bufio"
	"io"
	"strconv"
	"sync"
)

// Writer encodes Values to their exact wire form. It is safe for concurrent
// use: command replies and asynchronous pub/sub or replication pushes may
// target the same connection from different goroutines, and each write is
// serialized and flushed as a unit so frames never interleave.
type Writer struct {
	mu sync.Mutex
	bw *bufio.Writer
}

// NewWriter wraps w in a RESP encoder.
func NewWriter(w io.Writer) *Writer {
	return &Writer{bw: bufio.NewWriter(w)}
}

// Write encodes one Value and flushes it to the peer.
func (w *Writer) Write(v Value) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.encode(v); err != nil {
		return err
	}
	return w.bw.Flush()
}

func (w *Writer) encode(v Value) error {
	switch v.Kind {
	case SimpleString:
		return w.line('+', v.Str)
	case Error:
		return w.line('-', v.Str)
	case Integer:
		return w.line(':', strconv.FormatInt(v.Int, 10))
	case BulkString:
		if v.Null {
			return w.line('$', "-1")
		}
		if err := w.line('$', strconv.Itoa(len(v.Bulk))); err != nil {
			return err
		}
		if _, err := w.bw.Write(v.Bulk); err != nil {
			return err
		}
		return w.crlf()
	case Array:
		if err := w.line('*', strconv.Itoa(len(v.Elems))); err != nil {
			return err
		}
		for _, e := range v.Elems {
			if err := w.encode(e); err != nil {
				return err
			}
		}
		return nil
	default:
		return w.line('-', "ERR unencodable reply")
	}
}

func (w *Writer) line(prefix byte, body string) error {
	if err := w.bw.WriteByte(prefix); err != nil {
		return err
	}
	if _, err := w.bw.WriteString(body); err != nil {
		return err
	}
	return w.crlf()
}

func (w *Writer) crlf() error {
	_, err := w.bw.WriteString("\r\n")
	return err
}
