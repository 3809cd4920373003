package resp

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// maxBulkLen bounds a single declared bulk-string length. Anything larger is
// treated as a framing error rather than an allocation request.
const maxBulkLen = 64 * 1024 * 1024

// maxArrayLen bounds the argument count of a single command frame.
const maxArrayLen = 1024 * 1024

// Reader decodes a stream of RESP command frames. It buffers partial input
// internally, so a command split across any number of reads is reassembled
// before being returned. Reader is not safe for concurrent use; each
// connection owns exactly one.
type Reader struct {
	br *bufio.Reader
}

// NewReader wraps r in a streaming RESP command reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReader(r)}
}

// ReadCommand blocks until one complete command frame is available and
// returns it parsed. io.EOF is returned unwrapped when the peer closes
// between frames. Malformed frames return *ProtocolError.
//
// Two request forms are accepted, as in real RESP servers: the canonical
// array-of-bulk-strings form, and a bare inline line ("PING\r\n") for
// operator use over netcat.
func (r *Reader) ReadCommand() (*Command, error) {
	prefix, err := r.br.Peek(1)
	if err != nil {
		return nil, err
	}
	if prefix[0] != byte(Array) {
		return r.readInline()
	}

	line, err := r.readLine()
	if err != nil {
		return nil, err
	}
	n, err := strconv.Atoi(line[1:])
	if err != nil {
		return nil, protoErr(true, "invalid multibulk length")
	}
	if n <= 0 || n > maxArrayLen {
		return nil, protoErr(true, "invalid multibulk length")
	}

	parts := make([]string, 0, n)
	for i := 0; i < n; i++ {
		part, err := r.readBulk()
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}
	return &Command{Name: strings.ToLower(parts[0]), Args: parts[1:]}, nil
}

// readBulk reads one $<len>\r\n<payload>\r\n element.
func (r *Reader) readBulk() (string, error) {
	line, err := r.readLine()
	if err != nil {
		return "", err
	}
	if line[0] != byte(BulkString) {
		return "", protoErr(true, "expected '$', got '%c'", line[0])
	}
	n, err := strconv.Atoi(line[1:])
	if err != nil || n < 0 || n > maxBulkLen {
		return "", protoErr(true, "invalid bulk length")
	}

	// Payload plus trailing CRLF; ReadFull handles arbitrary read-boundary
	// splits, including mid-payload.
	buf := make([]byte, n+2)
	if _, err := io.ReadFull(r.br, buf); err != nil {
		return "", truncated(err)
	}
	if buf[n] != '\r' || buf[n+1] != '\n' {
		return "", protoErr(true, "bulk string missing terminator")
	}
	return string(buf[:n]), nil
}

// readInline parses a bare text line as a whitespace-separated command.
func (r *Reader) readInline() (*Command, error) {
	line, err := r.readLine()
	if err != nil {
		return nil, err
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, protoErr(false, "empty command")
	}
	return &Command{Name: strings.ToLower(fields[0]), Args: fields[1:]}, nil
}

// readLine reads one CRLF-terminated line, rejecting bare LF framing.
func (r *Reader) readLine() (string, error) {
	line, err := r.br.ReadString('\n')
	if err != nil {
		return "", truncated(err)
	}
	if len(line) < 2 || line[len(line)-2] != '\r' {
		return "", protoErr(true, "line missing CRLF terminator")
	}
	line = line[:len(line)-2]
	if line == "" {
		return "", protoErr(true, "empty line")
	}
	return line, nil
}

// truncated maps an unexpected EOF inside a frame to a fatal protocol error;
// a clean EOF between frames passes through for the caller to treat as a
// normal disconnect.
func truncated(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
