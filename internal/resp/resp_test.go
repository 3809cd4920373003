package resp

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"
)

// TestReadCommand tests decoding of well-formed command frames
func TestReadCommand(t *testing.T) {
	t.Run("array of bulk strings", func(t *testing.T) {
		r := NewReader(strings.NewReader("*3\r\n$3\r\nSET\r\n$5\r\ndoc:1\r\n$5\r\nhello\r\n"))

		cmd, err := r.ReadCommand()
		if err != nil {
			t.Fatalf("ReadCommand failed: %v", err)
		}
		if cmd.Name != "set" {
			t.Errorf("Expected name 'set', got %q", cmd.Name)
		}
		if len(cmd.Args) != 2 || cmd.Args[0] != "doc:1" || cmd.Args[1] != "hello" {
			t.Errorf("Unexpected args: %v", cmd.Args)
		}
	})

	t.Run("multiple commands on one stream", func(t *testing.T) {
		r := NewReader(strings.NewReader("*1\r\n$4\r\nPING\r\n*1\r\n$4\r\nPING\r\n"))

		for i := 0; i < 2; i++ {
			cmd, err := r.ReadCommand()
			if err != nil {
				t.Fatalf("Command %d failed: %v", i, err)
			}
			if cmd.Name != "ping" {
				t.Errorf("Command %d: expected ping, got %q", i, cmd.Name)
			}
		}

		// Stream exhausted: clean EOF, not a protocol error
		if _, err := r.ReadCommand(); err != io.EOF {
			t.Errorf("Expected io.EOF, got %v", err)
		}
	})

	t.Run("binary-safe payloads", func(t *testing.T) {
		payload := "a\r\nb\x00c"
		frame := "*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$6\r\n" + payload + "\r\n"
		r := NewReader(strings.NewReader(frame))

		cmd, err := r.ReadCommand()
		if err != nil {
			t.Fatalf("ReadCommand failed: %v", err)
		}
		if cmd.Args[1] != payload {
			t.Errorf("Payload mangled: %q", cmd.Args[1])
		}
	})

	t.Run("inline command", func(t *testing.T) {
		r := NewReader(strings.NewReader("GET doc:1\r\n"))

		cmd, err := r.ReadCommand()
		if err != nil {
			t.Fatalf("ReadCommand failed: %v", err)
		}
		if cmd.Name != "get" || cmd.Key() != "doc:1" {
			t.Errorf("Unexpected command: %v", cmd)
		}
	})
}

// TestReadCommandBoundaries verifies framing is insensitive to how the
// stream is chunked: one byte per read must parse identically to one read.
func TestReadCommandBoundaries(t *testing.T) {
	frame := "*3\r\n$7\r\nlinsert\r\n$5\r\ndoc:1\r\n$11\r\nhello world\r\n"

	whole := NewReader(strings.NewReader(frame))
	want, err := whole.ReadCommand()
	if err != nil {
		t.Fatalf("Whole-frame parse failed: %v", err)
	}

	split := NewReader(iotest.OneByteReader(strings.NewReader(frame)))
	got, err := split.ReadCommand()
	if err != nil {
		t.Fatalf("Split-frame parse failed: %v", err)
	}

	if got.Name != want.Name || len(got.Args) != len(want.Args) {
		t.Fatalf("Split parse diverged: %v vs %v", got, want)
	}
	for i := range got.Args {
		if got.Args[i] != want.Args[i] {
			t.Errorf("Arg %d diverged: %q vs %q", i, got.Args[i], want.Args[i])
		}
	}
}

// TestReadCommandMalformed tests the protocol error taxonomy
func TestReadCommandMalformed(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{"non-numeric array length", "*x\r\n"},
		{"non-numeric bulk length", "*1\r\n$y\r\n"},
		{"negative bulk length", "*1\r\n$-5\r\n"},
		{"wrong element prefix", "*1\r\n:5\r\n"},
		{"missing bulk terminator", "*1\r\n$4\r\nPINGxx"},
		{"bare LF line", "*1\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := NewReader(strings.NewReader(tc.input))
			_, err := r.ReadCommand()
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			var pe *ProtocolError
			if !errors.As(err, &pe) && err != io.ErrUnexpectedEOF {
				t.Errorf("Expected ProtocolError or truncation, got %v", err)
			}
		})
	}
}

// TestReadCommandTruncated tests that a frame cut off mid-payload is
// reported as truncation, never as a phantom command
func TestReadCommandTruncated(t *testing.T) {
	r := NewReader(strings.NewReader("*2\r\n$3\r\nGET\r\n$10\r\nshor"))
	_, err := r.ReadCommand()
	if err != io.ErrUnexpectedEOF {
		t.Errorf("Expected io.ErrUnexpectedEOF, got %v", err)
	}
}

// TestWriteValue tests exact wire encodings for every reply kind
func TestWriteValue(t *testing.T) {
	cases := []struct {
		name string
		v    Value
		want string
	}{
		{"simple string", OK, "+OK\r\n"},
		{"error", Err("ERR boom"), "-ERR boom\r\n"},
		{"integer", Int64(42), ":42\r\n"},
		{"negative integer", Int64(-7), ":-7\r\n"},
		{"bulk string", Bulk("hello"), "$5\r\nhello\r\n"},
		{"empty bulk string", Bulk(""), "$0\r\n\r\n"},
		{"null bulk", NullBulk(), "$-1\r\n"},
		{"empty array", ArrayOf(), "*0\r\n"},
		{
			"nested array",
			ArrayOf(Bulk("message"), Bulk("doc:1"), Int64(3)),
			"*3\r\n$7\r\nmessage\r\n$5\r\ndoc:1\r\n:3\r\n",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			w := NewWriter(&buf)
			if err := w.Write(tc.v); err != nil {
				t.Fatalf("Write failed: %v", err)
			}
			if buf.String() != tc.want {
				t.Errorf("Expected %q, got %q", tc.want, buf.String())
			}
		})
	}
}

// TestCommandEncode tests that Encode produces a frame the Reader accepts
// and that round-trips to the identical command
func TestCommandEncode(t *testing.T) {
	cmd := &Command{Name: "set", Args: []string{"doc:1:line:3", "hello"}}

	r := NewReader(bytes.NewReader(cmd.Encode()))
	got, err := r.ReadCommand()
	if err != nil {
		t.Fatalf("Re-parse of encoded command failed: %v", err)
	}
	if got.Name != cmd.Name || got.Args[0] != cmd.Args[0] || got.Args[1] != cmd.Args[1] {
		t.Errorf("Round-trip diverged: %v", got)
	}
}
