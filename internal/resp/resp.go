package resp

import (
	"fmt"
	"strings"
)

// Kind identifies which RESP reply variant a Value holds.
type Kind byte

const (
	// SimpleString is a "+..." reply, e.g. +OK.
	SimpleString Kind = '+'
	// Error is a "-..." reply, e.g. -ERR unknown command.
	Error Kind = '-'
	// Integer is a ":..." reply.
	Integer Kind = ':'
	// BulkString is a "$<len>..." reply; Null marks the $-1 form.
	BulkString Kind = '$'
	// Array is a "*<len>..." reply containing nested values.
	Array Kind = '*'
)

// Value is the closed tagged union over RESP reply kinds. The active variant
// is selected by Kind; only the fields for that variant are meaningful.
//
// A Value is constructed by the dispatcher (or by Reader when decoding a
// nested reply), serialized exactly once by Writer, then dropped.
type Value struct {
	Kind  Kind
	Str   string  // SimpleString and Error text
	Int   int64   // Integer payload
	Bulk  []byte  // BulkString payload
	Null  bool    // BulkString: true for the $-1 null reply
	Elems []Value // Array elements
}

// OK is the canonical +OK reply.
var OK = Value{Kind: SimpleString, Str: "OK"}

// Simple returns a simple-string reply.
func Simple(s string) Value { return Value{Kind: SimpleString, Str: s} }

// Err returns an error reply. The text is sent verbatim after the '-' byte,
// so callers include the conventional ERR/WRONGTYPE/MOVED prefix themselves.
func Err(format string, args ...any) Value {
	return Value{Kind: Error, Str: fmt.Sprintf(format, args...)}
}

// Int64 returns an integer reply.
func Int64(n int64) Value { return Value{Kind: Integer, Int: n} }

// Bulk returns a bulk-string reply.
func Bulk(s string) Value { return Value{Kind: BulkString, Bulk: []byte(s)} }

// NullBulk returns the $-1 null reply used as the "missing" marker.
func NullBulk() Value { return Value{Kind: BulkString, Null: true} }

// ArrayOf returns an array reply over the given elements.
func ArrayOf(elems ...Value) Value { return Value{Kind: Array, Elems: elems} }

// BulkArray returns an array reply whose elements are all bulk strings,
// the shape used for SMEMBERS, LRANGE and pub/sub pushes.
func BulkArray(items ...string) Value {
	elems := make([]Value, len(items))
	for i, s := range items {
		elems[i] = Bulk(s)
	}
	return Value{Kind: Array, Elems: elems}
}

// Command is a parsed client request: lowercased name plus ordered argument
// list. Immutable once parsed; constructed by Reader, consumed once by the
// dispatcher.
type Command struct {
	Name string   // command name, lowercased
	Args []string // arguments in wire order, name excluded
}

// Key returns the command's addressed key, or "" for keyless commands such
// as PING. By RESP convention the key is always the first argument.
func (c *Command) Key() string {
	if len(c.Args) == 0 {
		return ""
	}
	return c.Args[0]
}

// Encode renders the command back to its canonical wire form, an array of
// bulk strings. The replication link uses this to forward applied commands
// to replicas byte-exactly.
func (c *Command) Encode() []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "*%d\r\n", len(c.Args)+1)
	fmt.Fprintf(&b, "$%d\r\n%s\r\n", len(c.Name), c.Name)
	for _, a := range c.Args {
		fmt.Fprintf(&b, "$%d\r\n%s\r\n", len(a), a)
	}
	return []byte(b.String())
}

func (c *Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// ProtocolError reports malformed or truncated RESP input. Recoverable
// errors (bad frame contents) are reported to the peer as an error reply;
// fatal ones (framing desynchronized) close the connection.
type ProtocolError struct {
	Msg   string
	Fatal bool
}

func (e *ProtocolError) Error() string {
	return "Protocol error: " + e.Msg
}

func protoErr(fatal bool, format string, args ...any) *ProtocolError {
	return &ProtocolError{Msg: fmt.Sprintf(format, args...), Fatal: fatal}
}
