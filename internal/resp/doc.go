// Package resp implements the RESP wire protocol codec used on every TCP
// surface of quillstore: client traffic, redirects, pub/sub pushes and the
// replication link all speak the same framing.
//
// # Overview
//
// RESP frames are typed by a one-byte prefix and terminated by CRLF:
//
//	+OK\r\n                      simple string
//	-ERR message\r\n             error
//	:42\r\n                      integer
//	$5\r\nhello\r\n              bulk string
//	$-1\r\n                      null bulk string
//	*2\r\n$3\r\nGET\r\n$1\r\nk\r\n  array
//
// Requests arrive as arrays of bulk strings (command name plus arguments).
// Replies are any of the value kinds above.
//
// # Streaming
//
// Reader is a streaming parser: a frame split across an arbitrary number of
// reads is reassembled transparently, and the caller only ever sees complete
// commands. Malformed input surfaces as *ProtocolError; the connection
// handler decides whether the error is recoverable (report and continue) or
// a framing failure (close the connection).
//
// The codec has no knowledge of storage semantics. It maps bytes to Command
// and Value and back, nothing else.
package resp
