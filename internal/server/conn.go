package server

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/dreamware/quillstore/internal/resp"
)

// pushDepth bounds a subscriber's outbound pub/sub backlog. A consumer
// that can't drain this many pending messages starts losing them.
const pushDepth = 256

// conn is one client (or peer) connection's state machine: read a command,
// execute, write the reply, repeat until the peer disconnects or framing
// fails unrecoverably. Subscriptions die with the connection.
type conn struct {
	srv    *Server
	nc     net.Conn
	reader *resp.Reader
	writer *resp.Writer

	// peer is set once the connection completes the replication handshake;
	// peer connections may write on a replica and skip the idle timeout.
	peer bool

	pushes    chan push
	closeOnce sync.Once
	done      chan struct{}
}

type push struct {
	channel string
	payload string
}

func newConn(s *Server, nc net.Conn) *conn {
	c := &conn{
		srv:    s,
		nc:     nc,
		reader: resp.NewReader(nc),
		writer: resp.NewWriter(nc),
		pushes: make(chan push, pushDepth),
		done:   make(chan struct{}),
	}
	go c.pushPump()
	return c
}

// ID implements pubsub.Subscriber using the peer's remote address.
func (c *conn) ID() string { return c.nc.RemoteAddr().String() }

// Push implements pubsub.Subscriber: enqueue without blocking the
// publisher, reporting false when this subscriber's buffer is full.
func (c *conn) Push(channel, payload string) bool {
	select {
	case c.pushes <- push{channel: channel, payload: payload}:
		return true
	default:
		return false
	}
}

// pushPump writes queued pub/sub messages to the peer. Runs until the
// connection closes; the resp.Writer serializes pushes against command
// replies so frames never interleave.
func (c *conn) pushPump() {
	for {
		select {
		case p := <-c.pushes:
			msg := resp.ArrayOf(resp.Bulk("message"), resp.Bulk(p.channel), resp.Bulk(p.payload))
			if err := c.writer.Write(msg); err != nil {
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// serve runs the per-connection protocol loop.
func (c *conn) serve() {
	defer func() {
		c.close()
		c.srv.registry.DropSubscriber(c)
		c.srv.removeConn(c)
	}()

	for {
		if c.srv.idleTimeout > 0 && !c.peer {
			c.nc.SetReadDeadline(time.Now().Add(c.srv.idleTimeout))
		} else {
			c.nc.SetReadDeadline(time.Time{})
		}

		cmd, err := c.reader.ReadCommand()
		if err != nil {
			var pe *resp.ProtocolError
			switch {
			case errors.As(err, &pe):
				// Malformed input gets reported to the peer; only a
				// desynchronized frame ends the connection.
				c.writer.Write(resp.Err("ERR %s", pe.Error()))
				if pe.Fatal {
					return
				}
				continue
			case isTimeout(err):
				c.srv.logf("closing idle connection %s", c.ID())
				return
			case isDisconnect(err) || err == io.ErrUnexpectedEOF:
				return
			default:
				c.srv.logf("read error on %s: %v", c.ID(), err)
				return
			}
		}

		reply := c.srv.dispatch(c, cmd)
		if reply != nil {
			if err := c.writer.Write(*reply); err != nil {
				c.srv.logf("write error on %s: %v", c.ID(), err)
				return
			}
		}
	}
}

func (c *conn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.nc.Close()
	})
}
