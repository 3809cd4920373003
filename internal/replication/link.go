// Package replication propagates a primary's applied mutations to its
// shard's replicas over the same RESP protocol clients speak.
//
// Replication is asynchronous and best-effort: the client's reply is never
// delayed by replica delivery, and a replica that cannot be reached has its
// writes skipped (logged, not fatal) until it is reachable again. Per
// replica, commands are forwarded in exactly the order the primary applied
// them.
package replication

import (
	"bufio"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"github.com/dreamware/quillstore/internal/resp"
)

// queueDepth bounds the per-replica backlog. A replica that falls further
// behind than this loses writes and catches up through subsequent live
// traffic.
const queueDepth = 1024

// dialTimeout bounds one connection attempt to a replica.
const dialTimeout = 2 * time.Second

// redialBackoff is the minimum gap between failed connection attempts, so
// a dead replica doesn't get dialed for every single write.
const redialBackoff = 3 * time.Second

// Link fans applied commands out to a shard's replicas. One Link lives on
// the shard's primary; replicas hold none.
type Link struct {
	forwarders []*forwarder
	wg         sync.WaitGroup
}

// NewLink starts one forwarder per replica address. selfAddr is this
// primary's advertised address, sent in the peer handshake so replicas can
// tell replication traffic from client traffic.
func NewLink(selfAddr string, replicas []string) *Link {
	l := &Link{}
	for _, addr := range replicas {
		f := &forwarder{
			addr:     addr,
			selfAddr: selfAddr,
			queue:    make(chan []byte, queueDepth),
			dial: func(addr string) (net.Conn, error) {
				return net.DialTimeout("tcp", addr, dialTimeout)
			},
		}
		l.forwarders = append(l.forwarders, f)
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			f.run()
		}()
	}
	return l
}

// Forward queues cmd for delivery to every replica, in the order Forward
// is called. Never blocks the caller: a replica whose queue is full skips
// this write.
func (l *Link) Forward(cmd *resp.Command) {
	if len(l.forwarders) == 0 {
		return
	}
	raw := cmd.Encode()
	for _, f := range l.forwarders {
		select {
		case f.queue <- raw:
		default:
			log.Printf("replication: queue full, dropping %s for replica %s", cmd.Name, f.addr)
		}
	}
}

// Close stops all forwarders after draining queued commands.
func (l *Link) Close() {
	for _, f := range l.forwarders {
		close(f.queue)
	}
	l.wg.Wait()
}

// forwarder owns the connection to one replica and streams commands to it
// in queue order.
type forwarder struct {
	addr     string
	selfAddr string
	queue    chan []byte
	dial     func(addr string) (net.Conn, error)

	conn        net.Conn
	lastAttempt time.Time
}

func (f *forwarder) run() {
	for raw := range f.queue {
		if err := f.send(raw); err != nil {
			log.Printf("replication: write to %s failed: %v", f.addr, err)
			f.dropConn()
		}
	}
	f.dropConn()
}

func (f *forwarder) send(raw []byte) error {
	if f.conn == nil {
		if time.Since(f.lastAttempt) < redialBackoff {
			// Replica known down; skip this write rather than stall the queue.
			return nil
		}
		if err := f.connect(); err != nil {
			log.Printf("replication: replica %s unreachable: %v", f.addr, err)
			return nil
		}
	}
	_, err := f.conn.Write(raw)
	return err
}

// connect dials the replica and performs the peer handshake, after which
// the replica accepts mutations on this connection. Replies after the
// handshake are drained and discarded in the background; the primary
// never waits on a replica's acknowledgement.
func (f *forwarder) connect() error {
	f.lastAttempt = time.Now()

	conn, err := f.dial(f.addr)
	if err != nil {
		return err
	}

	hello := &resp.Command{Name: "peer", Args: []string{f.selfAddr}}
	if _, err := conn.Write(hello.Encode()); err != nil {
		conn.Close()
		return err
	}

	br := bufio.NewReader(conn)
	conn.SetReadDeadline(time.Now().Add(dialTimeout))
	line, err := br.ReadString('\n')
	if err != nil || len(line) == 0 || line[0] != '+' {
		conn.Close()
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return err
	}
	conn.SetReadDeadline(time.Time{})

	go io.Copy(io.Discard, br)

	f.conn = conn
	log.Printf("replication: connected to replica %s", f.addr)
	return nil
}

func (f *forwarder) dropConn() {
	if f.conn != nil {
		f.conn.Close()
		f.conn = nil
	}
}
