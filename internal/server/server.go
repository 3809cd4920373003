// Package server runs a quillstore node: it accepts RESP connections,
// dispatches commands against the local store, answers redirects for slots
// it does not own, fans document changes out to subscribers and feeds the
// replication link.
package server

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"github.com/dreamware/quillstore/internal/cluster"
	"github.com/dreamware/quillstore/internal/pubsub"
	"github.com/dreamware/quillstore/internal/replication"
	"github.com/dreamware/quillstore/internal/store"
)

// Server is one node's connection handling front end. Every accepted
// connection runs its own goroutine; the store, registry and replication
// link are the shared state behind them.
type Server struct {
	store    *store.Store
	topo     *cluster.Topology
	self     *cluster.Self
	registry *pubsub.Registry

	// repl is non-nil only when this node is its shard's primary.
	repl *replication.Link

	// applyMu serializes store mutation with replication enqueue, so the
	// order replicas receive writes always matches the order their effects
	// landed in the store. Reads never take it.
	applyMu sync.Mutex

	// idleTimeout closes client connections with no traffic for this long.
	// Zero disables the idle check. Peer (replication) connections are
	// exempt; they legitimately sit idle between writes.
	idleTimeout time.Duration

	mu     sync.Mutex
	ln     net.Listener
	conns  map[*conn]struct{}
	closed bool
}

// New wires a server from its collaborators. repl may be nil (replica
// role).
func New(st *store.Store, topo *cluster.Topology, self *cluster.Self, reg *pubsub.Registry, repl *replication.Link, idleTimeout time.Duration) *Server {
	return &Server{
		store:       st,
		topo:        topo,
		self:        self,
		registry:    reg,
		repl:        repl,
		idleTimeout: idleTimeout,
		conns:       make(map[*conn]struct{}),
	}
}

// Serve accepts connections on ln until Close is called. Each connection
// is handled independently; one slow or stalled peer never blocks the
// accept loop or other connections.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("server closed")
	}
	s.ln = ln
	s.mu.Unlock()

	for {
		nc, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		c := newConn(s, nc)
		s.mu.Lock()
		s.conns[c] = struct{}{}
		s.mu.Unlock()

		go c.serve()
	}
}

// ListenAndServe binds addr and serves until Close.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ln)
}

// Close stops accepting and closes every live connection.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	ln := s.ln
	conns := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	if ln != nil {
		ln.Close()
	}
	for _, c := range conns {
		c.close()
	}
}

// removeConn drops a finished connection from the live set.
func (s *Server) removeConn(c *conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

// logf logs with the node's address tag, the way the rest of the process
// logs.
func (s *Server) logf(format string, args ...any) {
	log.Printf("node[%s] "+format, append([]any{s.self.Addr}, args...)...)
}

// isTimeout reports whether err is a read-deadline expiry.
func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// isDisconnect reports whether err is a normal peer close.
func isDisconnect(err error) bool {
	return err == io.EOF || errors.Is(err, net.ErrClosed)
}
