package replication

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/quillstore/internal/resp"
)

// startFakeReplica listens on a loopback port, acknowledges every received
// command with +OK and reports commands in arrival order.
func startFakeReplica(t *testing.T) (string, <-chan *resp.Command) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	received := make(chan *resp.Command, 256)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				r := resp.NewReader(conn)
				w := resp.NewWriter(conn)
				for {
					cmd, err := r.ReadCommand()
					if err != nil {
						return
					}
					received <- cmd
					if err := w.Write(resp.OK); err != nil {
						return
					}
				}
			}(conn)
		}
	}()
	return ln.Addr().String(), received
}

func collect(t *testing.T, ch <-chan *resp.Command, n int) []*resp.Command {
	t.Helper()
	out := make([]*resp.Command, 0, n)
	deadline := time.After(5 * time.Second)
	for len(out) < n {
		select {
		case cmd := <-ch:
			out = append(out, cmd)
		case <-deadline:
			t.Fatalf("Timed out waiting for %d commands, got %d", n, len(out))
		}
	}
	return out
}

func TestForwardOrdering(t *testing.T) {
	addr, received := startFakeReplica(t)

	link := NewLink("127.0.0.1:7000", []string{addr})
	defer link.Close()

	for i := 0; i < 50; i++ {
		link.Forward(&resp.Command{
			Name: "set",
			Args: []string{"doc:1", fmt.Sprintf("rev-%d", i)},
		})
	}

	// Handshake first, then the 50 forwarded commands in apply order
	cmds := collect(t, received, 51)
	require.Equal(t, "peer", cmds[0].Name)
	assert.Equal(t, "127.0.0.1:7000", cmds[0].Args[0])

	for i, cmd := range cmds[1:] {
		require.Equal(t, "set", cmd.Name)
		assert.Equal(t, fmt.Sprintf("rev-%d", i), cmd.Args[1],
			"replica must observe writes in primary apply order")
	}
}

func TestForwardFanOut(t *testing.T) {
	addrA, receivedA := startFakeReplica(t)
	addrB, receivedB := startFakeReplica(t)

	link := NewLink("127.0.0.1:7000", []string{addrA, addrB})
	defer link.Close()

	link.Forward(&resp.Command{Name: "del", Args: []string{"doc:9"}})

	for _, ch := range []<-chan *resp.Command{receivedA, receivedB} {
		cmds := collect(t, ch, 2)
		assert.Equal(t, "peer", cmds[0].Name)
		assert.Equal(t, "del", cmds[1].Name)
	}
}

func TestUnreachableReplicaDoesNotBlock(t *testing.T) {
	// Nothing listens here; every dial fails
	link := NewLink("127.0.0.1:7000", []string{"127.0.0.1:1"})
	defer link.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			link.Forward(&resp.Command{Name: "set", Args: []string{"k", "v"}})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Forward blocked on an unreachable replica")
	}
}

func TestNoReplicas(t *testing.T) {
	link := NewLink("127.0.0.1:7000", nil)
	defer link.Close()

	// Forward on a replica-less shard is a no-op
	link.Forward(&resp.Command{Name: "set", Args: []string{"k", "v"}})
}
