// Package main implements quillstored, a single node of the Quillstore
// cluster. Each node serves the RESP wire protocol on its configured port,
// owns one shard's slot range, snapshots its keyspace to disk, and (when
// primary) streams applied writes to its replicas.
//
// Architecture:
//
//	┌─────────────────────────────────────────┐
//	│             quillstored                 │
//	├─────────────────────────────────────────┤
//	│  RESP over TCP:                         │
//	│    GET/SET/DEL/...  - Keyspace ops      │
//	│    SUBSCRIBE/PUBLISH - Change feeds     │
//	│    PEER             - Replication link  │
//	├─────────────────────────────────────────┤
//	│  Components:                            │
//	│    store.Store       - Typed keyspace   │
//	│    cluster.Topology  - Slot routing     │
//	│    persistence.Manager - Snapshots      │
//	│    replication.Link  - Write fan-out    │
//	└─────────────────────────────────────────┘
//
// Configuration:
//   - Positional arg: port to listen on (required; selects this node's
//     role and slot range from the topology file)
//   - -config: path to the cluster topology YAML (default "cluster.yaml")
//   - QUILLSTORE_CONFIG: overrides the default topology path when the
//     -config flag is not given
//
// Example usage:
//
//	# Start the primary for slots [0, 8192)
//	./quillstored -config cluster.yaml 7000
//
//	# Talk to it
//	redis-cli -p 7000 set doc:1 "hello"
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/dreamware/quillstore/internal/cluster"
	"github.com/dreamware/quillstore/internal/persistence"
	"github.com/dreamware/quillstore/internal/pubsub"
	"github.com/dreamware/quillstore/internal/replication"
	"github.com/dreamware/quillstore/internal/server"
	"github.com/dreamware/quillstore/internal/store"
)

// logFatal is a variable to allow mocking log.Fatalf in tests.
var logFatal = log.Fatalf

func main() {
	configPath := flag.String("config", getenv("QUILLSTORE_CONFIG", "cluster.yaml"), "path to cluster topology file")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 1 {
		usage()
		os.Exit(2)
	}
	port, err := strconv.Atoi(flag.Arg(0))
	if err != nil || port < 1 || port > 65535 {
		logFatal("invalid port %q", flag.Arg(0))
	}

	topo, err := cluster.LoadTopology(*configPath)
	if err != nil {
		logFatal("load topology: %v", err)
	}
	self, err := topo.Locate(port)
	if err != nil {
		logFatal("locate self: %v", err)
	}
	log.Printf("node[%s] role=%s slots=[%d,%d)", self.Addr, self.Role, self.Shard.SlotStart, self.Shard.SlotEnd)

	st := store.New()

	// Restore the most recent snapshot, if any. A corrupt snapshot is a
	// hard error; silently starting empty would look like data loss.
	snap, err := persistence.NewManager(topo.Snapshot.Dir, self.Shard.SlotStart, self.Shard.SlotEnd, port, st)
	if err != nil {
		logFatal("snapshot dir: %v", err)
	}
	if err := snap.Load(); err != nil {
		logFatal("load snapshot: %v", err)
	}
	if n := st.Len(); n > 0 {
		log.Printf("node[%s] restored %d keys from %s", self.Addr, n, snap.Path())
	}

	// Primaries forward applied writes to their replicas. Replicas carry
	// no link; they only accept writes over an inbound peer connection.
	var repl *replication.Link
	if self.Role == cluster.RolePrimary && len(self.Shard.Replicas) > 0 {
		repl = replication.NewLink(self.Addr, self.Shard.Replicas)
	}

	srv := server.New(st, topo, self, pubsub.NewRegistry(), repl, topo.IdleTimeout.Std())

	ctx, cancel := context.WithCancel(context.Background())
	snapDone := make(chan struct{})
	go func() {
		defer close(snapDone)
		snap.Run(ctx, topo.Snapshot.Interval.Std())
	}()

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe(self.Addr)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errc:
		cancel()
		logFatal("serve: %v", err)
	case sig := <-stop:
		log.Printf("node[%s] received %s, shutting down", self.Addr, sig)
	}

	// Stop accepting, drop the replication link, then let the snapshot
	// loop take its final save before exiting.
	srv.Close()
	if repl != nil {
		repl.Close()
	}
	cancel()
	<-snapDone
	log.Printf("node[%s] stopped", self.Addr)
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s [-config cluster.yaml] <port>\n", os.Args[0])
	flag.PrintDefaults()
}

// getenv retrieves an environment variable with a default fallback value.
func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
