// Package cluster implements the slot map that partitions the key space
// across shards, and the static topology configuration that assigns slot
// ranges to nodes.
//
// # Slot model
//
// Every key maps to exactly one of 16384 slots via a pure CRC16 hash, the
// same function on every node, so clients and the routing layer agree on
// placement without coordination. A shard owns one contiguous half-open
// slot range [Start, End); ranges are disjoint and collectively cover the
// full slot space.
//
// # Topology
//
// The topology is loaded once at startup from a YAML file and never changes
// for the life of the process: there is no live resharding or membership
// protocol. Each shard lists an ordered set of node addresses; the first is
// the primary (accepts writes), the rest are replicas. A node finds its own
// shard and role by its listening port.
//
// A command addressed to a slot outside the local shard's range is answered
// with a MOVED redirect naming the owning shard's primary; the routing
// layer follows redirects and caches the corrected mapping.
package cluster
