package cluster

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
)

// Role is a node's function within its shard.
type Role string

const (
	// RolePrimary accepts client writes and feeds the replication link.
	RolePrimary Role = "primary"
	// RoleReplica applies the primary's writes and serves reads only.
	RoleReplica Role = "replica"
)

// Duration wraps time.Duration with YAML unmarshalling from the usual
// "60s" / "5m" notation.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Shard assigns a contiguous slot range to an ordered list of node
// addresses. The first address is the primary, the rest are replicas.
// Immutable after topology load.
type Shard struct {
	// SlotStart is the first slot this shard owns.
	SlotStart int `yaml:"slot_start"`

	// SlotEnd is one past the last slot this shard owns (half-open range).
	SlotEnd int `yaml:"slot_end"`

	// Primary is the host:port accepting writes for this range.
	Primary string `yaml:"primary"`

	// Replicas receive the primary's writes in apply order.
	Replicas []string `yaml:"replicas"`
}

// Owns reports whether slot falls in this shard's range.
func (s Shard) Owns(slot int) bool {
	return slot >= s.SlotStart && slot < s.SlotEnd
}

// Nodes returns every address in the shard, primary first.
func (s Shard) Nodes() []string {
	return append([]string{s.Primary}, s.Replicas...)
}

// SnapshotConfig locates the snapshot directory and cadence for nodes.
type SnapshotConfig struct {
	Dir      string   `yaml:"dir"`
	Interval Duration `yaml:"interval"`
}

// Topology is the cluster's static configuration: the full slot table plus
// node-level operational settings. Constructed once at startup, validated,
// then treated as immutable and injected into every component that routes,
// replicates or persists.
type Topology struct {
	Shards      []Shard        `yaml:"shards"`
	Snapshot    SnapshotConfig `yaml:"snapshot"`
	IdleTimeout Duration       `yaml:"idle_timeout"`
}

// LoadTopology reads and validates a topology from a YAML file.
func LoadTopology(path string) (*Topology, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read topology %s: %w", path, err)
	}

	var t Topology
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("parse topology %s: %w", path, err)
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid topology %s: %w", path, err)
	}
	t.applyDefaults()
	return &t, nil
}

func (t *Topology) applyDefaults() {
	if t.Snapshot.Dir == "" {
		t.Snapshot.Dir = "data"
	}
	if t.Snapshot.Interval <= 0 {
		t.Snapshot.Interval = Duration(60 * time.Second)
	}
	if t.IdleTimeout <= 0 {
		t.IdleTimeout = Duration(5 * time.Minute)
	}
}

// Validate checks the structural invariants: at least one shard, every
// shard has a primary and a sane range, and the ranges are disjoint and
// collectively cover [0, NumSlots).
func (t *Topology) Validate() error {
	if len(t.Shards) == 0 {
		return fmt.Errorf("no shards configured")
	}

	shards := append([]Shard(nil), t.Shards...)
	slices.SortFunc(shards, func(a, b Shard) int { return a.SlotStart - b.SlotStart })

	next := 0
	for _, s := range shards {
		if s.Primary == "" {
			return fmt.Errorf("shard [%d,%d) has no primary", s.SlotStart, s.SlotEnd)
		}
		if s.SlotStart >= s.SlotEnd || s.SlotStart < 0 || s.SlotEnd > NumSlots {
			return fmt.Errorf("shard range [%d,%d) out of bounds", s.SlotStart, s.SlotEnd)
		}
		if s.SlotStart < next {
			return fmt.Errorf("shard ranges overlap at slot %d", s.SlotStart)
		}
		if s.SlotStart > next {
			return fmt.Errorf("slots [%d,%d) are unowned", next, s.SlotStart)
		}
		next = s.SlotEnd
	}
	if next != NumSlots {
		return fmt.Errorf("slots [%d,%d) are unowned", next, NumSlots)
	}
	return nil
}

// Owner returns the shard owning slot. Validation guarantees exactly one
// shard matches any in-range slot.
func (t *Topology) Owner(slot int) (Shard, bool) {
	for _, s := range t.Shards {
		if s.Owns(slot) {
			return s, true
		}
	}
	return Shard{}, false
}

// Self is one node's view of its own place in the topology.
type Self struct {
	// Addr is this node's host:port as listed in the topology.
	Addr string

	// Shard is the slot range this node serves.
	Shard Shard

	// Role is primary or replica within that shard.
	Role Role
}

// Locate finds the node listening on port within the topology, matching on
// the port component of each configured address. Fails if no shard lists
// the port, since a node outside the topology can't serve any slots.
func (t *Topology) Locate(port int) (*Self, error) {
	want := strconv.Itoa(port)
	for _, s := range t.Shards {
		for i, addr := range s.Nodes() {
			_, p, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, fmt.Errorf("bad address %q in topology: %w", addr, err)
			}
			if p != want {
				continue
			}
			role := RolePrimary
			if i > 0 {
				role = RoleReplica
			}
			return &Self{Addr: addr, Shard: s, Role: role}, nil
		}
	}
	return nil, fmt.Errorf("port %d not present in topology", port)
}
