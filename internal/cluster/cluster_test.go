package cluster

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestSlotForKey tests determinism and distribution of the slot hash
func TestSlotForKey(t *testing.T) {
	t.Run("crc16 reference value", func(t *testing.T) {
		if got := crc16([]byte("123456789")); got != 0x31C3 {
			t.Errorf("Expected 0x31C3, got 0x%04X", got)
		}
	})

	t.Run("deterministic across calls", func(t *testing.T) {
		keys := []string{"doc:1:line:3", "doc:2", "", "a", "user:~!@#"}
		for _, key := range keys {
			first := SlotForKey(key)
			for i := 0; i < 10; i++ {
				if SlotForKey(key) != first {
					t.Fatalf("Slot for %q unstable", key)
				}
			}
			if first < 0 || first >= NumSlots {
				t.Errorf("Slot %d for %q out of range", first, key)
			}
		}
	})

	t.Run("distinct keys spread across slots", func(t *testing.T) {
		seen := map[int]bool{}
		for _, key := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
			seen[SlotForKey(key)] = true
		}
		if len(seen) < 2 {
			t.Error("Suspicious slot distribution: all keys in one slot")
		}
	})
}

func writeTopology(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cluster.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

const validTopology = `
shards:
  - slot_start: 0
    slot_end: 8192
    primary: "127.0.0.1:7000"
    replicas: ["127.0.0.1:7100"]
  - slot_start: 8192
    slot_end: 16384
    primary: "127.0.0.1:7001"
    replicas: []
snapshot:
  dir: "data"
  interval: "60s"
idle_timeout: "5m"
`

// TestLoadTopology tests YAML loading and validation
func TestLoadTopology(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		topo, err := LoadTopology(writeTopology(t, validTopology))
		if err != nil {
			t.Fatalf("LoadTopology failed: %v", err)
		}
		if len(topo.Shards) != 2 {
			t.Fatalf("Expected 2 shards, got %d", len(topo.Shards))
		}
		if topo.Snapshot.Interval.Std() != 60*time.Second {
			t.Errorf("Expected 60s interval, got %v", topo.Snapshot.Interval.Std())
		}
		if topo.IdleTimeout.Std() != 5*time.Minute {
			t.Errorf("Expected 5m idle timeout, got %v", topo.IdleTimeout.Std())
		}
	})

	t.Run("defaults applied when omitted", func(t *testing.T) {
		topo, err := LoadTopology(writeTopology(t, `
shards:
  - {slot_start: 0, slot_end: 16384, primary: "127.0.0.1:7000"}
`))
		if err != nil {
			t.Fatalf("LoadTopology failed: %v", err)
		}
		if topo.Snapshot.Dir == "" {
			t.Error("Expected default snapshot dir")
		}
		if topo.Snapshot.Interval.Std() <= 0 {
			t.Error("Expected default snapshot interval")
		}
		if topo.IdleTimeout.Std() <= 0 {
			t.Error("Expected default idle timeout")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadTopology("/nonexistent/cluster.yaml"); err == nil {
			t.Error("Expected error for missing file")
		}
	})

	t.Run("validation failures", func(t *testing.T) {
		cases := []struct {
			name string
			body string
		}{
			{"no shards", `shards: []`},
			{"gap in coverage", `
shards:
  - {slot_start: 0, slot_end: 100, primary: "127.0.0.1:7000"}
  - {slot_start: 200, slot_end: 16384, primary: "127.0.0.1:7001"}
`},
			{"overlap", `
shards:
  - {slot_start: 0, slot_end: 9000, primary: "127.0.0.1:7000"}
  - {slot_start: 8192, slot_end: 16384, primary: "127.0.0.1:7001"}
`},
			{"short of full space", `
shards:
  - {slot_start: 0, slot_end: 16000, primary: "127.0.0.1:7000"}
`},
			{"no primary", `
shards:
  - {slot_start: 0, slot_end: 16384, primary: ""}
`},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				if _, err := LoadTopology(writeTopology(t, tc.body)); err == nil {
					t.Error("Expected validation error")
				}
			})
		}
	})
}

// TestOwnerAndLocate tests slot ownership lookup and node self-location
func TestOwnerAndLocate(t *testing.T) {
	topo, err := LoadTopology(writeTopology(t, validTopology))
	if err != nil {
		t.Fatalf("LoadTopology failed: %v", err)
	}

	t.Run("owner per slot", func(t *testing.T) {
		s, ok := topo.Owner(0)
		if !ok || s.Primary != "127.0.0.1:7000" {
			t.Errorf("Slot 0 owner wrong: %+v", s)
		}
		s, ok = topo.Owner(8192)
		if !ok || s.Primary != "127.0.0.1:7001" {
			t.Errorf("Slot 8192 owner wrong: %+v", s)
		}
		if _, ok := topo.Owner(NumSlots + 1); ok {
			t.Error("Out-of-range slot should have no owner")
		}
	})

	t.Run("every slot owned exactly once", func(t *testing.T) {
		for slot := 0; slot < NumSlots; slot += 997 {
			if _, ok := topo.Owner(slot); !ok {
				t.Fatalf("Slot %d unowned", slot)
			}
		}
	})

	t.Run("locate primary", func(t *testing.T) {
		self, err := topo.Locate(7000)
		if err != nil {
			t.Fatalf("Locate failed: %v", err)
		}
		if self.Role != RolePrimary || self.Shard.SlotStart != 0 {
			t.Errorf("Unexpected self: %+v", self)
		}
	})

	t.Run("locate replica", func(t *testing.T) {
		self, err := topo.Locate(7100)
		if err != nil {
			t.Fatalf("Locate failed: %v", err)
		}
		if self.Role != RoleReplica {
			t.Errorf("Expected replica role, got %s", self.Role)
		}
	})

	t.Run("unknown port", func(t *testing.T) {
		if _, err := topo.Locate(9999); err == nil {
			t.Error("Expected error for port outside topology")
		}
	})
}
