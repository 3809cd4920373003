package persistence

import (
	"context"
	"log"
	"time"
)

// Run snapshots the store on every tick of interval until ctx is
// cancelled, then takes one final snapshot for graceful shutdown. A failed
// periodic save is logged and retried next tick; the previous snapshot
// file stays valid thanks to the atomic replace.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := m.Save(); err != nil {
				log.Printf("snapshot save failed: %v", err)
			}
		case <-ctx.Done():
			if err := m.Save(); err != nil {
				log.Printf("final snapshot failed: %v", err)
			}
			return
		}
	}
}
