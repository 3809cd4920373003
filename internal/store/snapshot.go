package store

import (
	"time"

	"golang.org/x/exp/slices"
)

// Entry is one key's point-in-time state as exposed to the persistence
// layer. Exactly one payload field is populated, selected by Kind; all
// payloads are deep copies, so a snapshot never aliases live store state.
type Entry struct {
	Key      string
	Kind     ValueKind
	Str      string
	List     []string
	Hash     map[string]string
	Set      []string
	ExpireAt time.Time // zero means no expiry
}

// SnapshotView returns a consistent copy of every live entry, sorted by
// key. The read lock is held only for the duration of the copy, so
// concurrent commands are not blocked while the snapshot is serialized.
func (s *Store) SnapshotView() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	view := make([]Entry, 0, len(s.data))
	for key, e := range s.data {
		if e.expired(now) {
			continue
		}
		view = append(view, copyEntry(key, e))
	}

	slices.SortFunc(view, func(a, b Entry) int {
		if a.Key < b.Key {
			return -1
		}
		if a.Key > b.Key {
			return 1
		}
		return 0
	})
	return view
}

// Restore replaces the store's contents with the given entries, dropping
// any that have already expired. Called once at startup before the node
// accepts connections.
func (s *Store) Restore(entries []Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = make(map[string]*entry, len(entries))
	now := s.now()
	for _, in := range entries {
		e := &entry{kind: in.Kind, expireAt: in.ExpireAt}
		if e.expired(now) {
			continue
		}
		switch in.Kind {
		case KindString:
			e.str = in.Str
		case KindList:
			e.list = append([]string(nil), in.List...)
		case KindHash:
			e.hash = make(map[string]string, len(in.Hash))
			for f, v := range in.Hash {
				e.hash[f] = v
			}
		case KindSet:
			e.set = make(map[string]struct{}, len(in.Set))
			for _, m := range in.Set {
				e.set[m] = struct{}{}
			}
		default:
			continue
		}
		s.data[in.Key] = e
	}
}

func copyEntry(key string, e *entry) Entry {
	out := Entry{Key: key, Kind: e.kind, ExpireAt: e.expireAt}
	switch e.kind {
	case KindString:
		out.Str = e.str
	case KindList:
		out.List = append([]string(nil), e.list...)
	case KindHash:
		out.Hash = make(map[string]string, len(e.hash))
		for f, v := range e.hash {
			out.Hash[f] = v
		}
	case KindSet:
		out.Set = make([]string, 0, len(e.set))
		for m := range e.set {
			out.Set = append(out.Set, m)
		}
		slices.Sort(out.Set)
	}
	return out
}
