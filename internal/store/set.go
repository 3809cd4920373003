package store

import (
	"strings"

	"golang.org/x/exp/slices"
)

// SAdd adds members to the set at key, creating it if absent. Returns the
// number of members newly added.
func (s *Store) SAdd(key string, members ...string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(key)
	if !ok {
		e = &entry{kind: KindSet, set: make(map[string]struct{})}
		s.data[key] = e
	}
	if e.kind != KindSet {
		return 0, ErrWrongType
	}

	added := 0
	for _, m := range members {
		if _, exists := e.set[m]; !exists {
			e.set[m] = struct{}{}
			added++
		}
	}
	return added, nil
}

// SRem removes members from the set at key, returning how many were
// present. The key is removed once the set empties.
func (s *Store) SRem(key string, members ...string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(key)
	if !ok {
		return 0, nil
	}
	if e.kind != KindSet {
		return 0, ErrWrongType
	}

	removed := 0
	for _, m := range members {
		if _, exists := e.set[m]; exists {
			delete(e.set, m)
			removed++
		}
	}
	if len(e.set) == 0 {
		delete(s.data, key)
	}
	return removed, nil
}

// SCard returns the cardinality of the set at key.
func (s *Store) SCard(key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(key)
	if !ok {
		return 0, nil
	}
	if e.kind != KindSet {
		return 0, ErrWrongType
	}
	return len(e.set), nil
}

// SMembers returns all members of the set at key in sorted order. Sorting
// keeps replies deterministic for clients and tests.
func (s *Store) SMembers(key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(key)
	if !ok {
		return nil, nil
	}
	if e.kind != KindSet {
		return nil, ErrWrongType
	}

	out := make([]string, 0, len(e.set))
	for m := range e.set {
		out = append(out, m)
	}
	slices.Sort(out)
	return out, nil
}

// SScan returns the members of the set at key containing pattern as a
// substring, sorted. An empty pattern matches every member.
func (s *Store) SScan(key, pattern string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(key)
	if !ok {
		return nil, nil
	}
	if e.kind != KindSet {
		return nil, ErrWrongType
	}

	out := make([]string, 0, len(e.set))
	for m := range e.set {
		if strings.Contains(m, pattern) {
			out = append(out, m)
		}
	}
	slices.Sort(out)
	return out, nil
}

// SIsMember reports whether member is in the set at key.
func (s *Store) SIsMember(key, member string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(key)
	if !ok {
		return false, nil
	}
	if e.kind != KindSet {
		return false, ErrWrongType
	}
	_, exists := e.set[member]
	return exists, nil
}
