package store

import (
	"errors"
	"sync"
	"time"
)

// ErrKeyNotFound is returned when a key doesn't exist (or has expired).
var ErrKeyNotFound = errors.New("key not found")

// ErrWrongType is returned when a command addresses a key holding an
// incompatible value shape. The stored value is left untouched.
var ErrWrongType = errors.New("wrong value type")

// ErrIndexOutOfRange is returned by list operations addressing an index
// outside the current list bounds.
var ErrIndexOutOfRange = errors.New("index out of range")

// ValueKind identifies the active variant of a stored value.
type ValueKind int

const (
	// KindString holds a single string value.
	KindString ValueKind = iota
	// KindList holds an ordered list of strings.
	KindList
	// KindHash holds a field → value map.
	KindHash
	// KindSet holds an unordered set of unique members.
	KindSet
)

// String returns the TYPE-command name for the kind.
func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindHash:
		return "hash"
	case KindSet:
		return "set"
	}
	return "none"
}

// entry is one key's stored state. Exactly one of the payload fields is
// populated, selected by kind. Entries never escape the store's lock.
type entry struct {
	kind     ValueKind
	str      string
	list     []string
	hash     map[string]string
	set      map[string]struct{}
	expireAt time.Time // zero means no expiry
}

func (e *entry) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && now.After(e.expireAt)
}

// Store is the node-local key-value engine. All methods are safe for
// concurrent use; mutations are atomic with respect to each other.
type Store struct {
	mu   sync.RWMutex
	data map[string]*entry

	// now is replaceable in tests to exercise expiry deterministically.
	now func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		data: make(map[string]*entry),
		now:  time.Now,
	}
}

// live returns the entry for key if present and not expired, removing it
// when the deadline has passed. Caller must hold the write lock.
func (s *Store) live(key string) (*entry, bool) {
	e, ok := s.data[key]
	if !ok {
		return nil, false
	}
	if e.expired(s.now()) {
		delete(s.data, key)
		return nil, false
	}
	return e, true
}

// reap removes key if its entry is past expiry. Used by read paths that
// observed a dead entry under the read lock.
func (s *Store) reap(key string) {
	s.mu.Lock()
	if e, ok := s.data[key]; ok && e.expired(s.now()) {
		delete(s.data, key)
	}
	s.mu.Unlock()
}

// Del removes the given keys, returning how many existed.
func (s *Store) Del(keys ...string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, key := range keys {
		if _, ok := s.live(key); ok {
			delete(s.data, key)
			removed++
		}
	}
	return removed
}

// Exists returns how many of the given keys currently exist.
func (s *Store) Exists(keys ...string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := 0
	for _, key := range keys {
		if _, ok := s.live(key); ok {
			found++
		}
	}
	return found
}

// Type returns the TYPE-command name for key's value, or "none" if the key
// is absent.
func (s *Store) Type(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(key)
	if !ok {
		return "none"
	}
	return e.kind.String()
}

// Expire sets key's expiry deadline ttl from now. Returns false if the key
// doesn't exist.
func (s *Store) Expire(key string, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(key)
	if !ok {
		return false
	}
	e.expireAt = s.now().Add(ttl)
	return true
}

// TTL reports key's remaining time to live in seconds: -2 if the key is
// absent, -1 if it has no expiry, otherwise the rounded-up remainder.
func (s *Store) TTL(key string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(key)
	if !ok {
		return -2
	}
	if e.expireAt.IsZero() {
		return -1
	}
	remaining := e.expireAt.Sub(s.now())
	secs := int64((remaining + time.Second - 1) / time.Second)
	if secs < 0 {
		secs = 0
	}
	return secs
}

// Len returns the number of live keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	now := s.now()
	for _, e := range s.data {
		if !e.expired(now) {
			n++
		}
	}
	return n
}

// Keys returns all live keys in no particular order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.data))
	now := s.now()
	for key, e := range s.data {
		if !e.expired(now) {
			keys = append(keys, key)
		}
	}
	return keys
}
