package store

import "time"

// Get returns the string value stored at key. ErrKeyNotFound marks a
// missing (or expired) key; ErrWrongType a key holding another shape.
func (s *Store) Get(key string) (string, error) {
	s.mu.RLock()
	e, ok := s.data[key]
	if ok && !e.expired(s.now()) {
		if e.kind != KindString {
			s.mu.RUnlock()
			return "", ErrWrongType
		}
		v := e.str
		s.mu.RUnlock()
		return v, nil
	}
	s.mu.RUnlock()

	if ok {
		s.reap(key)
	}
	return "", ErrKeyNotFound
}

// Set stores value at key unconditionally, overwriting any existing value
// of any shape. A ttl of zero stores the key without expiry.
func (s *Store) Set(key, value string, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := &entry{kind: KindString, str: value}
	if ttl > 0 {
		e.expireAt = s.now().Add(ttl)
	}
	s.data[key] = e
}

// Append appends value to the string at key, creating it if absent, and
// returns the resulting length.
func (s *Store) Append(key, value string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(key)
	if !ok {
		e = &entry{kind: KindString}
		s.data[key] = e
	}
	if e.kind != KindString {
		return 0, ErrWrongType
	}
	e.str += value
	return len(e.str), nil
}
