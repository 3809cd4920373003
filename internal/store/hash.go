package store

// HSet stores field/value pairs in the hash at key, creating it if absent.
// Returns the number of fields newly added (overwrites don't count).
func (s *Store) HSet(key string, pairs ...string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(key)
	if !ok {
		e = &entry{kind: KindHash, hash: make(map[string]string)}
		s.data[key] = e
	}
	if e.kind != KindHash {
		return 0, ErrWrongType
	}

	added := 0
	for i := 0; i+1 < len(pairs); i += 2 {
		if _, exists := e.hash[pairs[i]]; !exists {
			added++
		}
		e.hash[pairs[i]] = pairs[i+1]
	}
	return added, nil
}

// HGet returns the value of field in the hash at key. A missing key or
// field reports ErrKeyNotFound.
func (s *Store) HGet(key, field string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(key)
	if !ok {
		return "", ErrKeyNotFound
	}
	if e.kind != KindHash {
		return "", ErrWrongType
	}
	v, exists := e.hash[field]
	if !exists {
		return "", ErrKeyNotFound
	}
	return v, nil
}

// HDel removes fields from the hash at key, returning how many existed.
// The key itself is removed once the hash empties.
func (s *Store) HDel(key string, fields ...string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(key)
	if !ok {
		return 0, nil
	}
	if e.kind != KindHash {
		return 0, ErrWrongType
	}

	removed := 0
	for _, f := range fields {
		if _, exists := e.hash[f]; exists {
			delete(e.hash, f)
			removed++
		}
	}
	if len(e.hash) == 0 {
		delete(s.data, key)
	}
	return removed, nil
}

// HGetAll returns a copy of every field/value pair in the hash at key.
// A missing key yields an empty map.
func (s *Store) HGetAll(key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(key)
	if !ok {
		return map[string]string{}, nil
	}
	if e.kind != KindHash {
		return nil, ErrWrongType
	}

	out := make(map[string]string, len(e.hash))
	for f, v := range e.hash {
		out[f] = v
	}
	return out, nil
}

// HLen returns the number of fields in the hash at key.
func (s *Store) HLen(key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(key)
	if !ok {
		return 0, nil
	}
	if e.kind != KindHash {
		return 0, ErrWrongType
	}
	return len(e.hash), nil
}
