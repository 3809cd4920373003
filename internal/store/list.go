package store

// listEntry returns key's list entry, auto-creating an empty list when
// create is set. Caller must hold the write lock.
func (s *Store) listEntry(key string, create bool) (*entry, error) {
	e, ok := s.live(key)
	if !ok {
		if !create {
			return nil, ErrKeyNotFound
		}
		e = &entry{kind: KindList}
		s.data[key] = e
	}
	if e.kind != KindList {
		return nil, ErrWrongType
	}
	return e, nil
}

// LPush prepends values to the list at key (leftmost argument ends up at
// the head), creating the list if absent. Returns the new length.
func (s *Store) LPush(key string, values ...string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.listEntry(key, true)
	if err != nil {
		return 0, err
	}
	for _, v := range values {
		e.list = append([]string{v}, e.list...)
	}
	return len(e.list), nil
}

// RPush appends values to the list at key, creating it if absent. Returns
// the new length.
func (s *Store) RPush(key string, values ...string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.listEntry(key, true)
	if err != nil {
		return 0, err
	}
	e.list = append(e.list, values...)
	return len(e.list), nil
}

// LPop removes and returns the head of the list at key. An empty or
// missing list reports ErrKeyNotFound; the key is removed once drained.
func (s *Store) LPop(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.listEntry(key, false)
	if err != nil {
		return "", err
	}
	if len(e.list) == 0 {
		return "", ErrKeyNotFound
	}
	head := e.list[0]
	e.list = e.list[1:]
	if len(e.list) == 0 {
		delete(s.data, key)
	}
	return head, nil
}

// RPop removes and returns the tail of the list at key.
func (s *Store) RPop(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.listEntry(key, false)
	if err != nil {
		return "", err
	}
	if len(e.list) == 0 {
		return "", ErrKeyNotFound
	}
	tail := e.list[len(e.list)-1]
	e.list = e.list[:len(e.list)-1]
	if len(e.list) == 0 {
		delete(s.data, key)
	}
	return tail, nil
}

// LLen returns the length of the list at key; a missing key counts as an
// empty list.
func (s *Store) LLen(key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(key)
	if !ok {
		return 0, nil
	}
	if e.kind != KindList {
		return 0, ErrWrongType
	}
	return len(e.list), nil
}

// LRange returns the elements between start and stop inclusive, with
// negative indexes counting from the tail. Out-of-range bounds clamp to the
// list, never error.
func (s *Store) LRange(key string, start, stop int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(key)
	if !ok {
		return nil, nil
	}
	if e.kind != KindList {
		return nil, ErrWrongType
	}

	n := len(e.list)
	if start < 0 {
		start += n
		if start < 0 {
			start = 0
		}
	}
	if stop < 0 {
		stop += n
	}
	if start >= n || start > stop {
		return nil, nil
	}
	if stop >= n {
		stop = n - 1
	}

	out := make([]string, stop-start+1)
	copy(out, e.list[start:stop+1])
	return out, nil
}

// LSet overwrites the element at index in the list at key. Negative
// indexes count from the tail.
func (s *Store) LSet(key string, index int, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.listEntry(key, false)
	if err != nil {
		return err
	}
	if index < 0 {
		index += len(e.list)
	}
	if index < 0 || index >= len(e.list) {
		return ErrIndexOutOfRange
	}
	e.list[index] = value
	return nil
}

// LInsert inserts value before or after the first occurrence of pivot in
// the list at key. Returns the new length, or -1 when pivot is not found.
func (s *Store) LInsert(key string, before bool, pivot, value string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(key)
	if !ok {
		return 0, nil
	}
	if e.kind != KindList {
		return 0, ErrWrongType
	}

	for i, elem := range e.list {
		if elem != pivot {
			continue
		}
		at := i
		if !before {
			at = i + 1
		}
		e.list = append(e.list[:at], append([]string{value}, e.list[at:]...)...)
		return len(e.list), nil
	}
	return -1, nil
}
