// Package dedup provides a fixed-capacity set with oldest-first eviction.
package dedup

// FIFOSet remembers up to capacity keys. Adding a key to a full set evicts the
// oldest insertion. Re-adding a present key does not refresh its age, so the
// eviction order is approximate LRU at best. Not safe for concurrent use.
type FIFOSet[K comparable] struct {
	ring  []K
	index map[K]struct{}
	head  int
	size  int
}

// NewFIFOSet creates a set holding at most capacity keys (minimum 1).
func NewFIFOSet[K comparable](capacity int) *FIFOSet[K] {
	if capacity < 1 {
		capacity = 1
	}
	return &FIFOSet[K]{
		ring:  make([]K, capacity),
		index: make(map[K]struct{}, capacity),
	}
}

// Contains reports whether key is in the set.
func (s *FIFOSet[K]) Contains(key K) bool {
	_, ok := s.index[key]
	return ok
}

// Add inserts key and reports whether it was newly added.
func (s *FIFOSet[K]) Add(key K) bool {
	if s.Contains(key) {
		return false
	}
	if s.size == len(s.ring) {
		oldest := s.ring[s.head]
		delete(s.index, oldest)
		s.size--
		s.head = (s.head + 1) % len(s.ring)
	}
	tail := (s.head + s.size) % len(s.ring)
	s.ring[tail] = key
	s.index[key] = struct{}{}
	s.size++
	return true
}

// Len returns the number of keys held.
func (s *FIFOSet[K]) Len() int { return s.size }

// Cap returns the capacity.
func (s *FIFOSet[K]) Cap() int { return len(s.ring) }

// Clear removes every key.
func (s *FIFOSet[K]) Clear() {
	var zero K
	for i := range s.ring {
		s.ring[i] = zero
	}
	s.index = make(map[K]struct{}, len(s.ring))
	s.head = 0
	s.size = 0
}
