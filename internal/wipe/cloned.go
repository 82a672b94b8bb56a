package wipe

import (
	"sort"
	"sync"
)

// ClonedSet records drives cloned successfully in this session.
type ClonedSet struct {
	mu  sync.Mutex
	ids map[int]struct{}
}

func NewClonedSet() *ClonedSet {
	return &ClonedSet{ids: make(map[int]struct{})}
}

func (s *ClonedSet) Add(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids[id] = struct{}{}
}

func (s *ClonedSet) Contains(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

func (s *ClonedSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

// Drain returns the members in ascending order and empties the set.
func (s *ClonedSet) Drain() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Ints(out)
	s.ids = make(map[int]struct{})
	return out
}
