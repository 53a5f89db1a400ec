package oscdispatch

import "sync"

// idSpace hands out monotonically increasing integer ids and recycles them
// on free (spec.md §4.5: "a free-list of node ids; on note-on it allocates,
// on note-off it schedules the node to release"; §5 "Synth-node-id space:
// owned by the OSC dispatcher; allocation is monotonic, freed only on
// note-off or explicit stop").
type idSpace struct {
	mu      sync.Mutex
	next    int64
	free    []int64
	nameIDs map[string]int64
}

func newIDSpace(start int64) *idSpace {
	return &idSpace{next: start, nameIDs: map[string]int64{}}
}

// alloc returns a fresh numeric id, reusing one from the free-list when
// available so long-running sessions do not exhaust the id space.
func (s *idSpace) alloc() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.free); n > 0 {
		id := s.free[n-1]
		s.free = s.free[:n-1]
		return id
	}
	id := s.next
	s.next++
	return id
}

func (s *idSpace) free_(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.free = append(s.free, id)
}

// bind associates a name (group path, effect id, voice+note key) with an
// allocated numeric id so a later free can look it up by name.
func (s *idSpace) bind(name string, id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nameIDs[name] = id
}

func (s *idSpace) lookup(name string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.nameIDs[name]
	return id, ok
}

func (s *idSpace) unbind(name string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.nameIDs[name]
	if ok {
		delete(s.nameIDs, name)
	}
	return id, ok
}
