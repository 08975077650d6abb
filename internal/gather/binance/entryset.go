package binance

import "sync"

// entrySet records extracted entries that have already been handed to the
// parser. It is the only mutable state shared between tasks.
type entrySet struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func newEntrySet() *entrySet {
	return &entrySet{seen: make(map[string]struct{})}
}

// Claim atomically marks id as processed. It returns false if id was
// already claimed.
func (s *entrySet) Claim(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[id]; ok {
		return false
	}
	s.seen[id] = struct{}{}
	return true
}

// Len returns the number of claimed entries.
func (s *entrySet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}
