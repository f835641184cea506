package worker

import (
	"sync"
	"time"
)

// ─── Shared Sets ────────────────────────────────────────────────────────────
// Scan cycles overlap: the timer fires regardless of how long the
// previous cycle is taking, so these sets are hit from several cycles
// at once. Insert/remove/contains are atomic under one mutex — two
// overlapping cycles can never both reserve the same job or push the
// active count past its limit.

// idSet is a bounded set of in-flight job ids.
type idSet struct {
	mu  sync.Mutex
	ids map[int64]struct{}
}

func newIDSet() *idSet {
	return &idSet{ids: make(map[int64]struct{})}
}

// TryAdd inserts id if it is absent and the set holds fewer than limit
// entries. The check and the insert happen under one lock, which is
// what keeps the concurrency cap exact across overlapping cycles.
func (s *idSet) TryAdd(id int64, limit int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.ids) >= limit {
		return false
	}
	if _, ok := s.ids[id]; ok {
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

func (s *idSet) Contains(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

func (s *idSet) Remove(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ids, id)
}

func (s *idSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

// expiringSet is the failure quarantine: job ids excluded from
// re-evaluation until a wall-clock expiry. Entries are dropped lazily
// when read — no per-entry timers. Sweep exists for memory hygiene
// only; correctness never depends on it.
type expiringSet struct {
	mu     sync.Mutex
	expiry map[int64]time.Time
}

func newExpiringSet() *expiringSet {
	return &expiringSet{expiry: make(map[int64]time.Time)}
}

// Add quarantines id until expiresAt, extending any existing entry.
func (s *expiringSet) Add(id int64, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expiry[id] = expiresAt
}

// Contains reports whether id is still quarantined at now. An expired
// entry is removed on the way out.
func (s *expiringSet) Contains(id int64, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.expiry[id]
	if !ok {
		return false
	}
	if !now.Before(exp) {
		delete(s.expiry, id)
		return false
	}
	return true
}

// Sweep removes every expired entry.
func (s *expiringSet) Sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, exp := range s.expiry {
		if !now.Before(exp) {
			delete(s.expiry, id)
		}
	}
}

func (s *expiringSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.expiry)
}
