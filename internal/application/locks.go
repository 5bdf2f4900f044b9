package application

import "sync"

// stripedLocks serializes work per user with a fixed set of mutexes. Two users
// may share a stripe; one user always maps to the same stripe.
type stripedLocks struct {
	stripes []sync.Mutex
}

func newStripedLocks(n int) *stripedLocks {
	if n <= 0 {
		n = 1
	}
	return &stripedLocks{stripes: make([]sync.Mutex, n)}
}

// lock acquires the stripe for key and returns its unlock function.
func (s *stripedLocks) lock(key int64) func() {
	m := &s.stripes[uint64(key)%uint64(len(s.stripes))]
	m.Lock()
	return m.Unlock
}
