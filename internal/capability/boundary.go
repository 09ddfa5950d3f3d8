package capability

import "sync"

// enterBlocking releases the host execution lock ahead of native calls and
// returns the func that takes it back. Callers defer the returned func, so
// every path out of the blocking region, panics included, reacquires exactly
// once. A nil lock means the host has no execution lock.
func enterBlocking(l sync.Locker) (exit func()) {
	if l == nil {
		return func() {}
	}
	l.Unlock()

	var once sync.Once
	return func() { once.Do(l.Lock) }
}
