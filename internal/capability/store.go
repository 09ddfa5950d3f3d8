package capability

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// store maps keys to fully-built records. add is insert-if-absent: it
// returns the record that ends up stored, so racing inserts converge.
type store interface {
	get(k Key) (*Record, bool)
	add(k Key, r *Record) *Record
	len() int
	each(fn func(k Key, r *Record))
}

// --- unbounded ---

type mapStore struct {
	mu sync.RWMutex
	m  map[Key]*Record
}

func newMapStore() *mapStore {
	return &mapStore{m: make(map[Key]*Record)}
}

func (s *mapStore) get(k Key) (*Record, bool) {
	s.mu.RLock()
	r, ok := s.m[k]
	s.mu.RUnlock()
	return r, ok
}

func (s *mapStore) add(k Key, r *Record) *Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.m[k]; ok {
		return prev
	}
	s.m[k] = r
	return r
}

func (s *mapStore) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

func (s *mapStore) each(fn func(Key, *Record)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for k, r := range s.m {
		fn(k, r)
	}
}

// --- bounded ---

type lruStore struct {
	c *lru.Cache[Key, *Record]
}

func newLRUStore(size int) (*lruStore, error) {
	c, err := lru.New[Key, *Record](size)
	if err != nil {
		return nil, err
	}
	return &lruStore{c: c}, nil
}

func (s *lruStore) get(k Key) (*Record, bool) {
	return s.c.Get(k)
}

func (s *lruStore) add(k Key, r *Record) *Record {
	if prev, ok, _ := s.c.PeekOrAdd(k, r); ok {
		return prev
	}
	return r
}

func (s *lruStore) len() int {
	return s.c.Len()
}

func (s *lruStore) each(fn func(Key, *Record)) {
	for _, k := range s.c.Keys() {
		if r, ok := s.c.Peek(k); ok {
			fn(k, r)
		}
	}
}
