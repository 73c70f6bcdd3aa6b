package store

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LRUStore is a bounded alternative backend: once size entries are held,
// inserting a new key evicts the least recently used one. Useful on peers
// that would rather drop cold keys than grow without bound; eviction is a
// local policy decision and never changes which peer is responsible for a
// key (that is governed by ring state alone).
type LRUStore struct {
	mu    sync.Mutex
	cache *lru.Cache[string, []byte]
}

// NewLRU creates an LRUStore holding at most size entries.
func NewLRU(size int) (*LRUStore, error) {
	c, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, err
	}
	return &LRUStore{cache: c}, nil
}

func (s *LRUStore) Get(key []byte) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.cache.Get(string(key))
	if !ok {
		return nil, false
	}
	return append([]byte(nil), v...), true
}

func (s *LRUStore) Set(key, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Add(string(key), append([]byte(nil), value...))
}

func (s *LRUStore) Delete(key []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Remove(string(key))
}

func (s *LRUStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Len()
}
