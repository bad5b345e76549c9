package offline

import (
	"context"
	"net/url"
	"sort"
	"sync"
)

// MemoryStorage is a concurrency-safe in-memory Storage.
type MemoryStorage struct {
	mu sync.RWMutex

	// key: cache name
	caches map[string]*memoryCache

	// max entries per cache, oldest evicted first
	maxEntries int
}

// NewMemoryStorage creates a MemoryStorage. If maxEntries is <= 0, caches are
// unbounded.
func NewMemoryStorage(maxEntries int) *MemoryStorage {
	return &MemoryStorage{
		caches:     make(map[string]*memoryCache),
		maxEntries: maxEntries,
	}
}

func (s *MemoryStorage) Open(_ context.Context, name string) (Cache, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.caches[name]
	if !ok {
		c = &memoryCache{maxEntries: s.maxEntries}
		s.caches[name] = c
	}
	return c, nil
}

func (s *MemoryStorage) Has(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.caches[name]
	return ok, nil
}

func (s *MemoryStorage) Keys(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.caches))
	for name := range s.caches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *MemoryStorage) Delete(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.caches[name]; !ok {
		return false, nil
	}
	delete(s.caches, name)
	return true, nil
}

type memoryCache struct {
	mu         sync.RWMutex
	entries    []entry // insertion order
	maxEntries int
}

func (c *memoryCache) Match(_ context.Context, u *url.URL, opts MatchOptions) (*Response, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, e := range c.entries {
		if e.matches(u, opts) {
			return e.response(), nil
		}
	}
	return nil, ErrNotCached
}

// Put replaces any entry with the same key and enforces retention.
func (c *memoryCache) Put(_ context.Context, u *url.URL, resp *Response) error {
	e, err := newEntry(u, resp)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.entries {
		if c.entries[i].key == e.key {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			break
		}
	}
	c.entries = append(c.entries, e)

	if c.maxEntries > 0 && len(c.entries) > c.maxEntries {
		over := len(c.entries) - c.maxEntries
		c.entries = c.entries[over:]
	}
	return nil
}

func (c *memoryCache) Keys(_ context.Context) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.entries))
	for _, e := range c.entries {
		keys = append(keys, e.key)
	}
	return keys, nil
}
