// Package cache provides a bounded, mutex-guarded key/value store with a
// configurable eviction policy.
package cache

import (
	"fmt"
	"sync"

	"github.com/golang/groupcache/lru"
)

// Policy selects which entry is evicted when the cache is full.
type Policy string

const (
	// PolicyFIFO evicts the oldest-inserted entry. Reads do not refresh entries.
	PolicyFIFO Policy = "fifo"
	// PolicyLRU evicts the least recently used entry.
	PolicyLRU Policy = "lru"
)

// Options configures a Cache.
type Options[K comparable] struct {
	Capacity int
	Policy   Policy   // defaults to PolicyFIFO
	OnEvict  func(K) // called with the mutex held; must not call back into the cache
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Size      int
	Capacity  int
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// store is the policy-specific storage behind a Cache. Implementations are
// not safe for concurrent use; Cache serializes access.
type store[K comparable, V any] interface {
	get(key K) (V, bool)
	put(key K, value V) (evicted K, ok bool)
	len() int
	keys() []K
}

// Cache is a bounded map safe for concurrent use.
type Cache[K comparable, V any] struct {
	mu        sync.Mutex
	store     store[K, V]
	capacity  int
	onEvict   func(K)
	hits      uint64
	misses    uint64
	evictions uint64
}

// New creates a cache with the given options.
func New[K comparable, V any](opts Options[K]) (*Cache[K, V], error) {
	if opts.Capacity < 1 {
		return nil, fmt.Errorf("cache capacity must be at least 1, got %d", opts.Capacity)
	}

	var s store[K, V]
	switch opts.Policy {
	case PolicyFIFO, "":
		s = newFIFOStore[K, V](opts.Capacity)
	case PolicyLRU:
		s = newLRUStore[K, V](opts.Capacity)
	default:
		return nil, fmt.Errorf("unknown eviction policy %q", opts.Policy)
	}

	return &Cache[K, V]{
		store:    s,
		capacity: opts.Capacity,
		onEvict:  opts.OnEvict,
	}, nil
}

// Get returns the value stored under key.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.store.get(key)
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return v, ok
}

// Put stores value under key, evicting an entry if the cache is full.
// Replacing an existing key keeps its position in the eviction order.
func (c *Cache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if evicted, ok := c.store.put(key, value); ok {
		c.evictions++
		if c.onEvict != nil {
			c.onEvict(evicted)
		}
	}
}

// GetOrCompute returns the cached value for key or computes and stores it.
// compute runs without the lock held, so concurrent misses for the same key
// may compute twice; the last writer wins. Errors are not cached.
func (c *Cache[K, V]) GetOrCompute(key K, compute func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	v, err := compute()
	if err != nil {
		var zero V
		return zero, err
	}
	c.Put(key, v)
	return v, nil
}

// Len returns the number of stored entries.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.len()
}

// Keys returns the stored keys. For FIFO the order is oldest-inserted first;
// for LRU the order is unspecified.
func (c *Cache[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.keys()
}

// Stats returns a snapshot of the cache counters.
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Size:      c.store.len(),
		Capacity:  c.capacity,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

// fifoStore is a bounded map plus an insertion-order index.
type fifoStore[K comparable, V any] struct {
	capacity int
	entries  map[K]V
	order    []K
}

func newFIFOStore[K comparable, V any](capacity int) *fifoStore[K, V] {
	return &fifoStore[K, V]{
		capacity: capacity,
		entries:  make(map[K]V, capacity),
		order:    make([]K, 0, capacity),
	}
}

func (s *fifoStore[K, V]) get(key K) (V, bool) {
	v, ok := s.entries[key]
	return v, ok
}

func (s *fifoStore[K, V]) put(key K, value V) (K, bool) {
	var evicted K
	if _, exists := s.entries[key]; exists {
		s.entries[key] = value
		return evicted, false
	}

	evictedOK := false
	if len(s.order) >= s.capacity {
		evicted = s.order[0]
		delete(s.entries, evicted)
		copy(s.order, s.order[1:])
		s.order = s.order[:len(s.order)-1]
		evictedOK = true
	}

	s.entries[key] = value
	s.order = append(s.order, key)
	return evicted, evictedOK
}

func (s *fifoStore[K, V]) len() int {
	return len(s.entries)
}

func (s *fifoStore[K, V]) keys() []K {
	out := make([]K, len(s.order))
	copy(out, s.order)
	return out
}

// lruStore adapts groupcache's LRU list. groupcache does not expose its keys,
// so a side set tracks membership.
type lruStore[K comparable, V any] struct {
	lru     *lru.Cache
	members map[K]struct{}
	evicted []K
}

func newLRUStore[K comparable, V any](capacity int) *lruStore[K, V] {
	s := &lruStore[K, V]{
		lru:     lru.New(capacity),
		members: make(map[K]struct{}, capacity),
	}
	s.lru.OnEvicted = func(key lru.Key, _ any) {
		k := key.(K)
		delete(s.members, k)
		s.evicted = append(s.evicted, k)
	}
	return s
}

func (s *lruStore[K, V]) get(key K) (V, bool) {
	v, ok := s.lru.Get(key)
	if !ok {
		var zero V
		return zero, false
	}
	return v.(V), true
}

func (s *lruStore[K, V]) put(key K, value V) (K, bool) {
	s.evicted = s.evicted[:0]
	s.lru.Add(key, value)
	s.members[key] = struct{}{}

	var evicted K
	if len(s.evicted) == 0 {
		return evicted, false
	}
	return s.evicted[0], true
}

func (s *lruStore[K, V]) len() int {
	return s.lru.Len()
}

func (s *lruStore[K, V]) keys() []K {
	out := make([]K, 0, len(s.members))
	for k := range s.members {
		out = append(out, k)
	}
	return out
}
