package cache

import (
	"container/list"
	"sync"
	"time"
)

const (
	DefaultCapacity = 1000
	DefaultTTL      = 5 * time.Minute
)

// entry is one cached value with its expiry metadata.
type entry struct {
	key       string
	value     []byte
	createdAt time.Time
}

// Stats counts cache effectiveness since creation or the last Purge.
type Stats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	Size      int    `json:"size"`
	Capacity  int    `json:"capacity"`
}

// HitRate returns the fraction of lookups answered from the cache.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Memory is an LRU cache with a fixed capacity and a single TTL for all
// entries. A full cache evicts the least recently used entry; expired entries
// die lazily on lookup or eagerly via CleanupExpired.
type Memory struct {
	mu    sync.Mutex
	cap   int
	ttl   time.Duration
	ll    *list.List // front = most recently used
	items map[string]*list.Element

	hits      uint64
	misses    uint64
	evictions uint64
}

// NewMemory creates an empty cache. Non-positive capacity or TTL fall back to
// the defaults.
func NewMemory(capacity int, ttl time.Duration) *Memory {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{
		cap:   capacity,
		ttl:   ttl,
		ll:    list.New(),
		items: make(map[string]*list.Element),
	}
}

// Get returns the cached value and refreshes its recency. An expired entry is
// removed and reported as a miss.
func (m *Memory) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.items[key]
	if !ok {
		m.misses++
		return nil, false
	}

	e := el.Value.(*entry)
	if time.Since(e.createdAt) > m.ttl {
		m.removeLocked(el)
		m.evictions++
		m.misses++
		return nil, false
	}

	m.ll.MoveToFront(el)
	m.hits++
	return e.value, true
}

// Put stores a value, replacing any previous entry for the key. When the
// cache is full the least recently used entry is evicted.
func (m *Memory) Put(key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.items[key]; ok {
		e := el.Value.(*entry)
		e.value = value
		e.createdAt = time.Now()
		m.ll.MoveToFront(el)
		return
	}

	if m.ll.Len() >= m.cap {
		if oldest := m.ll.Back(); oldest != nil {
			m.removeLocked(oldest)
			m.evictions++
		}
	}

	el := m.ll.PushFront(&entry{key: key, value: value, createdAt: time.Now()})
	m.items[key] = el
}

// Remove drops one entry; it reports whether the key was present.
func (m *Memory) Remove(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.items[key]
	if !ok {
		return false
	}
	m.removeLocked(el)
	return true
}

// CleanupExpired removes every entry older than the TTL and returns how many
// were dropped.
func (m *Memory) CleanupExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for el := m.ll.Back(); el != nil; {
		prev := el.Prev()
		if time.Since(el.Value.(*entry).createdAt) > m.ttl {
			m.removeLocked(el)
			m.evictions++
			removed++
		}
		el = prev
	}
	return removed
}

// Purge empties the cache and resets the counters.
func (m *Memory) Purge() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ll.Init()
	m.items = make(map[string]*list.Element)
	m.hits, m.misses, m.evictions = 0, 0, 0
}

// Stats returns a snapshot of the counters.
func (m *Memory) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		Hits:      m.hits,
		Misses:    m.misses,
		Evictions: m.evictions,
		Size:      m.ll.Len(),
		Capacity:  m.cap,
	}
}

// removeLocked unlinks one element. Call with m.mu held.
func (m *Memory) removeLocked(el *list.Element) {
	m.ll.Remove(el)
	delete(m.items, el.Value.(*entry).key)
}
