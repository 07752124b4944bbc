// Package geocache memoizes resolved addresses by coordinate key. Concurrent
// lookups for the same key are collapsed into a single computation, so a
// worker pool hammering one location costs one boundary query.
//
// The exactly-once guarantee holds within a process. Across processes the
// shared tier (valkey) is best-effort read-through: two processes may compute
// the same key concurrently, and both results are identical and safe to keep.
package geocache

import (
	"container/list"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/openschoolmap/georesolver/internal/core/domain"
)

// Cache is the memoization contract shared by the unbounded and the bounded
// implementations.
type Cache interface {
	// GetOrCompute returns the cached address for key, running compute at
	// most once per key across concurrent callers.
	GetOrCompute(key string, compute func() domain.ResolvedAddress) domain.ResolvedAddress
	// Len reports the number of cached entries.
	Len() int
}

var (
	_ Cache = (*Memo)(nil)
	_ Cache = (*LRU)(nil)
)

// ---------------------------------------------------------------------------
// Unbounded memo
// ---------------------------------------------------------------------------

// Memo is an unbounded memoization cache for batch runs: every distinct
// coordinate is computed once and kept for the life of the process.
type Memo struct {
	mu      sync.RWMutex
	entries map[string]domain.ResolvedAddress
	group   singleflight.Group
}

// NewMemo creates an empty memo.
func NewMemo() *Memo {
	return &Memo{entries: make(map[string]domain.ResolvedAddress)}
}

func (m *Memo) GetOrCompute(key string, compute func() domain.ResolvedAddress) domain.ResolvedAddress {
	m.mu.RLock()
	addr, ok := m.entries[key]
	m.mu.RUnlock()
	if ok {
		return addr
	}

	v, _, _ := m.group.Do(key, func() (interface{}, error) {
		// a singleflight winner may have stored the entry since the check
		m.mu.RLock()
		addr, ok := m.entries[key]
		m.mu.RUnlock()
		if ok {
			return addr, nil
		}
		addr = compute()
		m.mu.Lock()
		m.entries[key] = addr
		m.mu.Unlock()
		return addr, nil
	})
	return v.(domain.ResolvedAddress)
}

func (m *Memo) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// ---------------------------------------------------------------------------
// Bounded LRU
// ---------------------------------------------------------------------------

// LRU is a bounded cache for long-running services: once capacity is reached
// the least recently used entry is evicted.
type LRU struct {
	capacity int

	mu      sync.Mutex
	order   *list.List // front = most recently used
	entries map[string]*list.Element
	group   singleflight.Group
}

type lruEntry struct {
	key  string
	addr domain.ResolvedAddress
}

// NewLRU creates a cache holding at most capacity entries.
func NewLRU(capacity int) *LRU {
	if capacity <= 0 {
		capacity = 1
	}
	return &LRU{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
	}
}

func (l *LRU) GetOrCompute(key string, compute func() domain.ResolvedAddress) domain.ResolvedAddress {
	if addr, ok := l.get(key); ok {
		return addr
	}

	v, _, _ := l.group.Do(key, func() (interface{}, error) {
		if addr, ok := l.get(key); ok {
			return addr, nil
		}
		addr := compute()
		l.put(key, addr)
		return addr, nil
	})
	return v.(domain.ResolvedAddress)
}

func (l *LRU) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.order.Len()
}

func (l *LRU) get(key string) (domain.ResolvedAddress, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	el, ok := l.entries[key]
	if !ok {
		return domain.ResolvedAddress{}, false
	}
	l.order.MoveToFront(el)
	return el.Value.(*lruEntry).addr, true
}

func (l *LRU) put(key string, addr domain.ResolvedAddress) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if el, ok := l.entries[key]; ok {
		el.Value.(*lruEntry).addr = addr
		l.order.MoveToFront(el)
		return
	}
	l.entries[key] = l.order.PushFront(&lruEntry{key: key, addr: addr})
	if l.order.Len() > l.capacity {
		oldest := l.order.Back()
		if oldest != nil {
			l.order.Remove(oldest)
			delete(l.entries, oldest.Value.(*lruEntry).key)
		}
	}
}
