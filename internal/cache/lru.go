package cache

import (
	"container/list"
	"sync"
	"time"
)

// LocalLRU is a simple in-process LRU with TTL.
// A zero ttl passed to Set keeps the entry until it is evicted by capacity.
type LocalLRU[K comparable, V any] struct {
	mu   sync.Mutex
	cap  int
	list *list.List          // front = most recent
	m    map[K]*list.Element // key -> element
	now  func() time.Time
}

type lruEntry[K comparable, V any] struct {
	key K
	val V
	exp time.Time
}

func NewLocalLRU[K comparable, V any](capacity int) *LocalLRU[K, V] {
	if capacity <= 0 {
		capacity = 1024
	}
	return &LocalLRU[K, V]{
		cap:  capacity,
		list: list.New(),
		m:    make(map[K]*list.Element, capacity),
		now:  time.Now,
	}
}

func (l *LocalLRU[K, V]) Get(key K) (V, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if el, ok := l.m[key]; ok {
		ent := el.Value.(lruEntry[K, V])
		if ent.exp.IsZero() || ent.exp.After(l.now()) {
			l.list.MoveToFront(el)
			return ent.val, true
		}
		// expired: remove
		l.list.Remove(el)
		delete(l.m, key)
	}
	var zero V
	return zero, false
}

func (l *LocalLRU[K, V]) Set(key K, v V, ttl time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var exp time.Time
	if ttl > 0 {
		exp = l.now().Add(ttl)
	}
	if el, ok := l.m[key]; ok {
		el.Value = lruEntry[K, V]{key: key, val: v, exp: exp}
		l.list.MoveToFront(el)
		return
	}
	el := l.list.PushFront(lruEntry[K, V]{key: key, val: v, exp: exp})
	l.m[key] = el
	if l.list.Len() > l.cap {
		lru := l.list.Back()
		if lru != nil {
			ent := lru.Value.(lruEntry[K, V])
			delete(l.m, ent.key)
			l.list.Remove(lru)
		}
	}
}

// Delete removes key if present.
func (l *LocalLRU[K, V]) Delete(key K) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if el, ok := l.m[key]; ok {
		l.list.Remove(el)
		delete(l.m, key)
	}
}

// Len returns the number of entries, including ones that expired but were not yet touched.
func (l *LocalLRU[K, V]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.list.Len()
}
