// Package dedupe coalesces pending work keyed by string.
//
// The recompute scheduler claims a key such as "regional:cebu" before
// enqueuing a task and releases it once the task has been handled, so a burst
// of identical change notifications results in one queued recompute.
package dedupe

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
)

// Set tracks keys with outstanding work.
type Set interface {
	// Claim records key and reports whether it was newly claimed. A false
	// result means work for key is already pending.
	Claim(ctx context.Context, key string) bool

	// Release forgets key so it can be claimed again.
	Release(ctx context.Context, key string)

	Size() int64
}

// pendingSet keeps claimed keys in claim order. When bounded, the oldest
// claim is dropped to make room, which at worst lets a duplicate through.
type pendingSet struct {
	mu      sync.Mutex
	keys    map[string]*list.Element
	order   *list.List
	maxSize int
	size    atomic.Int64
}

// NewPendingSet returns an in-memory Set.
func NewPendingSet(opts ...Option) Set {
	s := &pendingSet{
		maxSize: 4096,
		keys:    make(map[string]*list.Element),
		order:   list.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *pendingSet) Claim(_ context.Context, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.keys[key]; ok {
		return false
	}
	if s.maxSize > 0 && len(s.keys) >= s.maxSize {
		s.evictOldest()
	}
	s.keys[key] = s.order.PushBack(key)
	s.size.Add(1)
	return true
}

func (s *pendingSet) Release(_ context.Context, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.keys[key]
	if !ok {
		return
	}
	s.order.Remove(el)
	delete(s.keys, key)
	s.size.Add(-1)
}

// evictOldest must be called with s.mu held.
func (s *pendingSet) evictOldest() {
	front := s.order.Front()
	if front == nil {
		return
	}
	s.order.Remove(front)
	delete(s.keys, front.Value.(string))
	s.size.Add(-1)
}

func (s *pendingSet) Size() int64 {
	return s.size.Load()
}
