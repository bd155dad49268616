package draft

import (
	"maps"
	"slices"
	"sync"
)

// Subscription is the handle of one change listener. Its owner cancels it
// when the owning view goes away; a cancelled listener is never called again.
type Subscription struct {
	store *Store
	id    uint64
	once  sync.Once
}

// Subscribe registers fn to be called after every effective mutation.
// Listeners are called in subscription order.
func (s *Store) Subscribe(fn func(Change)) *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSub++
	s.subs[s.nextSub] = fn
	return &Subscription{store: s, id: s.nextSub}
}

// Cancel removes the listener. It is safe to call more than once, but not
// from inside a listener.
func (sub *Subscription) Cancel() {
	sub.once.Do(func() {
		sub.store.mu.Lock()
		delete(sub.store.subs, sub.id)
		sub.store.mu.Unlock()
	})
}

// Subscribers returns the number of active listeners
func (s *Store) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Store) sortedSubIDs() []uint64 {
	return slices.Sorted(maps.Keys(s.subs))
}
