package hub

import (
	"sync"
	"sync/atomic"
)

// subscriptionBuffer is the channel capacity per subscriber. A subscriber
// that falls further behind loses events rather than stalling the read
// loop.
const subscriptionBuffer = 16

// Subscription is a typed stream of state changes for one entity. Obtain
// one with Client.Subscribe and release it with Client.Unsubscribe; the
// channel is closed on unsubscribe and on client close.
type Subscription struct {
	entityID string
	ch       chan StateChange
	closed   bool // guarded by the owning registry's mutex
}

// Events returns the subscription's channel. It is closed when the
// subscription is removed.
func (s *Subscription) Events() <-chan StateChange {
	return s.ch
}

// EntityID returns the entity this subscription watches.
func (s *Subscription) EntityID() string {
	return s.entityID
}

// subscriptionRegistry tracks active subscriptions per entity and fans
// events out to them.
type subscriptionRegistry struct {
	mu      sync.Mutex
	byID    map[string][]*Subscription
	dropped atomic.Uint64
}

func newSubscriptionRegistry() *subscriptionRegistry {
	return &subscriptionRegistry{
		byID: make(map[string][]*Subscription),
	}
}

func (r *subscriptionRegistry) add(entityID string) *Subscription {
	sub := &Subscription{
		entityID: entityID,
		ch:       make(chan StateChange, subscriptionBuffer),
	}
	r.mu.Lock()
	r.byID[entityID] = append(r.byID[entityID], sub)
	r.mu.Unlock()
	return sub
}

func (r *subscriptionRegistry) remove(sub *Subscription) error {
	if sub == nil {
		return ErrSubscriptionClosed
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if sub.closed {
		return ErrSubscriptionClosed
	}

	subs := r.byID[sub.entityID]
	for i, s := range subs {
		if s == sub {
			r.byID[sub.entityID] = append(subs[:i], subs[i+1:]...)
			if len(r.byID[sub.entityID]) == 0 {
				delete(r.byID, sub.entityID)
			}
			sub.closed = true
			close(sub.ch)
			return nil
		}
	}
	return ErrSubscriptionClosed
}

// dispatch delivers a change to every subscription for its entity. Sends
// are non-blocking; a full channel counts a drop. Holding the mutex across
// the sends is safe because they cannot block.
func (r *subscriptionRegistry) dispatch(change StateChange) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, sub := range r.byID[change.EntityID] {
		select {
		case sub.ch <- change:
		default:
			r.dropped.Add(1)
		}
	}
}

// closeAll removes every subscription, closing their channels.
func (r *subscriptionRegistry) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, subs := range r.byID {
		for _, sub := range subs {
			sub.closed = true
			close(sub.ch)
		}
		delete(r.byID, id)
	}
}

// count returns the number of active subscriptions.
func (r *subscriptionRegistry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, subs := range r.byID {
		n += len(subs)
	}
	return n
}
