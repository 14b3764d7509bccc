package authstate

import "sync"

// EventType identifies what changed in the platform session.
type EventType string

const (
	// EventSignedIn fires on a completed password or signup sign in. It is
	// the only event that triggers user-record bootstrap.
	EventSignedIn EventType = "signed_in"
	// EventTokenRefreshed fires when the platform rotates the access token
	EventTokenRefreshed EventType = "token_refreshed"
	// EventSignedOut fires when the session is destroyed
	EventSignedOut EventType = "signed_out"
)

// SessionEvent is a single session-change notification. Session is nil for
// EventSignedOut.
type SessionEvent struct {
	Type    EventType
	Session *SessionObject
}

// Subscription is a handle on a session-change channel. Exactly one consumer
// owns it for one lifetime scope: acquire, range over C, Unsubscribe.
type Subscription struct {
	C    <-chan SessionEvent
	ch   chan SessionEvent
	done chan struct{}
	once sync.Once
}

func newSubscription(buffer int) *Subscription {
	ch := make(chan SessionEvent, buffer)
	return &Subscription{
		C:    ch,
		ch:   ch,
		done: make(chan struct{}),
	}
}

// Unsubscribe releases the subscription. Events published afterwards are
// discarded; pending buffered events are left undelivered.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		close(s.done)
	})
}

// Done is closed once the subscription is released.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// deliver never blocks: when the buffer is full the oldest event is dropped
// to make room, so a consumer that stops draining cannot wedge publishers.
// The consumer still always observes the most recent event.
func (s *Subscription) deliver(ev SessionEvent) {
	for {
		select {
		case <-s.done:
			return
		case s.ch <- ev:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

// Broadcaster fans session events out to subscribers in publish order. It is
// the notification channel SessionStore implementations hand to Subscribe.
type Broadcaster struct {
	mu     sync.Mutex
	subs   []*Subscription
	buffer int
	closed bool
}

// NewBroadcaster creates a Broadcaster whose subscriptions buffer the given
// number of events; buffer <= 0 uses a small default.
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = 16
	}
	return &Broadcaster{buffer: buffer}
}

// Subscribe registers a new listener. Subscriptions created after Close are
// already released.
func (b *Broadcaster) Subscribe() *Subscription {
	sub := newSubscription(b.buffer)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		sub.Unsubscribe()
		return sub
	}

	b.subs = append(b.subs, sub)
	return sub
}

// Publish delivers the event to every live subscription, pruning released
// ones. Delivery order matches publish order per subscription; a subscription
// whose buffer is full loses its oldest undelivered event instead of
// blocking the publisher.
func (b *Broadcaster) Publish(ev SessionEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	live := b.subs[:0]
	for _, sub := range b.subs {
		select {
		case <-sub.done:
			continue
		default:
		}
		sub.deliver(ev)
		live = append(live, sub)
	}
	b.subs = live
}

// Close releases every subscription and rejects future publishes.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, sub := range b.subs {
		sub.Unsubscribe()
	}
	b.subs = nil
}
