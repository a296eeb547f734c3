// Package pubsub provides an ordered fan-out broadcaster on top of the
// go-ethereum event feed.
package pubsub

import (
	"sync"

	"github.com/ethereum/go-ethereum/event"
)

// inboxSize bounds how far a subscriber's pump may lag behind a Send before
// the feed waits on it. The pump drains the inbox into an unbounded queue.
const inboxSize = 16

// Broadcaster delivers every published value to all current subscribers, in
// publish order. Publish never waits on a slow subscriber and never drops:
// each subscriber has its own queue drained by a dedicated goroutine.
type Broadcaster[T any] struct {
	feed  event.FeedOf[T]
	scope event.SubscriptionScope
}

// New returns an empty broadcaster.
func New[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{}
}

// Subscription is a handle on one subscriber.
type Subscription[T any] struct {
	C <-chan T

	sub  event.Subscription
	once sync.Once
}

// Cancel detaches the subscription and closes C. Values still queued are
// discarded. Safe to call more than once.
func (s *Subscription[T]) Cancel() {
	s.once.Do(func() {
		if s.sub != nil {
			s.sub.Unsubscribe()
		}
	})
}

// Subscribe registers a new subscriber. Values published before the call are
// not delivered. Subscribing to a closed broadcaster yields a closed C.
func (b *Broadcaster[T]) Subscribe() *Subscription[T] {
	inbox := make(chan T, inboxSize)
	out := make(chan T)

	sub := b.scope.Track(b.feed.Subscribe(inbox))
	if sub == nil {
		close(out)
		return &Subscription[T]{C: out}
	}

	go pump(inbox, out, sub.Err())
	return &Subscription[T]{C: out, sub: sub}
}

// Publish hands v to every subscriber's pump.
func (b *Broadcaster[T]) Publish(v T) {
	b.feed.Send(v)
}

// Close cancels all subscriptions. Later subscriptions are closed immediately.
func (b *Broadcaster[T]) Close() {
	b.scope.Close()
}

// Len returns the number of active subscribers.
func (b *Broadcaster[T]) Len() int {
	return b.scope.Count()
}

// pump moves values from the feed inbox to out until the subscription ends.
func pump[T any](inbox <-chan T, out chan<- T, done <-chan error) {
	defer close(out)

	var queue []T
	for {
		var (
			send chan<- T
			next T
		)
		if len(queue) > 0 {
			send, next = out, queue[0]
		}

		select {
		case v := <-inbox:
			queue = append(queue, v)
		case send <- next:
			var zero T
			queue[0] = zero
			queue = queue[1:]
		case <-done:
			return
		}
	}
}
