// Package pubsub tracks channel subscriptions and fans published messages
// out to subscriber connections. Channels are named by document keys, so a
// publish on "doc:1" reaches every routing-layer connection relaying that
// document's live edits.
package pubsub

import (
	"log"
	"sync"
)

// Subscriber is a delivery target for published messages, implemented by
// the server's connection type. Push hands a message to the subscriber's
// outbound buffer and must not block on the peer; a slow consumer is the
// subscriber's problem, never the publisher's.
type Subscriber interface {
	// ID uniquely identifies the subscriber, typically its remote address.
	ID() string

	// Push delivers one message for channel. Implementations buffer and
	// report false when the subscriber can't keep up.
	Push(channel, payload string) bool
}

// Registry is the node-wide channel → subscriber mapping. All methods are
// safe for concurrent use. Publishes from one node are serialized, which
// gives each subscriber per-channel FIFO delivery for a single originator;
// no ordering is promised across channels.
type Registry struct {
	mu sync.Mutex

	// channels maps channel name → subscriber ID → subscriber.
	channels map[string]map[string]Subscriber

	// bySub maps subscriber ID → the channels it holds, for O(1) cleanup
	// at disconnect.
	bySub map[string]map[string]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		channels: make(map[string]map[string]Subscriber),
		bySub:    make(map[string]map[string]struct{}),
	}
}

// Subscribe adds sub to channel and returns the number of channels the
// subscriber now holds (the count RESP subscribe confirmations carry).
// Subscribing twice to the same channel is a no-op.
func (r *Registry) Subscribe(sub Subscriber, channel string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs, ok := r.channels[channel]
	if !ok {
		subs = make(map[string]Subscriber)
		r.channels[channel] = subs
	}
	subs[sub.ID()] = sub

	held, ok := r.bySub[sub.ID()]
	if !ok {
		held = make(map[string]struct{})
		r.bySub[sub.ID()] = held
	}
	held[channel] = struct{}{}
	return len(held)
}

// Unsubscribe removes sub from channel and returns the number of channels
// the subscriber still holds.
func (r *Registry) Unsubscribe(sub Subscriber, channel string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.drop(sub.ID(), channel)
	return len(r.bySub[sub.ID()])
}

// DropSubscriber removes sub from every channel it holds. Called exactly
// once when a connection closes.
func (r *Registry) DropSubscriber(sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for channel := range r.bySub[sub.ID()] {
		r.drop(sub.ID(), channel)
	}
	delete(r.bySub, sub.ID())
}

// drop removes one (subscriber, channel) pair. Caller holds the lock.
func (r *Registry) drop(subID, channel string) {
	if subs, ok := r.channels[channel]; ok {
		delete(subs, subID)
		if len(subs) == 0 {
			delete(r.channels, channel)
		}
	}
	if held, ok := r.bySub[subID]; ok {
		delete(held, channel)
	}
}

// Publish delivers payload to every current subscriber of channel and
// returns the receiver count. Publishing to a channel with no subscribers
// is a no-op returning zero.
func (r *Registry) Publish(channel, payload string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	delivered := 0
	for _, sub := range r.channels[channel] {
		if sub.Push(channel, payload) {
			delivered++
		} else {
			log.Printf("pubsub: dropping message for slow subscriber %s on %q", sub.ID(), channel)
		}
	}
	return delivered
}

// Subscriptions returns the channels sub currently holds.
func (r *Registry) Subscriptions(sub Subscriber) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	held := r.bySub[sub.ID()]
	out := make([]string, 0, len(held))
	for channel := range held {
		out = append(out, channel)
	}
	return out
}

// NumSubscribers returns how many subscribers channel currently has.
func (r *Registry) NumSubscribers(channel string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.channels[channel])
}
