package pubsub

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSubscriber records pushed messages in arrival order
type fakeSubscriber struct {
	mu       sync.Mutex
	id       string
	messages []string
	full     bool // simulate a saturated outbound buffer
}

func (f *fakeSubscriber) ID() string { return f.id }

func (f *fakeSubscriber) Push(channel, payload string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return false
	}
	f.messages = append(f.messages, channel+"|"+payload)
	return true
}

func (f *fakeSubscriber) received() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.messages...)
}

func TestSubscribePublish(t *testing.T) {
	r := NewRegistry()
	alice := &fakeSubscriber{id: "alice"}
	bob := &fakeSubscriber{id: "bob"}

	require.Equal(t, 1, r.Subscribe(alice, "doc:1"))
	require.Equal(t, 2, r.Subscribe(alice, "doc:2"))
	require.Equal(t, 1, r.Subscribe(bob, "doc:1"))

	n := r.Publish("doc:1", "edit-a")
	assert.Equal(t, 2, n, "both subscribers should receive")
	assert.Equal(t, []string{"doc:1|edit-a"}, alice.received())
	assert.Equal(t, []string{"doc:1|edit-a"}, bob.received())

	n = r.Publish("doc:2", "edit-b")
	assert.Equal(t, 1, n, "only alice holds doc:2")
}

func TestPublishOrdering(t *testing.T) {
	r := NewRegistry()
	sub := &fakeSubscriber{id: "sub"}
	r.Subscribe(sub, "doc:1")

	for i := 0; i < 100; i++ {
		r.Publish("doc:1", fmt.Sprintf("m%d", i))
	}

	got := sub.received()
	require.Len(t, got, 100)
	for i, msg := range got {
		assert.Equal(t, fmt.Sprintf("doc:1|m%d", i), msg,
			"messages must arrive in publish order")
	}
}

func TestUnsubscribe(t *testing.T) {
	r := NewRegistry()
	sub := &fakeSubscriber{id: "sub"}

	r.Subscribe(sub, "doc:1")
	r.Subscribe(sub, "doc:2")

	assert.Equal(t, 1, r.Unsubscribe(sub, "doc:1"))
	assert.Equal(t, 0, r.Publish("doc:1", "x"), "unsubscribed channel delivers nothing")
	assert.Equal(t, 1, r.Publish("doc:2", "y"), "remaining subscription still live")

	// Unsubscribing a channel never held is harmless
	assert.Equal(t, 1, r.Unsubscribe(sub, "doc:99"))
}

func TestDropSubscriber(t *testing.T) {
	r := NewRegistry()
	sub := &fakeSubscriber{id: "sub"}
	other := &fakeSubscriber{id: "other"}

	r.Subscribe(sub, "doc:1")
	r.Subscribe(sub, "doc:2")
	r.Subscribe(other, "doc:1")

	r.DropSubscriber(sub)

	assert.Empty(t, r.Subscriptions(sub))
	assert.Equal(t, 1, r.NumSubscribers("doc:1"), "other subscriber unaffected")
	assert.Equal(t, 0, r.NumSubscribers("doc:2"))
}

func TestPublishEmptyChannel(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, 0, r.Publish("nobody-home", "x"))
}

func TestSlowSubscriberSkipped(t *testing.T) {
	r := NewRegistry()
	slow := &fakeSubscriber{id: "slow", full: true}
	fast := &fakeSubscriber{id: "fast"}

	r.Subscribe(slow, "doc:1")
	r.Subscribe(fast, "doc:1")

	n := r.Publish("doc:1", "m")
	assert.Equal(t, 1, n, "only the fast subscriber counts as delivered")
	assert.Len(t, fast.received(), 1)
	assert.Empty(t, slow.received())
}

func TestConcurrentSubscribers(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			sub := &fakeSubscriber{id: fmt.Sprintf("sub-%d", id)}
			for j := 0; j < 50; j++ {
				r.Subscribe(sub, "doc:1")
				r.Publish("doc:1", "m")
				r.Unsubscribe(sub, "doc:1")
			}
			r.DropSubscriber(sub)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, r.NumSubscribers("doc:1"))
}
