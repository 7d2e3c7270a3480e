// Package realtime fans out change notifications to live subscribers.
package realtime

import "sync"

// Broadcaster signals subscribers of a topic, typically a session ID, that
// the topic changed. A subscriber holds at most one pending signal: a burst
// of changes collapses into a single wake-up, and a change published after
// the subscriber last drained its channel is always signalled.
type Broadcaster struct {
	mu     sync.Mutex
	topics map[string]map[chan struct{}]struct{}
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		topics: make(map[string]map[chan struct{}]struct{}),
	}
}

// Subscribe registers a subscriber for topic and returns its signal channel.
func (b *Broadcaster) Subscribe(topic string) chan struct{} {
	ch := make(chan struct{}, 1)
	b.mu.Lock()
	subs, ok := b.topics[topic]
	if !ok {
		subs = make(map[chan struct{}]struct{})
		b.topics[topic] = subs
	}
	subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcaster) Unsubscribe(topic string, ch chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.topics[topic]
	if _, ok := subs[ch]; !ok {
		return
	}
	delete(subs, ch)
	close(ch)
	if len(subs) == 0 {
		delete(b.topics, topic)
	}
}

// Publish marks topic as changed for all of its subscribers. It never blocks.
func (b *Broadcaster) Publish(topic string) {
	b.mu.Lock()
	for ch := range b.topics[topic] {
		select {
		case ch <- struct{}{}:
		default:
			// A signal is already pending; the subscriber reads current state.
		}
	}
	b.mu.Unlock()
}

// Len returns the number of active subscribers across all topics.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, subs := range b.topics {
		n += len(subs)
	}
	return n
}
