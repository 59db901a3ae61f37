package api

import (
	"sync"
)

// Event is a fan-out message on the live event stream: cycle transitions,
// truck telemetry, decisions awaiting approval.
type Event struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// EventBroker fans events out to stream subscribers by topic.
type EventBroker interface {
	Subscribe(topic string) chan Event
	Unsubscribe(topic string, ch chan Event)
	Publish(topic string, evt Event)
}

// Topics carried by the broker. TopicFleet carries everything; the others
// let a client follow one concern.
const (
	TopicFleet     = "fleet"
	TopicAgent     = "agent"
	TopicDecisions = "decisions"
)

// MemoryBroker is the in-process EventBroker. Slow subscribers drop events
// rather than block the publisher.
type MemoryBroker struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{}
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: map[string]map[chan Event]struct{}{}}
}

func (b *MemoryBroker) Subscribe(topic string) chan Event {
	ch := make(chan Event, 16)
	b.mu.Lock()
	if b.subs[topic] == nil {
		b.subs[topic] = map[chan Event]struct{}{}
	}
	b.subs[topic][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *MemoryBroker) Unsubscribe(topic string, ch chan Event) {
	b.mu.Lock()
	if m := b.subs[topic]; m != nil {
		if _, ok := m[ch]; ok {
			delete(m, ch)
			close(ch)
		}
		if len(m) == 0 {
			delete(b.subs, topic)
		}
	}
	b.mu.Unlock()
}

// Publish delivers to the topic's subscribers and to TopicFleet.
func (b *MemoryBroker) Publish(topic string, evt Event) {
	b.mu.Lock()
	b.deliver(topic, evt)
	if topic != TopicFleet {
		b.deliver(TopicFleet, evt)
	}
	b.mu.Unlock()
}

func (b *MemoryBroker) deliver(topic string, evt Event) {
	for ch := range b.subs[topic] {
		select {
		case ch <- evt:
		default:
		}
	}
}
