package api

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisBroker implements EventBroker over Redis Pub/Sub so multiple
// instances share one event stream.
type RedisBroker struct {
	rdb *redis.Client

	mu   sync.Mutex
	pubs map[chan Event]*redis.PubSub
}

func NewRedisBroker(url string) (*RedisBroker, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &RedisBroker{rdb: rdb, pubs: map[chan Event]*redis.PubSub{}}, nil
}

func (b *RedisBroker) Subscribe(topic string) chan Event {
	ch := make(chan Event, 16)
	ctx := context.Background()
	ps := b.rdb.Subscribe(ctx, b.channel(topic))
	// confirm the subscription before handing the channel out
	_, _ = ps.Receive(ctx)

	b.mu.Lock()
	b.pubs[ch] = ps
	b.mu.Unlock()

	go func() {
		for msg := range ps.Channel() {
			var evt Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err == nil {
				select {
				case ch <- evt:
				default:
				}
			}
		}
		b.mu.Lock()
		if _, ok := b.pubs[ch]; ok {
			delete(b.pubs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}()
	return ch
}

func (b *RedisBroker) Unsubscribe(topic string, ch chan Event) {
	b.mu.Lock()
	ps, ok := b.pubs[ch]
	b.mu.Unlock()
	if ok {
		// closing the PubSub ends the reader goroutine, which closes ch
		_ = ps.Close()
	}
}

func (b *RedisBroker) Publish(topic string, evt Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	data, _ := json.Marshal(evt)
	_ = b.rdb.Publish(ctx, b.channel(topic), data).Err()
	if topic != TopicFleet {
		_ = b.rdb.Publish(ctx, b.channel(TopicFleet), data).Err()
	}
}

func (b *RedisBroker) channel(topic string) string { return "fleetops:" + topic }
