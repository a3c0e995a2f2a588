package api

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"ridesim/internal/model"
)

// RedisBroker implements EventBroker over Redis Pub/Sub so several
// service replicas can stream the same run.
type RedisBroker struct {
	rdb *redis.Client

	mu   sync.Mutex
	subs map[chan model.Event]*redis.PubSub
}

func NewRedisBroker(url string) (*RedisBroker, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return &RedisBroker{rdb: rdb, subs: map[chan model.Event]*redis.PubSub{}}, nil
}

func (b *RedisBroker) Subscribe(runID string) chan model.Event {
	ch := make(chan model.Event, 16)
	ctx := context.Background()
	ps := b.rdb.Subscribe(ctx, chanName(runID))
	// initial consume to ensure subscription
	_, _ = ps.Receive(ctx)
	b.mu.Lock()
	b.subs[ch] = ps
	b.mu.Unlock()
	go func() {
		defer close(ch)
		for msg := range ps.Channel() {
			var evt model.Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err == nil {
				select {
				case ch <- evt:
				default:
				}
			}
		}
	}()
	return ch
}

// Unsubscribe closes the Pub/Sub connection; the forwarding goroutine then
// closes ch.
func (b *RedisBroker) Unsubscribe(runID string, ch chan model.Event) {
	b.mu.Lock()
	ps := b.subs[ch]
	delete(b.subs, ch)
	b.mu.Unlock()
	if ps != nil {
		_ = ps.Close()
	}
}

func (b *RedisBroker) Publish(runID string, evt model.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	data, _ := json.Marshal(evt)
	_ = b.rdb.Publish(ctx, chanName(runID), data).Err()
}

func (b *RedisBroker) Close() error { return b.rdb.Close() }

func chanName(runID string) string { return "sim:" + runID }
