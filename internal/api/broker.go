package api

import (
	"sync"

	"ridesim/internal/model"
)

// EventBroker fans run events out to subscribers keyed by run id.
type EventBroker interface {
	Subscribe(runID string) chan model.Event
	Unsubscribe(runID string, ch chan model.Event)
	Publish(runID string, evt model.Event)
}

// Broker is the in-process EventBroker.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan model.Event]struct{} // runId -> set of channels
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[chan model.Event]struct{}{}}
}

func (b *Broker) Subscribe(runID string) chan model.Event {
	ch := make(chan model.Event, 16)
	b.mu.Lock()
	if b.subs[runID] == nil {
		b.subs[runID] = map[chan model.Event]struct{}{}
	}
	b.subs[runID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(runID string, ch chan model.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.subs[runID]
	if _, ok := m[ch]; !ok {
		return
	}
	delete(m, ch)
	if len(m) == 0 {
		delete(b.subs, runID)
	}
	close(ch)
}

// Publish drops the event for subscribers whose buffer is full.
func (b *Broker) Publish(runID string, evt model.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[runID] {
		select {
		case ch <- evt:
		default:
		}
	}
}
