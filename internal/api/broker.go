package api

import (
	"sync"
)

// SSEEvent is a city-scoped event fanned out to stream subscribers.
type SSEEvent struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// EventBroker fans out events per city.
type EventBroker interface {
	Subscribe(city string) chan SSEEvent
	Unsubscribe(city string, ch chan SSEEvent)
	Publish(city string, evt SSEEvent)
}

type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan SSEEvent]struct{} // city -> set of channels
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[chan SSEEvent]struct{}{}}
}

func (b *Broker) Subscribe(city string) chan SSEEvent {
	ch := make(chan SSEEvent, 8)
	b.mu.Lock()
	if b.subs[city] == nil {
		b.subs[city] = map[chan SSEEvent]struct{}{}
	}
	b.subs[city][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(city string, ch chan SSEEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.subs[city]
	if _, ok := m[ch]; !ok {
		return
	}
	delete(m, ch)
	if len(m) == 0 {
		delete(b.subs, city)
	}
	close(ch)
}

// Publish never blocks; slow subscribers drop events.
func (b *Broker) Publish(city string, evt SSEEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[city] {
		select {
		case ch <- evt:
		default:
		}
	}
}
