package webhooks

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"evacroute/internal/store"
)

type Publisher struct {
	Store store.Store
	now   func() time.Time
}

func NewPublisher(s store.Store) *Publisher {
	return &Publisher{Store: s, now: time.Now}
}

// Event is the JSON body POSTed to subscribers.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	City string `json:"city"`
	TS   string `json:"ts"`
	Data any    `json:"data"`
}

// Emit enqueues one delivery per subscription of the city that listens for eventType.
// It returns the number of deliveries queued.
func (p *Publisher) Emit(ctx context.Context, city, eventType string, data any) int {
	subs, err := p.Store.GetSubscriptionsForEvent(ctx, city, eventType)
	if err != nil {
		log.Printf("webhooks: list subscriptions city=%s type=%s: %v", city, eventType, err)
		return 0
	}
	if len(subs) == 0 {
		return 0
	}
	body, err := json.Marshal(Event{
		ID:   "evt_" + uuid.NewString(),
		Type: eventType,
		City: city,
		TS:   p.now().UTC().Format(time.RFC3339),
		Data: data,
	})
	if err != nil {
		log.Printf("webhooks: encode %s: %v", eventType, err)
		return 0
	}
	n := 0
	for _, s := range subs {
		if _, err := p.Store.EnqueueWebhook(ctx, city, s.ID, eventType, s.URL, s.Secret, body); err != nil {
			log.Printf("webhooks: enqueue sub=%s: %v", s.ID, err)
			continue
		}
		n++
	}
	return n
}
