package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"evacroute/internal/graph"
	"evacroute/internal/model"
)

// Memory is a simple in-memory store used when no database is configured.
type Memory struct {
	mu     sync.Mutex
	graphs map[string][]memGraph          // city -> versions, oldest first
	plans  map[string]model.Plan          // id -> plan
	byCity map[string][]string            // city -> plan ids
	subs   map[string][]model.Subscription // city -> subscriptions
	optCfg map[string]map[string]any      // city -> config
	// Webhooks queue state
	deliveries       map[string]*memDelivery // id -> delivery state
	deliveriesByCity map[string][]string     // city -> delivery ids
	dedup            map[string]string       // city|type|url|key -> delivery id
	dlq              []memDLQ
	now              func() time.Time
}

type memGraph struct {
	doc []byte // serialized so callers cannot alias stored state
	at  time.Time
}

// memDelivery augments WebhookDelivery with scheduling/metrics
type memDelivery struct {
	WebhookDelivery
	NextAttemptAt time.Time
	LastError     string
	ResponseCode  int
	LatencyMs     int
	DeliveredAt   *time.Time
}

type memDLQ struct {
	ID           string
	Delivery     WebhookDelivery
	LastError    string
	ResponseCode int
	LatencyMs    int
	CreatedAt    time.Time
}

func NewMemory() *Memory {
	return &Memory{
		graphs:           map[string][]memGraph{},
		plans:            map[string]model.Plan{},
		byCity:           map[string][]string{},
		subs:             map[string][]model.Subscription{},
		optCfg:           map[string]map[string]any{},
		deliveries:       map[string]*memDelivery{},
		deliveriesByCity: map[string][]string{},
		dedup:            map[string]string{},
		now:              time.Now,
	}
}

func (m *Memory) SaveGraph(ctx context.Context, doc graph.Document) (int, error) {
	if doc.City == "" {
		return 0, fmt.Errorf("%w: city required", graph.ErrInvalidInput)
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.graphs[doc.City] = append(m.graphs[doc.City], memGraph{doc: b, at: m.now().UTC()})
	return len(m.graphs[doc.City]), nil
}

func (m *Memory) LoadGraph(ctx context.Context, city string) (graph.Document, int, error) {
	m.mu.Lock()
	versions := m.graphs[city]
	m.mu.Unlock()
	if len(versions) == 0 {
		return graph.Document{}, 0, ErrNotFound
	}
	var doc graph.Document
	if err := json.Unmarshal(versions[len(versions)-1].doc, &doc); err != nil {
		return graph.Document{}, 0, err
	}
	return doc, len(versions), nil
}

func (m *Memory) ListGraphs(ctx context.Context) ([]model.GraphInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.GraphInfo{}
	for _, versions := range m.graphs {
		last := versions[len(versions)-1]
		var doc graph.Document
		if err := json.Unmarshal(last.doc, &doc); err != nil {
			return nil, err
		}
		out = append(out, graphInfo(doc, len(versions), last.at))
	}
	sortGraphInfos(out)
	return out, nil
}

func (m *Memory) SavePlan(ctx context.Context, p model.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.plans[p.ID]; !ok {
		m.byCity[p.City] = append(m.byCity[p.City], p.ID)
	}
	m.plans[p.ID] = p
	return nil
}

func (m *Memory) GetPlan(ctx context.Context, id string) (model.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[id]
	if !ok {
		return model.Plan{}, ErrNotFound
	}
	return p, nil
}

func (m *Memory) ListPlans(ctx context.Context, city, cursor string, limit int) ([]model.Plan, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.byCity[city]
	start := 0
	if cursor != "" {
		for i, id := range ids {
			if id == cursor {
				start = i + 1
				break
			}
		}
	}
	limit = clampLimit(limit)
	out := []model.Plan{}
	var next string
	for i := start; i < len(ids) && len(out) < limit; i++ {
		out = append(out, m.plans[ids[i]])
		next = ids[i]
	}
	if start+len(out) >= len(ids) {
		next = ""
	}
	return out, next, nil
}

func (m *Memory) GetOptimizerConfig(ctx context.Context, city string) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cfg, ok := m.optCfg[city]; ok {
		return cfg, nil
	}
	return nil, nil
}

func (m *Memory) SaveOptimizerConfig(ctx context.Context, city string, cfg map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.optCfg[city] = cfg
	return nil
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := model.Subscription{ID: uuid.New().String(), City: req.City, URL: req.URL, Events: req.Events, Secret: req.Secret}
	m.subs[req.City] = append(m.subs[req.City], s)
	return s, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, city, eventType string) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Subscription
	for _, s := range m.subs[city] {
		if subscribed(s.Events, eventType) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, city, cursor string, limit int) ([]model.Subscription, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.subs[city]
	start := 0
	if cursor != "" {
		for i := range list {
			if list[i].ID == cursor {
				start = i + 1
				break
			}
		}
	}
	end := start + clampLimit(limit)
	if end > len(list) {
		end = len(list)
	}
	items := append([]model.Subscription{}, list[start:end]...)
	next := ""
	if end < len(list) {
		next = list[end-1].ID
	}
	return items, next, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, city, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	arr := m.subs[city]
	out := make([]model.Subscription, 0, len(arr))
	for _, s := range arr {
		if s.ID != id {
			out = append(out, s)
		}
	}
	if len(out) == len(arr) {
		return ErrNotFound
	}
	m.subs[city] = out
	return nil
}

// Webhook deliveries
func (m *Memory) EnqueueWebhook(ctx context.Context, city, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dk := city + "|" + eventType + "|" + url + "|" + computeDedupKey(payload)
	if id, dup := m.dedup[dk]; dup {
		return id, nil
	}
	id := uuid.New().String()
	d := &memDelivery{WebhookDelivery: WebhookDelivery{ID: id, City: city, SubscriptionID: subscriptionID, EventType: eventType, URL: url, Secret: secret, Payload: payload, Status: "pending"}, NextAttemptAt: m.now()}
	m.deliveries[id] = d
	m.deliveriesByCity[city] = append(m.deliveriesByCity[city], id)
	m.dedup[dk] = id
	return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	out := []WebhookDelivery{}
	for _, ids := range m.deliveriesByCity {
		for _, id := range ids {
			d := m.deliveries[id]
			if d == nil {
				continue
			}
			if (d.Status == "pending" || d.Status == "retry") && !d.NextAttemptAt.After(now) {
				out = append(out, d.WebhookDelivery)
				if limit > 0 && len(out) >= limit {
					return out, nil
				}
			}
		}
	}
	return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return ErrNotFound
	}
	d.Attempts++
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	if success {
		d.Status = "delivered"
		now := m.now()
		d.DeliveredAt = &now
		return nil
	}
	d.Status = "retry"
	d.LastError = lastError
	if nextAttemptAt != nil {
		d.NextAttemptAt = *nextAttemptAt
	} else {
		d.NextAttemptAt = m.now().Add(time.Minute)
	}
	return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return ErrNotFound
	}
	d.Attempts++
	d.Status = "failed"
	d.LastError = lastError
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	m.dlq = append(m.dlq, memDLQ{ID: uuid.New().String(), Delivery: d.WebhookDelivery, LastError: lastError, ResponseCode: responseCode, LatencyMs: latencyMs, CreatedAt: m.now().UTC()})
	return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, city, status, cursor string, limit int) ([]map[string]any, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []map[string]any{}
	ids := m.deliveriesByCity[city]
	started := cursor == ""
	limit = clampLimit(limit)
	var last string
	for _, id := range ids {
		if !started {
			started = id == cursor
			continue
		}
		d := m.deliveries[id]
		if status != "" && d.Status != status {
			continue
		}
		if len(out) == limit {
			return out, last, nil
		}
		item := map[string]any{"id": d.ID, "eventType": d.EventType, "status": d.Status, "attempts": d.Attempts, "url": d.URL, "responseCode": d.ResponseCode}
		if !d.NextAttemptAt.IsZero() && d.Status != "delivered" && d.Status != "failed" {
			item["nextAttemptAt"] = d.NextAttemptAt
		}
		if d.LastError != "" {
			item["lastError"] = d.LastError
		}
		out = append(out, item)
		last = id
	}
	return out, "", nil
}

func (m *Memory) ListWebhookDLQ(ctx context.Context, city, cursor string, limit int) ([]map[string]any, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []map[string]any{}
	started := cursor == ""
	limit = clampLimit(limit)
	var last string
	for _, e := range m.dlq {
		if e.Delivery.City != city {
			continue
		}
		if !started {
			started = e.ID == cursor
			continue
		}
		if len(out) == limit {
			return out, last, nil
		}
		out = append(out, map[string]any{"id": e.ID, "deliveryId": e.Delivery.ID, "eventType": e.Delivery.EventType, "url": e.Delivery.URL, "lastError": e.LastError, "attempts": e.Delivery.Attempts, "createdAt": e.CreatedAt, "responseCode": e.ResponseCode, "latencyMs": e.LatencyMs})
		last = e.ID
	}
	return out, "", nil
}

// RequeueWebhookDLQ moves a dead-lettered delivery back to pending.
func (m *Memory) RequeueWebhookDLQ(ctx context.Context, city, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.dlq {
		if e.ID != id || e.Delivery.City != city {
			continue
		}
		if d := m.deliveries[e.Delivery.ID]; d != nil {
			d.Status = "pending"
			d.Attempts = 0
			d.NextAttemptAt = m.now()
		}
		m.dlq = append(m.dlq[:i], m.dlq[i+1:]...)
		return nil
	}
	return ErrNotFound
}

func (m *Memory) Ping(ctx context.Context) error { return nil }
func (m *Memory) Close() error                   { return nil }

func subscribed(events []string, eventType string) bool {
	for _, e := range events {
		if e == eventType || e == "*" {
			return true
		}
	}
	return false
}
