package store

import (
	"context"
	"errors"
	"sort"
	"time"

	"evacroute/internal/graph"
	"evacroute/internal/model"
)

// Store is the persistence interface used by the API server and the CLI.
type Store interface {
	// Graphs are versioned per city; every save appends a new version.
	SaveGraph(ctx context.Context, doc graph.Document) (version int, err error)
	LoadGraph(ctx context.Context, city string) (doc graph.Document, version int, err error)
	ListGraphs(ctx context.Context) ([]model.GraphInfo, error)

	// Plans
	SavePlan(ctx context.Context, p model.Plan) error
	GetPlan(ctx context.Context, id string) (model.Plan, error)
	ListPlans(ctx context.Context, city, cursor string, limit int) ([]model.Plan, string, error)

	// Optimizer config per city
	GetOptimizerConfig(ctx context.Context, city string) (map[string]any, error)
	SaveOptimizerConfig(ctx context.Context, city string, cfg map[string]any) error

	// Subscriptions
	CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
	GetSubscriptionsForEvent(ctx context.Context, city, eventType string) ([]model.Subscription, error)
	ListSubscriptions(ctx context.Context, city, cursor string, limit int) ([]model.Subscription, string, error)
	DeleteSubscription(ctx context.Context, city, id string) error

	// Webhook deliveries
	EnqueueWebhook(ctx context.Context, city, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
	FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
	ListWebhookDeliveries(ctx context.Context, city, status, cursor string, limit int) ([]map[string]any, string, error)

	// Dead-letter queue
	ListWebhookDLQ(ctx context.Context, city, cursor string, limit int) ([]map[string]any, string, error)
	RequeueWebhookDLQ(ctx context.Context, city, id string) error

	Ping(ctx context.Context) error
	Close() error
}

var ErrNotFound = errors.New("not found")

func clampLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 100
	}
	return limit
}

func graphInfo(doc graph.Document, version int, at time.Time) model.GraphInfo {
	info := model.GraphInfo{City: doc.City, Version: version, Nodes: len(doc.Nodes), Edges: len(doc.Edges), UpdatedAt: at}
	for _, n := range doc.Nodes {
		if n.SafeZone {
			info.SafeZones++
		}
	}
	return info
}

func sortGraphInfos(items []model.GraphInfo) {
	sort.Slice(items, func(i, j int) bool { return items[i].City < items[j].City })
}
