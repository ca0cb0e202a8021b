// Package api implements HTTP handlers and helpers for the evacuation routing service.
package api

import (
	"context"
	"log"
	"strings"

	"evacroute/internal/auth"
	"evacroute/internal/config"
	"evacroute/internal/graph"
	"evacroute/internal/opt"
	"evacroute/internal/store"
	"evacroute/internal/webhooks"
)

// GraphSource loads a city graph from an external system of record.
type GraphSource interface {
	LoadCity(ctx context.Context, city string) (graph.Document, error)
}

type Server struct {
	Store   store.Store
	Pub     *webhooks.Publisher
	Auth    *auth.Verifier
	Broker  EventBroker
	Graphs  *GraphCache
	Source  GraphSource // optional; consulted when a city is not stored yet
	Planner *opt.Planner
	Config  config.Config

	closers []func() error
}

// NewServer wires storage and messaging from cfg. Postgres is used when a
// database URL is set, then SQLite, else an in-memory store.
func NewServer(cfg config.Config) (*Server, error) {
	var s store.Store
	switch {
	case strings.TrimSpace(cfg.Storage.DatabaseURL) != "":
		sp, err := store.NewPostgres(cfg.Storage.DatabaseURL)
		if err != nil {
			return nil, err
		}
		s = sp
	case strings.TrimSpace(cfg.Storage.SQLitePath) != "":
		sl, err := store.NewSQLite(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, err
		}
		s = sl
	default:
		s = store.NewMemory()
	}
	srv := &Server{
		Store:   s,
		Pub:     webhooks.NewPublisher(s),
		Auth:    auth.NewVerifier(cfg.Auth.Mode, cfg.Auth.HMACSecret),
		Graphs:  NewGraphCache(),
		Planner: opt.NewPlanner(),
		Config:  cfg,
	}
	srv.closers = append(srv.closers, s.Close)

	// Broker selection
	srv.Broker = NewBroker()
	if cfg.Storage.RedisURL != "" {
		if rb, err := NewRedisBroker(cfg.Storage.RedisURL); err == nil {
			srv.Broker = rb
			srv.closers = append(srv.closers, rb.Close)
		} else {
			log.Printf("redis broker unavailable, using in-process broker: %v", err)
		}
	}
	if cfg.Storage.Neo4j.URI != "" {
		n, err := store.NewNeo4jSource(cfg.Storage.Neo4j.URI, cfg.Storage.Neo4j.User, cfg.Storage.Neo4j.Password, cfg.Storage.Neo4j.Database)
		if err != nil {
			_ = srv.Close()
			return nil, err
		}
		srv.Source = n
		srv.closers = append(srv.closers, func() error { return n.Close(context.Background()) })
	}
	return srv, nil
}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	w := webhooks.NewWorker(s.Store, s.Config.Webhooks.MaxAttempts)
	if s.Config.Webhooks.PollInterval > 0 {
		w.PollInterval = s.Config.Webhooks.PollInterval
	}
	return w
}

func (s *Server) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}
