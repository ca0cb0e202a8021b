package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"evacroute/internal/graph"
	"evacroute/internal/metrics"
	"evacroute/internal/store"
)

// Snapshot is one immutable version of a city graph.
type Snapshot struct {
	City    string
	Version int
	Graph   *graph.Graph
}

// GraphCache holds the live snapshot per city. Readers get a pointer to an
// immutable graph; writers swap in a new one, so searches in flight keep
// the version they started with.
type GraphCache struct {
	mu sync.RWMutex
	m  map[string]Snapshot
	// serializes read-modify-write updates per cache
	writeMu sync.Mutex
}

// NewGraphCache constructs a GraphCache.
func NewGraphCache() *GraphCache { return &GraphCache{m: map[string]Snapshot{}} }

func (c *GraphCache) Get(city string) (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.m[city]
	return s, ok
}

// Put stores snap unless a newer version is already cached.
func (c *GraphCache) Put(snap Snapshot) {
	if snap.City == "" || snap.Graph == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.m[snap.City]; ok && cur.Version > snap.Version {
		return
	}
	c.m[snap.City] = snap
	metrics.GraphSnapshots.WithLabelValues(snap.City).Set(float64(snap.Version))
}

// snapshot returns the live graph for city, loading it from the store or,
// failing that, from the external graph source (and persisting it).
func (s *Server) snapshot(ctx context.Context, city string) (Snapshot, error) {
	if snap, ok := s.Graphs.Get(city); ok {
		return snap, nil
	}
	s.Graphs.writeMu.Lock()
	defer s.Graphs.writeMu.Unlock()
	return s.loadSnapshot(ctx, city)
}

// loadSnapshot is snapshot for callers already holding writeMu; a cold
// city is imported at most once.
func (s *Server) loadSnapshot(ctx context.Context, city string) (Snapshot, error) {
	if snap, ok := s.Graphs.Get(city); ok {
		return snap, nil
	}
	doc, version, err := s.Store.LoadGraph(ctx, city)
	if errors.Is(err, store.ErrNotFound) && s.Source != nil {
		doc, err = s.Source.LoadCity(ctx, city)
		if err == nil {
			version, err = s.Store.SaveGraph(ctx, doc)
			log.Printf("graph city=%s imported from source nodes=%d edges=%d", city, len(doc.Nodes), len(doc.Edges))
		}
	}
	if err != nil {
		return Snapshot{}, err
	}
	g, err := graph.FromDocument(doc)
	if err != nil {
		return Snapshot{}, fmt.Errorf("stored graph for %s: %w", city, err)
	}
	snap := Snapshot{City: city, Version: version, Graph: g}
	s.Graphs.Put(snap)
	if cur, ok := s.Graphs.Get(city); ok {
		return cur, nil
	}
	return snap, nil
}

// replaceGraph persists g as the next version of city and makes it live.
func (s *Server) replaceGraph(ctx context.Context, city string, g *graph.Graph) (Snapshot, error) {
	version, err := s.Store.SaveGraph(ctx, g.ToDocument(city))
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{City: city, Version: version, Graph: g}
	s.Graphs.Put(snap)
	return snap, nil
}

// updateGraph applies fn to the live graph and persists the result.
// Concurrent updates are serialized so none is lost.
func (s *Server) updateGraph(ctx context.Context, city string, fn func(*graph.Graph) (*graph.Graph, error)) (Snapshot, error) {
	s.Graphs.writeMu.Lock()
	defer s.Graphs.writeMu.Unlock()
	cur, err := s.loadSnapshot(ctx, city)
	if err != nil {
		return Snapshot{}, err
	}
	ng, err := fn(cur.Graph)
	if err != nil {
		return Snapshot{}, err
	}
	return s.replaceGraph(ctx, city, ng)
}
