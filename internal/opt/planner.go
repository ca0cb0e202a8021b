package opt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"evacroute/internal/graph"
	"evacroute/internal/metrics"
)

// Plan is the outcome of one optimization request.
type Plan struct {
	ID        string
	City      string
	SourceID  string
	TargetID  string
	Config    SearchConfig
	Routes    []RouteResult
	Stats     SearchStats
	CreatedAt time.Time
}

// Planner runs optimization requests against graph snapshots and records
// per-city search statistics. The zero value is ready to use.
type Planner struct {
	now func() time.Time
}

func NewPlanner() *Planner { return &Planner{now: time.Now} }

// Routes computes diverse routes between two nodes.
func (p *Planner) Routes(ctx context.Context, g *graph.Graph, city, source, target string, cfg SearchConfig) (Plan, error) {
	start := p.clock()
	if err := cfg.Validate(); err != nil {
		return Plan{}, err
	}
	s, t, err := resolveEndpoints(g, source, target)
	if err != nil {
		return Plan{}, err
	}
	routes, err := findKRoutes(ctx, g, NewCostModel(g, cfg), cfg, s, t)
	st := p.observe(city, "routes", start, routes, err)
	if err != nil {
		return Plan{}, err
	}
	return p.plan(city, source, target, cfg, routes, st), nil
}

// Evacuate routes from source to the cheapest reachable safe zone. Candidate
// zones are the MaxSafeZones nearest by straight line among those in the
// source's component (all when 0); each gets a single search and the
// lowest-cost one, earliest in distance order on ties, gets the full diverse
// route set.
func (p *Planner) Evacuate(ctx context.Context, g *graph.Graph, city, source string, cfg SearchConfig) (Plan, error) {
	start := p.clock()
	if err := cfg.Validate(); err != nil {
		return Plan{}, err
	}
	s, _, err := resolveEndpoints(g, source, source)
	if err != nil {
		return Plan{}, err
	}
	zones := g.SafeZones()
	if len(zones) == 0 {
		return Plan{}, fmt.Errorf("%w: graph has no safe zones", graph.ErrInvalidInput)
	}
	// zones in another component can never win; drop them before the cut
	// so a farther reachable zone is still searched
	reachable := zones[:0:0]
	for _, z := range zones {
		if g.Connected(s, z) {
			reachable = append(reachable, z)
		}
	}
	if len(reachable) == 0 {
		p.observe(city, "evacuate", start, nil, ErrUnreachable)
		return Plan{}, ErrUnreachable
	}
	ctx, cancel := withBudget(ctx, cfg)
	defer cancel()
	src := g.Node(s)
	zones = g.NodesByDistance(src.Lat, src.Lng, reachable)
	if cfg.MaxSafeZones > 0 && len(zones) > cfg.MaxSafeZones {
		zones = zones[:cfg.MaxSafeZones]
	}

	m := NewCostModel(g, cfg)
	best, bestCost := -1, 0.0
	var lastErr error = ErrUnreachable
	for _, z := range zones {
		r, err := newSearch(g, m, cfg, nil).run(ctx, s, z)
		if err != nil {
			if errors.Is(err, ErrTimeout) {
				lastErr = err
			}
			continue
		}
		if best < 0 || r.Cost < bestCost {
			best, bestCost = z, r.Cost
		}
	}
	if best < 0 {
		p.observe(city, "evacuate", start, nil, lastErr)
		return Plan{}, lastErr
	}
	routes, err := findKRoutes(ctx, g, m, cfg, s, best)
	st := p.observe(city, "evacuate", start, routes, err)
	if err != nil {
		return Plan{}, err
	}
	return p.plan(city, source, g.Node(best).ID, cfg, routes, st), nil
}

func (p *Planner) plan(city, source, target string, cfg SearchConfig, routes []RouteResult, st SearchStats) Plan {
	return Plan{
		ID:        uuid.New().String(),
		City:      city,
		SourceID:  source,
		TargetID:  target,
		Config:    cfg,
		Routes:    routes,
		Stats:     st,
		CreatedAt: p.clock().UTC(),
	}
}

func (p *Planner) clock() time.Time {
	if p == nil || p.now == nil {
		return time.Now()
	}
	return p.now()
}

func (p *Planner) observe(city, kind string, start time.Time, routes []RouteResult, err error) SearchStats {
	st := SearchStats{Kind: kind, Routes: len(routes), Outcome: Outcome(err)}
	for _, r := range routes {
		st.Expansions += r.Expansions
	}
	st.DurationMs = p.clock().Sub(start).Milliseconds()
	RecordStats(city, st)
	metrics.RouteSearches.WithLabelValues(kind, st.Outcome).Inc()
	metrics.RouteSearchDuration.WithLabelValues(kind).Observe(p.clock().Sub(start).Seconds())
	metrics.RouteExpansions.WithLabelValues(kind).Observe(float64(st.Expansions))
	return st
}

// Outcome names a search result for logs and metrics.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnreachable):
		return "unreachable"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, graph.ErrInvalidInput):
		return "invalid"
	default:
		return "error"
	}
}
