package opt

import (
	"context"
	"sort"

	"evacroute/internal/graph"
)

// FindKRoutes returns up to cfg.NumPaths materially different routes ranked
// by ascending cost.
//
// After each search every edge of the returned route has its overlay level
// raised, so later searches pay (1 + DiversityFactor*level) on reused edges.
// A failure of the first search is returned as-is; a failure of any later
// search ends the loop with the routes found so far. Routes identical
// edge-for-edge to an earlier one are dropped, so fewer than NumPaths
// routes may come back.
func FindKRoutes(ctx context.Context, g *graph.Graph, source, target string, cfg SearchConfig) ([]RouteResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s, t, err := resolveEndpoints(g, source, target)
	if err != nil {
		return nil, err
	}
	return findKRoutes(ctx, g, NewCostModel(g, cfg), cfg, s, t)
}

func findKRoutes(ctx context.Context, g *graph.Graph, m *CostModel, cfg SearchConfig, source, target int) ([]RouteResult, error) {
	ctx, cancel := withBudget(ctx, cfg)
	defer cancel()
	overlay := NewOverlay()
	best, err := newSearch(g, m, cfg, overlay).run(ctx, source, target)
	if err != nil {
		return nil, err
	}
	routes := []RouteResult{best}
	if source == target {
		return routes, nil
	}
	seen := map[string]struct{}{best.key(): {}}
	overlay.Penalize(best.Edges)

	for i := 1; i < cfg.NumPaths; i++ {
		r, err := newSearch(g, m, cfg, overlay).run(ctx, source, target)
		if err != nil {
			break
		}
		overlay.Penalize(r.Edges)
		k := r.key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		routes = append(routes, r)
	}

	sort.SliceStable(routes, func(i, j int) bool { return routes[i].Cost < routes[j].Cost })
	return routes, nil
}

// withBudget bounds a whole multi-search call by cfg.Timeout. Searches run
// under it still apply their own per-run limit, which can only be later.
func withBudget(ctx context.Context, cfg SearchConfig) (context.Context, context.CancelFunc) {
	if cfg.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, cfg.Timeout)
}
