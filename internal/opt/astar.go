package opt

import (
	"container/heap"
	"context"
	"fmt"
	"math"

	"evacroute/internal/graph"
)

// ctxCheckEvery bounds how many expansions run between context checks.
const ctxCheckEvery = 64

// Overlay records how often each edge was used by routes already returned
// to the caller. An edge at level p costs (1 + diversity*p) times its base
// cost. An Overlay belongs to one request and is never shared.
type Overlay struct {
	level map[int]int
}

func NewOverlay() *Overlay { return &Overlay{level: map[int]int{}} }

// Level returns the penalty level of edge e. A nil overlay has no penalties.
func (o *Overlay) Level(e int) int {
	if o == nil {
		return 0
	}
	return o.level[e]
}

// Penalize raises the level of every listed edge by one.
func (o *Overlay) Penalize(edges []int) {
	for _, e := range edges {
		o.level[e]++
	}
}

// FindPath returns the lowest-cost route from source to target under cfg.
// overlay may be nil. Besides input errors (graph.ErrInvalidInput) the
// outcomes are ErrUnreachable and ErrTimeout; source == target yields a
// trivial zero-length route.
func FindPath(ctx context.Context, g *graph.Graph, source, target string, cfg SearchConfig, overlay *Overlay) (RouteResult, error) {
	if err := cfg.Validate(); err != nil {
		return RouteResult{}, err
	}
	s, t, err := resolveEndpoints(g, source, target)
	if err != nil {
		return RouteResult{}, err
	}
	return newSearch(g, NewCostModel(g, cfg), cfg, overlay).run(ctx, s, t)
}

func resolveEndpoints(g *graph.Graph, source, target string) (int, int, error) {
	if g == nil {
		return 0, 0, fmt.Errorf("%w: nil graph", graph.ErrInvalidInput)
	}
	s, ok := g.Lookup(source)
	if !ok {
		return 0, 0, fmt.Errorf("%w: unknown source node %q", graph.ErrInvalidInput, source)
	}
	t, ok := g.Lookup(target)
	if !ok {
		return 0, 0, fmt.Errorf("%w: unknown target node %q", graph.ErrInvalidInput, target)
	}
	return s, t, nil
}

// search holds the mutable state of one A* run. Per-node state lives in
// slices indexed like the graph.
type search struct {
	g       *graph.Graph
	m       *CostModel
	cfg     SearchConfig
	overlay *Overlay

	gScore     []float64
	prevEdge   []int
	closed     []bool
	pq         frontier
	expansions int
}

func newSearch(g *graph.Graph, m *CostModel, cfg SearchConfig, overlay *Overlay) *search {
	return &search{g: g, m: m, cfg: cfg, overlay: overlay}
}

func (s *search) run(ctx context.Context, source, target int) (RouteResult, error) {
	if source == target {
		return buildResult(s.g, s.m, s.cfg, source, nil, 0, 0), nil
	}
	if !s.g.Connected(source, target) {
		return RouteResult{}, ErrUnreachable
	}
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	n := s.g.NodeCount()
	s.gScore = make([]float64, n)
	s.prevEdge = make([]int, n)
	s.closed = make([]bool, n)
	for i := range s.gScore {
		s.gScore[i] = math.Inf(1)
		s.prevEdge[i] = -1
	}
	s.gScore[source] = 0
	s.pq = s.pq[:0]
	heap.Push(&s.pq, &frontierItem{node: source, id: s.g.Node(source).ID, f: s.m.Heuristic(source, target)})

	df := s.cfg.DiversityFactor
	for s.pq.Len() > 0 {
		it := heap.Pop(&s.pq).(*frontierItem)
		u := it.node
		if s.closed[u] || it.g > s.gScore[u] {
			continue // stale entry
		}
		if u == target {
			return buildResult(s.g, s.m, s.cfg, source, s.pathTo(target), it.g, s.expansions), nil
		}
		if s.cfg.MaxExpansions > 0 && s.expansions >= s.cfg.MaxExpansions {
			return RouteResult{}, fmt.Errorf("%w: %d nodes expanded", ErrTimeout, s.expansions)
		}
		if s.expansions%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return RouteResult{}, fmt.Errorf("%w: %v", ErrTimeout, err)
			}
		}
		s.closed[u] = true
		s.expansions++

		for _, ei := range s.g.Out(u) {
			e := s.g.Edge(ei)
			v := e.To
			if s.closed[v] {
				continue
			}
			c := s.m.EdgeCost(e)
			if p := s.overlay.Level(ei); p > 0 {
				c *= 1 + df*float64(p)
			}
			ng := it.g + c
			if ng < s.gScore[v] {
				s.gScore[v] = ng
				s.prevEdge[v] = ei
				heap.Push(&s.pq, &frontierItem{node: v, id: s.g.Node(v).ID, g: ng, f: ng + s.m.Heuristic(v, target)})
			}
		}
	}
	return RouteResult{}, ErrUnreachable
}

func (s *search) pathTo(target int) []int {
	var rev []int
	for v := target; s.prevEdge[v] >= 0; v = s.g.Edge(s.prevEdge[v]).From {
		rev = append(rev, s.prevEdge[v])
	}
	out := make([]int, len(rev))
	for i, e := range rev {
		out[len(rev)-1-i] = e
	}
	return out
}

type frontierItem struct {
	node int
	id   string
	g, f float64
}

// frontier is a min-heap on f, then g, then node ID. Decrease-key is lazy:
// improved nodes are pushed again and stale entries skipped on pop.
type frontier []*frontierItem

func (pq frontier) Len() int { return len(pq) }
func (pq frontier) Less(i, j int) bool {
	a, b := pq[i], pq[j]
	if a.f != b.f {
		return a.f < b.f
	}
	if a.g != b.g {
		return a.g < b.g
	}
	return a.id < b.id
}
func (pq frontier) Swap(i, j int) { pq[i], pq[j] = pq[j], pq[i] }

func (pq *frontier) Push(x any) { *pq = append(*pq, x.(*frontierItem)) }

func (pq *frontier) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*pq = old[:n-1]
	return item
}
