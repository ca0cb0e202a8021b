package opt

import (
	"errors"
	"strconv"
	"strings"

	"evacroute/internal/graph"
)

var (
	// ErrUnreachable means no path exists from source to target. It is an
	// expected outcome, not a fault; callers may relax constraints and retry.
	ErrUnreachable = errors.New("target unreachable from source")

	// ErrTimeout means the search hit its expansion or wall-clock bound
	// before reaching the target. A larger budget may succeed.
	ErrTimeout = errors.New("route search exceeded its budget")
)

// RouteResult is one candidate route with its cost breakdown.
type RouteResult struct {
	NodeIDs []string
	Edges   []int // edge indices into the searched graph, in travel order
	EdgeIDs []string
	Coords  [][2]float64 // lat,lng per node

	DistanceM float64
	TimeSec   float64
	RiskSum   float64 // summed per-edge risk (unknown risk substituted)
	RiskLevel float64 // length-weighted mean risk, 0..1
	MaxRisk   float64

	// Cost is the unpenalized scalar cost used for ranking; comparable only
	// between routes computed under the same SearchConfig and graph.
	Cost float64
	// SearchCost includes diversity penalties active when the route was found.
	SearchCost float64

	CriticalEdges int // edges with risk > CriticalRisk
	Expansions    int
}

// TimeMinutes is the estimated travel time in minutes.
func (r RouteResult) TimeMinutes() float64 { return r.TimeSec / 60 }

// key identifies the route by its exact edge sequence.
func (r RouteResult) key() string {
	var sb strings.Builder
	for i, e := range r.Edges {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(e))
	}
	return sb.String()
}

// buildResult walks the chosen edges and fills the breakdown.
func buildResult(g *graph.Graph, m *CostModel, cfg SearchConfig, source int, edges []int, searchCost float64, expansions int) RouteResult {
	src := g.Node(source)
	r := RouteResult{
		NodeIDs:    []string{src.ID},
		Edges:      edges,
		EdgeIDs:    make([]string, 0, len(edges)),
		Coords:     [][2]float64{{src.Lat, src.Lng}},
		SearchCost: searchCost,
		Expansions: expansions,
	}
	weighted := 0.0
	for _, ei := range edges {
		e := g.Edge(ei)
		to := g.Node(e.To)
		risk := m.Risk(e)
		r.NodeIDs = append(r.NodeIDs, to.ID)
		r.EdgeIDs = append(r.EdgeIDs, e.ID)
		r.Coords = append(r.Coords, [2]float64{to.Lat, to.Lng})
		r.DistanceM += e.LengthM
		r.TimeSec += e.TravelTimeSec
		r.RiskSum += risk
		r.Cost += m.EdgeCost(e)
		weighted += risk * e.LengthM
		if risk > r.MaxRisk {
			r.MaxRisk = risk
		}
		if risk > cfg.CriticalRisk {
			r.CriticalEdges++
		}
	}
	if r.DistanceM > 0 {
		r.RiskLevel = weighted / r.DistanceM
	}
	return r
}
