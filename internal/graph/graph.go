// Package graph holds the immutable road network snapshot searched by the
// route optimizer. Nodes and edges are addressed by dense indices; adjacency
// is stored as per-node slices of edge indices in both directions.
package graph

import (
	"math"
	"sort"
)

// DefaultSpeedMps is used to derive travel time for edges supplied without one (30 km/h).
const DefaultSpeedMps = 8.33

// DefaultUnknownRisk is the risk assumed for an edge whose hazard signal is
// missing; unknown is never treated as safe.
const DefaultUnknownRisk = 0.5

// Node is an intersection or shape point.
type Node struct {
	ID       string
	Lat, Lng float64
	SafeZone bool // evacuation destination (shelter, assembly point)
}

// Edge is a directed road segment.
type Edge struct {
	ID            string
	From, To      int // node indices
	LengthM       float64
	TravelTimeSec float64
	Risk          float64 // hazard score in [0,1]; meaningful only when RiskKnown
	RiskKnown     bool
}

// Graph is a read-only snapshot. All methods are safe for concurrent use.
type Graph struct {
	nodes    []Node
	edges    []Edge
	out      [][]int
	in       [][]int
	index    map[string]int
	edgeByID map[string]int
	comp     []int // weak component label per node

	maxSpeed   float64 // max straight-line m/s over all edges
	maxTimeSec float64
}

func (g *Graph) NodeCount() int { return len(g.nodes) }
func (g *Graph) EdgeCount() int { return len(g.edges) }

// Node returns the node at index i.
func (g *Graph) Node(i int) Node { return g.nodes[i] }

// Edge returns the edge at index i.
func (g *Graph) Edge(i int) Edge { return g.edges[i] }

// Out returns the outgoing edge indices of node i. The slice must not be modified.
func (g *Graph) Out(i int) []int { return g.out[i] }

// In returns the incoming edge indices of node i. The slice must not be modified.
func (g *Graph) In(i int) []int { return g.in[i] }

// Lookup resolves a node ID to its index.
func (g *Graph) Lookup(id string) (int, bool) {
	i, ok := g.index[id]
	return i, ok
}

// LookupEdge resolves an edge ID to its index.
func (g *Graph) LookupEdge(id string) (int, bool) {
	i, ok := g.edgeByID[id]
	return i, ok
}

// MaxSpeedMps is the highest straight-line speed implied by any edge:
// great-circle distance between its endpoints divided by its travel time.
// Dividing a straight-line distance by it never overestimates travel time.
func (g *Graph) MaxSpeedMps() float64 { return g.maxSpeed }

// MaxTravelTimeSec is the longest single-edge travel time.
func (g *Graph) MaxTravelTimeSec() float64 { return g.maxTimeSec }

// Connected reports whether a and b share a weak component. False means no
// directed path can exist between them.
func (g *Graph) Connected(a, b int) bool { return g.comp[a] == g.comp[b] }

// SafeZones returns the indices of safe-zone nodes in index order.
func (g *Graph) SafeZones() []int {
	var out []int
	for i := range g.nodes {
		if g.nodes[i].SafeZone {
			out = append(out, i)
		}
	}
	return out
}

// Nearest snaps a coordinate to the closest node. Returns -1 on an empty graph.
func (g *Graph) Nearest(lat, lng float64) int {
	best, bestD := -1, math.Inf(1)
	for i := range g.nodes {
		d := Haversine(lat, lng, g.nodes[i].Lat, g.nodes[i].Lng)
		if d < bestD {
			best, bestD = i, d
		}
	}
	return best
}

// NodesByDistance returns the given node indices sorted by straight-line
// distance from (lat,lng), ties broken by node ID.
func (g *Graph) NodesByDistance(lat, lng float64, idx []int) []int {
	out := append([]int(nil), idx...)
	sort.SliceStable(out, func(a, b int) bool {
		na, nb := g.nodes[out[a]], g.nodes[out[b]]
		da := Haversine(lat, lng, na.Lat, na.Lng)
		db := Haversine(lat, lng, nb.Lat, nb.Lng)
		if da != db {
			return da < db
		}
		return na.ID < nb.ID
	})
	return out
}

// finalize computes derived indexes. Called once by the builder and by
// snapshot updates; nodes and edges must already be validated.
func (g *Graph) finalize() {
	n := len(g.nodes)
	g.out = make([][]int, n)
	g.in = make([][]int, n)
	g.edgeByID = make(map[string]int, len(g.edges))
	g.maxSpeed, g.maxTimeSec = 0, 0
	uf := newUnionFind(n)
	for i, e := range g.edges {
		g.out[e.From] = append(g.out[e.From], i)
		g.in[e.To] = append(g.in[e.To], i)
		g.edgeByID[e.ID] = i
		uf.union(e.From, e.To)
		a, b := g.nodes[e.From], g.nodes[e.To]
		if v := Haversine(a.Lat, a.Lng, b.Lat, b.Lng) / e.TravelTimeSec; v > g.maxSpeed {
			g.maxSpeed = v
		}
		if e.TravelTimeSec > g.maxTimeSec {
			g.maxTimeSec = e.TravelTimeSec
		}
	}
	g.comp = make([]int, n)
	for i := range g.comp {
		g.comp[i] = uf.find(i)
	}
}

type unionFind []int

func newUnionFind(n int) unionFind {
	uf := make(unionFind, n)
	for i := range uf {
		uf[i] = i
	}
	return uf
}

func (uf unionFind) find(x int) int {
	for uf[x] != x {
		uf[x] = uf[uf[x]]
		x = uf[x]
	}
	return x
}

func (uf unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra != rb {
		uf[ra] = rb
	}
}
