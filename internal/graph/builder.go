package graph

import (
	"fmt"
	"strconv"
)

// EdgeInput describes an edge by node IDs. Risk is optional: nil means the
// hazard signal is unknown and the cost model substitutes its pessimistic default.
// A zero TravelTimeSec is derived from LengthM at DefaultSpeedMps.
type EdgeInput struct {
	ID            string
	From, To      string
	LengthM       float64
	TravelTimeSec float64
	Risk          *float64
}

// Builder accumulates nodes and edges and validates them in Build.
// The first problem found is reported; later additions are ignored.
type Builder struct {
	nodes []Node
	index map[string]int
	edges []EdgeInput
	err   error
}

func NewBuilder() *Builder {
	return &Builder{index: map[string]int{}}
}

// AddNode registers a node. Duplicate or empty IDs and bad coordinates fail the build.
func (b *Builder) AddNode(n Node) *Builder {
	if b.err != nil {
		return b
	}
	switch {
	case n.ID == "":
		b.err = fmt.Errorf("%w: node with empty id", ErrInvalidInput)
	case !validCoord(n.Lat, n.Lng):
		b.err = fmt.Errorf("%w: node %s has invalid coordinates (%v,%v)", ErrInvalidInput, n.ID, n.Lat, n.Lng)
	default:
		if _, dup := b.index[n.ID]; dup {
			b.err = fmt.Errorf("%w: duplicate node %s", ErrInvalidInput, n.ID)
			return b
		}
		b.index[n.ID] = len(b.nodes)
		b.nodes = append(b.nodes, n)
	}
	return b
}

// AddEdge registers a directed edge; endpoints are resolved in Build so edges
// may be added before their nodes.
func (b *Builder) AddEdge(e EdgeInput) *Builder {
	if b.err != nil {
		return b
	}
	b.edges = append(b.edges, e)
	return b
}

// Build validates the accumulated input and returns an immutable Graph.
func (b *Builder) Build() (*Graph, error) {
	if b.err != nil {
		return nil, b.err
	}
	g := &Graph{
		nodes: append([]Node(nil), b.nodes...),
		edges: make([]Edge, 0, len(b.edges)),
		index: make(map[string]int, len(b.nodes)),
	}
	for id, i := range b.index {
		g.index[id] = i
	}
	seen := make(map[string]struct{}, len(b.edges))
	for i, in := range b.edges {
		e, err := b.resolve(i, in)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[e.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate edge %s", ErrInvalidInput, e.ID)
		}
		seen[e.ID] = struct{}{}
		g.edges = append(g.edges, e)
	}
	g.finalize()
	return g, nil
}

func (b *Builder) resolve(i int, in EdgeInput) (Edge, error) {
	id := in.ID
	if id == "" {
		id = "e" + strconv.Itoa(i)
	}
	from, ok := b.index[in.From]
	if !ok {
		return Edge{}, fmt.Errorf("%w: edge %s references unknown node %q", ErrInvalidInput, id, in.From)
	}
	to, ok := b.index[in.To]
	if !ok {
		return Edge{}, fmt.Errorf("%w: edge %s references unknown node %q", ErrInvalidInput, id, in.To)
	}
	if !finite(in.LengthM) || in.LengthM <= 0 {
		return Edge{}, fmt.Errorf("%w: edge %s length must be > 0, got %v", ErrInvalidInput, id, in.LengthM)
	}
	tt := in.TravelTimeSec
	if !finite(tt) || tt < 0 {
		return Edge{}, fmt.Errorf("%w: edge %s travel time must be >= 0, got %v", ErrInvalidInput, id, tt)
	}
	if tt == 0 {
		tt = in.LengthM / DefaultSpeedMps
	}
	e := Edge{ID: id, From: from, To: to, LengthM: in.LengthM, TravelTimeSec: tt}
	if in.Risk != nil {
		r := *in.Risk
		if !finite(r) || r < 0 || r > 1 {
			return Edge{}, fmt.Errorf("%w: edge %s risk must be in [0,1], got %v", ErrInvalidInput, id, r)
		}
		e.Risk, e.RiskKnown = r, true
	}
	return e, nil
}
