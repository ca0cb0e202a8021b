package graph

import (
	"fmt"
	"math"
	"sort"
)

// Hazard is a circular hazard footprint (flood, fire, chemical release).
type Hazard struct {
	Type     string  `json:"type,omitempty"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	RadiusM  float64 `json:"radiusM"`
	Severity float64 `json:"severity"` // peak risk at the centre, in [0,1]
}

// WithRiskUpdates returns a copy of g with new risk scores for the named edges.
// g itself is left untouched so in-flight searches keep a consistent view.
func (g *Graph) WithRiskUpdates(risk map[string]float64) (*Graph, error) {
	ng := g.clone()
	for _, id := range sortedKeys(risk) {
		i, ok := ng.edgeByID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownEdge, id)
		}
		r := risk[id]
		if !finite(r) || r < 0 || r > 1 {
			return nil, fmt.Errorf("%w: edge %s risk must be in [0,1], got %v", ErrInvalidInput, id, r)
		}
		ng.edges[i].Risk, ng.edges[i].RiskKnown = r, true
	}
	ng.finalize()
	return ng, nil
}

// WithTravelTimeUpdates returns a copy of g with new travel times (traffic).
func (g *Graph) WithTravelTimeUpdates(times map[string]float64) (*Graph, error) {
	ng := g.clone()
	for _, id := range sortedKeys(times) {
		i, ok := ng.edgeByID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownEdge, id)
		}
		t := times[id]
		if !finite(t) || t <= 0 {
			return nil, fmt.Errorf("%w: edge %s travel time must be > 0, got %v", ErrInvalidInput, id, t)
		}
		ng.edges[i].TravelTimeSec = t
	}
	ng.finalize()
	return ng, nil
}

// WithHazard returns a copy of g where every edge whose midpoint lies within
// the hazard radius has its risk raised to at least severity*(1-d/radius).
// Edges of unknown risk inside the radius become known at no less than
// DefaultUnknownRisk.
func (g *Graph) WithHazard(h Hazard) (*Graph, error) {
	if !validCoord(h.Lat, h.Lng) || !finite(h.RadiusM) || h.RadiusM <= 0 {
		return nil, fmt.Errorf("%w: hazard needs a valid centre and radius > 0", ErrInvalidInput)
	}
	if !finite(h.Severity) || h.Severity < 0 || h.Severity > 1 {
		return nil, fmt.Errorf("%w: hazard severity must be in [0,1], got %v", ErrInvalidInput, h.Severity)
	}
	ng := g.clone()
	for i := range ng.edges {
		e := &ng.edges[i]
		a, b := ng.nodes[e.From], ng.nodes[e.To]
		d := Haversine(h.Lat, h.Lng, (a.Lat+b.Lat)/2, (a.Lng+b.Lng)/2)
		if d > h.RadiusM {
			continue
		}
		r := h.Severity * (1 - d/h.RadiusM)
		switch {
		case e.RiskKnown && r > e.Risk:
			e.Risk = r
		case !e.RiskKnown:
			e.Risk, e.RiskKnown = math.Max(r, DefaultUnknownRisk), true
		}
	}
	ng.finalize()
	return ng, nil
}

// clone copies the mutable parts; nodes and the id index are shared since
// no update touches them.
func (g *Graph) clone() *Graph {
	return &Graph{
		nodes: g.nodes,
		index: g.index,
		edges: append([]Edge(nil), g.edges...),
	}
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
