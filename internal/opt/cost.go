package opt

import "evacroute/internal/graph"

// CostModel blends an edge's travel time and risk into one scalar and
// supplies the A* heuristic for a fixed graph and config.
//
//	cost(e) = tw * time(e)/timeScale + rw * risk(e)
//
// with rw, tw normalized to sum to one. The heuristic only bounds the time
// term; geometry says nothing about risk still ahead.
type CostModel struct {
	g           *graph.Graph
	rw, tw      float64
	unknownRisk float64
	timeScale   float64
	hScale      float64 // multiplies straight-line metres into cost units
}

// NewCostModel assumes cfg has been validated.
func NewCostModel(g *graph.Graph, cfg SearchConfig) *CostModel {
	sum := cfg.RiskWeight + cfg.TimeWeight
	m := &CostModel{
		g:           g,
		rw:          cfg.RiskWeight / sum,
		tw:          cfg.TimeWeight / sum,
		unknownRisk: cfg.UnknownRisk,
		timeScale:   cfg.TimeScaleSec,
	}
	if m.timeScale <= 0 {
		m.timeScale = g.MaxTravelTimeSec()
	}
	if m.timeScale <= 0 {
		m.timeScale = 1
	}
	if v := g.MaxSpeedMps(); v > 0 {
		m.hScale = cfg.HeuristicWeight * m.tw / (v * m.timeScale)
	}
	return m
}

// Risk returns the edge risk, substituting the configured default when unknown.
func (m *CostModel) Risk(e graph.Edge) float64 {
	if !e.RiskKnown {
		return m.unknownRisk
	}
	return e.Risk
}

// NormalizedTime scales travel time to the same order of magnitude as risk.
func (m *CostModel) NormalizedTime(e graph.Edge) float64 {
	return e.TravelTimeSec / m.timeScale
}

// EdgeCost is the unpenalized scalar cost of traversing e.
func (m *CostModel) EdgeCost(e graph.Edge) float64 {
	return m.tw*m.NormalizedTime(e) + m.rw*m.Risk(e)
}

// Heuristic is a lower bound on the remaining cost from node to target:
// straight-line distance at the graph's fastest straight-line speed, priced
// by the time weight alone.
func (m *CostModel) Heuristic(node, target int) float64 {
	if m.hScale == 0 || node == target {
		return 0
	}
	a, b := m.g.Node(node), m.g.Node(target)
	return m.hScale * graph.Haversine(a.Lat, a.Lng, b.Lat, b.Lng)
}

// TimeScaleSec reports the divisor actually used for travel time.
func (m *CostModel) TimeScaleSec() float64 { return m.timeScale }
