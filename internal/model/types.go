package model

import "time"

// Endpoint names one end of a route: a node ID, or a coordinate snapped to
// the nearest node of the city graph.
type Endpoint struct {
	NodeID string   `json:"nodeId,omitempty"`
	Lat    *float64 `json:"lat,omitempty"`
	Lng    *float64 `json:"lng,omitempty"`
}

// SearchOptions are per-request overrides; nil fields keep the city default.
type SearchOptions struct {
	RiskWeight      *float64 `json:"riskWeight,omitempty"`
	TimeWeight      *float64 `json:"timeWeight,omitempty"`
	NumPaths        *int     `json:"numPaths,omitempty"`
	DiversityFactor *float64 `json:"diversityFactor,omitempty"`
	UnknownRisk     *float64 `json:"unknownRisk,omitempty"`
	HeuristicWeight *float64 `json:"heuristicWeight,omitempty"`
	MaxExpansions   *int     `json:"maxExpansions,omitempty"`
	TimeoutMs       *int     `json:"timeoutMs,omitempty"`
	MaxSafeZones    *int     `json:"maxSafeZones,omitempty"`
}

type RouteRequest struct {
	City    string        `json:"city"`
	Source  Endpoint      `json:"source"`
	Target  Endpoint      `json:"target"`
	Options SearchOptions `json:"options"`
}

type EvacuateRequest struct {
	City    string        `json:"city"`
	Source  Endpoint      `json:"source"`
	Options SearchOptions `json:"options"`
}

// Route is one candidate route as returned to clients. Distance is metres,
// Time minutes.
type Route struct {
	ID               string       `json:"id"`
	Path             []string     `json:"path"`
	Edges            []string     `json:"edges"`
	Coordinates      [][2]float64 `json:"coordinates"`
	Distance         float64      `json:"distance"`
	Time             float64      `json:"time"`
	RiskLevel        float64      `json:"risk_level"`
	MaxRisk          float64      `json:"maxRisk"`
	Cost             float64      `json:"cost"`
	CriticalSegments int          `json:"criticalSegments"`
}

type PlanStats struct {
	Expansions int   `json:"expansions"`
	DurationMs int64 `json:"durationMs"`
}

// Plan is a persisted routing or evacuation result.
type Plan struct {
	ID           string    `json:"id"`
	City         string    `json:"city"`
	Kind         string    `json:"kind"` // routes, evacuate
	SourceID     string    `json:"sourceId"`
	TargetID     string    `json:"targetId"`
	GraphVersion int       `json:"graphVersion"`
	Routes       []Route   `json:"routes"`
	Stats        PlanStats `json:"stats"`
	CreatedAt    time.Time `json:"createdAt"`
}

// GraphInfo summarizes a stored city graph version.
type GraphInfo struct {
	City      string    `json:"city"`
	Version   int       `json:"version"`
	Nodes     int       `json:"nodes"`
	Edges     int       `json:"edges"`
	SafeZones int       `json:"safeZones"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// GraphUpdate carries per-edge risk and travel time changes keyed by edge ID.
type GraphUpdate struct {
	Risk          map[string]float64 `json:"risk,omitempty"`
	TravelTimeSec map[string]float64 `json:"travelTimeSec,omitempty"`
}

// HazardInput marks a circular area as dangerous.
type HazardInput struct {
	Type     string  `json:"type"` // fire, flood, ...
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	RadiusM  float64 `json:"radiusM"`
	Severity float64 `json:"severity"`
}

type Subscription struct {
	ID     string   `json:"id"`
	City   string   `json:"city"`
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Secret string   `json:"secret,omitempty"`
}

type SubscriptionRequest struct {
	City   string   `json:"city"`
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Secret string   `json:"secret,omitempty"`
}

// Event types published on the broker and to webhooks.
const (
	EventGraphUpdated      = "graph.updated"
	EventRoutesComputed    = "routes.computed"
	EventEvacuationPlanned = "evacuation.planned"
	EventHazardReported    = "hazard.reported"
)
