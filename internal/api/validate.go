package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"evacroute/internal/graph"
	"evacroute/internal/model"
	"evacroute/internal/opt"
)

// searchConfig overlays request options on base and validates the result.
func searchConfig(base opt.SearchConfig, o model.SearchOptions) (opt.SearchConfig, error) {
	cfg := base
	if o.RiskWeight != nil {
		cfg.RiskWeight = *o.RiskWeight
	}
	if o.TimeWeight != nil {
		cfg.TimeWeight = *o.TimeWeight
	}
	if o.NumPaths != nil {
		cfg.NumPaths = *o.NumPaths
	}
	if o.DiversityFactor != nil {
		cfg.DiversityFactor = *o.DiversityFactor
	}
	if o.UnknownRisk != nil {
		cfg.UnknownRisk = *o.UnknownRisk
	}
	if o.HeuristicWeight != nil {
		cfg.HeuristicWeight = *o.HeuristicWeight
	}
	if o.MaxExpansions != nil {
		cfg.MaxExpansions = *o.MaxExpansions
	}
	if o.TimeoutMs != nil {
		cfg.Timeout = time.Duration(*o.TimeoutMs) * time.Millisecond
	}
	if o.MaxSafeZones != nil {
		cfg.MaxSafeZones = *o.MaxSafeZones
	}
	if cfg.NumPaths > 10 {
		return opt.SearchConfig{}, fmt.Errorf("%w: numPaths must be <= 10", graph.ErrInvalidInput)
	}
	if err := cfg.Validate(); err != nil {
		return opt.SearchConfig{}, err
	}
	return cfg, nil
}

// optionsFromMap decodes a stored per-city override map.
func optionsFromMap(m map[string]any) (model.SearchOptions, error) {
	var o model.SearchOptions
	if len(m) == 0 {
		return o, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return o, err
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&o); err != nil {
		return o, fmt.Errorf("%w: %v", graph.ErrInvalidInput, err)
	}
	return o, nil
}

// resolveEndpoint returns the node ID for ep, snapping coordinates to the
// nearest node.
func resolveEndpoint(g *graph.Graph, ep model.Endpoint, name string) (string, error) {
	if ep.NodeID != "" {
		if _, ok := g.Lookup(ep.NodeID); !ok {
			return "", fmt.Errorf("%w: unknown %s node %q", graph.ErrInvalidInput, name, ep.NodeID)
		}
		return ep.NodeID, nil
	}
	if ep.Lat == nil || ep.Lng == nil {
		return "", fmt.Errorf("%w: %s needs nodeId or lat/lng", graph.ErrInvalidInput, name)
	}
	lat, lng := *ep.Lat, *ep.Lng
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return "", fmt.Errorf("%w: %s coordinate out of range", graph.ErrInvalidInput, name)
	}
	i := g.Nearest(lat, lng)
	if i < 0 {
		return "", fmt.Errorf("%w: graph is empty", graph.ErrInvalidInput)
	}
	return g.Node(i).ID, nil
}

var knownEvents = map[string]struct{}{
	model.EventGraphUpdated:      {},
	model.EventRoutesComputed:    {},
	model.EventEvacuationPlanned: {},
	model.EventHazardReported:    {},
	"*":                          {},
}

func validateSubscription(req *model.SubscriptionRequest) error {
	u, err := url.Parse(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("url must be an absolute http(s) URL")
	}
	if len(req.Events) == 0 {
		return fmt.Errorf("events must not be empty")
	}
	for _, e := range req.Events {
		if _, ok := knownEvents[e]; !ok {
			return fmt.Errorf("unknown event type: %s", e)
		}
	}
	return nil
}
