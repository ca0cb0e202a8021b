package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"evacroute/internal/auth"
	"evacroute/internal/model"
	"evacroute/internal/opt"
)

// RoutesHandler handles POST /v1/routes
func (s *Server) RoutesHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/routes" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req model.RouteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	city := s.cityParam(r, req.City)
	if city == "" {
		writeProblem(w, http.StatusBadRequest, "Missing city", "", r.URL.Path)
		return
	}
	if _, ok := s.authorize(w, r, city, auth.RoleViewer); !ok {
		return
	}
	snap, cfg, ok := s.prepareSearch(w, r, city, req.Options)
	if !ok {
		return
	}
	src, err := resolveEndpoint(snap.Graph, req.Source, "source")
	if err != nil {
		writeError(w, r, "Invalid source", err)
		return
	}
	dst, err := resolveEndpoint(snap.Graph, req.Target, "target")
	if err != nil {
		writeError(w, r, "Invalid target", err)
		return
	}
	start := time.Now()
	p, err := s.Planner.Routes(r.Context(), snap.Graph, city, src, dst, cfg)
	logSearch("routes", city, cfg, p, err, start)
	if err != nil {
		writeError(w, r, "Route search failed", err)
		return
	}
	plan := ToModelPlan(p, "routes", snap.Version)
	if err := s.Store.SavePlan(r.Context(), plan); err != nil {
		writeError(w, r, "Save plan failed", err)
		return
	}
	s.publish(r.Context(), city, model.EventRoutesComputed, map[string]any{
		"planId": plan.ID, "sourceId": plan.SourceID, "targetId": plan.TargetID, "routes": len(plan.Routes),
	})
	writeJSON(w, http.StatusOK, plan)
}

// EvacuateHandler handles POST /v1/evacuate
func (s *Server) EvacuateHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/evacuate" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req model.EvacuateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	city := s.cityParam(r, req.City)
	if city == "" {
		writeProblem(w, http.StatusBadRequest, "Missing city", "", r.URL.Path)
		return
	}
	if _, ok := s.authorize(w, r, city, auth.RoleViewer); !ok {
		return
	}
	snap, cfg, ok := s.prepareSearch(w, r, city, req.Options)
	if !ok {
		return
	}
	src, err := resolveEndpoint(snap.Graph, req.Source, "source")
	if err != nil {
		writeError(w, r, "Invalid source", err)
		return
	}
	start := time.Now()
	p, err := s.Planner.Evacuate(r.Context(), snap.Graph, city, src, cfg)
	logSearch("evacuate", city, cfg, p, err, start)
	if err != nil {
		writeError(w, r, "Evacuation planning failed", err)
		return
	}
	plan := ToModelPlan(p, "evacuate", snap.Version)
	if err := s.Store.SavePlan(r.Context(), plan); err != nil {
		writeError(w, r, "Save plan failed", err)
		return
	}
	best := plan.Routes[0]
	s.publish(r.Context(), city, model.EventEvacuationPlanned, map[string]any{
		"planId":           plan.ID,
		"sourceId":         plan.SourceID,
		"safeZoneId":       plan.TargetID,
		"routes":           len(plan.Routes),
		"riskLevel":        best.RiskLevel,
		"timeMinutes":      best.Time,
		"criticalSegments": best.CriticalSegments,
	})
	writeJSON(w, http.StatusOK, plan)
}

// prepareSearch loads the live graph and the effective search config:
// service defaults, then stored city overrides, then request options.
func (s *Server) prepareSearch(w http.ResponseWriter, r *http.Request, city string, o model.SearchOptions) (Snapshot, opt.SearchConfig, bool) {
	base, err := s.cityDefaults(r.Context(), city)
	if err != nil {
		writeError(w, r, "Invalid city optimizer config", err)
		return Snapshot{}, opt.SearchConfig{}, false
	}
	cfg, err := searchConfig(base, o)
	if err != nil {
		writeError(w, r, "Invalid options", err)
		return Snapshot{}, opt.SearchConfig{}, false
	}
	snap, err := s.snapshot(r.Context(), city)
	if err != nil {
		writeError(w, r, "Graph not found", err)
		return Snapshot{}, opt.SearchConfig{}, false
	}
	return snap, cfg, true
}

func (s *Server) cityDefaults(ctx context.Context, city string) (opt.SearchConfig, error) {
	stored, err := s.Store.GetOptimizerConfig(ctx, city)
	if err != nil {
		return opt.SearchConfig{}, err
	}
	o, err := optionsFromMap(stored)
	if err != nil {
		return opt.SearchConfig{}, err
	}
	return searchConfig(s.Config.Search, o)
}

func logSearch(kind, city string, cfg opt.SearchConfig, p opt.Plan, err error, start time.Time) {
	log.Printf("search kind=%s city=%s k=%d outcome=%s routes=%d expansions=%d duration_ms=%d",
		kind, city, cfg.NumPaths, opt.Outcome(err), len(p.Routes), p.Stats.Expansions, time.Since(start).Milliseconds())
}

// ToModelPlan converts a planner result to its wire form. Time is minutes.
func ToModelPlan(p opt.Plan, kind string, version int) model.Plan {
	out := model.Plan{
		ID:           p.ID,
		City:         p.City,
		Kind:         kind,
		SourceID:     p.SourceID,
		TargetID:     p.TargetID,
		GraphVersion: version,
		Routes:       make([]model.Route, len(p.Routes)),
		Stats:        model.PlanStats{Expansions: p.Stats.Expansions, DurationMs: p.Stats.DurationMs},
		CreatedAt:    p.CreatedAt,
	}
	for i, rt := range p.Routes {
		out.Routes[i] = model.Route{
			ID:               fmt.Sprintf("route_%d", i+1),
			Path:             rt.NodeIDs,
			Edges:            rt.EdgeIDs,
			Coordinates:      rt.Coords,
			Distance:         rt.DistanceM,
			Time:             rt.TimeMinutes(),
			RiskLevel:        rt.RiskLevel,
			MaxRisk:          rt.MaxRisk,
			Cost:             rt.Cost,
			CriticalSegments: rt.CriticalEdges,
		}
	}
	return out
}

// PlansHandler handles GET /v1/plans?city=&cursor=&limit=
func (s *Server) PlansHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/plans" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	city := s.cityParam(r, "")
	if city == "" {
		writeProblem(w, http.StatusBadRequest, "Missing city", "", r.URL.Path)
		return
	}
	if _, ok := s.authorize(w, r, city, auth.RoleViewer); !ok {
		return
	}
	cursor, limit, err := pageParams(r)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid paging", err.Error(), r.URL.Path)
		return
	}
	items, next, err := s.Store.ListPlans(r.Context(), city, cursor, limit)
	if err != nil {
		writeError(w, r, "List plans failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

// PlanByIDHandler handles GET /v1/plans/{id}
func (s *Server) PlanByIDHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/plans/")
	if id == r.URL.Path || id == "" || strings.Contains(id, "/") {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, ok := s.authenticate(w, r); !ok {
		return
	}
	p, err := s.Store.GetPlan(r.Context(), id)
	if err != nil {
		writeError(w, r, "Plan not found", err)
		return
	}
	if _, ok := s.authorize(w, r, p.City, auth.RoleViewer); !ok {
		return
	}
	writeJSON(w, http.StatusOK, p)
}
