package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"evacroute/internal/auth"
	"evacroute/internal/graph"
	"evacroute/internal/model"
)

// GraphsHandler handles POST/GET /v1/graphs
func (s *Server) GraphsHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/graphs" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	switch r.Method {
	case http.MethodPost:
		var doc graph.Document
		if !decodeJSON(w, r, &doc) {
			return
		}
		if doc.City == "" {
			writeProblem(w, http.StatusBadRequest, "Missing city", "", r.URL.Path)
			return
		}
		if _, ok := s.authorize(w, r, doc.City, auth.RolePlanner); !ok {
			return
		}
		g, err := graph.FromDocument(doc)
		if err != nil {
			writeError(w, r, "Invalid graph", err)
			return
		}
		s.Graphs.writeMu.Lock()
		snap, err := s.replaceGraph(r.Context(), doc.City, g)
		s.Graphs.writeMu.Unlock()
		if err != nil {
			writeError(w, r, "Save graph failed", err)
			return
		}
		info := snapshotInfo(snap)
		log.Printf("graph city=%s version=%d nodes=%d edges=%d uploaded", snap.City, snap.Version, info.Nodes, info.Edges)
		s.publish(r.Context(), snap.City, model.EventGraphUpdated, map[string]any{"version": snap.Version, "reason": "upload"})
		writeJSON(w, http.StatusCreated, info)
	case http.MethodGet:
		pr, ok := s.authenticate(w, r)
		if !ok {
			return
		}
		items, err := s.Store.ListGraphs(r.Context())
		if err != nil {
			writeError(w, r, "List graphs failed", err)
			return
		}
		out := []model.GraphInfo{}
		for _, it := range items {
			if pr.Can(it.City, auth.RoleViewer) {
				out = append(out, it)
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": out})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// GraphByCityHandler handles
//
//	GET  /v1/graphs/{city}
//	GET  /v1/graphs/{city}/document
//	POST /v1/graphs/{city}/risk
//	POST /v1/graphs/{city}/hazards
func (s *Server) GraphByCityHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/graphs/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	city := parts[0]
	if rest == r.URL.Path || city == "" || len(parts) > 2 {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}
	switch {
	case action == "" && r.Method == http.MethodGet:
		if _, ok := s.authorize(w, r, city, auth.RoleViewer); !ok {
			return
		}
		snap, err := s.snapshot(r.Context(), city)
		if err != nil {
			writeError(w, r, "Graph not found", err)
			return
		}
		writeJSON(w, http.StatusOK, snapshotInfo(snap))
	case action == "document" && r.Method == http.MethodGet:
		if _, ok := s.authorize(w, r, city, auth.RoleViewer); !ok {
			return
		}
		snap, err := s.snapshot(r.Context(), city)
		if err != nil {
			writeError(w, r, "Graph not found", err)
			return
		}
		w.Header().Set("X-Graph-Version", fmt.Sprint(snap.Version))
		writeJSON(w, http.StatusOK, snap.Graph.ToDocument(city))
	case action == "risk" && r.Method == http.MethodPost:
		if _, ok := s.authorize(w, r, city, auth.RolePlanner); !ok {
			return
		}
		var upd model.GraphUpdate
		if !decodeJSON(w, r, &upd) {
			return
		}
		if len(upd.Risk) == 0 && len(upd.TravelTimeSec) == 0 {
			writeProblem(w, http.StatusBadRequest, "Empty update", "risk or travelTimeSec required", r.URL.Path)
			return
		}
		snap, err := s.updateGraph(r.Context(), city, func(g *graph.Graph) (*graph.Graph, error) {
			ng, err := g.WithRiskUpdates(upd.Risk)
			if err != nil {
				return nil, err
			}
			return ng.WithTravelTimeUpdates(upd.TravelTimeSec)
		})
		if err != nil {
			writeError(w, r, "Graph update failed", err)
			return
		}
		log.Printf("graph city=%s version=%d risk_updates=%d time_updates=%d", city, snap.Version, len(upd.Risk), len(upd.TravelTimeSec))
		s.publish(r.Context(), city, model.EventGraphUpdated, map[string]any{"version": snap.Version, "reason": "risk", "risk": len(upd.Risk), "travelTime": len(upd.TravelTimeSec)})
		writeJSON(w, http.StatusOK, snapshotInfo(snap))
	case action == "hazards" && r.Method == http.MethodPost:
		if _, ok := s.authorize(w, r, city, auth.RolePlanner); !ok {
			return
		}
		var in model.HazardInput
		if !decodeJSON(w, r, &in) {
			return
		}
		h := graph.Hazard{Type: in.Type, Lat: in.Lat, Lng: in.Lng, RadiusM: in.RadiusM, Severity: in.Severity}
		snap, err := s.updateGraph(r.Context(), city, func(g *graph.Graph) (*graph.Graph, error) { return g.WithHazard(h) })
		if err != nil {
			writeError(w, r, "Hazard update failed", err)
			return
		}
		log.Printf("hazard city=%s type=%s radius_m=%.0f severity=%.2f version=%d", city, in.Type, in.RadiusM, in.Severity, snap.Version)
		s.publish(r.Context(), city, model.EventHazardReported, map[string]any{"version": snap.Version, "hazard": in})
		s.publish(r.Context(), city, model.EventGraphUpdated, map[string]any{"version": snap.Version, "reason": "hazard"})
		writeJSON(w, http.StatusOK, snapshotInfo(snap))
	case action == "" || action == "document" || action == "risk" || action == "hazards":
		w.WriteHeader(http.StatusMethodNotAllowed)
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
	}
}

func snapshotInfo(snap Snapshot) model.GraphInfo {
	return model.GraphInfo{
		City:      snap.City,
		Version:   snap.Version,
		Nodes:     snap.Graph.NodeCount(),
		Edges:     snap.Graph.EdgeCount(),
		SafeZones: len(snap.Graph.SafeZones()),
	}
}

// publish fans an event out to stream clients and enqueues webhooks.
func (s *Server) publish(ctx context.Context, city, eventType string, data map[string]any) {
	s.Broker.Publish(city, SSEEvent{Type: eventType, Data: data})
	if s.Pub != nil {
		s.Pub.Emit(ctx, city, eventType, data)
	}
}
