package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"evacroute/internal/auth"
	"evacroute/internal/model"
	"evacroute/internal/opt"
)

// OptimizerConfigHandler returns the effective search defaults for a city
func (s *Server) OptimizerConfigHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/optimizer/config" || r.Method != http.MethodGet {
		writeProblem(w, 404, "Not Found", "", r.URL.Path)
		return
	}
	city := s.cityParam(r, "")
	if city == "" {
		writeJSON(w, http.StatusOK, map[string]any{"defaults": s.Config.Search})
		return
	}
	if _, ok := s.authorize(w, r, city, auth.RoleViewer); !ok {
		return
	}
	cfg, err := s.cityDefaults(r.Context(), city)
	if err != nil {
		writeError(w, r, "Invalid city optimizer config", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"city": city, "defaults": cfg})
}

// AdminOptimizerConfigHandler gets or replaces a city's stored overrides.
// Keys are the request option names (riskWeight, numPaths, timeoutMs, ...).
func (s *Server) AdminOptimizerConfigHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/admin/optimizer/config" {
		writeProblem(w, 404, "Not Found", "", r.URL.Path)
		return
	}
	city := s.cityParam(r, "")
	if city == "" {
		writeProblem(w, 400, "Missing city", "", r.URL.Path)
		return
	}
	if _, ok := s.authorize(w, r, city, auth.RoleAdmin); !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		cfg, err := s.Store.GetOptimizerConfig(r.Context(), city)
		if err != nil {
			writeError(w, r, "Load config failed", err)
			return
		}
		if cfg == nil {
			cfg = map[string]any{}
		}
		writeJSON(w, 200, map[string]any{"city": city, "config": cfg})
	case http.MethodPut:
		var body struct {
			Config map[string]any `json:"config"`
		}
		if !decodeJSON(w, r, &body) {
			return
		}
		if body.Config == nil {
			writeProblem(w, 400, "Missing config", "", r.URL.Path)
			return
		}
		o, err := optionsFromMap(body.Config)
		if err != nil {
			writeError(w, r, "Invalid config", err)
			return
		}
		eff, err := searchConfig(s.Config.Search, o)
		if err != nil {
			writeError(w, r, "Invalid config", err)
			return
		}
		if err := s.Store.SaveOptimizerConfig(r.Context(), city, body.Config); err != nil {
			writeError(w, r, "Save failed", err)
			return
		}
		writeJSON(w, 200, map[string]any{"ok": true, "defaults": eff})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// SubscriptionsHandler handles POST/GET /v1/subscriptions
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/subscriptions" {
		writeProblem(w, 404, "Not Found", "", r.URL.Path)
		return
	}
	switch r.Method {
	case http.MethodPost:
		var req model.SubscriptionRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		req.City = s.cityParam(r, req.City)
		if req.City == "" {
			writeProblem(w, 400, "Missing city", "", r.URL.Path)
			return
		}
		if _, ok := s.authorize(w, r, req.City, auth.RoleAdmin); !ok {
			return
		}
		if err := validateSubscription(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid subscription", err.Error(), r.URL.Path)
			return
		}
		sub, err := s.Store.CreateSubscription(r.Context(), req)
		if err != nil {
			writeError(w, r, "Create subscription failed", err)
			return
		}
		sub.Secret = ""
		writeJSON(w, http.StatusCreated, sub)
	case http.MethodGet:
		city := s.cityParam(r, "")
		if city == "" {
			writeProblem(w, 400, "Missing city", "", r.URL.Path)
			return
		}
		if _, ok := s.authorize(w, r, city, auth.RoleAdmin); !ok {
			return
		}
		cursor, limit, err := pageParams(r)
		if err != nil {
			writeProblem(w, 400, "Invalid paging", err.Error(), r.URL.Path)
			return
		}
		items, next, err := s.Store.ListSubscriptions(r.Context(), city, cursor, limit)
		if err != nil {
			writeError(w, r, "List subscriptions failed", err)
			return
		}
		for i := range items {
			items[i].Secret = ""
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// SubscriptionByIDHandler handles DELETE /v1/subscriptions/{id}?city=
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
	if id == r.URL.Path || id == "" || strings.Contains(id, "/") {
		writeProblem(w, 404, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	city := s.cityParam(r, "")
	if city == "" {
		writeProblem(w, 400, "Missing city", "", r.URL.Path)
		return
	}
	if _, ok := s.authorize(w, r, city, auth.RoleAdmin); !ok {
		return
	}
	if err := s.Store.DeleteSubscription(r.Context(), city, id); err != nil {
		writeError(w, r, "Subscription not found", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// WebhookDeliveriesHandler handles GET /v1/admin/webhook-deliveries?city=&status=
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/admin/webhook-deliveries" || r.Method != http.MethodGet {
		writeProblem(w, 404, "Not Found", "", r.URL.Path)
		return
	}
	city, cursor, limit, ok := s.adminPage(w, r)
	if !ok {
		return
	}
	items, next, err := s.Store.ListWebhookDeliveries(r.Context(), city, r.URL.Query().Get("status"), cursor, limit)
	if err != nil {
		writeError(w, r, "List deliveries failed", err)
		return
	}
	writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
}

// WebhookDLQHandler handles GET /v1/admin/webhook-dlq and
// POST /v1/admin/webhook-dlq/{id}/requeue
func (s *Server) WebhookDLQHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/v1/admin/webhook-dlq" {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		city, cursor, limit, ok := s.adminPage(w, r)
		if !ok {
			return
		}
		items, next, err := s.Store.ListWebhookDLQ(r.Context(), city, cursor, limit)
		if err != nil {
			writeError(w, r, "List DLQ failed", err)
			return
		}
		writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/v1/admin/webhook-dlq/")
	id, ok := strings.CutSuffix(rest, "/requeue")
	if rest == r.URL.Path || !ok || id == "" || strings.Contains(id, "/") {
		writeProblem(w, 404, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	city := s.cityParam(r, "")
	if city == "" {
		writeProblem(w, 400, "Missing city", "", r.URL.Path)
		return
	}
	if _, ok := s.authorize(w, r, city, auth.RoleAdmin); !ok {
		return
	}
	if err := s.Store.RequeueWebhookDLQ(r.Context(), city, id); err != nil {
		writeError(w, r, "DLQ entry not found", err)
		return
	}
	writeJSON(w, 200, map[string]bool{"ok": true})
}

// StatsHandler handles GET /v1/admin/stats?city=
func (s *Server) StatsHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/admin/stats" || r.Method != http.MethodGet {
		writeProblem(w, 404, "Not Found", "", r.URL.Path)
		return
	}
	city := s.cityParam(r, "")
	if city == "" {
		writeProblem(w, 400, "Missing city", "", r.URL.Path)
		return
	}
	if _, ok := s.authorize(w, r, city, auth.RoleAdmin); !ok {
		return
	}
	st, _ := opt.GetStats(city)
	writeJSON(w, 200, map[string]any{"city": city, "stats": st})
}

func (s *Server) adminPage(w http.ResponseWriter, r *http.Request) (string, string, int, bool) {
	city := s.cityParam(r, "")
	if city == "" {
		writeProblem(w, 400, "Missing city", "", r.URL.Path)
		return "", "", 0, false
	}
	if _, ok := s.authorize(w, r, city, auth.RoleAdmin); !ok {
		return "", "", 0, false
	}
	cursor, limit, err := pageParams(r)
	if err != nil {
		writeProblem(w, 400, "Invalid paging", err.Error(), r.URL.Path)
		return "", "", 0, false
	}
	return city, cursor, limit, true
}

// HealthHandler is a liveness check.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadyHandler reports whether the store is reachable.
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.Store.Ping(ctx); err != nil {
		writeProblem(w, 503, "Not Ready", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// EventsStreamHandler streams city events as SSE: GET /v1/events/stream?city=
func (s *Server) EventsStreamHandler(w http.ResponseWriter, r *http.Request) {
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
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, 500, "Streaming unsupported", "", r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	ch := s.Broker.Subscribe(city)
	defer s.Broker.Unsubscribe(city, ch)

	heartbeat := func() {
		fmt.Fprintf(w, "event: heartbeat\n")
		fmt.Fprintf(w, "data: {\"city\":%q,\"ts\":%q}\n\n", city, time.Now().UTC().Format(time.RFC3339))
		flusher.Flush()
	}
	heartbeat()
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			b, _ := json.Marshal(evt.Data)
			fmt.Fprintf(w, "event: %s\n", evt.Type)
			fmt.Fprintf(w, "data: %s\n\n", string(b))
			flusher.Flush()
		case <-ticker.C:
			heartbeat()
		}
	}
}
