package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"evacroute/internal/auth"
	"evacroute/internal/config"
	"evacroute/internal/model"
)

// A→B→D is slow but safe, A→C→D fast but hazardous; D and E are safe
// zones and E is unreachable.
const cityGraph = `{
  "city": "paris",
  "nodes": [
    {"id": "A", "lat": 0, "lng": 0},
    {"id": "B", "lat": 0.0005, "lng": 0.0005},
    {"id": "C", "lat": -0.0005, "lng": 0.0005},
    {"id": "D", "lat": 0, "lng": 0.001, "safeZone": true},
    {"id": "E", "lat": 1, "lng": 1, "safeZone": true}
  ],
  "edges": [
    {"id": "ab", "from": "A", "to": "B", "lengthM": 100, "travelTimeSec": 10, "risk": 0.1},
    {"id": "bd", "from": "B", "to": "D", "lengthM": 100, "travelTimeSec": 10, "risk": 0.1},
    {"id": "ac", "from": "A", "to": "C", "lengthM": 100, "travelTimeSec": 8, "risk": 0.9},
    {"id": "cd", "from": "C", "to": "D", "lengthM": 100, "travelTimeSec": 8, "risk": 0.9}
  ]
}`

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := NewServer(config.Default())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func call(h http.HandlerFunc, method, path, body string, hdr ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	rr := httptest.NewRecorder()
	h(rr, req)
	return rr
}

func seedGraph(t *testing.T, s *Server) {
	t.Helper()
	rr := call(s.GraphsHandler, http.MethodPost, "/v1/graphs", cityGraph)
	if rr.Code != http.StatusCreated {
		t.Fatalf("upload graph: %d %s", rr.Code, rr.Body.String())
	}
}

func decodePlan(t *testing.T, rr *httptest.ResponseRecorder) model.Plan {
	t.Helper()
	var p model.Plan
	if err := json.Unmarshal(rr.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode plan: %v (%s)", err, rr.Body.String())
	}
	return p
}

func problemType(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var p Problem
	if err := json.Unmarshal(rr.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode problem: %v", err)
	}
	return p.Type
}

func TestHealthReady(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != 200 {
		t.Fatalf("health: got %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.ReadyHandler(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != 200 {
		t.Fatalf("ready: got %d", rr.Code)
	}
}

func TestGraphUploadAndInfo(t *testing.T) {
	s := newTestServer(t)
	seedGraph(t, s)

	rr := call(s.GraphByCityHandler, http.MethodGet, "/v1/graphs/paris", "")
	if rr.Code != 200 {
		t.Fatalf("graph info: %d", rr.Code)
	}
	var info model.GraphInfo
	_ = json.Unmarshal(rr.Body.Bytes(), &info)
	if info.Version != 1 || info.Nodes != 5 || info.Edges != 4 || info.SafeZones != 2 {
		t.Fatalf("unexpected info: %+v", info)
	}
	rr = call(s.GraphsHandler, http.MethodGet, "/v1/graphs", "")
	if rr.Code != 200 || !strings.Contains(rr.Body.String(), `"city":"paris"`) {
		t.Fatalf("graph list: %d %s", rr.Code, rr.Body.String())
	}
	rr = call(s.GraphByCityHandler, http.MethodGet, "/v1/graphs/paris/document", "")
	if rr.Code != 200 || rr.Header().Get("X-Graph-Version") != "1" {
		t.Fatalf("document: %d %v", rr.Code, rr.Header())
	}

	bad := `{"city":"paris","nodes":[{"id":"A","lat":0,"lng":0}],"edges":[{"from":"A","to":"Z","lengthM":1}]}`
	if rr := call(s.GraphsHandler, http.MethodPost, "/v1/graphs", bad); rr.Code != http.StatusBadRequest {
		t.Fatalf("invalid graph: want 400, got %d", rr.Code)
	}
	if rr := call(s.GraphByCityHandler, http.MethodGet, "/v1/graphs/lyon", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown city: want 404, got %d", rr.Code)
	}
}

func TestRoutesPreferSafePath(t *testing.T) {
	s := newTestServer(t)
	seedGraph(t, s)

	rr := call(s.RoutesHandler, http.MethodPost, "/v1/routes", `{"city":"paris","source":{"nodeId":"A"},"target":{"nodeId":"D"}}`)
	if rr.Code != 200 {
		t.Fatalf("routes: %d %s", rr.Code, rr.Body.String())
	}
	p := decodePlan(t, rr)
	if len(p.Routes) == 0 || strings.Join(p.Routes[0].Path, ",") != "A,B,D" {
		t.Fatalf("expected A,B,D first, got %+v", p.Routes)
	}
	r0 := p.Routes[0]
	if r0.Distance != 200 || r0.Time != 20.0/60 || r0.RiskLevel < 0.099 || r0.RiskLevel > 0.101 || len(r0.Coordinates) != 3 {
		t.Fatalf("route breakdown: %+v", r0)
	}
	if p.Kind != "routes" || p.GraphVersion != 1 || p.ID == "" {
		t.Fatalf("plan header: %+v", p)
	}

	// coordinates snap to the nearest node
	rr = call(s.RoutesHandler, http.MethodPost, "/v1/routes", `{"city":"paris","source":{"lat":0.00001,"lng":0},"target":{"nodeId":"D"},"options":{"numPaths":1}}`)
	if rr.Code != 200 || decodePlan(t, rr).SourceID != "A" {
		t.Fatalf("snapped routes: %d %s", rr.Code, rr.Body.String())
	}

	rr = call(s.PlansHandler, http.MethodGet, "/v1/plans?city=paris&limit=10", "")
	var page struct {
		Items []model.Plan `json:"items"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &page)
	if rr.Code != 200 || len(page.Items) != 2 {
		t.Fatalf("plans: %d %d", rr.Code, len(page.Items))
	}
	rr = call(s.PlanByIDHandler, http.MethodGet, "/v1/plans/"+p.ID, "")
	if rr.Code != 200 || decodePlan(t, rr).ID != p.ID {
		t.Fatalf("plan by id: %d", rr.Code)
	}
	if rr := call(s.PlanByIDHandler, http.MethodGet, "/v1/plans/nope", ""); rr.Code != 404 {
		t.Fatalf("missing plan: %d", rr.Code)
	}
}

func TestRoutesErrors(t *testing.T) {
	s := newTestServer(t)
	seedGraph(t, s)
	cases := []struct {
		name, body string
		code       int
		typ        string
	}{
		{"unreachable", `{"city":"paris","source":{"nodeId":"A"},"target":{"nodeId":"E"}}`, 422, "route.unreachable"},
		{"unknown node", `{"city":"paris","source":{"nodeId":"Q"},"target":{"nodeId":"D"}}`, 400, "request.invalid"},
		{"bad options", `{"city":"paris","source":{"nodeId":"A"},"target":{"nodeId":"D"},"options":{"numPaths":0}}`, 400, "request.invalid"},
		{"both weights zero", `{"city":"paris","source":{"nodeId":"A"},"target":{"nodeId":"D"},"options":{"riskWeight":0,"timeWeight":0}}`, 400, "request.invalid"},
		{"budget", `{"city":"paris","source":{"nodeId":"A"},"target":{"nodeId":"D"},"options":{"maxExpansions":1}}`, 504, "route.timeout"},
		{"no endpoint", `{"city":"paris","source":{},"target":{"nodeId":"D"}}`, 400, "request.invalid"},
	}
	for _, c := range cases {
		rr := call(s.RoutesHandler, http.MethodPost, "/v1/routes", c.body)
		if rr.Code != c.code || problemType(t, rr) != c.typ {
			t.Errorf("%s: got %d %s", c.name, rr.Code, rr.Body.String())
		}
	}
	if rr := call(s.RoutesHandler, http.MethodPost, "/v1/routes", `{"city":"lyon","source":{"nodeId":"A"},"target":{"nodeId":"D"}}`); rr.Code != 404 {
		t.Errorf("unknown city: %d", rr.Code)
	}
	if rr := call(s.RoutesHandler, http.MethodPost, "/v1/routes", `{"city":"paris","bogus":1}`); rr.Code != 400 {
		t.Errorf("unknown field: %d", rr.Code)
	}
	if rr := call(s.RoutesHandler, http.MethodGet, "/v1/routes", ""); rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET routes: %d", rr.Code)
	}
}

func TestRiskUpdateReroutes(t *testing.T) {
	s := newTestServer(t)
	seedGraph(t, s)
	rr := call(s.GraphByCityHandler, http.MethodPost, "/v1/graphs/paris/risk", `{"risk":{"ab":1,"bd":1}}`)
	if rr.Code != 200 {
		t.Fatalf("risk update: %d %s", rr.Code, rr.Body.String())
	}
	var info model.GraphInfo
	_ = json.Unmarshal(rr.Body.Bytes(), &info)
	if info.Version != 2 {
		t.Fatalf("version after update: %d", info.Version)
	}
	rr = call(s.RoutesHandler, http.MethodPost, "/v1/routes", `{"city":"paris","source":{"nodeId":"A"},"target":{"nodeId":"D"},"options":{"numPaths":1}}`)
	p := decodePlan(t, rr)
	if strings.Join(p.Routes[0].Path, ",") != "A,C,D" || p.GraphVersion != 2 {
		t.Fatalf("expected reroute via C on v2, got %+v", p)
	}

	if rr := call(s.GraphByCityHandler, http.MethodPost, "/v1/graphs/paris/risk", `{"risk":{"zz":0.5}}`); rr.Code != 400 {
		t.Fatalf("unknown edge: %d", rr.Code)
	}
	if rr := call(s.GraphByCityHandler, http.MethodPost, "/v1/graphs/paris/risk", `{}`); rr.Code != 400 {
		t.Fatalf("empty update: %d", rr.Code)
	}

	// a restart reloads the latest stored version
	s.Graphs = NewGraphCache()
	snap, err := s.snapshot(context.Background(), "paris")
	if err != nil || snap.Version != 2 {
		t.Fatalf("reload: %+v %v", snap, err)
	}
}

func TestHazardReport(t *testing.T) {
	s := newTestServer(t)
	seedGraph(t, s)
	ch := s.Broker.Subscribe("paris")
	defer s.Broker.Unsubscribe("paris", ch)

	rr := call(s.GraphByCityHandler, http.MethodPost, "/v1/graphs/paris/hazards", `{"type":"fire","lat":0.0005,"lng":0.0005,"radiusM":80,"severity":1}`)
	if rr.Code != 200 {
		t.Fatalf("hazard: %d %s", rr.Code, rr.Body.String())
	}
	got := map[string]bool{}
	for len(got) < 2 {
		select {
		case evt := <-ch:
			got[evt.Type] = true
		case <-time.After(time.Second):
			t.Fatalf("missing events, got %v", got)
		}
	}
	if !got[model.EventHazardReported] || !got[model.EventGraphUpdated] {
		t.Fatalf("events: %v", got)
	}
	if rr := call(s.GraphByCityHandler, http.MethodPost, "/v1/graphs/paris/hazards", `{"lat":0,"lng":0,"radiusM":0,"severity":1}`); rr.Code != 400 {
		t.Fatalf("bad hazard: %d", rr.Code)
	}
}

func TestEvacuate(t *testing.T) {
	s := newTestServer(t)
	seedGraph(t, s)
	ch := s.Broker.Subscribe("paris")
	defer s.Broker.Unsubscribe("paris", ch)

	rr := call(s.EvacuateHandler, http.MethodPost, "/v1/evacuate", `{"city":"paris","source":{"nodeId":"A"}}`)
	if rr.Code != 200 {
		t.Fatalf("evacuate: %d %s", rr.Code, rr.Body.String())
	}
	p := decodePlan(t, rr)
	if p.TargetID != "D" || p.Kind != "evacuate" {
		t.Fatalf("plan: %+v", p)
	}
	select {
	case evt := <-ch:
		if evt.Type != model.EventEvacuationPlanned || evt.Data["safeZoneId"] != "D" {
			t.Fatalf("event: %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("no evacuation event")
	}

	// E is a safe zone with no way out
	rr = call(s.EvacuateHandler, http.MethodPost, "/v1/evacuate", `{"city":"paris","source":{"nodeId":"E"}}`)
	if rr.Code != 200 || decodePlan(t, rr).TargetID != "E" {
		t.Fatalf("evacuate from zone: %d %s", rr.Code, rr.Body.String())
	}
}

func TestOptimizerConfig(t *testing.T) {
	s := newTestServer(t)
	rr := call(s.AdminOptimizerConfigHandler, http.MethodPut, "/v1/admin/optimizer/config?city=paris", `{"config":{"riskWeight":0.9,"numPaths":2}}`)
	if rr.Code != 200 {
		t.Fatalf("put config: %d %s", rr.Code, rr.Body.String())
	}
	rr = call(s.OptimizerConfigHandler, http.MethodGet, "/v1/optimizer/config?city=paris", "")
	var body struct {
		Defaults struct {
			RiskWeight float64 `json:"riskWeight"`
			TimeWeight float64 `json:"timeWeight"`
			NumPaths   int     `json:"numPaths"`
		} `json:"defaults"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &body)
	if body.Defaults.RiskWeight != 0.9 || body.Defaults.TimeWeight != 0.3 || body.Defaults.NumPaths != 2 {
		t.Fatalf("effective config: %s", rr.Body.String())
	}
	if rr := call(s.AdminOptimizerConfigHandler, http.MethodPut, "/v1/admin/optimizer/config?city=paris", `{"config":{"numPaths":0}}`); rr.Code != 400 {
		t.Fatalf("invalid config accepted: %d", rr.Code)
	}
	if rr := call(s.AdminOptimizerConfigHandler, http.MethodPut, "/v1/admin/optimizer/config?city=paris", `{"config":{"algorithm":"alns"}}`); rr.Code != 400 {
		t.Fatalf("unknown key accepted: %d", rr.Code)
	}
}

func TestSubscriptionsEnqueueWebhooks(t *testing.T) {
	s := newTestServer(t)
	seedGraph(t, s)
	rr := call(s.SubscriptionsHandler, http.MethodPost, "/v1/subscriptions", `{"city":"paris","url":"https://hooks.example.invalid/evac","events":["routes.computed"],"secret":"k"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create sub: %d %s", rr.Code, rr.Body.String())
	}
	var sub model.Subscription
	_ = json.Unmarshal(rr.Body.Bytes(), &sub)
	if sub.ID == "" || sub.Secret != "" {
		t.Fatalf("subscription response: %+v", sub)
	}
	if rr := call(s.SubscriptionsHandler, http.MethodPost, "/v1/subscriptions", `{"city":"paris","url":"ftp://x","events":["routes.computed"]}`); rr.Code != 400 {
		t.Fatalf("bad url accepted: %d", rr.Code)
	}
	if rr := call(s.SubscriptionsHandler, http.MethodPost, "/v1/subscriptions", `{"city":"paris","url":"https://x.invalid","events":["stop.advanced"]}`); rr.Code != 400 {
		t.Fatalf("unknown event accepted: %d", rr.Code)
	}

	call(s.RoutesHandler, http.MethodPost, "/v1/routes", `{"city":"paris","source":{"nodeId":"A"},"target":{"nodeId":"D"}}`)
	rr = call(s.WebhookDeliveriesHandler, http.MethodGet, "/v1/admin/webhook-deliveries?city=paris", "")
	var page struct {
		Items []map[string]any `json:"items"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &page)
	if rr.Code != 200 || len(page.Items) != 1 || page.Items[0]["eventType"] != model.EventRoutesComputed {
		t.Fatalf("deliveries: %d %s", rr.Code, rr.Body.String())
	}

	rr = call(s.WebhookDLQHandler, http.MethodGet, "/v1/admin/webhook-dlq?city=paris", "")
	if rr.Code != 200 {
		t.Fatalf("dlq: %d", rr.Code)
	}
	if rr := call(s.WebhookDLQHandler, http.MethodPost, "/v1/admin/webhook-dlq/nope/requeue?city=paris", ""); rr.Code != 404 {
		t.Fatalf("requeue missing: %d", rr.Code)
	}

	if rr := call(s.SubscriptionByIDHandler, http.MethodDelete, "/v1/subscriptions/"+sub.ID+"?city=paris", ""); rr.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rr.Code)
	}
	if rr := call(s.SubscriptionByIDHandler, http.MethodDelete, "/v1/subscriptions/"+sub.ID+"?city=paris", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("delete twice: %d", rr.Code)
	}
}

func TestStats(t *testing.T) {
	s := newTestServer(t)
	seedGraph(t, s)
	call(s.RoutesHandler, http.MethodPost, "/v1/routes", `{"city":"paris","source":{"nodeId":"A"},"target":{"nodeId":"E"}}`)
	rr := call(s.StatsHandler, http.MethodGet, "/v1/admin/stats?city=paris", "")
	if rr.Code != 200 || !strings.Contains(rr.Body.String(), `"unreachable"`) {
		t.Fatalf("stats: %d %s", rr.Code, rr.Body.String())
	}
}

func TestHMACAuth(t *testing.T) {
	cfg := config.Default()
	cfg.Auth = config.Auth{Mode: "hmac", HMACSecret: "k"}
	s, err := NewServer(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	token := func(city, role string) string {
		tok, err := s.Auth.Issue(auth.Principal{City: city, Role: role}, time.Hour)
		if err != nil {
			t.Fatal(err)
		}
		return "Bearer " + tok
	}

	if rr := call(s.GraphsHandler, http.MethodPost, "/v1/graphs", cityGraph); rr.Code != http.StatusUnauthorized {
		t.Fatalf("no token: %d", rr.Code)
	}
	if rr := call(s.GraphsHandler, http.MethodPost, "/v1/graphs", cityGraph, "X-Role", "admin"); rr.Code != http.StatusUnauthorized {
		t.Fatalf("header fallback outside dev mode: %d", rr.Code)
	}
	if rr := call(s.GraphsHandler, http.MethodPost, "/v1/graphs", cityGraph, "Authorization", token("paris", auth.RoleViewer)); rr.Code != http.StatusForbidden {
		t.Fatalf("viewer upload: %d", rr.Code)
	}
	if rr := call(s.GraphsHandler, http.MethodPost, "/v1/graphs", cityGraph, "Authorization", token("paris", auth.RolePlanner)); rr.Code != http.StatusCreated {
		t.Fatalf("planner upload: %d %s", rr.Code, rr.Body.String())
	}
	if rr := call(s.GraphByCityHandler, http.MethodGet, "/v1/graphs/paris", "", "Authorization", token("lyon", auth.RoleAdmin)); rr.Code != http.StatusForbidden {
		t.Fatalf("cross-city read: %d", rr.Code)
	}
	// the city may come from the token
	rr := call(s.RoutesHandler, http.MethodPost, "/v1/routes", `{"source":{"nodeId":"A"},"target":{"nodeId":"D"}}`, "Authorization", token("paris", auth.RoleViewer))
	if rr.Code != 200 {
		t.Fatalf("viewer route: %d %s", rr.Code, rr.Body.String())
	}
	if rr := call(s.DebugJSON, http.MethodGet, "/debug/config", "", "Authorization", token("paris", auth.RoleAdmin)); rr.Code != http.StatusForbidden {
		t.Fatalf("city admin on debug: %d", rr.Code)
	}
	if rr := call(s.DebugJSON, http.MethodGet, "/debug/config", "", "Authorization", token(auth.AnyCity, auth.RoleAdmin)); rr.Code != 200 || strings.Contains(rr.Body.String(), `"k"`) {
		t.Fatalf("debug: %d %s", rr.Code, rr.Body.String())
	}
}

func TestEventsStreamSSE(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(http.HandlerFunc(s.EventsStreamHandler))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/events/stream?city=paris", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type %q", ct)
	}
	rd := bufio.NewReader(resp.Body)
	readEvent := func() (string, string) {
		var ev, data string
		for {
			line, err := rd.ReadString('\n')
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			line = strings.TrimRight(line, "\n")
			switch {
			case strings.HasPrefix(line, "event: "):
				ev = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			case line == "":
				return ev, data
			}
		}
	}
	if ev, _ := readEvent(); ev != "heartbeat" {
		t.Fatalf("first event %q", ev)
	}
	s.Broker.Publish("paris", SSEEvent{Type: model.EventGraphUpdated, Data: map[string]any{"version": 3}})
	ev, data := readEvent()
	if ev != model.EventGraphUpdated || data != `{"version":3}` {
		t.Fatalf("event %q data %q", ev, data)
	}
}

func TestEventsWebSocket(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(http.HandlerFunc(s.EventsWSHandler))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/events/ws?city=paris"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	expect := func(typ string) wsMessage {
		t.Helper()
		var m wsMessage
		if err := conn.ReadJSON(&m); err != nil {
			t.Fatalf("read: %v", err)
		}
		if m.Type != typ {
			t.Fatalf("want %s, got %+v", typ, m)
		}
		return m
	}
	_ = conn.WriteJSON(wsMessage{Type: "connection_init"})
	expect("connection_ack")
	_ = conn.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: json.RawMessage(`{"events":["graph.updated"]}`)})
	// messages are handled in order, so the pong proves the subscription exists
	_ = conn.WriteJSON(wsMessage{Type: "ping"})
	expect("pong")

	s.Broker.Publish("paris", SSEEvent{Type: model.EventHazardReported, Data: map[string]any{}})
	s.Broker.Publish("paris", SSEEvent{Type: model.EventGraphUpdated, Data: map[string]any{"version": 2}})
	m := expect("next")
	var evt SSEEvent
	if err := json.Unmarshal(m.Payload, &evt); err != nil || m.ID != "1" || evt.Type != model.EventGraphUpdated {
		t.Fatalf("next: %+v %v", m, err)
	}

	_ = conn.WriteJSON(wsMessage{Type: "complete", ID: "1"})
	expect("complete")
}

func TestOpenAPIDocs(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.OpenAPIJSONHandler(rr, httptest.NewRequest(http.MethodGet, "/openapi.json", nil))
	var doc map[string]any
	if rr.Code != 200 || json.Unmarshal(rr.Body.Bytes(), &doc) != nil {
		t.Fatalf("openapi.json: %d", rr.Code)
	}
	paths, _ := doc["paths"].(map[string]any)
	for _, p := range []string{"/v1/routes", "/v1/evacuate", "/v1/graphs/{city}/risk"} {
		if _, ok := paths[p]; !ok {
			t.Errorf("openapi missing %s", p)
		}
	}
}
