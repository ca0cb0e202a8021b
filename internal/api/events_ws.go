package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"evacroute/internal/auth"
)

// Event stream over WebSocket. Protocol, one JSON object per frame:
//
//	client: {"type":"connection_init"}
//	server: {"type":"connection_ack"}
//	client: {"type":"subscribe","id":"1","payload":{"events":["evacuation.planned"]}}
//	server: {"type":"next","id":"1","payload":{"type":"evacuation.planned","data":{...}}}
//	client: {"type":"complete","id":"1"}
//
// An empty events list subscribes to every event of the city.

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type subscribePayload struct {
	Events []string `json:"events"`
}

// EventsWSHandler handles GET /v1/events/ws?city=
func (s *Server) EventsWSHandler(w http.ResponseWriter, r *http.Request) {
	city := s.cityParam(r, "")
	if city == "" {
		writeProblem(w, http.StatusBadRequest, "Missing city", "", r.URL.Path)
		return
	}
	if _, ok := s.authorize(w, r, city, auth.RoleViewer); !ok {
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	// gorilla connections allow one concurrent writer
	var wmu sync.Mutex
	write := func(v any) error {
		wmu.Lock()
		defer wmu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(v)
	}

	subs := map[string]chan SSEEvent{}
	done := make(chan struct{})
	defer close(done)

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error { _ = conn.SetReadDeadline(time.Now().Add(60 * time.Second)); return nil })

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		switch msg.Type {
		case "connection_init":
			_ = write(wsMessage{Type: "connection_ack"})
			go func() {
				ticker := time.NewTicker(20 * time.Second)
				defer ticker.Stop()
				for {
					select {
					case <-done:
						return
					case <-ticker.C:
						if err := write(wsMessage{Type: "ping"}); err != nil {
							return
						}
					}
				}
			}()
		case "ping":
			_ = write(wsMessage{Type: "pong"})
		case "subscribe":
			if msg.ID == "" {
				_ = write(wsMessage{Type: "error", Payload: json.RawMessage(`{"message":"id required"}`)})
				continue
			}
			if _, dup := subs[msg.ID]; dup {
				_ = write(wsMessage{Type: "error", ID: msg.ID, Payload: json.RawMessage(`{"message":"subscription id already in use"}`)})
				continue
			}
			var pl subscribePayload
			if len(msg.Payload) > 0 {
				if err := json.Unmarshal(msg.Payload, &pl); err != nil {
					_ = write(wsMessage{Type: "error", ID: msg.ID, Payload: json.RawMessage(`{"message":"invalid payload"}`)})
					continue
				}
			}
			want := map[string]bool{}
			for _, e := range pl.Events {
				want[e] = true
			}
			ch := s.Broker.Subscribe(city)
			subs[msg.ID] = ch
			go func(id string, c chan SSEEvent) {
				for evt := range c {
					if len(want) > 0 && !want[evt.Type] {
						continue
					}
					payload, _ := json.Marshal(evt)
					_ = write(wsMessage{Type: "next", ID: id, Payload: payload})
				}
				_ = write(wsMessage{Type: "complete", ID: id})
			}(msg.ID, ch)
		case "complete":
			if ch, ok := subs[msg.ID]; ok {
				s.Broker.Unsubscribe(city, ch)
				delete(subs, msg.ID)
			}
		default:
			// ignore
		}
	}
	for id, ch := range subs {
		s.Broker.Unsubscribe(city, ch)
		delete(subs, id)
	}
}
