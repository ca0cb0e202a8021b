package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

type client struct {
	base  string
	token string
	http  *http.Client
}

func newClient(g *globalOpts) *client {
	return &client{base: strings.TrimRight(g.server, "/"), token: g.token, http: &http.Client{Timeout: 30 * time.Second}}
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail"`
}

// do sends in as JSON and decodes a 2xx response into out. Problem
// responses come back as errors.
func (c *client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		var p problem
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if json.Unmarshal(b, &p) == nil && p.Title != "" {
			if p.Detail != "" {
				return fmt.Errorf("%s %s: %s: %s (%d)", method, path, p.Title, p.Detail, resp.StatusCode)
			}
			return fmt.Errorf("%s %s: %s (%d)", method, path, p.Title, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// watch subscribes to the city's event stream and prints one line per
// event until ctx ends or count events were printed.
func watch(ctx context.Context, g *globalOpts, events []string, count int, w io.Writer) error {
	u, err := url.Parse(strings.TrimRight(g.server, "/") + "/v1/events/ws")
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	if g.city != "" {
		u.RawQuery = url.Values{"city": {g.city}}.Encode()
	}
	hdr := http.Header{}
	if g.token != "" {
		hdr.Set("Authorization", "Bearer "+g.token)
	}
	c, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), hdr)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer func() { _ = c.Close() }()
	go func() {
		<-ctx.Done()
		_ = c.Close()
	}()

	if err := c.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		return err
	}
	pl, _ := json.Marshal(map[string]any{"events": events})
	if err := c.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: pl}); err != nil {
		return err
	}
	seen := 0
	for {
		var m wsMessage
		if err := c.ReadJSON(&m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		switch m.Type {
		case "ping":
			_ = c.WriteJSON(wsMessage{Type: "pong"})
		case "error":
			return fmt.Errorf("server error: %s", string(m.Payload))
		case "complete":
			return nil
		case "next":
			var evt struct {
				Type string          `json:"type"`
				Data json.RawMessage `json:"data"`
			}
			if err := json.Unmarshal(m.Payload, &evt); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(w, "%s %s %s\n", time.Now().UTC().Format(time.RFC3339), evt.Type, string(evt.Data))
			seen++
			if count > 0 && seen >= count {
				return nil
			}
		}
	}
}
