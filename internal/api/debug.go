package api

import (
	"net/http"
	"time"

	"evacroute/internal/auth"
	"evacroute/internal/buildinfo"
)

// DebugJSON reports build info and the effective, secret-free configuration.
func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorize(w, r, auth.AnyCity, auth.RoleAdmin); !ok {
		return
	}
	c := s.Config
	info := map[string]any{
		"build": buildinfo.Info(),
		"time":  time.Now().UTC().Format(time.RFC3339),
		"config": map[string]any{
			"port":               c.Server.Port,
			"authMode":           c.Auth.Mode,
			"rateRps":            c.Server.RateRPS,
			"rateBurst":          c.Server.RateBurst,
			"webhookMaxAttempts": c.Webhooks.MaxAttempts,
			"hasDatabaseUrl":     c.Storage.DatabaseURL != "",
			"hasSqlitePath":      c.Storage.SQLitePath != "",
			"hasRedisUrl":        c.Storage.RedisURL != "",
			"hasNeo4j":           c.Storage.Neo4j.URI != "",
			"search":             c.Search,
		},
	}
	writeJSON(w, http.StatusOK, info)
}
