package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"evacroute/internal/graph"
	"evacroute/internal/opt"
	"evacroute/internal/store"
)

// Problem represents an RFC7807 problem details response body.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

const maxBodyBytes = 32 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	writeProblemType(w, status, "about:blank", title, detail, instance)
}

func writeProblemType(w http.ResponseWriter, status int, typ, title, detail, instance string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Problem{
		Type:     typ,
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

// writeError maps domain errors to problem responses.
func writeError(w http.ResponseWriter, r *http.Request, title string, err error) {
	switch {
	case errors.Is(err, graph.ErrInvalidInput), errors.Is(err, graph.ErrUnknownEdge):
		writeProblemType(w, http.StatusBadRequest, "request.invalid", title, err.Error(), r.URL.Path)
	case errors.Is(err, opt.ErrUnreachable):
		writeProblemType(w, http.StatusUnprocessableEntity, "route.unreachable", "No route found", err.Error(), r.URL.Path)
	case errors.Is(err, opt.ErrTimeout):
		writeProblemType(w, http.StatusGatewayTimeout, "route.timeout", "Route search timed out", err.Error(), r.URL.Path)
	case errors.Is(err, store.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", title, r.URL.Path)
	default:
		writeProblem(w, http.StatusInternalServerError, title, err.Error(), r.URL.Path)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return false
	}
	return true
}

// pageParams reads cursor and limit query parameters.
func pageParams(r *http.Request) (string, int, error) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return "", 0, fmt.Errorf("limit must be a positive integer")
		}
		limit = n
	}
	return r.URL.Query().Get("cursor"), limit, nil
}
