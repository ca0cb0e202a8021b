package graph

import "errors"

// ErrInvalidInput marks malformed graph input: missing or duplicate nodes,
// dangling or malformed edges, non-positive lengths. Builders fail fast with
// an error wrapping it.
var ErrInvalidInput = errors.New("invalid input")

// ErrUnknownEdge is returned by snapshot updates that name an edge the graph lacks.
var ErrUnknownEdge = errors.New("unknown edge")
