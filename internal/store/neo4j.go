package store

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"evacroute/internal/graph"
)

// CypherRunner executes a Cypher query and buffers the full result.
type CypherRunner interface {
	Run(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error)
}

type neo4jExecutor struct {
	driver neo4j.DriverWithContext
	dbName string
}

func (e *neo4jExecutor) Run(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error) {
	res, err := neo4j.ExecuteQuery(ctx, e.driver, query, params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(e.dbName),
		neo4j.ExecuteQueryWithReadersRouting(),
	)
	if err != nil {
		return nil, fmt.Errorf("neo4j query: %w", err)
	}
	return res, nil
}

// Neo4jSource loads city road graphs kept in Neo4j as
// (:Intersection {id, city, lat, lng, safeZone})-[:ROAD {id, lengthM, travelTimeSec, risk}]->(:Intersection).
// It is read-only: imported graphs are saved through a Store.
type Neo4jSource struct {
	runner CypherRunner
	close  func(context.Context) error
}

func NewNeo4jSource(uri, user, password, database string) (*Neo4jSource, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("could not create Neo4j driver: %w", err)
	}
	return &Neo4jSource{runner: &neo4jExecutor{driver: driver, dbName: database}, close: driver.Close}, nil
}

// NewNeo4jSourceWithRunner wraps an existing runner; used by tests.
func NewNeo4jSourceWithRunner(r CypherRunner) *Neo4jSource { return &Neo4jSource{runner: r} }

func (n *Neo4jSource) Close(ctx context.Context) error {
	if n.close == nil {
		return nil
	}
	return n.close(ctx)
}

const (
	cypherNodes = `MATCH (n:Intersection {city: $city})
RETURN n.id AS id, n.lat AS lat, n.lng AS lng, coalesce(n.safeZone, false) AS safeZone
ORDER BY id`
	cypherEdges = `MATCH (a:Intersection {city: $city})-[r:ROAD]->(b:Intersection {city: $city})
RETURN r.id AS id, a.id AS from, b.id AS to, r.lengthM AS lengthM, coalesce(r.travelTimeSec, 0) AS travelTimeSec, r.risk AS risk
ORDER BY from, to, id`
)

// LoadCity reads the city's intersections and roads into a Document.
// Returns ErrNotFound when the city has no intersections.
func (n *Neo4jSource) LoadCity(ctx context.Context, city string) (graph.Document, error) {
	params := map[string]any{"city": city}
	nodes, err := n.runner.Run(ctx, cypherNodes, params)
	if err != nil {
		return graph.Document{}, err
	}
	if len(nodes.Records) == 0 {
		return graph.Document{}, ErrNotFound
	}
	doc := graph.Document{City: city}
	for _, rec := range nodes.Records {
		m := rec.AsMap()
		nd := graph.NodeDoc{}
		nd.ID, _ = m["id"].(string)
		nd.Lat = toFloat(m["lat"])
		nd.Lng = toFloat(m["lng"])
		nd.SafeZone, _ = m["safeZone"].(bool)
		doc.Nodes = append(doc.Nodes, nd)
	}
	edges, err := n.runner.Run(ctx, cypherEdges, params)
	if err != nil {
		return graph.Document{}, err
	}
	for _, rec := range edges.Records {
		m := rec.AsMap()
		ed := graph.EdgeDoc{}
		ed.ID, _ = m["id"].(string)
		ed.From, _ = m["from"].(string)
		ed.To, _ = m["to"].(string)
		ed.LengthM = toFloat(m["lengthM"])
		ed.TravelTimeSec = toFloat(m["travelTimeSec"])
		if v, ok := m["risk"]; ok && v != nil {
			r := toFloat(v)
			ed.Risk = &r
		}
		doc.Edges = append(doc.Edges, ed)
	}
	return doc, nil
}

// toFloat accepts the numeric types the driver hands back for Cypher
// integers and floats.
func toFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int64:
		return float64(x)
	case int:
		return float64(x)
	default:
		return 0
	}
}
