package graph

// Document is the JSON form of a graph exchanged with the graph-construction
// collaborator, the HTTP API and the stores.
type Document struct {
	City  string    `json:"city"`
	Nodes []NodeDoc `json:"nodes"`
	Edges []EdgeDoc `json:"edges"`
}

type NodeDoc struct {
	ID       string  `json:"id"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	SafeZone bool    `json:"safeZone,omitempty"`
}

type EdgeDoc struct {
	ID            string   `json:"id,omitempty"`
	From          string   `json:"from"`
	To            string   `json:"to"`
	LengthM       float64  `json:"lengthM"`
	TravelTimeSec float64  `json:"travelTimeSec,omitempty"`
	Risk          *float64 `json:"risk,omitempty"`
}

// FromDocument validates and builds a Graph.
func FromDocument(doc Document) (*Graph, error) {
	b := NewBuilder()
	for _, n := range doc.Nodes {
		b.AddNode(Node{ID: n.ID, Lat: n.Lat, Lng: n.Lng, SafeZone: n.SafeZone})
	}
	for _, e := range doc.Edges {
		b.AddEdge(EdgeInput{ID: e.ID, From: e.From, To: e.To, LengthM: e.LengthM, TravelTimeSec: e.TravelTimeSec, Risk: e.Risk})
	}
	return b.Build()
}

// ToDocument renders g back to its wire form. Derived travel times are
// written out explicitly; unknown risk stays absent.
func (g *Graph) ToDocument(city string) Document {
	doc := Document{City: city, Nodes: make([]NodeDoc, len(g.nodes)), Edges: make([]EdgeDoc, len(g.edges))}
	for i, n := range g.nodes {
		doc.Nodes[i] = NodeDoc{ID: n.ID, Lat: n.Lat, Lng: n.Lng, SafeZone: n.SafeZone}
	}
	for i, e := range g.edges {
		ed := EdgeDoc{ID: e.ID, From: g.nodes[e.From].ID, To: g.nodes[e.To].ID, LengthM: e.LengthM, TravelTimeSec: e.TravelTimeSec}
		if e.RiskKnown {
			r := e.Risk
			ed.Risk = &r
		}
		doc.Edges[i] = ed
	}
	return doc
}
