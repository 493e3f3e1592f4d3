package topology

import (
	"fmt"
	"os"

	"github.com/ritzau/agentic-mesh/pkg/model"
	"gopkg.in/yaml.v3"
)

// fileNode and fileEdge are the on-disk YAML layout of a topology
type fileNode struct {
	ID       int     `yaml:"id"`
	X        float64 `yaml:"x"`
	Y        float64 `yaml:"y"`
	Capacity int     `yaml:"capacity"`
	Trust    float64 `yaml:"trust"`
}

type fileEdge struct {
	A    int     `yaml:"a"`
	B    int     `yaml:"b"`
	Cost float64 `yaml:"cost,omitempty"` // Defaults to free-space path loss over the node distance
}

type fileSpec struct {
	Nodes []fileNode `yaml:"nodes"`
	Edges []fileEdge `yaml:"edges"`
}

// Parse decodes and validates a YAML topology document
func Parse(data []byte) (*Topology, error) {
	var doc fileSpec
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTopology, err)
	}

	nodes := make([]model.Node, len(doc.Nodes))
	byID := make(map[int]model.Node, len(doc.Nodes))
	for i, n := range doc.Nodes {
		nodes[i] = model.Node{ID: n.ID, X: n.X, Y: n.Y, Capacity: n.Capacity, Trust: n.Trust}
		byID[n.ID] = nodes[i]
	}

	edges := make([]model.Edge, len(doc.Edges))
	for i, e := range doc.Edges {
		cost := e.Cost
		if cost == 0 {
			a, okA := byID[e.A]
			b, okB := byID[e.B]
			if okA && okB {
				cost = linkCost(distance(a, b))
			}
		}
		edges[i] = model.Edge{A: e.A, B: e.B, Cost: cost}
	}

	return New(nodes, edges)
}

// LoadFile reads a YAML topology file from disk
func LoadFile(path string) (*Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading topology file: %w", err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return t, nil
}

// Marshal encodes the topology's baseline state as YAML
func (t *Topology) Marshal() ([]byte, error) {
	doc := fileSpec{
		Nodes: make([]fileNode, 0, len(t.nodes)),
		Edges: make([]fileEdge, 0, len(t.edges)),
	}
	for _, n := range t.nodes {
		doc.Nodes = append(doc.Nodes, fileNode{
			ID:       n.ID,
			X:        n.X,
			Y:        n.Y,
			Capacity: n.Capacity,
			Trust:    t.baseline[n.ID],
		})
	}
	for _, e := range t.Edges() {
		doc.Edges = append(doc.Edges, fileEdge{A: e.A, B: e.B, Cost: e.Cost})
	}
	return yaml.Marshal(&doc)
}
