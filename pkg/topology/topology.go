// Package topology holds the fixed mesh graph the simulator routes over.
//
// A Topology is built and validated once. After construction only node
// load and trust change, and only from the simulation loop.
package topology

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/ritzau/agentic-mesh/pkg/model"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
	"gonum.org/v1/gonum/graph/traverse"
)

// DefaultNodeCount is the size of every served mesh
const DefaultNodeCount = 15

// ErrInvalidTopology is returned for degenerate or disconnected graphs
var ErrInvalidTopology = errors.New("invalid topology")

// Topology is a connected, undirected, weighted mesh of nodes
type Topology struct {
	graph    *simple.WeightedUndirectedGraph
	nodes    []model.Node
	baseline []float64 // Trust each node relaxes back to
	edges    []model.Edge
	hops     [][]int // All-pairs hop distance
	diameter int
}

// New validates nodes and edges and builds the topology.
// Node ids must be exactly 0..len(nodes)-1.
func New(nodes []model.Node, edges []model.Edge) (*Topology, error) {
	if len(nodes) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 nodes, got %d", ErrInvalidTopology, len(nodes))
	}

	t := &Topology{
		nodes:    make([]model.Node, len(nodes)),
		baseline: make([]float64, len(nodes)),
	}

	t.graph = newGraph(len(nodes))

	seen := make(map[int]bool, len(nodes))
	for _, n := range nodes {
		if n.ID < 0 || n.ID >= len(nodes) {
			return nil, fmt.Errorf("%w: node id %d out of range 0..%d", ErrInvalidTopology, n.ID, len(nodes)-1)
		}
		if seen[n.ID] {
			return nil, fmt.Errorf("%w: duplicate node id %d", ErrInvalidTopology, n.ID)
		}
		if n.Capacity < 1 {
			return nil, fmt.Errorf("%w: node %d has capacity %d", ErrInvalidTopology, n.ID, n.Capacity)
		}
		seen[n.ID] = true
		n.Trust = clamp(n.Trust)
		n.Load = 0
		t.nodes[n.ID] = n
		t.baseline[n.ID] = n.Trust
	}

	for _, e := range edges {
		if err := t.addEdge(e); err != nil {
			return nil, err
		}
	}

	if comps := topo.ConnectedComponents(t.graph); len(comps) > 1 {
		return nil, fmt.Errorf("%w: graph has %d disconnected components", ErrInvalidTopology, len(comps))
	}

	t.computeHops()
	return t, nil
}

func newGraph(n int) *simple.WeightedUndirectedGraph {
	g := simple.NewWeightedUndirectedGraph(0, math.Inf(1))
	for i := 0; i < n; i++ {
		g.AddNode(simple.Node(i))
	}
	return g
}

func (t *Topology) addEdge(e model.Edge) error {
	n := len(t.nodes)
	if e.A < 0 || e.A >= n || e.B < 0 || e.B >= n {
		return fmt.Errorf("%w: edge %d-%d references unknown node", ErrInvalidTopology, e.A, e.B)
	}
	if e.A == e.B {
		return fmt.Errorf("%w: self loop on node %d", ErrInvalidTopology, e.A)
	}
	if !(e.Cost > 0) || math.IsInf(e.Cost, 0) {
		return fmt.Errorf("%w: edge %d-%d has cost %v", ErrInvalidTopology, e.A, e.B, e.Cost)
	}
	if t.graph.HasEdgeBetween(int64(e.A), int64(e.B)) {
		return nil
	}

	from, to := t.graph.Node(int64(e.A)), t.graph.Node(int64(e.B))
	t.graph.SetWeightedEdge(t.graph.NewWeightedEdge(from, to, e.Cost))
	if e.A > e.B {
		e.A, e.B = e.B, e.A
	}
	d := distance(t.nodes[e.A], t.nodes[e.B])
	e.RSSI = round2(RSSI(d))
	e.SNR = round2(SNR(d, DefaultRadioRange))
	t.edges = append(t.edges, e)
	return nil
}

// computeHops fills the all-pairs hop distance table with one BFS per node
func (t *Topology) computeHops() {
	n := len(t.nodes)
	t.hops = make([][]int, n)
	t.diameter = 0
	for src := 0; src < n; src++ {
		row := make([]int, n)
		for i := range row {
			row[i] = -1
		}
		var bf traverse.BreadthFirst
		bf.Walk(t.graph, t.graph.Node(int64(src)), func(node graph.Node, depth int) bool {
			row[node.ID()] = depth
			if depth > t.diameter {
				t.diameter = depth
			}
			return false
		})
		t.hops[src] = row
	}
}

// Len returns the number of nodes
func (t *Topology) Len() int {
	return len(t.nodes)
}

// CheckServed rejects a mesh that is not exactly DefaultNodeCount nodes.
// New accepts smaller graphs; a running simulation never does.
func CheckServed(t *Topology) error {
	if t.Len() != DefaultNodeCount {
		return fmt.Errorf("%w: served mesh needs %d nodes, got %d", ErrInvalidTopology, DefaultNodeCount, t.Len())
	}
	return nil
}

// Nodes returns a copy of all nodes ordered by id
func (t *Topology) Nodes() []model.Node {
	out := make([]model.Node, len(t.nodes))
	copy(out, t.nodes)
	return out
}

// Node returns a copy of a single node
func (t *Topology) Node(id int) (model.Node, bool) {
	if !t.valid(id) {
		return model.Node{}, false
	}
	return t.nodes[id], true
}

// Edges returns all undirected edges with A < B
func (t *Topology) Edges() []model.Edge {
	out := make([]model.Edge, len(t.edges))
	copy(out, t.edges)
	sort.Slice(out, func(i, j int) bool {
		if out[i].A != out[j].A {
			return out[i].A < out[j].A
		}
		return out[i].B < out[j].B
	})
	return out
}

// Neighbors returns the ids adjacent to id, ascending
func (t *Topology) Neighbors(id int) []int {
	if !t.valid(id) {
		return nil
	}
	var out []int
	it := t.graph.From(int64(id))
	for it.Next() {
		out = append(out, int(it.Node().ID()))
	}
	sort.Ints(out)
	return out
}

// EdgeCost returns the cost of the edge between a and b
func (t *Topology) EdgeCost(a, b int) (float64, bool) {
	if !t.valid(a) || !t.valid(b) || a == b {
		return 0, false
	}
	return t.graph.Weight(int64(a), int64(b))
}

// HopDistance returns the minimum number of hops between a and b
func (t *Topology) HopDistance(a, b int) int {
	if !t.valid(a) || !t.valid(b) {
		return -1
	}
	return t.hops[a][b]
}

// Diameter returns the longest shortest path in hops
func (t *Topology) Diameter() int {
	return t.diameter
}

// View returns the static part of the topology for dashboards
func (t *Topology) View() model.TopologyView {
	return model.TopologyView{
		Nodes:    t.Nodes(),
		Edges:    t.Edges(),
		Diameter: t.diameter,
	}
}

// SetLoad sets the resident message count of a node
func (t *Topology) SetLoad(id, load int) {
	if t.valid(id) {
		t.nodes[id].Load = max(load, 0)
	}
}

// AddLoad adjusts the resident message count of a node by delta
func (t *Topology) AddLoad(id, delta int) {
	if t.valid(id) {
		t.nodes[id].Load = max(t.nodes[id].Load+delta, 0)
	}
}

// SetTrust pins both the current and the baseline trust of a node
func (t *Topology) SetTrust(id int, trust float64) {
	if t.valid(id) {
		trust = clamp(trust)
		t.nodes[id].Trust = trust
		t.baseline[id] = trust
	}
}

// AdjustTrust moves the current trust of a node by delta, clamped to [0,1]
func (t *Topology) AdjustTrust(id int, delta float64) {
	if t.valid(id) {
		t.nodes[id].Trust = clamp(t.nodes[id].Trust + delta)
	}
}

// RelaxTrust moves every node's trust toward its baseline by at most rate
func (t *Topology) RelaxTrust(rate float64) {
	if rate <= 0 {
		return
	}
	for i := range t.nodes {
		diff := t.baseline[i] - t.nodes[i].Trust
		switch {
		case diff > rate:
			t.nodes[i].Trust += rate
		case diff < -rate:
			t.nodes[i].Trust -= rate
		default:
			t.nodes[i].Trust = t.baseline[i]
		}
	}
}

func (t *Topology) valid(id int) bool {
	return id >= 0 && id < len(t.nodes)
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
