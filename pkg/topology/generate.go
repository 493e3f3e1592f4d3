package topology

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/ritzau/agentic-mesh/pkg/model"
	"gonum.org/v1/gonum/graph/topo"
)

// GenerateOptions controls random mesh placement
type GenerateOptions struct {
	Count       int
	Width       float64
	Height      float64
	RadioRange  float64 // Nodes closer than this are linked
	Seed        int64
	CapacityMin int
	CapacityMax int
	TrustMin    float64
	TrustMax    float64
}

// DefaultGenerateOptions mirrors a 15-node field deployment over 1.5km
func DefaultGenerateOptions(seed int64) GenerateOptions {
	return GenerateOptions{
		Count:       DefaultNodeCount,
		Width:       1500,
		Height:      1500,
		RadioRange:  DefaultRadioRange,
		Seed:        seed,
		CapacityMin: 2,
		CapacityMax: 5,
		TrustMin:    0.2,
		TrustMax:    1.0,
	}
}

// Generate places nodes at random, links every pair within radio range and
// bridges leftover components through their closest pair of nodes.
func Generate(opts GenerateOptions) (*Topology, error) {
	if opts.Count < 2 {
		return nil, fmt.Errorf("%w: need at least 2 nodes, got %d", ErrInvalidTopology, opts.Count)
	}
	if opts.CapacityMin < 1 {
		opts.CapacityMin = 1
	}
	if opts.CapacityMax < opts.CapacityMin {
		opts.CapacityMax = opts.CapacityMin
	}
	if opts.TrustMax < opts.TrustMin {
		opts.TrustMax = opts.TrustMin
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	nodes := make([]model.Node, opts.Count)
	for i := range nodes {
		nodes[i] = model.Node{
			ID:       i,
			X:        math.Round(rng.Float64() * opts.Width),
			Y:        math.Round(rng.Float64() * opts.Height),
			Capacity: opts.CapacityMin + rng.Intn(opts.CapacityMax-opts.CapacityMin+1),
			Trust:    round2(opts.TrustMin + rng.Float64()*(opts.TrustMax-opts.TrustMin)),
		}
	}

	var edges []model.Edge
	for i := 0; i < len(nodes); i++ {
		for j := i + 1; j < len(nodes); j++ {
			if d := distance(nodes[i], nodes[j]); d <= opts.RadioRange {
				edges = append(edges, model.Edge{A: i, B: j, Cost: linkCost(d)})
			}
		}
	}

	t, err := bridge(nodes, edges)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// bridge links disconnected components until the graph is connected
func bridge(nodes []model.Node, edges []model.Edge) (*Topology, error) {
	for {
		t, err := New(nodes, edges)
		if err == nil {
			return t, nil
		}

		// Rebuild without validation to inspect components
		scratch := &Topology{nodes: nodes}
		scratch.graph = newGraph(len(nodes))
		for _, e := range edges {
			if err := scratch.addEdge(e); err != nil {
				return nil, err
			}
		}
		comps := topo.ConnectedComponents(scratch.graph)
		if len(comps) <= 1 {
			return nil, err
		}

		inFirst := make(map[int]bool, len(comps[0]))
		for _, n := range comps[0] {
			inFirst[int(n.ID())] = true
		}

		best := model.Edge{A: -1, Cost: math.Inf(1)}
		for a := range nodes {
			if !inFirst[a] {
				continue
			}
			for b := range nodes {
				if inFirst[b] {
					continue
				}
				if d := distance(nodes[a], nodes[b]); d < best.Cost {
					best = model.Edge{A: a, B: b, Cost: d}
				}
			}
		}
		best.Cost = linkCost(best.Cost)
		edges = append(edges, best)
	}
}

func distance(a, b model.Node) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
