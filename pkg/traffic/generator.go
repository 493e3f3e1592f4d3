// Package traffic produces the synthetic messages injected into the mesh.
package traffic

import (
	"math"
	"math/rand"

	"github.com/google/uuid"
	"github.com/ritzau/agentic-mesh/pkg/model"
)

// Critical and routine payload pools, 20% critical like a tactical mesh
var (
	CriticalPayloads = []string{
		"SOS: Need medical evac at coord 45.1, 9.2",
		"CRITICAL: Structural failure detected on bridge alpha",
		"URGENT: Riot police deploying on Main St",
	}
	RoutinePayloads = []string{
		"Telemetry: Temp 22C, Hum 45%",
		"Ping: ACK 33",
		"Telemetry: Battery 88%",
		"Telemetry: Heartbeat OK",
	}
)

// Options controls the generator
type Options struct {
	Nodes         int     // Number of nodes in the mesh
	Diameter      int     // Topology diameter in hops
	Rate          float64 // Expected new messages per tick
	TTLMultiplier int     // TTL = TTLMultiplier * Diameter
	CriticalShare float64 // Fraction of critical payloads
	Seed          int64
}

// Generator creates messages between uniformly chosen distinct node pairs.
// It is not safe for concurrent use; the simulation loop owns it.
type Generator struct {
	opts Options
	rng  *rand.Rand
	ttl  int
}

// NewGenerator creates a seeded generator
func NewGenerator(opts Options) *Generator {
	if opts.TTLMultiplier < 1 {
		opts.TTLMultiplier = 1
	}
	if opts.Rate < 0 {
		opts.Rate = 0
	}
	return &Generator{
		opts: opts,
		rng:  rand.New(rand.NewSource(opts.Seed)),
		ttl:  max(opts.TTLMultiplier*opts.Diameter, 1),
	}
}

// TTL returns the hop budget assigned to every new message
func (g *Generator) TTL() int {
	return g.ttl
}

// Generate returns this tick's new messages.
// floor(Rate) messages are always produced plus one more with probability frac(Rate).
func (g *Generator) Generate(tick uint64) []*model.Message {
	if g.opts.Nodes < 2 {
		return nil
	}

	whole, frac := math.Modf(g.opts.Rate)
	count := int(whole)
	if frac > 0 && g.rng.Float64() < frac {
		count++
	}

	out := make([]*model.Message, 0, count)
	for i := 0; i < count; i++ {
		src := g.rng.Intn(g.opts.Nodes)
		dst := g.rng.Intn(g.opts.Nodes - 1)
		if dst >= src {
			dst++
		}
		out = append(out, g.NewMessage(src, dst, g.payload(), tick))
	}
	return out
}

// NewMessage builds an in-flight message sitting at src.
// src == dst is allowed and is delivered on the next tick with zero hops.
func (g *Generator) NewMessage(src, dst int, payload string, tick uint64) *model.Message {
	return &model.Message{
		ID:          g.newID(),
		Source:      src,
		Destination: dst,
		Current:     src,
		Path:        []int{src},
		TTL:         g.ttl,
		Payload:     payload,
		Priority:    model.PriorityOf(payload),
		Status:      model.StatusInFlight,
		CreatedTick: tick,
	}
}

func (g *Generator) payload() string {
	if g.rng.Float64() < g.opts.CriticalShare {
		return CriticalPayloads[g.rng.Intn(len(CriticalPayloads))]
	}
	return RoutinePayloads[g.rng.Intn(len(RoutinePayloads))]
}

// newID draws the UUID from the seeded source so runs are reproducible
func (g *Generator) newID() string {
	id, err := uuid.NewRandomFromReader(g.rng)
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
