// Package policy implements the per-hop forwarding strategies.
//
// The set of strategies is closed: a Kind selects one decision function
// when the engine is created and the choice never changes afterwards.
package policy

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ritzau/agentic-mesh/pkg/model"
)

// ErrUnknownPolicy is returned by ParseKind for unrecognized names
var ErrUnknownPolicy = errors.New("unknown policy")

// Kind identifies a forwarding strategy
type Kind int

const (
	KindThreshold Kind = iota
	KindAgentic
	KindFlood
)

var kindNames = map[Kind]string{
	KindThreshold: "threshold",
	KindAgentic:   "agentic",
	KindFlood:     "flood",
}

var displayNames = map[Kind]string{
	KindThreshold: "Capacity/Trust Threshold",
	KindAgentic:   "Agentic (Semantic Triage)",
	KindFlood:     "Flood",
}

// Kinds lists every strategy in declaration order
func Kinds() []Kind {
	return []Kind{KindThreshold, KindAgentic, KindFlood}
}

// ParseKind maps a config value such as "agentic" to its Kind
func ParseKind(s string) (Kind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q (want one of threshold, agentic, flood)", ErrUnknownPolicy, s)
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// DisplayName is the label dashboards show for the strategy
func (k Kind) DisplayName() string {
	if n, ok := displayNames[k]; ok {
		return n
	}
	return k.String()
}

// Graph is the read-only view of the topology a strategy consults
type Graph interface {
	Neighbors(id int) []int
	EdgeCost(a, b int) (float64, bool)
	HopDistance(a, b int) int
	Node(id int) (model.Node, bool)
}

// Config holds the tunables shared by all strategies
type Config struct {
	TrustThreshold float64
}

// DefaultConfig returns the thresholds used when nothing is configured
func DefaultConfig() Config {
	return Config{TrustThreshold: 0.35}
}

type decideFunc func(e *Engine, node model.Node, msg *model.Message, g Graph) (model.Decision, error)

var decideFuncs = map[Kind]decideFunc{
	KindThreshold: decideThreshold,
	KindAgentic:   decideAgentic,
	KindFlood:     decideFlood,
}

// Engine evaluates one strategy. It is safe for concurrent use.
type Engine struct {
	kind   Kind
	cfg    Config
	decide decideFunc

	mu    sync.Mutex
	cache map[string]model.Action // agentic triage memo: class::congestion
}

// New creates an engine for kind
func New(kind Kind, cfg Config) (*Engine, error) {
	fn, ok := decideFuncs[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnknownPolicy, kind)
	}
	return &Engine{
		kind:   kind,
		cfg:    cfg,
		decide: fn,
		cache:  make(map[string]model.Action),
	}, nil
}

// Kind returns the selected strategy
func (e *Engine) Kind() Kind {
	return e.kind
}

// Name returns the display name exposed as the "policy" stat
func (e *Engine) Name() string {
	return e.kind.DisplayName()
}

// Decide chooses FORWARD or DROP for msg sitting at node.
// Callers handle msg.Current == msg.Destination before asking.
func (e *Engine) Decide(node model.Node, msg *model.Message, g Graph) (model.Decision, error) {
	if msg == nil {
		return model.Decision{}, errors.New("nil message")
	}
	if msg.Current != node.ID {
		return model.Decision{}, fmt.Errorf("message %s is at node %d, not %d", msg.ID, msg.Current, node.ID)
	}
	if g.HopDistance(node.ID, msg.Destination) < 0 {
		return model.Decision{}, fmt.Errorf("destination %d unreachable from %d", msg.Destination, node.ID)
	}
	return e.decide(e, node, msg, g)
}

// candidate is a possible next hop
type candidate struct {
	id       int
	cost     float64
	reducing bool // Strictly closer to the destination in hops
}

// candidates lists unvisited neighbors ordered by progress, cost and id.
// With progressOnly set, only distance-reducing neighbors are returned.
func candidates(node model.Node, msg *model.Message, g Graph, progressOnly bool) []candidate {
	here := g.HopDistance(node.ID, msg.Destination)

	var out []candidate
	for _, n := range g.Neighbors(node.ID) {
		if msg.Visited(n) {
			continue
		}
		cost, ok := g.EdgeCost(node.ID, n)
		if !ok {
			continue
		}
		reducing := g.HopDistance(n, msg.Destination) < here
		if progressOnly && !reducing {
			continue
		}
		out = append(out, candidate{id: n, cost: cost, reducing: reducing})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].reducing != out[j].reducing {
			return out[i].reducing
		}
		if out[i].cost != out[j].cost {
			return out[i].cost < out[j].cost
		}
		return out[i].id < out[j].id
	})
	return out
}

// admit applies capacity and trust admission control to a next hop.
// It returns the rejection and false when the hop is refused.
// Trust is checked first: an untrusted hop is refused whatever its load.
func (e *Engine) admit(n model.Node) (model.Decision, bool) {
	if n.Trust < e.cfg.TrustThreshold {
		return model.Reject(n.ID, e.trustReason(n)), false
	}
	if n.Saturated() {
		return model.Overflow(n.ID, loadReason(n)), false
	}
	return model.Decision{}, true
}

func loadReason(n model.Node) string {
	return fmt.Sprintf("node %d congested: load %d/%d", n.ID, n.Load, n.Capacity)
}

func (e *Engine) trustReason(n model.Node) string {
	return fmt.Sprintf("node %d trust %.2f below threshold %.2f", n.ID, n.Trust, e.cfg.TrustThreshold)
}

func noRoute(msg *model.Message) model.Decision {
	return model.Drop(fmt.Sprintf("no route toward %d", msg.Destination))
}
