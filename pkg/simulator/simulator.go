// Package simulator advances messages through the mesh one hop per tick.
//
// A Simulator is driven by exactly one goroutine (see Runner). Observers
// only ever see the immutable Snapshot stored at the end of each tick.
package simulator

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ritzau/agentic-mesh/pkg/logging"
	"github.com/ritzau/agentic-mesh/pkg/model"
	"github.com/ritzau/agentic-mesh/pkg/policy"
	"github.com/ritzau/agentic-mesh/pkg/stats"
	"github.com/ritzau/agentic-mesh/pkg/topology"
	"github.com/ritzau/agentic-mesh/pkg/traffic"
)

// Reasons for drops the simulator forces regardless of policy output
const (
	ReasonTTLExceeded   = "ttl exceeded"
	ReasonCycleDetected = "cycle detected"
	ReasonPolicyError   = "policy error"
)

// Decider is the forwarding strategy consulted at every hop
type Decider interface {
	Name() string
	Decide(node model.Node, msg *model.Message, g policy.Graph) (model.Decision, error)
}

// Options tunes traffic, logging and trust dynamics
type Options struct {
	Seed          int64
	Rate          float64 // New messages per tick
	TTLMultiplier int
	CriticalShare float64
	LogCapacity   int
	SnapshotLogs  int     // Log entries carried in each snapshot
	TrustReward   float64 // Per delivered message, for each node on its path
	TrustPenalty  float64 // For a next hop refused by admission control
	TrustRecovery float64 // Per tick drift back toward baseline
	Clock         func() time.Time
}

// DefaultOptions returns the served configuration
func DefaultOptions() Options {
	return Options{
		Seed:          42,
		Rate:          3,
		TTLMultiplier: 2,
		CriticalShare: 0.2,
		LogCapacity:   stats.DefaultLogCapacity,
		SnapshotLogs:  50,
		TrustReward:   0.01,
		TrustPenalty:  0.02,
		TrustRecovery: 0.005,
		Clock:         time.Now,
	}
}

// Simulator owns the topology, the active message set and the counters
type Simulator struct {
	mu     sync.Mutex
	topo   *topology.Topology
	policy Decider
	gen    *traffic.Generator
	agg    *stats.Aggregator
	opts   Options
	active []*model.Message
	tick   uint64
	view   model.TopologyView

	latest atomic.Pointer[model.Snapshot]
}

// New creates a simulator over a validated topology
func New(topo *topology.Topology, decider Decider, opts Options) (*Simulator, error) {
	if topo == nil {
		return nil, errors.New("simulator: nil topology")
	}
	if decider == nil || decider.Name() == "" {
		return nil, errors.New("simulator: policy must have a name")
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.LogCapacity < 1 {
		opts.LogCapacity = stats.DefaultLogCapacity
	}
	if opts.SnapshotLogs <= 0 || opts.SnapshotLogs > opts.LogCapacity {
		opts.SnapshotLogs = opts.LogCapacity
	}

	s := &Simulator{
		topo:   topo,
		policy: decider,
		agg:    stats.NewAggregator(opts.LogCapacity),
		opts:   opts,
		view:   topo.View(),
		gen: traffic.NewGenerator(traffic.Options{
			Nodes:         topo.Len(),
			Diameter:      topo.Diameter(),
			Rate:          opts.Rate,
			TTLMultiplier: opts.TTLMultiplier,
			CriticalShare: opts.CriticalShare,
			Seed:          opts.Seed,
		}),
	}
	s.latest.Store(s.snapshot())
	return s, nil
}

// PolicyName returns the display name of the active policy
func (s *Simulator) PolicyName() string {
	return s.policy.Name()
}

// Topology returns the static topology view
func (s *Simulator) Topology() model.TopologyView {
	return s.view
}

// Snapshot returns the state as of the last completed tick
func (s *Simulator) Snapshot() *model.Snapshot {
	return s.latest.Load()
}

// Generator exposes the traffic generator for building injected messages
func (s *Simulator) Generator() *traffic.Generator {
	return s.gen
}

// Tick returns the number of completed ticks
func (s *Simulator) Tick() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tick
}

// Active returns copies of the in-flight messages
func (s *Simulator) Active() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Message, len(s.active))
	for i, m := range s.active {
		out[i] = cloneMessage(m)
	}
	return out
}

// Inject adds a message to the active set; it moves on the next tick
func (s *Simulator) Inject(msg *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.topo.Node(msg.Source); !ok {
		return fmt.Errorf("inject: unknown source %d", msg.Source)
	}
	if _, ok := s.topo.Node(msg.Destination); !ok {
		return fmt.Errorf("inject: unknown destination %d", msg.Destination)
	}
	s.insert(msg)
	return nil
}

// SetTrust pins a node's trust score, e.g. to quarantine it
func (s *Simulator) SetTrust(id int, trust float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topo.SetTrust(id, trust)
}

func (s *Simulator) insert(msg *model.Message) {
	msg.Status = model.StatusInFlight
	msg.Current = msg.Source
	if len(msg.Path) == 0 {
		msg.Path = []int{msg.Source}
	}
	s.active = append(s.active, msg)
	s.topo.AddLoad(msg.Current, 1)
	s.agg.Generated(1)
}

// Step advances every in-flight message by at most one hop.
// The returned snapshot is also what Snapshot reports until the next Step.
func (s *Simulator) Step() *model.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	tick := s.tick + 1
	now := s.opts.Clock()

	s.topo.RelaxTrust(s.opts.TrustRecovery)

	for _, msg := range s.gen.Generate(tick) {
		s.insert(msg)
	}

	remaining := make([]*model.Message, 0, len(s.active))
	for _, msg := range s.active {
		s.advance(msg, tick, now)
		if msg.Terminal() {
			s.topo.AddLoad(msg.Current, -1)
			continue
		}
		remaining = append(remaining, msg)
	}
	s.active = remaining
	s.tick = tick

	snap := s.snapshot()
	s.latest.Store(snap)
	return snap
}

// hop is where and when a decision is made, as recorded in the log
type hop struct {
	at         int
	congestion string
	tick       uint64
	now        time.Time
}

// advance applies exactly one transition or hop to msg and logs it
func (s *Simulator) advance(msg *model.Message, tick uint64, now time.Time) {
	at := msg.Current
	node, _ := s.topo.Node(at)
	h := hop{at: at, congestion: policy.CongestionOf(node), tick: tick, now: now}

	if msg.Current == msg.Destination {
		msg.Status = model.StatusDelivered
		s.agg.Delivered()
		for _, id := range msg.Path {
			s.topo.AdjustTrust(id, s.opts.TrustReward)
		}
		s.record(msg, h, model.ActionForward, fmt.Sprintf("delivered to application after %d hops", msg.Hops))
		return
	}

	d, err := s.decide(node, msg)
	if err != nil {
		logging.Warn("policy failed, dropping message",
			"policy", s.policy.Name(),
			"node", at,
			"messageID", msg.ID,
			"error", err,
		)
		s.drop(msg, h, ReasonPolicyError)
		return
	}

	switch d.Action {
	case model.ActionForward:
		if msg.Visited(d.NextHop) {
			s.drop(msg, h, ReasonCycleDetected)
			return
		}
		if _, ok := s.topo.EdgeCost(at, d.NextHop); !ok {
			logging.Warn("policy forwarded to a non-neighbor",
				"policy", s.policy.Name(),
				"node", at,
				"next", d.NextHop,
			)
			s.drop(msg, h, ReasonPolicyError)
			return
		}

		s.topo.AddLoad(at, -1)
		s.topo.AddLoad(d.NextHop, 1)
		msg.Current = d.NextHop
		msg.Path = append(msg.Path, d.NextHop)
		msg.TTL--
		msg.Hops++

		if msg.TTL <= 0 && msg.Current != msg.Destination {
			s.drop(msg, h, ReasonTTLExceeded)
			return
		}
		s.record(msg, h, model.ActionForward, d.Reason)

	case model.ActionDrop:
		if d.Rejected >= 0 {
			s.topo.AdjustTrust(d.Rejected, -s.opts.TrustPenalty)
		}
		if d.Overflow {
			s.agg.Collision()
		}
		s.drop(msg, h, d.Reason)

	default:
		logging.Warn("policy returned unknown action", "action", d.Action, "policy", s.policy.Name())
		s.drop(msg, h, ReasonPolicyError)
	}
}

// decide consults the policy with a private copy of msg, turning panics into errors
func (s *Simulator) decide(node model.Node, msg *model.Message) (d model.Decision, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("policy panic: %v", r)
		}
	}()
	c := cloneMessage(msg)
	return s.policy.Decide(node, &c, s.topo)
}

func (s *Simulator) drop(msg *model.Message, h hop, reason string) {
	msg.Status = model.StatusDropped
	s.agg.Dropped()
	s.record(msg, h, model.ActionDrop, reason)
}

func (s *Simulator) record(msg *model.Message, h hop, action model.Action, reason string) {
	s.agg.Record(model.LogEntry{
		Timestamp:  h.now,
		Tick:       h.tick,
		NodeID:     h.at,
		MessageID:  msg.ID,
		Payload:    msg.Payload,
		Congestion: h.congestion,
		Action:     action,
		Reason:     reason,
	})
	logging.Trace("hop",
		"tick", h.tick,
		"node", h.at,
		"messageID", msg.ID,
		"congestion", h.congestion,
		"action", string(action),
		"reason", reason,
	)
}

// snapshot builds an immutable view; callers hold s.mu or own s exclusively
func (s *Simulator) snapshot() *model.Snapshot {
	name := s.policy.Name()
	return &model.Snapshot{
		Type:   model.SnapshotType,
		Tick:   s.tick,
		Nodes:  s.topo.Nodes(),
		Stats:  s.agg.Stats(name, len(s.active)),
		Policy: name,
		Logs:   s.agg.Recent(s.opts.SnapshotLogs),
	}
}

func cloneMessage(m *model.Message) model.Message {
	c := *m
	c.Path = slices.Clone(m.Path)
	return c
}
