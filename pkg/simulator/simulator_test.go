package simulator

import (
	"errors"
	"strings"
	"testing"

	"github.com/ritzau/agentic-mesh/pkg/model"
	"github.com/ritzau/agentic-mesh/pkg/policy"
	"github.com/ritzau/agentic-mesh/pkg/topology"
)

func newTopology(t *testing.T) *topology.Topology {
	t.Helper()
	topo, err := topology.Generate(topology.DefaultGenerateOptions(42))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	return topo
}

// line builds 0-1-2-...-(n-1)
func line(t *testing.T, n int) *topology.Topology {
	t.Helper()
	nodes := make([]model.Node, n)
	var edges []model.Edge
	for i := range nodes {
		nodes[i] = model.Node{ID: i, Capacity: 4, Trust: 0.9}
		if i > 0 {
			edges = append(edges, model.Edge{A: i - 1, B: i, Cost: 1})
		}
	}
	topo, err := topology.New(nodes, edges)
	if err != nil {
		t.Fatalf("building line: %v", err)
	}
	return topo
}

func newEngine(t *testing.T, kind policy.Kind) *policy.Engine {
	t.Helper()
	e, err := policy.New(kind, policy.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func newSim(t *testing.T, topo *topology.Topology, d Decider, opts Options) *Simulator {
	t.Helper()
	sim, err := New(topo, d, opts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return sim
}

func quietOptions() Options {
	opts := DefaultOptions()
	opts.Rate = 0
	return opts
}

// stubDecider lets tests script misbehaving policies
type stubDecider struct {
	decide func(node model.Node, msg *model.Message) (model.Decision, error)
}

func (s stubDecider) Name() string { return "stub" }

func (s stubDecider) Decide(node model.Node, msg *model.Message, _ policy.Graph) (model.Decision, error) {
	return s.decide(node, msg)
}

func TestScenario_ThresholdDeliversAndDrops(t *testing.T) {
	opts := DefaultOptions()
	opts.LogCapacity = 5000
	opts.SnapshotLogs = 5000
	sim := newSim(t, newTopology(t), newEngine(t, policy.KindThreshold), opts)

	var snap *model.Snapshot
	for i := 0; i < 50; i++ {
		snap = sim.Step()
	}
	if snap.Stats.Transmitted == 0 {
		t.Errorf("Expected transmitted > 0 after 50 ticks, got %+v", snap.Stats)
	}

	sawForward, sawDrop := false, false
	for i := 50; i < 200; i++ {
		snap = sim.Step()
	}
	for _, entry := range snap.Logs {
		switch entry.Action {
		case model.ActionForward:
			sawForward = true
		case model.ActionDrop:
			sawDrop = true
		default:
			t.Fatalf("Unexpected log action %q", entry.Action)
		}
	}
	if !sawForward || !sawDrop {
		t.Errorf("Expected both FORWARD and DROP within 200 ticks (forward=%v drop=%v)", sawForward, sawDrop)
	}
}

func TestInvariants_AcrossPolicies(t *testing.T) {
	for _, kind := range policy.Kinds() {
		t.Run(kind.String(), func(t *testing.T) {
			sim := newSim(t, newTopology(t), newEngine(t, kind), DefaultOptions())
			ttl := sim.Generator().TTL()

			if p := sim.Snapshot().Policy; p == "" || p == "unknown" {
				t.Fatalf("Expected policy name from the first snapshot, got %q", p)
			}

			var lastTotal uint64
			for i := 0; i < 150; i++ {
				snap := sim.Step()

				total := snap.Stats.Transmitted + snap.Stats.Dropped
				if total < lastTotal {
					t.Fatalf("tick %d: transmitted+dropped decreased from %d to %d", snap.Tick, lastTotal, total)
				}
				lastTotal = total

				if len(snap.Nodes) != 15 {
					t.Fatalf("tick %d: expected 15 nodes, got %d", snap.Tick, len(snap.Nodes))
				}

				for _, m := range sim.Active() {
					seen := make(map[int]bool)
					for _, id := range m.Path {
						if seen[id] {
							t.Fatalf("message %s revisited node %d: %v", m.ID, id, m.Path)
						}
						seen[id] = true
					}
					if m.Hops > ttl {
						t.Fatalf("message %s in flight after %d hops, ttl %d", m.ID, m.Hops, ttl)
					}
				}
			}
		})
	}
}

func TestLoadTracksResidentMessages(t *testing.T) {
	sim := newSim(t, newTopology(t), newEngine(t, policy.KindFlood), DefaultOptions())

	for i := 0; i < 30; i++ {
		snap := sim.Step()

		want := make(map[int]int)
		for _, m := range sim.Active() {
			want[m.Current]++
		}
		for _, n := range snap.Nodes {
			if n.Load != want[n.ID] {
				t.Fatalf("tick %d: node %d load %d, expected %d", snap.Tick, n.ID, n.Load, want[n.ID])
			}
		}
	}
}

func TestScenario_SelfAddressedDeliveredWithZeroHops(t *testing.T) {
	sim := newSim(t, newTopology(t), newEngine(t, policy.KindThreshold), quietOptions())

	msg := sim.Generator().NewMessage(4, 4, "Ping: self", 0)
	if err := sim.Inject(msg); err != nil {
		t.Fatal(err)
	}

	snap := sim.Step()
	if snap.Stats.Transmitted != 1 || snap.Stats.Dropped != 0 {
		t.Fatalf("Expected one delivery and no drops, got %+v", snap.Stats)
	}
	if len(snap.Logs) != 1 || snap.Logs[0].Action != model.ActionForward || snap.Logs[0].NodeID != 4 {
		t.Fatalf("Expected a single FORWARD entry at node 4, got %+v", snap.Logs)
	}
	if !strings.Contains(snap.Logs[0].Reason, "0 hops") {
		t.Errorf("Expected zero-hop delivery reason, got %q", snap.Logs[0].Reason)
	}
	if len(sim.Active()) != 0 {
		t.Errorf("Expected no active messages, got %d", len(sim.Active()))
	}
}

func TestScenario_UntrustedMeshDropsEverything(t *testing.T) {
	opts := DefaultOptions()
	opts.Rate = 1
	opts.LogCapacity = 5000
	opts.SnapshotLogs = 5000
	topo := newTopology(t)
	sim := newSim(t, topo, newEngine(t, policy.KindThreshold), opts)

	for id := 0; id < topo.Len(); id++ {
		sim.SetTrust(id, 0.1)
	}

	var snap *model.Snapshot
	for i := 0; i < 100; i++ {
		snap = sim.Step()
	}

	if snap.Stats.Transmitted != 0 {
		t.Errorf("Expected no deliveries, got %d", snap.Stats.Transmitted)
	}
	if snap.Stats.Dropped == 0 {
		t.Fatal("Expected drops")
	}
	for _, entry := range snap.Logs {
		if entry.Action != model.ActionDrop {
			t.Fatalf("Expected only DROP entries, got %+v", entry)
		}
		if !strings.Contains(entry.Reason, "trust") {
			t.Errorf("Expected trust reason, got %q", entry.Reason)
		}
	}
}

func TestTTLExceededOverridesForward(t *testing.T) {
	sim := newSim(t, line(t, 6), newEngine(t, policy.KindFlood), quietOptions())

	msg := sim.Generator().NewMessage(0, 5, "Ping", 0)
	msg.TTL = 2
	if err := sim.Inject(msg); err != nil {
		t.Fatal(err)
	}

	sim.Step()
	snap := sim.Step()

	if snap.Stats.Dropped != 1 {
		t.Fatalf("Expected the message to be dropped, got %+v", snap.Stats)
	}
	if snap.Logs[0].Reason != ReasonTTLExceeded {
		t.Errorf("Expected %q, got %q", ReasonTTLExceeded, snap.Logs[0].Reason)
	}
	if len(sim.Active()) != 0 {
		t.Error("Expected no message left in flight")
	}
}

func TestArrivalOnLastHopIsDelivered(t *testing.T) {
	sim := newSim(t, line(t, 3), newEngine(t, policy.KindFlood), quietOptions())

	msg := sim.Generator().NewMessage(0, 2, "Ping", 0)
	msg.TTL = 2
	if err := sim.Inject(msg); err != nil {
		t.Fatal(err)
	}

	var snap *model.Snapshot
	for i := 0; i < 3; i++ {
		snap = sim.Step()
	}
	if snap.Stats.Transmitted != 1 || snap.Stats.Dropped != 0 {
		t.Errorf("Expected delivery on the last allowed hop, got %+v", snap.Stats)
	}
}

func TestCycleForcesDrop(t *testing.T) {
	back := stubDecider{decide: func(node model.Node, msg *model.Message) (model.Decision, error) {
		if node.ID == 1 {
			return model.Forward(0, "bounce"), nil
		}
		return model.Forward(1, "onward"), nil
	}}
	sim := newSim(t, line(t, 3), back, quietOptions())

	if err := sim.Inject(sim.Generator().NewMessage(0, 2, "Ping", 0)); err != nil {
		t.Fatal(err)
	}
	sim.Step()
	snap := sim.Step()

	if snap.Stats.Dropped != 1 || snap.Logs[0].Reason != ReasonCycleDetected {
		t.Errorf("Expected cycle drop, got %+v %+v", snap.Stats, snap.Logs)
	}
}

func TestPolicyFailuresBecomeDrops(t *testing.T) {
	tests := []struct {
		name   string
		decide func(model.Node, *model.Message) (model.Decision, error)
	}{
		{"error", func(model.Node, *model.Message) (model.Decision, error) {
			return model.Decision{}, errors.New("boom")
		}},
		{"panic", func(model.Node, *model.Message) (model.Decision, error) {
			panic("policy exploded")
		}},
		{"non-neighbor", func(model.Node, *model.Message) (model.Decision, error) {
			return model.Forward(2, "teleport"), nil
		}},
		{"unknown action", func(model.Node, *model.Message) (model.Decision, error) {
			return model.Decision{Action: "MAYBE"}, nil
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim := newSim(t, line(t, 3), stubDecider{decide: tt.decide}, quietOptions())
			if err := sim.Inject(sim.Generator().NewMessage(0, 2, "Ping", 0)); err != nil {
				t.Fatal(err)
			}

			snap := sim.Step()
			if snap.Stats.Dropped != 1 {
				t.Fatalf("Expected one drop, got %+v", snap.Stats)
			}
			if snap.Logs[0].Reason != ReasonPolicyError {
				t.Errorf("Expected %q, got %q", ReasonPolicyError, snap.Logs[0].Reason)
			}

			// The loop keeps going after a failure
			if next := sim.Step(); next.Tick != 2 {
				t.Errorf("Expected tick 2, got %d", next.Tick)
			}
		})
	}
}

func TestSnapshotsAreImmutable(t *testing.T) {
	sim := newSim(t, newTopology(t), newEngine(t, policy.KindThreshold), DefaultOptions())

	first := sim.Step()
	tx, drops, logs := first.Stats.Transmitted, first.Stats.Dropped, len(first.Logs)
	load0 := first.Nodes[0].Load

	for i := 0; i < 20; i++ {
		sim.Step()
	}

	if first.Tick != 1 || first.Stats.Transmitted != tx || first.Stats.Dropped != drops || len(first.Logs) != logs {
		t.Errorf("Published snapshot changed after later ticks: %+v", first.Stats)
	}
	if first.Nodes[0].Load != load0 {
		t.Error("Published node state changed after later ticks")
	}
	if sim.Snapshot().Tick != 21 {
		t.Errorf("Expected latest snapshot at tick 21, got %d", sim.Snapshot().Tick)
	}
}

func TestInject_RejectsUnknownNodes(t *testing.T) {
	sim := newSim(t, line(t, 3), newEngine(t, policy.KindFlood), quietOptions())
	if err := sim.Inject(sim.Generator().NewMessage(0, 9, "Ping", 0)); err == nil {
		t.Error("Expected error for unknown destination")
	}
}

func TestNew_RequiresNamedPolicy(t *testing.T) {
	if _, err := New(line(t, 3), nil, DefaultOptions()); err == nil {
		t.Error("Expected error for nil policy")
	}
}

func TestLogEntriesCarryPayloadAndCongestion(t *testing.T) {
	sim := newSim(t, line(t, 3), newEngine(t, policy.KindThreshold), quietOptions())

	// Four messages resident on a capacity-4 node: the first decision sees HIGH
	for i := 0; i < 4; i++ {
		if err := sim.Inject(sim.Generator().NewMessage(1, 2, "Telemetry: Temp 22C", 0)); err != nil {
			t.Fatal(err)
		}
	}

	snap := sim.Step()
	if len(snap.Logs) != 4 {
		t.Fatalf("Expected 4 log entries, got %d", len(snap.Logs))
	}
	for _, entry := range snap.Logs {
		if entry.Payload != "Telemetry: Temp 22C" {
			t.Errorf("Expected payload in log entry, got %q", entry.Payload)
		}
		if entry.Congestion == "" {
			t.Errorf("Expected congestion level in log entry %+v", entry)
		}
	}
	if first := snap.Logs[len(snap.Logs)-1]; first.Congestion != policy.CongestionHigh {
		t.Errorf("Expected HIGH congestion for the first decision, got %q", first.Congestion)
	}
	if last := snap.Logs[0]; last.Congestion != policy.CongestionLow {
		t.Errorf("Expected LOW congestion once the node drained, got %q", last.Congestion)
	}
}

func TestCollisionsCountFullBuffers(t *testing.T) {
	tests := []struct {
		name     string
		decision model.Decision
		want     uint64
	}{
		{"full buffer", model.Overflow(1, "node 1 congested: load 4/4"), 2},
		{"untrusted hop", model.Reject(1, "node 1 trust 0.10 below threshold 0.35"), 0},
		{"plain drop", model.Drop("no route toward 2"), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			refuse := stubDecider{decide: func(model.Node, *model.Message) (model.Decision, error) {
				return tt.decision, nil
			}}
			sim := newSim(t, line(t, 3), refuse, quietOptions())
			for i := 0; i < 2; i++ {
				if err := sim.Inject(sim.Generator().NewMessage(0, 2, "Ping", 0)); err != nil {
					t.Fatal(err)
				}
			}

			snap := sim.Step()
			if snap.Stats.Dropped != 2 {
				t.Fatalf("Expected 2 drops, got %+v", snap.Stats)
			}
			if snap.Stats.Collisions != tt.want {
				t.Errorf("Expected %d collisions, got %d", tt.want, snap.Stats.Collisions)
			}
		})
	}
}
