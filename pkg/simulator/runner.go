package simulator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ritzau/agentic-mesh/pkg/logging"
	"github.com/ritzau/agentic-mesh/pkg/model"
)

// Publisher receives the snapshot of every tick. Publish fans it out to
// observers; Retain only makes it what a newly connected observer sees.
// Neither may block.
type Publisher interface {
	Publish(snap *model.Snapshot)
	Retain(snap *model.Snapshot)
}

// Runner drives one Simulator at a fixed wall-clock interval
type Runner struct {
	sim      *Simulator
	pub      Publisher
	interval time.Duration
	every    uint64 // Publish every N ticks
}

// NewRunner creates a runner publishing every `every` ticks (minimum 1)
func NewRunner(sim *Simulator, pub Publisher, interval time.Duration, every int) *Runner {
	if every < 1 {
		every = 1
	}
	return &Runner{sim: sim, pub: pub, interval: interval, every: uint64(every)}
}

// Run publishes the current snapshot, then steps until ctx is cancelled
func (r *Runner) Run(ctx context.Context) error {
	if r.interval <= 0 {
		return errors.New("runner: tick interval must be positive")
	}

	r.pub.Publish(r.sim.Snapshot())

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			snap := r.sim.Step()
			if snap.Tick%r.every == 0 {
				r.pub.Publish(snap)
			} else {
				r.pub.Retain(snap)
			}
			if snap.Tick%100 == 0 {
				logging.Debug("simulation progress",
					"tick", snap.Tick,
					"transmitted", snap.Stats.Transmitted,
					"dropped", snap.Stats.Dropped,
					"inFlight", snap.Stats.InFlight,
				)
			}
		}
	}
}

// Factory builds a fresh simulation instance
type Factory func() (*Simulator, error)

// Supervisor keeps one simulation running and swaps it on Restart.
// Observers stay subscribed to the same publisher across restarts.
type Supervisor struct {
	factory  Factory
	pub      Publisher
	interval time.Duration
	every    int

	mu       sync.RWMutex
	current  *Simulator
	restarts chan struct{}
}

// NewSupervisor builds the first simulation; a failure here is fatal to the caller
func NewSupervisor(factory Factory, pub Publisher, interval time.Duration, every int) (*Supervisor, error) {
	sim, err := factory()
	if err != nil {
		return nil, err
	}
	return &Supervisor{
		factory:  factory,
		pub:      pub,
		interval: interval,
		every:    every,
		current:  sim,
		restarts: make(chan struct{}, 1),
	}, nil
}

// Current returns the running simulation
func (s *Supervisor) Current() *Simulator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Snapshot returns the running simulation's latest snapshot
func (s *Supervisor) Snapshot() *model.Snapshot {
	return s.Current().Snapshot()
}

// Topology returns the running simulation's static topology
func (s *Supervisor) Topology() model.TopologyView {
	return s.Current().Topology()
}

// Restart requests a fresh simulation. Requests coalesce while one is pending.
func (s *Supervisor) Restart() {
	select {
	case s.restarts <- struct{}{}:
	default:
	}
}

// Run drives the current simulation until ctx is cancelled
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		runCtx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		runner := NewRunner(s.Current(), s.pub, s.interval, s.every)
		go func() { done <- runner.Run(runCtx) }()

	wait:
		for {
			select {
			case <-ctx.Done():
				cancel()
				<-done
				return nil

			case err := <-done:
				cancel()
				if ctx.Err() != nil {
					return nil
				}
				return err

			case <-s.restarts:
				next, err := s.factory()
				if err != nil {
					logging.Error("restart rejected, keeping current simulation", "error", err)
					continue
				}
				cancel()
				<-done

				s.mu.Lock()
				s.current = next
				s.mu.Unlock()
				logging.Info("simulation restarted",
					"policy", next.PolicyName(),
					"nodes", len(next.Topology().Nodes),
					"diameter", next.Topology().Diameter,
				)
				break wait
			}
		}
	}
}
