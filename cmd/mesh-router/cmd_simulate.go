package main

import (
	"fmt"

	"github.com/ritzau/agentic-mesh/pkg/config"
	"github.com/ritzau/agentic-mesh/pkg/logging"
	"github.com/ritzau/agentic-mesh/pkg/model"
	"github.com/ritzau/agentic-mesh/pkg/output"
	"github.com/spf13/cobra"
)

// headlessLogCapacity keeps every entry of a busy tick for drop accounting
const headlessLogCapacity = 4096

func newSimulateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "simulate",
		Short: "Run the simulation headless and print a report",
		Long: `Run duration/tick ticks as fast as possible, without a web server,
then print delivery statistics and drop reasons.`,
		Example: `  mesh-router simulate --policy flood --duration 1m
  MESH_POLICY=threshold mesh-router simulate --seed 7`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			report, err := simulate(cfg, func() bool { return ctx.Err() != nil })
			if err != nil {
				return err
			}
			output.PrintRunReport(cmd.OutOrStdout(), *report)
			return nil
		},
	}
}

// simulate steps a fresh simulation for cfg.Duration worth of ticks or until stop reports true
func simulate(cfg *config.Config, stop func() bool) (*output.RunReport, error) {
	headless := *cfg
	headless.LogCapacity = max(cfg.LogCapacity, headlessLogCapacity)
	headless.SnapshotLogs = headless.LogCapacity

	sim, err := newFactory(&headless)()
	if err != nil {
		return nil, fmt.Errorf("building simulation: %w", err)
	}

	ticks := max(uint64(cfg.Duration/cfg.Tick), 1)
	logging.Info("running headless simulation", "policy", sim.PolicyName(), "ticks", ticks)

	drops := make(map[string]uint64)
	snap := sim.Snapshot()
	for snap.Tick < ticks && !stop() {
		snap = sim.Step()
		output.CountDrops(drops, entriesAt(snap.Logs, snap.Tick))
	}

	view := sim.Topology()
	return &output.RunReport{
		Policy:      sim.PolicyName(),
		Seed:        cfg.Seed,
		Nodes:       len(view.Nodes),
		Edges:       len(view.Edges),
		Diameter:    view.Diameter,
		TTL:         sim.Generator().TTL(),
		Ticks:       snap.Tick,
		Stats:       snap.Stats,
		DropReasons: drops,
	}, nil
}

// entriesAt returns the newest-first prefix of logs recorded at tick
func entriesAt(logs []model.LogEntry, tick uint64) []model.LogEntry {
	for i, e := range logs {
		if e.Tick != tick {
			return logs[:i]
		}
	}
	return logs
}
