package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/ritzau/agentic-mesh/pkg/logging"
	"github.com/ritzau/agentic-mesh/pkg/pubsub"
	"github.com/ritzau/agentic-mesh/pkg/simulator"
	"github.com/ritzau/agentic-mesh/pkg/watcher"
	"github.com/ritzau/agentic-mesh/pkg/web"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the simulation and serve the live dashboard",
		Long: `Run the simulation loop at the configured tick and push snapshots to
observers over websocket (/ws) and Server-Sent Events.

With --watch and --topology_file, editing the topology file restarts the
simulation without disconnecting observers.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}
}

func runServe(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	hub := pubsub.NewHub(cfg.QueueDepth)
	sup, err := simulator.NewSupervisor(newFactory(cfg), hub, cfg.Tick, cfg.BroadcastEvery)
	if err != nil {
		logging.Fatal("failed to build simulation", "error", err)
	}

	view := sup.Topology()
	logging.Info("simulation ready",
		"policy", sup.Current().PolicyName(),
		"nodes", len(view.Nodes),
		"links", len(view.Edges),
		"diameter", view.Diameter,
		"tick", cfg.Tick.String(),
	)

	// Ending every subscription lets streaming handlers return during shutdown
	go func() {
		<-ctx.Done()
		hub.Close()
	}()

	if cfg.Watch {
		go func() {
			if err := watcher.WatchTopology(ctx, cfg.TopologyFile, sup.Restart); err != nil {
				logging.Error("topology watcher stopped", "error", err)
			}
		}()
	}

	simDone := make(chan error, 1)
	go func() { simDone <- sup.Run(ctx) }()

	server := web.NewServer(sup, hub)
	webErr := server.Start(ctx, fmt.Sprintf(":%d", cfg.Port))
	cancel()

	if err := <-simDone; err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("simulation: %w", err)
	}
	if webErr != nil {
		return webErr
	}
	logging.Info("shutdown complete")
	return nil
}
