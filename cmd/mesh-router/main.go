package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/ritzau/agentic-mesh/pkg/config"
	"github.com/ritzau/agentic-mesh/pkg/logging"
	"github.com/ritzau/agentic-mesh/pkg/policy"
	"github.com/ritzau/agentic-mesh/pkg/simulator"
	"github.com/ritzau/agentic-mesh/pkg/topology"
	"github.com/spf13/cobra"
)

var version = "0.1.0-dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "mesh-router",
		Short: "Agentic mesh router - hop-by-hop routing simulator",
		Long: `mesh-router simulates a small wireless mesh where every node decides,
hop by hop, whether to forward or drop each message.

Without a subcommand it runs the simulation and serves the live
dashboard (same as "mesh-router serve").`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}

	config.RegisterFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		newServeCmd(),
		newSimulateCmd(),
		newTopologyCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "mesh-router version %s\n", version)
		},
	}
}

// loadConfig layers file, env and flags, validates, and configures logging
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level, err := logging.ParseLevel(cfg.Verbosity, cfg.VerboseCnt)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}
	logging.SetOutput(os.Stderr, level, cfg.LogFormat == "json")
	return cfg, nil
}

// buildTopology loads the configured file or generates a mesh from the seed
func buildTopology(cfg *config.Config) (*topology.Topology, error) {
	var (
		topo *topology.Topology
		err  error
	)
	if cfg.TopologyFile != "" {
		topo, err = topology.LoadFile(cfg.TopologyFile)
	} else {
		topo, err = topology.Generate(cfg.GenerateOptions())
	}
	if err != nil {
		return nil, err
	}
	if err := topology.CheckServed(topo); err != nil {
		return nil, err
	}
	return topo, nil
}

// newFactory builds a fresh simulation per call; restarts reread the topology file
func newFactory(cfg *config.Config) simulator.Factory {
	return func() (*simulator.Simulator, error) {
		topo, err := buildTopology(cfg)
		if err != nil {
			return nil, err
		}
		engine, err := policy.New(cfg.PolicyKind(), cfg.PolicyConfig())
		if err != nil {
			return nil, err
		}
		return simulator.New(topo, engine, cfg.SimulatorOptions())
	}
}

// signalContext is cancelled on SIGINT/SIGTERM (Ctrl+C on Windows)
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	ch := make(chan os.Signal, 1)
	notifySignals(ch)

	go func() {
		defer signal.Stop(ch)
		select {
		case sig := <-ch:
			logging.Info("received signal, shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
