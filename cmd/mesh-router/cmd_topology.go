package main

import (
	"github.com/spf13/cobra"
)

func newTopologyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "topology",
		Short: "Print the mesh topology as YAML",
		Long: `Print the generated (or loaded) topology as YAML. The output is a valid
--topology_file, so a generated mesh can be saved, edited and served
with --watch.`,
		Example: `  mesh-router topology --seed 7 > mesh.yaml
  mesh-router serve --topology_file mesh.yaml --watch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			topo, err := buildTopology(cfg)
			if err != nil {
				return err
			}
			data, err := topo.Marshal()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
