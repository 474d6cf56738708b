package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vyrodovalexey/avaroute/internal/assets"
	"github.com/vyrodovalexey/avaroute/internal/config"
	"github.com/vyrodovalexey/avaroute/internal/pattern"
	"github.com/vyrodovalexey/avaroute/internal/routes"
)

func validateCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration, manifest and routing file without serving",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}

			manifest, err := assets.LoadManifest(cfg.Assets.Manifest)
			if err != nil {
				return err
			}

			rf, err := config.LoadRouteFile(cfg.Routes.Path)
			if err != nil {
				return err
			}
			rs, err := routes.New(rf.Routes, pattern.NewCache())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "assets: %d\n", len(manifest.Assets))
			fmt.Fprintf(out, "rules: %d\n", len(rs.Rules()))
			summary := rs.Summary()
			for _, phase := range phaseOrder {
				if n := summary[phase]; n > 0 {
					fmt.Fprintf(out, "  %s: %d\n", phase, n)
				}
			}
			return nil
		},
	}
}

var phaseOrder = []routes.Phase{
	routes.PhaseNull,
	routes.PhaseMain,
	routes.PhaseFilesystem,
	routes.PhaseMiss,
	routes.PhaseRewrite,
	routes.PhaseHit,
	routes.PhaseError,
	routes.PhaseResource,
}
