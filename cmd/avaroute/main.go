// Package main is the entry point for the avaroute routing service.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:   "avaroute",
		Short: "Route requests against a build-output routing file",
		Long: `avaroute serves a build output: static assets, functions and
prerendered pages, routed by the phase rules of its routing file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c",
		getEnvOrDefault("AVAROUTE_CONFIG", "avaroute.yaml"), "Path to configuration file")
	pf.StringVar(&g.logLevel, "log-level",
		getEnvOrDefault("AVAROUTE_LOG_LEVEL", ""), "Log level (debug, info, warn, error); overrides the config file")
	pf.StringVar(&g.logFormat, "log-format",
		getEnvOrDefault("AVAROUTE_LOG_FORMAT", ""), "Log format (json, console); overrides the config file")

	root.AddCommand(
		serveCmd(g),
		validateCmd(g),
		versionCmd(),
	)
	return root
}
