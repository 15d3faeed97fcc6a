package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	worldFlag  string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "worldline",
		Short:        "Event-sourced world state for stories and simulations",
		SilenceUsage: true,
	}
	root.Version = version
	root.SetVersionTemplate("{{.Version}}\n")
	root.PersistentFlags().StringVar(&configPath, "config", "worldline.yaml", "Project config file")
	root.PersistentFlags().StringVar(&worldFlag, "world", "", "World ID (defaults to the config's world)")
	root.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print records as JSON")

	root.AddCommand(initCmd())
	root.AddCommand(worldCmd())
	root.AddCommand(entityCmd())
	root.AddCommand(relationshipCmd())
	root.AddCommand(eventCmd())
	root.AddCommand(stateCmd())
	root.AddCommand(ingestCmd())
	root.AddCommand(validateCmd())
	root.AddCommand(projectCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(versionCmd())
	return root
}
