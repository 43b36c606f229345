package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "dev" // set via ldflags during build

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "scenectl",
		Short:         "Inspect battle scene recordings and layouts",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.Version = version
	root.SetVersionTemplate("{{.Version}}\n")
	root.PersistentFlags().String("config", "config/config.yaml", "path to configuration file")
	root.PersistentFlags().Bool("verbose", false, "log composer activity to stderr")
	root.AddCommand(replayCmd())
	root.AddCommand(resolveCmd())
	root.AddCommand(versionCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
