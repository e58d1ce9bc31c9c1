package cmd

import (
	"github.com/spf13/cobra"

	"capture-agent/config"
)

func Root(config *config.Config) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "capture-agent",
		Short: "durable audio capture agent",
	}
	rootCmd.AddCommand(server(config))
	return rootCmd
}
