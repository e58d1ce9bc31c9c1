package cmd

import (
	"github.com/spf13/cobra"

	"capture-agent/config"
	server2 "capture-agent/server"
)

func server(config *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "start the capture control API",
		Run: func(cmd *cobra.Command, args []string) {
			server2.RunHttp(config)
		},
	}
}
