package main

import (
	"github.com/spf13/cobra"

	"github.com/bowerhall/gatekeeper/internal/config"
)

func newRootCmd() *cobra.Command {
	serveCmd := newServeCmd()

	rootCmd := &cobra.Command{
		Use:           "gatekeeper",
		Short:         "Challenge new chat members with an arithmetic puzzle",
		Long:          "gatekeeper greets every new member of a group chat with a small sum, removes members who answer wrong and cleans up the conversation afterwards.",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          serveCmd.RunE,
	}

	rootCmd.AddCommand(
		serveCmd,
		newConfigCmd(),
	)

	return rootCmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Connect to the chat platform and start verifying members",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}
