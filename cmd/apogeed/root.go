package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is set by the release build.
var version = "dev"

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "apogeed",
		Short:         "apogeed runs the apogee subsystem orchestrator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCommand())
	root.AddCommand(newVersionCommand())
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the apogeed version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "apogeed %s\n", version)
		},
	}
}
