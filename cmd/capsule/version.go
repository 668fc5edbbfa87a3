package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kbukum/capsule/version"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			v := version.Get()
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, v)
			if v.BuildTime != "" {
				fmt.Fprintf(out, "  built: %s\n", v.BuildTime)
			}
		},
	}
}
