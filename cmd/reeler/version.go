package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/reelworks/reeler/pkg/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the reeler version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s %s/%s)\n",
				version.Full(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
