// Reeler turns a source video into a short vertical reel: a pipeline of
// reasoning stages, each QA-gated, driven one-shot from the CLI or as a
// long-running daemon.
package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/reelworks/reeler/pkg/pipeline"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run executes the CLI and maps the outcome to an exit code: 0 delivered,
// 2 invalid arguments, 64 unrecoverable run failure, 130 interrupted,
// 1 anything else.
func run(args []string) int {
	root := newRootCmd()
	root.SetArgs(args)

	err := root.Execute()
	if err == nil {
		return 0
	}

	var userErr *pipeline.UserArgumentError
	if errors.As(err, &userErr) {
		fmt.Fprintf(os.Stderr, "reeler: %s\n%s\n", userErr.Reason, userErr.Hint)
		return 2
	}
	if errors.Is(err, pipeline.ErrInterrupted) {
		fmt.Fprintln(os.Stderr, "reeler: interrupted")
		return 130
	}
	var failed *pipeline.RunFailedError
	if errors.As(err, &failed) {
		fmt.Fprintf(os.Stderr, "reeler: %v\n", err)
		return 64
	}
	// Cobra reports an unknown subcommand as a plain error.
	if strings.HasPrefix(err.Error(), "unknown command") {
		fmt.Fprintf(os.Stderr, "reeler: %v\nsee 'reeler --help' for usage\n", err)
		return 2
	}
	fmt.Fprintf(os.Stderr, "reeler: %v\n", err)
	return 1
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "reeler",
		Short:         "Turn a source video into a short vertical reel",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config-dir", "",
		"configuration directory (default ./config, env CONFIG_DIR)")
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return pipeline.NewUserArgumentError(err.Error(),
			fmt.Sprintf("see '%s --help' for usage", cmd.CommandPath()))
	})

	root.AddCommand(newRunCmd())
	root.AddCommand(newDaemonCmd())
	root.AddCommand(newVersionCmd())
	return root
}
