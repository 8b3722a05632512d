// Command flogctl is an operator/debugging CLI for a local flog.Log. It
// is not a network service: every subcommand opens the log directory,
// performs one operation, and closes it again.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var dir string

	root := &cobra.Command{
		Use:   "flogctl",
		Short: "Inspect and operate a local flog append-only log",
	}
	root.PersistentFlags().StringVar(&dir, "dir", ".", "log directory")

	root.AddCommand(
		newAppendCmd(&dir),
		newReadCmd(&dir),
		newScanCmd(&dir),
		newTruncateCmd(&dir),
		newCommitCmd(&dir),
		newStatsCmd(&dir),
	)
	return root
}
