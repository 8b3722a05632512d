package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/flogdb/flog"
)

func newCommitCmd(dir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "commit",
		Short: "Force the current tail page to flush and commit",
		RunE: func(cmd *cobra.Command, args []string) error {
			lg, err := flog.Local(*dir).Open(context.Background())
			if err != nil {
				return err
			}
			defer lg.Dispose()

			return lg.Commit(context.Background(), true)
		},
	}
}
