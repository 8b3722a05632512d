package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/flogdb/flog"
	"github.com/flogdb/flog/core"
)

func newTruncateCmd(dir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "truncate <address>",
		Short: "Advance BeginAddress, releasing storage below it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid address %q: %w", args[0], err)
			}

			lg, err := flog.Local(*dir).Open(context.Background())
			if err != nil {
				return err
			}
			defer lg.Dispose()

			return lg.TruncateUntil(context.Background(), core.Address(n))
		},
	}
}
