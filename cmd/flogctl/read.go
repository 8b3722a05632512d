package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/flogdb/flog"
	"github.com/flogdb/flog/core"
)

func newReadCmd(dir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "read <address>",
		Short: "Read the record at a logical address",
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

			rec, err := lg.ReadAsync(context.Background(), core.Address(n), 256)
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(rec)
			return err
		},
	}
}
