package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/flogdb/flog"
)

func newAppendCmd(dir *string) *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "append [value]",
		Short: "Append a record, read from stdin if value is omitted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var entry []byte
			if len(args) == 1 {
				entry = []byte(args[0])
			} else {
				data, err := io.ReadAll(os.Stdin)
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				entry = data
			}

			lg, err := flog.Local(*dir).Open(context.Background())
			if err != nil {
				return err
			}
			defer lg.Dispose()

			ctx := context.Background()
			var addr int64
			if wait {
				a, err := lg.Enqueue(ctx, entry)
				if err != nil {
					return err
				}
				if err := lg.Commit(ctx, true); err != nil {
					return err
				}
				addr = int64(a)
			} else {
				a, err := lg.Enqueue(ctx, entry)
				if err != nil {
					return err
				}
				addr = int64(a)
			}
			fmt.Printf("%d\n", addr)
			return nil
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "block until the record is durably committed")
	return cmd
}
