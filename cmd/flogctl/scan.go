package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/flogdb/flog"
	"github.com/flogdb/flog/core"
	"github.com/flogdb/flog/scan"
)

func newScanCmd(dir *string) *cobra.Command {
	var from, to int64
	var uncommitted bool

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan committed records forward from an address",
		RunE: func(cmd *cobra.Command, args []string) error {
			lg, err := flog.Local(*dir).Open(context.Background())
			if err != nil {
				return err
			}
			defer lg.Dispose()

			var opts []scan.Option
			if uncommitted {
				opts = append(opts, scan.WithUncommitted())
			}

			ctx := context.Background()
			s := lg.Scan(ctx, core.Address(from), opts...)
			defer s.Close()

			for {
				addr, rec, err := s.Next(ctx)
				if err != nil {
					if errors.Is(err, scan.ErrDone) {
						return nil
					}
					return err
				}
				if to > 0 && int64(addr) >= to {
					return nil
				}
				fmt.Printf("%d\t%s\n", int64(addr), strconv.Quote(string(rec)))
			}
		},
	}
	cmd.Flags().Int64Var(&from, "from", 0, "starting address")
	cmd.Flags().Int64Var(&to, "to", 0, "stop before this address (0 means unbounded)")
	cmd.Flags().BoolVar(&uncommitted, "uncommitted", false, "scan up to FlushedUntilAddress instead of CommittedUntilAddress")
	return cmd
}
