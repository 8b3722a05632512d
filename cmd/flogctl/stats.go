package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flogdb/flog"
)

type statsOutput struct {
	BeginAddress          int64  `json:"beginAddress"`
	CommittedBeginAddress int64  `json:"committedBeginAddress"`
	CommittedUntilAddress int64  `json:"committedUntilAddress"`
	FlushedUntilAddress   int64  `json:"flushedUntilAddress"`
	TailAddress           int64  `json:"tailAddress"`
	RetiredSlots          uint64 `json:"retiredSlots"`
	FlushQueueDepth       int    `json:"flushQueueDepth"`
}

func newStatsCmd(dir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Dump current watermarks as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			lg, err := flog.Local(*dir).Open(context.Background())
			if err != nil {
				return err
			}
			defer lg.Dispose()

			st := lg.Stats()
			out := statsOutput{
				BeginAddress:          int64(lg.BeginAddress()),
				CommittedBeginAddress: int64(lg.CommittedBeginAddress()),
				CommittedUntilAddress: int64(lg.CommittedUntilAddress()),
				FlushedUntilAddress:   int64(lg.FlushedUntilAddress()),
				TailAddress:           int64(lg.TailAddress()),
				RetiredSlots:          st.RetiredSlots,
				FlushQueueDepth:       st.FlushQueueDepth,
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				return fmt.Errorf("encode stats: %w", err)
			}
			return nil
		},
	}
}
