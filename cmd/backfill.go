package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Fetch and ingest quarterly full indexes",
	Long: `Downloads the quarterly full company index for every quarter from --from
through --to (quarters that have not started yet are skipped) and ingests
every unprocessed index file. The incremental last-date marker is not moved.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := interruptible(cmd.Context())
		defer stop()

		from, to, err := parseBackfillRange(cmd, time.Now())
		if err != nil {
			return err
		}
		if err := applyRunFlags(cmd, cfg); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		a, err := openApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		zap.L().Info("starting backfill", zap.Int("from", from), zap.Int("to", to))

		sum, err := a.driver.Backfill(ctx, from, to)
		a.writeMetrics()
		if err != nil {
			return eris.Wrap(err, "backfill")
		}

		fmt.Printf("Backfill complete: %d quarters fetched, %d files, %d new filings\n",
			sum.Fetch.Fetched, sum.FilesProcessed, sum.RecordsInserted)
		return nil
	},
}

func init() {
	backfillCmd.Flags().Int("from", 0, "first year to backfill (required)")
	backfillCmd.Flags().Int("to", 0, "last year to backfill (default: current year)")
	backfillCmd.Flags().Bool("skip-fetch", false, "ingest the local index tree without downloading")
	backfillCmd.Flags().Int("workers", 0, "number of files processed concurrently (overrides ingest.workers)")
	rootCmd.AddCommand(backfillCmd)
}

// parseBackfillRange reads --from and --to. --to defaults to the year of now.
func parseBackfillRange(cmd *cobra.Command, now time.Time) (int, int, error) {
	from, _ := cmd.Flags().GetInt("from")
	to, _ := cmd.Flags().GetInt("to")

	if from <= 0 {
		return 0, 0, eris.New("backfill: --from is required")
	}
	if to <= 0 {
		to = now.Year()
	}
	if from < 1993 {
		return 0, 0, eris.Errorf("backfill: EDGAR indexes start in 1993, got --from %d", from)
	}
	if to < from {
		return 0, 0, eris.Errorf("backfill: --to %d is before --from %d", to, from)
	}
	return from, to, nil
}
