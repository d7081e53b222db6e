package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/edgar-index/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "edgar-index",
	Short: "Incremental SEC EDGAR filing index ingester",
	Long: `Downloads the EDGAR daily company indexes published since the last run,
parses every unprocessed index file under the index directory, and loads
10-K, 10-Q and 8-K filings into the companies and filings tables.

Safe to re-run: processed files are recorded in the ledger and filings are
insert-or-skip on (cik, form_type, date_filed, filename).`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := interruptible(cmd.Context())
		defer stop()

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

		sum, err := a.driver.Run(ctx)
		a.writeMetrics()
		if err != nil {
			return eris.Wrap(err, "ingest")
		}

		fmt.Printf("Ingest complete: %d files, %d new filings, %d duplicates, last date %s\n",
			sum.FilesProcessed, sum.RecordsInserted, sum.Duplicates, sum.LastDate.Format("2006-01-02"))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	rootCmd.Flags().Bool("skip-fetch", false, "ingest the local index tree without downloading")
	rootCmd.Flags().Int("workers", 0, "number of files processed concurrently (overrides ingest.workers)")
}

// interruptible cancels ctx on SIGINT or SIGTERM so an interrupted run stops
// between records and leaves the ledger consistent.
func interruptible(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
}

// applyRunFlags copies explicitly set command-line flags over the loaded config.
func applyRunFlags(cmd *cobra.Command, c *config.Config) error {
	if cmd.Flags().Changed("skip-fetch") {
		v, err := cmd.Flags().GetBool("skip-fetch")
		if err != nil {
			return err
		}
		c.Ingest.SkipFetch = v
	}
	if cmd.Flags().Changed("workers") {
		v, err := cmd.Flags().GetInt("workers")
		if err != nil {
			return err
		}
		c.Ingest.Workers = v
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
