package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/edgar-index/internal/config"
	"github.com/sells-group/edgar-index/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show ingestion progress",
	Long:  "Displays the last-date marker, the number of processed index files, and stored row counts.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		return runStatus(cmd.Context(), os.Stdout, cfg)
	},
}

// runStatus prints the ledger and store state. Pending migrations are applied
// first so a fresh database reports an empty state.
func runStatus(ctx context.Context, out io.Writer, c *config.Config) error {
	loader, err := openLoader(ctx, c.Store)
	if err != nil {
		return err
	}
	defer loader.Close() //nolint:errcheck

	if err := loader.Migrate(ctx); err != nil {
		return eris.Wrap(err, "status")
	}

	led, err := openLedger(c, loader)
	if err != nil {
		return err
	}

	last, err := led.LastDate(ctx)
	if err != nil {
		return eris.Wrap(err, "status")
	}
	files, err := led.Len(ctx)
	if err != nil {
		return eris.Wrap(err, "status")
	}
	counts, err := loader.Counts(ctx)
	if err != nil {
		return eris.Wrap(err, "status")
	}

	formatStatus(out, last, files, counts)

	if rl := runLog(loader); rl != nil {
		runs, err := rl.Recent(ctx, 10)
		if err != nil {
			return eris.Wrap(err, "status")
		}
		if len(runs) > 0 {
			_, _ = fmt.Fprintln(out)
			formatRuns(out, runs)
		}
	}
	return nil
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// formatStatus writes a key/value summary to out.
func formatStatus(out io.Writer, last time.Time, files int, counts store.Counts) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "LAST DATE\t%s\n", last.Format("2006-01-02"))
	_, _ = fmt.Fprintf(w, "PROCESSED FILES\t%d\n", files)
	_, _ = fmt.Fprintf(w, "COMPANIES\t%d\n", counts.Companies)
	_, _ = fmt.Fprintf(w, "FILINGS\t%d\n", counts.Filings)
	_ = w.Flush()
}

// formatRuns writes a table of recent runs to out.
func formatRuns(out io.Writer, runs []store.RunEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RUN\tKIND\tSTATUS\tSTARTED\tDURATION\tERROR")
	_, _ = fmt.Fprintln(w, "---\t----\t------\t-------\t--------\t-----")

	for _, r := range runs {
		dur := "-"
		if r.CompletedAt != nil {
			dur = r.CompletedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(r.RunID),
			r.Kind,
			r.Status,
			r.StartedAt.Format("2006-01-02 15:04"),
			dur,
			truncate(r.Error, 60),
		)
	}
	_ = w.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
