package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the companies and filings tables",
	Long:  "Applies all pending schema migrations to the configured store. Safe to run repeatedly.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := interruptible(cmd.Context())
		defer stop()

		if err := cfg.Validate(); err != nil {
			return err
		}

		loader, err := openLoader(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer loader.Close() //nolint:errcheck

		if err := loader.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate")
		}

		zap.L().Info("all migrations applied successfully", zap.String("driver", cfg.Store.Driver))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
