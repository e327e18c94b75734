package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"parallax/internal/matching"
)

func newImportCommand(cmdCtx *commandContext) *cobra.Command {
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Import externally computed data",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	featuresCmd := &cobra.Command{
		Use:   "features <match-list>",
		Short: "Import feature matches from a record file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := cmdCtx.ensureLogger()
			if err != nil {
				return err
			}

			db, err := cmdCtx.openDatabase()
			if err != nil {
				return err
			}
			defer db.Close()

			importer, err := matching.NewFeaturePairsImporter(matching.FeaturePairsOptions{MatchListPath: args[0]}, db, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return importer.Run(ctx)
		},
	}

	importCmd.AddCommand(featuresCmd)
	return importCmd
}
