package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func newDBCommand(cmdCtx *commandContext) *cobra.Command {
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Inspect or initialize the workspace database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	dbCmd.AddCommand(newDBInitCommand(cmdCtx))
	dbCmd.AddCommand(newDBStatsCommand(cmdCtx))
	return dbCmd
}

func newDBInitCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create an empty workspace database",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := cmdCtx.openDatabase()
			if err != nil {
				return err
			}
			path := db.Path()
			if err := db.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Initialized database at %s\n", path)
			return nil
		},
	}
}

func newDBStatsCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show workspace database counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := cmdCtx.openDatabase()
			if err != nil {
				return err
			}
			defer db.Close()

			ctx := context.Background()

			cameras, err := db.ReadAllCameras(ctx)
			if err != nil {
				return err
			}
			numImages, err := db.NumImages(ctx)
			if err != nil {
				return err
			}
			numDescriptors, err := db.NumDescriptors(ctx)
			if err != nil {
				return err
			}
			maxDescriptors, err := db.MaxNumDescriptors(ctx)
			if err != nil {
				return err
			}
			numMatchedPairs, err := db.NumMatchedPairs(ctx)
			if err != nil {
				return err
			}

			printer := message.NewPrinter(language.English)
			count := func(n int) string { return printer.Sprintf("%d", n) }

			output := renderTable(
				[]string{"Metric", "Value"},
				[][]string{
					{"Cameras", count(len(cameras))},
					{"Images", count(numImages)},
					{"Descriptors", count(numDescriptors)},
					{"Max descriptors per image", count(maxDescriptors)},
					{"Matched pairs", count(numMatchedPairs)},
				},
				[]columnAlignment{alignLeft, alignRight},
			)
			fmt.Fprintln(cmd.OutOrStdout(), output)
			return nil
		},
	}
}
