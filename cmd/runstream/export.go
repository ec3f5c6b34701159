package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"runstream/internal/export"
)

func exportCmd() *cobra.Command {
	var (
		activityID int64
		format     string
		outDir     string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write an activity's aligned telemetry and latest result to disk",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if activityID == 0 {
				return errors.New("--activity is required")
			}
			a, err := openApp(ctx, calibOverrides{})
			if err != nil {
				return err
			}
			defer a.Close()

			dir := outDir
			if dir == "" {
				dir = a.cfg.Data.ExportDir
			}
			if dir == "" {
				dir = "exports"
			}

			artifacts, err := a.svc.Export(ctx, activityID, export.Options{
				Dir:    dir,
				Format: format,
			})
			if err != nil {
				return err
			}

			fmt.Println("Wrote:")
			fmt.Printf("  %s\n", artifacts.StreamPath)
			fmt.Printf("  %s\n", artifacts.ResultPath)
			fmt.Printf("  %s\n", artifacts.SegmentsPath)
			return nil
		},
	}
	cmd.Flags().Int64Var(&activityID, "activity", 0, "activity ID to export")
	cmd.Flags().StringVar(&format, "format", export.FormatParquet, "stream format: parquet or csv")
	cmd.Flags().StringVar(&outDir, "out", "", "output directory (defaults to data.export_dir, then ./exports)")
	return cmd
}
