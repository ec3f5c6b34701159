package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"runstream/internal/service"
)

func syncCmd() *cobra.Command {
	var athleteFlag int64
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Fetch new runs from the provider and analyze them",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, calibOverrides{})
			if err != nil {
				return err
			}
			defer a.Close()

			athleteID, err := a.athleteID(athleteFlag)
			if err != nil {
				return err
			}

			progress := make(chan service.SyncProgress, 16)
			done := make(chan struct{})
			go func() {
				defer close(done)
				renderProgress(progress)
			}()

			summary, err := a.svc.Sync(ctx, athleteID, progress)
			<-done
			if err != nil {
				return consentHint(err)
			}

			fmt.Println()
			fmt.Printf("Fetched %d activities (%d runs stored), %d streams, %d analyses.\n",
				summary.ActivitiesFetched, summary.ActivitiesStored,
				summary.StreamsFetched, summary.ResultsComputed)
			for _, e := range summary.Errors {
				fmt.Printf("  warning: %v\n", e)
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&athleteFlag, "athlete", 0, "athlete ID (defaults to config, then stored token)")
	return cmd
}

var phaseLabels = map[string]string{
	"activities": "Fetching activity summaries",
	"streams":    "Fetching streams",
	"analysis":   "Analyzing",
}

// renderProgress redraws one status line per phase until the channel closes.
func renderProgress(progress <-chan service.SyncProgress) {
	var lastPhase string
	for p := range progress {
		if p.Phase != lastPhase {
			if lastPhase != "" {
				fmt.Println()
			}
			fmt.Printf("%s:\n", phaseLabels[p.Phase])
			lastPhase = p.Phase
		}
		if p.CurrentActivity != "" {
			fmt.Printf("\r  %d/%d  %-40.40s", p.Completed, p.Total, p.CurrentActivity)
		} else {
			fmt.Printf("\r  %d", p.Completed)
		}
	}
	if lastPhase != "" {
		fmt.Println()
	}
}
