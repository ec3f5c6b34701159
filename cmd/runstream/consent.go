package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"runstream/internal/consent"
)

func consentCmd() *cobra.Command {
	var athleteFlag int64

	cmd := &cobra.Command{
		Use:   "consent",
		Short: "View or record processing consent",
		Long: "Telemetry processing needs an explicit decision. Until one is recorded,\n" +
			"ingest, analyze, and sync refuse to run.",
	}
	cmd.PersistentFlags().Int64Var(&athleteFlag, "athlete", 0, "athlete ID (defaults to config, then stored token)")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the recorded decision",
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
			rec, err := a.svc.Consent(ctx, athleteID)
			if err != nil {
				return err
			}
			if rec.State == consent.Unknown {
				fmt.Printf("Athlete %d: no decision recorded.\n", athleteID)
				return nil
			}
			fmt.Printf("Athlete %d: %s (recorded %s)\n",
				athleteID, rec.State, rec.UpdatedAt.Format("2006-01-02 15:04 MST"))
			return nil
		},
	}

	set := func(use, short string, state consent.State) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
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
				if err := a.svc.SetConsent(ctx, athleteID, state); err != nil {
					return err
				}
				fmt.Printf("Recorded: athlete %d consent %s.\n", athleteID, state)
				return nil
			},
		}
	}

	cmd.AddCommand(
		status,
		set("grant", "Allow telemetry processing", consent.Granted),
		set("deny", "Refuse telemetry processing", consent.Denied),
	)
	return cmd
}
