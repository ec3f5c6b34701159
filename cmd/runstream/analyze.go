package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"runstream/internal/fitfile"
	"runstream/internal/store"
	"runstream/internal/telemetry"
)

func analyzeCmd() *cobra.Command {
	var (
		fitPath     string
		streamsPath string
		activityID  int64
		asJSON      bool
		overrides   calibOverrides
	)
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze a run from a FIT file, a streams JSON file, or the local store",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, overrides)
			if err != nil {
				return err
			}
			defer a.Close()

			id := activityID
			switch {
			case fitPath != "":
				id, err = ingestFIT(ctx, a, fitPath, activityID)
			case streamsPath != "":
				if activityID == 0 {
					return errors.New("--activity is required with --streams")
				}
				err = ingestStreamsFile(ctx, a, streamsPath, activityID)
			case activityID == 0:
				return errors.New("pass --fit, --streams, or --activity")
			}
			if err != nil {
				return consentHint(err)
			}

			res, err := a.svc.Analyze(ctx, id)
			if err != nil {
				return consentHint(err)
			}

			if asJSON {
				data, err := res.Encode()
				if err != nil {
					return err
				}
				var pretty bytes.Buffer
				if err := json.Indent(&pretty, data, "", "  "); err != nil {
					return err
				}
				fmt.Println(pretty.String())
				return nil
			}

			renderResult(res, NewUnits(a.cfg.Display))
			return nil
		},
	}
	cmd.Flags().StringVar(&fitPath, "fit", "", "FIT file to import and analyze")
	cmd.Flags().StringVar(&streamsPath, "streams", "", "raw streams JSON file to import and analyze")
	cmd.Flags().Int64Var(&activityID, "activity", 0, "activity ID (required with --streams; optional otherwise)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result document instead of the summary")
	cmd.Flags().Float64Var(&overrides.thresholdHR, "threshold-hr", 0, "override threshold HR for this analysis")
	cmd.Flags().Float64Var(&overrides.maxHR, "max-hr", 0, "override max HR for this analysis")
	cmd.Flags().Float64Var(&overrides.restingHR, "resting-hr", 0, "override resting HR for this analysis")
	return cmd
}

// ingestFIT imports a FIT file into the local store. The activity ID
// defaults to the run's start time so re-imports overwrite rather than
// duplicate.
func ingestFIT(ctx context.Context, a *app, path string, activityID int64) (int64, error) {
	imp, err := fitfile.ReadFile(path)
	if err != nil {
		return 0, err
	}
	athleteID, err := a.athleteID(0)
	if err != nil {
		return 0, err
	}

	id := activityID
	if id == 0 {
		id = imp.Summary.StartTime.Unix()
	}
	act := store.Activity{
		ID:          id,
		AthleteID:   athleteID,
		Name:        filepath.Base(path),
		Sport:       imp.Summary.Sport,
		StartDate:   imp.Summary.StartTime,
		Distance:    imp.Summary.DistanceMeters,
		MovingTime:  imp.Summary.MovingSeconds,
		ElapsedTime: imp.Summary.ElapsedSeconds,
	}
	if _, err := a.svc.Ingest(ctx, act, imp.Raw); err != nil {
		return 0, err
	}
	return id, nil
}

// ingestStreamsFile imports a provider-shaped raw streams JSON document.
func ingestStreamsFile(ctx context.Context, a *app, path string, activityID int64) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading streams file: %w", err)
	}
	var raw telemetry.RawStreams
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decoding streams file: %w", err)
	}
	athleteID, err := a.athleteID(0)
	if err != nil {
		return err
	}

	var distance float64
	if len(raw.Distance) > 0 {
		distance = raw.Distance[len(raw.Distance)-1]
	}
	act := store.Activity{
		ID:          activityID,
		AthleteID:   athleteID,
		Name:        filepath.Base(path),
		Sport:       "Run",
		StartDate:   time.Now().UTC(),
		Distance:    distance,
		MovingTime:  len(raw.Time),
		ElapsedTime: len(raw.Time),
	}
	_, err = a.svc.Ingest(ctx, act, &raw)
	return err
}
