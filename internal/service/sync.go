package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"runstream/internal/provider"
	"runstream/internal/store"
	"runstream/internal/telemetry"
	"runstream/internal/xslog"
)

const (
	// streamBatchSize caps stream fetches per sync pass to stay inside
	// the provider's 15-minute window.
	streamBatchSize = 50
	lastSyncKey     = "last_activity_sync"
)

// ErrNoSource is returned by Sync when no provider client is configured.
var ErrNoSource = errors.New("no telemetry provider configured")

// SyncProgress reports progress during sync.
type SyncProgress struct {
	Phase           string // "activities", "streams", "analysis"
	Total           int
	Completed       int
	CurrentActivity string
}

// SyncSummary contains the results of a sync pass.
type SyncSummary struct {
	ActivitiesFetched int
	ActivitiesStored  int
	StreamsFetched    int
	ResultsComputed   int
	Errors            []error
}

// Sync performs a full pass: activity summaries, then streams for
// activities missing them, then analysis for streams without results.
// Per-activity failures accumulate in the summary; phase-level failures
// abort.
func (s *Service) Sync(ctx context.Context, athleteID int64, progress chan<- SyncProgress) (*SyncSummary, error) {
	if progress != nil {
		defer close(progress)
	}
	if s.source == nil {
		return nil, ErrNoSource
	}
	if err := s.authorize(ctx, athleteID); err != nil {
		return nil, err
	}

	summary := &SyncSummary{}

	if err := s.syncActivities(ctx, athleteID, progress, summary); err != nil {
		return summary, fmt.Errorf("syncing activities: %w", err)
	}
	if err := s.syncStreams(ctx, athleteID, progress, summary); err != nil {
		return summary, fmt.Errorf("syncing streams: %w", err)
	}
	if err := s.analyzePending(ctx, athleteID, progress, summary); err != nil {
		return summary, fmt.Errorf("analyzing activities: %w", err)
	}

	xslog.FromContext(ctx).Info("sync complete",
		xslog.AthleteID(athleteID),
		xslog.Count(summary.StreamsFetched))
	return summary, nil
}

func (s *Service) syncActivities(ctx context.Context, athleteID int64, progress chan<- SyncProgress, summary *SyncSummary) error {
	var after time.Time
	if lastSync, err := s.store.GetSyncState(ctx, lastSyncKey); err == nil && lastSync != "" {
		after, _ = time.Parse(time.RFC3339, lastSync)
	}

	activities, err := s.source.GetAllActivities(ctx, after, func(fetched int) {
		if progress != nil {
			progress <- SyncProgress{Phase: "activities", Total: fetched, Completed: fetched}
		}
	})
	if err != nil {
		return err
	}
	summary.ActivitiesFetched = len(activities)

	for _, a := range activities {
		if a.SportType != "Run" {
			continue
		}
		act := convertActivity(a, athleteID)
		if err := s.store.UpsertActivity(ctx, act); err != nil {
			summary.Errors = append(summary.Errors, fmt.Errorf("storing activity %d: %w", a.ID, err))
			continue
		}
		summary.ActivitiesStored++
	}

	return s.store.SetSyncState(ctx, lastSyncKey, time.Now().UTC().Format(time.RFC3339))
}

func (s *Service) syncStreams(ctx context.Context, athleteID int64, progress chan<- SyncProgress, summary *SyncSummary) error {
	activities, err := s.store.UnsyncedActivities(ctx, athleteID, streamBatchSize)
	if err != nil {
		return fmt.Errorf("listing unsynced activities: %w", err)
	}
	if len(activities) == 0 {
		return nil
	}

	for i, act := range activities {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if progress != nil {
			progress <- SyncProgress{
				Phase:           "streams",
				Total:           len(activities),
				Completed:       i,
				CurrentActivity: act.Name,
			}
		}

		streams, err := s.source.GetStreams(ctx, act.ID)
		if err != nil {
			// Some activities legitimately have no streams; record and move on.
			summary.Errors = append(summary.Errors, fmt.Errorf("activity %d (%s): %w", act.ID, act.Name, err))
			continue
		}
		stream, err := telemetry.Align(streams.ToRaw())
		if err != nil {
			summary.Errors = append(summary.Errors, fmt.Errorf("aligning activity %d: %w", act.ID, err))
			continue
		}
		if err := s.store.SaveStream(ctx, act.ID, stream); err != nil {
			summary.Errors = append(summary.Errors, fmt.Errorf("saving stream for %d: %w", act.ID, err))
			continue
		}
		summary.StreamsFetched++
	}

	if progress != nil {
		progress <- SyncProgress{Phase: "streams", Total: len(activities), Completed: len(activities)}
	}
	return nil
}

func (s *Service) analyzePending(ctx context.Context, athleteID int64, progress chan<- SyncProgress, summary *SyncSummary) error {
	activities, err := s.store.UnanalyzedActivities(ctx, athleteID)
	if err != nil {
		return fmt.Errorf("listing unanalyzed activities: %w", err)
	}
	if len(activities) == 0 {
		return nil
	}

	for i, act := range activities {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if progress != nil {
			progress <- SyncProgress{
				Phase:           "analysis",
				Total:           len(activities),
				Completed:       i,
				CurrentActivity: act.Name,
			}
		}

		if _, err := s.Analyze(ctx, act.ID); err != nil {
			summary.Errors = append(summary.Errors, fmt.Errorf("analyzing activity %d: %w", act.ID, err))
			continue
		}
		summary.ResultsComputed++
	}

	if progress != nil {
		progress <- SyncProgress{Phase: "analysis", Total: len(activities), Completed: len(activities)}
	}
	return nil
}

// convertActivity maps a provider activity onto the stored form. The
// athlete ID from config wins when the wire summary omits it.
func convertActivity(a provider.Activity, athleteID int64) *store.Activity {
	if a.Athlete.ID != 0 {
		athleteID = a.Athlete.ID
	}
	return &store.Activity{
		ID:          a.ID,
		AthleteID:   athleteID,
		Name:        a.Name,
		Sport:       a.SportType,
		StartDate:   a.StartDate,
		Distance:    a.Distance,
		MovingTime:  a.MovingTime,
		ElapsedTime: a.ElapsedTime,
	}
}
