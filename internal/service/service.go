// Package service orchestrates ingestion, analysis, and archival over the
// store. Every operation that processes athlete telemetry checks the
// consent ledger first; reads of already-derived results do not.
package service

import (
	"context"
	"fmt"
	"time"

	"runstream/internal/analysis"
	"runstream/internal/consent"
	"runstream/internal/export"
	"runstream/internal/provider"
	"runstream/internal/store"
	"runstream/internal/telemetry"
	"runstream/internal/xslog"
)

// TelemetrySource is the slice of the provider API that sync needs.
// *provider.Client satisfies it; tests substitute a fake.
type TelemetrySource interface {
	GetAllActivities(ctx context.Context, after time.Time, onProgress func(fetched int)) ([]provider.Activity, error)
	GetStreams(ctx context.Context, activityID int64) (*provider.Streams, error)
}

// Service wires the store, the optional provider client, and the default
// calibration into the pipeline operations. An athlete's stored
// calibration record outranks the default.
type Service struct {
	store  store.Store
	source TelemetrySource // nil for local-only setups
	cal    analysis.Calibration
}

// New builds a service. source may be nil when no provider is configured;
// Sync then reports that instead of panicking.
func New(st store.Store, source TelemetrySource, cal analysis.Calibration) *Service {
	return &Service{store: st, source: source, cal: cal}
}

// authorize enforces the consent ledger. Unknown and Denied surface as
// distinct errors so callers can map them separately.
func (s *Service) authorize(ctx context.Context, athleteID int64) error {
	record, err := s.store.GetConsent(ctx, athleteID)
	if err != nil {
		return fmt.Errorf("consent lookup for athlete %d: %w", athleteID, err)
	}
	if err := record.State.Allow(); err != nil {
		return fmt.Errorf("athlete %d: %w", athleteID, err)
	}
	return nil
}

// Ingest aligns a raw payload, stores the activity, and persists the
// stream. The raw payload is validated as delivered; absent channels stay
// absent.
func (s *Service) Ingest(ctx context.Context, act store.Activity, raw *telemetry.RawStreams) (*telemetry.Stream, error) {
	if err := s.authorize(ctx, act.AthleteID); err != nil {
		return nil, err
	}

	stream, err := telemetry.Align(raw)
	if err != nil {
		return nil, err
	}

	if err := s.store.UpsertActivity(ctx, &act); err != nil {
		return nil, fmt.Errorf("storing activity %d: %w", act.ID, err)
	}
	if err := s.store.SaveStream(ctx, act.ID, stream); err != nil {
		return nil, fmt.Errorf("saving stream for %d: %w", act.ID, err)
	}

	xslog.FromContext(ctx).Info("ingested stream",
		xslog.ActivityID(act.ID),
		xslog.AthleteID(act.AthleteID),
		xslog.Count(stream.Len()))
	return stream, nil
}

// Analyze runs the pipeline over the stored stream and appends a new
// versioned result. Earlier versions stay untouched. The athlete's stored
// calibration grades the run; the service default applies only when no
// record exists.
func (s *Service) Analyze(ctx context.Context, activityID int64) (*analysis.Result, error) {
	act, err := s.store.GetActivity(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, act.AthleteID); err != nil {
		return nil, err
	}

	stream, err := s.store.GetStream(ctx, activityID)
	if err != nil {
		return nil, err
	}
	cal, err := s.store.GetCalibration(ctx, act.AthleteID)
	if err != nil {
		return nil, fmt.Errorf("calibration lookup for athlete %d: %w", act.AthleteID, err)
	}
	if cal.IsZero() {
		cal = s.cal
	}
	version, err := s.store.NextResultVersion(ctx, activityID)
	if err != nil {
		return nil, fmt.Errorf("next version for %d: %w", activityID, err)
	}

	result, err := analysis.Analyze(ctx, stream, cal, analysis.Options{
		ActivityID: activityID,
		AthleteID:  act.AthleteID,
		Version:    version,
	})
	if err != nil {
		return nil, err
	}
	if err := s.store.SaveResult(ctx, result); err != nil {
		return nil, fmt.Errorf("saving result for %d: %w", activityID, err)
	}

	xslog.FromContext(ctx).Info("analysis complete",
		xslog.ActivityID(activityID),
		xslog.ResultID(result.ID),
		xslog.Tier(string(result.TierUsed)),
		xslog.Count(result.PointCount))
	return result, nil
}

// Compare diffs the latest results of two activities. Results are derived
// data, so no consent gate applies; comparability rules still do.
func (s *Service) Compare(ctx context.Context, baseActivityID, targetActivityID int64) (*analysis.Comparison, error) {
	base, err := s.store.LatestResult(ctx, baseActivityID)
	if err != nil {
		return nil, fmt.Errorf("base activity %d: %w", baseActivityID, err)
	}
	target, err := s.store.LatestResult(ctx, targetActivityID)
	if err != nil {
		return nil, fmt.Errorf("target activity %d: %w", targetActivityID, err)
	}
	return analysis.Compare(base, target)
}

// Export writes the stream and latest result artifacts for an activity.
func (s *Service) Export(ctx context.Context, activityID int64, opts export.Options) (*export.Artifacts, error) {
	stream, err := s.store.GetStream(ctx, activityID)
	if err != nil {
		return nil, err
	}
	result, err := s.store.LatestResult(ctx, activityID)
	if err != nil {
		return nil, err
	}
	arts, err := export.Write(stream, result, opts)
	if err != nil {
		return nil, err
	}
	xslog.FromContext(ctx).Info("exported artifacts",
		xslog.ActivityID(activityID),
		xslog.ResultID(result.ID))
	return arts, nil
}

// Activity returns one stored activity.
func (s *Service) Activity(ctx context.Context, id int64) (*store.Activity, error) {
	return s.store.GetActivity(ctx, id)
}

// Activities lists an athlete's stored activities, newest first.
func (s *Service) Activities(ctx context.Context, athleteID int64, limit int) ([]store.Activity, error) {
	return s.store.ListActivities(ctx, athleteID, limit)
}

// Stream returns the stored aligned telemetry for an activity.
func (s *Service) Stream(ctx context.Context, activityID int64) (*telemetry.Stream, error) {
	return s.store.GetStream(ctx, activityID)
}

// Result returns one stored result by ID.
func (s *Service) Result(ctx context.Context, id string) (*analysis.Result, error) {
	return s.store.GetResult(ctx, id)
}

// ResultByVersion returns one specific result version for an activity.
func (s *Service) ResultByVersion(ctx context.Context, activityID int64, version int) (*analysis.Result, error) {
	return s.store.ResultByVersion(ctx, activityID, version)
}

// LatestResult returns an activity's newest result.
func (s *Service) LatestResult(ctx context.Context, activityID int64) (*analysis.Result, error) {
	return s.store.LatestResult(ctx, activityID)
}

// Results lists an activity's result versions, newest first.
func (s *Service) Results(ctx context.Context, activityID int64) ([]store.ResultSummary, error) {
	return s.store.ListResults(ctx, activityID)
}

// Consent reads the athlete's ledger entry; absence reads as Unknown.
func (s *Service) Consent(ctx context.Context, athleteID int64) (consent.Record, error) {
	return s.store.GetConsent(ctx, athleteID)
}

// SetConsent records an explicit consent decision.
func (s *Service) SetConsent(ctx context.Context, athleteID int64, state consent.State) error {
	if err := s.store.SetConsent(ctx, athleteID, state); err != nil {
		return err
	}
	xslog.FromContext(ctx).Info("consent recorded",
		xslog.AthleteID(athleteID),
		xslog.Consent(state.String()))
	return nil
}

// Calibration reads the athlete's stored reference values; absence reads
// as a zero value.
func (s *Service) Calibration(ctx context.Context, athleteID int64) (analysis.Calibration, error) {
	return s.store.GetCalibration(ctx, athleteID)
}

// SetCalibration replaces the athlete's reference values. Results already
// computed keep the calibration they were graded with.
func (s *Service) SetCalibration(ctx context.Context, athleteID int64, cal analysis.Calibration) error {
	if err := s.store.SetCalibration(ctx, athleteID, cal); err != nil {
		return err
	}
	xslog.FromContext(ctx).Info("calibration recorded", xslog.AthleteID(athleteID))
	return nil
}
