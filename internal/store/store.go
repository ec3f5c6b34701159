// Package store persists activities, aligned telemetry, consent, and
// versioned analysis results. Two backends implement the same interface:
// sqlite for the CLI's local database and postgres for the server.
package store

import (
	"context"
	"errors"
	"time"

	"runstream/internal/analysis"
	"runstream/internal/consent"
	"runstream/internal/telemetry"
)

// ErrActivityNotFound is returned when an activity doesn't exist
var ErrActivityNotFound = errors.New("activity not found")

// ErrNoStream is returned when an activity has no persisted telemetry
var ErrNoStream = errors.New("no stream stored for activity")

// ErrResultNotFound is returned when an analysis result doesn't exist
var ErrResultNotFound = errors.New("analysis result not found")

// Activity is the summary row for one recorded run.
type Activity struct {
	ID           int64     `json:"id"`
	AthleteID    int64     `json:"athlete_id"`
	Name         string    `json:"name"`
	Sport        string    `json:"sport"`
	StartDate    time.Time `json:"start_date"`
	Distance     float64   `json:"distance"`
	MovingTime   int       `json:"moving_time"`
	ElapsedTime  int       `json:"elapsed_time"`
	StreamSynced bool      `json:"stream_synced"`
}

// ResultSummary is the indexed view of one stored analysis result, without
// the full payload.
type ResultSummary struct {
	ID         string        `json:"id"`
	ActivityID int64         `json:"activity_id"`
	AthleteID  int64         `json:"athlete_id"`
	Version    int           `json:"version"`
	ComputedAt time.Time     `json:"computed_at"`
	Tier       analysis.Tier `json:"tier_used"`
	Confidence float64       `json:"confidence"`
	Comparable bool          `json:"cross_run_comparable"`
}

// Store is the persistence surface the service layer depends on. Both
// backends satisfy it; callers receive whichever the deployment selected.
type Store interface {
	UpsertActivity(ctx context.Context, a *Activity) error
	GetActivity(ctx context.Context, id int64) (*Activity, error)
	ListActivities(ctx context.Context, athleteID int64, limit int) ([]Activity, error)
	// UnanalyzedActivities lists synced activities with no stored result.
	UnanalyzedActivities(ctx context.Context, athleteID int64) ([]Activity, error)
	// UnsyncedActivities lists activities whose streams have not been
	// fetched yet, oldest first, capped at limit.
	UnsyncedActivities(ctx context.Context, athleteID int64, limit int) ([]Activity, error)

	// SaveStream replaces the aligned telemetry for an activity and marks
	// it synced.
	SaveStream(ctx context.Context, activityID int64, stream *telemetry.Stream) error
	GetStream(ctx context.Context, activityID int64) (*telemetry.Stream, error)

	// SaveResult appends one immutable versioned result. Re-saving an
	// existing (activity, version) pair is an error.
	SaveResult(ctx context.Context, result *analysis.Result) error
	GetResult(ctx context.Context, id string) (*analysis.Result, error)
	ResultByVersion(ctx context.Context, activityID int64, version int) (*analysis.Result, error)
	LatestResult(ctx context.Context, activityID int64) (*analysis.Result, error)
	ListResults(ctx context.Context, activityID int64) ([]ResultSummary, error)
	// NextResultVersion returns one past the highest stored version, 1 for
	// a never-analyzed activity.
	NextResultVersion(ctx context.Context, activityID int64) (int, error)

	// GetConsent returns the athlete's ledger entry. A missing row reads
	// as Unknown, never as Denied.
	GetConsent(ctx context.Context, athleteID int64) (consent.Record, error)
	SetConsent(ctx context.Context, athleteID int64, state consent.State) error

	// GetCalibration returns the athlete's stored reference values. A
	// missing row reads as a zero Calibration.
	GetCalibration(ctx context.Context, athleteID int64) (analysis.Calibration, error)
	SetCalibration(ctx context.Context, athleteID int64, cal analysis.Calibration) error

	GetSyncState(ctx context.Context, key string) (string, error)
	SetSyncState(ctx context.Context, key, value string) error

	Close() error
}
