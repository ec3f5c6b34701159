package analysis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"runstream/internal/telemetry"
)

// Options carries per-run identity and overrides for one analysis.
type Options struct {
	ActivityID int64
	AthleteID  int64
	// Version stamps the result; the caller owns the sequence and zero
	// means first.
	Version int
	// Tuning overrides the default threshold table when non-nil.
	Tuning *Tuning
}

// Analyze runs the full pipeline over an aligned stream: grade the
// calibration tier, partition the run into segments, then fan the
// independent derivations out and join them into one immutable result.
// The stream is never mutated. A re-analysis mints a fresh result with its
// own ID under whatever version the caller assigns; nothing is updated in
// place.
func Analyze(ctx context.Context, stream *telemetry.Stream, calib Calibration, opts Options) (*Result, error) {
	if stream == nil || stream.Len() == 0 {
		return nil, &telemetry.IngestionError{Reason: "empty stream"}
	}

	tun := DefaultTuning()
	if opts.Tuning != nil {
		tun = *opts.Tuning
	}

	tier, flags := GradeCalibration(calib, stream, tun)
	segments := SegmentStream(stream, tier, tun)

	// Drift, moments, and intensity read the same immutable inputs and
	// write disjoint outputs, so they run concurrently and join here.
	var (
		drift      DriftReport
		driftFlags []string
		moments    []Moment
		curve      *IntensityCurve
		effort     EffortIntensity
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		drift, driftFlags = ComputeDrift(stream, segments, tun)
		return nil
	})
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		moments = DetectMoments(stream, segments, tun)
		return nil
	})
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		curve, effort = ComputeIntensity(stream, segments, tier, tun)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	version := opts.Version
	if version <= 0 {
		version = 1
	}

	estimated := make([]string, 0, len(flags)+len(driftFlags))
	estimated = append(estimated, flags...)
	estimated = append(estimated, driftFlags...)
	if moments == nil {
		moments = []Moment{}
	}
	missing := stream.Availability.Missing
	if missing == nil {
		missing = []telemetry.Channel{}
	}

	return &Result{
		ID:                 uuid.NewString(),
		ActivityID:         opts.ActivityID,
		AthleteID:          opts.AthleteID,
		Version:            version,
		ComputedAt:         time.Now().UTC(),
		TierUsed:           tier.Tier,
		Confidence:         tier.Confidence,
		ConfidenceLabel:    tier.ConfidenceLabel,
		CrossRunComparable: tier.CrossRunComparable,
		EstimatedFlags:     estimated,
		Channels: ChannelReport{
			Present:      stream.Availability.Present,
			Missing:      missing,
			Completeness: stream.Availability.Completeness(),
		},
		PointCount:      stream.Len(),
		Segments:        segments,
		Drift:           drift,
		Moments:         moments,
		EffortIntensity: effort,
		Curve:           curve,
	}, nil
}
