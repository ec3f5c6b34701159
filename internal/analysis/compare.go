package analysis

import (
	"errors"
	"fmt"
)

// ErrNotComparable rejects comparisons between results that were not graded
// on a calibrated, cross-run-comparable tier or that belong to different
// athletes.
var ErrNotComparable = errors.New("results are not cross-run comparable")

// Comparison reports how a target run moved against a base run. Deltas are
// target minus base; nil when either side withheld the metric.
type Comparison struct {
	BaseID            string   `json:"base_id"`
	TargetID          string   `json:"target_id"`
	AthleteID         int64    `json:"athlete_id"`
	PaceDriftDelta    *float64 `json:"pace_drift_delta"`
	CardiacDriftDelta *float64 `json:"cardiac_drift_delta"`
	IntensityMinDelta float64  `json:"intensity_min_delta"`
	IntensityMaxDelta float64  `json:"intensity_max_delta"`
	// SteadyShareDelta is the change in percent of run time spent steady.
	SteadyShareDelta float64 `json:"steady_share_delta"`
}

// Compare diffs two results of the same athlete. Both must be
// cross-run comparable; tier3 results grade effort against each run's own
// median pace and cannot be diffed meaningfully.
func Compare(base, target *Result) (*Comparison, error) {
	if base == nil || target == nil {
		return nil, fmt.Errorf("%w: missing result", ErrNotComparable)
	}
	if !base.CrossRunComparable || !target.CrossRunComparable {
		return nil, fmt.Errorf("%w: tier %s vs %s", ErrNotComparable, base.TierUsed, target.TierUsed)
	}
	if base.AthleteID != target.AthleteID {
		return nil, fmt.Errorf("%w: different athletes", ErrNotComparable)
	}

	cmp := &Comparison{
		BaseID:            base.ID,
		TargetID:          target.ID,
		AthleteID:         base.AthleteID,
		IntensityMinDelta: round2(target.EffortIntensity.Min - base.EffortIntensity.Min),
		IntensityMaxDelta: round2(target.EffortIntensity.Max - base.EffortIntensity.Max),
		SteadyShareDelta:  round2(steadyShare(target) - steadyShare(base)),
	}
	if base.Drift.PaceDriftPct != nil && target.Drift.PaceDriftPct != nil {
		d := round2(*target.Drift.PaceDriftPct - *base.Drift.PaceDriftPct)
		cmp.PaceDriftDelta = &d
	}
	if base.Drift.CardiacDriftPct != nil && target.Drift.CardiacDriftPct != nil {
		d := round2(*target.Drift.CardiacDriftPct - *base.Drift.CardiacDriftPct)
		cmp.CardiacDriftDelta = &d
	}
	return cmp, nil
}

// steadyShare returns the percent of run time labeled steady.
func steadyShare(r *Result) float64 {
	if len(r.Segments) == 0 {
		return 0
	}
	total := r.Segments[len(r.Segments)-1].EndOffset - r.Segments[0].StartOffset
	if total <= 0 {
		return 0
	}
	steady := 0
	for _, s := range r.Segments {
		if s.Type == SegmentSteady {
			steady += s.DurationSeconds()
		}
	}
	return float64(steady) / float64(total) * 100
}
