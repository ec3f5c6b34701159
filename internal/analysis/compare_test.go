package analysis

import (
	"errors"
	"math"
	"testing"
)

func comparableResult(id string, athlete int64, mutate func(*Result)) *Result {
	r := &Result{
		ID:                 id,
		AthleteID:          athlete,
		TierUsed:           TierThresholdHR,
		Confidence:         0.95,
		CrossRunComparable: true,
		Segments: []Segment{
			{Type: SegmentWarmup, StartOffset: 0, EndOffset: 300},
			{Type: SegmentSteady, StartOffset: 300, EndOffset: 2700},
			{Type: SegmentCooldown, StartOffset: 2700, EndOffset: 3000},
		},
		Drift: DriftReport{
			CardiacDriftPct: floatPtr(4.0),
			PaceDriftPct:    floatPtr(1.5),
		},
		EffortIntensity: EffortIntensity{Min: 0.30, Max: 0.85},
	}
	if mutate != nil {
		mutate(r)
	}
	return r
}

func TestCompareDeltas(t *testing.T) {
	base := comparableResult("base", 7, nil)
	target := comparableResult("target", 7, func(r *Result) {
		r.Drift.CardiacDriftPct = floatPtr(6.5)
		r.Drift.PaceDriftPct = floatPtr(0.5)
		r.EffortIntensity = EffortIntensity{Min: 0.35, Max: 0.90}
		// Steady share drops from 80% to 60%.
		r.Segments = []Segment{
			{Type: SegmentWarmup, StartOffset: 0, EndOffset: 600},
			{Type: SegmentSteady, StartOffset: 600, EndOffset: 2400},
			{Type: SegmentCooldown, StartOffset: 2400, EndOffset: 3000},
		}
	})

	cmp, err := Compare(base, target)
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}

	if cmp.BaseID != "base" || cmp.TargetID != "target" || cmp.AthleteID != 7 {
		t.Errorf("identity not carried: %+v", cmp)
	}
	if cmp.CardiacDriftDelta == nil || math.Abs(*cmp.CardiacDriftDelta-2.5) > 1e-9 {
		t.Errorf("expected cardiac delta 2.5, got %v", cmp.CardiacDriftDelta)
	}
	if cmp.PaceDriftDelta == nil || math.Abs(*cmp.PaceDriftDelta-(-1.0)) > 1e-9 {
		t.Errorf("expected pace delta -1.0, got %v", cmp.PaceDriftDelta)
	}
	if math.Abs(cmp.IntensityMinDelta-0.05) > 1e-9 || math.Abs(cmp.IntensityMaxDelta-0.05) > 1e-9 {
		t.Errorf("unexpected intensity deltas: %+v", cmp)
	}
	if math.Abs(cmp.SteadyShareDelta-(-20.0)) > 1e-9 {
		t.Errorf("expected steady share delta -20, got %v", cmp.SteadyShareDelta)
	}
}

func TestCompareWithheldDriftStaysNil(t *testing.T) {
	base := comparableResult("base", 7, func(r *Result) {
		r.Drift = DriftReport{}
	})
	target := comparableResult("target", 7, nil)

	cmp, err := Compare(base, target)
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	if cmp.CardiacDriftDelta != nil || cmp.PaceDriftDelta != nil {
		t.Errorf("deltas should be nil when one side withheld drift, got %+v", cmp)
	}
}

func TestCompareRejections(t *testing.T) {
	tests := []struct {
		name   string
		base   *Result
		target *Result
	}{
		{
			name:   "nil result",
			base:   nil,
			target: comparableResult("target", 7, nil),
		},
		{
			name: "uncalibrated base",
			base: comparableResult("base", 7, func(r *Result) {
				r.TierUsed = TierUncalibrated
				r.CrossRunComparable = false
			}),
			target: comparableResult("target", 7, nil),
		},
		{
			name: "uncalibrated target",
			base: comparableResult("base", 7, nil),
			target: comparableResult("target", 7, func(r *Result) {
				r.TierUsed = TierUncalibrated
				r.CrossRunComparable = false
			}),
		},
		{
			name:   "different athletes",
			base:   comparableResult("base", 7, nil),
			target: comparableResult("target", 8, nil),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compare(tt.base, tt.target)
			if !errors.Is(err, ErrNotComparable) {
				t.Errorf("expected ErrNotComparable, got %v", err)
			}
		})
	}
}
