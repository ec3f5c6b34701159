package analysis

import (
	"math"
	"strings"
	"testing"
)

func driftFor(t *testing.T, spec streamSpec, threshold float64) (DriftReport, []string) {
	t.Helper()
	stream := buildStream(t, spec)
	tun := DefaultTuning()
	tier := tier1Report(threshold)
	segments := SegmentStream(stream, tier, tun)
	return ComputeDrift(stream, segments, tun)
}

func TestPaceDriftSignConvention(t *testing.T) {
	// Pace strictly decreasing (getting faster) must yield positive drift.
	report, _ := driftFor(t, streamSpec{
		n:   2400,
		vel: func(i int) float64 { return 2.8 + 0.8*float64(i)/2399 },
		hr:  func(i int) int { return 150 },
	}, 165)

	if report.PaceDriftPct == nil {
		t.Fatal("PaceDriftPct = nil, want a value")
	}
	if *report.PaceDriftPct <= 0 {
		t.Errorf("PaceDriftPct = %.2f, want > 0 for a negative-split run", *report.PaceDriftPct)
	}
	if math.Abs(*report.PaceDriftPct-11.8) > 2 {
		t.Errorf("PaceDriftPct = %.2f, want ~11.8", *report.PaceDriftPct)
	}
	if report.CardiacDriftPct == nil || math.Abs(*report.CardiacDriftPct) > 0.5 {
		t.Errorf("CardiacDriftPct = %v, want ~0 at constant hr", report.CardiacDriftPct)
	}
}

func TestCardiacDriftRisingHR(t *testing.T) {
	report, _ := driftFor(t, streamSpec{
		n:   2400,
		vel: func(i int) float64 { return 3.0 },
		hr:  func(i int) int { return 150 + int(20*float64(i)/2399) },
	}, 165)

	if report.CardiacDriftPct == nil {
		t.Fatal("CardiacDriftPct = nil, want a value")
	}
	if *report.CardiacDriftPct < 2 {
		t.Errorf("CardiacDriftPct = %.2f, want clearly positive for rising hr", *report.CardiacDriftPct)
	}
	if report.PaceDriftPct == nil || math.Abs(*report.PaceDriftPct) > 1 {
		t.Errorf("PaceDriftPct = %v, want ~0 at constant pace", report.PaceDriftPct)
	}
}

func TestNegativeCardiacDriftAnnotation(t *testing.T) {
	// HR falls while pace rises sharply: the decrease is reported as-is
	// with an inferred-cause caveat.
	report, flags := driftFor(t, streamSpec{
		n:   2400,
		vel: func(i int) float64 { return 2.8 + 1.0*float64(i)/2399 },
		hr:  func(i int) int { return 165 - int(15*float64(i)/2399) },
	}, 170)

	if report.CardiacDriftPct == nil || *report.CardiacDriftPct >= 0 {
		t.Fatalf("CardiacDriftPct = %v, want negative", report.CardiacDriftPct)
	}
	found := false
	for _, f := range flags {
		if strings.Contains(f, "pacing") {
			found = true
		}
	}
	if !found {
		t.Errorf("flags = %v, want inferred-cause annotation", flags)
	}
}

func TestDriftNullPropagation(t *testing.T) {
	t.Run("no heartrate channel", func(t *testing.T) {
		report, _ := driftFor(t, streamSpec{
			n:   2400,
			vel: func(i int) float64 { return 3.0 },
		}, 165)
		if report.CardiacDriftPct != nil {
			t.Errorf("CardiacDriftPct = %v, want nil without hr", *report.CardiacDriftPct)
		}
		if report.CadenceTrend != nil {
			t.Errorf("CadenceTrend = %v, want nil without cadence", *report.CadenceTrend)
		}
		if report.PaceDriftPct == nil {
			t.Error("PaceDriftPct = nil, want a value from the distance channel")
		}
	})

	t.Run("main body too short", func(t *testing.T) {
		report, flags := driftFor(t, streamSpec{
			n:   90,
			vel: func(i int) float64 { return 3.0 },
			hr:  func(i int) int { return 150 },
		}, 165)
		if report.PaceDriftPct != nil || report.CardiacDriftPct != nil || report.CadenceTrend != nil {
			t.Errorf("report = %+v, want all nil under two minutes", report)
		}
		if len(flags) == 0 {
			t.Error("expected a caveat for the short main body")
		}
	})
}

func TestCadenceTrend(t *testing.T) {
	base := func(cad func(i int) int) streamSpec {
		return streamSpec{
			n:       2400,
			vel:     func(i int) float64 { return 3.0 },
			hr:      func(i int) int { return 150 },
			cadence: cad,
		}
	}

	t.Run("plausible cadence yields a trend", func(t *testing.T) {
		report, flags := driftFor(t, base(func(i int) int { return 170 + 4*i/2399 }), 165)
		if report.CadenceTrend == nil {
			t.Fatalf("CadenceTrend = nil, flags = %v", flags)
		}
		if *report.CadenceTrend <= 0 {
			t.Errorf("CadenceTrend = %.2f, want positive for rising cadence", *report.CadenceTrend)
		}
	})

	t.Run("per-step counts withheld, not doubled", func(t *testing.T) {
		report, flags := driftFor(t, base(func(i int) int { return 85 }), 165)
		if report.CadenceTrend != nil {
			t.Fatalf("CadenceTrend = %v, want nil for ambiguous units", *report.CadenceTrend)
		}
		found := false
		for _, f := range flags {
			if strings.Contains(f, "per-step") {
				found = true
			}
		}
		if !found {
			t.Errorf("flags = %v, want the per-step ambiguity caveat", flags)
		}
	})

	t.Run("implausible cadence withheld", func(t *testing.T) {
		report, flags := driftFor(t, base(func(i int) int { return 300 }), 165)
		if report.CadenceTrend != nil {
			t.Fatalf("CadenceTrend = %v, want nil outside the plausible range", *report.CadenceTrend)
		}
		found := false
		for _, f := range flags {
			if strings.Contains(f, "plausible") {
				found = true
			}
		}
		if !found {
			t.Errorf("flags = %v, want the plausibility caveat", flags)
		}
	})
}

func TestCardiacDriftHRPaceRatio(t *testing.T) {
	// Pace and HR rising together: raw drift is positive, but per unit of
	// speed the cardiac cost is flat, so the ratio form stays near zero.
	stream := buildStream(t, streamSpec{
		n:   2400,
		vel: func(i int) float64 { return 3.0 + 0.3*float64(i)/2399 },
		hr:  func(i int) int { return 150 + int(15*float64(i)/2399) },
	})
	tun := DefaultTuning()
	tier := tier1Report(175)
	segments := SegmentStream(stream, tier, tun)

	raw, _ := ComputeDrift(stream, segments, tun)
	tun.UseHRPaceRatio = true
	ratio, _ := ComputeDrift(stream, segments, tun)

	if raw.CardiacDriftPct == nil || ratio.CardiacDriftPct == nil {
		t.Fatal("expected drift values in both modes")
	}
	if *raw.CardiacDriftPct <= 0 {
		t.Errorf("raw drift = %.2f, want positive", *raw.CardiacDriftPct)
	}
	if math.Abs(*ratio.CardiacDriftPct) >= math.Abs(*raw.CardiacDriftPct) {
		t.Errorf("ratio drift %.2f should be damped versus raw %.2f",
			*ratio.CardiacDriftPct, *raw.CardiacDriftPct)
	}
}
