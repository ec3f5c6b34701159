package analysis

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"runstream/internal/telemetry"
)

// The fixture pins the serialized shape of a full 9/9 tier1 analysis so
// stored results keep decoding across releases.
func TestFixtureRegression(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("testdata", "analysis_fixture.json"))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}

	result, err := DecodeResult(data)
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}

	if result.TierUsed != TierThresholdHR {
		t.Errorf("expected tier %s, got %s", TierThresholdHR, result.TierUsed)
	}
	if result.Confidence != 0.95 {
		t.Errorf("expected confidence 0.95, got %v", result.Confidence)
	}
	if result.ConfidenceLabel != "high" {
		t.Errorf("expected high confidence label, got %s", result.ConfidenceLabel)
	}
	if !result.CrossRunComparable {
		t.Error("tier1 fixture should be cross-run comparable")
	}
	if result.PointCount != 5253 {
		t.Errorf("expected 5253 points, got %d", result.PointCount)
	}
	if result.Channels.Completeness != "9/9" {
		t.Errorf("expected 9/9 completeness, got %s", result.Channels.Completeness)
	}
	if len(result.Channels.Present) != 9 || len(result.Channels.Missing) != 0 {
		t.Errorf("expected all channels present, got %d present %d missing",
			len(result.Channels.Present), len(result.Channels.Missing))
	}
	if len(result.Segments) != 7 {
		t.Fatalf("expected 7 segments, got %d", len(result.Segments))
	}
	if len(result.Moments) != 4 {
		t.Fatalf("expected 4 moments, got %d", len(result.Moments))
	}
	if len(result.EstimatedFlags) != 0 {
		t.Errorf("expected no estimated flags, got %v", result.EstimatedFlags)
	}

	// Segments partition the stream with no gaps or overlaps.
	if result.Segments[0].StartOffset != 0 {
		t.Errorf("first segment starts at %d, want 0", result.Segments[0].StartOffset)
	}
	for i := 1; i < len(result.Segments); i++ {
		if result.Segments[i].StartOffset != result.Segments[i-1].EndOffset {
			t.Errorf("segment %d starts at %d but previous ends at %d",
				i, result.Segments[i].StartOffset, result.Segments[i-1].EndOffset)
		}
	}
	if last := result.Segments[len(result.Segments)-1]; last.EndOffset != result.PointCount {
		t.Errorf("last segment ends at %d, want %d", last.EndOffset, result.PointCount)
	}

	// Every moment falls inside exactly one segment.
	for _, m := range result.Moments {
		containing := 0
		for _, seg := range result.Segments {
			if seg.Contains(m.TimeOffset) {
				containing++
			}
		}
		if containing != 1 {
			t.Errorf("moment at %d contained by %d segments, want 1", m.TimeOffset, containing)
		}
	}

	if result.Drift.CardiacDriftPct == nil || *result.Drift.CardiacDriftPct != 4.6 {
		t.Errorf("unexpected cardiac drift: %v", result.Drift.CardiacDriftPct)
	}
	if result.Drift.PaceDriftPct == nil || *result.Drift.PaceDriftPct != -1.2 {
		t.Errorf("unexpected pace drift: %v", result.Drift.PaceDriftPct)
	}
	if result.Drift.CadenceTrend == nil || *result.Drift.CadenceTrend != 1.4 {
		t.Errorf("unexpected cadence trend: %v", result.Drift.CadenceTrend)
	}
	if len(result.EffortIntensity.Bands) != len(result.Segments) {
		t.Errorf("expected one intensity band per segment, got %d bands for %d segments",
			len(result.EffortIntensity.Bands), len(result.Segments))
	}

	// Re-encoding and decoding must reproduce the same result.
	out, err := result.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	again, err := DecodeResult(out)
	if err != nil {
		t.Fatalf("decode re-encoded result: %v", err)
	}
	if diff := cmp.Diff(result, again); diff != "" {
		t.Errorf("round trip mismatch (-first +second):\n%s", diff)
	}
}

// Null telemetry stays null through serialization. A sparse run must not
// resurrect drift values the analyzer withheld.
func TestEncodePreservesNulls(t *testing.T) {
	result := &Result{
		ID:                 "0b8e4f6a-1d2c-4e3f-8a9b-5c6d7e8f9a0b",
		ActivityID:         11,
		AthleteID:          3,
		Version:            1,
		ComputedAt:         time.Date(2026, 2, 3, 9, 15, 0, 0, time.UTC),
		TierUsed:           TierUncalibrated,
		Confidence:         0.55,
		ConfidenceLabel:    "low",
		CrossRunComparable: false,
		EstimatedFlags:     []string{"heartrate unavailable, effort derived from pace"},
		Channels: ChannelReport{
			Present:      []telemetry.Channel{telemetry.ChannelTime, telemetry.ChannelDistance},
			Missing:      []telemetry.Channel{telemetry.ChannelVelocity, telemetry.ChannelHeartrate},
			Completeness: "2/9",
		},
		PointCount: 30,
		Segments: []Segment{
			{Type: SegmentSteady, StartOffset: 0, EndOffset: 30},
		},
		Drift:   DriftReport{},
		Moments: []Moment{},
		EffortIntensity: EffortIntensity{
			Min:   0.4,
			Max:   0.4,
			Bands: []IntensityBand{{Segment: SegmentSteady, Value: 0.4}},
		},
	}

	data, err := result.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	for _, field := range []string{"cardiac_drift_pct", "pace_drift_pct", "cadence_trend"} {
		if !strings.Contains(string(data), `"`+field+`":null`) {
			t.Errorf("expected %s to serialize as null, got %s", field, data)
		}
	}

	decoded, err := DecodeResult(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Drift.CardiacDriftPct != nil || decoded.Drift.PaceDriftPct != nil || decoded.Drift.CadenceTrend != nil {
		t.Errorf("null drift fields should decode as nil, got %+v", decoded.Drift)
	}
	if diff := cmp.Diff(result, decoded); diff != "" {
		t.Errorf("round trip mismatch (-original +decoded):\n%s", diff)
	}
}

func TestDecodeResultRejectsGarbage(t *testing.T) {
	if _, err := DecodeResult([]byte("not json")); err == nil {
		t.Error("expected error decoding malformed payload")
	}
}
