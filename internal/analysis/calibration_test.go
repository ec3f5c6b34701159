package analysis

import (
	"math"
	"testing"

	"runstream/internal/telemetry"
)

func fullChannelStream(t *testing.T, n int) *telemetry.Stream {
	t.Helper()
	return buildStream(t, streamSpec{
		n:        n,
		vel:      func(i int) float64 { return 3.0 },
		hr:       func(i int) int { return 150 },
		grade:    func(i int) float64 { return 0 },
		cadence:  func(i int) int { return 172 },
		altitude: func(i int) float64 { return 100 },
		latlng:   true,
		moving:   true,
	})
}

func TestGradeCalibrationLadder(t *testing.T) {
	stream := fullChannelStream(t, 1200)
	tun := DefaultTuning()

	tests := []struct {
		name           string
		calib          Calibration
		wantTier       Tier
		wantConfidence float64
		wantComparable bool
		wantThreshold  float64
	}{
		{
			name:           "threshold hr wins",
			calib:          Calibration{ThresholdHR: floatPtr(165), MaxHR: floatPtr(190), RestingHR: floatPtr(48)},
			wantTier:       TierThresholdHR,
			wantConfidence: 0.95,
			wantComparable: true,
			wantThreshold:  165,
		},
		{
			name:           "threshold hr alone",
			calib:          Calibration{ThresholdHR: floatPtr(165)},
			wantTier:       TierThresholdHR,
			wantConfidence: 0.95,
			wantComparable: true,
			wantThreshold:  165,
		},
		{
			name:           "max hr fallback",
			calib:          Calibration{MaxHR: floatPtr(190), RestingHR: floatPtr(48)},
			wantTier:       TierMaxHR,
			wantConfidence: 0.80,
			wantComparable: true,
			wantThreshold:  0.88 * 190,
		},
		{
			name:           "uncalibrated",
			calib:          Calibration{RestingHR: floatPtr(48)},
			wantTier:       TierUncalibrated,
			wantConfidence: 0.55,
			wantComparable: false,
			wantThreshold:  0,
		},
		{
			name:           "empty calibration",
			calib:          Calibration{},
			wantTier:       TierUncalibrated,
			wantConfidence: 0.55,
			wantComparable: false,
			wantThreshold:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, _ := GradeCalibration(tt.calib, stream, tun)
			if report.Tier != tt.wantTier {
				t.Errorf("Tier = %s, want %s", report.Tier, tt.wantTier)
			}
			if math.Abs(report.Confidence-tt.wantConfidence) > 0.001 {
				t.Errorf("Confidence = %.3f, want %.3f", report.Confidence, tt.wantConfidence)
			}
			if report.CrossRunComparable != tt.wantComparable {
				t.Errorf("CrossRunComparable = %v, want %v", report.CrossRunComparable, tt.wantComparable)
			}
			if math.Abs(report.EffectiveThreshold-tt.wantThreshold) > 0.001 {
				t.Errorf("EffectiveThreshold = %.2f, want %.2f", report.EffectiveThreshold, tt.wantThreshold)
			}
		})
	}
}

func TestGradeCalibrationPenalties(t *testing.T) {
	tun := DefaultTuning()
	calib := Calibration{ThresholdHR: floatPtr(165)}

	t.Run("missing heartrate channel", func(t *testing.T) {
		stream := buildStream(t, streamSpec{
			n:        1200,
			vel:      func(i int) float64 { return 3.0 },
			grade:    func(i int) float64 { return 0 },
			cadence:  func(i int) int { return 172 },
			altitude: func(i int) float64 { return 100 },
			latlng:   true,
			moving:   true,
		})
		report, flags := GradeCalibration(calib, stream, tun)
		want := math.Round(0.95*0.70*100) / 100
		if math.Abs(report.Confidence-want) > 0.001 {
			t.Errorf("Confidence = %.3f, want %.3f", report.Confidence, want)
		}
		if report.ConfidenceLabel != "medium" {
			t.Errorf("ConfidenceLabel = %s, want medium", report.ConfidenceLabel)
		}
		if len(flags) == 0 {
			t.Error("expected a caveat flag for the missing hr channel")
		}
	})

	t.Run("short run", func(t *testing.T) {
		stream := fullChannelStream(t, 400)
		report, flags := GradeCalibration(calib, stream, tun)
		want := math.Round(0.95*0.90*100) / 100
		if math.Abs(report.Confidence-want) > 0.001 {
			t.Errorf("Confidence = %.3f, want %.3f", report.Confidence, want)
		}
		if len(flags) == 0 {
			t.Error("expected a caveat flag for the short run")
		}
	})

	t.Run("sparse channels stack with missing hr", func(t *testing.T) {
		stream := buildStream(t, streamSpec{n: 700})
		report, _ := GradeCalibration(calib, stream, tun)
		want := math.Round(0.95*0.70*0.90*100) / 100
		if math.Abs(report.Confidence-want) > 0.005 {
			t.Errorf("Confidence = %.3f, want %.3f", report.Confidence, want)
		}
		if report.ConfidenceLabel != "low" {
			t.Errorf("ConfidenceLabel = %s, want low", report.ConfidenceLabel)
		}
	})
}

func TestConfidenceLabel(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{0.95, "high"},
		{0.85, "high"},
		{0.84, "medium"},
		{0.65, "medium"},
		{0.64, "low"},
		{0.10, "low"},
	}
	for _, tt := range tests {
		if got := confidenceLabel(tt.score); got != tt.want {
			t.Errorf("confidenceLabel(%.2f) = %s, want %s", tt.score, got, tt.want)
		}
	}
}
