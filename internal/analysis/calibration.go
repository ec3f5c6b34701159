package analysis

import (
	"fmt"
	"math"

	"runstream/internal/telemetry"
)

// Calibration carries an athlete's physiological reference values. Every
// field is independently optional; the tier ladder grades whatever is set.
type Calibration struct {
	ThresholdHR *float64 `json:"threshold_hr,omitempty"` // bpm at lactate threshold
	MaxHR       *float64 `json:"max_hr,omitempty"`       // bpm
	RestingHR   *float64 `json:"resting_hr,omitempty"`   // bpm
}

// IsZero reports whether no reference value is set.
func (c Calibration) IsZero() bool {
	return c.ThresholdHR == nil && c.MaxHR == nil && c.RestingHR == nil
}

// Tier identifies which calibration rung graded an analysis. The ladder is
// strictly ordered: a threshold HR always outranks a max HR, which always
// outranks having nothing.
type Tier string

const (
	TierThresholdHR  Tier = "tier1_threshold_hr"
	TierMaxHR        Tier = "tier2_max_hr"
	TierUncalibrated Tier = "tier3_uncalibrated"
)

// Base confidence per tier. Penalties for stream quality multiply on top,
// mirroring how race-prediction confidence degrades factor by factor.
const (
	tier1BaseConfidence = 0.95
	tier2BaseConfidence = 0.80
	tier3BaseConfidence = 0.55

	missingHRPenalty      = 0.70
	shortRunPenalty       = 0.90
	sparseChannelsPenalty = 0.90
)

// TierReport fixes the tier, its confidence, and comparability for one run.
type TierReport struct {
	Tier               Tier
	Confidence         float64
	ConfidenceLabel    string // "high", "medium", "low"
	CrossRunComparable bool
	// EffectiveThreshold is the bpm the effort ratios divide by; zero on
	// tier3, where effort falls back to pace.
	EffectiveThreshold float64
}

// GradeCalibration resolves the tier ladder for one run and scores the
// confidence of everything derived from it. Returns the report plus any
// estimation caveats the degraded inputs force.
func GradeCalibration(c Calibration, stream *telemetry.Stream, tun Tuning) (TierReport, []string) {
	var report TierReport
	var flags []string

	switch {
	case c.ThresholdHR != nil && *c.ThresholdHR > 0:
		report.Tier = TierThresholdHR
		report.Confidence = tier1BaseConfidence
		report.CrossRunComparable = true
		report.EffectiveThreshold = *c.ThresholdHR
	case c.MaxHR != nil && *c.MaxHR > 0:
		report.Tier = TierMaxHR
		report.Confidence = tier2BaseConfidence
		report.CrossRunComparable = true
		report.EffectiveThreshold = tun.Tier2ThresholdFactor * *c.MaxHR
		flags = append(flags, "threshold hr not calibrated; effort graded against a fraction of max hr")
	default:
		report.Tier = TierUncalibrated
		report.Confidence = tier3BaseConfidence
		report.CrossRunComparable = false
		flags = append(flags, "no hr calibration on file; effort estimated from pace variability")
	}

	if !stream.Availability.Has(telemetry.ChannelHeartrate) {
		report.Confidence *= missingHRPenalty
		if report.Tier != TierUncalibrated {
			flags = append(flags, "heartrate channel missing; hr-derived metrics estimated from pace")
		}
	}
	if stream.Duration() < tun.MinAnalysisSeconds {
		report.Confidence *= shortRunPenalty
		flags = append(flags, fmt.Sprintf("run shorter than %ds; trends are less reliable", tun.MinAnalysisSeconds))
	}
	if len(stream.Availability.Present) < 6 {
		report.Confidence *= sparseChannelsPenalty
		flags = append(flags, fmt.Sprintf("only %s channels delivered", stream.Availability.Completeness()))
	}

	report.Confidence = math.Round(report.Confidence*100) / 100
	report.ConfidenceLabel = confidenceLabel(report.Confidence)
	return report, flags
}

// confidenceLabel converts a score to its reporting label.
func confidenceLabel(score float64) string {
	switch {
	case score >= 0.85:
		return "high"
	case score >= 0.65:
		return "medium"
	default:
		return "low"
	}
}
